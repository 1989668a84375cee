package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/imdario/mergo"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/binman"
	"github.com/spindb/spindb/internal/engine"
	"github.com/spindb/spindb/internal/filedb"
	"github.com/spindb/spindb/internal/platform"
	"github.com/spindb/spindb/internal/portmgr"
	"github.com/spindb/spindb/internal/txn"
)

// CreateSpec describes a requested container. Options carries per-engine
// settings merged into the new container's Extras map, which InitDataDir
// also receives as InitOptions.Extra; only keys an engine reads take effect
// (e.g. Redis's "password", Meilisearch's "masterKey"). Options does not
// override the engine's Defaults row.
type CreateSpec struct {
	Name       string
	Engine     engine.ID
	Version    string
	Port       int // 0 means "pick one from the engine's range"
	Database   string
	Options    map[string]string
	AutoStart  bool
	OnDownload binman.ProgressFunc

	// Path is required for file-based engines (sqlite, duckdb): the
	// location of the data file, which may be anywhere on disk rather than
	// under the container directory.
	Path string
}

// Create runs the full container provisioning flow as a single transaction:
// validate, allocate a port, ensure the binary is installed, initialize the
// data directory, persist the config, and optionally start the server. Any
// step failing unwinds every step that already succeeded, in reverse order.
func (m *Manager) Create(ctx context.Context, spec CreateSpec) (*engine.ContainerConfig, error) {
	if err := ValidateName(spec.Name); err != nil {
		return nil, err
	}
	if Exists(m.Root, spec.Engine, spec.Name) {
		return nil, apperrors.New(apperrors.CodeContainerAlreadyExists, apperrors.SeverityError,
			fmt.Sprintf("container %q already exists for engine %s", spec.Name, spec.Engine)).
			WithContext("name", spec.Name)
	}

	e, err := m.engineFor(spec.Engine)
	if err != nil {
		return nil, err
	}
	defaults := e.Defaults()

	var dataPath string
	if engine.IsFileBased(spec.Engine) {
		if spec.Path == "" {
			return nil, apperrors.New(apperrors.CodeContainerCreateFailed, apperrors.SeverityError,
				"a --path is required for file-based engine "+string(spec.Engine))
		}
		abs, err := filepath.Abs(spec.Path)
		if err != nil {
			return nil, apperrors.Wrap(err)
		}
		dataPath = abs
	}

	version := spec.Version
	if version == "" {
		version = defaults.DefaultVersion
	}

	lock, err := Acquire(m.Root, string(spec.Engine), spec.Name)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	cfg := &engine.ContainerConfig{
		Name:      spec.Name,
		Engine:    spec.Engine,
		Version:   version,
		Database:  spec.Database,
		DataPath:  dataPath,
		Status:    engine.StatusStopped,
		CreatedAt: m.now(),
		Extras:    map[string]string{},
	}
	if defaults.SupportsMultipleDatabases && cfg.Database != "" {
		cfg.Databases = []string{cfg.Database}
	}
	if err := mergo.Merge(&cfg.Extras, spec.Options); err != nil {
		return nil, apperrors.Wrap(err)
	}

	var result *engine.ContainerConfig
	err = txn.WithTransaction(m.logf, func(tx *txn.Transaction) error {
		if !engine.IsFileBased(spec.Engine) {
			port, binErr := m.allocatePort(spec.Engine, defaults, spec.Port)
			if binErr != nil {
				return binErr
			}
			cfg.Port = port
		}

		plat, arch := platform.Detect()
		binName := binaryNameFor(defaults)
		if !m.Binaries.IsInstalled(string(spec.Engine), version, plat, arch, binName) && m.catalog == nil {
			cat, catErr := m.Registry.FetchCatalog(ctx)
			if catErr != nil {
				return catErr
			}
			m.catalog = cat
		}
		binPath, created, binErr := m.Binaries.EnsureInstalled(ctx, m.catalog, string(spec.Engine), version, plat, arch,
			binName, binman.PerEngineOverrides{}, spec.OnDownload)
		if binErr != nil {
			return binErr
		}
		if created {
			if err := tx.AddRollback("remove freshly downloaded binary", func() error {
				return m.Binaries.Delete(string(spec.Engine), version, plat, arch)
			}); err != nil {
				return err
			}
		}
		cfg.BinaryPath = binPath

		dataDir := engine.DataDirPath(m.Root, cfg, defaults)
		if err := tx.AddRollback("remove container directory", func() error {
			return os.RemoveAll(platform.ContainerDir(m.Root, string(spec.Engine), spec.Name))
		}); err != nil {
			return err
		}
		if err := e.InitDataDir(ctx, cfg, engine.InitOptions{Extra: cfg.Extras}); err != nil {
			return apperrors.New(apperrors.CodeContainerInitFailed, apperrors.SeverityError,
				"failed to initialize data directory at "+dataDir).WithCause(err)
		}

		if engine.IsFileBased(spec.Engine) {
			reg, regErr := filedb.Load(m.Root)
			if regErr != nil {
				return regErr
			}
			if err := tx.AddRollback("unregister file-db entry", func() error {
				reg, err := filedb.Load(m.Root)
				if err != nil {
					return err
				}
				reg.Remove(spec.Name)
				return reg.Save()
			}); err != nil {
				return err
			}
			reg.Register(spec.Name, cfg.DataPath)
			if err := reg.Save(); err != nil {
				return err
			}
		}

		if err := tx.AddRollback("delete persisted container config", func() error {
			return DeleteConfig(m.Root, spec.Engine, spec.Name)
		}); err != nil {
			return err
		}
		if err := SaveConfig(m.Root, cfg); err != nil {
			return err
		}

		if spec.AutoStart {
			if err := tx.AddRollback("stop started container", func() error {
				return e.Stop(ctx, cfg)
			}); err != nil {
				return err
			}
			startRes, startErr := e.Start(ctx, cfg)
			if startErr != nil {
				return apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
					"container created but failed to start").WithCause(startErr)
			}
			cfg.Port = startRes.Port
			cfg.Status = engine.StatusRunning
			if err := SaveConfig(m.Root, cfg); err != nil {
				return err
			}
		}

		result = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// allocatePort resolves the port a new container should bind to: the
// caller's preference if set, otherwise the engine's conventional default,
// scanned against every port already claimed by a persisted config for this
// engine.
func (m *Manager) allocatePort(eng engine.ID, defaults engine.Defaults, preferred int) (int, error) {
	inUse, err := m.portsInUse(eng)
	if err != nil {
		return 0, err
	}
	want := preferred
	if want == 0 {
		want = defaults.DefaultPort
	}
	return portmgr.AllocatePort(defaults.PortRange, want, inUse)
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.Log != nil {
		m.Log.Debugf(format, args...)
	}
}

// now is a seam so tests can pin CreatedAt; production always uses wall
// clock time.
func (m *Manager) now() time.Time {
	return time.Now()
}

// binaryNameFor returns the executable the binary manager should install and
// verify: the server binary for server-based engines, or the first client
// tool for file-based engines (sqlite, duckdb), which have no server
// binary of their own.
func binaryNameFor(d engine.Defaults) string {
	if d.ServerBinaryName != "" {
		return d.ServerBinaryName
	}
	if len(d.ClientToolNames) > 0 {
		return d.ClientToolNames[0]
	}
	return ""
}
