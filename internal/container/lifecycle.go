package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/engine"
	"github.com/spindb/spindb/internal/filedb"
	"github.com/spindb/spindb/internal/platform"
	"github.com/spindb/spindb/internal/txn"
)

// Start brings up a stopped container's server process. File-based engines
// have no process to start; Start only confirms the data file still exists.
func (m *Manager) Start(ctx context.Context, eng engine.ID, name string) (*engine.ContainerConfig, error) {
	cfg, e, err := m.load(eng, name)
	if err != nil {
		return nil, err
	}
	res, err := e.Start(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !engine.IsFileBased(eng) {
		cfg.Port = res.Port
		cfg.Status = engine.StatusRunning
	}
	if err := SaveConfig(m.Root, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Stop gracefully stops a running container's server process. A no-op for
// file-based engines.
func (m *Manager) Stop(ctx context.Context, eng engine.ID, name string) (*engine.ContainerConfig, error) {
	cfg, e, err := m.load(eng, name)
	if err != nil {
		return nil, err
	}
	if err := e.Stop(ctx, cfg); err != nil {
		return nil, err
	}
	if !engine.IsFileBased(eng) {
		cfg.Status = engine.StatusStopped
	}
	if err := SaveConfig(m.Root, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DeleteOptions configures Delete.
type DeleteOptions struct {
	// Force deletes a container that Status reports as still running,
	// stopping it first instead of refusing. Also triggers removal of the
	// installed binary if no other container references it afterward.
	Force bool
}

// Delete removes a container's directory and persisted config. A running
// server-based container is refused unless opts.Force is set, in which case
// it is stopped first. For file-based engines the registered filedb.json
// entry is dropped, but the underlying file on disk is left untouched since
// it may live outside SpinDB's management entirely. When opts.Force is set
// and no other container references the same (engine, version, platform,
// arch) binary afterward, that binary is removed too.
func (m *Manager) Delete(ctx context.Context, eng engine.ID, name string, opts DeleteOptions) error {
	cfg, e, err := m.load(eng, name)
	if err != nil {
		return err
	}

	lock, err := Acquire(m.Root, string(eng), name)
	if err != nil {
		return err
	}
	defer lock.Release()

	if !engine.IsFileBased(eng) {
		status, err := e.Status(ctx, cfg)
		if err != nil {
			return err
		}
		if status == engine.StatusRunning {
			if !opts.Force {
				return apperrors.New(apperrors.CodeContainerRunning, apperrors.SeverityError,
					fmt.Sprintf("container %q is running", name)).
					WithRemediation("stop it first, or pass --force to stop and delete in one step")
			}
			if err := e.Stop(ctx, cfg); err != nil {
				return err
			}
		}
	}

	if err := os.RemoveAll(platform.ContainerDir(m.Root, string(eng), name)); err != nil {
		return err
	}

	if engine.IsFileBased(eng) {
		if reg, regErr := filedb.Load(m.Root); regErr == nil {
			reg.Remove(name)
			_ = reg.Save()
		}
	}

	if opts.Force {
		if err := m.deleteBinaryIfUnreferenced(eng, cfg); err != nil {
			return err
		}
	}
	return nil
}

// deleteBinaryIfUnreferenced removes the installed binary for cfg's
// (engine, version, platform, arch) tuple when no remaining container
// references it.
func (m *Manager) deleteBinaryIfUnreferenced(eng engine.ID, cfg *engine.ContainerConfig) error {
	cfgs, err := ListConfigs(m.Root)
	if err != nil {
		return err
	}
	for _, other := range cfgs {
		if other.Engine == eng && other.Version == cfg.Version && other.BinaryPath == cfg.BinaryPath {
			return nil
		}
	}
	plat, arch := platform.Detect()
	return m.Binaries.Delete(string(eng), cfg.Version, plat, arch)
}

// Clone copies srcName's data directory and config to a new container under
// the same engine, allocating a fresh port for server-based engines. dstPath
// is only consulted for file-based engines (sqlite, duckdb), which need a
// new on-disk location for the copied file. The new container starts
// stopped regardless of the source's status.
func (m *Manager) Clone(ctx context.Context, eng engine.ID, srcName, dstName, dstPath string) (*engine.ContainerConfig, error) {
	if err := ValidateName(dstName); err != nil {
		return nil, err
	}
	src, _, err := m.load(eng, srcName)
	if err != nil {
		return nil, err
	}
	if Exists(m.Root, eng, dstName) {
		return nil, apperrors.New(apperrors.CodeContainerAlreadyExists, apperrors.SeverityError,
			fmt.Sprintf("container %q already exists for engine %s", dstName, eng))
	}
	if engine.IsFileBased(eng) && dstPath == "" {
		return nil, apperrors.New(apperrors.CodeContainerCreateFailed, apperrors.SeverityError,
			"a destination --path is required to clone a file-based container")
	}

	defaults, _ := engine.DefaultsFor(eng)
	dst := *src
	dst.Name = dstName
	dst.Status = engine.StatusStopped
	dst.CreatedAt = m.now()
	if engine.IsFileBased(eng) {
		abs, err := filepath.Abs(dstPath)
		if err != nil {
			return nil, apperrors.Wrap(err)
		}
		dst.DataPath = abs
	}

	var result *engine.ContainerConfig
	err = txn.WithTransaction(m.logf, func(tx *txn.Transaction) error {
		if !engine.IsFileBased(eng) {
			port, err := m.allocatePort(eng, defaults, 0)
			if err != nil {
				return err
			}
			dst.Port = port
		}

		if err := tx.AddRollback("remove cloned container directory", func() error {
			return os.RemoveAll(platform.ContainerDir(m.Root, string(eng), dstName))
		}); err != nil {
			return err
		}

		if engine.IsFileBased(eng) {
			if err := tx.AddRollback("remove cloned data file", func() error {
				return os.Remove(dst.DataPath)
			}); err != nil {
				return err
			}
			if err := copyTree(src.DataPath, dst.DataPath); err != nil {
				return apperrors.Wrap(err)
			}
			reg, regErr := filedb.Load(m.Root)
			if regErr != nil {
				return regErr
			}
			reg.Register(dstName, dst.DataPath)
			if err := reg.Save(); err != nil {
				return err
			}
		} else {
			srcDataDir := platform.ContainerData(m.Root, string(eng), srcName, defaults.DataSubdir)
			dstDataDir := platform.ContainerData(m.Root, string(eng), dstName, defaults.DataSubdir)
			if err := copyTree(srcDataDir, dstDataDir); err != nil {
				return apperrors.Wrap(err)
			}
		}
		dst.BinaryPath = src.BinaryPath

		if err := SaveConfig(m.Root, &dst); err != nil {
			return err
		}
		result = &dst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Rename changes a container's name in place: a running server-based
// container is stopped first, the directory moves to the new name, and the
// persisted config (whose on-disk paths are all recomputed from cfg.Name
// rather than stored literally) is rewritten. The caller is responsible for
// starting it again afterward if desired.
func (m *Manager) Rename(ctx context.Context, eng engine.ID, oldName, newName string) (*engine.ContainerConfig, error) {
	if err := ValidateName(newName); err != nil {
		return nil, err
	}
	cfg, e, err := m.load(eng, oldName)
	if err != nil {
		return nil, err
	}
	if Exists(m.Root, eng, newName) {
		return nil, apperrors.New(apperrors.CodeContainerAlreadyExists, apperrors.SeverityError,
			fmt.Sprintf("container %q already exists for engine %s", newName, eng))
	}
	if !engine.IsFileBased(eng) {
		status, err := e.Status(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if status == engine.StatusRunning {
			if err := e.Stop(ctx, cfg); err != nil {
				return nil, err
			}
		}
	}

	oldDir := platform.ContainerDir(m.Root, string(eng), oldName)
	newDir := platform.ContainerDir(m.Root, string(eng), newName)
	if err := os.Rename(oldDir, newDir); err != nil {
		return nil, apperrors.Wrap(err)
	}

	cfg.Name = newName
	if err := SaveConfig(m.Root, cfg); err != nil {
		return nil, err
	}
	if engine.IsFileBased(eng) {
		reg, regErr := filedb.Load(m.Root)
		if regErr == nil {
			reg.Remove(oldName)
			reg.Register(newName, cfg.DataPath)
			_ = reg.Save()
		}
	}
	return cfg, nil
}

// load fetches a container's persisted config and its Engine implementation
// together, the pair almost every lifecycle operation needs.
func (m *Manager) load(eng engine.ID, name string) (*engine.ContainerConfig, engine.Engine, error) {
	cfg, err := LoadConfig(m.Root, eng, name)
	if err != nil {
		return nil, nil, err
	}
	e, err := m.engineFor(eng)
	if err != nil {
		return nil, nil, err
	}
	return cfg, e, nil
}
