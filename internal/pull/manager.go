// Package pull implements the Pull Manager: remote-to-local data replication
// in replace mode (swap a target database's contents for a remote source,
// keeping the original as a timestamped-suffix backup) and clone mode
// (materialize the remote data as a brand new database). Both modes run
// under the same Transaction Manager (internal/txn) every other multi-step
// Container Manager operation uses, so a failure midway either fully
// replaces or fully restores prior state.
package pull

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/container"
	"github.com/spindb/spindb/internal/engine"
	"github.com/spindb/spindb/internal/platform"
	"github.com/spindb/spindb/internal/txn"
)

// Mode selects how Pull replicates remote data into the target container.
type Mode string

const (
	ModeReplace Mode = "replace"
	ModeClone   Mode = "clone"
)

// defaultBackupSuffix names the backup database Replace creates when Spec
// doesn't override it.
const defaultBackupSuffix = "_backup"

// Logger is the subset of logrus.FieldLogger the Pull Manager needs for
// per-rollback-action tracing, matching the Container Manager's own Logger
// seam.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// Spec describes one pull invocation.
type Spec struct {
	Engine         engine.ID
	Container      string
	TargetDatabase string
	FromURL        string
	Mode           Mode
	Force          bool // allow overwriting/reusing an existing target
	DeleteBackup   bool // replace mode only: drop the backup database on success
	BackupSuffix   string
	PostScript     string
}

// Result summarizes what Pull did, handed to the post-script as JSON and
// returned to the CLI layer for `--json` output.
type Result struct {
	Container      string `json:"container"`
	Engine         string `json:"engine"`
	Database       string `json:"database"`
	BackupDatabase string `json:"backupDatabase,omitempty"`
	OriginalURL    string `json:"originalUrl,omitempty"`
	NewURL         string `json:"newUrl"`
	Port           int    `json:"port,omitempty"`
}

// Manager runs pull operations against containers tracked by the Container
// Manager's on-disk registry.
type Manager struct {
	Root    string
	Engines engine.Registry
	Log     Logger
}

// New builds a Manager rooted at the same directory the Container Manager
// uses.
func New(root string, registry engine.Registry, log Logger) *Manager {
	return &Manager{Root: root, Engines: registry, Log: log}
}

// Pull dispatches to replace or clone mode, then runs the post-script if one
// was configured.
func (m *Manager) Pull(ctx context.Context, spec Spec) (*Result, error) {
	cfg, err := container.LoadConfig(m.Root, spec.Engine, spec.Container)
	if err != nil {
		return nil, err
	}
	e, ok := m.Engines[spec.Engine]
	if !ok {
		return nil, apperrors.New(apperrors.CodeContainerNotFound, apperrors.SeverityError,
			"no engine registered for "+string(spec.Engine))
	}
	if !e.Defaults().SupportsMultipleDatabases {
		return nil, apperrors.New(apperrors.CodePullFailed, apperrors.SeverityError,
			fmt.Sprintf("engine %s does not support pull (single logical database only)", spec.Engine))
	}

	var result *Result
	switch spec.Mode {
	case ModeClone:
		result, err = m.clone(ctx, e, cfg, spec)
	case ModeReplace, "":
		result, err = m.replace(ctx, e, cfg, spec)
	default:
		return nil, apperrors.New(apperrors.CodePullFailed, apperrors.SeverityError,
			"unknown pull mode "+string(spec.Mode))
	}
	if err != nil {
		return nil, err
	}

	if spec.PostScript != "" {
		if err := m.runPostScript(ctx, cfg, spec, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// replace backs up the target database, dumps the remote source, and swaps
// the target's contents for the remote data, preserving the original under
// a suffix-named backup database. Steps and rollback ordering follow the
// replace-mode sequence: backup target, create backup db, load dump into
// backup, dump remote, drop+recreate target, load remote dump, optionally
// drop the backup.
func (m *Manager) replace(ctx context.Context, e engine.Engine, cfg *engine.ContainerConfig, spec Spec) (*Result, error) {
	target := spec.TargetDatabase
	if target == "" {
		target = cfg.Database
	}
	suffix := spec.BackupSuffix
	if suffix == "" {
		suffix = defaultBackupSuffix
	}
	backupName := target + suffix

	if hasDatabase(cfg, backupName) && !spec.Force {
		return nil, apperrors.New(apperrors.CodePullTargetExists, apperrors.SeverityError,
			fmt.Sprintf("backup database %q already exists; pass --force to overwrite it", backupName))
	}

	origDump, err := tempDumpFile("spindb-pull-orig-*.dump")
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	defer os.Remove(origDump)
	remoteDump, err := tempDumpFile("spindb-pull-remote-*.dump")
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	defer os.Remove(remoteDump)

	var result *Result
	err = txn.WithTransaction(m.logf, func(tx *txn.Transaction) error {
		if _, err := e.Backup(ctx, cfg, origDump, engine.BackupOptions{Database: target}); err != nil {
			return apperrors.New(apperrors.CodePullFailed, apperrors.SeverityError,
				"failed to back up current target database").WithCause(err)
		}

		if err := tx.AddRollback("drop backup database", func() error {
			return e.DropDatabase(ctx, cfg, backupName)
		}); err != nil {
			return err
		}
		if err := e.CreateDatabase(ctx, cfg, backupName); err != nil {
			return err
		}
		if err := e.Restore(ctx, cfg, origDump, engine.RestoreOptions{Database: backupName, Clean: true}); err != nil {
			return err
		}

		if _, err := e.DumpFromConnectionString(ctx, spec.FromURL, remoteDump); err != nil {
			return apperrors.New(apperrors.CodePullFailed, apperrors.SeverityError,
				"failed to dump remote source").WithCause(err)
		}

		if err := tx.AddRollback("restore target from original backup", func() error {
			_ = e.DropDatabase(ctx, cfg, target)
			if err := e.CreateDatabase(ctx, cfg, target); err != nil {
				return err
			}
			return e.Restore(ctx, cfg, origDump, engine.RestoreOptions{Database: target, Clean: true})
		}); err != nil {
			return err
		}
		if err := e.DropDatabase(ctx, cfg, target); err != nil {
			return err
		}
		if err := e.CreateDatabase(ctx, cfg, target); err != nil {
			return err
		}
		if err := e.Restore(ctx, cfg, remoteDump, engine.RestoreOptions{Database: target, Clean: true}); err != nil {
			return err
		}

		keptBackup := backupName
		if spec.DeleteBackup {
			if err := e.DropDatabase(ctx, cfg, backupName); err != nil {
				return err
			}
			keptBackup = ""
		}

		addDatabase(cfg, target)
		if keptBackup != "" {
			addDatabase(cfg, keptBackup)
		}
		if err := container.SaveConfig(m.Root, cfg); err != nil {
			return err
		}

		result = &Result{
			Container:      cfg.Name,
			Engine:         string(cfg.Engine),
			Database:       target,
			BackupDatabase: keptBackup,
			OriginalURL:    e.GetConnectionString(cfg, target),
			NewURL:         spec.FromURL,
			Port:           cfg.Port,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// clone materializes the remote source as a brand new database alongside
// the container's existing ones; the target must not already exist unless
// spec.Force is set.
func (m *Manager) clone(ctx context.Context, e engine.Engine, cfg *engine.ContainerConfig, spec Spec) (*Result, error) {
	target := spec.TargetDatabase
	if target == "" {
		return nil, apperrors.New(apperrors.CodePullFailed, apperrors.SeverityError,
			"clone mode requires a target database name")
	}
	if hasDatabase(cfg, target) && !spec.Force {
		return nil, apperrors.New(apperrors.CodePullTargetExists, apperrors.SeverityError,
			fmt.Sprintf("database %q already exists; pass --force to overwrite it", target))
	}

	dump, err := tempDumpFile("spindb-pull-clone-*.dump")
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	defer os.Remove(dump)

	var result *Result
	err = txn.WithTransaction(m.logf, func(tx *txn.Transaction) error {
		if err := tx.AddRollback("drop cloned database", func() error {
			return e.DropDatabase(ctx, cfg, target)
		}); err != nil {
			return err
		}
		if err := e.CreateDatabase(ctx, cfg, target); err != nil {
			return err
		}

		if _, err := e.DumpFromConnectionString(ctx, spec.FromURL, dump); err != nil {
			return apperrors.New(apperrors.CodePullFailed, apperrors.SeverityError,
				"failed to dump remote source").WithCause(err)
		}
		if err := e.Restore(ctx, cfg, dump, engine.RestoreOptions{Database: target}); err != nil {
			return err
		}

		addDatabase(cfg, target)
		if err := container.SaveConfig(m.Root, cfg); err != nil {
			return err
		}

		result = &Result{
			Container: cfg.Name,
			Engine:    string(cfg.Engine),
			Database:  target,
			NewURL:    spec.FromURL,
			Port:      cfg.Port,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// postScriptContext is the SPINDB_CONTEXT JSON body: new and original
// database URLs plus the identifying fields the legacy environment
// variables duplicate.
type postScriptContext struct {
	Container      string `json:"container"`
	Engine         string `json:"engine"`
	Database       string `json:"database"`
	BackupDatabase string `json:"backupDatabase,omitempty"`
	OriginalURL    string `json:"originalUrl,omitempty"`
	NewURL         string `json:"newUrl"`
	Port           int    `json:"port,omitempty"`
}

// runPostScript invokes spec.PostScript with inherited stdio, a SPINDB_CONTEXT
// env var pointing at a JSON description of the pull, and the legacy
// per-field env vars older hook scripts expect.
func (m *Manager) runPostScript(ctx context.Context, cfg *engine.ContainerConfig, spec Spec, result *Result) error {
	ctxFile, err := os.CreateTemp("", "spindb-pull-context-*.json")
	if err != nil {
		return apperrors.Wrap(err)
	}
	defer os.Remove(ctxFile.Name())

	body := postScriptContext{
		Container:      result.Container,
		Engine:         result.Engine,
		Database:       result.Database,
		BackupDatabase: result.BackupDatabase,
		OriginalURL:    result.OriginalURL,
		NewURL:         result.NewURL,
		Port:           result.Port,
	}
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		ctxFile.Close()
		return apperrors.Wrap(err)
	}
	if _, err := ctxFile.Write(data); err != nil {
		ctxFile.Close()
		return apperrors.Wrap(err)
	}
	if err := ctxFile.Close(); err != nil {
		return apperrors.Wrap(err)
	}

	shell := platform.NewShell()
	cmd := shell.CommandString(ctx, spec.PostScript)
	cmd.Env = append(cmd.Env,
		"SPINDB_CONTEXT="+ctxFile.Name(),
		"SPINDB_CONTAINER="+result.Container,
		"SPINDB_DATABASE="+result.Database,
		"SPINDB_BACKUP_DATABASE="+result.BackupDatabase,
		fmt.Sprintf("SPINDB_PORT=%d", result.Port),
		"SPINDB_ENGINE="+result.Engine,
	)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return apperrors.New(apperrors.CodePostScriptFailed, apperrors.SeverityError,
			"post-script exited with an error").WithCause(err)
	}
	return nil
}

func hasDatabase(cfg *engine.ContainerConfig, name string) bool {
	for _, db := range cfg.Databases {
		if db == name {
			return true
		}
	}
	return false
}

func addDatabase(cfg *engine.ContainerConfig, name string) {
	if !hasDatabase(cfg, name) {
		cfg.Databases = append(cfg.Databases, name)
	}
}

func tempDumpFile(pattern string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	path := f.Name()
	return path, f.Close()
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.Log != nil {
		m.Log.Debugf(format, args...)
	}
}
