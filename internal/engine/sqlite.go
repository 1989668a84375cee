package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/platform"
)

// sqliteEngine implements the file-based Engine contract: there is no
// server process, no port, and no pidfile. Status is derived purely from
// whether the data file exists on disk.
type sqliteEngine struct{ root string }

// NewSQLite constructs the SQLite Engine implementation.
func NewSQLite(root string) Engine { return &sqliteEngine{root: root} }

func (e *sqliteEngine) ID() ID             { return SQLite }
func (e *sqliteEngine) Defaults() Defaults { d, _ := DefaultsFor(SQLite); return d }

func (e *sqliteEngine) InitDataDir(ctx context.Context, cfg *ContainerConfig, opts InitOptions) error {
	f, err := os.OpenFile(cfg.DataPath, os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return apperrors.New(apperrors.CodeContainerInitFailed, apperrors.SeverityError,
			fmt.Sprintf("failed to create sqlite file: %v", err)).WithCause(err)
	}
	return f.Close()
}

func (e *sqliteEngine) Start(ctx context.Context, cfg *ContainerConfig) (StartResult, error) {
	if _, err := os.Stat(cfg.DataPath); err != nil {
		return StartResult{}, apperrors.New(apperrors.CodeFileNotFound, apperrors.SeverityError,
			fmt.Sprintf("sqlite file %q is missing", cfg.DataPath))
	}
	return StartResult{ConnectionString: e.GetConnectionString(cfg, "")}, nil
}

func (e *sqliteEngine) Stop(ctx context.Context, cfg *ContainerConfig) error { return nil }

func (e *sqliteEngine) Status(ctx context.Context, cfg *ContainerConfig) (Status, error) {
	if _, err := os.Stat(cfg.DataPath); err != nil {
		return StatusMissing, nil
	}
	return StatusAvailable, nil
}

func (e *sqliteEngine) Backup(ctx context.Context, cfg *ContainerConfig, outPath string, opts BackupOptions) (BackupResult, error) {
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "sqlite3"), cfg.DataPath, ".backup '"+outPath+"'")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return BackupResult{}, apperrors.New(apperrors.CodeCompleteFailure, apperrors.SeverityError,
			fmt.Sprintf("sqlite3 .backup failed: %s", string(out))).WithCause(err)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		return BackupResult{}, apperrors.Wrap(err)
	}
	return BackupResult{Path: outPath, Size: info.Size(), Format: "sqlite"}, nil
}

func (e *sqliteEngine) Restore(ctx context.Context, cfg *ContainerConfig, inPath string, opts RestoreOptions) error {
	if err := platform.CopyFile(inPath, cfg.DataPath); err != nil {
		return apperrors.New(apperrors.CodePartialFailure, apperrors.SeverityError,
			"failed to copy restore source over the sqlite file").WithCause(err)
	}
	return nil
}

func (e *sqliteEngine) DumpFromConnectionString(ctx context.Context, connectionURL, outPath string) (BackupResult, error) {
	return BackupResult{}, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
		"sqlite has no network connection string to dump from; point backup at the file directly")
}

func (e *sqliteEngine) RunScript(ctx context.Context, cfg *ContainerConfig, input ScriptInput) error {
	args := []string{cfg.DataPath}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "sqlite3"), args...)
	if input.File != "" {
		f, err := os.Open(input.File)
		if err != nil {
			return apperrors.Wrap(err)
		}
		defer f.Close()
		cmd.Stdin = f
	} else {
		cmd.Args = append(cmd.Args, input.SQL)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, string(out)).WithCause(err)
	}
	return nil
}

func (e *sqliteEngine) ExecuteQuery(ctx context.Context, cfg *ContainerConfig, query string, opts QueryOptions) (*QueryResult, error) {
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "sqlite3"), cfg.DataPath, "-header", "-separator", "\t", query)
	out, err := cmd.Output()
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, "query failed").WithCause(err)
	}
	return parseTabularOutput(string(out)), nil
}

func (e *sqliteEngine) Connect(ctx context.Context, cfg *ContainerConfig, database string) error {
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "sqlite3"), cfg.DataPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (e *sqliteEngine) CreateDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	return apperrors.New(apperrors.CodeDatabaseCreateFailed, apperrors.SeverityError,
		"sqlite containers hold a single file and do not support additional databases")
}

func (e *sqliteEngine) DropDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	return apperrors.New(apperrors.CodeDatabaseCreateFailed, apperrors.SeverityError,
		"sqlite containers hold a single file and do not support dropping databases")
}

func (e *sqliteEngine) GetDatabaseSize(ctx context.Context, cfg *ContainerConfig) (*int64, error) {
	info, err := os.Stat(cfg.DataPath)
	if err != nil {
		return nil, nil
	}
	size := info.Size()
	return &size, nil
}

func (e *sqliteEngine) GetConnectionString(cfg *ContainerConfig, database string) string {
	return fmt.Sprintf("sqlite://%s", cfg.DataPath)
}
