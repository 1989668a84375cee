package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/platform"
)

// duckdbEngine mirrors sqliteEngine's file-based shape; SQL is passed to the
// DuckDB CLI with -c rather than as a positional argument, which is the one
// meaningful divergence from SQLite's client invocation.
type duckdbEngine struct{ root string }

// NewDuckDB constructs the DuckDB Engine implementation.
func NewDuckDB(root string) Engine { return &duckdbEngine{root: root} }

func (e *duckdbEngine) ID() ID             { return DuckDB }
func (e *duckdbEngine) Defaults() Defaults { d, _ := DefaultsFor(DuckDB); return d }

func (e *duckdbEngine) InitDataDir(ctx context.Context, cfg *ContainerConfig, opts InitOptions) error {
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "duckdb"), cfg.DataPath, "-c", "SELECT 1")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeContainerInitFailed, apperrors.SeverityError,
			fmt.Sprintf("failed to initialize duckdb file: %s", string(out))).WithCause(err)
	}
	return nil
}

func (e *duckdbEngine) Start(ctx context.Context, cfg *ContainerConfig) (StartResult, error) {
	if _, err := os.Stat(cfg.DataPath); err != nil {
		return StartResult{}, apperrors.New(apperrors.CodeFileNotFound, apperrors.SeverityError,
			fmt.Sprintf("duckdb file %q is missing", cfg.DataPath))
	}
	return StartResult{ConnectionString: e.GetConnectionString(cfg, "")}, nil
}

func (e *duckdbEngine) Stop(ctx context.Context, cfg *ContainerConfig) error { return nil }

func (e *duckdbEngine) Status(ctx context.Context, cfg *ContainerConfig) (Status, error) {
	if _, err := os.Stat(cfg.DataPath); err != nil {
		return StatusMissing, nil
	}
	return StatusAvailable, nil
}

func (e *duckdbEngine) Backup(ctx context.Context, cfg *ContainerConfig, outPath string, opts BackupOptions) (BackupResult, error) {
	script := fmt.Sprintf("EXPORT DATABASE '%s' (FORMAT PARQUET);", outPath)
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "duckdb"), cfg.DataPath, "-c", script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return BackupResult{}, apperrors.New(apperrors.CodeCompleteFailure, apperrors.SeverityError,
			fmt.Sprintf("duckdb EXPORT DATABASE failed: %s", string(out))).WithCause(err)
	}
	return BackupResult{Path: outPath, Format: "parquet-dir"}, nil
}

func (e *duckdbEngine) Restore(ctx context.Context, cfg *ContainerConfig, inPath string, opts RestoreOptions) error {
	if err := platform.CopyFile(inPath, cfg.DataPath); err != nil {
		return apperrors.New(apperrors.CodePartialFailure, apperrors.SeverityError,
			"failed to copy restore source over the duckdb file").WithCause(err)
	}
	return nil
}

func (e *duckdbEngine) DumpFromConnectionString(ctx context.Context, connectionURL, outPath string) (BackupResult, error) {
	return BackupResult{}, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
		"duckdb has no network connection string to dump from; point backup at the file directly")
}

func (e *duckdbEngine) RunScript(ctx context.Context, cfg *ContainerConfig, input ScriptInput) error {
	args := []string{cfg.DataPath}
	if input.File != "" {
		args = append(args, "-f", input.File)
	} else {
		args = append(args, "-c", input.SQL)
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "duckdb"), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, string(out)).WithCause(err)
	}
	return nil
}

func (e *duckdbEngine) ExecuteQuery(ctx context.Context, cfg *ContainerConfig, query string, opts QueryOptions) (*QueryResult, error) {
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "duckdb"), cfg.DataPath,
		"-header", "-separator", "\t", "-c", query)
	out, err := cmd.Output()
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, "query failed").WithCause(err)
	}
	return parseTabularOutput(string(out)), nil
}

func (e *duckdbEngine) Connect(ctx context.Context, cfg *ContainerConfig, database string) error {
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "duckdb"), cfg.DataPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (e *duckdbEngine) CreateDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	return apperrors.New(apperrors.CodeDatabaseCreateFailed, apperrors.SeverityError,
		"duckdb containers hold a single file and do not support additional databases")
}

func (e *duckdbEngine) DropDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	return apperrors.New(apperrors.CodeDatabaseCreateFailed, apperrors.SeverityError,
		"duckdb containers hold a single file and do not support dropping databases")
}

func (e *duckdbEngine) GetDatabaseSize(ctx context.Context, cfg *ContainerConfig) (*int64, error) {
	info, err := os.Stat(cfg.DataPath)
	if err != nil {
		return nil, nil
	}
	size := info.Size()
	return &size, nil
}

func (e *duckdbEngine) GetConnectionString(cfg *ContainerConfig, database string) string {
	return fmt.Sprintf("duckdb://%s", cfg.DataPath)
}
