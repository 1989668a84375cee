package engine

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/platform"
	"github.com/spindb/spindb/internal/procmgr"
)

// ferretdbEngine speaks the MongoDB wire protocol but persists into an
// embedded PostgreSQL backend, so InitDataDir and lifecycle both delegate
// most of their work to a postgresEngine constructed against the same
// container's backend data directory.
type ferretdbEngine struct {
	root string
	pg   *postgresEngine
}

// NewFerretDB constructs the FerretDB Engine implementation, wiring in a
// PostgreSQL backend instance FerretDB is told to connect to on startup.
func NewFerretDB(root string) Engine {
	return &ferretdbEngine{root: root, pg: &postgresEngine{root: root}}
}

func (e *ferretdbEngine) ID() ID             { return FerretDB }
func (e *ferretdbEngine) Defaults() Defaults { d, _ := DefaultsFor(FerretDB); return d }

// backendConfig builds the ContainerConfig the embedded postgresEngine
// operates against: a PostgreSQL container named "{name}-backend", so its
// data directory is containers/postgresql/{name}-backend/, listening on
// Extras["backendPort"] (or the FerretDB port plus 10000) and using the
// binary at Extras["backendBinaryPath"].
func (e *ferretdbEngine) backendConfig(cfg *ContainerConfig) *ContainerConfig {
	backendPort := cfg.Port + 10000
	if p, ok := cfg.Extras["backendPort"]; ok {
		if n, err := strconv.Atoi(p); err == nil {
			backendPort = n
		}
	}
	return &ContainerConfig{
		Name:       cfg.Name + "-backend",
		Engine:     PostgreSQL,
		Version:    cfg.BackendVersion,
		Port:       backendPort,
		Database:   "ferretdb",
		DataPath:   cfg.DataPath,
		BinaryPath: cfg.Extras["backendBinaryPath"],
	}
}

func (e *ferretdbEngine) InitDataDir(ctx context.Context, cfg *ContainerConfig, opts InitOptions) error {
	d := e.Defaults()
	if err := os.MkdirAll(DataDirPath(e.root, cfg, d), 0o755); err != nil {
		return apperrors.Wrap(err)
	}
	return e.pg.InitDataDir(ctx, e.backendConfig(cfg), opts)
}

func (e *ferretdbEngine) Start(ctx context.Context, cfg *ContainerConfig) (StartResult, error) {
	d := e.Defaults()
	backend := e.backendConfig(cfg)

	if _, err := e.pg.Start(ctx, backend); err != nil {
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			"failed to start FerretDB's PostgreSQL backend").WithCause(err)
	}

	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName)
	if running {
		return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, cfg.Database)}, nil
	}

	logPath := LogFilePath(e.root, cfg, d)
	pidPath := PidFilePath(e.root, cfg, d)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return StartResult{}, apperrors.Wrap(err)
	}
	defer logFile.Close()

	backendURL := e.pg.GetConnectionString(backend, backend.Database)
	cmd := platform.NewShell().Command(ctx, ServerBinary(cfg, d),
		"--listen-addr", fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		"--postgresql-url", backendURL,
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			fmt.Sprintf("failed to start ferretdb: %v", err)).WithCause(err)
	}
	go func() { _ = cmd.Wait() }()

	ready := WaitForReady(ctx, readyTimeout(d), func(probeCtx context.Context) bool {
		return probeTCP(probeCtx, cfg.Port)
	})
	if !ready {
		_ = procmgr.Stop(pidPath, cmd.Process.Pid, cfg.Port, 0)
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			"ferretdb did not become ready before the timeout")
	}

	if err := procmgr.WritePidFile(pidPath, procmgr.Handle{
		Pid: cmd.Process.Pid, Container: cfg.Name, Engine: string(FerretDB), Port: cfg.Port,
	}); err != nil {
		return StartResult{}, apperrors.Wrap(err)
	}

	return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, cfg.Database)}, nil
}

func (e *ferretdbEngine) Stop(ctx context.Context, cfg *ContainerConfig) error {
	d := e.Defaults()
	pidPath := PidFilePath(e.root, cfg, d)
	running, pid, _ := procmgr.IsRunning(pidPath, cfg.Port, d.ServerBinaryName)
	if running {
		if err := procmgr.Stop(pidPath, pid, cfg.Port, gracefulWait(d)); err != nil {
			return err
		}
	}
	return e.pg.Stop(ctx, e.backendConfig(cfg))
}

func (e *ferretdbEngine) Status(ctx context.Context, cfg *ContainerConfig) (Status, error) {
	d := e.Defaults()
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName)
	if running {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

func (e *ferretdbEngine) Backup(ctx context.Context, cfg *ContainerConfig, outPath string, opts BackupOptions) (BackupResult, error) {
	return e.pg.Backup(ctx, e.backendConfig(cfg), outPath, BackupOptions{Format: opts.Format, Database: "ferretdb"})
}

func (e *ferretdbEngine) Restore(ctx context.Context, cfg *ContainerConfig, inPath string, opts RestoreOptions) error {
	return e.pg.Restore(ctx, e.backendConfig(cfg), inPath, RestoreOptions{Database: "ferretdb", Clean: opts.Clean})
}

func (e *ferretdbEngine) DumpFromConnectionString(ctx context.Context, connectionURL, outPath string) (BackupResult, error) {
	return BackupResult{}, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
		"ferretdb has no standalone mongodump-compatible remote dump path; back up the PostgreSQL backend directly")
}

func (e *ferretdbEngine) RunScript(ctx context.Context, cfg *ContainerConfig, input ScriptInput) error {
	args := []string{"--port", strconv.Itoa(cfg.Port), cfg.Database}
	if input.File != "" {
		args = append(args, input.File)
	} else {
		args = append(args, "--eval", input.SQL)
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "mongosh"), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, string(out)).WithCause(err)
	}
	return nil
}

func (e *ferretdbEngine) ExecuteQuery(ctx context.Context, cfg *ContainerConfig, query string, opts QueryOptions) (*QueryResult, error) {
	db := opts.Database
	if db == "" {
		db = cfg.Database
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "mongosh"),
		"--port", strconv.Itoa(cfg.Port), db, "--quiet", "--eval", query)
	out, err := cmd.Output()
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, "query failed").WithCause(err)
	}
	return &QueryResult{Message: string(out), RowCount: 1}, nil
}

func (e *ferretdbEngine) Connect(ctx context.Context, cfg *ContainerConfig, database string) error {
	if database == "" {
		database = cfg.Database
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "mongosh"), "--port", strconv.Itoa(cfg.Port), database)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (e *ferretdbEngine) CreateDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	if err := validateDatabaseName(name); err != nil {
		return err
	}
	return e.RunScript(ctx, cfg, ScriptInput{SQL: fmt.Sprintf("db.getSiblingDB('%s').__spindb_marker.insertOne({created: true})", name)})
}

func (e *ferretdbEngine) DropDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	return e.RunScript(ctx, cfg, ScriptInput{SQL: fmt.Sprintf("db.getSiblingDB('%s').dropDatabase()", name)})
}

func (e *ferretdbEngine) GetDatabaseSize(ctx context.Context, cfg *ContainerConfig) (*int64, error) {
	return e.pg.GetDatabaseSize(ctx, e.backendConfig(cfg))
}

func (e *ferretdbEngine) GetConnectionString(cfg *ContainerConfig, database string) string {
	if database == "" {
		database = cfg.Database
	}
	return fmt.Sprintf("mongodb://127.0.0.1:%d/%s", cfg.Port, database)
}
