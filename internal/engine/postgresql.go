package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/platform"
	"github.com/spindb/spindb/internal/procmgr"
)

// postgresEngine is the reference server-based implementation: every other
// server-based engine's bespoke file follows this file's shape (resolve
// binary -> spawn detached -> write pidfile -> probe readiness). FerretDB
// wraps this implementation directly since it layers on a PostgreSQL
// backend.
type postgresEngine struct {
	root string
}

// NewPostgreSQL constructs the PostgreSQL Engine implementation.
func NewPostgreSQL(root string) Engine { return &postgresEngine{root: root} }

func (e *postgresEngine) ID() ID            { return PostgreSQL }
func (e *postgresEngine) Defaults() Defaults { d, _ := DefaultsFor(PostgreSQL); return d }

func (e *postgresEngine) InitDataDir(ctx context.Context, cfg *ContainerConfig, opts InitOptions) error {
	d := e.Defaults()
	dataDir := DataDirPath(e.root, cfg, d)
	if err := os.MkdirAll(filepath.Dir(dataDir), 0o755); err != nil {
		return apperrors.Wrap(err)
	}

	initdb := ClientBinary(cfg, "initdb")
	if _, err := os.Stat(initdb); err != nil {
		initdb = filepath.Join(platform.BinarySubdir(cfg.BinaryPath), "initdb"+platform.ExecutableExtension())
	}

	cmd := platform.NewShell().Command(ctx, initdb,
		"-D", dataDir,
		"-U", d.Superuser,
		"--auth=trust",
		"--encoding=UTF8",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeContainerInitFailed, apperrors.SeverityError,
			fmt.Sprintf("initdb failed: %s", string(out))).WithCause(err)
	}

	confPath := filepath.Join(dataDir, "postgresql.conf")
	extra := fmt.Sprintf("\nport = %d\nlisten_addresses = '127.0.0.1'\nmax_connections = %d\n",
		cfg.Port, d.MaxConnectionsHint)
	f, err := os.OpenFile(confPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return apperrors.Wrap(err)
	}
	defer f.Close()
	if _, err := f.WriteString(extra); err != nil {
		return apperrors.Wrap(err)
	}
	return nil
}

func (e *postgresEngine) Start(ctx context.Context, cfg *ContainerConfig) (StartResult, error) {
	d := e.Defaults()
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, "postgres")
	if running {
		return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, cfg.Database)}, nil
	}

	dataDir := DataDirPath(e.root, cfg, d)
	logPath := LogFilePath(e.root, cfg, d)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return StartResult{}, apperrors.Wrap(err)
	}
	defer logFile.Close()

	cmd := platform.NewShell().Command(ctx, ServerBinary(cfg, d), "-D", dataDir, "-p", strconv.Itoa(cfg.Port))
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			fmt.Sprintf("failed to start postgres: %v", err)).WithCause(err)
	}
	go func() { _ = cmd.Wait() }()

	ready := WaitForReady(ctx, readyTimeout(d), func(probeCtx context.Context) bool {
		return runProbeCommand(probeCtx, ClientBinary(cfg, "pg_isready"), "-p", strconv.Itoa(cfg.Port), "-h", "127.0.0.1")
	})
	if !ready {
		_ = procmgr.Stop(PidFilePath(e.root, cfg, d), cmd.Process.Pid, cfg.Port, 0)
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			"postgres did not become ready before the timeout")
	}

	// postgres writes its own postmaster.pid inside the data dir; we still
	// persist our own handle so procmgr's generic IsRunning/Stop works
	// uniformly even though this file is also present for engine-native
	// tooling to read.
	if err := procmgr.WritePidFile(PidFilePath(e.root, cfg, d), procmgr.Handle{
		Pid: cmd.Process.Pid, Container: cfg.Name, Engine: string(PostgreSQL), Port: cfg.Port,
	}); err != nil {
		return StartResult{}, apperrors.Wrap(err)
	}

	return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, cfg.Database)}, nil
}

func (e *postgresEngine) Stop(ctx context.Context, cfg *ContainerConfig) error {
	d := e.Defaults()
	pidPath := PidFilePath(e.root, cfg, d)
	running, pid, _ := procmgr.IsRunning(pidPath, cfg.Port, "postgres")
	if !running {
		return apperrors.New(apperrors.CodeProcessNotRunning, apperrors.SeverityWarn,
			fmt.Sprintf("container %q is not running", cfg.Name))
	}
	return procmgr.Stop(pidPath, pid, cfg.Port, gracefulWait(d))
}

func (e *postgresEngine) Status(ctx context.Context, cfg *ContainerConfig) (Status, error) {
	d := e.Defaults()
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, "postgres")
	if running {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

func (e *postgresEngine) Backup(ctx context.Context, cfg *ContainerConfig, outPath string, opts BackupOptions) (BackupResult, error) {
	format := opts.Format
	if format == "" {
		format = "custom"
	}
	db := opts.Database
	if db == "" {
		db = cfg.Database
	}

	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "pg_dump"),
		"-h", "127.0.0.1", "-p", strconv.Itoa(cfg.Port), "-U", e.Defaults().Superuser,
		"-F", format, "-f", outPath, db)
	cmd.Env = append(cmd.Env, "PGPASSWORD=")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return BackupResult{}, apperrors.New(apperrors.CodeCompleteFailure, apperrors.SeverityError,
			fmt.Sprintf("pg_dump failed: %s", string(out))).WithCause(err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return BackupResult{}, apperrors.Wrap(err)
	}
	return BackupResult{Path: outPath, Size: info.Size(), Format: format}, nil
}

func (e *postgresEngine) Restore(ctx context.Context, cfg *ContainerConfig, inPath string, opts RestoreOptions) error {
	db := opts.Database
	if db == "" {
		db = cfg.Database
	}
	args := []string{"-h", "127.0.0.1", "-p", strconv.Itoa(cfg.Port), "-U", e.Defaults().Superuser, "-d", db}
	if opts.Clean {
		args = append(args, "--clean", "--if-exists")
	}
	args = append(args, inPath)

	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "pg_restore"), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodePartialFailure, apperrors.SeverityError,
			fmt.Sprintf("pg_restore reported errors: %s", string(out))).WithCause(err)
	}
	return nil
}

func (e *postgresEngine) DumpFromConnectionString(ctx context.Context, connectionURL, outPath string) (BackupResult, error) {
	cmd := platform.NewShell().Command(ctx, "pg_dump", connectionURL, "-F", "c", "-f", outPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return BackupResult{}, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
			fmt.Sprintf("remote pg_dump failed: %s", string(out))).WithCause(err)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		return BackupResult{}, apperrors.Wrap(err)
	}
	return BackupResult{Path: outPath, Size: info.Size(), Format: "custom"}, nil
}

func (e *postgresEngine) RunScript(ctx context.Context, cfg *ContainerConfig, input ScriptInput) error {
	args := []string{"-h", "127.0.0.1", "-p", strconv.Itoa(cfg.Port), "-U", e.Defaults().Superuser, "-d", cfg.Database}
	if input.File != "" {
		args = append(args, "-f", input.File)
	} else {
		args = append(args, "-c", input.SQL)
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "psql"), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, string(out)).WithCause(err)
	}
	return nil
}

func (e *postgresEngine) ExecuteQuery(ctx context.Context, cfg *ContainerConfig, query string, opts QueryOptions) (*QueryResult, error) {
	db := opts.Database
	if db == "" {
		db = cfg.Database
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "psql"),
		"-h", "127.0.0.1", "-p", strconv.Itoa(cfg.Port), "-U", e.Defaults().Superuser, "-d", db,
		"-A", "-F", "\t", "-c", query)
	out, err := cmd.Output()
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, "query failed").WithCause(err)
	}
	return parseTabularOutput(string(out)), nil
}

func (e *postgresEngine) Connect(ctx context.Context, cfg *ContainerConfig, database string) error {
	if database == "" {
		database = cfg.Database
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "psql"),
		"-h", "127.0.0.1", "-p", strconv.Itoa(cfg.Port), "-U", e.Defaults().Superuser, "-d", database)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (e *postgresEngine) CreateDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	if err := validateDatabaseName(name); err != nil {
		return err
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "createdb"),
		"-h", "127.0.0.1", "-p", strconv.Itoa(cfg.Port), "-U", e.Defaults().Superuser, name)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeDatabaseCreateFailed, apperrors.SeverityError, string(out)).WithCause(err)
	}
	return nil
}

func (e *postgresEngine) DropDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "dropdb"),
		"-h", "127.0.0.1", "-p", strconv.Itoa(cfg.Port), "-U", e.Defaults().Superuser, "--if-exists", name)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeDatabaseCreateFailed, apperrors.SeverityError, string(out)).WithCause(err)
	}
	return nil
}

func (e *postgresEngine) GetDatabaseSize(ctx context.Context, cfg *ContainerConfig) (*int64, error) {
	res, err := e.ExecuteQuery(ctx, cfg, fmt.Sprintf("SELECT pg_database_size('%s')", cfg.Database), QueryOptions{})
	if err != nil || len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return nil, err
	}
	str, ok := res.Rows[0][0].(string)
	if !ok {
		return nil, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64)
	if err != nil {
		return nil, nil
	}
	return &n, nil
}

func (e *postgresEngine) GetConnectionString(cfg *ContainerConfig, database string) string {
	if database == "" {
		database = cfg.Database
	}
	return fmt.Sprintf("%s://%s@127.0.0.1:%d/%s", e.Defaults().ConnectionScheme, e.Defaults().Superuser, cfg.Port, database)
}
