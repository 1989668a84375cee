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

type mongodbEngine struct{ root string }

// NewMongoDB constructs the MongoDB Engine implementation.
func NewMongoDB(root string) Engine { return &mongodbEngine{root: root} }

func (e *mongodbEngine) ID() ID             { return MongoDB }
func (e *mongodbEngine) Defaults() Defaults { d, _ := DefaultsFor(MongoDB); return d }

func (e *mongodbEngine) InitDataDir(ctx context.Context, cfg *ContainerConfig, opts InitOptions) error {
	d := e.Defaults()
	dataDir := DataDirPath(e.root, cfg, d)
	return os.MkdirAll(dataDir, 0o755)
}

func (e *mongodbEngine) Start(ctx context.Context, cfg *ContainerConfig) (StartResult, error) {
	d := e.Defaults()
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName)
	if running {
		return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, cfg.Database)}, nil
	}

	dataDir := DataDirPath(e.root, cfg, d)
	logPath := LogFilePath(e.root, cfg, d)
	pidPath := PidFilePath(e.root, cfg, d)

	cmd := platform.NewShell().Command(ctx, ServerBinary(cfg, d),
		"--dbpath", dataDir,
		"--port", strconv.Itoa(cfg.Port),
		"--bind_ip", "127.0.0.1",
		"--logpath", logPath,
	)

	if err := cmd.Start(); err != nil {
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			fmt.Sprintf("failed to start mongod: %v", err)).WithCause(err)
	}
	go func() { _ = cmd.Wait() }()

	ready := WaitForReady(ctx, readyTimeout(d), func(probeCtx context.Context) bool {
		return runProbeCommand(probeCtx, ClientBinary(cfg, "mongosh"),
			"--port", strconv.Itoa(cfg.Port), "--eval", "db.runCommand({ping: 1})")
	})
	if !ready {
		_ = procmgr.Stop(pidPath, cmd.Process.Pid, cfg.Port, 0)
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			"mongod did not become ready before the timeout")
	}

	if err := procmgr.WritePidFile(pidPath, procmgr.Handle{
		Pid: cmd.Process.Pid, Container: cfg.Name, Engine: string(MongoDB), Port: cfg.Port,
	}); err != nil {
		return StartResult{}, apperrors.Wrap(err)
	}

	return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, cfg.Database)}, nil
}

func (e *mongodbEngine) Stop(ctx context.Context, cfg *ContainerConfig) error {
	d := e.Defaults()
	pidPath := PidFilePath(e.root, cfg, d)
	running, pid, _ := procmgr.IsRunning(pidPath, cfg.Port, d.ServerBinaryName)
	if !running {
		return apperrors.New(apperrors.CodeProcessNotRunning, apperrors.SeverityWarn,
			fmt.Sprintf("container %q is not running", cfg.Name))
	}
	return procmgr.Stop(pidPath, pid, cfg.Port, gracefulWait(d))
}

func (e *mongodbEngine) Status(ctx context.Context, cfg *ContainerConfig) (Status, error) {
	d := e.Defaults()
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName)
	if running {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

func (e *mongodbEngine) Backup(ctx context.Context, cfg *ContainerConfig, outPath string, opts BackupOptions) (BackupResult, error) {
	db := opts.Database
	if db == "" {
		db = cfg.Database
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "mongodump"),
		"--port", strconv.Itoa(cfg.Port), "--db", db, "--archive="+outPath, "--gzip")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return BackupResult{}, apperrors.New(apperrors.CodeCompleteFailure, apperrors.SeverityError,
			fmt.Sprintf("mongodump failed: %s", string(out))).WithCause(err)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		return BackupResult{}, apperrors.Wrap(err)
	}
	return BackupResult{Path: outPath, Size: info.Size(), Format: "archive-gzip"}, nil
}

func (e *mongodbEngine) Restore(ctx context.Context, cfg *ContainerConfig, inPath string, opts RestoreOptions) error {
	args := []string{"--port", strconv.Itoa(cfg.Port), "--archive=" + inPath, "--gzip"}
	if opts.Clean {
		args = append(args, "--drop")
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "mongorestore"), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodePartialFailure, apperrors.SeverityError,
			fmt.Sprintf("mongorestore reported errors: %s", string(out))).WithCause(err)
	}
	return nil
}

func (e *mongodbEngine) DumpFromConnectionString(ctx context.Context, connectionURL, outPath string) (BackupResult, error) {
	cmd := platform.NewShell().Command(ctx, "mongodump", "--uri", connectionURL, "--archive="+outPath, "--gzip")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return BackupResult{}, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
			fmt.Sprintf("remote mongodump failed: %s", string(out))).WithCause(err)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		return BackupResult{}, apperrors.Wrap(err)
	}
	return BackupResult{Path: outPath, Size: info.Size(), Format: "archive-gzip"}, nil
}

func (e *mongodbEngine) RunScript(ctx context.Context, cfg *ContainerConfig, input ScriptInput) error {
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

func (e *mongodbEngine) ExecuteQuery(ctx context.Context, cfg *ContainerConfig, query string, opts QueryOptions) (*QueryResult, error) {
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

func (e *mongodbEngine) Connect(ctx context.Context, cfg *ContainerConfig, database string) error {
	if database == "" {
		database = cfg.Database
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, "mongosh"), "--port", strconv.Itoa(cfg.Port), database)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (e *mongodbEngine) CreateDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	if err := validateDatabaseName(name); err != nil {
		return err
	}
	return e.RunScript(ctx, cfg, ScriptInput{SQL: fmt.Sprintf("db.getSiblingDB('%s').__spindb_marker.insertOne({created: true})", name)})
}

func (e *mongodbEngine) DropDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	return e.RunScript(ctx, cfg, ScriptInput{SQL: fmt.Sprintf("db.getSiblingDB('%s').dropDatabase()", name)})
}

func (e *mongodbEngine) GetDatabaseSize(ctx context.Context, cfg *ContainerConfig) (*int64, error) {
	res, err := e.ExecuteQuery(ctx, cfg, "db.stats().dataSize", QueryOptions{})
	if err != nil || res == nil {
		return nil, err
	}
	n, perr := strconv.ParseInt(res.Message, 10, 64)
	if perr != nil {
		return nil, nil
	}
	return &n, nil
}

func (e *mongodbEngine) GetConnectionString(cfg *ContainerConfig, database string) string {
	if database == "" {
		database = cfg.Database
	}
	return fmt.Sprintf("mongodb://127.0.0.1:%d/%s", cfg.Port, database)
}
