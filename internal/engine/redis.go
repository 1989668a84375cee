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

// redisEngine backs both Redis and Valkey: Valkey is a drop-in fork of
// Redis that kept the RESP wire protocol and redis-cli-compatible tooling,
// so the two only differ in binary names and the EngineDefaults row.
type redisEngine struct {
	root string
	id   ID
}

// NewRedis constructs the Redis Engine implementation.
func NewRedis(root string) Engine { return &redisEngine{root: root, id: Redis} }

// NewValkey constructs the Valkey Engine implementation.
func NewValkey(root string) Engine { return &redisEngine{root: root, id: Valkey} }

func (e *redisEngine) ID() ID             { return e.id }
func (e *redisEngine) Defaults() Defaults { d, _ := DefaultsFor(e.id); return d }

func (e *redisEngine) cliName() string {
	if e.id == Valkey {
		return "valkey-cli"
	}
	return "redis-cli"
}

func (e *redisEngine) InitDataDir(ctx context.Context, cfg *ContainerConfig, opts InitOptions) error {
	d := e.Defaults()
	dataDir := DataDirPath(e.root, cfg, d)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return apperrors.Wrap(err)
	}
	confPath := DataDirPath(e.root, cfg, d) + "/server.conf"
	content := fmt.Sprintf("port %d\nbind 127.0.0.1\ndir %s\ndaemonize no\n", cfg.Port, dataDir)
	if pw, ok := opts.Extra["password"]; ok && pw != "" {
		content += "requirepass " + pw + "\n"
	}
	return os.WriteFile(confPath, []byte(content), 0o644)
}

func (e *redisEngine) Start(ctx context.Context, cfg *ContainerConfig) (StartResult, error) {
	d := e.Defaults()
	commandName := d.ServerBinaryName
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, commandName)
	if running {
		return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, "")}, nil
	}

	dataDir := DataDirPath(e.root, cfg, d)
	confPath := dataDir + "/server.conf"
	logPath := LogFilePath(e.root, cfg, d)
	pidPath := PidFilePath(e.root, cfg, d)

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return StartResult{}, apperrors.Wrap(err)
	}
	defer logFile.Close()

	cmd := platform.NewShell().Command(ctx, ServerBinary(cfg, d), confPath)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			fmt.Sprintf("failed to start %s: %v", commandName, err)).WithCause(err)
	}
	go func() { _ = cmd.Wait() }()

	ready := WaitForReady(ctx, readyTimeout(d), func(probeCtx context.Context) bool {
		return runProbeCommand(probeCtx, ClientBinary(cfg, e.cliName()), "-p", strconv.Itoa(cfg.Port), "ping")
	})
	if !ready {
		_ = procmgr.Stop(pidPath, cmd.Process.Pid, cfg.Port, 0)
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			fmt.Sprintf("%s did not become ready before the timeout", commandName))
	}

	if err := procmgr.WritePidFile(pidPath, procmgr.Handle{
		Pid: cmd.Process.Pid, Container: cfg.Name, Engine: string(e.id), Port: cfg.Port,
	}); err != nil {
		return StartResult{}, apperrors.Wrap(err)
	}

	return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, "")}, nil
}

func (e *redisEngine) Stop(ctx context.Context, cfg *ContainerConfig) error {
	d := e.Defaults()
	pidPath := PidFilePath(e.root, cfg, d)
	running, pid, _ := procmgr.IsRunning(pidPath, cfg.Port, d.ServerBinaryName)
	if !running {
		return apperrors.New(apperrors.CodeProcessNotRunning, apperrors.SeverityWarn,
			fmt.Sprintf("container %q is not running", cfg.Name))
	}
	return procmgr.Stop(pidPath, pid, cfg.Port, gracefulWait(d))
}

func (e *redisEngine) Status(ctx context.Context, cfg *ContainerConfig) (Status, error) {
	d := e.Defaults()
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName)
	if running {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

func (e *redisEngine) Backup(ctx context.Context, cfg *ContainerConfig, outPath string, opts BackupOptions) (BackupResult, error) {
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, e.cliName()),
		"-p", strconv.Itoa(cfg.Port), "--rdb", outPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return BackupResult{}, apperrors.New(apperrors.CodeCompleteFailure, apperrors.SeverityError,
			fmt.Sprintf("%s --rdb failed: %s", e.cliName(), string(out))).WithCause(err)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		return BackupResult{}, apperrors.Wrap(err)
	}
	return BackupResult{Path: outPath, Size: info.Size(), Format: "rdb"}, nil
}

func (e *redisEngine) Restore(ctx context.Context, cfg *ContainerConfig, inPath string, opts RestoreOptions) error {
	d := e.Defaults()
	if running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName); running {
		return apperrors.New(apperrors.CodePartialFailure, apperrors.SeverityError,
			"restoring an rdb snapshot requires the container to be stopped first")
	}
	dataDir := DataDirPath(e.root, cfg, d)
	if err := platform.CopyFile(inPath, dataDir+"/dump.rdb"); err != nil {
		return apperrors.New(apperrors.CodePartialFailure, apperrors.SeverityError,
			"failed to copy rdb snapshot into the data directory").WithCause(err)
	}
	return nil
}

func (e *redisEngine) DumpFromConnectionString(ctx context.Context, connectionURL, outPath string) (BackupResult, error) {
	return BackupResult{}, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
		"remote rdb dump from an arbitrary connection string is not supported; use backup against a local container")
}

func (e *redisEngine) RunScript(ctx context.Context, cfg *ContainerConfig, input ScriptInput) error {
	args := []string{"-p", strconv.Itoa(cfg.Port)}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, e.cliName()), args...)
	if input.File != "" {
		f, err := os.Open(input.File)
		if err != nil {
			return apperrors.Wrap(err)
		}
		defer f.Close()
		cmd.Stdin = f
	} else {
		cmd.Args = append(cmd.Args, platform.NewShell().Argv(input.SQL)...)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, string(out)).WithCause(err)
	}
	return nil
}

func (e *redisEngine) ExecuteQuery(ctx context.Context, cfg *ContainerConfig, query string, opts QueryOptions) (*QueryResult, error) {
	shell := platform.NewShell()
	args := append([]string{"-p", strconv.Itoa(cfg.Port)}, shell.Argv(query)...)
	cmd := shell.Command(ctx, ClientBinary(cfg, e.cliName()), args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, "command failed").WithCause(err)
	}
	return &QueryResult{Message: string(out), RowCount: 1}, nil
}

func (e *redisEngine) Connect(ctx context.Context, cfg *ContainerConfig, database string) error {
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, e.cliName()), "-p", strconv.Itoa(cfg.Port))
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (e *redisEngine) CreateDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	return apperrors.New(apperrors.CodeDatabaseCreateFailed, apperrors.SeverityError,
		"redis-family engines address databases by numeric index; additional named databases are not supported")
}

func (e *redisEngine) DropDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	return e.CreateDatabase(ctx, cfg, name)
}

func (e *redisEngine) GetDatabaseSize(ctx context.Context, cfg *ContainerConfig) (*int64, error) {
	d := e.Defaults()
	dataDir := DataDirPath(e.root, cfg, d)
	info, err := os.Stat(dataDir + "/dump.rdb")
	if err != nil {
		return nil, nil
	}
	size := info.Size()
	return &size, nil
}

func (e *redisEngine) GetConnectionString(cfg *ContainerConfig, database string) string {
	return fmt.Sprintf("%s://127.0.0.1:%d", e.Defaults().ConnectionScheme, cfg.Port)
}
