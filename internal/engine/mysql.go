package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/platform"
	"github.com/spindb/spindb/internal/procmgr"
)

// mysqlEngine backs both MySQL and MariaDB: the two speak the same wire
// protocol and administration surface, differing only in binary names and
// the EngineDefaults row selected by id.
type mysqlEngine struct {
	root string
	id   ID
}

// NewMySQL constructs the MySQL Engine implementation.
func NewMySQL(root string) Engine { return &mysqlEngine{root: root, id: MySQL} }

// NewMariaDB constructs the MariaDB Engine implementation, reusing MySQL's
// client/server invocation shape with MariaDB's own binary names.
func NewMariaDB(root string) Engine { return &mysqlEngine{root: root, id: MariaDB} }

func (e *mysqlEngine) ID() ID             { return e.id }
func (e *mysqlEngine) Defaults() Defaults { d, _ := DefaultsFor(e.id); return d }

// clientTool maps a generic client role to this engine's actual binary name:
// MySQL ships mysql/mysqldump/mysqladmin, MariaDB ships mariadb/mariadb-dump/
// mariadb-admin.
func (e *mysqlEngine) clientTool(role string) string {
	if e.id == MariaDB {
		switch role {
		case "cli":
			return "mariadb"
		case "dump":
			return "mariadb-dump"
		case "admin":
			return "mariadb-admin"
		}
	}
	switch role {
	case "cli":
		return "mysql"
	case "dump":
		return "mysqldump"
	case "admin":
		return "mysqladmin"
	}
	return role
}

func (e *mysqlEngine) InitDataDir(ctx context.Context, cfg *ContainerConfig, opts InitOptions) error {
	d := e.Defaults()
	dataDir := DataDirPath(e.root, cfg, d)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return apperrors.Wrap(err)
	}

	installer := ServerBinary(cfg, d)
	cmd := platform.NewShell().Command(ctx, installer,
		"--initialize-insecure",
		"--datadir="+dataDir,
		"--basedir="+platform.BinarySubdir(cfg.BinaryPath),
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeContainerInitFailed, apperrors.SeverityError,
			fmt.Sprintf("mysqld --initialize-insecure failed: %s", string(out))).WithCause(err)
	}
	return nil
}

func (e *mysqlEngine) Start(ctx context.Context, cfg *ContainerConfig) (StartResult, error) {
	d := e.Defaults()
	commandName := d.ServerBinaryName
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, commandName)
	if running {
		return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, cfg.Database)}, nil
	}

	dataDir := DataDirPath(e.root, cfg, d)
	logPath := LogFilePath(e.root, cfg, d)
	pidPath := PidFilePath(e.root, cfg, d)
	sockPath := filepath.Join(dataDir, "mysql.sock")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return StartResult{}, apperrors.Wrap(err)
	}
	defer logFile.Close()

	cmd := platform.NewShell().Command(ctx, ServerBinary(cfg, d),
		"--datadir="+dataDir,
		"--port="+strconv.Itoa(cfg.Port),
		"--socket="+sockPath,
		"--pid-file="+pidPath,
		"--bind-address=127.0.0.1",
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			fmt.Sprintf("failed to start %s: %v", commandName, err)).WithCause(err)
	}
	go func() { _ = cmd.Wait() }()

	ready := WaitForReady(ctx, readyTimeout(d), func(probeCtx context.Context) bool {
		return runProbeCommand(probeCtx, ClientBinary(cfg, e.clientTool("admin")),
			"-h", "127.0.0.1", "-P", strconv.Itoa(cfg.Port), "-u", d.Superuser, "ping")
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

	return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, cfg.Database)}, nil
}

func (e *mysqlEngine) Stop(ctx context.Context, cfg *ContainerConfig) error {
	d := e.Defaults()
	pidPath := PidFilePath(e.root, cfg, d)
	running, pid, _ := procmgr.IsRunning(pidPath, cfg.Port, d.ServerBinaryName)
	if !running {
		return apperrors.New(apperrors.CodeProcessNotRunning, apperrors.SeverityWarn,
			fmt.Sprintf("container %q is not running", cfg.Name))
	}
	return procmgr.Stop(pidPath, pid, cfg.Port, gracefulWait(d))
}

func (e *mysqlEngine) Status(ctx context.Context, cfg *ContainerConfig) (Status, error) {
	d := e.Defaults()
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName)
	if running {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

func (e *mysqlEngine) Backup(ctx context.Context, cfg *ContainerConfig, outPath string, opts BackupOptions) (BackupResult, error) {
	db := opts.Database
	if db == "" {
		db = cfg.Database
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, e.clientTool("dump")),
		"-h", "127.0.0.1", "-P", strconv.Itoa(cfg.Port), "-u", e.Defaults().Superuser,
		"--databases", db, "--result-file="+outPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return BackupResult{}, apperrors.New(apperrors.CodeCompleteFailure, apperrors.SeverityError,
			fmt.Sprintf("mysqldump failed: %s", string(out))).WithCause(err)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		return BackupResult{}, apperrors.Wrap(err)
	}
	return BackupResult{Path: outPath, Size: info.Size(), Format: "sql"}, nil
}

func (e *mysqlEngine) Restore(ctx context.Context, cfg *ContainerConfig, inPath string, opts RestoreOptions) error {
	db := opts.Database
	if db == "" {
		db = cfg.Database
	}
	f, err := os.Open(inPath)
	if err != nil {
		return apperrors.Wrap(err)
	}
	defer f.Close()

	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, e.clientTool("cli")),
		"-h", "127.0.0.1", "-P", strconv.Itoa(cfg.Port), "-u", e.Defaults().Superuser, db)
	cmd.Stdin = f
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodePartialFailure, apperrors.SeverityError,
			fmt.Sprintf("mysql restore reported errors: %s", string(out))).WithCause(err)
	}
	return nil
}

func (e *mysqlEngine) DumpFromConnectionString(ctx context.Context, connectionURL, outPath string) (BackupResult, error) {
	return BackupResult{}, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
		"remote dump from an arbitrary MySQL connection string requires host/port/credentials to be parsed from the URL; use backup against a local container instead")
}

func (e *mysqlEngine) RunScript(ctx context.Context, cfg *ContainerConfig, input ScriptInput) error {
	args := []string{"-h", "127.0.0.1", "-P", strconv.Itoa(cfg.Port), "-u", e.Defaults().Superuser, cfg.Database}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, e.clientTool("cli")), args...)
	if input.File != "" {
		f, err := os.Open(input.File)
		if err != nil {
			return apperrors.Wrap(err)
		}
		defer f.Close()
		cmd.Stdin = f
	} else {
		cmd.Args = append(cmd.Args, "-e", input.SQL)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, string(out)).WithCause(err)
	}
	return nil
}

func (e *mysqlEngine) ExecuteQuery(ctx context.Context, cfg *ContainerConfig, query string, opts QueryOptions) (*QueryResult, error) {
	db := opts.Database
	if db == "" {
		db = cfg.Database
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, e.clientTool("cli")),
		"-h", "127.0.0.1", "-P", strconv.Itoa(cfg.Port), "-u", e.Defaults().Superuser, db,
		"--batch", "-e", query)
	out, err := cmd.Output()
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, "query failed").WithCause(err)
	}
	return parseTabularOutput(string(out)), nil
}

func (e *mysqlEngine) Connect(ctx context.Context, cfg *ContainerConfig, database string) error {
	if database == "" {
		database = cfg.Database
	}
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, e.clientTool("cli")),
		"-h", "127.0.0.1", "-P", strconv.Itoa(cfg.Port), "-u", e.Defaults().Superuser, database)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (e *mysqlEngine) CreateDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	if err := validateDatabaseName(name); err != nil {
		return err
	}
	return e.RunScript(ctx, cfg, ScriptInput{SQL: fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)})
}

func (e *mysqlEngine) DropDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	return e.RunScript(ctx, cfg, ScriptInput{SQL: fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", name)})
}

func (e *mysqlEngine) GetDatabaseSize(ctx context.Context, cfg *ContainerConfig) (*int64, error) {
	query := fmt.Sprintf(
		"SELECT SUM(data_length + index_length) FROM information_schema.tables WHERE table_schema = '%s'",
		cfg.Database)
	res, err := e.ExecuteQuery(ctx, cfg, query, QueryOptions{})
	if err != nil || len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return nil, err
	}
	str, ok := res.Rows[0][0].(string)
	if !ok {
		return nil, nil
	}
	n, perr := strconv.ParseInt(str, 10, 64)
	if perr != nil {
		return nil, nil
	}
	return &n, nil
}

func (e *mysqlEngine) GetConnectionString(cfg *ContainerConfig, database string) string {
	if database == "" {
		database = cfg.Database
	}
	return fmt.Sprintf("%s://%s@127.0.0.1:%d/%s", e.Defaults().ConnectionScheme, e.Defaults().Superuser, cfg.Port, database)
}
