package engine

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/platform"
	"github.com/spindb/spindb/internal/procmgr"
)

// genericSpec is the set of hooks a server-based engine needs to plug into
// genericServerEngine when it doesn't warrant its own bespoke file: the
// server's argv shape, an optional one-time setup step (TigerBeetle's
// format), and how to tell it's ready. This covers engines
// whose lifecycle is "spawn with flags, poll a port or HTTP endpoint" with
// no meaningfully different backup/restore/query story from their peers.
type genericSpec struct {
	id ID

	// setupArgs, if non-nil, returns an argv that InitDataDir runs once
	// (e.g. "tigerbeetle format"). Returns nil to skip.
	setupArgs func(cfg *ContainerConfig, d Defaults, dataDir string) []string

	// startArgs returns the argv (excluding the binary itself) to launch
	// the server in the foreground.
	startArgs func(cfg *ContainerConfig, d Defaults, dataDir, logPath string) []string

	// httpHealthPath, when non-empty, makes the readiness probe use HTTP GET
	// against this path instead of a bare TCP probe.
	httpHealthPath string

	// clientCLI, when non-empty, is the binary used for Connect/RunScript/
	// ExecuteQuery (engines with an interactive shell). Empty means those
	// operations are unsupported for this engine.
	clientCLI     string
	clientConnect func(cfg *ContainerConfig, d Defaults) []string
}

var genericSpecs = map[ID]genericSpec{
	CouchDB: {
		id: CouchDB,
		startArgs: func(cfg *ContainerConfig, d Defaults, dataDir, logPath string) []string {
			return []string{"-couch_ini", couchIniPath(dataDir)}
		},
		httpHealthPath: "/",
	},
	CockroachDB: {
		id: CockroachDB,
		startArgs: func(cfg *ContainerConfig, d Defaults, dataDir, logPath string) []string {
			return []string{
				"start-single-node", "--insecure",
				"--store=" + dataDir,
				fmt.Sprintf("--listen-addr=127.0.0.1:%d", cfg.Port),
				fmt.Sprintf("--http-addr=127.0.0.1:%d", cfg.Port+1),
				"--background=false",
			}
		},
		clientCLI: "cockroach",
		clientConnect: func(cfg *ContainerConfig, d Defaults) []string {
			return []string{"sql", "--insecure", fmt.Sprintf("--host=127.0.0.1:%d", cfg.Port)}
		},
	},
	SurrealDB: {
		id: SurrealDB,
		startArgs: func(cfg *ContainerConfig, d Defaults, dataDir, logPath string) []string {
			return []string{
				"start", "--user", "root", "--pass", "root",
				fmt.Sprintf("--bind=127.0.0.1:%d", cfg.Port),
				"file:" + dataDir,
			}
		},
		httpHealthPath: "/health",
		clientCLI:      "surreal",
		clientConnect: func(cfg *ContainerConfig, d Defaults) []string {
			return []string{"sql", "--user", "root", "--pass", "root", "--endpoint", fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)}
		},
	},
	QuestDB: {
		id: QuestDB,
		startArgs: func(cfg *ContainerConfig, d Defaults, dataDir, logPath string) []string {
			return []string{"start", "-d", dataDir}
		},
		httpHealthPath: "/status",
	},
	TypeDB: {
		id: TypeDB,
		startArgs: func(cfg *ContainerConfig, d Defaults, dataDir, logPath string) []string {
			return []string{"server", "--storage.data", dataDir, "--server.address", fmt.Sprintf("127.0.0.1:%d", cfg.Port)}
		},
		clientCLI: "typedb",
		clientConnect: func(cfg *ContainerConfig, d Defaults) []string {
			return []string{"console", "--core", fmt.Sprintf("127.0.0.1:%d", cfg.Port)}
		},
	},
	InfluxDB: {
		id: InfluxDB,
		startArgs: func(cfg *ContainerConfig, d Defaults, dataDir, logPath string) []string {
			return []string{"--bolt-path", dataDir + "/influxd.bolt", "--engine-path", dataDir + "/engine",
				"--http-bind-address", fmt.Sprintf("127.0.0.1:%d", cfg.Port)}
		},
		httpHealthPath: "/health",
		clientCLI:      "influx",
	},
	Weaviate: {
		id: Weaviate,
		startArgs: func(cfg *ContainerConfig, d Defaults, dataDir, logPath string) []string {
			return []string{"--host", "127.0.0.1", "--port", portString(cfg.Port), "--scheme", "http"}
		},
		httpHealthPath: "/v1/.well-known/ready",
	},
	TigerBeetle: {
		id: TigerBeetle,
		setupArgs: func(cfg *ContainerConfig, d Defaults, dataDir string) []string {
			return []string{"format", "--cluster=0", "--replica=0", "--replica-count=1", dataDir + "/0_0.tigerbeetle"}
		},
		startArgs: func(cfg *ContainerConfig, d Defaults, dataDir, logPath string) []string {
			return []string{"start", fmt.Sprintf("--addresses=127.0.0.1:%d", cfg.Port), dataDir + "/0_0.tigerbeetle"}
		},
	},
}

func couchIniPath(dataDir string) string { return dataDir + "/local.ini" }

// genericServerEngine is the shared Engine implementation for the eight
// server-based engines whose lifecycle needs nothing beyond spawn/probe/
// stop: it delegates the handful of engine-specific knobs to a genericSpec
// and otherwise follows the same shape as the bespoke engine files.
type genericServerEngine struct {
	root string
	spec genericSpec
	http *http.Client
}

// NewGenericServer constructs a genericServerEngine for id, or nil if id is
// not one of the engines wired into genericSpecs.
func NewGenericServer(root string, id ID) Engine {
	spec, ok := genericSpecs[id]
	if !ok {
		return nil
	}
	return &genericServerEngine{root: root, spec: spec, http: &http.Client{Timeout: 10 * time.Second}}
}

func (e *genericServerEngine) ID() ID             { return e.spec.id }
func (e *genericServerEngine) Defaults() Defaults { d, _ := DefaultsFor(e.spec.id); return d }

func (e *genericServerEngine) InitDataDir(ctx context.Context, cfg *ContainerConfig, opts InitOptions) error {
	d := e.Defaults()
	dataDir := DataDirPath(e.root, cfg, d)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return apperrors.Wrap(err)
	}
	if e.spec.setupArgs == nil {
		return nil
	}
	args := e.spec.setupArgs(cfg, d, dataDir)
	if args == nil {
		return nil
	}
	cmd := platform.NewShell().Command(ctx, ServerBinary(cfg, d), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeContainerInitFailed, apperrors.SeverityError,
			fmt.Sprintf("%s setup step failed: %s", d.ServerBinaryName, string(out))).WithCause(err)
	}
	return nil
}

func (e *genericServerEngine) Start(ctx context.Context, cfg *ContainerConfig) (StartResult, error) {
	d := e.Defaults()
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName)
	if running {
		return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, "")}, nil
	}

	dataDir := DataDirPath(e.root, cfg, d)
	logPath := LogFilePath(e.root, cfg, d)
	pidPath := PidFilePath(e.root, cfg, d)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return StartResult{}, apperrors.Wrap(err)
	}
	defer logFile.Close()

	cmd := platform.NewShell().Command(ctx, ServerBinary(cfg, d), e.spec.startArgs(cfg, d, dataDir, logPath)...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			fmt.Sprintf("failed to start %s: %v", d.ServerBinaryName, err)).WithCause(err)
	}
	go func() { _ = cmd.Wait() }()

	ready := WaitForReady(ctx, readyTimeout(d), func(probeCtx context.Context) bool {
		if e.spec.httpHealthPath != "" {
			return e.httpProbe(probeCtx, cfg, e.spec.httpHealthPath)
		}
		return probeTCP(probeCtx, cfg.Port)
	})
	if !ready {
		_ = procmgr.Stop(pidPath, cmd.Process.Pid, cfg.Port, 0)
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			fmt.Sprintf("%s did not become ready before the timeout", d.ServerBinaryName))
	}

	if err := procmgr.WritePidFile(pidPath, procmgr.Handle{
		Pid: cmd.Process.Pid, Container: cfg.Name, Engine: string(e.spec.id), Port: cfg.Port,
	}); err != nil {
		return StartResult{}, apperrors.Wrap(err)
	}

	return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, "")}, nil
}

func (e *genericServerEngine) httpProbe(ctx context.Context, cfg *ContainerConfig, path string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d%s", cfg.Port, path), nil)
	if err != nil {
		return false
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func (e *genericServerEngine) Stop(ctx context.Context, cfg *ContainerConfig) error {
	d := e.Defaults()
	pidPath := PidFilePath(e.root, cfg, d)
	running, pid, _ := procmgr.IsRunning(pidPath, cfg.Port, d.ServerBinaryName)
	if !running {
		return apperrors.New(apperrors.CodeProcessNotRunning, apperrors.SeverityWarn,
			fmt.Sprintf("container %q is not running", cfg.Name))
	}
	return procmgr.Stop(pidPath, pid, cfg.Port, gracefulWait(d))
}

func (e *genericServerEngine) Status(ctx context.Context, cfg *ContainerConfig) (Status, error) {
	d := e.Defaults()
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName)
	if running {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

func (e *genericServerEngine) Backup(ctx context.Context, cfg *ContainerConfig, outPath string, opts BackupOptions) (BackupResult, error) {
	d := e.Defaults()
	if running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName); running {
		return BackupResult{}, apperrors.New(apperrors.CodePartialFailure, apperrors.SeverityError,
			fmt.Sprintf("%s's data directory must be backed up while the container is stopped", d.ServerBinaryName))
	}
	if err := platform.CreateArchive(ctx, DataDirPath(e.root, cfg, d), outPath); err != nil {
		return BackupResult{}, apperrors.New(apperrors.CodeCompleteFailure, apperrors.SeverityError,
			"failed to archive the data directory").WithCause(err)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		return BackupResult{}, apperrors.Wrap(err)
	}
	return BackupResult{Path: outPath, Size: info.Size(), Format: "tar.gz"}, nil
}

func (e *genericServerEngine) Restore(ctx context.Context, cfg *ContainerConfig, inPath string, opts RestoreOptions) error {
	d := e.Defaults()
	if running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName); running {
		return apperrors.New(apperrors.CodePartialFailure, apperrors.SeverityError,
			"restoring a data-directory archive requires the container to be stopped first")
	}
	return platform.ExtractArchive(ctx, inPath, DataDirPath(e.root, cfg, d))
}

func (e *genericServerEngine) DumpFromConnectionString(ctx context.Context, connectionURL, outPath string) (BackupResult, error) {
	return BackupResult{}, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
		fmt.Sprintf("%s has no remote dump-over-URL path; use backup against a local container", e.spec.id))
}

func (e *genericServerEngine) RunScript(ctx context.Context, cfg *ContainerConfig, input ScriptInput) error {
	if e.spec.clientCLI == "" {
		return apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
			fmt.Sprintf("%s has no scriptable client wired in", e.spec.id))
	}
	d := e.Defaults()
	args := e.spec.clientConnect(cfg, d)
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, e.spec.clientCLI), args...)
	if input.File != "" {
		f, err := os.Open(input.File)
		if err != nil {
			return apperrors.Wrap(err)
		}
		defer f.Close()
		cmd.Stdin = f
	} else {
		cmd.Stdin = strings.NewReader(input.SQL)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, string(out)).WithCause(err)
	}
	return nil
}

func (e *genericServerEngine) ExecuteQuery(ctx context.Context, cfg *ContainerConfig, query string, opts QueryOptions) (*QueryResult, error) {
	if e.spec.clientCLI == "" {
		return nil, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
			fmt.Sprintf("%s has no scriptable client wired in", e.spec.id))
	}
	d := e.Defaults()
	args := e.spec.clientConnect(cfg, d)
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, e.spec.clientCLI), args...)
	cmd.Stdin = strings.NewReader(query)
	out, err := cmd.Output()
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, "query failed").WithCause(err)
	}
	return &QueryResult{Message: string(out), RowCount: 1}, nil
}

func (e *genericServerEngine) Connect(ctx context.Context, cfg *ContainerConfig, database string) error {
	if e.spec.clientCLI == "" {
		return apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
			fmt.Sprintf("%s has no interactive shell client wired in", e.spec.id))
	}
	d := e.Defaults()
	cmd := platform.NewShell().Command(ctx, ClientBinary(cfg, e.spec.clientCLI), e.spec.clientConnect(cfg, d)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (e *genericServerEngine) CreateDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	return apperrors.New(apperrors.CodeDatabaseCreateFailed, apperrors.SeverityError,
		fmt.Sprintf("creating additional databases is not wired in for %s", e.spec.id))
}

func (e *genericServerEngine) DropDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	return e.CreateDatabase(ctx, cfg, name)
}

func (e *genericServerEngine) GetDatabaseSize(ctx context.Context, cfg *ContainerConfig) (*int64, error) {
	d := e.Defaults()
	size, err := platform.DirSize(DataDirPath(e.root, cfg, d))
	if err != nil {
		return nil, nil
	}
	return &size, nil
}

func (e *genericServerEngine) GetConnectionString(cfg *ContainerConfig, database string) string {
	d := e.Defaults()
	return fmt.Sprintf("%s://127.0.0.1:%d", d.ConnectionScheme, cfg.Port)
}
