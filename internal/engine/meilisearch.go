package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/platform"
	"github.com/spindb/spindb/internal/procmgr"
)

// meilisearchEngine is HTTP-based like qdrantEngine; it additionally passes
// a master key to the server and its API calls when the container's
// Extras["masterKey"] is set. InitDataDir generates no key.
type meilisearchEngine struct {
	root string
	http *http.Client
}

// NewMeilisearch constructs the Meilisearch Engine implementation.
func NewMeilisearch(root string) Engine {
	return &meilisearchEngine{root: root, http: &http.Client{Timeout: 10 * time.Second}}
}

func (e *meilisearchEngine) ID() ID             { return Meilisearch }
func (e *meilisearchEngine) Defaults() Defaults { d, _ := DefaultsFor(Meilisearch); return d }

func (e *meilisearchEngine) baseURL(cfg *ContainerConfig) string {
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
}

func (e *meilisearchEngine) InitDataDir(ctx context.Context, cfg *ContainerConfig, opts InitOptions) error {
	d := e.Defaults()
	return os.MkdirAll(DataDirPath(e.root, cfg, d), 0o755)
}

func (e *meilisearchEngine) masterKey(cfg *ContainerConfig) string {
	return cfg.Extras["masterKey"]
}

func (e *meilisearchEngine) Start(ctx context.Context, cfg *ContainerConfig) (StartResult, error) {
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

	args := []string{
		"--http-addr", fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		"--db-path", dataDir,
		"--no-analytics",
	}
	if key := e.masterKey(cfg); key != "" {
		args = append(args, "--master-key", key)
	}

	cmd := platform.NewShell().Command(ctx, ServerBinary(cfg, d), args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			fmt.Sprintf("failed to start meilisearch: %v", err)).WithCause(err)
	}
	go func() { _ = cmd.Wait() }()

	ready := WaitForReady(ctx, readyTimeout(d), func(probeCtx context.Context) bool {
		return e.httpProbe(probeCtx, cfg, "/health")
	})
	if !ready {
		_ = procmgr.Stop(pidPath, cmd.Process.Pid, cfg.Port, 0)
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			"meilisearch did not become ready before the timeout")
	}

	if err := procmgr.WritePidFile(pidPath, procmgr.Handle{
		Pid: cmd.Process.Pid, Container: cfg.Name, Engine: string(Meilisearch), Port: cfg.Port,
	}); err != nil {
		return StartResult{}, apperrors.Wrap(err)
	}

	return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, "")}, nil
}

func (e *meilisearchEngine) httpProbe(ctx context.Context, cfg *ContainerConfig, path string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL(cfg)+path, nil)
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

func (e *meilisearchEngine) Stop(ctx context.Context, cfg *ContainerConfig) error {
	d := e.Defaults()
	pidPath := PidFilePath(e.root, cfg, d)
	running, pid, _ := procmgr.IsRunning(pidPath, cfg.Port, d.ServerBinaryName)
	if !running {
		return apperrors.New(apperrors.CodeProcessNotRunning, apperrors.SeverityWarn,
			fmt.Sprintf("container %q is not running", cfg.Name))
	}
	return procmgr.Stop(pidPath, pid, cfg.Port, gracefulWait(d))
}

func (e *meilisearchEngine) Status(ctx context.Context, cfg *ContainerConfig) (Status, error) {
	d := e.Defaults()
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName)
	if running {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

func (e *meilisearchEngine) Backup(ctx context.Context, cfg *ContainerConfig, outPath string, opts BackupOptions) (BackupResult, error) {
	_, err := e.doJSON(ctx, cfg, http.MethodPost, "/dumps", nil)
	if err != nil {
		return BackupResult{}, err
	}
	d := e.Defaults()
	dumpsDir := DataDirPath(e.root, cfg, d) + "/dumps"
	if err := platform.CreateArchive(ctx, dumpsDir, outPath); err != nil {
		return BackupResult{}, apperrors.New(apperrors.CodeCompleteFailure, apperrors.SeverityError,
			"failed to archive meilisearch dump output").WithCause(err)
	}
	info, serr := os.Stat(outPath)
	if serr != nil {
		return BackupResult{}, apperrors.Wrap(serr)
	}
	return BackupResult{Path: outPath, Size: info.Size(), Format: "dump-tar.gz"}, nil
}

func (e *meilisearchEngine) Restore(ctx context.Context, cfg *ContainerConfig, inPath string, opts RestoreOptions) error {
	d := e.Defaults()
	if running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName); running {
		return apperrors.New(apperrors.CodePartialFailure, apperrors.SeverityError,
			"restoring a meilisearch dump requires the container to be stopped first, then started with --import-dump")
	}
	return platform.ExtractArchive(ctx, inPath, DataDirPath(e.root, cfg, d)+"/dumps")
}

func (e *meilisearchEngine) DumpFromConnectionString(ctx context.Context, connectionURL, outPath string) (BackupResult, error) {
	return BackupResult{}, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
		"meilisearch has no remote dump-over-URL path; use backup against a local container")
}

func (e *meilisearchEngine) RunScript(ctx context.Context, cfg *ContainerConfig, input ScriptInput) error {
	var body []byte
	var err error
	if input.File != "" {
		body, err = os.ReadFile(input.File)
		if err != nil {
			return apperrors.Wrap(err)
		}
	} else {
		body = []byte(input.SQL)
	}
	_, perr := e.doJSON(ctx, cfg, http.MethodPost, "/indexes", body)
	return perr
}

func (e *meilisearchEngine) doJSON(ctx context.Context, cfg *ContainerConfig, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL(cfg)+path, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := e.masterKey(cfg); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, "request to meilisearch failed").WithCause(err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return out, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
			fmt.Sprintf("meilisearch returned status %d", resp.StatusCode)).WithContext("body", string(out))
	}
	return out, nil
}

func (e *meilisearchEngine) ExecuteQuery(ctx context.Context, cfg *ContainerConfig, query string, opts QueryOptions) (*QueryResult, error) {
	out, err := e.doJSON(ctx, cfg, http.MethodGet, "/indexes", nil)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Message: string(out), RowCount: 1}, nil
}

func (e *meilisearchEngine) Connect(ctx context.Context, cfg *ContainerConfig, database string) error {
	return apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
		"meilisearch has no interactive shell client; use its HTTP API via run/query instead")
}

func (e *meilisearchEngine) CreateDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	if err := validateDatabaseName(name); err != nil {
		return err
	}
	body := []byte(fmt.Sprintf(`{"uid":"%s"}`, name))
	_, err := e.doJSON(ctx, cfg, http.MethodPost, "/indexes", body)
	return err
}

func (e *meilisearchEngine) DropDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	_, err := e.doJSON(ctx, cfg, http.MethodDelete, "/indexes/"+name, nil)
	return err
}

func (e *meilisearchEngine) GetDatabaseSize(ctx context.Context, cfg *ContainerConfig) (*int64, error) {
	d := e.Defaults()
	size, err := platform.DirSize(DataDirPath(e.root, cfg, d))
	if err != nil {
		return nil, nil
	}
	return &size, nil
}

func (e *meilisearchEngine) GetConnectionString(cfg *ContainerConfig, database string) string {
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
}
