package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/platform"
	"github.com/spindb/spindb/internal/procmgr"
)

// qdrantEngine talks to its server over plain HTTP rather than shelling out
// to a bundled client binary: Qdrant (like Meilisearch and the other search/
// vector engines) ships no interactive CLI, only a REST API.
type qdrantEngine struct {
	root string
	http *http.Client
}

// NewQdrant constructs the Qdrant Engine implementation.
func NewQdrant(root string) Engine {
	return &qdrantEngine{root: root, http: &http.Client{Timeout: 10 * time.Second}}
}

func (e *qdrantEngine) ID() ID             { return Qdrant }
func (e *qdrantEngine) Defaults() Defaults { d, _ := DefaultsFor(Qdrant); return d }

func (e *qdrantEngine) baseURL(cfg *ContainerConfig) string {
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
}

func (e *qdrantEngine) InitDataDir(ctx context.Context, cfg *ContainerConfig, opts InitOptions) error {
	d := e.Defaults()
	return os.MkdirAll(DataDirPath(e.root, cfg, d), 0o755)
}

func (e *qdrantEngine) Start(ctx context.Context, cfg *ContainerConfig) (StartResult, error) {
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

	cmd := platform.NewShell().Command(ctx, ServerBinary(cfg, d))
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("QDRANT__SERVICE__HTTP_PORT=%d", cfg.Port),
		fmt.Sprintf("QDRANT__STORAGE__STORAGE_PATH=%s", dataDir),
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			fmt.Sprintf("failed to start qdrant: %v", err)).WithCause(err)
	}
	go func() { _ = cmd.Wait() }()

	ready := WaitForReady(ctx, readyTimeout(d), func(probeCtx context.Context) bool {
		return e.httpProbe(probeCtx, cfg, "/healthz")
	})
	if !ready {
		_ = procmgr.Stop(pidPath, cmd.Process.Pid, cfg.Port, 0)
		return StartResult{}, apperrors.New(apperrors.CodeProcessStartFailed, apperrors.SeverityError,
			"qdrant did not become ready before the timeout")
	}

	if err := procmgr.WritePidFile(pidPath, procmgr.Handle{
		Pid: cmd.Process.Pid, Container: cfg.Name, Engine: string(Qdrant), Port: cfg.Port,
	}); err != nil {
		return StartResult{}, apperrors.Wrap(err)
	}

	return StartResult{Port: cfg.Port, ConnectionString: e.GetConnectionString(cfg, "")}, nil
}

func (e *qdrantEngine) httpProbe(ctx context.Context, cfg *ContainerConfig, path string) bool {
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

func (e *qdrantEngine) Stop(ctx context.Context, cfg *ContainerConfig) error {
	d := e.Defaults()
	pidPath := PidFilePath(e.root, cfg, d)
	running, pid, _ := procmgr.IsRunning(pidPath, cfg.Port, d.ServerBinaryName)
	if !running {
		return apperrors.New(apperrors.CodeProcessNotRunning, apperrors.SeverityWarn,
			fmt.Sprintf("container %q is not running", cfg.Name))
	}
	return procmgr.Stop(pidPath, pid, cfg.Port, gracefulWait(d))
}

func (e *qdrantEngine) Status(ctx context.Context, cfg *ContainerConfig) (Status, error) {
	d := e.Defaults()
	running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName)
	if running {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

func (e *qdrantEngine) Backup(ctx context.Context, cfg *ContainerConfig, outPath string, opts BackupOptions) (BackupResult, error) {
	d := e.Defaults()
	if running, _, _ := procmgr.IsRunning(PidFilePath(e.root, cfg, d), cfg.Port, d.ServerBinaryName); running {
		return BackupResult{}, apperrors.New(apperrors.CodePartialFailure, apperrors.SeverityError,
			"qdrant's storage directory must be backed up while the container is stopped")
	}
	if err := platform.CreateArchive(ctx, DataDirPath(e.root, cfg, d), outPath); err != nil {
		return BackupResult{}, apperrors.New(apperrors.CodeCompleteFailure, apperrors.SeverityError,
			"failed to archive qdrant's storage directory").WithCause(err)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		return BackupResult{}, apperrors.Wrap(err)
	}
	return BackupResult{Path: outPath, Size: info.Size(), Format: "tar.gz"}, nil
}

func (e *qdrantEngine) Restore(ctx context.Context, cfg *ContainerConfig, inPath string, opts RestoreOptions) error {
	d := e.Defaults()
	return platform.ExtractArchive(ctx, inPath, DataDirPath(e.root, cfg, d))
}

func (e *qdrantEngine) DumpFromConnectionString(ctx context.Context, connectionURL, outPath string) (BackupResult, error) {
	return BackupResult{}, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
		"qdrant has no remote snapshot-over-URL path; use backup against a local container")
}

func (e *qdrantEngine) RunScript(ctx context.Context, cfg *ContainerConfig, input ScriptInput) error {
	var body []byte
	var err error
	if input.File != "" {
		body, err = os.ReadFile(input.File)
	} else {
		body = []byte(input.SQL)
	}
	if err != nil {
		return apperrors.Wrap(err)
	}
	_, perr := e.doJSON(ctx, cfg, http.MethodPost, "/collections/points/scroll", body)
	return perr
}

func (e *qdrantEngine) doJSON(ctx context.Context, cfg *ContainerConfig, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL(cfg)+path, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError, "request to qdrant failed").WithCause(err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return out, apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
			fmt.Sprintf("qdrant returned status %d", resp.StatusCode)).WithContext("body", string(out))
	}
	return out, nil
}

func (e *qdrantEngine) ExecuteQuery(ctx context.Context, cfg *ContainerConfig, query string, opts QueryOptions) (*QueryResult, error) {
	method := http.MethodGet
	if len(query) > 0 && query[0] == '{' {
		method = http.MethodPost
	}
	out, err := e.doJSON(ctx, cfg, method, "/collections", []byte(query))
	if err != nil {
		return nil, err
	}
	return &QueryResult{Message: string(out), RowCount: 1}, nil
}

func (e *qdrantEngine) Connect(ctx context.Context, cfg *ContainerConfig, database string) error {
	return apperrors.New(apperrors.CodeConnectionFailed, apperrors.SeverityError,
		"qdrant has no interactive shell client; use its HTTP API via run/query instead")
}

func (e *qdrantEngine) CreateDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	if err := validateDatabaseName(name); err != nil {
		return err
	}
	body, _ := json.Marshal(map[string]any{"vectors": map[string]any{"size": 128, "distance": "Cosine"}})
	_, err := e.doJSON(ctx, cfg, http.MethodPut, "/collections/"+name, body)
	return err
}

func (e *qdrantEngine) DropDatabase(ctx context.Context, cfg *ContainerConfig, name string) error {
	_, err := e.doJSON(ctx, cfg, http.MethodDelete, "/collections/"+name, nil)
	return err
}

func (e *qdrantEngine) GetDatabaseSize(ctx context.Context, cfg *ContainerConfig) (*int64, error) {
	d := e.Defaults()
	size, err := platform.DirSize(DataDirPath(e.root, cfg, d))
	if err != nil {
		return nil, nil
	}
	return &size, nil
}

func (e *qdrantEngine) GetConnectionString(cfg *ContainerConfig, database string) string {
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
}
