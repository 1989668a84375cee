package engine

import (
	"context"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/platform"
)

// ServerBinary returns the path to this engine's server executable inside
// cfg.BinaryPath, normalized to the bin/ shape the binary manager guarantees
// after extraction.
func ServerBinary(cfg *ContainerConfig, d Defaults) string {
	return filepath.Join(platform.BinarySubdir(cfg.BinaryPath), d.ServerBinaryName+platform.ExecutableExtension())
}

// ClientBinary returns the path to one of this engine's client tools inside
// cfg.BinaryPath.
func ClientBinary(cfg *ContainerConfig, name string) string {
	return filepath.Join(platform.BinarySubdir(cfg.BinaryPath), name+platform.ExecutableExtension())
}

// PidFilePath resolves the PID file location for cfg per the engine's
// pidInDataDir policy.
func PidFilePath(root string, cfg *ContainerConfig, d Defaults) string {
	return platform.ContainerPid(root, string(cfg.Engine), cfg.Name, d.PidFileName, d.DataSubdir, d.PidInDataDir)
}

// LogFilePath resolves the log file location for cfg.
func LogFilePath(root string, cfg *ContainerConfig, d Defaults) string {
	return platform.ContainerLog(root, string(cfg.Engine), cfg.Name, d.LogFileName)
}

// DataDirPath resolves the data directory (or data file) location for cfg.
func DataDirPath(root string, cfg *ContainerConfig, d Defaults) string {
	return platform.ContainerData(root, string(cfg.Engine), cfg.Name, d.DataSubdir)
}

// readyTimeout converts an engine's configured readiness deadline to a
// time.Duration, falling back to a conservative default for rows that never
// set one explicitly.
func readyTimeout(d Defaults) time.Duration {
	if d.ReadyTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.ReadyTimeoutSeconds) * time.Second
}

// gracefulWait converts an engine's configured stop grace window to a
// time.Duration, letting procmgr.Stop fall back to its own platform default
// when zero.
func gracefulWait(d Defaults) time.Duration {
	if d.GracefulStopSeconds <= 0 {
		return 0
	}
	return time.Duration(d.GracefulStopSeconds) * time.Second
}

// WaitForReady polls probe on a fixed interval until it returns true, the
// deadline passes, or ctx is cancelled — the one piece of non-trivial
// coordination every Start implementation needs.
func WaitForReady(ctx context.Context, timeout time.Duration, probe func(ctx context.Context) bool) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		if probe(ctx) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// runProbeCommand runs a short-lived client invocation as a readiness probe
// and reports whether it exited zero within a tight per-attempt timeout.
func runProbeCommand(ctx context.Context, name string, args ...string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(probeCtx, name, args...)
	return cmd.Run() == nil
}

// probeTCP is a readiness probe for engines whose client tooling is HTTP or
// wire-protocol based rather than a CLI ping: it just checks the port is
// accepting connections.
func probeTCP(ctx context.Context, port int) bool {
	return !platform.IsPortAvailable(port)
}

// parseTabularOutput turns tab-separated, newline-delimited CLI output (the
// shape psql -A -F '\t', mysql --batch, and similar client flags all produce)
// into a QueryResult. The first line is treated as the header row.
func parseTabularOutput(out string) *QueryResult {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	res := &QueryResult{}
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return res
	}
	res.Columns = strings.Split(lines[0], "\t")
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		cells := strings.Split(line, "\t")
		row := make([]interface{}, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		res.Rows = append(res.Rows, row)
	}
	res.RowCount = len(res.Rows)
	return res
}

// validateDatabaseName enforces ^[A-Za-z][A-Za-z0-9_]*$: hyphens are
// rejected rather than silently quoted, since several engines require
// quoted identifiers for them.
func validateDatabaseName(name string) error {
	if name == "" {
		return apperrors.New(apperrors.CodeInvalidDatabaseName, apperrors.SeverityError, "database name must not be empty")
	}
	first := rune(name[0])
	if !((first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		return apperrors.New(apperrors.CodeInvalidDatabaseName, apperrors.SeverityError,
			"database name must start with a letter").WithContext("name", name)
	}
	for _, r := range name {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum && r != '_' {
			return apperrors.New(apperrors.CodeInvalidDatabaseName, apperrors.SeverityError,
				"database name may only contain letters, digits, and underscore").
				WithContext("name", name)
		}
	}
	return nil
}

// portString is a small convenience for building client-tool argv slices.
func portString(port int) string { return strconv.Itoa(port) }
