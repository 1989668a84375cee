// Package procmgr implements PID file persistence, liveness verification
// that distinguishes a stale pidfile from a truly running process, and the
// graceful-then-force termination sequence. Adapted from the prior implementation's
// process handling split between pkg/commands/os.go (Kill/
// PrepareForChildren) and the per-OS os_default_platform.go/os_windows.go
// files, generalized from "kill a child exec.Cmd we spawned" to "manage a
// pidfile describing a process we may not hold a live *exec.Cmd for any
// more" (the managed process outlives the invocation that started it).
package procmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/platform"
)

// Handle is the persisted PID file body.
type Handle struct {
	Pid       int    `json:"pid"`
	Container string `json:"container"`
	Engine    string `json:"engine"`
	Port      int    `json:"port,omitempty"`
}

// WritePidFile writes handle as JSON to pidPath, replacing whatever the file
// held.
func WritePidFile(pidPath string, h Handle) error {
	data, err := json.Marshal(h)
	if err != nil {
		return apperrors.Wrap(err)
	}
	return os.WriteFile(pidPath, data, 0o644)
}

// ReadPidFile parses a PID file. It tolerates two shapes: our own JSON
// handle, and a bare numeric pid (the shape some engines, like PostgreSQL's
// postmaster.pid first line, write themselves).
func ReadPidFile(pidPath string) (Handle, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Handle{}, apperrors.New(apperrors.CodePidFileReadFailed, apperrors.SeverityWarn, "pid file does not exist")
		}
		return Handle{}, apperrors.New(apperrors.CodePidFileReadFailed, apperrors.SeverityError, err.Error()).WithCause(err)
	}

	var h Handle
	if err := json.Unmarshal(data, &h); err == nil && h.Pid > 0 {
		return h, nil
	}

	firstLine := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	var pid int
	if _, err := fmt.Sscanf(firstLine, "%d", &pid); err != nil || pid <= 0 {
		return Handle{}, apperrors.New(apperrors.CodePidFileCorrupt, apperrors.SeverityError, "pid file content is not a recognizable pid")
	}
	return Handle{Pid: pid}, nil
}

// RemovePidFile deletes the pid file; missing is not an error.
func RemovePidFile(pidPath string) error {
	err := os.Remove(pidPath)
	if err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(err)
	}
	return nil
}

// IsStale reports whether pid in a PID file is stale: the process doesn't
// exist, or one exists under that pid but isn't recognizably the expected
// command. expectedCommandFragment may be empty to skip the command-name
// check (some engines' launchers rename themselves unpredictably).
func IsStale(pid int, expectedCommandFragment string) bool {
	if !platform.IsProcessAlive(pid) {
		return true
	}
	if expectedCommandFragment == "" {
		return false
	}
	name, err := platform.CommandNameForPid(pid)
	if err != nil {
		// we can't prove ownership either way; treat as alive rather than
		// risk killing an unrelated process out from under a PID we can't
		// confidently attribute
		return false
	}
	return !strings.Contains(strings.ToLower(name), strings.ToLower(expectedCommandFragment))
}

// IsRunning resolves liveness for a container: PID file first, falling back
// to a port lookup when the pidfile is absent, corrupt, or stale, since some
// engines never write a usable pidfile of their own. When resolution
// succeeds via the port fallback, the caller is expected to persist a fresh
// PID file (the start procedure's job, not IsRunning's).
func IsRunning(pidPath string, port int, expectedCommandFragment string) (bool, int, error) {
	h, err := ReadPidFile(pidPath)
	if err == nil && !IsStale(h.Pid, expectedCommandFragment) {
		return true, h.Pid, nil
	}

	if port <= 0 {
		return false, 0, nil
	}

	pid, ferr := platform.FindProcessByPort(port)
	if ferr != nil {
		return false, 0, nil
	}
	return true, pid, nil
}

// Stop runs the graceful-then-force termination sequence: SIGTERM, wait
// grace, SIGKILL if still alive, wait again, remove the PID file. It also
// waits for the port to be released afterward, tolerating sockets that
// linger in TIME_WAIT past process exit.
func Stop(pidPath string, pid int, port int, grace time.Duration) error {
	if grace <= 0 {
		grace = platform.GracefulTerminationWait
	}

	if err := platform.TerminateProcess(pid, false); err != nil && platform.IsProcessAlive(pid) {
		return apperrors.New(apperrors.CodeProcessStopTimeout, apperrors.SeverityError,
			fmt.Sprintf("failed to send graceful termination to pid %d: %v", pid, err)).WithCause(err)
	}

	deadline := time.Now().Add(grace)
	for platform.IsProcessAlive(pid) && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}

	if platform.IsProcessAlive(pid) {
		if err := platform.TerminateProcess(pid, true); err != nil {
			return apperrors.New(apperrors.CodeProcessStopTimeout, apperrors.SeverityError,
				fmt.Sprintf("failed to force-kill pid %d: %v", pid, err)).WithCause(err)
		}
		killDeadline := time.Now().Add(grace)
		for platform.IsProcessAlive(pid) && time.Now().Before(killDeadline) {
			time.Sleep(100 * time.Millisecond)
		}
	}

	if platform.IsProcessAlive(pid) {
		return apperrors.New(apperrors.CodeProcessStopTimeout, apperrors.SeverityError,
			fmt.Sprintf("pid %d still alive after force-kill", pid))
	}

	if port > 0 {
		platform.WaitForPortFree(port, grace)
	}

	return RemovePidFile(pidPath)
}
