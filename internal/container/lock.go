package container

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/platform"
)

// Lock is an advisory, per-container lock acquired for the duration of
// Create and Delete. It is not mandated by any external contract — the
// containers directory has no cross-process locking requirement — but two
// simultaneous create calls with the same name can otherwise race. Start,
// Stop, Clone, Rename, AddDatabase and RemoveDatabase do not acquire it.
type Lock struct {
	path string
}

// Acquire creates containers/{engine}/{name}/.lock exclusively, recording
// this process's pid. If a lock file already exists, it is treated as stale
// (and replaced) when the recorded pid is no longer alive; otherwise
// acquisition fails.
func Acquire(root string, eng, name string) (*Lock, error) {
	dir := platform.ContainerDir(root, eng, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(err)
	}
	path := platform.ContainerLockFile(root, eng, name)

	if tryCreateExclusive(path) {
		return &Lock{path: path}, nil
	}

	if isStaleLock(path) {
		_ = os.Remove(path)
		if tryCreateExclusive(path) {
			return &Lock{path: path}, nil
		}
	}

	return nil, apperrors.New(apperrors.CodeContainerRunning, apperrors.SeverityError,
		fmt.Sprintf("container %q is locked by another in-progress operation", name)).
		WithRemediation("wait for the other operation to finish, or remove the stale .lock file if you're sure none is running")
}

func tryCreateExclusive(path string) bool {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return false
	}
	defer f.Close()
	fmt.Fprintf(f, "%d", os.Getpid())
	return true
}

func isStaleLock(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return true
	}
	return !platform.IsProcessAlive(pid)
}

// Release removes the lock file. Safe to call even if the lock was never
// cleanly acquired.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(err)
	}
	return nil
}
