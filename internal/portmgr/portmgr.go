// Package portmgr implements advisory port
// allocation within an engine's configured range. Grounded on the same
// "probe a real socket" idea the prior implementation's socket_detection_*.go files use
// to find a docker/podman host socket, generalized here to binding a
// loopback TCP port instead of dialing a Unix socket.
package portmgr

import (
	"fmt"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/platform"
)

// Range is an inclusive [Start, End] port range.
type Range struct {
	Start int
	End   int
}

// IsPortAvailable reports whether p is currently bindable on 127.0.0.1.
func IsPortAvailable(p int) bool {
	return platform.IsPortAvailable(p)
}

// AllocatePort scans rng starting at preferred (if preferred is inside the
// range and free, it wins outright), then the rest of the range in
// ascending order, returning the first free port. Allocation is advisory:
// nothing reserves the port, the caller's subsequent bind is what actually
// claims it .
func AllocatePort(rng Range, preferred int, inUse map[int]bool) (int, error) {
	if preferred >= rng.Start && preferred <= rng.End && !inUse[preferred] && IsPortAvailable(preferred) {
		return preferred, nil
	}

	for p := rng.Start; p <= rng.End; p++ {
		if inUse[p] {
			continue
		}
		if IsPortAvailable(p) {
			return p, nil
		}
	}

	return 0, apperrors.New(apperrors.CodePortRangeExhausted, apperrors.SeverityError,
		fmt.Sprintf("no free port in range %d-%d", rng.Start, rng.End)).
		WithRemediation("stop an unused container in this engine's range or widen the configured range")
}
