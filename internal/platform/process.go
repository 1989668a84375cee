package platform

import (
	"fmt"
	"net"
	"time"
)

// IsPortAvailable attempts to bind a listening socket on 127.0.0.1:port;
// success means the port is free. It closes the socket immediately per
// advisory check only, and never reserves the port.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// WaitForPortFree polls until the port is bindable again or the deadline
// elapses. After stop, Windows needs this more than other platforms since
// TIME_WAIT lingers longer there, but the same poll loop works everywhere.
func WaitForPortFree(port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if IsPortAvailable(port) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// WaitForPortOpen polls until something is listening on the port, used by
// readiness probes for engines whose only external signal is "the port is
// now accepting connections."
func WaitForPortOpen(port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(200 * time.Millisecond)
	}
}
