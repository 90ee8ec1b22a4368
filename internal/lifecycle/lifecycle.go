// Package lifecycle holds process-wide flags consulted by the health handler.
package lifecycle

import "sync/atomic"

var (
	shuttingDown atomic.Bool
	ready        atomic.Bool
)

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received
// or when backend recovery is exhausted. Health returns 503 shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// SetReady marks the first catalog load as complete.
func SetReady(v bool) {
	ready.Store(v)
}

// IsReady reports whether the catalog has loaded. Health reports starting until then.
func IsReady() bool {
	return ready.Load()
}
