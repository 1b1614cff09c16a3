// Package websocket - websocket/session_state.go
package websocket

// State is the lifecycle tag of one connection's session.
type State int

const (
	// StateIdle: no controller owned; messages are dropped.
	StateIdle State = iota
	// StateConnecting: authenticated, controller setup in progress.
	StateConnecting
	// StateActive: authenticated and owning the controller.
	StateActive
	// StateShuttingDown: disconnect in progress.
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting-down"
	}
	return "unknown"
}

// Authenticated reports whether a session in this state accepts control messages
// or is about to. Credentials are never checked; connecting grants access.
func (s State) Authenticated() bool {
	return s == StateConnecting || s == StateActive
}

// Health classifies the outcome of the controller setup sequence.
type Health int

const (
	// HealthUnknown: setup has not run.
	HealthUnknown Health = iota
	// HealthHealthy: setup succeeded, possibly after retries.
	HealthHealthy
	// HealthDegraded: every attempt failed; the controller was started best effort.
	HealthDegraded
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	}
	return "unknown"
}

// SetupResult is the typed outcome of bringing the controller up.
type SetupResult struct {
	Health   Health
	Attempts int
	Err      error
}

// Configured reports whether the controller came up.
func (r SetupResult) Configured() bool {
	return r.Health == HealthHealthy
}
