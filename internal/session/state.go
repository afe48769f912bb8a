// Package session implements the exchange connection, authentication, and
// readiness state machine that owns the socket and routes inbound events.
package session

// State enumerates the session lifecycle. Values are ordered: a command
// may only be sent once the state has reached StateConnected.
type State int

const (
	// StateDisconnected is the initial state and the fallback after any
	// socket error or close.
	StateDisconnected State = iota
	// StateConnecting marks an in-flight dial attempt.
	StateConnecting
	// StateConnected marks an open socket.
	StateConnected
	// StateAuthenticating marks an in-flight login.
	StateAuthenticating
	// StateAuthenticated marks a confirmed login.
	StateAuthenticated
	// StateReady marks an authenticated session with reference data loaded.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}
