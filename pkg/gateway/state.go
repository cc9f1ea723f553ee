package gateway

// State is the connection state machine's current position. Transitions only
// happen inside the client; callers observe it through Client.State.
type State int

const (
	// StateIdle means constructed, never connected, between reconnect
	// attempts, or disposed.
	StateIdle State = iota
	// StateOpening means a socket has been created and the transport-level
	// open is pending.
	StateOpening
	// StateAwaitingHello means the transport is open and the client is
	// waiting for the server's Hello instruction.
	StateAwaitingHello
	// StateAuthenticating means Hello was received and the client is
	// fetching a token and sending Identify or Resume.
	StateAuthenticating
	// StateLive means heartbeats are running and dispatch frames flow to
	// subscribers.
	StateLive
	// StateClosing means teardown of the current socket is in progress.
	StateClosing
)

// String returns the state's name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateAuthenticating:
		return "authenticating"
	case StateLive:
		return "live"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}
