package session

// State is the connection state of a [Manager]. Transitions are owned
// exclusively by the Manager; observers only ever read it.
type State int

const (
	// StateIdle means no session is running. The only state Start accepts
	// besides StateError.
	StateIdle State = iota

	// StateConnecting covers the whole start sequence, from microphone
	// acquisition through negotiation.
	StateConnecting

	// StateConnected means the control channel is open, the session
	// configuration has been transmitted, and audio is flowing.
	StateConnected

	// StateDisconnected means the remote or local side closed the
	// connection. Local resources are already torn down.
	StateDisconnected

	// StateError means the start sequence or the live connection failed.
	// ErrorMessage carries the user-visible reason. Recoverable only by a
	// fresh Start.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
