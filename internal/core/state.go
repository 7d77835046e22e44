package core

// State is the connection state of a Session.
type State int

const (
	// StateIdle: no connection and nothing scheduled.
	StateIdle State = iota
	// StateConnecting: a dial is in flight.
	StateConnecting
	// StateOpen: the connection is live.
	StateOpen
	// StateClosing: the connection is being shut down on purpose.
	StateClosing
	// StateReconnectPending: the connection dropped and a reconnect is scheduled.
	StateReconnectPending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnectPending:
		return "reconnect_pending"
	default:
		return "unknown"
	}
}
