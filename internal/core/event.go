package core

// EventKind is a notification the session emits to its observer.
type EventKind int

const (
	// EventStateChanged reports a connection state transition.
	EventStateChanged EventKind = iota
	// EventHistoryLoaded reports that the transcript was (re)filled from the message history.
	EventHistoryLoaded
	// EventMessageAppended reports a message newly added to the transcript.
	EventMessageAppended
	// EventMessageRead reports that a transcript message was marked read.
	EventMessageRead
	// EventConnectionInfo carries the server's connection_established text.
	EventConnectionInfo
	// EventNotice is a transient, user-visible problem that does not end the session.
	EventNotice
	// EventLeft reports that the user left the room.
	EventLeft
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventHistoryLoaded:
		return "history_loaded"
	case EventMessageAppended:
		return "message_appended"
	case EventMessageRead:
		return "message_read"
	case EventConnectionInfo:
		return "connection_info"
	case EventNotice:
		return "notice"
	case EventLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Event describes what happened in the session.
type Event struct {
	Kind      EventKind
	RoomID    string
	State     State
	Message   Message
	Messages  []Message // For EventHistoryLoaded
	MessageID int64
	Own       bool // Message was sent by the current user
	Text      string
	Err       error
}

// Observer receives session events. Implementations must not call back into the
// session synchronously from OnEvent.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f(ev).
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}
