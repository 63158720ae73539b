package session

import "time"

// EventKind identifies what happened on a session
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventError
	EventDataReceived
)

// String returns the string representation of EventKind
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventDataReceived:
		return "data"
	default:
		return "unknown"
	}
}

// Event is published on Session.Events.
//
// Message holds the connection summary for EventConnected, the received
// (already trimmed) line for EventDataReceived and the user-facing text for
// EventError. Err is only set for EventError.
type Event struct {
	Kind    EventKind
	Message string
	Err     error
	Time    time.Time
}

func newEvent(kind EventKind, msg string, err error) Event {
	return Event{Kind: kind, Message: msg, Err: err, Time: time.Now()}
}
