package room

// Close codes used when the room terminates a session. They share the
// numeric space of WebSocket close codes.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseServerError   = 1011
	CloseTryAgainLater = 1013

	// CloseInactivity is used by the liveness sweep.
	CloseInactivity = CloseGoingAway
)

// Close reasons sent with room initiated closes.
const (
	ReasonJoinFailed = "Server error during join"
	ReasonInactivity = "Inactivity timeout"
	ReasonDisposed   = "Room disposed"
	ReasonRoomFull   = "Room is full"
)

// EventKind identifies an outbound event.
type EventKind string

const (
	EventWelcome EventKind = "welcome"
	EventState   EventKind = "state"
)

// Event is pushed from the room to a session. Exactly one of Welcome or
// State is set, according to Kind.
type Event struct {
	Kind    EventKind
	Welcome *Welcome
	State   *Snapshot
}

// Session is the room's handle on one transport connection.
//
// Send and Close are called from the room goroutine and must not block on
// the network. Close must be idempotent; the transport reports the
// resulting disconnect back through Room.Leave.
type Session interface {
	ID() string
	Send(event Event) error
	Close(code int, reason string)
}
