package room

import "errors"

var (
	// ErrRoomFull rejects a join once MaxPlayers participants are present and
	// capacity is enforced.
	ErrRoomFull = errors.New("room is full")
	// ErrRoomDisposed is returned by every operation after Dispose.
	ErrRoomDisposed = errors.New("room disposed")
	// ErrRoomNotStarted is returned before Start has been called.
	ErrRoomNotStarted = errors.New("room not started")
	// ErrDuplicateSession rejects a join for a session id that already has a record.
	ErrDuplicateSession = errors.New("session already joined")
	// ErrInvalidSession rejects a nil session or one without an id.
	ErrInvalidSession = errors.New("invalid session")
	// ErrUnknownSession is returned when a move addresses a session with no record.
	ErrUnknownSession = errors.New("unknown session")
	// ErrJoinFailed wraps internal faults during join. The session has been
	// closed with CloseServerError by the time it is returned.
	ErrJoinFailed = errors.New("join failed")
	// ErrInvalidMove wraps validation failures.
	ErrInvalidMove = errors.New("invalid move")
	// ErrMoveThrottled is returned for moves beyond the per-session rate limit.
	ErrMoveThrottled = errors.New("move throttled")
)
