package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"metaverse/server/internal/telemetry"
	"metaverse/server/logging"
	"metaverse/server/logging/lifecycle"
	"metaverse/server/logging/network"
)

// Lifecycle is the room state machine: Created -> Active -> Disposed.
type Lifecycle int32

const (
	LifecycleCreated Lifecycle = iota
	LifecycleActive
	LifecycleDisposed
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleCreated:
		return "created"
	case LifecycleActive:
		return "active"
	case LifecycleDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Info is a lock-free summary of a room used by the registry and diagnostics.
type Info struct {
	ID              string    `json:"roomId"`
	Name            string    `json:"name"`
	MaxPlayers      int       `json:"maxPlayers"`
	EnforceCapacity bool      `json:"enforceCapacity"`
	Participants    int       `json:"clients"`
	Lifecycle       string    `json:"state"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Room is the authority over one shared world state. Every handler (join,
// leave, move, sweep, dispose) runs on the room's own goroutine in the order
// it was submitted, so the State is never accessed concurrently.
type Room struct {
	id        string
	cfg       Config
	logger    telemetry.Logger
	publisher logging.Publisher
	metrics   telemetry.Metrics
	clock     logging.Clock
	createdAt time.Time

	commands     chan func()
	done         chan struct{}
	lifecycle    atomic.Int32
	participants atomic.Int32

	// Owned by the room goroutine.
	state    *State
	sessions map[string]Session
	evicted  map[string]uint64
	sweeps   uint64
	throttle *moveThrottle
	rng      *rand.Rand
}

// New constructs a room in the Created state. Call Start to activate it.
func New(id string, cfg Config) *Room {
	cfg = cfg.Normalized()
	r := &Room{
		id:        id,
		cfg:       cfg,
		logger:    cfg.Logger,
		publisher: logging.WithFields(cfg.Publisher, map[string]any{"roomName": cfg.Name}),
		metrics:   cfg.Metrics,
		clock:     cfg.Clock,
		commands:  make(chan func(), cfg.CommandBuffer),
		done:      make(chan struct{}),
		state:     NewState(id, cfg.MaxPlayers),
		sessions:  make(map[string]Session),
		evicted:   make(map[string]uint64),
		throttle:  newMoveThrottle(cfg.MoveRateLimit),
		rng:       cfg.Rand,
	}
	r.createdAt = r.clock.Now()
	return r
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) Name() string {
	return r.cfg.Name
}

func (r *Room) Config() Config {
	return r.cfg
}

func (r *Room) Lifecycle() Lifecycle {
	return Lifecycle(r.lifecycle.Load())
}

// Done is closed once the room has been disposed.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Participants reports the current participant count without a round trip
// through the room goroutine.
func (r *Room) Participants() int {
	return int(r.participants.Load())
}

// HasCapacity reports whether another join would currently fit.
func (r *Room) HasCapacity() bool {
	if r.Lifecycle() != LifecycleActive {
		return false
	}
	if !r.cfg.EnforceCapacity {
		return true
	}
	return r.Participants() < r.cfg.MaxPlayers
}

func (r *Room) Info() Info {
	return Info{
		ID:              r.id,
		Name:            r.cfg.Name,
		MaxPlayers:      r.cfg.MaxPlayers,
		EnforceCapacity: r.cfg.EnforceCapacity,
		Participants:    r.Participants(),
		Lifecycle:       r.Lifecycle().String(),
		CreatedAt:       r.createdAt,
	}
}

// Start arms the sweep timer and moves the room to Active. Starting an
// active room is a no-op.
func (r *Room) Start() error {
	if !r.lifecycle.CompareAndSwap(int32(LifecycleCreated), int32(LifecycleActive)) {
		if r.Lifecycle() == LifecycleDisposed {
			return ErrRoomDisposed
		}
		return nil
	}
	go r.run()
	r.metrics.Add(telemetry.MetricRoomsCreated, 1)
	r.logger.Printf("[room %s] %s created maxPlayers=%d timeout=%s sweep=%s", r.id, r.cfg.Name, r.cfg.MaxPlayers, r.cfg.InactivityTimeout, r.cfg.SweepInterval)
	lifecycle.RoomCreated(context.Background(), r.publisher, r.id, lifecycle.RoomPayload{
		Name:       r.cfg.Name,
		MaxPlayers: r.cfg.MaxPlayers,
	})
	return nil
}

// Join creates a participant for session, sends it the welcome event and
// broadcasts the new state. On an internal fault the session is closed with
// CloseServerError and no record is left behind.
func (r *Room) Join(ctx context.Context, session Session, opts JoinOptions) (Welcome, error) {
	if session == nil || session.ID() == "" {
		return Welcome{}, ErrInvalidSession
	}
	var welcome Welcome
	var joinErr error
	if err := r.call(ctx, "join", func() {
		welcome, joinErr = r.handleJoin(session, opts)
	}); err != nil {
		return Welcome{}, err
	}
	return welcome, joinErr
}

// Leave removes the participant for sessionID. It reports whether a record
// was removed; leaving twice is not an error.
func (r *Room) Leave(ctx context.Context, sessionID string, voluntary bool) (bool, error) {
	var removed bool
	if err := r.call(ctx, "leave", func() {
		removed = r.handleLeave(sessionID, voluntary)
	}); err != nil {
		return false, err
	}
	return removed, nil
}

// Move applies a move message on behalf of sessionID. The record addressed
// is always the sender's own. Rejected moves leave the state untouched.
func (r *Room) Move(ctx context.Context, sessionID string, m Move) error {
	var moveErr error
	if err := r.call(ctx, "move", func() {
		moveErr = r.handleMove(sessionID, m)
	}); err != nil {
		return err
	}
	return moveErr
}

// Sweep runs one liveness sweep immediately, in order with other handlers.
func (r *Room) Sweep(ctx context.Context) error {
	return r.call(ctx, "sweep", r.sweep)
}

// Snapshot returns a copy of the current state.
func (r *Room) Snapshot(ctx context.Context) (Snapshot, error) {
	var snapshot Snapshot
	if err := r.call(ctx, "snapshot", func() {
		snapshot = r.state.SnapshotAll(r.clock.Now())
	}); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

// Dispose stops the sweep, closes every remaining session and releases the
// state. It waits for the room goroutine to exit. Disposing twice is a no-op.
func (r *Room) Dispose(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.lifecycle.CompareAndSwap(int32(LifecycleCreated), int32(LifecycleDisposed)) {
		close(r.done)
		r.publishDisposed(0, 0)
		return nil
	}
	err := r.submit(ctx, func() { r.guard("dispose", r.dispose) })
	if err != nil && !errors.Is(err, ErrRoomDisposed) {
		return err
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) run() {
	defer close(r.done)

	var ticks <-chan time.Time
	if r.cfg.SweepInterval > 0 {
		ticker := time.NewTicker(r.cfg.SweepInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case fn := <-r.commands:
			fn()
		case <-ticks:
			r.guard("sweep", r.sweep)
		}
		if r.Lifecycle() == LifecycleDisposed {
			return
		}
	}
}

func (r *Room) submit(ctx context.Context, fn func()) error {
	switch r.Lifecycle() {
	case LifecycleCreated:
		return ErrRoomNotStarted
	case LifecycleDisposed:
		return ErrRoomDisposed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case r.commands <- fn:
		return nil
	case <-r.done:
		return ErrRoomDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call submits fn and waits until the room goroutine has run it.
func (r *Room) call(ctx context.Context, handler string, fn func()) error {
	if ctx == nil {
		ctx = context.Background()
	}
	finished := make(chan struct{})
	if err := r.submit(ctx, func() {
		defer close(finished)
		r.guard(handler, fn)
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrRoomDisposed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// guard is the handler boundary: a panic is logged and contained.
func (r *Room) guard(handler string, fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.metrics.Add(telemetry.MetricHandlerPanics, 1)
			r.logger.Printf("[room %s] recovered from panic in %s handler: %v", r.id, handler, recovered)
		}
	}()
	fn()
}

func (r *Room) handleJoin(session Session, opts JoinOptions) (welcome Welcome, err error) {
	sessionID := session.ID()
	if _, exists := r.state.Get(sessionID); exists {
		r.metrics.Add(telemetry.MetricJoinsRejected, 1)
		return Welcome{}, ErrDuplicateSession
	}
	if r.cfg.EnforceCapacity && r.state.Len() >= r.cfg.MaxPlayers {
		r.metrics.Add(telemetry.MetricJoinsRejected, 1)
		r.logger.Printf("[room %s] rejecting %s: room full (%d/%d)", r.id, sessionID, r.state.Len(), r.cfg.MaxPlayers)
		return Welcome{}, ErrRoomFull
	}

	written := false
	announced := false
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", ErrJoinFailed, recovered)
		}
		if err == nil || !errors.Is(err, ErrJoinFailed) {
			return
		}
		welcome = Welcome{}
		if written {
			r.state.Remove(sessionID)
			delete(r.sessions, sessionID)
			r.syncParticipants()
		}
		r.failJoin(session, err)
		if announced {
			r.broadcast()
		}
	}()

	now := r.clock.Now()
	participant := newParticipant(sessionID, opts, spawnPosition(r.rng, r.cfg.SpawnRadius, r.cfg.SpawnHeight), now)
	r.state.Set(participant)
	r.sessions[sessionID] = session
	written = true
	r.syncParticipants()

	welcome = Welcome{
		RoomID:        r.id,
		SessionID:     sessionID,
		PlayerID:      participant.UserID,
		SpawnPosition: participant.Position,
		AvatarID:      participant.AvatarID,
		AvatarURL:     participant.AvatarURL,
	}
	if sendErr := r.sendTo(session, Event{Kind: EventWelcome, Welcome: &welcome}); sendErr != nil {
		return Welcome{}, fmt.Errorf("%w: send welcome: %v", ErrJoinFailed, sendErr)
	}

	r.metrics.Add(telemetry.MetricJoins, 1)
	r.logger.Printf("[room %s] player %s (%s) joined, total players: %d", r.id, sessionID, participant.UserID, r.state.Len())
	lifecycle.PlayerJoined(context.Background(), r.publisher, r.id, r.state.Sequence(), logging.PlayerRef(sessionID), lifecycle.PlayerJoinedPayload{
		UserID: participant.UserID,
		SpawnX: participant.Position.X,
		SpawnY: participant.Position.Y,
		SpawnZ: participant.Position.Z,
		Total:  r.state.Len(),
	})

	announced = true
	r.broadcast()
	return welcome, nil
}

func (r *Room) failJoin(session Session, cause error) {
	r.metrics.Add(telemetry.MetricJoinFailures, 1)
	r.logger.Printf("[room %s] join failed for %s: %v", r.id, session.ID(), cause)
	lifecycle.JoinFailed(context.Background(), r.publisher, r.id, logging.PlayerRef(session.ID()), lifecycle.JoinFailedPayload{Reason: cause.Error()})
	r.closeSession(session, CloseServerError, ReasonJoinFailed)
}

func (r *Room) handleLeave(sessionID string, voluntary bool) bool {
	delete(r.sessions, sessionID)
	delete(r.evicted, sessionID)
	r.throttle.forget(sessionID)

	participant, ok := r.state.Remove(sessionID)
	if !ok {
		return false
	}
	r.syncParticipants()

	cause := "unexpectedly"
	if voluntary {
		cause = "voluntarily"
	}
	r.metrics.Add(telemetry.MetricLeaves, 1)
	r.logger.Printf("[room %s] player %s (%s) left %s, remaining players: %d", r.id, sessionID, participant.UserID, cause, r.state.Len())
	lifecycle.PlayerLeft(context.Background(), r.publisher, r.id, r.state.Sequence(), logging.PlayerRef(sessionID), lifecycle.PlayerLeftPayload{
		UserID:    participant.UserID,
		Voluntary: voluntary,
		Remaining: r.state.Len(),
	})

	r.broadcast()
	return true
}

func (r *Room) handleMove(sessionID string, m Move) error {
	participant, ok := r.state.Get(sessionID)
	if !ok {
		return ErrUnknownSession
	}

	now := r.clock.Now()
	if allowed, drops := r.throttle.allow(sessionID, now); !allowed {
		r.metrics.Add(telemetry.MetricMovesThrottled, 1)
		if drops&(drops-1) == 0 {
			r.logger.Printf("[backpressure] dropping move room=%s session=%s count=%d limit=%d", r.id, sessionID, drops, r.cfg.MoveRateLimit)
			network.MoveThrottled(context.Background(), r.publisher, r.id, logging.PlayerRef(sessionID), network.MoveThrottledPayload{
				Dropped: drops,
				Limit:   r.cfg.MoveRateLimit,
			})
		}
		return ErrMoveThrottled
	}

	if err := ValidateMove(m); err != nil {
		r.metrics.Add(telemetry.MetricMovesRejected, 1)
		network.MoveRejected(context.Background(), r.publisher, r.id, logging.PlayerRef(sessionID), network.MoveRejectedPayload{Reason: err.Error()})
		return fmt.Errorf("%w: %v", ErrInvalidMove, err)
	}

	participant = applyMove(participant, m)
	participant.LastUpdate = now
	r.state.Set(participant)
	r.metrics.Add(telemetry.MetricMovesApplied, 1)
	r.broadcast()
	return nil
}

// sweep closes every session idle for longer than the inactivity timeout.
// Removal is left to the disconnect the close produces; a session that was
// closed on an earlier tick and still has a record is removed here through
// the same leave handler.
func (r *Room) sweep() {
	r.sweeps++
	now := r.clock.Now()

	for sessionID, tick := range r.evicted {
		if tick >= r.sweeps {
			continue
		}
		if _, ok := r.state.Get(sessionID); !ok {
			delete(r.evicted, sessionID)
			continue
		}
		r.logger.Printf("[room %s] no disconnect received for evicted player %s, removing", r.id, sessionID)
		r.handleLeave(sessionID, false)
	}

	timeout := r.cfg.InactivityTimeout
	var stale []Participant
	r.state.Each(func(p Participant) bool {
		if _, pending := r.evicted[p.SessionID]; pending {
			return true
		}
		if now.Sub(p.LastUpdate) > timeout {
			stale = append(stale, p)
		}
		return true
	})
	sort.Slice(stale, func(i, j int) bool { return stale[i].SessionID < stale[j].SessionID })

	for _, p := range stale {
		idle := now.Sub(p.LastUpdate)
		r.evicted[p.SessionID] = r.sweeps
		r.metrics.Add(telemetry.MetricEvictions, 1)
		r.logger.Printf("[room %s] removing inactive player %s idle=%s", r.id, p.SessionID, idle.Truncate(time.Millisecond))
		lifecycle.PlayerEvicted(context.Background(), r.publisher, r.id, r.state.Sequence(), logging.PlayerRef(p.SessionID), lifecycle.PlayerEvictedPayload{
			IdleMillis:    idle.Milliseconds(),
			TimeoutMillis: timeout.Milliseconds(),
		})
		session, ok := r.sessions[p.SessionID]
		if !ok {
			r.handleLeave(p.SessionID, false)
			continue
		}
		r.closeSession(session, CloseInactivity, ReasonInactivity)
	}
}

func (r *Room) dispose() {
	defer r.lifecycle.Store(int32(LifecycleDisposed))

	seq := r.state.Sequence()
	remaining := len(r.sessions)
	for _, session := range r.sessions {
		r.closeSession(session, CloseGoingAway, ReasonDisposed)
	}
	r.sessions = make(map[string]Session)
	r.evicted = make(map[string]uint64)
	r.throttle = newMoveThrottle(r.cfg.MoveRateLimit)
	r.state.clear()
	r.syncParticipants()
	r.publishDisposed(seq, remaining)
}

func (r *Room) publishDisposed(seq uint64, remaining int) {
	r.metrics.Add(telemetry.MetricRoomsDisposed, 1)
	r.logger.Printf("[room %s] disposed, closed %d sessions", r.id, remaining)
	lifecycle.RoomDisposed(context.Background(), r.publisher, r.id, seq, lifecycle.RoomPayload{
		Name:         r.cfg.Name,
		MaxPlayers:   r.cfg.MaxPlayers,
		Participants: remaining,
	})
}

// broadcast pushes the full state to every session.
func (r *Room) broadcast() {
	if len(r.sessions) == 0 {
		return
	}
	snapshot := r.state.SnapshotAll(r.clock.Now())
	event := Event{Kind: EventState, State: &snapshot}
	for sessionID, session := range r.sessions {
		if err := r.sendTo(session, event); err != nil {
			r.logger.Printf("[room %s] failed to send state to %s: %v", r.id, sessionID, err)
		}
	}
	r.metrics.Add(telemetry.MetricBroadcasts, 1)
}

// sendTo isolates one session's failure from the rest of the handler.
func (r *Room) sendTo(session Session, event Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("send panicked: %v", recovered)
		}
	}()
	return session.Send(event)
}

func (r *Room) closeSession(session Session, code int, reason string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Printf("[room %s] recovered from panic closing %s: %v", r.id, session.ID(), recovered)
		}
	}()
	session.Close(code, reason)
}

func (r *Room) syncParticipants() {
	r.participants.Store(int32(r.state.Len()))
}
