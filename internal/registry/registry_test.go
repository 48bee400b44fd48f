package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"metaverse/server/internal/room"
	"metaverse/server/internal/telemetry"
	"metaverse/server/logging"
)

type stubSession struct {
	id string

	mu     sync.Mutex
	closed bool
	code   int
}

func (s *stubSession) ID() string { return s.id }

func (s *stubSession) Send(room.Event) error { return nil }

func (s *stubSession) Close(code int, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.code = code
}

func (s *stubSession) closeCode() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.code
}

func newTestRegistry(t *testing.T, maxPlayers int) (*Registry, *logging.Metrics) {
	t.Helper()
	metrics := logging.NewMetrics()
	counter := 0
	reg := New(Config{
		Metrics: telemetry.WrapMetrics(metrics),
		NewID: func() string {
			counter++
			return fmt.Sprintf("room-%d", counter)
		},
	})
	cfg := room.DefaultConfig()
	cfg.MaxPlayers = maxPlayers
	cfg.SweepInterval = -1
	reg.Define(room.DefaultName, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		reg.Close(ctx)
	})
	return reg, metrics
}

func TestJoinOrCreateReusesRoomWithCapacity(t *testing.T) {
	reg, metrics := newTestRegistry(t, 2)

	first, welcome, err := reg.JoinOrCreate(context.Background(), room.DefaultName, &stubSession{id: "a"}, room.JoinOptions{UserID: "u1"})
	if err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if welcome.RoomID != first.ID() || welcome.SessionID != "a" {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}
	second, _, err := reg.JoinOrCreate(context.Background(), room.DefaultName, &stubSession{id: "b"}, room.JoinOptions{})
	if err != nil {
		t.Fatalf("second join failed: %v", err)
	}
	if second != first {
		t.Fatalf("expected second join to reuse %s, got %s", first.ID(), second.ID())
	}

	third, _, err := reg.JoinOrCreate(context.Background(), room.DefaultName, &stubSession{id: "c"}, room.JoinOptions{})
	if err != nil {
		t.Fatalf("third join failed: %v", err)
	}
	if third == first {
		t.Fatalf("expected a full room to spill into a new room")
	}
	if got := len(reg.Rooms()); got != 2 {
		t.Fatalf("expected 2 rooms, got %d", got)
	}
	if got := metrics.Value(telemetry.MetricRoomsActive); got != 2 {
		t.Fatalf("expected rooms_active gauge 2, got %d", got)
	}
}

func TestJoinOrCreateUnknownName(t *testing.T) {
	reg, _ := newTestRegistry(t, 2)
	_, _, err := reg.JoinOrCreate(context.Background(), "lobby", &stubSession{id: "a"}, room.JoinOptions{})
	if !errors.Is(err, ErrUnknownRoomName) {
		t.Fatalf("expected ErrUnknownRoomName, got %v", err)
	}
}

func TestJoinOrCreatePropagatesDuplicateSession(t *testing.T) {
	reg, _ := newTestRegistry(t, 4)
	if _, _, err := reg.JoinOrCreate(context.Background(), room.DefaultName, &stubSession{id: "a"}, room.JoinOptions{}); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	_, _, err := reg.JoinOrCreate(context.Background(), room.DefaultName, &stubSession{id: "a"}, room.JoinOptions{})
	if !errors.Is(err, room.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestDisposeRemovesRoomAndClosesSessions(t *testing.T) {
	reg, _ := newTestRegistry(t, 4)
	session := &stubSession{id: "a"}
	rm, _, err := reg.JoinOrCreate(context.Background(), room.DefaultName, session, room.JoinOptions{})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	if err := reg.Dispose(context.Background(), rm.ID()); err != nil {
		t.Fatalf("dispose failed: %v", err)
	}
	if _, ok := reg.Room(rm.ID()); ok {
		t.Fatalf("disposed room still registered")
	}
	if closed, code := session.closeCode(); !closed || code != room.CloseGoingAway {
		t.Fatalf("expected session closed with going away, got closed=%v code=%d", closed, code)
	}
	if err := reg.Dispose(context.Background(), rm.ID()); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}

	next, _, err := reg.JoinOrCreate(context.Background(), room.DefaultName, &stubSession{id: "b"}, room.JoinOptions{})
	if err != nil {
		t.Fatalf("join after dispose failed: %v", err)
	}
	if next.ID() == rm.ID() {
		t.Fatalf("expected a fresh room after disposal")
	}
}

func TestRoomDisposedDirectlyIsForgotten(t *testing.T) {
	reg, _ := newTestRegistry(t, 4)
	rm, _, err := reg.JoinOrCreate(context.Background(), room.DefaultName, &stubSession{id: "a"}, room.JoinOptions{})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if err := rm.Dispose(context.Background()); err != nil {
		t.Fatalf("dispose failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := reg.Room(rm.ID()); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("registry kept a room disposed outside of it")
}

func TestCloseDisposesEveryRoom(t *testing.T) {
	reg, metrics := newTestRegistry(t, 1)
	sessions := []*stubSession{{id: "a"}, {id: "b"}}
	for _, session := range sessions {
		if _, _, err := reg.JoinOrCreate(context.Background(), room.DefaultName, session, room.JoinOptions{}); err != nil {
			t.Fatalf("join failed: %v", err)
		}
	}

	if err := reg.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	for _, session := range sessions {
		if closed, _ := session.closeCode(); !closed {
			t.Fatalf("session %s not closed on registry close", session.id)
		}
	}
	if len(reg.Rooms()) != 0 || metrics.Value(telemetry.MetricRoomsActive) != 0 {
		t.Fatalf("expected no rooms after close")
	}
	if _, _, err := reg.JoinOrCreate(context.Background(), room.DefaultName, &stubSession{id: "c"}, room.JoinOptions{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRoomsListsDefinitions(t *testing.T) {
	reg, _ := newTestRegistry(t, 4)
	reg.Define("lobby", room.Config{MaxPlayers: 8, SweepInterval: -1})
	names := reg.Names()
	if len(names) != 2 || names[0] != "lobby" || names[1] != room.DefaultName {
		t.Fatalf("unexpected names: %v", names)
	}

	rm, _, err := reg.JoinOrCreate(context.Background(), "lobby", &stubSession{id: "a"}, room.JoinOptions{})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	infos := reg.Rooms()
	if len(infos) != 1 || infos[0].Name != "lobby" || infos[0].MaxPlayers != 8 || infos[0].Participants != 1 {
		t.Fatalf("unexpected room info: %+v", infos)
	}
	if infos[0].ID != rm.ID() || infos[0].Lifecycle != "active" {
		t.Fatalf("unexpected room identity: %+v", infos[0])
	}
}
