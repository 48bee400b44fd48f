package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"metaverse/server/internal/room"
	"metaverse/server/internal/telemetry"
)

var (
	ErrUnknownRoomName = errors.New("room name not defined")
	ErrRoomNotFound    = errors.New("room not found")
	ErrClosed          = errors.New("registry closed")
)

// maxJoinAttempts bounds how often JoinOrCreate retries after losing a race
// against a room filling up or being disposed.
const maxJoinAttempts = 4

// Config carries the dependencies shared by every room the registry creates.
type Config struct {
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	// NewID overrides room id generation. Defaults to random UUIDs.
	NewID func() string
}

// Registry owns the rooms of the process, grouped by definition name.
type Registry struct {
	logger  telemetry.Logger
	metrics telemetry.Metrics
	newID   func() string

	mu          sync.Mutex
	definitions map[string]room.Config
	rooms       map[string]*room.Room
	closed      bool
}

func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.DiscardLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NopMetrics()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Registry{
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		newID:       cfg.NewID,
		definitions: make(map[string]room.Config),
		rooms:       make(map[string]*room.Room),
	}
}

// Define registers the configuration used for rooms created under name.
// Redefining a name only affects rooms created afterwards.
func (r *Registry) Define(name string, cfg room.Config) {
	cfg.Name = name
	r.mu.Lock()
	r.definitions[name] = cfg
	r.mu.Unlock()
}

// Names lists the defined room names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JoinOrCreate joins session to an active room defined under name that has
// capacity, creating a new room when none does.
func (r *Registry) JoinOrCreate(ctx context.Context, name string, session room.Session, opts room.JoinOptions) (*room.Room, room.Welcome, error) {
	var lastErr error
	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		target, err := r.pick(name)
		if err != nil {
			return nil, room.Welcome{}, err
		}
		welcome, err := target.Join(ctx, session, opts)
		if err == nil {
			return target, welcome, nil
		}
		if !errors.Is(err, room.ErrRoomFull) && !errors.Is(err, room.ErrRoomDisposed) {
			return target, room.Welcome{}, err
		}
		lastErr = err
	}
	return nil, room.Welcome{}, lastErr
}

// pick returns an active room with capacity, or starts a new one.
func (r *Registry) pick(name string) (*room.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	cfg, ok := r.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoomName, name)
	}

	var candidates []*room.Room
	for _, existing := range r.rooms {
		if existing.Name() == name && existing.HasCapacity() {
			candidates = append(candidates, existing)
		}
	}
	if len(candidates) > 0 {
		// Prefer the oldest room so players gather instead of spreading out.
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Info().CreatedAt.Before(candidates[j].Info().CreatedAt)
		})
		return candidates[0], nil
	}

	created := room.New(r.newID(), cfg)
	if err := created.Start(); err != nil {
		return nil, err
	}
	r.rooms[created.ID()] = created
	r.syncActive()
	r.logger.Printf("[registry] created room %s (%s)", created.ID(), name)
	go r.forgetWhenDone(created)
	return created, nil
}

func (r *Registry) forgetWhenDone(rm *room.Room) {
	<-rm.Done()
	r.mu.Lock()
	if current, ok := r.rooms[rm.ID()]; ok && current == rm {
		delete(r.rooms, rm.ID())
		r.syncActive()
	}
	r.mu.Unlock()
}

// Room looks up a room by id.
func (r *Registry) Room(id string) (*room.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[id]
	return rm, ok
}

// Rooms summarises every live room ordered by creation time.
func (r *Registry) Rooms() []room.Info {
	r.mu.Lock()
	infos := make([]room.Info, 0, len(r.rooms))
	for _, rm := range r.rooms {
		infos = append(infos, rm.Info())
	}
	r.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Dispose disposes the room with id and removes it from the registry.
func (r *Registry) Dispose(ctx context.Context, id string) error {
	r.mu.Lock()
	rm, ok := r.rooms[id]
	if ok {
		delete(r.rooms, id)
		r.syncActive()
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	r.logger.Printf("[registry] disposing room %s", id)
	return rm.Dispose(ctx)
}

// Close disposes every room and refuses further joins.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	rooms := make([]*room.Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.rooms = make(map[string]*room.Room)
	r.syncActive()
	r.mu.Unlock()

	var errs []error
	for _, rm := range rooms {
		if err := rm.Dispose(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispose %s: %w", rm.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// syncActive requires r.mu.
func (r *Registry) syncActive() {
	r.metrics.Store(telemetry.MetricRoomsActive, uint64(len(r.rooms)))
}
