package logging

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

const (
	minSinkBuffer = 32
	maxSinkBuffer = 1024
)

// Router fans room events out to every configured sink. Publish never blocks
// the caller: a full queue drops the event and counts it.
type Router struct {
	clock        Clock
	fallback     *log.Logger
	minSeverity  Severity
	fields       map[string]any
	dropInterval time.Duration

	queue   chan Event
	stop    chan struct{}
	workers []*sinkWorker
	wg      sync.WaitGroup
	closed  atomic.Bool

	events     atomic.Uint64
	dropped    atomic.Uint64
	sinkErrors atomic.Uint64
	nextDrop   atomic.Int64
}

type RouterStats struct {
	EventsTotal     uint64 `json:"eventsTotal"`
	DroppedTotal    uint64 `json:"droppedTotal"`
	SinkErrorsTotal uint64 `json:"sinkErrorsTotal"`
}

func NewRouter(clock Clock, cfg Config, fallback *log.Logger, namedSinks []NamedSink) *Router {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultConfig().BufferSize
	}
	dropInterval := cfg.DropWarnInterval
	if dropInterval <= 0 {
		dropInterval = DefaultConfig().DropWarnInterval
	}

	r := &Router{
		clock:        clock,
		fallback:     fallback,
		minSeverity:  cfg.MinimumSeverity,
		fields:       cfg.CloneFields(),
		dropInterval: dropInterval,
		queue:        make(chan Event, size),
		stop:         make(chan struct{}),
	}

	workerBuffer := min(max(size, minSinkBuffer), maxSinkBuffer)
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		r.workers = append(r.workers, &sinkWorker{
			name:   named.Name,
			sink:   named.Sink,
			events: make(chan Event, workerBuffer),
		})
	}

	r.wg.Add(1 + len(r.workers))
	go r.dispatch()
	for _, w := range r.workers {
		go r.drainWorker(w)
	}
	return r
}

func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, w := range r.workers {
			close(w.events)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.route(event)
		case <-r.stop:
			for {
				select {
				case event := <-r.queue:
					r.route(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) route(event Event) {
	if event.Severity < r.minSeverity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = mergeFields(event, r.fields)
	r.events.Add(1)
	for _, w := range r.workers {
		select {
		case w.events <- cloneForFields(event):
		default:
			r.fallback.Printf("sink %s backlog full dropping event type=%s room=%s", w.name, event.Type, event.Room)
		}
	}
}

func (r *Router) drainWorker(w *sinkWorker) {
	defer r.wg.Done()
	for event := range w.events {
		if err := w.sink.Write(event); err != nil {
			r.sinkErrors.Add(1)
			r.fallback.Printf("sink %s failed to write %s: %v", w.name, event.Type, err)
		}
	}
}

func (r *Router) Publish(ctx context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
		return
	default:
	}
	r.dropped.Add(1)
	now := r.clock.Now().UnixNano()
	next := r.nextDrop.Load()
	if now >= next && r.nextDrop.CompareAndSwap(next, now+r.dropInterval.Nanoseconds()) {
		r.fallback.Printf("queue full dropping event type=%s room=%s seq=%d (dropped=%d)", event.Type, event.Room, event.Seq, r.dropped.Load())
	}
}

// Close stops accepting events, flushes the queue into the sinks and closes
// them. A second call waits for ctx and reports its error.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		<-ctx.Done()
		return ctx.Err()
	}
	close(r.stop)
	flushed := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, w := range r.workers {
		if err := w.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	return RouterStats{
		EventsTotal:     r.events.Load(),
		DroppedTotal:    r.dropped.Load(),
		SinkErrorsTotal: r.sinkErrors.Load(),
	}
}

func (r *Router) Sink(name string) Sink {
	for _, w := range r.workers {
		if w.name == name {
			return w.sink
		}
	}
	return nil
}

type sinkWorker struct {
	name   string
	sink   Sink
	events chan Event
}
