package room

import (
	"time"

	"golang.org/x/time/rate"
)

// moveThrottle holds a token bucket per session refilled at limit moves per
// second with a burst of limit. It is owned by the room goroutine.
type moveThrottle struct {
	limit    int
	limiters map[string]*rate.Limiter
	drops    map[string]uint64
}

func newMoveThrottle(limit int) *moveThrottle {
	return &moveThrottle{
		limit:    limit,
		limiters: make(map[string]*rate.Limiter),
		drops:    make(map[string]uint64),
	}
}

// allow records an attempt at now and reports whether the session has a
// token left. When it does not, the returned count is the session's total
// drops.
func (t *moveThrottle) allow(sessionID string, now time.Time) (bool, uint64) {
	if t == nil || t.limit <= 0 {
		return true, 0
	}
	limiter, ok := t.limiters[sessionID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(t.limit), t.limit)
		t.limiters[sessionID] = limiter
	}
	if limiter.AllowN(now, 1) {
		return true, 0
	}
	count := t.drops[sessionID] + 1
	t.drops[sessionID] = count
	return false, count
}

func (t *moveThrottle) forget(sessionID string) {
	if t == nil {
		return
	}
	delete(t.limiters, sessionID)
	delete(t.drops, sessionID)
}
