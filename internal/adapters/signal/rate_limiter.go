package signal

import (
	"sync"
	"time"
)

// windowLimiter allows at most limit events per sliding interval.
type windowLimiter struct {
	mu       sync.Mutex
	history  []time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func newWindowLimiter(limit int, interval time.Duration) *windowLimiter {
	return &windowLimiter{limit: limit, interval: interval, now: time.Now}
}

func (rl *windowLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	fresh := rl.history[:0]
	for _, t := range rl.history {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	rl.history = fresh

	if len(fresh) >= rl.limit {
		return false
	}
	rl.history = append(rl.history, now)
	return true
}
