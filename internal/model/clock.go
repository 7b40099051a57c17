package model

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing unix-millisecond timestamps so that two
// readings created within the same millisecond never share a queue key.
type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockAt is for tests: now is called on every Next.
func NewClockAt(now func() time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}
