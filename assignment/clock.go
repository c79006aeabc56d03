package assignment

import (
	"sync"
	"time"
)

// Clock supplies "now". Every temporal decision in the engine reads it
// instead of the wall clock.
type Clock interface {
	Now() time.Time
}

// Today returns the current calendar day according to c.
func Today(c Clock) Date {
	return DateOf(c.Now().UTC())
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock returns a settable instant. Safe for concurrent use.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// FixedClockAt starts the clock at noon on d.
func FixedClockAt(d Date) *FixedClock {
	return NewFixedClock(d.Time().Add(12 * time.Hour))
}

func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *FixedClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
