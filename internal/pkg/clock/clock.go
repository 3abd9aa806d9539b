// Package clock lets session expiry and notification lifetimes be driven by
// tests instead of wall time.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func NewRealClock() RealClock { return RealClock{} }

func (RealClock) Now() time.Time { return time.Now().UTC() }

// MockClock stands still until Advance is called. Safe for concurrent use,
// since session loops read it while tests move it.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
