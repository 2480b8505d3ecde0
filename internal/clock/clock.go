// Package clock supplies the timestamps stored on interests, matches and
// messages. All values are UTC with millisecond precision so they survive a
// round trip through MySQL DATETIME(3) and the pagination cursors.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// System is the wall clock, clamped so that successive calls never go
// backwards even if the host clock is adjusted.
type System struct {
	mu   sync.Mutex
	last time.Time
}

func NewSystem() *System { return &System{} }

func (c *System) Now() time.Time {
	now := time.Now().UTC().Truncate(time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Before(c.last) {
		now = c.last
	}
	c.last = now
	return now
}

// Manual is a clock for tests. It only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC().Truncate(time.Millisecond)}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d).Truncate(time.Millisecond)
	m.mu.Unlock()
}
