package funnel

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts wall-clock time so polling can run against a virtual scheduler.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// VirtualClock is a deterministic Clock. Sleep advances time instantly unless the clock
// is in manual mode, in which case sleepers wait for Advance.
type VirtualClock struct {
	mu      sync.Mutex
	now     time.Time
	manual  bool
	waiters []virtualWaiter
	sleeps  []time.Duration
}

type virtualWaiter struct {
	until time.Time
	ch    chan struct{}
}

// NewVirtualClock returns a clock that jumps forward on every Sleep.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

// NewManualClock returns a clock whose sleepers block until Advance moves time past them.
func NewManualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start, manual: true}
}

// Now returns the virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep records the requested duration and advances or waits depending on the mode.
func (c *VirtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	if !c.manual {
		c.now = c.now.Add(d)
		c.mu.Unlock()
		return nil
	}
	w := virtualWaiter{until: c.now.Add(d), ch: make(chan struct{})}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		c.drop(w.ch)
		return ctx.Err()
	case <-w.ch:
		return nil
	}
}

func (c *VirtualClock) drop(ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w.ch == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Advance moves the clock forward and releases sleepers whose deadline passed.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if !c.now.Before(w.until) {
			close(w.ch)
			continue
		}
		pending = append(pending, w)
	}
	c.waiters = pending
}

// Waiters returns the number of blocked sleepers.
func (c *VirtualClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Sleeps returns every duration passed to Sleep so far.
func (c *VirtualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
