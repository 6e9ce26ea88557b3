// Package ontime accumulates how long something has been powered.
package ontime

import (
	"sync/atomic"
	"time"
)

type Counter struct {
	name     string
	running  bool
	lastTick uint64
	started  bool

	total atomic.Int64 // nanoseconds, readable from any goroutine
}

func New(name string) *Counter {
	return &Counter{name: name}
}

func (c *Counter) Name() string { return c.name }

// Start begins accumulating from the next Tick.
func (c *Counter) Start() {
	c.running = true
	c.started = false
}

func (c *Counter) Stop() {
	c.running = false
}

func (c *Counter) Running() bool { return c.running }

// Tick adds the time elapsed since the previous tick while running.
func (c *Counter) Tick(usec uint64) {
	if !c.running {
		return
	}
	if c.started && usec > c.lastTick {
		c.total.Add(int64(time.Duration(usec-c.lastTick) * time.Microsecond))
	}
	c.lastTick = usec
	c.started = true
}

func (c *Counter) Total() time.Duration {
	return time.Duration(c.total.Load())
}

// Restore seeds the total, e.g. from persisted state.
func (c *Counter) Restore(d time.Duration) {
	c.total.Store(int64(d))
}
