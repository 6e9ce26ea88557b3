package psu

// Tick advances every time-driven subsystem in a fixed order. Later steps may rely on
// values latched by earlier ones (fan control reads the temperature tick's results).
func (c *Controller) Tick(usec uint64) {
	c.lastUsec = usec

	tick(c.deps.DataLog, usec)
	for _, ch := range c.channels {
		ch.Tick(usec)
	}
	tick(c.deps.IOPins, usec)
	tick(c.deps.Debug, usec)
	c.onTime.Tick(usec)
	tick(c.deps.Thermal, usec)
	tick(c.deps.Fan, usec)
	tick(c.deps.Trigger, usec)
	tick(c.deps.List, usec)
	tick(c.deps.Events, usec)
	tick(c.deps.DateTime, usec)
	tick(c.deps.Sound, usec)
	tick(c.deps.Idle, usec)

	if fn := c.diagCallback.Swap(nil); fn != nil {
		(*fn)()
	}

	tick(c.deps.Watchdog, usec)

	c.ticks++
	if c.ticks%c.opts.StatusEvery == 0 {
		c.publish()
	}
}

func tick(t Ticker, usec uint64) {
	if t != nil {
		t.Tick(usec)
	}
}
