package psu

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/internal/model"
)

// OnProtectionTripped applies the configured trip policy. It must be called on the
// control loop; the temperature service does so from its tick.
func (c *Controller) OnProtectionTripped() {
	if !c.state.PoweredUp {
		return
	}

	c.deps.Events.Push(model.EventWarningProtectionTripped)

	switch {
	case c.state.DeviceConfig.ShutdownWhenProtectionTripped:
		c.powerDownBySensor()
	case c.state.DeviceConfig.OutputProtectionCouple:
		c.disableChannels()
	}
	c.publish()
}

func (c *Controller) disableChannels() {
	for _, ch := range c.channels {
		if ch.IsOutputEnabled() {
			log.Warn().Int("slot", ch.Slot()).Msg("Disabling output on coupled protection trip")
			ch.OutputEnable(false)
		}
	}
}

// LimitMaxCurrent switches the global current ceiling on for cause. Entering a limited
// cause clamps channels drawing above the ceiling and lowers limits above it; the same
// cause twice is a no-op, so callers may reassert it every tick. Control loop only.
func (c *Controller) LimitMaxCurrent(cause model.MaxCurrentLimitCause) {
	if c.limitMaxCurrent(cause) {
		c.publish()
	}
}

// UnlimitMaxCurrent clears the cause. Limits already lowered stay where they are.
func (c *Controller) UnlimitMaxCurrent() {
	if c.limitMaxCurrent(model.MaxCurrentLimitCauseNone) {
		c.publish()
	}
}

func (c *Controller) limitMaxCurrent(cause model.MaxCurrentLimitCause) bool {
	if c.state.LimitCause == cause {
		return false
	}
	c.state.LimitCause = cause
	log.Info().Str("cause", string(cause)).Msg("Max current limit cause changed")

	if cause == model.MaxCurrentLimitCauseNone {
		return true
	}

	ceiling := c.opts.MaxCurrentCeiling
	for _, ch := range c.channels {
		if ch.IsOutputEnabled() && ch.MeasuredCurrent() > ceiling {
			log.Warn().
				Int("slot", ch.Slot()).
				Float64("measured", ch.MeasuredCurrent()).
				Float64("ceiling", ceiling).
				Msg("Clamping channel current to minimum")
			ch.SetCurrent(ch.MinCurrent())
		}

		if ch.CurrentLimit() > ceiling {
			prev := ch.SetCurrentLimit(ceiling)
			log.Info().Int("slot", ch.Slot()).Float64("previous", prev).Float64("limit", ceiling).Msg("Current limit clamped")
		}
	}
	return true
}
