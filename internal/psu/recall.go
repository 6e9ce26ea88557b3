package psu

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/internal/channel"
	"github.com/thatsimonsguy/psu-controller/internal/model"
	"github.com/thatsimonsguy/psu-controller/internal/recall"
)

func (c *Controller) policy() recall.Policy {
	return recall.PolicyFrom(c.state.DeviceConfig, c.state.BootTestPassed)
}

// autoRecall restores the auto-recall profile at boot. False means nothing was applied
// and the caller falls back to a reset.
func (c *Controller) autoRecall() bool {
	p, ok := c.recall.LoadAutoRecallProfile(c.policy(), len(c.channels))
	if !ok {
		return false
	}
	if !c.recallFromProfile(p) {
		log.Warn().Int("location", p.Location).Msg("Auto-recall profile could not be applied")
		return false
	}
	log.Info().Int("location", p.Location).Str("name", p.Name).Msg("Auto-recall profile applied")
	return true
}

// recallFromProfile moves to the power state recorded in p and applies its settings.
func (c *Controller) recallFromProfile(p *model.Profile) bool {
	if p.PowerUp {
		if !c.powerUp() {
			return false
		}
	} else {
		c.powerDown()
	}
	c.applyProfile(p)
	return true
}

// applyProfile writes coupling, temperature protection and channel setpoints. Outputs
// only come on while powered up, and an active current ceiling still holds.
func (c *Controller) applyProfile(p *model.Profile) {
	c.state.Coupling = p.Coupling
	if c.state.Coupling == "" {
		c.state.Coupling = model.CouplingNone
	}

	if c.deps.Thermal != nil && len(p.TempProtection) > 0 {
		c.deps.Thermal.SetProtectionConfigs(p.TempProtection)
	}

	for i, ch := range c.channels {
		if i >= len(p.Channels) {
			break
		}
		params := p.Channels[i]

		limit := params.CurrentLimit
		if c.state.LimitCause != model.MaxCurrentLimitCauseNone && limit > c.opts.MaxCurrentCeiling {
			limit = c.opts.MaxCurrentCeiling
		}
		ch.SetCurrentLimit(limit)
		ch.SetVoltage(params.Voltage)
		ch.SetCurrent(params.Current)
		ch.OutputEnable(params.OutputEnabled && c.state.PoweredUp)
	}
}

func (c *Controller) snapshot(poweredUp bool) *model.Profile {
	p := &model.Profile{
		Location: model.DefaultProfileSlot,
		Name:     "auto",
		PowerUp:  poweredUp,
		Coupling: c.state.Coupling,
		SavedAt:  c.now(),
	}
	for _, ch := range c.channels {
		p.Channels = append(p.Channels, channel.Params(ch))
	}
	if c.deps.Thermal != nil {
		p.TempProtection = c.deps.Thermal.ProtectionConfigs()
	}
	return p
}

func (c *Controller) save(poweredUp, force bool) {
	if err := c.deps.Store.SaveProfile(c.snapshot(poweredUp), force); err != nil {
		log.Error().Err(err).Bool("force", force).Msg("Failed to save profile")
	}
}
