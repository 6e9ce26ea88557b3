package psu

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/internal/diag"
	"github.com/thatsimonsguy/psu-controller/internal/model"
	"github.com/thatsimonsguy/psu-controller/internal/sound"
)

// powerUp brings the rail and every channel up. It refuses only when thermal protection
// forbids it; failing self-tests are recorded, never rolled back.
func (c *Controller) powerUp() bool {
	if c.state.PoweredUp {
		return true
	}

	if c.deps.Thermal != nil && !c.deps.Thermal.IsAllowedToPowerUp() {
		log.Warn().Msg("Power up refused, thermal protection active")
		return false
	}

	if c.deps.Sound != nil {
		c.deps.Sound.PlayPowerUp(sound.PowerUpConditionNone)
	}

	c.state.RLState = model.RLStateLocal
	if c.state.DeviceConfig.FrontPanelLocked {
		c.state.RLState = model.RLStateRemote
	}

	if c.deps.Fan != nil {
		c.deps.Fan.TestStart()
	}

	for _, ch := range c.channels {
		ch.Reset()
	}

	railOK := true
	if err := c.deps.Rail.PowerUp(); err != nil {
		log.Error().Err(err).Msg("Failed to assert power rail")
		railOK = false
	}
	c.state.PoweredUp = true
	c.onTime.Start()

	for _, ch := range c.channels {
		ch.Init()
	}

	var r diag.Report
	if c.state.Booted {
		r.Merge(c.testMaster())
	}
	r.Add("rail", railOK)
	for _, ch := range c.channels {
		r.Add(fmt.Sprintf("channel_%d", ch.Slot()), ch.Test())
	}
	if c.deps.Fan != nil {
		r.Add("fan", c.deps.Fan.Test())
	}

	c.state.ESR |= ESRPowerOn
	c.deps.Events.Push(model.EventInfoPowerUp)

	if r.Passed() {
		if c.deps.Sound != nil {
			c.deps.Sound.PlayPowerUp(sound.PowerUpConditionTestSuccessful)
		}
	} else {
		log.Warn().Object("tests", r).Msg("Power up self-test failed")
	}

	c.state.LastPowerUpTest = r
	c.state.BootTestPassed = c.state.BootTestPassed && r.Passed()

	log.Info().Bool("tests_passed", r.Passed()).Str("rl_state", string(c.state.RLState)).Msg("Powered up")
	return true
}

func (c *Controller) powerDown() {
	if !c.state.PoweredUp {
		return
	}

	if c.deps.Trigger != nil {
		c.deps.Trigger.Abort()
	}
	if c.deps.DataLog != nil {
		c.deps.DataLog.Abort()
	}

	c.state.Coupling = model.CouplingNone
	c.state.LimitCause = model.MaxCurrentLimitCauseNone

	for _, ch := range c.channels {
		ch.OnPowerDown()
	}

	if err := c.deps.Rail.PowerDown(); err != nil {
		log.Error().Err(err).Msg("Failed to de-assert power rail")
	}
	c.state.PoweredUp = false
	c.onTime.Stop()

	c.deps.Events.Push(model.EventInfoPowerDown)

	if c.deps.Fan != nil {
		c.deps.Fan.ResetTestResult()
	}
	if c.deps.IOPins != nil {
		c.deps.IOPins.Tick(c.usecAt(c.now()))
	}
	if c.deps.Sound != nil {
		c.deps.Sound.PlayPowerDown()
	}

	log.Info().Msg("Powered down")
}

// changePowerState is the public transition. Requests inside the dwell window after a
// power-down are dropped without any state change.
func (c *Controller) changePowerState(up bool) {
	if up == c.state.PoweredUp {
		return
	}

	if c.state.PowerDownDelayActive {
		if since := c.now().Sub(c.state.LastPowerDown); since < c.opts.MinPowerUpDelay {
			log.Info().
				Bool("up", up).
				Dur("since_power_down", since).
				Dur("min_delay", c.opts.MinPowerUpDelay).
				Msg("Power state change dropped, minimum delay not elapsed")
			return
		}
		c.state.PowerDownDelayActive = false
	}

	if up {
		c.reloadDeviceConfig()
		c.state.BootTestPassed = true

		p, recalled := c.recall.LoadAutoRecallProfile(c.policy(), len(c.channels))

		if !c.powerUp() {
			return
		}

		if recalled {
			c.applyProfile(p)
		}
		c.save(true, false)
		return
	}

	c.savePoweredDown()
	c.state.PowerDownDelayActive = true
	c.state.LastPowerDown = c.now()
}

// powerDownBySensor turns every output off before the rail collapses.
func (c *Controller) powerDownBySensor() {
	if !c.state.PoweredUp {
		return
	}

	log.Warn().Msg("Powering down on protection trip")
	for _, ch := range c.channels {
		ch.OutputEnable(false)
	}
	c.savePoweredDown()
}

// savePoweredDown stores the live setpoints recorded as powered off, then runs the
// hardware power-down with auto-save held off so nothing saves a half-down state.
func (c *Controller) savePoweredDown() {
	c.save(false, true)

	c.deps.Store.SetAutoSaveEnabled(false)
	c.powerDown()
	c.deps.Store.SetAutoSaveEnabled(true)
}

// psuReset restores factory protection and channel settings and powers up.
func (c *Controller) psuReset() bool {
	c.state.ESR = 0

	if c.deps.Thermal != nil {
		c.deps.Thermal.ResetProtection()
	}
	if c.deps.Calibration != nil {
		c.deps.Calibration.Stop()
	}

	c.state.Coupling = model.CouplingNone
	for _, ch := range c.channels {
		ch.Reset()
	}

	for _, s := range []Sequencer{c.deps.Trigger, c.deps.List, c.deps.DataLog} {
		if s != nil {
			s.Reset()
		}
	}

	if !c.powerUp() {
		return false
	}
	for _, ch := range c.channels {
		ch.Update()
	}
	return true
}
