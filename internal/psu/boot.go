package psu

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/internal/channel"
	"github.com/thatsimonsguy/psu-controller/internal/diag"
	"github.com/thatsimonsguy/psu-controller/internal/model"
)

// boot runs once, on the control loop, before any command or tick is served.
func (c *Controller) boot() {
	log.Info().Int("slots", c.opts.Slots).Msg("Booting power supply")

	c.initAll()

	c.state.BootTestPassed = c.testMaster().Passed()

	if !c.autoRecall() {
		log.Info().Msg("Auto-recall not applied, resetting to defaults")
		c.psuReset()
	}

	if !c.state.BootTestPassed {
		log.Warn().Object("master_test", c.state.MasterTest).Msg("Boot self-test failed")
		if c.deps.Sound != nil {
			c.deps.Sound.PlayBeep()
		}
		c.deps.Events.Push(model.EventWarningSelfTestFailed)
	}

	c.state.Booted = true
	log.Info().
		Bool("powered_up", c.state.PoweredUp).
		Bool("boot_test_passed", c.state.BootTestPassed).
		Msg("Boot complete")
}

// initAll initializes collaborators in dependency order. Failures are logged and boot continues.
func (c *Controller) initAll() {
	initStep("sound", c.deps.Sound)
	initStep("storage", c.deps.Store)

	// relays: make sure the rail starts off
	if err := c.deps.Rail.PowerDown(); err != nil {
		log.Error().Err(err).Msg("Failed to initialize power rail")
	}

	c.identifyModules()
	c.loadConf()

	initStep("serial", c.deps.Serial)
	initStep("rtc", c.deps.RTC)
	initStep("datetime", c.deps.DateTime)
	initStep("event log", c.deps.Events)
	initStep("list", c.deps.List)
	initStep("network", c.deps.Network)
	initStep("fan", c.deps.Fan)
	initStep("temperature", c.deps.Thermal)
	initStep("trigger", c.deps.Trigger)
	initStep("data log", c.deps.DataLog)
}

func initStep(name string, s Initializer) {
	if s == nil {
		return
	}
	if err := s.Init(); err != nil {
		log.Error().Err(err).Str("subsystem", name).Msg("Initialization failed")
		return
	}
	log.Debug().Str("subsystem", name).Msg("Initialized")
}

// identifyModules creates one channel per slot from the fitted module. Empty slots
// and unknown tags get the inert no-module configuration.
func (c *Controller) identifyModules() {
	c.channels = make([]channel.Driver, c.opts.Slots)
	for i := range c.channels {
		m := channel.ModuleNone
		if c.deps.Identity != nil {
			m = c.deps.Modules.Identify(c.deps.Identity, i)
		}
		c.channels[i] = c.deps.NewChannel(i+1, m)

		log.Info().
			Int("slot", i+1).
			Str("module", string(m.Type)).
			Str("revision", m.BoardRevision).
			Msg("Slot identified")
	}
}

func (c *Controller) loadConf() {
	c.reloadDeviceConfig()

	for _, ch := range c.channels {
		cal, err := c.deps.Store.LoadChannelCalibration(ch.Slot())
		if err != nil {
			log.Warn().Err(err).Int("slot", ch.Slot()).Msg("Could not load channel calibration")
			continue
		}
		if cc, ok := ch.(channel.Calibrated); ok {
			cc.SetCalibration(cal)
		}
	}
}

func (c *Controller) reloadDeviceConfig() {
	conf, err := c.deps.Store.LoadDeviceConfig()
	if err != nil {
		log.Warn().Err(err).Msg("Could not load device config, keeping current settings")
		return
	}
	c.state.DeviceConfig = conf
}

// testMaster runs the master subsystem tests and records the report.
func (c *Controller) testMaster() diag.Report {
	if c.deps.Harness == nil {
		return diag.Report{}
	}
	r := diag.TestMaster(c.deps.Harness, c.opts.Master)
	c.state.MasterTest = r
	log.Info().Object("tests", r).Bool("passed", r.Passed()).Msg("Master self-test")
	return r
}
