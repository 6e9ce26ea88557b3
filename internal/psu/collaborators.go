package psu

import (
	"github.com/thatsimonsguy/psu-controller/internal/channel"
	"github.com/thatsimonsguy/psu-controller/internal/diag"
	"github.com/thatsimonsguy/psu-controller/internal/model"
	"github.com/thatsimonsguy/psu-controller/internal/sound"
)

type Initializer interface {
	Init() error
}

type Ticker interface {
	Tick(usec uint64)
}

type Store interface {
	Init() error
	LoadDeviceConfig() (model.DeviceConfig, error)
	LoadChannelCalibration(slot int) (model.Calibration, error)
	LoadProfile(slot int) (*model.Profile, error)
	SaveProfile(p *model.Profile, force bool) error
	SetAutoSaveEnabled(enabled bool)
}

type EventLog interface {
	Init() error
	Push(kind model.EventKind)
	Tick(usec uint64)
}

// Rail is the hardware power rail feeding every channel module.
type Rail interface {
	PowerUp() error
	PowerDown() error
}

type Thermal interface {
	Init() error
	Tick(usec uint64)
	IsAllowedToPowerUp() bool
	ProtectionConfigs() []model.ProtectionConfig
	SetProtectionConfigs(cfgs []model.ProtectionConfig)
	ResetProtection()
}

type Fan interface {
	Init() error
	Tick(usec uint64)
	TestStart()
	Test() bool
	ResetTestResult()
}

type Sound interface {
	Init() error
	Tick(usec uint64)
	PlayPowerUp(cond sound.PowerUpCondition)
	PlayPowerDown()
	PlayBeep()
}

// Sequencer covers the trigger, list-program and data-log subsystems.
type Sequencer interface {
	Init() error
	Tick(usec uint64)
	Abort()
	Reset()
}

type Calibrator interface {
	Stop()
}

type DateTime interface {
	Init() error
	Tick(usec uint64)
}

// Deps are the collaborators the controller drives. Store, Events and Rail are required;
// every other field may be nil and is then skipped.
type Deps struct {
	Store   Store
	Events  EventLog
	Rail    Rail
	Harness diag.Harness
	Thermal Thermal
	Sound   Sound

	Identity   channel.IdentityReader
	Modules    channel.Table
	NewChannel func(slot int, m channel.Module) channel.Driver

	Fan         Fan
	Trigger     Sequencer
	List        Sequencer
	DataLog     Sequencer
	Calibration Calibrator

	Serial   Initializer
	RTC      Initializer
	Network  Initializer
	DateTime DateTime

	IOPins   Ticker
	Debug    Ticker
	Idle     Ticker
	Watchdog Ticker
}
