package model

import "time"

type RLState string

const (
	RLStateLocal  RLState = "local"
	RLStateRemote RLState = "remote"
)

type MaxCurrentLimitCause string

const (
	MaxCurrentLimitCauseNone        MaxCurrentLimitCause = "none"
	MaxCurrentLimitCauseFan         MaxCurrentLimitCause = "fan"
	MaxCurrentLimitCauseTemperature MaxCurrentLimitCause = "temperature"
)

// Coupling is how channel outputs are tied together (channel dispatcher mode).
type Coupling string

const (
	CouplingNone      Coupling = "none"
	CouplingParallel  Coupling = "parallel"
	CouplingSeries    Coupling = "series"
	CouplingCommonGND Coupling = "common_gnd"
	CouplingSplitRail Coupling = "split_rail"
)

// DefaultProfileSlot is the default/auto-saved profile location. Auto-recall from any
// other slot is compared against it before outputs are allowed back on.
const DefaultProfileSlot = 0

// NumProfileLocations is the number of profile slots, the default slot included.
const NumProfileLocations = 10

type ChannelParams struct {
	Voltage       float64 `json:"u_set"`
	Current       float64 `json:"i_set"`
	CurrentLimit  float64 `json:"i_limit"`
	OutputEnabled bool    `json:"output_enabled"`
}

type ProtectionConfig struct {
	Sensor  int           `json:"sensor"`
	Delay   time.Duration `json:"delay"`
	Level   float64       `json:"level"`
	Enabled bool          `json:"enabled"`
}

// Profile is a saved operating point. Loaded profiles are treated as immutable;
// use Clone before changing anything.
type Profile struct {
	Location       int                `json:"location"`
	Name           string             `json:"name"`
	PowerUp        bool               `json:"power_up"`
	Coupling       Coupling           `json:"coupling"`
	Channels       []ChannelParams    `json:"channels"`
	TempProtection []ProtectionConfig `json:"temp_protection"`
	SavedAt        time.Time          `json:"saved_at"`
}

func (p *Profile) Clone() *Profile {
	c := *p
	c.Channels = append([]ChannelParams(nil), p.Channels...)
	c.TempProtection = append([]ProtectionConfig(nil), p.TempProtection...)
	return &c
}

// AnyOutputEnabled reports whether any of the first n channels has its output on.
func (p *Profile) AnyOutputEnabled(n int) bool {
	for i := 0; i < n && i < len(p.Channels); i++ {
		if p.Channels[i].OutputEnabled {
			return true
		}
	}
	return false
}

type DeviceConfig struct {
	AutoRecallEnabled             bool `json:"auto_recall_enabled"`
	AutoRecallLocation            int  `json:"auto_recall_location"`
	ForceDisableOutputsOnPowerUp  bool `json:"force_disable_outputs_on_power_up"`
	ShutdownWhenProtectionTripped bool `json:"shutdown_when_protection_tripped"`
	OutputProtectionCouple        bool `json:"output_protection_couple"`
	FrontPanelLocked              bool `json:"front_panel_locked"`
}

type Calibration struct {
	Slot    int    `json:"slot"`
	Enabled bool   `json:"enabled"`
	Remark  string `json:"remark"`
	Date    string `json:"date"`
}

type EventKind string

const (
	EventInfoPowerUp                     EventKind = "info_power_up"
	EventInfoPowerDown                   EventKind = "info_power_down"
	EventWarningAutoRecallValuesMismatch EventKind = "warning_auto_recall_values_mismatch"
	EventWarningSelfTestFailed           EventKind = "warning_self_test_failed"
	EventWarningProtectionTripped        EventKind = "warning_protection_tripped"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

func (k EventKind) Severity() Severity {
	switch k {
	case EventInfoPowerUp, EventInfoPowerDown:
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

type EventRecord struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}
