package psu

import (
	"time"

	"github.com/thatsimonsguy/psu-controller/internal/diag"
	"github.com/thatsimonsguy/psu-controller/internal/model"
)

type ChannelStatus struct {
	Slot          int     `json:"slot"`
	Module        string  `json:"module"`
	Voltage       float64 `json:"u_set"`
	Current       float64 `json:"i_set"`
	CurrentLimit  float64 `json:"i_limit"`
	Measured      float64 `json:"i_mon"`
	OutputEnabled bool    `json:"output_enabled"`
}

// Status is a point-in-time copy of the controller state, safe to share.
type Status struct {
	PoweredUp            bool                       `json:"powered_up"`
	Booted               bool                       `json:"booted"`
	BootTestPassed       bool                       `json:"boot_test_passed"`
	RLState              model.RLState              `json:"rl_state"`
	LimitCause           model.MaxCurrentLimitCause `json:"max_current_limit_cause"`
	Coupling             model.Coupling             `json:"coupling"`
	PowerDownDelayActive bool                       `json:"power_down_delay_active"`
	ESR                  uint8                      `json:"esr"`
	OnTime               time.Duration              `json:"on_time"`
	MasterTest           diag.Report                `json:"master_test"`
	LastPowerUpTest      diag.Report                `json:"last_power_up_test"`
	Channels             []ChannelStatus            `json:"channels"`
	QueuedCommands       int                        `json:"queued_commands"`
	UpdatedAt            time.Time                  `json:"updated_at"`
}

func (c *Controller) publish() {
	s := &Status{
		PoweredUp:            c.state.PoweredUp,
		Booted:               c.state.Booted,
		BootTestPassed:       c.state.BootTestPassed,
		RLState:              c.state.RLState,
		LimitCause:           c.state.LimitCause,
		Coupling:             c.state.Coupling,
		PowerDownDelayActive: c.state.PowerDownDelayActive,
		ESR:                  c.state.ESR,
		OnTime:               c.onTime.Total(),
		MasterTest:           c.state.MasterTest,
		LastPowerUpTest:      c.state.LastPowerUpTest,
		Channels:             make([]ChannelStatus, 0, len(c.channels)),
		QueuedCommands:       c.bus.Len(),
		UpdatedAt:            c.now(),
	}
	for _, ch := range c.channels {
		s.Channels = append(s.Channels, ChannelStatus{
			Slot:          ch.Slot(),
			Module:        string(ch.Module().Type),
			Voltage:       ch.Voltage(),
			Current:       ch.Current(),
			CurrentLimit:  ch.CurrentLimit(),
			Measured:      ch.MeasuredCurrent(),
			OutputEnabled: ch.IsOutputEnabled(),
		})
	}
	c.status.Store(s)
}

// Status returns the last published snapshot. Readers may see state up to one
// publish interval old.
func (c *Controller) Status() Status {
	return *c.status.Load()
}

func (c *Controller) IsPowerUp() bool {
	return c.status.Load().PoweredUp
}

func (c *Controller) RemoteLockState() model.RLState {
	return c.status.Load().RLState
}

func (c *Controller) MaxCurrentLimitCause() model.MaxCurrentLimitCause {
	return c.status.Load().LimitCause
}

func (c *Controller) BootTestPassed() bool {
	return c.status.Load().BootTestPassed
}

func (c *Controller) MasterTest() diag.Report {
	return c.status.Load().MasterTest
}
