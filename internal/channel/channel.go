// Package channel defines the contract the power controller uses to drive one
// output channel, and identifies which module is fitted in each slot.
package channel

import "github.com/thatsimonsguy/psu-controller/internal/model"

// Driver owns electrical regulation for one channel. All methods are called
// from the control loop only.
type Driver interface {
	Slot() int // 1-based
	Module() Module

	Reset()
	Init()
	Test() bool
	Tick(usec uint64)
	Update()
	OnPowerDown()

	OutputEnable(enable bool)
	IsOutputEnabled() bool

	SetVoltage(v float64)
	Voltage() float64
	SetCurrent(i float64)
	Current() float64
	SetCurrentLimit(limit float64) (previous float64)
	CurrentLimit() float64
	MinCurrent() float64
	MeasuredCurrent() float64
}

// Calibrated is implemented by drivers that accept stored calibration tags.
type Calibrated interface {
	SetCalibration(cal model.Calibration)
}

func Params(d Driver) model.ChannelParams {
	return model.ChannelParams{
		Voltage:       d.Voltage(),
		Current:       d.Current(),
		CurrentLimit:  d.CurrentLimit(),
		OutputEnabled: d.IsOutputEnabled(),
	}
}
