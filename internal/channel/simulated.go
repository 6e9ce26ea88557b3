package channel

import (
	"math"

	"github.com/thatsimonsguy/psu-controller/internal/model"
)

// Simulated is a driver with no hardware behind it. It is what runs in slots
// until board drivers are attached, and what tests drive the controller with.
type Simulated struct {
	slot   int
	module Module

	uSet, iSet, iLimit float64
	output             bool
	measured           float64

	// Load is the current the simulated load would draw if unrestricted.
	Load float64
	// FailTest makes Test report failure.
	FailTest bool

	Calibration model.Calibration
	LastTick    uint64

	Resets, Inits, Updates, PowerDowns, Tests int
}

func NewSimulated(slot int, m Module) *Simulated {
	s := &Simulated{slot: slot, module: m}
	s.iLimit = m.CurrentMax
	return s
}

func (s *Simulated) Slot() int      { return s.slot }
func (s *Simulated) Module() Module { return s.module }

func (s *Simulated) Reset() {
	s.Resets++
	s.uSet, s.iSet = 0, 0
	s.iLimit = s.module.CurrentMax
	s.output = false
	s.measured = 0
}

func (s *Simulated) Init() { s.Inits++ }

func (s *Simulated) Test() bool {
	s.Tests++
	return !s.FailTest
}

func (s *Simulated) Tick(usec uint64) {
	s.LastTick = usec
	if !s.output {
		s.measured = 0
		return
	}
	s.measured = math.Min(s.Load, math.Min(s.iSet, s.iLimit))
}

func (s *Simulated) Update() { s.Updates++ }

func (s *Simulated) OnPowerDown() {
	s.PowerDowns++
	s.output = false
	s.measured = 0
}

func (s *Simulated) OutputEnable(enable bool) {
	if !s.module.Present() {
		return
	}
	s.output = enable
	if !enable {
		s.measured = 0
	}
}

func (s *Simulated) IsOutputEnabled() bool { return s.output }

func (s *Simulated) SetVoltage(v float64) { s.uSet = clamp(v, 0, s.module.VoltageMax) }
func (s *Simulated) Voltage() float64     { return s.uSet }

func (s *Simulated) SetCurrent(i float64) { s.iSet = clamp(i, s.module.CurrentMin, s.iLimit) }
func (s *Simulated) Current() float64     { return s.iSet }

func (s *Simulated) SetCurrentLimit(limit float64) float64 {
	prev := s.iLimit
	s.iLimit = clamp(limit, 0, s.module.CurrentMax)
	if s.iSet > s.iLimit {
		s.iSet = s.iLimit
	}
	return prev
}

func (s *Simulated) CurrentLimit() float64    { return s.iLimit }
func (s *Simulated) MinCurrent() float64      { return s.module.CurrentMin }
func (s *Simulated) MeasuredCurrent() float64 { return s.measured }

// SetMeasuredCurrent overrides the last measurement until the next Tick.
func (s *Simulated) SetMeasuredCurrent(i float64) { s.measured = i }

func (s *Simulated) SetCalibration(cal model.Calibration) { s.Calibration = cal }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
