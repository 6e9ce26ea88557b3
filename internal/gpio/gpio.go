package gpio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

var safeMode bool

// SetSafeMode stops every rail from driving its line. Commands are still tracked.
func SetSafeMode(enabled bool) {
	safeMode = enabled
}

// Line is the part of a requested output line the rail needs.
type Line interface {
	SetValue(value int) error
	Value() (int, error)
	Close() error
}

// Rail switches the main board power rail feeding the channel modules.
type Rail struct {
	mu         sync.Mutex
	name       string
	line       Line
	activeHigh bool
	on         bool
	closeChip  func() error
}

func newRail(name string, line Line, activeHigh bool) *Rail {
	return &Rail{name: name, line: line, activeHigh: activeHigh}
}

func (r *Rail) level(on bool) int {
	if on == r.activeHigh {
		return 1
	}
	return 0
}

func (r *Rail) set(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.on = on
	if safeMode {
		log.Debug().Str("rail", r.name).Bool("on", on).Msg("Safe mode, rail not driven")
		return nil
	}
	if err := r.line.SetValue(r.level(on)); err != nil {
		return fmt.Errorf("set rail %s on=%v: %w", r.name, on, err)
	}
	return nil
}

func (r *Rail) PowerUp() error {
	return r.set(true)
}

func (r *Rail) PowerDown() error {
	return r.set(false)
}

func (r *Rail) IsOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

// Test reads the line back and checks it matches the last command.
func (r *Rail) Test() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if safeMode {
		return true
	}
	v, err := r.line.Value()
	if err != nil {
		log.Error().Err(err).Str("rail", r.name).Msg("Failed to read back rail")
		return false
	}
	if v != r.level(r.on) {
		log.Error().Str("rail", r.name).Int("level", v).Bool("expected_on", r.on).Msg("Rail readback mismatch")
		return false
	}
	return true
}

// Close drives the rail off and releases the line.
func (r *Rail) Close() error {
	var errs []error
	if err := r.PowerDown(); err != nil {
		errs = append(errs, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	if r.closeChip != nil {
		if err := r.closeChip(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
