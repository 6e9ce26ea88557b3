//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// NewRail requests the rail line as an output, initially off.
func NewRail(chipName string, offset int, activeHigh bool) (*Rail, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	off := 0
	if !activeHigh {
		off = 1
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(off), gpiocdev.WithConsumer("psu-rail"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request rail line %d: %w", offset, err)
	}

	r := newRail(fmt.Sprintf("%s:%d", chipName, offset), line, activeHigh)
	r.closeChip = chip.Close
	return r, nil
}
