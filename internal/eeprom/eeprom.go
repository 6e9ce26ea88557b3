// Package eeprom reads the identity tag each channel module carries in a small I2C EEPROM.
package eeprom

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// the module id is a little-endian word at the start of the EEPROM
const idOffset = 0x00

type Reader struct {
	mu    sync.Mutex
	bus   i2c.Bus
	close func() error
	addrs []uint16
}

// Open initialises the host drivers and opens the named I2C bus. addrs holds one EEPROM
// address per slot, in slot order.
func Open(busName string, addrs []uint16) (*Reader, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %s: %w", busName, err)
	}
	r := NewReader(bus, addrs)
	r.close = bus.Close
	return r, nil
}

func NewReader(bus i2c.Bus, addrs []uint16) *Reader {
	return &Reader{bus: bus, addrs: addrs}
}

// ReadModuleID reads the tag of the module in slot (0-based).
func (r *Reader) ReadModuleID(slot int) (uint16, error) {
	if slot < 0 || slot >= len(r.addrs) {
		return 0, fmt.Errorf("no eeprom configured for slot %d", slot+1)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d := &i2c.Dev{Addr: r.addrs[slot], Bus: r.bus}
	read := make([]byte, 2)
	if err := d.Tx([]byte{idOffset}, read); err != nil {
		return 0, fmt.Errorf("read eeprom 0x%02x: %w", r.addrs[slot], err)
	}
	return uint16(read[0]) | uint16(read[1])<<8, nil
}

func (r *Reader) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}
