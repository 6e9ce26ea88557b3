//go:build !linux

package gpio

import "fmt"

func NewRail(chipName string, offset int, activeHigh bool) (*Rail, error) {
	return nil, fmt.Errorf("gpio character device not supported on this platform")
}
