package gpio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// PinState is one line of `pinctrl get` output.
type PinState struct {
	Pin     int
	Mode    string // e.g., "ip", "op", "no"
	Pull    string // e.g., "pu", "pd", "pn"
	Drive   string // e.g., "dh", "dl", ""
	Level   string // e.g., "hi", "lo", "--"
	Comment string
}

var pinLineRegex = regexp.MustCompile(`^\s*(\d+):\s+(\S+)\s+(.*?)\s+\|\s+(\S+)\s+//\s+(.*GPIO(\d+).*)$`)

var runPinctrl = func(args ...string) ([]byte, error) {
	return exec.Command("pinctrl", args...).CombinedOutput()
}

func parseGetOutput(r io.Reader) map[int]PinState {
	result := make(map[int]PinState)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		matches := pinLineRegex.FindStringSubmatch(scanner.Text())
		if len(matches) != 7 {
			continue
		}

		index, _ := strconv.Atoi(matches[1])
		state := PinState{
			Pin:     index,
			Mode:    matches[2],
			Level:   matches[4],
			Comment: matches[5],
		}
		for _, opt := range strings.Fields(matches[3]) {
			if state.Pull == "" && (opt == "pu" || opt == "pd" || opt == "pn") {
				state.Pull = opt
			} else if state.Drive == "" && (opt == "dh" || opt == "dl") {
				state.Drive = opt
			}
		}
		result[state.Pin] = state
	}
	return result
}

func ReadPin(pin int) (*PinState, error) {
	out, err := runPinctrl("get", fmt.Sprint(pin))
	if err != nil {
		return nil, fmt.Errorf("pinctrl get %d: %w", pin, err)
	}
	state, ok := parseGetOutput(bytes.NewReader(out))[pin]
	if !ok {
		return nil, fmt.Errorf("pin %d not found in pinctrl output", pin)
	}
	return &state, nil
}

// pinctrlLine drives a Raspberry Pi header pin through the pinctrl tool, for boards
// where the gpio character device is not available to the service user.
type pinctrlLine struct {
	pin int
}

func (l *pinctrlLine) SetValue(v int) error {
	drive := "dl"
	if v == 1 {
		drive = "dh"
	}
	if out, err := runPinctrl("set", fmt.Sprint(l.pin), "op", "pn", drive); err != nil {
		return fmt.Errorf("pinctrl set failed: %s (output: %s)", err, string(out))
	}
	return nil
}

func (l *pinctrlLine) Value() (int, error) {
	out, err := runPinctrl("lev", fmt.Sprint(l.pin))
	if err != nil {
		return 0, fmt.Errorf("failed to read level for pin %d: %w", l.pin, err)
	}
	switch trimmed := strings.TrimSpace(string(out)); trimmed {
	case "1":
		return 1, nil
	case "0":
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected output from pinctrl lev: %q", trimmed)
	}
}

func (l *pinctrlLine) Close() error { return nil }

// NewPinctrlRail returns a rail on a header pin. A pin found driving the rail on is
// forced off before the rail is handed out.
func NewPinctrlRail(pin int, activeHigh bool) (*Rail, error) {
	state, err := ReadPin(pin)
	if err != nil {
		return nil, err
	}

	r := newRail(fmt.Sprintf("pinctrl-%d", pin), &pinctrlLine{pin: pin}, activeHigh)
	onDrive := "dh"
	if !activeHigh {
		onDrive = "dl"
	}
	if state.Mode == "op" && state.Drive == onDrive {
		log.Warn().Int("pin", pin).Str("drive", state.Drive).Msg("Main power rail found on at startup, forcing off")
	}
	if err := r.PowerDown(); err != nil {
		return nil, err
	}
	return r, nil
}
