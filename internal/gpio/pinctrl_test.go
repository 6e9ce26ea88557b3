package gpio

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGetAllOutput(t *testing.T) {
	sample := `
 0: ip    pu | hi // ID_SDA/GPIO0 = input
 1: ip    pu | hi // ID_SCL/GPIO1 = input
 2: no    pu | -- // GPIO2 = none
 4: ip    pn | lo // GPIO4 = input
 5: op dh pu | hi // GPIO5 = output
26: op dl pn | lo // GPIO26 = output
garbage line
`
	states := parseGetOutput(strings.NewReader(sample))

	require.Len(t, states, 6)
	assert.Equal(t, PinState{Pin: 5, Mode: "op", Pull: "pu", Drive: "dh", Level: "hi", Comment: "GPIO5 = output"}, states[5])
	assert.Equal(t, "--", states[2].Level)
	assert.Equal(t, "no", states[2].Mode)
	assert.Equal(t, "dl", states[26].Drive)
}

type pinctrlCall []string

func fakePinctrl(t *testing.T, responses map[string]string) *[]pinctrlCall {
	var calls []pinctrlCall
	orig := runPinctrl
	runPinctrl = func(args ...string) ([]byte, error) {
		calls = append(calls, args)
		out, ok := responses[args[0]]
		if !ok {
			return nil, errors.New("exit status 1")
		}
		return []byte(out), nil
	}
	t.Cleanup(func() { runPinctrl = orig })
	return &calls
}

func TestPinctrlRailForcesOffAtStartup(t *testing.T) {
	SetSafeMode(false)
	calls := fakePinctrl(t, map[string]string{
		"get": "25: op dh pd | hi // GPIO25 = output\n",
		"set": "",
		"lev": "0\n",
	})

	r, err := NewPinctrlRail(25, true)
	require.NoError(t, err)

	assert.Equal(t, pinctrlCall{"set", "25", "op", "pn", "dl"}, (*calls)[1])
	assert.False(t, r.IsOn())
	assert.True(t, r.Test())

	require.NoError(t, r.PowerUp())
	assert.Equal(t, pinctrlCall{"set", "25", "op", "pn", "dh"}, (*calls)[len(*calls)-1])
}

func TestPinctrlRailActiveLow(t *testing.T) {
	SetSafeMode(false)
	calls := fakePinctrl(t, map[string]string{
		"get": "25: ip pu | hi // GPIO25 = input\n",
		"set": "",
	})

	_, err := NewPinctrlRail(25, false)
	require.NoError(t, err)
	assert.Equal(t, pinctrlCall{"set", "25", "op", "pn", "dh"}, (*calls)[1])
}

func TestPinctrlRailMissingPin(t *testing.T) {
	fakePinctrl(t, map[string]string{"get": "4: ip pn | lo // GPIO4 = input\n"})

	_, err := NewPinctrlRail(25, true)
	assert.Error(t, err)
}

func TestPinctrlLineValueErrors(t *testing.T) {
	fakePinctrl(t, map[string]string{"lev": "maybe"})

	_, err := (&pinctrlLine{pin: 3}).Value()
	assert.Error(t, err)
}
