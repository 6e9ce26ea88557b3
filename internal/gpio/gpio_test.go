package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRailActiveHigh(t *testing.T) {
	SetSafeMode(false)
	r, line := NewFakeRail(true)

	require.NoError(t, r.PowerUp())
	assert.True(t, r.IsOn())
	v, _ := line.Value()
	assert.Equal(t, 1, v)
	assert.True(t, r.Test())

	require.NoError(t, r.PowerDown())
	assert.False(t, r.IsOn())
	v, _ = line.Value()
	assert.Equal(t, 0, v)
	assert.True(t, r.Test())
}

func TestRailActiveLow(t *testing.T) {
	SetSafeMode(false)
	r, line := NewFakeRail(false)

	assert.True(t, r.Test(), "idle active-low rail reads high")

	require.NoError(t, r.PowerUp())
	v, _ := line.Value()
	assert.Equal(t, 0, v)
	assert.True(t, r.Test())
}

func TestRailReadbackMismatch(t *testing.T) {
	SetSafeMode(false)
	r, line := NewFakeRail(true)
	line.Stuck = true

	require.NoError(t, r.PowerUp())
	assert.False(t, r.Test())

	line.ReadErr = errors.New("ebusy")
	assert.False(t, r.Test())
}

func TestRailSetError(t *testing.T) {
	SetSafeMode(false)
	r, line := NewFakeRail(true)
	line.SetErr = errors.New("eio")

	assert.Error(t, r.PowerUp())
}

func TestRailSafeMode(t *testing.T) {
	SetSafeMode(true)
	defer SetSafeMode(false)

	r, line := NewFakeRail(true)
	require.NoError(t, r.PowerUp())
	assert.True(t, r.IsOn())
	assert.Equal(t, 0, line.SetCalls)
	assert.True(t, r.Test())
}

func TestRailClose(t *testing.T) {
	SetSafeMode(false)
	r, line := NewFakeRail(true)
	require.NoError(t, r.PowerUp())

	require.NoError(t, r.Close())
	assert.True(t, line.Closed)
	v, _ := line.Value()
	assert.Equal(t, 0, v)
}
