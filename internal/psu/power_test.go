package psu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/psu-controller/internal/model"
)

func TestChangePowerStateUpWhenAlreadyUpIsNoOp(t *testing.T) {
	f := newFixture(t, 2)
	f.boot(t)
	events := f.events.Events()

	f.c.ChangePowerState(f.ctx, true)

	assert.True(t, f.c.IsPowerUp())
	assert.Equal(t, events, f.events.Events())
	assert.Empty(t, f.store.Saves())
	for _, s := range f.sims {
		assert.Equal(t, 1, s.Inits)
	}
}

func TestChangePowerStateDownWhenAlreadyDownIsNoOp(t *testing.T) {
	f := newFixture(t, 1)
	f.thermal.allowed = false
	f.boot(t)
	require.False(t, f.c.IsPowerUp())

	f.c.ChangePowerState(f.ctx, false)

	assert.Empty(t, f.events.Events())
	assert.Empty(t, f.store.Saves())
	assert.False(t, f.c.Status().PowerDownDelayActive)
}

func TestPowerDownPersistsLiveProfileOnce(t *testing.T) {
	f := newFixture(t, 2)
	f.boot(t)

	f.sims[0].SetVoltage(7)
	f.sims[0].OutputEnable(true)
	f.c.state.Coupling = model.CouplingParallel
	f.c.state.LimitCause = model.MaxCurrentLimitCauseTemperature

	f.c.ChangePowerState(f.ctx, false)

	saves := f.store.Saves()
	require.Len(t, saves, 1)
	assert.True(t, saves[0].force)
	assert.False(t, saves[0].profile.PowerUp)
	assert.Equal(t, model.DefaultProfileSlot, saves[0].profile.Location)
	assert.Equal(t, 7.0, saves[0].profile.Channels[0].Voltage)
	assert.True(t, saves[0].profile.Channels[0].OutputEnabled, "saved before outputs drop")
	assert.Equal(t, model.CouplingParallel, saves[0].profile.Coupling)
	assert.Equal(t, []bool{false, true}, f.store.autoCalls)

	st := f.c.Status()
	assert.False(t, st.PoweredUp)
	assert.True(t, st.PowerDownDelayActive)
	assert.Equal(t, model.CouplingNone, st.Coupling)
	assert.Equal(t, model.MaxCurrentLimitCauseNone, st.LimitCause)
	assert.False(t, f.railOn())
	assert.Equal(t, model.EventInfoPowerDown, f.events.Events()[len(f.events.Events())-1])
	for _, s := range f.sims {
		assert.Equal(t, 1, s.PowerDowns)
		assert.False(t, s.IsOutputEnabled())
	}
	assert.True(t, f.logContains("fan:reset_test"))
	assert.True(t, f.logContains("sound:power_down"))
}

func TestPowerUpDwell(t *testing.T) {
	f := newFixture(t, 1)
	f.boot(t)

	f.c.ChangePowerState(f.ctx, false)
	require.False(t, f.c.IsPowerUp())
	events := len(f.events.Events())

	f.clock.Advance(4900 * time.Millisecond)
	f.c.ChangePowerState(f.ctx, true)
	assert.False(t, f.c.IsPowerUp(), "inside the dwell window")
	assert.Len(t, f.events.Events(), events)
	assert.True(t, f.c.Status().PowerDownDelayActive)

	f.clock.Advance(100 * time.Millisecond)
	f.c.ChangePowerState(f.ctx, true)
	assert.True(t, f.c.IsPowerUp())
	assert.False(t, f.c.Status().PowerDownDelayActive)
	assert.True(t, f.railOn())
}

func TestPowerUpRefusedByThermal(t *testing.T) {
	f := newFixture(t, 2)
	f.boot(t)
	f.c.ChangePowerState(f.ctx, false)
	f.clock.Advance(time.Minute)

	f.thermal.allowed = false
	events := f.events.Events()
	saves := len(f.store.Saves())
	resets := f.sims[0].Resets

	f.c.ChangePowerState(f.ctx, true)

	assert.False(t, f.c.IsPowerUp())
	assert.False(t, f.railOn())
	assert.Equal(t, events, f.events.Events())
	assert.Len(t, f.store.Saves(), saves)
	assert.Equal(t, resets, f.sims[0].Resets)
	assert.True(t, f.c.BootTestPassed(), "a refused attempt still marks the boot test passed")
}

func TestPowerUpSavesAndReloadsConfig(t *testing.T) {
	f := newFixture(t, 2)
	f.boot(t)
	f.c.ChangePowerState(f.ctx, false)
	f.clock.Advance(time.Minute)

	// enabled after boot, picked up on the next power up
	f.store.conf = model.DeviceConfig{AutoRecallEnabled: true, AutoRecallLocation: 0, FrontPanelLocked: true}
	f.store.profiles[0] = profileWith(0, true,
		model.ChannelParams{Voltage: 9, Current: 2, CurrentLimit: 4, OutputEnabled: true},
		model.ChannelParams{Voltage: 1, Current: 1, CurrentLimit: 4})

	f.c.ChangePowerState(f.ctx, true)

	require.True(t, f.c.IsPowerUp())
	assert.Equal(t, model.RLStateRemote, f.c.RemoteLockState())
	assert.Equal(t, 9.0, f.sims[0].Voltage())
	assert.True(t, f.sims[0].IsOutputEnabled())
	assert.False(t, f.sims[1].IsOutputEnabled())

	saves := f.store.Saves()
	last := saves[len(saves)-1]
	assert.False(t, last.force)
	assert.True(t, last.profile.PowerUp)
	assert.Equal(t, 9.0, last.profile.Channels[0].Voltage)
}

func TestPowerUpClearsEarlierBootFailure(t *testing.T) {
	f := newFixture(t, 1)
	f.harness.fail["clock"] = true
	f.boot(t)
	require.False(t, f.c.BootTestPassed())

	f.c.ChangePowerState(f.ctx, false)
	f.clock.Advance(time.Minute)
	f.harness.fail["clock"] = false
	f.c.ChangePowerState(f.ctx, true)

	assert.True(t, f.c.BootTestPassed())
	assert.Len(t, f.c.Status().LastPowerUpTest.Results, 5+3, "master tests run after boot")
}

func TestPowerUpRailFailureIsATestFailure(t *testing.T) {
	f := newFixture(t, 1)
	f.boot(t)
	f.c.ChangePowerState(f.ctx, false)
	f.clock.Advance(time.Minute)

	f.line.SetErr = assert.AnError
	f.c.ChangePowerState(f.ctx, true)

	assert.True(t, f.c.IsPowerUp())
	assert.False(t, f.c.BootTestPassed())
	assert.Contains(t, f.c.Status().LastPowerUpTest.Failed(), "rail")
}

func TestResetOnOwner(t *testing.T) {
	f := newFixture(t, 2)
	f.boot(t)
	f.sims[0].SetVoltage(12)
	f.c.state.Coupling = model.CouplingSeries

	assert.True(t, f.c.Reset(f.ctx))

	assert.Equal(t, 2, f.thermal.protResets)
	assert.Zero(t, f.sims[0].Voltage())
	assert.Equal(t, 2, f.sims[0].Updates)
	assert.Equal(t, model.CouplingNone, f.c.Status().Coupling)

	saves := f.store.Saves()
	require.Len(t, saves, 1)
	assert.False(t, saves[0].force)
	assert.True(t, saves[0].profile.PowerUp)
}

func TestResetRefusedByThermalDoesNotSave(t *testing.T) {
	f := newFixture(t, 1)
	f.boot(t)
	f.c.ChangePowerState(f.ctx, false)
	f.thermal.allowed = false
	saves := len(f.store.Saves())

	assert.False(t, f.c.Reset(f.ctx))
	assert.False(t, f.c.IsPowerUp())
	assert.Len(t, f.store.Saves(), saves)
}
