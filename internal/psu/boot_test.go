package psu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/psu-controller/internal/channel"
	"github.com/thatsimonsguy/psu-controller/internal/model"
)

func TestBootWithoutAutoRecallResetsAndPowersUp(t *testing.T) {
	f := newFixture(t, 2)
	f.boot(t)

	assert.True(t, f.c.IsPowerUp())
	assert.True(t, f.c.BootTestPassed())
	assert.True(t, f.railOn())
	assert.Equal(t, []model.EventKind{model.EventInfoPowerUp}, f.events.Events())
	assert.Equal(t, 1, f.thermal.protResets, "reset restores protection defaults")
	assert.True(t, f.logContains("sound:success"))
	assert.False(t, f.logContains("sound:beep"))

	require.Len(t, f.sims, 2)
	for _, s := range f.sims {
		assert.Equal(t, 1, s.Inits)
		assert.Equal(t, 1, s.Updates, "reset path updates channels after power up")
		assert.Equal(t, 1, s.Tests)
		assert.False(t, s.IsOutputEnabled())
		assert.Equal(t, "cal-"+string(rune('0'+s.Slot())), s.Calibration.Remark)
	}

	st := f.c.Status()
	assert.Equal(t, ESRPowerOn, st.ESR&ESRPowerOn)
	assert.True(t, st.MasterTest.Passed())
	assert.Len(t, st.MasterTest.Results, 5)
	assert.Len(t, st.Channels, 2)
}

func TestBootAggregateFailsOnAnyMasterTest(t *testing.T) {
	for _, name := range []string{"clock", "storage", "thermal", "datetime", "relays"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, 2)
			f.harness.fail[name] = true
			f.boot(t)

			assert.False(t, f.c.BootTestPassed())
			assert.True(t, f.c.IsPowerUp(), "failed tests never stop power up")
			assert.True(t, f.logContains("sound:beep"))
			assert.Equal(t, 1, f.events.count(model.EventWarningSelfTestFailed))
			assert.Equal(t, []string{name}, f.c.MasterTest().Failed())
		})
	}
}

func TestBootChannelTestFailureIsRecorded(t *testing.T) {
	f := newFixture(t, 2, func(f *fixture) {
		inner := f.c.deps.NewChannel
		f.c.deps.NewChannel = func(slot int, m channel.Module) channel.Driver {
			d := inner(slot, m)
			if slot == 2 {
				d.(*channel.Simulated).FailTest = true
			}
			return d
		}
	})
	f.boot(t)

	assert.True(t, f.c.IsPowerUp())
	assert.False(t, f.c.BootTestPassed())
	assert.Equal(t, []string{"channel_2"}, f.c.Status().LastPowerUpTest.Failed())
}

func TestBootUnknownModulesAreInert(t *testing.T) {
	f := newFixture(t, 3, func(f *fixture) {
		f.c.deps.Identity = fakeIdentity{0: 505, 1: 999}
	})
	f.boot(t)

	require.Len(t, f.sims, 3)
	assert.Equal(t, channel.ModuleTypeDCP505, f.sims[0].Module().Type)
	assert.False(t, f.sims[1].Module().Present(), "unknown tag")
	assert.False(t, f.sims[2].Module().Present(), "unreadable tag")

	f.sims[1].OutputEnable(true)
	assert.False(t, f.sims[1].IsOutputEnabled())
	assert.True(t, f.c.BootTestPassed())
}

func TestBootAutoRecallAppliesProfile(t *testing.T) {
	f := newFixture(t, 2)
	f.store.conf = model.DeviceConfig{AutoRecallEnabled: true, AutoRecallLocation: 3}
	f.store.profiles[0] = profileWith(0, true,
		model.ChannelParams{Voltage: 12, Current: 1, CurrentLimit: 5},
		model.ChannelParams{Voltage: 5, Current: 0.5, CurrentLimit: 5})
	f.store.profiles[3] = profileWith(3, true,
		model.ChannelParams{Voltage: 12, Current: 1, CurrentLimit: 4, OutputEnabled: true},
		model.ChannelParams{Voltage: 5, Current: 0.5, CurrentLimit: 5})
	f.boot(t)

	assert.True(t, f.c.IsPowerUp())
	assert.True(t, f.sims[0].IsOutputEnabled())
	assert.False(t, f.sims[1].IsOutputEnabled())
	assert.Equal(t, 12.0, f.sims[0].Voltage())
	assert.Equal(t, 4.0, f.sims[0].CurrentLimit())
	assert.Equal(t, 0, f.sims[0].Updates, "recall does not take the reset path")
	assert.Equal(t, 0, f.thermal.protResets)
	assert.Equal(t, 80.0, f.thermal.prot[0].Level)
	assert.Zero(t, f.events.count(model.EventWarningAutoRecallValuesMismatch))
}

func TestBootAutoRecallMismatchForcesOutputsOff(t *testing.T) {
	f := newFixture(t, 2)
	f.store.conf = model.DeviceConfig{AutoRecallEnabled: true, AutoRecallLocation: 3}
	f.store.profiles[0] = profileWith(0, true,
		model.ChannelParams{Voltage: 5, Current: 1, CurrentLimit: 5},
		model.ChannelParams{Voltage: 5, Current: 1, CurrentLimit: 5})
	f.store.profiles[3] = profileWith(3, true,
		model.ChannelParams{Voltage: 24, Current: 1, CurrentLimit: 5, OutputEnabled: true},
		model.ChannelParams{Voltage: 5, Current: 1, CurrentLimit: 5, OutputEnabled: true})
	f.boot(t)

	assert.Equal(t, 1, f.events.count(model.EventWarningAutoRecallValuesMismatch))
	assert.True(t, f.c.IsPowerUp())
	for _, s := range f.sims {
		assert.False(t, s.IsOutputEnabled())
	}
	assert.Equal(t, 24.0, f.sims[0].Voltage(), "setpoints are still restored")
	assert.True(t, f.store.profiles[3].Channels[0].OutputEnabled, "stored profile is untouched")
}

func TestBootAutoRecallPoweredOffProfile(t *testing.T) {
	f := newFixture(t, 1)
	f.store.conf = model.DeviceConfig{AutoRecallEnabled: true, AutoRecallLocation: 0}
	f.store.profiles[0] = profileWith(0, false, model.ChannelParams{Voltage: 3.3, Current: 1, CurrentLimit: 5, OutputEnabled: true})
	f.boot(t)

	assert.False(t, f.c.IsPowerUp())
	assert.False(t, f.railOn())
	assert.False(t, f.sims[0].IsOutputEnabled(), "no output while powered down")
	assert.Equal(t, 3.3, f.sims[0].Voltage())
	assert.Empty(t, f.events.Events())
}

func TestBootAutoRecallMissingSlotFallsBackToReset(t *testing.T) {
	f := newFixture(t, 1)
	f.store.conf = model.DeviceConfig{AutoRecallEnabled: true, AutoRecallLocation: 7}
	f.boot(t)

	assert.True(t, f.c.IsPowerUp())
	assert.Equal(t, 1, f.sims[0].Updates)
	assert.Equal(t, 1, f.thermal.protResets)
}

func TestBootThermalInhibitLeavesPoweredDown(t *testing.T) {
	f := newFixture(t, 1)
	f.thermal.allowed = false
	f.boot(t)

	assert.False(t, f.c.IsPowerUp())
	assert.False(t, f.railOn())
	assert.Empty(t, f.events.Events())
}

func TestBootFrontPanelLock(t *testing.T) {
	f := newFixture(t, 1)
	f.store.conf = model.DeviceConfig{FrontPanelLocked: true}
	f.boot(t)

	assert.Equal(t, model.RLStateRemote, f.c.RemoteLockState())
}
