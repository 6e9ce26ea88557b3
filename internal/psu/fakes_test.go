package psu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/psu-controller/internal/bus"
	"github.com/thatsimonsguy/psu-controller/internal/channel"
	"github.com/thatsimonsguy/psu-controller/internal/gpio"
	"github.com/thatsimonsguy/psu-controller/internal/model"
	"github.com/thatsimonsguy/psu-controller/internal/sound"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type savedProfile struct {
	profile *model.Profile
	force   bool
}

type fakeStore struct {
	mu        sync.Mutex
	conf      model.DeviceConfig
	confErr   error
	profiles  map[int]*model.Profile
	autoSave  bool
	saves     []savedProfile
	autoCalls []bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: map[int]*model.Profile{}, autoSave: true}
}

func (s *fakeStore) Init() error { return nil }

func (s *fakeStore) LoadDeviceConfig() (model.DeviceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conf, s.confErr
}

func (s *fakeStore) LoadChannelCalibration(slot int) (model.Calibration, error) {
	return model.Calibration{Slot: slot, Enabled: true, Remark: fmt.Sprintf("cal-%d", slot)}, nil
}

func (s *fakeStore) LoadProfile(slot int) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[slot]
	if !ok {
		return nil, errors.New("profile not found")
	}
	return p.Clone(), nil
}

func (s *fakeStore) SaveProfile(p *model.Profile, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !force && !s.autoSave {
		return nil
	}
	s.saves = append(s.saves, savedProfile{profile: p.Clone(), force: force})
	s.profiles[p.Location] = p.Clone()
	return nil
}

func (s *fakeStore) SetAutoSaveEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSave = enabled
	s.autoCalls = append(s.autoCalls, enabled)
}

func (s *fakeStore) Saves() []savedProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]savedProfile(nil), s.saves...)
}

// recorder stands in for every optional collaborator and logs what it is asked to do.
type recorder struct {
	name string

	mu  sync.Mutex
	log *[]string

	// thermal
	allowed     bool
	prot        []model.ProtectionConfig
	protResets  int
	fanTestFail bool

	events []model.EventKind
}

func newRecorder(name string, log *[]string) *recorder {
	return &recorder{name: name, log: log, allowed: true}
}

func (r *recorder) record(what string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.log != nil {
		*r.log = append(*r.log, what)
	}
}

func (r *recorder) Init() error      { return nil }
func (r *recorder) Tick(usec uint64) { r.record(r.name) }
func (r *recorder) Abort()           { r.record(r.name + ":abort") }
func (r *recorder) Reset()           { r.record(r.name + ":reset") }
func (r *recorder) Stop()            { r.record(r.name + ":stop") }

func (r *recorder) TestStart()       { r.record(r.name + ":test_start") }
func (r *recorder) Test() bool       { return !r.fanTestFail }
func (r *recorder) ResetTestResult() { r.record(r.name + ":reset_test") }

func (r *recorder) IsAllowedToPowerUp() bool { return r.allowed }
func (r *recorder) ProtectionConfigs() []model.ProtectionConfig {
	return append([]model.ProtectionConfig(nil), r.prot...)
}
func (r *recorder) SetProtectionConfigs(cfgs []model.ProtectionConfig) {
	r.prot = append([]model.ProtectionConfig(nil), cfgs...)
}
func (r *recorder) ResetProtection() {
	r.protResets++
	r.prot = []model.ProtectionConfig{{Sensor: 0, Level: 90, Delay: 10 * time.Second, Enabled: true}}
}

func (r *recorder) PlayPowerUp(cond sound.PowerUpCondition) {
	if cond == sound.PowerUpConditionTestSuccessful {
		r.record("sound:success")
		return
	}
	r.record("sound:power_up")
}
func (r *recorder) PlayPowerDown() { r.record("sound:power_down") }
func (r *recorder) PlayBeep()      { r.record("sound:beep") }

func (r *recorder) Push(kind model.EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind)
}

func (r *recorder) Events() []model.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.EventKind(nil), r.events...)
}

func (r *recorder) count(kind model.EventKind) int {
	n := 0
	for _, e := range r.Events() {
		if e == kind {
			n++
		}
	}
	return n
}

type fakeHarness struct {
	fail map[string]bool
}

func (h *fakeHarness) TestClock() bool    { return !h.fail["clock"] }
func (h *fakeHarness) TestDateTime() bool { return !h.fail["datetime"] }
func (h *fakeHarness) TestStorage() bool  { return !h.fail["storage"] }
func (h *fakeHarness) TestSDCard() bool   { return !h.fail["sd_card"] }
func (h *fakeHarness) TestNetwork() bool  { return !h.fail["network"] }
func (h *fakeHarness) TestThermal() bool  { return !h.fail["thermal"] }
func (h *fakeHarness) TestRelays() bool   { return !h.fail["relays"] }

type fakeIdentity map[int]uint16

func (f fakeIdentity) ReadModuleID(slot int) (uint16, error) {
	id, ok := f[slot]
	if !ok {
		return 0, errors.New("nack")
	}
	return id, nil
}

// tickingChannel logs its ticks into the shared order log.
type tickingChannel struct {
	*channel.Simulated
	log *[]string
}

func (t *tickingChannel) Tick(usec uint64) {
	*t.log = append(*t.log, fmt.Sprintf("channel_%d", t.Slot()))
	t.Simulated.Tick(usec)
}

type fixture struct {
	c       *Controller
	ctx     context.Context
	bus     *bus.Bus
	store   *fakeStore
	events  *recorder
	thermal *recorder
	sound   *recorder
	fan     *recorder
	harness *fakeHarness
	rail    *gpio.Rail
	line    *gpio.FakeLine
	clock   *fakeClock
	sims    []*channel.Simulated
	log     []string
}

func newFixture(t *testing.T, slots int, setup ...func(*fixture)) *fixture {
	t.Helper()
	gpio.SetSafeMode(false)

	f := &fixture{
		bus:     bus.New(10),
		store:   newFakeStore(),
		harness: &fakeHarness{fail: map[string]bool{}},
		clock:   &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.events = newRecorder("events", &f.log)
	f.thermal = newRecorder("thermal", &f.log)
	f.sound = newRecorder("sound", &f.log)
	f.fan = newRecorder("fan", &f.log)
	f.rail, f.line = gpio.NewFakeRail(true)

	identity := fakeIdentity{}
	for i := 0; i < slots; i++ {
		identity[i] = 405
	}

	deps := Deps{
		Store:    f.store,
		Events:   f.events,
		Rail:     f.rail,
		Harness:  f.harness,
		Thermal:  f.thermal,
		Sound:    f.sound,
		Fan:      f.fan,
		Identity: identity,
		NewChannel: func(slot int, m channel.Module) channel.Driver {
			s := channel.NewSimulated(slot, m)
			f.sims = append(f.sims, s)
			return s
		},
	}
	opts := Options{
		Slots:             slots,
		MinPowerUpDelay:   5 * time.Second,
		MaxCurrentCeiling: 3,
		StatusEvery:       1,
		Now:               f.clock.Now,
	}

	f.c = New(opts, deps, f.bus)
	for _, fn := range setup {
		fn(f)
	}
	f.ctx = f.c.OwnerContext(context.Background())
	return f
}

func (f *fixture) boot(t *testing.T) {
	t.Helper()
	f.c.boot()
	f.c.publish()
	require.True(t, f.c.state.Booted)
}

func (f *fixture) railOn() bool {
	v, _ := f.line.Value()
	return v == 1
}

func (f *fixture) logContains(what string) bool {
	for _, l := range f.log {
		if l == what {
			return true
		}
	}
	return false
}

func profileWith(location int, powerUp bool, params ...model.ChannelParams) *model.Profile {
	return &model.Profile{
		Location: location,
		Name:     fmt.Sprintf("slot-%d", location),
		PowerUp:  powerUp,
		Coupling: model.CouplingNone,
		Channels: params,
		TempProtection: []model.ProtectionConfig{
			{Sensor: 0, Level: 80, Delay: 5 * time.Second, Enabled: true},
		},
	}
}
