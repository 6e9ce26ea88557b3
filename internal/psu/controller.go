// Package psu is the control core of the power supply: boot sequencing, the power
// state machine, protection responses and the fixed-order control tick.
//
// All mutable state is owned by the goroutine running Controller.Run. Other goroutines
// either read the published Status snapshot or post commands on the bus; a posted
// command has not taken effect when the call returns.
package psu

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/internal/bus"
	"github.com/thatsimonsguy/psu-controller/internal/channel"
	"github.com/thatsimonsguy/psu-controller/internal/diag"
	"github.com/thatsimonsguy/psu-controller/internal/model"
	"github.com/thatsimonsguy/psu-controller/internal/ontime"
	"github.com/thatsimonsguy/psu-controller/internal/recall"
)

// ESRPowerOn is the power-on bit of the event status register.
const ESRPowerOn uint8 = 1 << 7

type Options struct {
	Slots             int
	MinPowerUpDelay   time.Duration
	MaxCurrentCeiling float64
	Master            diag.MasterOptions
	// StatusEvery publishes a status snapshot every n ticks.
	StatusEvery int
	Now         func() time.Time
}

func (o *Options) applyDefaults() {
	if o.MinPowerUpDelay == 0 {
		o.MinPowerUpDelay = 5 * time.Second
	}
	if o.MaxCurrentCeiling == 0 {
		o.MaxCurrentCeiling = 2
	}
	if o.StatusEvery == 0 {
		o.StatusEvery = 50
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// State is owned by the control loop and never shared.
type State struct {
	PoweredUp            bool
	Booted               bool
	BootTestPassed       bool
	RLState              model.RLState
	PowerDownDelayActive bool
	LastPowerDown        time.Time
	LimitCause           model.MaxCurrentLimitCause
	Coupling             model.Coupling
	DeviceConfig         model.DeviceConfig
	ESR                  uint8
	MasterTest           diag.Report
	LastPowerUpTest      diag.Report
}

type Controller struct {
	opts   Options
	deps   Deps
	bus    *bus.Bus
	recall *recall.Manager
	onTime *ontime.Counter

	channels []channel.Driver
	state    State

	started  time.Time
	lastUsec uint64
	ticks    int

	status       atomic.Pointer[Status]
	diagCallback atomic.Pointer[func()]
}

func New(opts Options, deps Deps, b *bus.Bus) *Controller {
	opts.applyDefaults()
	if deps.Modules == nil {
		deps.Modules = channel.DefaultTable()
	}
	if b == nil {
		b = bus.New(0)
	}
	if deps.NewChannel == nil {
		deps.NewChannel = func(slot int, m channel.Module) channel.Driver {
			return channel.NewSimulated(slot, m)
		}
	}

	c := &Controller{
		opts:   opts,
		deps:   deps,
		bus:    b,
		recall: recall.NewManager(deps.Store, deps.Events),
		onTime: ontime.New("power"),
		state: State{
			RLState:    model.RLStateLocal,
			LimitCause: model.MaxCurrentLimitCauseNone,
			Coupling:   model.CouplingNone,
		},
	}
	c.status.Store(&Status{})
	return c
}

type ownerKey struct{}

func (c *Controller) isOwner(ctx context.Context) bool {
	owner, _ := ctx.Value(ownerKey{}).(*Controller)
	return owner == c
}

// OwnerContext marks ctx as belonging to the control loop. Run does this itself;
// it is exported for code that drives the controller synchronously, such as tests.
func (c *Controller) OwnerContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ownerKey{}, c)
}

// Run boots the controller on the calling goroutine and then serves commands and
// ticks until ctx is done. Pending commands are always drained before the next tick.
func (c *Controller) Run(ctx context.Context, ticks <-chan time.Time) error {
	ctx = c.OwnerContext(ctx)
	c.started = c.opts.Now()

	c.boot()
	c.publish()

	for {
		c.drain(ctx)

		select {
		case <-ctx.Done():
			log.Info().Msg("Control loop stopped")
			return nil
		case cmd := <-c.bus.Commands():
			c.execute(ctx, cmd)
		case t := <-ticks:
			c.Tick(c.usecAt(t))
		}
	}
}

func (c *Controller) drain(ctx context.Context) {
	for {
		select {
		case cmd := <-c.bus.Commands():
			c.execute(ctx, cmd)
		default:
			return
		}
	}
}

func (c *Controller) execute(ctx context.Context, cmd bus.Command) {
	log.Debug().Str("command", cmd.Kind.String()).Bool("up", cmd.Up).Msg("Executing command")
	switch cmd.Kind {
	case bus.KindChangePowerState:
		c.ChangePowerState(ctx, cmd.Up)
	case bus.KindReset:
		c.Reset(ctx)
	default:
		log.Warn().Int("kind", int(cmd.Kind)).Msg("Unknown command")
	}
}

// usecAt converts a tick time to microseconds since Run started, never going backwards.
func (c *Controller) usecAt(t time.Time) uint64 {
	d := t.Sub(c.started)
	if d < 0 {
		return c.lastUsec
	}
	usec := uint64(d / time.Microsecond)
	if usec < c.lastUsec {
		return c.lastUsec
	}
	return usec
}

// ChangePowerState requests a power transition. Off the control loop the request is
// queued and the call returns before it takes effect.
func (c *Controller) ChangePowerState(ctx context.Context, up bool) {
	if !c.isOwner(ctx) {
		c.bus.Submit(bus.ChangePowerState(up))
		return
	}
	c.changePowerState(up)
	c.publish()
}

// Reset restores factory protection settings, resets every channel and powers up.
// Off the control loop the request is queued and true is returned.
func (c *Controller) Reset(ctx context.Context) bool {
	if !c.isOwner(ctx) {
		c.bus.Submit(bus.Reset())
		return true
	}

	ok := c.psuReset()
	if ok {
		c.save(c.state.PoweredUp, false)
	}
	c.publish()
	return ok
}

// SetDiagCallback schedules fn to run once at the end of the next tick. A nil fn clears
// any pending callback. Safe from any goroutine.
func (c *Controller) SetDiagCallback(fn func()) {
	if fn == nil {
		c.diagCallback.Store(nil)
		return
	}
	c.diagCallback.Store(&fn)
}

// Channels returns the channel drivers. Only the control loop may use them.
func (c *Controller) Channels() []channel.Driver {
	return c.channels
}

func (c *Controller) now() time.Time {
	return c.opts.Now()
}
