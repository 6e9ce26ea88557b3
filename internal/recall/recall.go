// Package recall decides whether a saved operating point may be restored at
// power-up and with which outputs.
package recall

import (
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/psu-controller/internal/model"
)

type ProfileLoader interface {
	LoadProfile(slot int) (*model.Profile, error)
}

type EventLog interface {
	Push(kind model.EventKind)
}

type Policy struct {
	Enabled             bool
	Location            int
	ForceDisableOutputs bool
	BootTestPassed      bool
}

func PolicyFrom(conf model.DeviceConfig, bootTestPassed bool) Policy {
	return Policy{
		Enabled:             conf.AutoRecallEnabled,
		Location:            conf.AutoRecallLocation,
		ForceDisableOutputs: conf.ForceDisableOutputsOnPowerUp,
		BootTestPassed:      bootTestPassed,
	}
}

type Reason string

const (
	ReasonNone           Reason = ""
	ReasonForcedByPolicy Reason = "forced_by_policy"
	ReasonSelfTestFailed Reason = "self_test_failed"
	ReasonDefaultMissing Reason = "default_profile_unavailable"
	ReasonValuesMismatch Reason = "values_mismatch"
)

type Decision struct {
	DisableOutputs bool
	Mismatch       bool
	Reason         Reason
}

// Evaluate decides whether the outputs in p must be forced off. def is the
// default profile (nil when it could not be loaded); it is only consulted for
// non-default locations.
func Evaluate(p, def *model.Profile, pol Policy, numChannels int) Decision {
	if !p.AnyOutputEnabled(numChannels) {
		return Decision{}
	}
	if pol.ForceDisableOutputs {
		return Decision{DisableOutputs: true, Reason: ReasonForcedByPolicy}
	}
	if !pol.BootTestPassed {
		return Decision{DisableOutputs: true, Reason: ReasonSelfTestFailed}
	}
	if p.Location == model.DefaultProfileSlot {
		return Decision{}
	}
	if def == nil {
		return Decision{DisableOutputs: true, Reason: ReasonDefaultMissing}
	}
	if valuesMismatch(p, def, numChannels) {
		return Decision{DisableOutputs: true, Mismatch: true, Reason: ReasonValuesMismatch}
	}
	return Decision{}
}

func valuesMismatch(p, def *model.Profile, numChannels int) bool {
	if p.Coupling != def.Coupling {
		return true
	}
	for i := 0; i < numChannels; i++ {
		a, aok := channelAt(p, i)
		b, bok := channelAt(def, i)
		if aok != bok {
			return true
		}
		if a.Voltage != b.Voltage || a.Current != b.Current {
			return true
		}
	}
	return false
}

func channelAt(p *model.Profile, i int) (model.ChannelParams, bool) {
	if i < len(p.Channels) {
		return p.Channels[i], true
	}
	return model.ChannelParams{}, false
}

type Manager struct {
	store  ProfileLoader
	events EventLog
}

func NewManager(store ProfileLoader, events EventLog) *Manager {
	return &Manager{store: store, events: events}
}

// LoadAutoRecallProfile returns the profile to restore at power-up, or false
// when auto-recall is disabled or the configured slot cannot be loaded. A
// profile that fails the safety check is still returned, with every output
// forced off; the stored profile is never modified.
func (m *Manager) LoadAutoRecallProfile(pol Policy, numChannels int) (*model.Profile, bool) {
	if !pol.Enabled {
		return nil, false
	}

	p, err := m.store.LoadProfile(pol.Location)
	if err != nil {
		log.Warn().Err(err).Int("location", pol.Location).Msg("Could not load auto-recall profile")
		return nil, false
	}

	var def *model.Profile
	if p.AnyOutputEnabled(numChannels) && pol.Location != model.DefaultProfileSlot &&
		!pol.ForceDisableOutputs && pol.BootTestPassed {
		def, err = m.store.LoadProfile(model.DefaultProfileSlot)
		if err != nil {
			log.Warn().Err(err).Msg("Could not load default profile for auto-recall comparison")
			def = nil
		}
	}

	decision := Evaluate(p, def, pol, numChannels)
	if !decision.DisableOutputs {
		return p, true
	}

	if decision.Mismatch {
		m.events.Push(model.EventWarningAutoRecallValuesMismatch)
	}
	log.Warn().
		Int("location", pol.Location).
		Str("reason", string(decision.Reason)).
		Msg("Auto-recall profile loaded with outputs forced off")

	out := p.Clone()
	for i := range out.Channels {
		out.Channels[i].OutputEnabled = false
	}
	return out, true
}
