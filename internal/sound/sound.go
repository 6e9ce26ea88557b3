// Package sound plays the instrument's audible cues. Cues are queued and
// advanced from the control tick so callers never wait on playback.
package sound

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Cue string

const (
	CuePowerUp        Cue = "power_up"
	CuePowerUpSuccess Cue = "power_up_success"
	CuePowerDown      Cue = "power_down"
	CueBeep           Cue = "beep"
)

var cueDurations = map[Cue]time.Duration{
	CuePowerUp:        400 * time.Millisecond,
	CuePowerUpSuccess: 600 * time.Millisecond,
	CuePowerDown:      400 * time.Millisecond,
	CueBeep:           150 * time.Millisecond,
}

type PowerUpCondition int

const (
	PowerUpConditionNone PowerUpCondition = iota
	PowerUpConditionTestSuccessful
)

// Output drives the actual transducer. Nil means cues are only logged.
type Output interface {
	Play(cue Cue)
}

const maxQueued = 8

type Player struct {
	mu      sync.Mutex
	out     Output
	enabled bool
	queue   []Cue
	playing Cue
	until   uint64
}

func NewPlayer(out Output, enabled bool) *Player {
	return &Player{out: out, enabled: enabled}
}

func (p *Player) Init() error {
	log.Debug().Bool("enabled", p.enabled).Msg("Sound initialized")
	return nil
}

func (p *Player) PlayPowerUp(cond PowerUpCondition) {
	if cond == PowerUpConditionTestSuccessful {
		p.enqueue(CuePowerUpSuccess)
		return
	}
	p.enqueue(CuePowerUp)
}

func (p *Player) PlayPowerDown() { p.enqueue(CuePowerDown) }
func (p *Player) PlayBeep()      { p.enqueue(CueBeep) }

func (p *Player) enqueue(c Cue) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) >= maxQueued {
		return
	}
	p.queue = append(p.queue, c)
}

// Tick starts the next queued cue once the current one has finished.
func (p *Player) Tick(usec uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing != "" && usec < p.until {
		return
	}
	p.playing = ""
	if len(p.queue) == 0 {
		return
	}

	c := p.queue[0]
	p.queue = p.queue[1:]
	p.playing = c
	p.until = usec + uint64(cueDurations[c]/time.Microsecond)

	log.Debug().Str("cue", string(c)).Msg("Playing sound")
	if p.out != nil {
		p.out.Play(c)
	}
}

// Recorder is an Output that remembers what was played.
type Recorder struct {
	mu     sync.Mutex
	Played []Cue
}

func (r *Recorder) Play(c Cue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Played = append(r.Played, c)
}
