package sound

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlayer_PlaysCuesInOrderWithoutOverlap(t *testing.T) {
	rec := &Recorder{}
	p := NewPlayer(rec, true)

	p.PlayPowerUp(PowerUpConditionNone)
	p.PlayPowerUp(PowerUpConditionTestSuccessful)

	p.Tick(0)
	assert.Equal(t, []Cue{CuePowerUp}, rec.Played)

	p.Tick(100_000) // still playing
	assert.Equal(t, []Cue{CuePowerUp}, rec.Played)

	p.Tick(400_000)
	assert.Equal(t, []Cue{CuePowerUp, CuePowerUpSuccess}, rec.Played)
}

func TestPlayer_Disabled(t *testing.T) {
	rec := &Recorder{}
	p := NewPlayer(rec, false)
	p.PlayBeep()
	p.Tick(0)
	assert.Empty(t, rec.Played)
}

func TestPlayer_QueueIsBounded(t *testing.T) {
	p := NewPlayer(nil, true)
	for i := 0; i < maxQueued+5; i++ {
		p.PlayBeep()
	}
	assert.Len(t, p.queue, maxQueued)
}
