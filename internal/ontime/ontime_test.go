package ontime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounter_AccumulatesOnlyWhileRunning(t *testing.T) {
	c := New("power")
	c.Tick(1_000)
	assert.Equal(t, time.Duration(0), c.Total())

	c.Start()
	c.Tick(2_000)
	c.Tick(3_000)
	c.Tick(5_000)
	assert.Equal(t, 3*time.Millisecond, c.Total())

	c.Stop()
	c.Tick(10_000)
	assert.Equal(t, 3*time.Millisecond, c.Total())

	// restarting does not count the stopped interval
	c.Start()
	c.Tick(20_000)
	c.Tick(21_000)
	assert.Equal(t, 4*time.Millisecond, c.Total())
}

func TestCounter_Restore(t *testing.T) {
	c := New("power")
	c.Restore(time.Hour)
	c.Start()
	c.Tick(0)
	c.Tick(1_000_000)
	assert.Equal(t, time.Hour+time.Second, c.Total())
}
