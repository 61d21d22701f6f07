package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_NowIsFrozen(t *testing.T) {
	c := NewFakeClock(Epoch)
	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, Epoch, c.Now())
}

func TestFakeClock_AdvanceFiresDueTimersInOrder(t *testing.T) {
	c := NewFakeClock(Epoch)

	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(5*time.Second, func() { fired = append(fired, "c") })

	c.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, Epoch.Add(3*time.Second), c.Now())
}

func TestFakeClock_CallbackSeesDeadlineTime(t *testing.T) {
	c := NewFakeClock(Epoch)

	var seen time.Time
	c.AfterFunc(time.Second, func() { seen = c.Now() })

	c.Advance(10 * time.Second)
	assert.Equal(t, Epoch.Add(time.Second), seen)
}

func TestFakeClock_RescheduledTimerWithinWindowFires(t *testing.T) {
	c := NewFakeClock(Epoch)

	count := 0
	var tick func()
	tick = func() {
		count++
		c.AfterFunc(time.Minute, tick)
	}
	c.AfterFunc(time.Minute, tick)

	c.Advance(3 * time.Minute)
	assert.Equal(t, 3, count)
	assert.Equal(t, 1, c.Pending())
}

func TestFakeClock_Stop(t *testing.T) {
	c := NewFakeClock(Epoch)

	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports already stopped")

	c.Advance(time.Minute)
	assert.False(t, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeClock_StopAfterFire(t *testing.T) {
	c := NewFakeClock(Epoch)
	timer := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	assert.False(t, timer.Stop())
}
