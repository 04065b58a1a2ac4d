package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSuppressTracker_FirstPressActivates(t *testing.T) {
	s := NewSuppressTracker(100*time.Millisecond, 50*time.Millisecond)

	assert.False(t, s.Active())
	assert.True(t, s.Observe(time.Now(), false), "first press after reset must be suppressed")
	assert.True(t, s.Active())
}

func TestSuppressTracker_BurstStaysSuppressed(t *testing.T) {
	s := NewSuppressTracker(100*time.Millisecond, 50*time.Millisecond)

	base := time.Now()
	for i := 0; i < 10; i++ {
		assert.True(t, s.Observe(base.Add(time.Duration(i)*10*time.Millisecond), false))
	}
}

func TestSuppressTracker_ClearDelayAfterTerminator(t *testing.T) {
	s := NewSuppressTracker(100*time.Millisecond, 50*time.Millisecond)

	base := time.Now()
	s.Observe(base, false)
	assert.True(t, s.Observe(base.Add(10*time.Millisecond), true), "terminator itself is suppressed")

	// Still armed before the clear delay elapses.
	s.CheckTimeout(base.Add(30 * time.Millisecond))
	assert.True(t, s.Active(), "must stay active until the clear delay expires")

	s.CheckTimeout(base.Add(70 * time.Millisecond))
	assert.False(t, s.Active(), "must clear once the delay has passed")
}

func TestSuppressTracker_InactivityResetIsImmediate(t *testing.T) {
	s := NewSuppressTracker(100*time.Millisecond, 50*time.Millisecond)

	base := time.Now()
	s.Observe(base, false)

	s.CheckTimeout(base.Add(150 * time.Millisecond))
	assert.False(t, s.Active(), "inactivity timeout clears suppression immediately")
}

func TestSuppressTracker_GapEventStartsNewBurst(t *testing.T) {
	s := NewSuppressTracker(100*time.Millisecond, 50*time.Millisecond)

	base := time.Now()
	s.Observe(base, false)

	// The event after a long gap resets and then re-arms, mirroring the
	// reassembler's reset-then-reevaluate handling.
	assert.True(t, s.Observe(base.Add(500*time.Millisecond), false))
	assert.True(t, s.Active())
}

func TestSuppressTracker_EventAfterClearExpiryReArms(t *testing.T) {
	s := NewSuppressTracker(100*time.Millisecond, 50*time.Millisecond)

	base := time.Now()
	s.Observe(base, false)
	s.Observe(base.Add(10*time.Millisecond), true)

	// Next burst begins after the clear delay; its first press re-arms.
	assert.True(t, s.Observe(base.Add(80*time.Millisecond), false))
}

func TestSuppressTracker_Defaults(t *testing.T) {
	s := NewSuppressTracker(0, 0)
	assert.Equal(t, DefaultScanTimeout, s.timeout)
	assert.Equal(t, DefaultSuppressClearDelay, s.clearDelay)
}
