package engine

import "time"

// DefaultSuppressClearDelay is how long suppression stays armed after a
// terminator before keystrokes are let through again.
const DefaultSuppressClearDelay = 50 * time.Millisecond

// SuppressTracker decides, per key event, whether the current keystroke
// stream is believed to be a scanner burst and should be withheld from
// other applications.
//
// The interception hook and the monitoring channel are independent
// subscriptions to the same physical keystrokes with no ordering
// guarantee between them, so each event stream runs its own private
// tracker instance instead of sharing one across delivery contexts.
// Not safe for concurrent use.
type SuppressTracker struct {
	timeout    time.Duration
	clearDelay time.Duration

	active  bool
	last    time.Time
	clearAt time.Time // non-zero once a terminator has been seen
}

// NewSuppressTracker creates a tracker. Zero durations select
// DefaultScanTimeout and DefaultSuppressClearDelay.
func NewSuppressTracker(timeout, clearDelay time.Duration) *SuppressTracker {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	if clearDelay <= 0 {
		clearDelay = DefaultSuppressClearDelay
	}
	return &SuppressTracker{timeout: timeout, clearDelay: clearDelay}
}

// Observe feeds one key-press event and returns true when the event
// should be suppressed. Suppression turns on with the first event after
// a reset, survives until the clear delay after a terminator expires,
// and drops immediately when the inactivity timeout is exceeded.
func (s *SuppressTracker) Observe(t time.Time, terminator bool) bool {
	s.expire(t)

	if !s.active {
		s.active = true
		s.clearAt = time.Time{}
	}

	s.last = t
	if terminator {
		s.clearAt = t.Add(s.clearDelay)
	}

	return s.active
}

// CheckTimeout applies the time-driven resets without an event. Driven
// by the input source's ticker so suppression never outlives one burst
// plus the clear delay even when no further keystrokes arrive.
func (s *SuppressTracker) CheckTimeout(now time.Time) {
	s.expire(now)
}

// Active reports whether the tracker currently believes a scanner burst
// is in progress.
func (s *SuppressTracker) Active() bool {
	return s.active
}

func (s *SuppressTracker) expire(now time.Time) {
	if !s.active {
		return
	}
	if !s.clearAt.IsZero() {
		if !now.Before(s.clearAt) {
			s.active = false
			s.clearAt = time.Time{}
		}
		return
	}
	if now.Sub(s.last) > s.timeout {
		s.active = false
	}
}
