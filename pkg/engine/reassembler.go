package engine

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultScanTimeout is the inactivity gap that separates a scanner
// burst from incidental keyboard activity. Scanner bursts are fast,
// human typing is slow; the gap is the only discriminator.
const DefaultScanTimeout = 100 * time.Millisecond

// Reassembler folds decoded key events into complete barcode strings.
// A barcode is emitted when the terminator key arrives; a buffer whose
// inter-event gap exceeds the timeout is discarded without emission.
//
// Not safe for concurrent use: each input source owns one Reassembler
// and mutates it only from its own delivery goroutine.
type Reassembler struct {
	timeout      time.Duration
	buf          []byte
	lastActivity time.Time
	onScan       func(string)
	logger       *logrus.Logger
}

// NewReassembler creates a Reassembler with the given inactivity
// timeout. A timeout of zero selects DefaultScanTimeout.
func NewReassembler(timeout time.Duration, logger *logrus.Logger) *Reassembler {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &Reassembler{
		timeout: timeout,
		buf:     make([]byte, 0, 64),
		logger:  logger,
	}
}

// SetOnScanCallback sets the callback invoked with each completed
// barcode. The callback runs on the event-delivery goroutine and must
// not block; hand off to a channel or goroutine for slow work.
func (r *Reassembler) SetOnScanCallback(callback func(string)) {
	r.onScan = callback
}

// HandleEvent folds one key event into the buffer. Release phases and
// unmapped usage codes are dropped without touching state or timing.
func (r *Reassembler) HandleEvent(ev KeyEvent) {
	if ev.Phase != Pressed {
		return
	}

	terminator := IsTerminator(ev.Usage)
	ch, mapped := DecodeUsage(ev.Usage)
	if !terminator && !mapped {
		return
	}

	// A stale buffer is discarded before the current event is
	// evaluated, so the event that reveals the gap still counts.
	if len(r.buf) > 0 && ev.Time.Sub(r.lastActivity) > r.timeout {
		r.discard()
	}

	if terminator {
		r.finalize()
		return
	}

	r.buf = append(r.buf, ch)
	r.lastActivity = ev.Time
}

// CheckTimeout discards a stale buffer. Called periodically by the
// input source's ticker so an abandoned partial scan does not linger
// until the next keystroke.
func (r *Reassembler) CheckTimeout(now time.Time) {
	if len(r.buf) > 0 && now.Sub(r.lastActivity) > r.timeout {
		r.discard()
	}
}

// Accumulating reports whether a partial scan is buffered.
func (r *Reassembler) Accumulating() bool {
	return len(r.buf) > 0
}

func (r *Reassembler) finalize() {
	if len(r.buf) == 0 {
		// Stray Enter with nothing buffered.
		return
	}

	barcode := string(r.buf)
	r.buf = r.buf[:0]

	if r.onScan != nil {
		r.onScan(barcode)
	}
}

func (r *Reassembler) discard() {
	if r.logger != nil {
		r.logger.Debugf("Scan timeout - discarding partial buffer (%d chars)", len(r.buf))
	}
	r.buf = r.buf[:0]
}
