package intercept

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bendahl/uinput"
	evdev "github.com/holoplot/go-evdev"
	"github.com/sirupsen/logrus"

	"github.com/scanlaunch/scanlaunch/pkg/engine"
)

const (
	uinputPath  = "/dev/uinput"
	virtualName = "scanlaunch passthrough"
)

// ErrPermissionDenied means the elevated input permission needed for
// system-wide interception is not available. The engine keeps running
// observe-only; it must never be treated as fatal.
var ErrPermissionDenied = errors.New("input interception permission not granted")

// injector is the replay surface for allowed keystrokes. Satisfied by
// uinput.Keyboard; swapped for a fake in tests.
type injector interface {
	KeyDown(key int) error
	KeyUp(key int) error
	Close() error
}

// Capability is the permission-gated handle required to intercept
// input. It can only be obtained through RequestPermission, so holding
// one proves the permission was granted; "not granted" is a normal
// typed state (a nil Capability), not a runtime failure.
type Capability struct {
	out injector
}

// RequestPermission probes for the elevated input permission by
// creating the virtual replay keyboard. On denial the returned error
// wraps ErrPermissionDenied.
func RequestPermission() (*Capability, error) {
	vkbd, err := uinput.CreateKeyboard(uinputPath, []byte(virtualName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return &Capability{out: vkbd}, nil
}

// Close releases the virtual keyboard.
func (c *Capability) Close() error {
	return c.out.Close()
}

type hookEvent struct {
	code  evdev.EvCode
	value int32
	at    time.Time
}

// Hook is the system-wide interception point for shared mode: it grabs
// every keyboard-class input device and replays allowed events through
// the capability's virtual keyboard. Events the suppression tracker
// attributes to a scanner burst are simply not replayed, so they never
// reach any other application.
//
// The hook's event stream is an independent subscription with no
// ordering guarantee relative to the monitoring channel, so it runs
// its own private SuppressTracker fed only from its own events.
type Hook struct {
	capability *Capability
	tracker    *engine.SuppressTracker
	logger     *logrus.Logger

	devices []*evdev.InputDevice
	events  chan hookEvent
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// down tracks keys replayed as pressed so their releases are
	// always replayed too, even if suppression flipped in between.
	down map[evdev.EvCode]struct{}
}

// NewHook creates a hook using the granted capability. The timeout and
// clear delay should match the scanner engine's configuration.
func NewHook(capability *Capability, timeout, clearDelay time.Duration, logger *logrus.Logger) *Hook {
	return &Hook{
		capability: capability,
		tracker:    engine.NewSuppressTracker(timeout, clearDelay),
		logger:     logger,
		events:     make(chan hookEvent, 64),
		stopCh:     make(chan struct{}),
		down:       make(map[evdev.EvCode]struct{}),
	}
}

// Start grabs all keyboard devices and begins intercepting. Implements
// the Service interface. Failure to grab anything is not fatal: the
// engine keeps running observe-only and the hook stays inert.
func (h *Hook) Start() error {
	devices, err := findKeyboards()
	if err != nil {
		h.logger.WithError(err).Warn("Interception hook disabled: cannot enumerate input devices (observe-only mode)")
		return nil
	}

	grabbed := devices[:0]
	for _, dev := range devices {
		if err := dev.Grab(); err != nil {
			name, _ := dev.Name()
			h.logger.Warnf("Interception hook could not grab %q: %v", name, err)
			_ = dev.Close()
			continue
		}
		grabbed = append(grabbed, dev)
	}
	if len(grabbed) == 0 {
		h.logger.Warn("Interception hook disabled: no keyboard device could be grabbed (observe-only mode)")
		return nil
	}
	h.devices = grabbed

	for _, dev := range h.devices {
		h.wg.Add(1)
		go h.readDevice(dev)
	}

	h.wg.Add(1)
	go h.processLoop()

	h.logger.Infof("Interception hook active on %d keyboard device(s)", len(h.devices))
	return nil
}

// Stop disables interception. Devices are ungrabbed first so input
// flows normally again, then the replay keyboard is released.
func (h *Hook) Stop() error {
	close(h.stopCh)

	for _, dev := range h.devices {
		if err := dev.Ungrab(); err != nil {
			h.logger.Debugf("Ungrab failed: %v", err)
		}
		// Closing unblocks the pending ReadOne.
		_ = dev.Close()
	}
	h.devices = nil

	h.wg.Wait()

	if err := h.capability.Close(); err != nil {
		h.logger.Debugf("Closing replay keyboard failed: %v", err)
	}

	h.logger.Info("Interception hook disabled")
	return nil
}

func (h *Hook) readDevice(dev *evdev.InputDevice) {
	defer h.wg.Done()

	for {
		ev, err := dev.ReadOne()
		if err != nil {
			return
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}

		select {
		case h.events <- hookEvent{code: ev.Code, value: ev.Value, at: time.Now()}:
		case <-h.stopCh:
			return
		}
	}
}

// processLoop applies the suppression decision to each intercepted
// event. The tracker is only ever touched from this goroutine; the
// ticker drives the asynchronous clear-delay and inactivity resets so
// suppression cannot outlive a burst when the keyboard goes quiet.
func (h *Hook) processLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.tracker.CheckTimeout(time.Now())
		case ev := <-h.events:
			h.handleEvent(ev)
		}
	}
}

func (h *Hook) handleEvent(ev hookEvent) {
	switch ev.value {
	case 1: // press
		suppress := h.tracker.Observe(ev.at, ev.code == evdev.KEY_ENTER)
		if suppress {
			return
		}
		if err := h.capability.out.KeyDown(int(ev.code)); err != nil {
			h.logger.Debugf("Replay key down failed: %v", err)
			return
		}
		h.down[ev.code] = struct{}{}

	case 0: // release
		if _, replayed := h.down[ev.code]; !replayed {
			return
		}
		delete(h.down, ev.code)
		if err := h.capability.out.KeyUp(int(ev.code)); err != nil {
			h.logger.Debugf("Replay key up failed: %v", err)
		}

	default:
		// Key repeats are dropped; the virtual device's consumers
		// regenerate repeat from the held key.
	}
}

// Suppressing reports whether the hook currently attributes the key
// stream to a scanner burst.
func (h *Hook) Suppressing() bool {
	return h.tracker.Active()
}

// findKeyboards returns every grabable keyboard-class device, skipping
// our own replay keyboard so intercepted events are not re-intercepted.
func findKeyboards() ([]*evdev.InputDevice, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, err
	}

	var keyboards []*evdev.InputDevice
	for _, p := range paths {
		dev, err := evdev.Open(p.Path)
		if err != nil {
			continue
		}

		name, _ := dev.Name()
		if name == virtualName || !hasKeyboardKeys(dev) {
			_ = dev.Close()
			continue
		}
		keyboards = append(keyboards, dev)
	}
	return keyboards, nil
}

func hasKeyboardKeys(dev *evdev.InputDevice) bool {
	hasA := false
	hasEnter := false
	for _, c := range dev.CapableEvents(evdev.EV_KEY) {
		if c == evdev.KEY_A {
			hasA = true
		}
		if c == evdev.KEY_ENTER {
			hasEnter = true
		}
	}
	return hasA && hasEnter
}
