package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"github.com/sirupsen/logrus"

	"github.com/scanlaunch/scanlaunch/pkg/config"
	"github.com/scanlaunch/scanlaunch/pkg/engine"
)

// evdevToUsage maps kernel input key codes onto the HID usage codes the
// engine decodes. Only the supported barcode alphabet is mapped; other
// keys fall through as unmapped usages and are ignored downstream.
var evdevToUsage = map[evdev.EvCode]uint16{
	evdev.KEY_A: engine.UsageA + 0, evdev.KEY_B: engine.UsageA + 1,
	evdev.KEY_C: engine.UsageA + 2, evdev.KEY_D: engine.UsageA + 3,
	evdev.KEY_E: engine.UsageA + 4, evdev.KEY_F: engine.UsageA + 5,
	evdev.KEY_G: engine.UsageA + 6, evdev.KEY_H: engine.UsageA + 7,
	evdev.KEY_I: engine.UsageA + 8, evdev.KEY_J: engine.UsageA + 9,
	evdev.KEY_K: engine.UsageA + 10, evdev.KEY_L: engine.UsageA + 11,
	evdev.KEY_M: engine.UsageA + 12, evdev.KEY_N: engine.UsageA + 13,
	evdev.KEY_O: engine.UsageA + 14, evdev.KEY_P: engine.UsageA + 15,
	evdev.KEY_Q: engine.UsageA + 16, evdev.KEY_R: engine.UsageA + 17,
	evdev.KEY_S: engine.UsageA + 18, evdev.KEY_T: engine.UsageA + 19,
	evdev.KEY_U: engine.UsageA + 20, evdev.KEY_V: engine.UsageA + 21,
	evdev.KEY_W: engine.UsageA + 22, evdev.KEY_X: engine.UsageA + 23,
	evdev.KEY_Y: engine.UsageA + 24, evdev.KEY_Z: engine.UsageA + 25,

	evdev.KEY_1: engine.Usage1 + 0, evdev.KEY_2: engine.Usage1 + 1,
	evdev.KEY_3: engine.Usage1 + 2, evdev.KEY_4: engine.Usage1 + 3,
	evdev.KEY_5: engine.Usage1 + 4, evdev.KEY_6: engine.Usage1 + 5,
	evdev.KEY_7: engine.Usage1 + 6, evdev.KEY_8: engine.Usage1 + 7,
	evdev.KEY_9: engine.Usage1 + 8, evdev.KEY_0: engine.Usage0,

	evdev.KEY_ENTER: engine.UsageEnter,
	evdev.KEY_SPACE: engine.UsageSpace,
	evdev.KEY_MINUS: engine.UsageMinus,
	evdev.KEY_EQUAL: engine.UsageEquals,
	evdev.KEY_COMMA: engine.UsageComma,
	evdev.KEY_DOT:   engine.UsagePeriod,
}

// exclusiveSource claims an input device at the driver level via an
// evdev grab. Once grabbed, the device's events reach only this
// process, so no interception hook is needed for suppression.
type exclusiveSource struct {
	ident  config.ScannerIdentification
	logger *logrus.Logger

	mutex sync.Mutex
	dev   *evdev.InputDevice
}

func newExclusiveSource(ident config.ScannerIdentification, logger *logrus.Logger) *exclusiveSource {
	return &exclusiveSource{ident: ident, logger: logger}
}

// acquire finds the matching input device and grabs it. Returns false
// when no device matched or the exclusive claim was denied; the caller
// retries after its reconnect delay.
func (e *exclusiveSource) acquire(ctx context.Context) bool {
	dev, err := e.findDevice()
	if err != nil {
		e.logger.Debugf("Exclusive source: %v", err)
		return false
	}

	if err := dev.Grab(); err != nil {
		name, _ := dev.Name()
		e.logger.Warnf("Exclusive source: %v for %q: %v", ErrExclusiveDenied, name, err)
		_ = dev.Close()
		return false
	}

	name, _ := dev.Name()
	e.logger.Infof("Exclusive claim on input device %q", name)

	e.mutex.Lock()
	e.dev = dev
	e.mutex.Unlock()
	return true
}

func (e *exclusiveSource) findDevice() (*evdev.InputDevice, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}

	for _, p := range paths {
		dev, err := evdev.Open(p.Path)
		if err != nil {
			continue
		}
		if e.matches(dev) {
			return dev, nil
		}
		_ = dev.Close()
	}

	return nil, ErrNoMatchingDevice
}

func (e *exclusiveSource) matches(dev *evdev.InputDevice) bool {
	if e.ident.Configured() {
		id, err := dev.InputID()
		if err != nil {
			return false
		}
		return id.Vendor == e.ident.VendorID && id.Product == e.ident.ProductID
	}
	return isKeyboardDevice(dev)
}

// isKeyboardDevice reports whether the device exposes letter and enter
// keys, the discovery-mode stand-in for "is a keyboard".
func isKeyboardDevice(dev *evdev.InputDevice) bool {
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

// run pumps grabbed events into the reassembler until the context is
// cancelled or the device errors (unplug). The engine is only ever
// mutated from this goroutine.
func (e *exclusiveSource) run(ctx context.Context, r *engine.Reassembler, onError func(error)) {
	e.mutex.Lock()
	dev := e.dev
	e.mutex.Unlock()
	if dev == nil {
		return
	}

	events := make(chan engine.KeyEvent, 32)
	readErr := make(chan error, 1)

	go func() {
		for {
			ev, err := dev.ReadOne()
			if err != nil {
				readErr <- err
				return
			}
			if ev.Type != evdev.EV_KEY {
				continue
			}

			var phase engine.Phase
			switch ev.Value {
			case 1:
				phase = engine.Pressed
			case 0:
				phase = engine.Released
			default:
				continue // key repeat
			}

			usage, ok := evdevToUsage[ev.Code]
			if !ok {
				continue
			}
			events <- engine.KeyEvent{Usage: usage, Phase: phase, Time: time.Now()}
		}
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	defer e.release()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CheckTimeout(time.Now())
		case ev := <-events:
			r.HandleEvent(ev)
		case err := <-readErr:
			onError(err)
			return
		}
	}
}

// release ungrabs and closes the device. Closing also unblocks a
// pending ReadOne in the reader goroutine.
func (e *exclusiveSource) release() {
	e.mutex.Lock()
	dev := e.dev
	e.dev = nil
	e.mutex.Unlock()

	if dev == nil {
		return
	}
	if err := dev.Ungrab(); err != nil {
		e.logger.Debugf("Ungrab failed: %v", err)
	}
	if err := dev.Close(); err != nil {
		e.logger.Debugf("Close failed: %v", err)
	}
}
