package intercept

import (
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeInjector struct {
	downs  []int
	ups    []int
	closed bool
}

func (f *fakeInjector) KeyDown(key int) error { f.downs = append(f.downs, key); return nil }
func (f *fakeInjector) KeyUp(key int) error   { f.ups = append(f.ups, key); return nil }
func (f *fakeInjector) Close() error          { f.closed = true; return nil }

func newTestHook(injector *fakeInjector) *Hook {
	capability := &Capability{out: injector}
	return NewHook(capability, 100*time.Millisecond, 50*time.Millisecond, logrus.New())
}

func TestHandleEvent_ScannerBurstSuppressed(t *testing.T) {
	fake := &fakeInjector{}
	h := newTestHook(fake)

	// A fast burst ending in Enter: nothing must reach the replay
	// keyboard.
	base := time.Now()
	h.handleEvent(hookEvent{code: evdev.KEY_1, value: 1, at: base})
	h.handleEvent(hookEvent{code: evdev.KEY_1, value: 0, at: base.Add(2 * time.Millisecond)})
	h.handleEvent(hookEvent{code: evdev.KEY_2, value: 1, at: base.Add(10 * time.Millisecond)})
	h.handleEvent(hookEvent{code: evdev.KEY_2, value: 0, at: base.Add(12 * time.Millisecond)})
	h.handleEvent(hookEvent{code: evdev.KEY_ENTER, value: 1, at: base.Add(20 * time.Millisecond)})
	h.handleEvent(hookEvent{code: evdev.KEY_ENTER, value: 0, at: base.Add(22 * time.Millisecond)})

	assert.Empty(t, fake.downs, "scanner burst key downs must be withheld")
	assert.Empty(t, fake.ups, "releases of suppressed presses must be withheld")
	assert.True(t, h.Suppressing())
}

func TestHandleEvent_SuppressionClearsAfterDelay(t *testing.T) {
	fake := &fakeInjector{}
	h := newTestHook(fake)

	base := time.Now()
	h.handleEvent(hookEvent{code: evdev.KEY_5, value: 1, at: base})
	h.handleEvent(hookEvent{code: evdev.KEY_ENTER, value: 1, at: base.Add(10 * time.Millisecond)})

	h.tracker.CheckTimeout(base.Add(30 * time.Millisecond))
	assert.True(t, h.Suppressing(), "must stay suppressed within the clear delay")

	h.tracker.CheckTimeout(base.Add(100 * time.Millisecond))
	assert.False(t, h.Suppressing(), "must clear after the delay")
}

func TestHandleEvent_InactivityResetClearsImmediately(t *testing.T) {
	fake := &fakeInjector{}
	h := newTestHook(fake)

	base := time.Now()
	h.handleEvent(hookEvent{code: evdev.KEY_5, value: 1, at: base})
	assert.True(t, h.Suppressing())

	h.tracker.CheckTimeout(base.Add(200 * time.Millisecond))
	assert.False(t, h.Suppressing())
}

func TestHandleEvent_ReleaseOfReplayedKeyAlwaysReplayed(t *testing.T) {
	fake := &fakeInjector{}
	h := newTestHook(fake)

	// Seed a key that was already replayed as pressed. Its release must
	// go through even though the tracker would suppress a new press.
	h.down[evdev.KEY_A] = struct{}{}

	base := time.Now()
	h.handleEvent(hookEvent{code: evdev.KEY_A, value: 0, at: base})

	assert.Equal(t, []int{int(evdev.KEY_A)}, fake.ups)
	assert.Empty(t, h.down)
}

func TestHandleEvent_ReleaseWithoutReplayedPressDropped(t *testing.T) {
	fake := &fakeInjector{}
	h := newTestHook(fake)

	h.handleEvent(hookEvent{code: evdev.KEY_B, value: 0, at: time.Now()})

	assert.Empty(t, fake.ups, "release without a replayed press must not be injected")
}

func TestHandleEvent_RepeatsDropped(t *testing.T) {
	fake := &fakeInjector{}
	h := newTestHook(fake)

	h.handleEvent(hookEvent{code: evdev.KEY_C, value: 2, at: time.Now()})

	assert.Empty(t, fake.downs)
	assert.Empty(t, fake.ups)
}

func TestCapability_Close(t *testing.T) {
	fake := &fakeInjector{}
	capability := &Capability{out: fake}

	assert.NoError(t, capability.Close())
	assert.True(t, fake.closed)
}
