package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	clock *fakeClock
	media *fakeMedia
	env   *fakeEnv
	ctrl  *Controller

	mu     sync.Mutex
	phases []Phase
}

func newHarness(t *testing.T, sensor Sensor, script ...error) *harness {
	t.Helper()
	h := &harness{clock: &fakeClock{}, env: &fakeEnv{}}
	h.media = &fakeMedia{clock: h.clock, script: script}
	h.ctrl = NewController(h.media, h.env, sensor,
		WithClock(h.clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithStateListener(func(s State) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.phases = append(h.phases, s.Phase)
		}),
	)
	h.ctrl.Start(context.Background())
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) sawPhase(p Phase) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, seen := range h.phases {
		if seen == p {
			return true
		}
	}
	return false
}

func fastSensor() Sensor {
	return fakeSensor{network: NetworkInfo{EffectiveType: "4g"}, battery: BatteryStatus{Level: 1}}
}

func TestControllerObservesWithDefaultIntersection(t *testing.T) {
	h := newHarness(t, fastSensor())

	assert.Equal(t, 1, h.env.count("intersection"))
	assert.Equal(t, DefaultIntersection, h.env.intersectionOpts)
	assert.Equal(t, PhaseGated, h.ctrl.State().Phase)
	assert.False(t, h.ctrl.Fallback())
}

func TestControllerDebouncesFirstAttempt(t *testing.T) {
	h := newHarness(t, fastSensor())

	h.env.setIntersecting(true)
	h.clock.Advance(99 * time.Millisecond)
	assert.Equal(t, 0, h.media.Plays())
	assert.Equal(t, PhaseGated, h.ctrl.State().Phase)

	h.clock.Advance(time.Millisecond)
	assert.Equal(t, 1, h.media.Plays())
	assert.Equal(t, 1, h.media.loads, "media with no data should be loaded before play")
	assert.Equal(t, PhasePlaying, h.ctrl.State().Phase)
	assert.True(t, h.sawPhase(PhaseLoading))
}

func TestControllerCoalescesVisibilityChurn(t *testing.T) {
	h := newHarness(t, fastSensor())

	h.env.setIntersecting(true)
	h.clock.Advance(50 * time.Millisecond)
	h.env.setIntersecting(false)
	h.env.setIntersecting(true)
	h.clock.Advance(50 * time.Millisecond)
	assert.Equal(t, 0, h.media.Plays())

	h.clock.Advance(50 * time.Millisecond)
	assert.Equal(t, 1, h.media.Plays())
	assert.Equal(t, []time.Duration{150 * time.Millisecond}, h.media.playTimes)
}

func TestControllerIgnoresDuplicateVisibility(t *testing.T) {
	h := newHarness(t, fastSensor())

	h.env.setIntersecting(true)
	h.clock.Advance(60 * time.Millisecond)
	h.env.setIntersecting(true)
	h.clock.Advance(40 * time.Millisecond)

	assert.Equal(t, []time.Duration{100 * time.Millisecond}, h.media.playTimes)
}

func TestControllerRetriesAbortsThenBlocks(t *testing.T) {
	aborts := make([]error, 6)
	for i := range aborts {
		aborts[i] = ErrAborted
	}
	h := newHarness(t, fastSensor(), aborts...)

	h.env.setIntersecting(true)
	h.clock.Advance(10 * time.Second)

	want := []time.Duration{
		100 * time.Millisecond,
		450 * time.Millisecond,  // +350
		950 * time.Millisecond,  // +500
		1600 * time.Millisecond, // +650
		2400 * time.Millisecond, // +800
		3350 * time.Millisecond, // +950
	}
	assert.Equal(t, want, h.media.playTimes)

	st := h.ctrl.State()
	assert.Equal(t, PhaseAutoplayBlocked, st.Phase)
	assert.Equal(t, 5, st.Retries)
	assert.False(t, st.Fallback())
	assert.Len(t, h.env.active("interaction"), 1)
	assert.Len(t, h.env.active("visibility"), 1)
}

func TestControllerGivesUpSilentlyWhenDetached(t *testing.T) {
	h := newHarness(t, fastSensor(), ErrAborted, ErrAborted)

	h.env.setIntersecting(true)
	h.clock.Advance(100 * time.Millisecond)
	require.Equal(t, 1, h.media.Plays())

	h.media.setDetached()
	h.clock.Advance(350 * time.Millisecond)
	assert.Equal(t, 2, h.media.Plays())

	st := h.ctrl.State()
	assert.NotEqual(t, PhaseError, st.Phase)
	assert.True(t, st.Detached)
	assert.True(t, st.Fallback())
	assert.False(t, h.sawPhase(PhaseError))

	h.env.setIntersecting(false)
	h.env.setIntersecting(true)
	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 2, h.media.Plays(), "detached element must not be retried")
	assert.Equal(t, 0, h.clock.Pending())
}

func TestControllerRecoversFromPolicyBlockOnInteraction(t *testing.T) {
	h := newHarness(t, fastSensor(), ErrNotAllowed)

	h.env.setIntersecting(true)
	h.clock.Advance(100 * time.Millisecond)
	require.Equal(t, PhaseAutoplayBlocked, h.ctrl.State().Phase)
	require.Len(t, h.env.active("interaction"), 1)

	h.env.interact()

	assert.Equal(t, PhasePlaying, h.ctrl.State().Phase)
	assert.Equal(t, 2, h.media.Plays())
	assert.Empty(t, h.env.active("interaction"))
	assert.Empty(t, h.env.active("visibility"))
	assert.Equal(t, []int{1}, h.env.cancelCounts("interaction"))
	assert.Equal(t, []int{1}, h.env.cancelCounts("visibility"))
}

func TestControllerRecoversOnPageVisible(t *testing.T) {
	h := newHarness(t, fastSensor(), domError{name: "NotAllowedError", msg: "play() failed because the user didn't interact"})

	h.env.setIntersecting(true)
	h.clock.Advance(100 * time.Millisecond)
	require.Equal(t, PhaseAutoplayBlocked, h.ctrl.State().Phase)

	h.env.setPageVisible(false)
	assert.Equal(t, 1, h.media.Plays())

	h.env.setPageVisible(true)
	assert.Equal(t, PhasePlaying, h.ctrl.State().Phase)
	assert.Equal(t, 2, h.media.Plays())
}

func TestControllerFailedRecoveryStaysBlockedAndRearms(t *testing.T) {
	h := newHarness(t, fastSensor(), ErrNotAllowed, ErrNotAllowed, ErrNotAllowed)

	h.env.setIntersecting(true)
	h.clock.Advance(100 * time.Millisecond)

	h.env.interact()
	assert.Equal(t, PhaseAutoplayBlocked, h.ctrl.State().Phase)
	assert.Len(t, h.env.active("interaction"), 1, "interaction listener should be re-armed")
	assert.Equal(t, 2, h.env.count("interaction"))

	h.env.interact()
	assert.Equal(t, PhaseAutoplayBlocked, h.ctrl.State().Phase)
	assert.False(t, h.sawPhase(PhaseError), "policy failures never escalate")

	h.env.interact()
	assert.Equal(t, PhasePlaying, h.ctrl.State().Phase)
	assert.Equal(t, 4, h.media.Plays())
}

func TestControllerRecoveryRequiresVisibility(t *testing.T) {
	h := newHarness(t, fastSensor(), ErrNotAllowed)

	h.env.setIntersecting(true)
	h.clock.Advance(100 * time.Millisecond)
	h.env.setIntersecting(false)

	assert.False(t, h.ctrl.RecoverFromBlock())
	assert.Equal(t, 1, h.media.Plays())
	assert.Equal(t, PhaseAutoplayBlocked, h.ctrl.State().Phase)
}

func TestControllerFatalErrorIsTerminal(t *testing.T) {
	h := newHarness(t, fastSensor(), errors.New("MEDIA_ERR_SRC_NOT_SUPPORTED"))

	h.env.setIntersecting(true)
	h.clock.Advance(100 * time.Millisecond)

	st := h.ctrl.State()
	assert.Equal(t, PhaseError, st.Phase)
	assert.True(t, st.Fallback())

	h.env.setIntersecting(false)
	h.env.setIntersecting(true)
	h.clock.Advance(time.Second)
	h.env.interact()
	assert.False(t, h.ctrl.RecoverFromBlock())
	assert.Equal(t, 1, h.media.Plays())
	assert.Equal(t, PhaseError, h.ctrl.State().Phase)
	assert.Equal(t, 0, h.env.count("interaction"))
}

func TestControllerMediaErrorEvent(t *testing.T) {
	h := newHarness(t, fastSensor())

	h.env.setIntersecting(true)
	h.clock.Advance(100 * time.Millisecond)
	require.Equal(t, PhasePlaying, h.ctrl.State().Phase)

	h.ctrl.HandleMediaError(errors.New("network error while decoding"))
	assert.Equal(t, PhaseError, h.ctrl.State().Phase)
	assert.True(t, h.ctrl.Fallback())
}

func TestControllerStallWithoutDataFails(t *testing.T) {
	h := newHarness(t, fastSensor())

	h.env.setIntersecting(true)
	h.clock.Advance(100 * time.Millisecond)
	h.media.setReady(HaveMetadata)

	h.ctrl.HandleStalled()
	h.clock.Advance(2999 * time.Millisecond)
	assert.Equal(t, PhasePlaying, h.ctrl.State().Phase)

	h.clock.Advance(time.Millisecond)
	assert.Equal(t, PhaseError, h.ctrl.State().Phase)
}

func TestControllerStallRecoversWithData(t *testing.T) {
	h := newHarness(t, fastSensor())

	h.env.setIntersecting(true)
	h.clock.Advance(100 * time.Millisecond)

	h.media.setReady(HaveMetadata)
	h.ctrl.HandleStalled()
	h.clock.Advance(time.Second)
	h.media.setReady(HaveEnoughData)
	h.clock.Advance(3 * time.Second)

	assert.Equal(t, PhasePlaying, h.ctrl.State().Phase)
}

func TestControllerGatedByLoadConditions(t *testing.T) {
	h := newHarness(t, fakeSensor{network: NetworkInfo{EffectiveType: "2g"}})

	st := h.ctrl.State()
	assert.False(t, st.LoadAllowed)
	assert.True(t, st.Fallback())
	assert.Equal(t, PhaseGated, st.Phase)
	assert.Equal(t, 0, h.env.count("intersection"))
	assert.Equal(t, 0, h.media.Plays())
}

func TestControllerPausesWhenLeavingViewport(t *testing.T) {
	h := newHarness(t, fastSensor())

	h.env.setIntersecting(true)
	h.clock.Advance(100 * time.Millisecond)
	require.Equal(t, PhasePlaying, h.ctrl.State().Phase)
	h.media.setReady(HaveEnoughData)

	h.env.setIntersecting(false)
	st := h.ctrl.State()
	assert.Equal(t, PhaseGated, st.Phase)
	assert.False(t, st.Visible)
	assert.Equal(t, 1, h.media.pauses)

	h.env.setIntersecting(true)
	h.clock.Advance(100 * time.Millisecond)
	assert.Equal(t, PhasePlaying, h.ctrl.State().Phase)
	assert.Equal(t, 2, h.media.Plays())
	assert.Equal(t, 1, h.media.loads, "media with data is not reloaded")
}

func TestControllerCloseReleasesEverything(t *testing.T) {
	h := newHarness(t, fastSensor(), ErrNotAllowed)

	h.env.setIntersecting(true)
	h.clock.Advance(100 * time.Millisecond)
	h.ctrl.HandleStalled()
	require.Equal(t, PhaseAutoplayBlocked, h.ctrl.State().Phase)

	h.ctrl.Close()
	h.ctrl.Close()

	assert.Equal(t, []int{1}, h.env.cancelCounts("intersection"))
	assert.Equal(t, []int{1}, h.env.cancelCounts("interaction"))
	assert.Equal(t, []int{1}, h.env.cancelCounts("visibility"))
	assert.Equal(t, 0, h.clock.Pending())

	h.env.setIntersecting(false)
	h.env.setIntersecting(true)
	h.clock.Advance(10 * time.Second)
	assert.False(t, h.ctrl.RecoverFromBlock())
	assert.Equal(t, 1, h.media.Plays())
}

func TestControllerCloseBeforeDebounceFires(t *testing.T) {
	h := newHarness(t, fastSensor())

	h.env.setIntersecting(true)
	h.ctrl.Close()
	h.clock.Advance(time.Second)

	assert.Equal(t, 0, h.media.Plays())
}

// blockingMedia holds Play until released or the context ends.
type blockingMedia struct {
	fakeMedia
	started chan struct{}
	release chan error
}

func (m *blockingMedia) Play(ctx context.Context) error {
	m.started <- struct{}{}
	select {
	case err := <-m.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestControllerCloseCancelsInFlightPlay(t *testing.T) {
	m := &blockingMedia{started: make(chan struct{}, 1), release: make(chan error)}
	env := &fakeEnv{}
	ctrl := NewController(m, env, fastSensor(),
		WithPolicy(Policy{Debounce: time.Millisecond, MaxAbortRetries: 5, StallGrace: time.Second}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	ctrl.Start(context.Background())
	env.setIntersecting(true)

	select {
	case <-m.started:
	case <-time.After(2 * time.Second):
		t.Fatal("play was never attempted")
	}

	ctrl.Close()
	assert.Eventually(t, func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return !ctrl.inFlight
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotEqual(t, PhasePlaying, ctrl.State().Phase)
}

func TestControllerPausesPlayThatFinishesOffscreen(t *testing.T) {
	m := &blockingMedia{started: make(chan struct{}, 2), release: make(chan error, 2)}
	env := &fakeEnv{}
	ctrl := NewController(m, env, fastSensor(),
		WithPolicy(Policy{Debounce: time.Millisecond, MaxAbortRetries: 5, StallGrace: time.Second}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Close)

	env.setIntersecting(true)
	select {
	case <-m.started:
	case <-time.After(2 * time.Second):
		t.Fatal("play was never attempted")
	}

	env.setIntersecting(false)
	m.release <- nil

	assert.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.pauses == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return !ctrl.inFlight
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, PhaseGated, ctrl.State().Phase)
}

func TestControllerSerializesAttempts(t *testing.T) {
	m := &blockingMedia{started: make(chan struct{}, 4), release: make(chan error, 4)}
	env := &fakeEnv{}
	ctrl := NewController(m, env, fastSensor(),
		WithPolicy(Policy{Debounce: time.Millisecond, MaxAbortRetries: 5, StallGrace: time.Second}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Close)

	env.setIntersecting(true)
	<-m.started

	// Churn while the first attempt is still in flight.
	env.setIntersecting(false)
	env.setIntersecting(true)
	time.Sleep(20 * time.Millisecond)
	select {
	case <-m.started:
		t.Fatal("second attempt started while the first was in flight")
	default:
	}

	m.release <- nil
	select {
	case <-m.started:
	case <-time.After(2 * time.Second):
		t.Fatal("queued attempt never ran")
	}
	m.release <- nil

	assert.Eventually(t, func() bool {
		return ctrl.State().Phase == PhasePlaying
	}, 2*time.Second, 5*time.Millisecond)
}
