package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Policy tunes the controller's timing.
type Policy struct {
	// Debounce delays the first attempt after the surface becomes visible,
	// coalescing rapid visibility churn.
	Debounce time.Duration
	// MaxAbortRetries bounds retries of interrupted play requests.
	MaxAbortRetries int
	// Retry n (1-based) waits AbortRetryBase + n*AbortRetryStep.
	AbortRetryBase time.Duration
	AbortRetryStep time.Duration
	// StallGrace is how long a stalled element may stay below
	// HaveCurrentData before playback is declared failed.
	StallGrace   time.Duration
	Intersection IntersectionOptions
}

// DefaultPolicy returns the production timings.
func DefaultPolicy() Policy {
	return Policy{
		Debounce:        100 * time.Millisecond,
		MaxAbortRetries: 5,
		AbortRetryBase:  200 * time.Millisecond,
		AbortRetryStep:  150 * time.Millisecond,
		StallGrace:      3 * time.Second,
		Intersection:    DefaultIntersection,
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the system clock.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithStateListener registers fn to receive every state change. fn runs
// outside the controller's lock.
func WithStateListener(fn func(State)) Option {
	return func(c *Controller) { c.listener = fn }
}

// Controller is the playback state machine for one media surface. It never
// returns errors to its caller: every failure resolves into a Phase.
//
// Subscription.Cancel and Media methods are called with the controller's
// lock held and must not call back into the controller.
type Controller struct {
	media    Media
	env      Environment
	sensor   Sensor
	clock    Clock
	policy   Policy
	logger   *slog.Logger
	listener func(State)

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	// gen is bumped whenever the conditions driving play attempts change;
	// timers and play results carrying an older generation are ignored.
	gen      uint64
	stallGen uint64
	pending  Timer
	stall    Timer
	inFlight bool
	queued   bool
	started  bool
	closed   bool

	intersection   Subscription
	pageVisibility Subscription
	interaction    Subscription
}

// NewController creates a Controller in the Gated phase.
func NewController(media Media, env Environment, sensor Sensor, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		media:  media,
		env:    env,
		sensor: sensor,
		clock:  systemClock{},
		policy: DefaultPolicy(),
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
		state:  State{Phase: PhaseGated, LoadAllowed: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start reads load conditions and, when loading is allowed, begins
// observing the surface's visibility. It is a no-op after the first call.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	allowed := EvaluateLoadConditions(ctx, c.sensor)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state.LoadAllowed = allowed
	if !allowed {
		c.logger.Info("Background video disabled by network or battery conditions")
		c.unlockAndNotify()
		return
	}
	c.mu.Unlock()

	sub := c.env.ObserveIntersection(c.policy.Intersection, c.handleIntersection)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Cancel()
		return
	}
	c.intersection = sub
	c.unlockAndNotify()
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Fallback reports whether the static gradient should be shown.
func (c *Controller) Fallback() bool {
	return c.State().Fallback()
}

// HandleLoaded records that the first frame is available.
func (c *Controller) HandleLoaded() {
	c.mu.Lock()
	if c.closed || c.state.Loaded {
		c.mu.Unlock()
		return
	}
	c.state.Loaded = true
	c.unlockAndNotify()
}

// HandleMediaError handles the element's error and abort events, which
// are always fatal.
func (c *Controller) HandleMediaError(err error) {
	c.mu.Lock()
	if c.closed || c.state.Phase == PhaseError {
		c.mu.Unlock()
		return
	}
	c.failLocked(err)
	c.unlockAndNotify()
}

// HandleStalled handles the element's stalled and suspend events. Unless
// the element reaches HaveCurrentData within the grace period, playback
// fails.
func (c *Controller) HandleStalled() {
	c.mu.Lock()
	if c.closed || c.state.Phase == PhaseError {
		c.mu.Unlock()
		return
	}
	if c.stall != nil {
		c.stall.Stop()
	}
	c.stallGen++
	gen := c.stallGen
	c.stall = c.clock.AfterFunc(c.policy.StallGrace, func() { c.checkStall(gen) })
	c.mu.Unlock()

	c.logger.Warn("Background video playback stalled")
}

func (c *Controller) checkStall(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.stallGen || c.state.Phase == PhaseError {
		c.mu.Unlock()
		return
	}
	c.stall = nil
	if c.media.ReadyState() >= HaveCurrentData {
		c.mu.Unlock()
		return
	}
	c.failLocked(errStalled)
	c.unlockAndNotify()
}

// RecoverFromBlock re-attempts playback while autoplay is blocked. It
// reports whether playback started. A failed retry leaves the controller
// blocked.
func (c *Controller) RecoverFromBlock() bool {
	c.mu.Lock()
	if c.closed || c.inFlight || c.state.Phase != PhaseAutoplayBlocked || !c.canAttemptLocked() {
		c.mu.Unlock()
		return false
	}
	c.inFlight = true
	gen := c.gen
	c.mu.Unlock()

	err := c.media.Play(c.ctx)

	c.mu.Lock()
	c.inFlight = false
	if c.closed || c.state.Phase == PhaseError {
		c.mu.Unlock()
		return false
	}

	ok := false
	switch {
	case err != nil:
		c.logger.Debug("Retry play failed", "error", err)
	case gen != c.gen || !c.state.Visible:
		// Scrolled away while the retry was pending.
		c.media.Pause()
	default:
		c.state.Phase = PhasePlaying
		c.dropRecoveryLocked()
		ok = true
	}
	next, rerun := c.takeQueuedLocked()
	c.unlockAndNotify()

	if rerun {
		c.attempt(next)
	}
	return ok
}

// Close releases every timer and subscription. Later events are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.resetLocked()
	if c.stall != nil {
		c.stall.Stop()
		c.stall = nil
	}
	if c.intersection != nil {
		c.intersection.Cancel()
		c.intersection = nil
	}
	c.dropRecoveryLocked()
	c.mu.Unlock()

	c.cancel()
}

func (c *Controller) handleIntersection(visible bool) {
	c.mu.Lock()
	if c.closed || c.state.Visible == visible {
		c.mu.Unlock()
		return
	}
	c.state.Visible = visible
	c.resetLocked()

	if !visible {
		switch c.state.Phase {
		case PhasePlaying:
			c.media.Pause()
			c.state.Phase = PhaseGated
		case PhaseLoading:
			c.state.Phase = PhaseGated
		}
		c.unlockAndNotify()
		return
	}

	if c.canAttemptLocked() && c.state.Phase != PhasePlaying {
		c.state.Retries = 0
		c.scheduleLocked(c.policy.Debounce)
	}
	c.unlockAndNotify()
}

func (c *Controller) handlePageVisibility(visible bool) {
	if visible {
		c.RecoverFromBlock()
	}
}

func (c *Controller) handleInteraction() {
	// The listener is one-shot; release it before retrying.
	c.mu.Lock()
	if c.interaction != nil {
		c.interaction.Cancel()
		c.interaction = nil
	}
	c.mu.Unlock()

	if c.RecoverFromBlock() {
		return
	}

	c.mu.Lock()
	blocked := !c.closed && c.state.Phase == PhaseAutoplayBlocked
	c.mu.Unlock()
	if blocked {
		c.armRecovery()
	}
}

func (c *Controller) attempt(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.canAttemptLocked() || c.state.Phase == PhasePlaying {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	if c.inFlight {
		c.queued = true
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	c.state.Phase = PhaseLoading
	c.unlockAndNotify()

	if c.media.ReadyState() == HaveNothing {
		c.media.Load()
	}
	err := c.media.Play(c.ctx)
	c.finishAttempt(gen, err)
}

func (c *Controller) finishAttempt(gen uint64, err error) {
	c.mu.Lock()
	c.inFlight = false
	if c.closed {
		c.mu.Unlock()
		return
	}

	if gen != c.gen {
		if err == nil && !c.state.Visible {
			// Scrolled away while the play request was in flight.
			c.media.Pause()
		}
		next, rerun := c.takeQueuedLocked()
		c.mu.Unlock()
		if rerun {
			c.attempt(next)
		}
		return
	}
	c.queued = false

	if err == nil {
		c.state.Phase = PhasePlaying
		c.dropRecoveryLocked()
		c.unlockAndNotify()
		return
	}

	needArm := false
	class := classify(err)
	switch class {
	case failureAbort:
		attached := c.media.Attached()
		if attached && c.state.Retries < c.policy.MaxAbortRetries {
			c.state.Retries++
			delay := c.policy.AbortRetryBase + time.Duration(c.state.Retries)*c.policy.AbortRetryStep
			c.logger.Debug("Play aborted, retrying", "retry", c.state.Retries, "delay", delay)
			c.scheduleLocked(delay)
			break
		}
		if !attached {
			c.logger.Info("Background video left the document, showing fallback", "retries", c.state.Retries)
			c.state.Detached = true
			c.state.Phase = PhaseGated
			c.dropRecoveryLocked()
			break
		}
		needArm = c.blockLocked()
	case failurePolicy:
		needArm = c.blockLocked()
	default:
		c.failLocked(err)
	}
	c.unlockAndNotify()

	if needArm {
		c.armRecovery()
	}
}

func (c *Controller) blockLocked() bool {
	c.state.Phase = PhaseAutoplayBlocked
	c.logger.Info("Autoplay blocked, waiting for user interaction or visibility change")
	return c.pageVisibility == nil || c.interaction == nil
}

func (c *Controller) armRecovery() {
	c.mu.Lock()
	needVisibility := c.pageVisibility == nil
	needInteraction := c.interaction == nil
	c.mu.Unlock()

	var vis, act Subscription
	if needVisibility {
		vis = c.env.OnPageVisibility(c.handlePageVisibility)
	}
	if needInteraction {
		act = c.env.OnFirstInteraction(c.handleInteraction)
	}

	c.mu.Lock()
	keep := !c.closed && c.state.Phase != PhaseError && c.state.Phase != PhasePlaying
	if keep && vis != nil && c.pageVisibility == nil {
		c.pageVisibility, vis = vis, nil
	}
	if keep && act != nil && c.interaction == nil {
		c.interaction, act = act, nil
	}
	c.mu.Unlock()

	if vis != nil {
		vis.Cancel()
	}
	if act != nil {
		act.Cancel()
	}
}

func (c *Controller) failLocked(err error) {
	c.state.Phase = PhaseError
	c.resetLocked()
	if c.stall != nil {
		c.stall.Stop()
		c.stall = nil
	}
	c.dropRecoveryLocked()
	c.logger.Error("Background video failed, showing fallback", "error", err)
}

func (c *Controller) canAttemptLocked() bool {
	return !c.closed &&
		c.state.Visible &&
		c.state.LoadAllowed &&
		!c.state.Detached &&
		c.state.Phase != PhaseError
}

func (c *Controller) scheduleLocked(d time.Duration) {
	gen := c.gen
	c.pending = c.clock.AfterFunc(d, func() { c.attempt(gen) })
}

// resetLocked cancels the pending attempt and invalidates in-flight ones.
func (c *Controller) resetLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.gen++
}

func (c *Controller) takeQueuedLocked() (uint64, bool) {
	rerun := c.queued && c.canAttemptLocked() && c.state.Phase != PhasePlaying
	c.queued = false
	return c.gen, rerun
}

func (c *Controller) dropRecoveryLocked() {
	if c.pageVisibility != nil {
		c.pageVisibility.Cancel()
		c.pageVisibility = nil
	}
	if c.interaction != nil {
		c.interaction.Cancel()
		c.interaction = nil
	}
}

func (c *Controller) unlockAndNotify() {
	st := c.state
	listener := c.listener
	c.mu.Unlock()
	if listener != nil {
		listener(st)
	}
}
