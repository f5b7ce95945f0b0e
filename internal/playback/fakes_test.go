package playback

import (
	"context"
	"sort"
	"sync"
	"time"
)

type fakeTimer struct {
	clock   *fakeClock
	due     time.Duration
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock runs timers deterministically from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, due: c.now + d, seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	for {
		live := c.timers[:0]
		for _, t := range c.timers {
			if !t.stopped && !t.fired {
				live = append(live, t)
			}
		}
		c.timers = live
		sort.Slice(c.timers, func(i, j int) bool {
			if c.timers[i].due == c.timers[j].due {
				return c.timers[i].seq < c.timers[j].seq
			}
			return c.timers[i].due < c.timers[j].due
		})
		if len(c.timers) == 0 || c.timers[0].due > target {
			break
		}
		next := c.timers[0]
		next.fired = true
		c.now = next.due
		c.mu.Unlock()
		next.fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeMedia returns scripted Play results; once the script is exhausted
// Play succeeds.
type fakeMedia struct {
	mu        sync.Mutex
	clock     *fakeClock
	script    []error
	playTimes []time.Duration
	pauses    int
	loads     int
	ready     ReadyState
	detached  bool
}

func (m *fakeMedia) Play(context.Context) error {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playTimes = append(m.playTimes, now)
	if len(m.script) == 0 {
		return nil
	}
	err := m.script[0]
	m.script = m.script[1:]
	return err
}

func (m *fakeMedia) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
}

func (m *fakeMedia) Load() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
}

func (m *fakeMedia) ReadyState() ReadyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *fakeMedia) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.detached
}

func (m *fakeMedia) Plays() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.playTimes)
}

func (m *fakeMedia) setReady(r ReadyState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = r
}

func (m *fakeMedia) setDetached() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detached = true
}

type fakeSub struct {
	env      *fakeEnv
	kind     string
	cancels  int
	onVis    func(bool)
	onAction func()
}

type fakeEnv struct {
	mu               sync.Mutex
	intersectionOpts IntersectionOptions
	subs             []*fakeSub
}

func (e *fakeEnv) add(s *fakeSub) Subscription {
	e.mu.Lock()
	e.subs = append(e.subs, s)
	e.mu.Unlock()
	return NewSubscription(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		s.cancels++
	})
}

func (e *fakeEnv) ObserveIntersection(opts IntersectionOptions, fn func(bool)) Subscription {
	e.mu.Lock()
	e.intersectionOpts = opts
	e.mu.Unlock()
	return e.add(&fakeSub{env: e, kind: "intersection", onVis: fn})
}

func (e *fakeEnv) OnPageVisibility(fn func(bool)) Subscription {
	return e.add(&fakeSub{env: e, kind: "visibility", onVis: fn})
}

func (e *fakeEnv) OnFirstInteraction(fn func()) Subscription {
	return e.add(&fakeSub{env: e, kind: "interaction", onAction: fn})
}

// active returns uncancelled subscriptions of kind.
func (e *fakeEnv) active(kind string) []*fakeSub {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*fakeSub
	for _, s := range e.subs {
		if s.kind == kind && s.cancels == 0 {
			out = append(out, s)
		}
	}
	return out
}

func (e *fakeEnv) count(kind string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, s := range e.subs {
		if s.kind == kind {
			n++
		}
	}
	return n
}

func (e *fakeEnv) cancelCounts(kind string) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []int
	for _, s := range e.subs {
		if s.kind == kind {
			out = append(out, s.cancels)
		}
	}
	return out
}

func (e *fakeEnv) setIntersecting(visible bool) {
	for _, s := range e.active("intersection") {
		s.onVis(visible)
	}
}

func (e *fakeEnv) setPageVisible(visible bool) {
	for _, s := range e.active("visibility") {
		s.onVis(visible)
	}
}

func (e *fakeEnv) interact() {
	for _, s := range e.active("interaction") {
		s.onAction()
	}
}

type fakeSensor struct {
	network    NetworkInfo
	networkErr error
	battery    BatteryStatus
	batteryErr error
}

func (p fakeSensor) Network(context.Context) (NetworkInfo, error) {
	return p.network, p.networkErr
}

func (p fakeSensor) Battery(context.Context) (BatteryStatus, error) {
	return p.battery, p.batteryErr
}

type domError struct {
	name string
	msg  string
}

func (e domError) Error() string { return e.msg }
func (e domError) Name() string  { return e.name }
