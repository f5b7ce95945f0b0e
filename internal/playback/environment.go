package playback

import (
	"context"
	"sync"
	"time"
)

// ReadyState mirrors HTMLMediaElement.readyState.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// Media is the video element.
type Media interface {
	// Play starts playback and blocks until the browser accepts or rejects it.
	Play(ctx context.Context) error
	Pause()
	// Load restarts resource selection.
	Load()
	ReadyState() ReadyState
	// Attached reports whether the element is still in the document.
	Attached() bool
}

// IntersectionOptions configures viewport observation.
type IntersectionOptions struct {
	// Threshold is the visible fraction that counts as intersecting.
	Threshold float64
	// RootMarginPx grows the viewport so loading starts slightly early.
	RootMarginPx int
}

// DefaultIntersection is a 10% threshold with a 50px pre-trigger margin.
var DefaultIntersection = IntersectionOptions{Threshold: 0.1, RootMarginPx: 50}

// Environment delivers page-level signals. Callbacks must not be invoked
// synchronously from inside the subscribing call.
type Environment interface {
	ObserveIntersection(opts IntersectionOptions, fn func(visible bool)) Subscription
	OnPageVisibility(fn func(visible bool)) Subscription
	// OnFirstInteraction fires once on the first click or touch anywhere on
	// the page.
	OnFirstInteraction(fn func()) Subscription
}

// Subscription is a cancellable registration.
type Subscription interface {
	Cancel()
}

type subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps cancel so it runs at most once.
func NewSubscription(cancel func()) Subscription {
	return &subscription{cancel: cancel}
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
