package playback

import (
	"errors"
	"strings"
)

var (
	// ErrAborted is the play() rejection raised when the load was
	// interrupted, typically because the element left the document.
	ErrAborted = errors.New("playback: play request aborted")
	// ErrNotAllowed is the play() rejection raised by autoplay policy.
	ErrNotAllowed = errors.New("playback: autoplay not allowed")
	errStalled    = errors.New("playback: stalled without enough data")
)

// NamedError is implemented by errors carrying a DOMException name such as
// "AbortError" or "NotAllowedError".
type NamedError interface {
	error
	Name() string
}

type failureClass int

const (
	failureFatal failureClass = iota
	failureAbort
	failurePolicy
)

func (f failureClass) String() string {
	switch f {
	case failureAbort:
		return "abort"
	case failurePolicy:
		return "policy"
	default:
		return "fatal"
	}
}

func classify(err error) failureClass {
	if errors.Is(err, ErrAborted) {
		return failureAbort
	}
	if errors.Is(err, ErrNotAllowed) {
		return failurePolicy
	}

	var named NamedError
	if errors.As(err, &named) {
		switch named.Name() {
		case "AbortError":
			return failureAbort
		case "NotAllowedError":
			return failurePolicy
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "removed from the document"):
		return failureAbort
	case strings.Contains(msg, "play() was prevented"), strings.Contains(msg, "not allowed"):
		return failurePolicy
	}
	return failureFatal
}
