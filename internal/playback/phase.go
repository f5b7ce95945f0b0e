package playback

// Phase is the playback state of one media surface.
type Phase int

const (
	PhaseGated Phase = iota
	PhaseLoading
	PhasePlaying
	PhaseAutoplayBlocked
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseGated:
		return "gated"
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhaseAutoplayBlocked:
		return "autoplay_blocked"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of a Controller.
type State struct {
	Phase       Phase
	Visible     bool
	LoadAllowed bool
	Retries     int
	// Detached is set when the media element left the document while
	// playback was being retried. No further attempts are made.
	Detached bool
	// Loaded is set once the first frame has been decoded.
	Loaded bool
}

// Fallback reports whether the static gradient should be rendered instead
// of the video element.
func (s State) Fallback() bool {
	return s.Phase == PhaseError || !s.LoadAllowed || s.Detached
}
