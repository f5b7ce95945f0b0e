package chatclient

// Outcome is the terminal state of an Exchange.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeTimedOut
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Exchange records one submitted message.
//
// Attempt counts retries and only grows on retryable failures, so it stays
// within [0, MaxRetries]. Calls counts network requests.
type Exchange struct {
	SessionID string
	Message   string
	Attempt   int
	Calls     int
	Outcome   Outcome
	Reply     string
	Err       error
}

func (e *Exchange) finish(outcome Outcome, reply string, err error) *Exchange {
	e.Outcome = outcome
	e.Reply = reply
	e.Err = err
	return e
}
