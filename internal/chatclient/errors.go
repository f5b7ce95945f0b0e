package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrTimeout is returned when an attempt exceeds the per-attempt timeout.
// Timeouts are never retried.
var ErrTimeout = errors.New("chat: request timed out")

// ErrEmptyMessage is returned for blank input.
var ErrEmptyMessage = errors.New("chat: message is empty")

// HTTPError is a non-2xx answer from the chat endpoint.
type HTTPError struct {
	Status  int
	Body    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("chat: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("chat: HTTP %d", e.Status)
}

func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{Status: status, Body: string(body)}

	// Error payloads carry either {"error": "..."} or {"detail": "..."}.
	var payload struct {
		Error  any `json:"error"`
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if s, ok := payload.Detail.(string); ok && s != "" {
			e.Message = s
		} else if s, ok := payload.Error.(string); ok && s != "" {
			e.Message = s
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
		e.Message = truncate(e.Message, maxMessageBytes)
	}
	return e
}

const maxMessageBytes = 200

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// NetworkError wraps a transport failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "chat: network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RetriesExhaustedError is returned once every attempt has failed.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("chat: giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }
