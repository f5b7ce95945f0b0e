// Package chatclient sends chat widget messages to the chat endpoint with a
// bounded exponential backoff and a hard per-attempt timeout.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const maxResponseBytes = 1 << 20

// Doer performs HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Policy bounds the retry loop.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Timeout      time.Duration
}

// DefaultPolicy allows 3 retries (1s, 2s, 4s) with a 30s attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Timeout:      30 * time.Second,
	}
}

// schedule yields InitialDelay * 2^n for n = 0, 1, 2...
func (p Policy) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = p.InitialDelay * time.Duration(int64(1)<<min(p.MaxRetries, 30))
	b.Reset()
	return b
}

// Client talks to POST /api/chat.
type Client struct {
	endpoint string
	model    string
	http     Doer
	policy   Policy
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithPolicy sets the retry policy.
func WithPolicy(p Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithModel sets the model name sent with every message. An empty name
// omits the field so the server picks its default.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// New creates a Client for the given chat endpoint URL.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		model:    "gpt-4o",
		http:     http.DefaultClient,
		policy:   DefaultPolicy(),
		sleep:    sleepContext,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Model     string `json:"model,omitempty"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Send delivers message and returns the assistant reply.
func (c *Client) Send(ctx context.Context, message, sessionID string) (string, error) {
	ex := c.Exchange(ctx, message, sessionID)
	return ex.Reply, ex.Err
}

// Exchange runs the retry loop and returns the finished exchange.
func (c *Client) Exchange(ctx context.Context, message, sessionID string) *Exchange {
	ex := &Exchange{SessionID: sessionID, Message: message, Outcome: OutcomePending}
	delays := c.policy.schedule()

	for {
		ex.Calls++
		reply, err := c.attempt(ctx, message, sessionID)
		if err == nil {
			return ex.finish(OutcomeSucceeded, reply, nil)
		}

		c.logger.Warn("Chat request failed",
			"session_id", sessionID,
			"attempt", ex.Attempt+1,
			"max_attempts", c.policy.MaxRetries+1,
			"error", err,
		)

		if errors.Is(err, ErrTimeout) {
			return ex.finish(OutcomeTimedOut, "", err)
		}
		if ctx.Err() != nil {
			return ex.finish(OutcomeFailed, "", ctx.Err())
		}
		if ex.Attempt >= c.policy.MaxRetries {
			return ex.finish(OutcomeFailed, "", &RetriesExhaustedError{Attempts: ex.Calls, Last: err})
		}

		delay := delays.NextBackOff()
		c.logger.Info("Retrying chat request", "session_id", sessionID, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return ex.finish(OutcomeFailed, "", err)
		}
		ex.Attempt++
	}
}

func (c *Client) attempt(ctx context.Context, message, sessionID string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
	defer cancel()

	timedOut := func() bool {
		return errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	}

	body, err := json.Marshal(chatRequest{SessionID: sessionID, Message: message, Model: c.model})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if timedOut() {
			return "", ErrTimeout
		}
		return "", &NetworkError{Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close chat response body", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if timedOut() {
			return "", ErrTimeout
		}
		return "", &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newHTTPError(resp.StatusCode, data)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &HTTPError{Status: resp.StatusCode, Body: string(data), Message: "invalid response body"}
	}
	if out.Response == "" {
		return "Ошибка: не удалось получить ответ.", nil
	}
	return out.Response, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
