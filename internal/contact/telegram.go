package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// ErrNotConfigured is returned when the bot token or chat is missing.
var ErrNotConfigured = errors.New("telegram not configured")

// TelegramError is a Bot API call that did not answer ok.
type TelegramError struct {
	Method      string
	Status      int
	Description string
}

func (e *TelegramError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.Status, e.Description)
	}
	return fmt.Sprintf("telegram %s: status %d", e.Method, e.Status)
}

// TelegramNotifier posts messages to one chat through the Bot API.
type TelegramNotifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegramNotifier creates a notifier. baseURL may be empty.
func NewTelegramNotifier(token, chatID, baseURL string, client *http.Client) *TelegramNotifier {
	if baseURL == "" {
		baseURL = defaultTelegramBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &TelegramNotifier{
		token:   strings.TrimSpace(token),
		chatID:  strings.TrimSpace(chatID),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Configured reports whether both the token and the chat are set.
func (t *TelegramNotifier) Configured() bool {
	return t.token != "" && t.chatID != ""
}

type botResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify sends text with HTML parse mode.
func (t *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if !t.Configured() {
		return ErrNotConfigured
	}
	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}
	return t.call(ctx, http.MethodPost, "sendMessage", payload)
}

// Ping calls getMe to check the bot token.
func (t *TelegramNotifier) Ping(ctx context.Context) error {
	if t.token == "" {
		return ErrNotConfigured
	}
	return t.call(ctx, http.MethodGet, "getMe", nil)
}

func (t *TelegramNotifier) call(ctx context.Context, httpMethod, method string, payload []byte) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, t.baseURL+"/bot"+t.token+"/"+method, body)
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of logs.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var out botResponse
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read telegram %s response: %w", method, err)
	}
	if jsonErr := json.Unmarshal(data, &out); jsonErr != nil || resp.StatusCode != http.StatusOK || !out.OK {
		return &TelegramError{Method: method, Status: resp.StatusCode, Description: out.Description}
	}
	return nil
}
