package chatclient

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Apology is appended to the transcript when a message could not be answered.
const Apology = "Извините, возникла ошибка. Пожалуйста, попробуйте снова или напишите нам напрямую."

// Greeting opens every new transcript.
const Greeting = "Привет! Я AI‑консультант NeuroExpert. Расскажите, какая задача перед вами — я помогу найти решение 🚀"

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one line of the visible conversation.
type Message struct {
	Role    Role
	Content string
	At      time.Time
}

// Transcript is the conversation log owned by the chat widget.
type Transcript struct {
	mu       sync.Mutex
	messages []Message
}

// Append adds a message.
func (t *Transcript) Append(role Role, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, Message{Role: role, Content: content, At: time.Now()})
}

// Messages returns a copy of the log.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// SessionSource supplies the chat session identifier.
type SessionSource interface {
	ID(ctx context.Context) string
}

// Conversation ties a Client, a session and a Transcript together the way
// the chat widget does.
type Conversation struct {
	client     *Client
	sessions   SessionSource
	transcript *Transcript
}

// NewConversation creates a Conversation. A nil transcript starts a new one.
func NewConversation(client *Client, sessions SessionSource, transcript *Transcript) *Conversation {
	if transcript == nil {
		transcript = &Transcript{}
	}
	return &Conversation{client: client, sessions: sessions, transcript: transcript}
}

// Transcript returns the conversation log.
func (c *Conversation) Transcript() *Transcript {
	return c.transcript
}

// Submit appends the user's message, sends it, and appends exactly one
// assistant message: the reply, or Apology on failure. The returned error is
// meant for a transient notification.
func (c *Conversation) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.transcript.Append(RoleUser, text)
	reply, err := c.client.Send(ctx, text, c.sessions.ID(ctx))
	if err != nil {
		c.transcript.Append(RoleAssistant, Apology)
		return err
	}
	c.transcript.Append(RoleAssistant, reply)
	return nil
}
