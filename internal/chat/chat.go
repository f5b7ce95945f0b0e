// Package chat answers the site's AI consultant widget.
//
// A Service builds a token-bounded context from the visitor's previous
// turns, routes the request to the model provider named by the model
// prefix, falls back to a canned reply when no provider answers, and
// persists the turn.
package chat

import "errors"

// SystemPrompt frames every conversation.
const SystemPrompt = "Ты — AI-консультант NeuroExpert, эксперт по digital-трансформации. " +
	"Твоя задача — отвечать на вопросы о наших услугах: разработка сайтов, " +
	"AI-ассистенты, цифровой аудит, дизайн, техподдержка. Будь вежлив, " +
	"конкретен и предлагай решения. Если вопрос нерелевантен, вежливо " +
	"верни к теме digital-услуг."

// maxReplyTokens caps provider output.
const maxReplyTokens = 1000

var (
	// ErrProviderNotConfigured is returned when the provider has no API key.
	ErrProviderNotConfigured = errors.New("chat: provider not configured")
	// ErrUnknownModel is returned when no provider serves a model.
	ErrUnknownModel = errors.New("chat: no provider for model")
	// ErrEmptyReply is returned when a provider answers with no text.
	ErrEmptyReply = errors.New("chat: provider returned an empty reply")
	// ErrInvalidRequest is returned for requests missing a session or message.
	ErrInvalidRequest = errors.New("chat: invalid request")
)

// Role is the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation sent to a provider. The system
// prompt is passed separately.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the body of POST /api/chat.
type Request struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Model     string `json:"model,omitempty"`
}

// Response is the body returned by POST /api/chat.
type Response struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
	Timestamp string `json:"timestamp"`
}
