// Package domain contains core domain types for the NeuroExpert site.
package domain

import (
	"time"
)

// ChatTurn is one visitor message together with the assistant reply.
type ChatTurn struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
	TokensUser  int       `json:"tokens_user"`
	TokensAI    int       `json:"tokens_ai"`
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tokens returns the token cost of the turn when replayed as context.
func (t *ChatTurn) Tokens() int {
	return t.TokensUser + t.TokensAI
}
