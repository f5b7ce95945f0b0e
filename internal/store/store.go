// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/neuroexpert/site/internal/domain"
)

// Repository defines the interface for persisting chat history, contact
// submissions and session identifiers.
type Repository interface {
	// SaveChatTurn stores a visitor message and the assistant reply.
	SaveChatTurn(ctx context.Context, turn *domain.ChatTurn) error

	// RecentChatTurns returns at most limit turns of a session, newest first.
	RecentChatTurns(ctx context.Context, sessionID string, limit int) ([]*domain.ChatTurn, error)

	// DeleteChatTurnsBefore removes turns created before cutoff.
	DeleteChatTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// SaveContactSubmission stores a contact form submission and sets its ID.
	SaveContactSubmission(ctx context.Context, sub *domain.ContactSubmission) error

	// MarkContactNotified records that the sales chat was notified.
	MarkContactNotified(ctx context.Context, id int64) error

	// LookupSession returns the identifier stored under key.
	LookupSession(ctx context.Context, key string) (string, bool, error)

	// CreateSessionIfAbsent stores value under key unless a value already
	// exists, and returns whichever value is stored afterwards.
	CreateSessionIfAbsent(ctx context.Context, key, value string) (string, error)

	// ReplaceEmptySession overwrites a blank identifier stored under key and
	// returns whichever value is stored afterwards.
	ReplaceEmptySession(ctx context.Context, key, value string) (string, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
