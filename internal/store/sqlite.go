package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/neuroexpert/site/internal/domain"
	"github.com/neuroexpert/site/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	conflictRetries   = 3
	conflictBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets the chat and contact handlers write concurrently with readers.
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_message TEXT NOT NULL,
		ai_response TEXT NOT NULL,
		tokens_user INTEGER NOT NULL DEFAULT 0,
		tokens_ai INTEGER NOT NULL DEFAULT 0,
		model TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_created ON chat_messages(created_at);

	CREATE TABLE IF NOT EXISTS contact_submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		contact TEXT NOT NULL,
		service TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		notified INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_key TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveChatTurn stores a visitor message and the assistant reply.
func (s *SQLiteStore) SaveChatTurn(ctx context.Context, turn *domain.ChatTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	query := `
	INSERT INTO chat_messages (session_id, user_message, ai_response, tokens_user, tokens_ai, model, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	return shared.RetryOnConflict(ctx, "save chat turn", conflictRetries, conflictBaseDelay, func() error {
		res, err := s.db.ExecContext(ctx, query,
			turn.SessionID, turn.UserMessage, turn.AIResponse,
			turn.TokensUser, turn.TokensAI, turn.Model,
			turn.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert chat turn: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get chat turn id: %w", err)
		}
		turn.ID = id
		return nil
	})
}

// RecentChatTurns returns at most limit turns of a session, newest first.
func (s *SQLiteStore) RecentChatTurns(ctx context.Context, sessionID string, limit int) ([]*domain.ChatTurn, error) {
	query := `
		SELECT id, session_id, user_message, ai_response, tokens_user, tokens_ai, model, created_at
		FROM chat_messages WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query chat turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close chat turn rows", "error", closeErr)
		}
	}()

	var turns []*domain.ChatTurn
	for rows.Next() {
		var turn domain.ChatTurn
		var createdAt int64
		if err := rows.Scan(
			&turn.ID, &turn.SessionID, &turn.UserMessage, &turn.AIResponse,
			&turn.TokensUser, &turn.TokensAI, &turn.Model, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat turn row: %w", err)
		}
		turn.CreatedAt = time.UnixMilli(createdAt)
		turns = append(turns, &turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat turns: %w", err)
	}
	return turns, nil
}

// DeleteChatTurnsBefore removes turns created before cutoff.
func (s *SQLiteStore) DeleteChatTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, "delete chat turns", conflictRetries, conflictBaseDelay, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE created_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return fmt.Errorf("delete chat turns: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	return deleted, err
}

// SaveContactSubmission stores a contact form submission and sets its ID.
func (s *SQLiteStore) SaveContactSubmission(ctx context.Context, sub *domain.ContactSubmission) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	query := `
	INSERT INTO contact_submissions (name, contact, service, message, notified, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	return shared.RetryOnConflict(ctx, "save contact", conflictRetries, conflictBaseDelay, func() error {
		res, err := s.db.ExecContext(ctx, query,
			sub.Name, sub.Contact, sub.Service, sub.Message,
			boolToInt(sub.Notified), sub.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert contact submission: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get contact submission id: %w", err)
		}
		sub.ID = id
		return nil
	})
}

// MarkContactNotified records that the sales chat was notified.
func (s *SQLiteStore) MarkContactNotified(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE contact_submissions SET notified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark contact notified: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("contact submission %d not found", id)
	}
	return nil
}

// LookupSession returns the identifier stored under key.
func (s *SQLiteStore) LookupSession(ctx context.Context, key string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT session_id FROM sessions WHERE session_key = ?`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup session: %w", err)
	}
	return id, true, nil
}

// CreateSessionIfAbsent stores value under key unless a value already
// exists. The stored value wins over the argument.
func (s *SQLiteStore) CreateSessionIfAbsent(ctx context.Context, key, value string) (string, error) {
	err := shared.RetryOnConflict(ctx, "create session", conflictRetries, conflictBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (session_key, session_id, created_at) VALUES (?, ?, ?)
			ON CONFLICT(session_key) DO NOTHING`,
			key, value, time.Now().UnixMilli(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	stored, ok, err := s.LookupSession(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("session %q vanished after insert", key)
	}
	return stored, nil
}

// ReplaceEmptySession overwrites a blank identifier stored under key, or
// creates it when missing. The stored value wins over the argument.
func (s *SQLiteStore) ReplaceEmptySession(ctx context.Context, key, value string) (string, error) {
	err := shared.RetryOnConflict(ctx, "replace empty session", conflictRetries, conflictBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (session_key, session_id, created_at) VALUES (?, ?, ?)
			ON CONFLICT(session_key) DO UPDATE SET session_id = excluded.session_id, created_at = excluded.created_at
			WHERE TRIM(sessions.session_id) = ''`,
			key, value, time.Now().UnixMilli(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("replace empty session: %w", err)
	}

	stored, ok, err := s.LookupSession(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("session %q vanished after upsert", key)
	}
	return stored, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
