// Package session supplies the chat session identifier: an opaque token that
// is created once, lazily, and then reused for every chat turn.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultKey is the storage key the chat widget keeps its identifier under.
const DefaultKey = "neuroexpert_session_id"

// Store persists session identifiers.
//
// SetIfAbsent must be atomic: when a value already exists it is kept and
// returned, so concurrent initializers converge on a single identifier.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetIfAbsent(ctx context.Context, key, value string) (string, error)
}

// Repairer is implemented by stores that can replace an empty stored value.
// ReplaceEmpty writes value only while the stored value is empty or missing
// and returns whichever value is stored afterwards.
type Repairer interface {
	ReplaceEmpty(ctx context.Context, key, value string) (string, error)
}

var errEmptySession = errors.New("stored session identifier is empty")

// Supplier hands out the session identifier stored under one key.
type Supplier struct {
	store  Store
	key    string
	newID  func() string
	logger *slog.Logger

	mu sync.Mutex
	id string
}

// Option configures a Supplier.
type Option func(*Supplier)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Supplier) { s.key = key }
}

// WithGenerator overrides identifier generation.
func WithGenerator(fn func() string) Option {
	return func(s *Supplier) { s.newID = fn }
}

// WithLogger sets the logger used for storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supplier) { s.logger = logger }
}

// NewSupplier creates a Supplier backed by store.
func NewSupplier(store Store, opts ...Option) *Supplier {
	s := &Supplier{
		store:  store,
		key:    DefaultKey,
		newID:  NewID,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier, creating and storing it on first use.
// When the store is unusable an in-memory identifier is used for the
// lifetime of the Supplier.
func (s *Supplier) ID(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != "" {
		return s.id
	}

	id, err := s.load(ctx)
	if err != nil {
		s.logger.Warn("Unable to access session storage, using ephemeral session", "key", s.key, "error", err)
		id = s.newID()
	}
	s.id = id
	return id
}

func (s *Supplier) load(ctx context.Context) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("no session store configured")
	}

	existing, ok, err := s.store.Get(ctx, s.key)
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	if existing = strings.TrimSpace(existing); ok && existing != "" {
		return existing, nil
	}

	var stored string
	if ok {
		// A blank value is treated as absent.
		r, canRepair := s.store.(Repairer)
		if !canRepair {
			return "", errEmptySession
		}
		stored, err = r.ReplaceEmpty(ctx, s.key, s.newID())
	} else {
		stored, err = s.store.SetIfAbsent(ctx, s.key, s.newID())
	}
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	if stored = strings.TrimSpace(stored); stored == "" {
		return "", errEmptySession
	}
	return stored, nil
}

// NewID generates an identifier of the form session_<unix millis>_<9 chars>.
func NewID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), suffix)
}
