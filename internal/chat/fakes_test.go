package chat

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neuroexpert/site/internal/store"
)

type fakeProvider struct {
	name       string
	prefixes   []string
	configured bool
	reply      string
	err        error

	mu     sync.Mutex
	calls  [][]Message
	models []string
	system string
}

func (p *fakeProvider) Name() string       { return p.name }
func (p *fakeProvider) Prefixes() []string { return p.prefixes }
func (p *fakeProvider) Configured() bool   { return p.configured }

func (p *fakeProvider) Generate(_ context.Context, model, system string, messages []Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]Message(nil), messages...))
	p.models = append(p.models, model)
	p.system = system
	return p.reply, p.err
}

func (p *fakeProvider) lastCall() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	return p.calls[len(p.calls)-1]
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newTestService(t *testing.T, providers ...Provider) (*Service, *store.SQLiteStore) {
	t.Helper()
	repo := newTestStore(t)
	opts := DefaultOptions()
	opts.AllowedModels = []string{"gpt-4o", "claude-3-5-sonnet-latest", "gemini-1.5-flash"}
	return NewService(repo, NewRegistry(providers...), nil, opts, nil), repo
}
