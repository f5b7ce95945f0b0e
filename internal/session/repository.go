package session

import "context"

// Repository is the subset of the persistence layer that can hold sessions.
type Repository interface {
	LookupSession(ctx context.Context, key string) (string, bool, error)
	CreateSessionIfAbsent(ctx context.Context, key, value string) (string, error)
	ReplaceEmptySession(ctx context.Context, key, value string) (string, error)
}

// RepositoryStore adapts a Repository to Store.
type RepositoryStore struct {
	Repo Repository
}

// Get returns the value stored under key.
func (r RepositoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	return r.Repo.LookupSession(ctx, key)
}

// SetIfAbsent stores value unless key is already set.
func (r RepositoryStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	return r.Repo.CreateSessionIfAbsent(ctx, key, value)
}

// ReplaceEmpty overwrites a blank stored value.
func (r RepositoryStore) ReplaceEmpty(ctx context.Context, key, value string) (string, error) {
	return r.Repo.ReplaceEmptySession(ctx, key, value)
}
