package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore keeps one identifier per file in a directory. It is the CLI
// counterpart of the browser's local storage and is safe across processes.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid session key %q", key)
	}
	return filepath.Join(f.dir, key), nil
}

// Get returns the value stored under key.
func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	path, err := f.path(key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read session file: %w", err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// SetIfAbsent writes value to a temporary file and links it into place, so
// readers never observe a partially written identifier and the first
// writer wins.
func (f *FileStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	path, err := f.path(key)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(f.dir, ".session-*")
	if err != nil {
		return "", fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(value + "\n"); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp session file: %w", err)
	}

	if err := os.Link(tmpName, path); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("publish session file: %w", err)
		}
		existing, ok, err := f.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("session file %s disappeared", path)
		}
		return existing, nil
	}
	return value, nil
}

const repairWait = 2 * time.Second

// ReplaceEmpty overwrites a blank identifier file. Writers serialize on a
// lock file created with O_EXCL; a writer that loses the lock waits for the
// winner's value.
func (f *FileStore) ReplaceEmpty(ctx context.Context, key, value string) (string, error) {
	path, err := f.path(key)
	if err != nil {
		return "", err
	}

	lockPath := filepath.Join(f.dir, "."+key+".lock")
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("lock session file: %w", err)
		}
		return f.awaitRepair(ctx, key)
	}
	_ = lock.Close()
	defer func() { _ = os.Remove(lockPath) }()

	existing, ok, err := f.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return f.SetIfAbsent(ctx, key, value)
	}
	if existing != "" {
		return existing, nil
	}

	tmp, err := os.CreateTemp(f.dir, ".session-*")
	if err != nil {
		return "", fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(value + "\n"); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("replace session file: %w", err)
	}
	return value, nil
}

func (f *FileStore) awaitRepair(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, repairWait)
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if existing, ok, err := f.Get(ctx, key); err == nil && ok && existing != "" {
			return existing, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("wait for session repair: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
