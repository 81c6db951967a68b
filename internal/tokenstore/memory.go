package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore holds the refresh token in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	token *RefreshToken
}

// Compile-time check to ensure MemoryStore implements TokenStore
var _ TokenStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Read(ctx context.Context) (RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return RefreshToken{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == nil {
		return RefreshToken{}, ErrNotFound
	}
	return *m.token, nil
}

func (m *MemoryStore) Write(ctx context.Context, token RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.token = &token
	m.mu.Unlock()
	return nil
}
