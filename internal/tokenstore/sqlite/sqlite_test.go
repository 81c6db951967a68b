package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/leadbridge/internal/tokenstore"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "tokens.db"))
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func TestStore_ReadEmpty(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Read(context.Background())
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestStore_WriteUpsertsSingleRow(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	require.NoError(t, store.Write(ctx, tokenstore.RefreshToken{Value: "rt-1", IssuedAt: first}))
	require.NoError(t, store.Write(ctx, tokenstore.RefreshToken{Value: "rt-2", IssuedAt: second}))

	got, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rt-2", got.Value)
	assert.True(t, got.IssuedAt.Equal(second), "issued_at = %v, want %v", got.IssuedAt, second)

	var rows int
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM refresh_tokens").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.db")
	ctx := context.Background()
	issued := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, tokenstore.RefreshToken{Value: "persisted", IssuedAt: issued}))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Value)
	assert.Equal(t, path, reopened.Path())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
