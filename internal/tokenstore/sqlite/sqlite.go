// Package sqlite stores the CRM refresh token in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/florianilch/leadbridge/internal/tokenstore"
	"github.com/florianilch/leadbridge/internal/tokenstore/sqlite/migrations"
)

// Store is a SQLite-backed tokenstore.TokenStore holding a single row.
type Store struct {
	db   *sql.DB
	path string
}

// Compile-time check to ensure Store implements tokenstore.TokenStore
var _ tokenstore.TokenStore = (*Store)(nil)

// Open opens (or creates) the database file at path and runs migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL mode lets readers proceed while a refresh is being persisted
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Read returns the stored token or tokenstore.ErrNotFound.
func (s *Store) Read(ctx context.Context) (tokenstore.RefreshToken, error) {
	var (
		value    string
		issuedAt string
	)
	err := s.db.QueryRowContext(ctx, "SELECT token, issued_at FROM refresh_tokens WHERE id = 1").Scan(&value, &issuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tokenstore.RefreshToken{}, tokenstore.ErrNotFound
	}
	if err != nil {
		return tokenstore.RefreshToken{}, fmt.Errorf("querying refresh token: %w", err)
	}

	issued, err := time.Parse(time.RFC3339Nano, issuedAt)
	if err != nil {
		return tokenstore.RefreshToken{}, fmt.Errorf("parsing issued_at: %w", err)
	}

	return tokenstore.RefreshToken{Value: value, IssuedAt: issued}, nil
}

// Write upserts the single token row.
func (s *Store) Write(ctx context.Context, token tokenstore.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, token, issued_at)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET token = excluded.token, issued_at = excluded.issued_at
	`, token.Value, token.IssuedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving refresh token: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
