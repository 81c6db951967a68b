// Package postgres stores the CRM refresh token in a single-row PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/florianilch/leadbridge/internal/tokenstore"
	"github.com/florianilch/leadbridge/internal/tokenstore/postgres/migrations"
)

const (
	selectQuery = `
		SELECT token, issued_at
		FROM refresh_tokens
		WHERE id = 1
	`
	upsertQuery = `
		INSERT INTO refresh_tokens (id, token, issued_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE
		SET token = EXCLUDED.token, issued_at = EXCLUDED.issued_at
	`
)

// Store implements tokenstore.TokenStore over PostgreSQL. The CHECK constraint on
// the id column keeps the table to one row.
type Store struct {
	db *sql.DB
}

// Compile-time check to ensure Store implements tokenstore.TokenStore
var _ tokenstore.TokenStore = (*Store)(nil)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Open connects with the pgx driver and applies the embedded migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return s, nil
}

// New wraps an existing connection. The schema is expected to be migrated.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, s.db, ".")
}

// Read returns the stored token or tokenstore.ErrNotFound.
func (s *Store) Read(ctx context.Context) (tokenstore.RefreshToken, error) {
	var token tokenstore.RefreshToken
	if err := s.db.QueryRowContext(ctx, selectQuery).Scan(&token.Value, &token.IssuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tokenstore.RefreshToken{}, tokenstore.ErrNotFound
		}
		return tokenstore.RefreshToken{}, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

// Write upserts the single token row.
func (s *Store) Write(ctx context.Context, token tokenstore.RefreshToken) error {
	if _, err := s.db.ExecContext(ctx, upsertQuery, token.Value, token.IssuedAt); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
