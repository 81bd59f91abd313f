package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spextract/database"
	"spextract/logging"
)

// SQLiteStore keeps the refresh token in the state database, one row per key.
type SQLiteStore struct {
	db     *database.Database
	key    string
	logger *logging.Logger
}

// NewSQLiteStore creates a store for the given state key.
func NewSQLiteStore(db *database.Database, key string) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		key:    key,
		logger: logging.Default().WithComponent("token_store"),
	}
}

// LoadRefreshToken returns the stored token or "" when none exists.
func (s *SQLiteStore) LoadRefreshToken(ctx context.Context) (string, error) {
	var token string
	err := s.db.DB().QueryRowContext(ctx,
		"SELECT refresh_token FROM token_state WHERE state_key = ?", s.key).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Database("No stored refresh token", "state_key", s.key)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load refresh token: %w", err)
	}
	return token, nil
}

// SaveRefreshToken upserts the token for the store's key.
func (s *SQLiteStore) SaveRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("refusing to store an empty refresh token")
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO token_state (state_key, refresh_token, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (state_key) DO UPDATE SET
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`,
		s.key, token)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	s.logger.Security("Refresh token persisted", "backend", "sqlite", "state_key", s.key)
	return nil
}
