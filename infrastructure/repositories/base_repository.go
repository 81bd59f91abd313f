package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"spextract/database"
)

// timeLayout is how timestamps are stored: UTC text that sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// BaseRepository provides common SQL type conversion methods and database access that can be embedded in all repositories.
type BaseRepository struct {
	db *database.Database
}

// NewBaseRepository creates a new BaseRepository with database access
func NewBaseRepository(database *database.Database) *BaseRepository {
	return &BaseRepository{
		db: database,
	}
}

// DB returns the underlying connection.
func (b *BaseRepository) DB() *sql.DB {
	return b.db.DB()
}

// WithTx executes a function within a write transaction
func (b *BaseRepository) WithTx(fn func(*sql.Tx) error) error {
	return b.db.WithTx(context.Background(), fn)
}

// FromNullString safely converts sql.NullString to string.
// Returns empty string if the SQL value is NULL.
func (b *BaseRepository) FromNullString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

// ToNullString converts a string to sql.NullString.
// Empty string becomes NULL for database storage.
func (b *BaseRepository) ToNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// FormatTime renders t in the stored layout.
func (b *BaseRepository) FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ToNullTime converts a *time.Time to its stored form.
// Nil pointer becomes NULL for database storage.
func (b *BaseRepository) ToNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: b.FormatTime(*t), Valid: true}
}

// ParseTime parses a stored timestamp.
func (b *BaseRepository) ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

// FromNullTime parses a nullable stored timestamp.
// Returns nil if the SQL value is NULL.
func (b *BaseRepository) FromNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := b.ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
