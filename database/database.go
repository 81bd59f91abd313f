package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"spextract/logging"

	_ "modernc.org/sqlite"
)

// Config holds database configuration
type Config struct {
	Path              string        `env:"DB_PATH" default:"./data/state.db"`
	BusyTimeoutMs     int           `env:"DB_BUSY_TIMEOUT_MS" default:"5000"`
	EnableWAL         bool          `env:"DB_ENABLE_WAL" default:"true"`
	EnableForeignKeys bool          `env:"DB_ENABLE_FOREIGN_KEYS" default:"true"`
	ConnMaxLifetime   time.Duration `env:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Path:              "./data/state.db",
		BusyTimeoutMs:     5000,
		EnableWAL:         true,
		EnableForeignKeys: true,
		ConnMaxLifetime:   time.Hour,
	}
}

// Database wraps the state database. The extractor is a single sequential
// process, so one serialized connection serves both reads and writes.
type Database struct {
	db     *sql.DB
	config Config
	logger *logging.Logger
}

// New opens the database, applies PRAGMAs and runs pending migrations.
func New(ctx context.Context, config Config, logger *logging.Logger) (*Database, error) {
	if logger == nil {
		logger = logging.Default().WithComponent("database")
	}

	if dir := filepath.Dir(config.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbExists := checkDatabaseExists(config.Path)
	logger.Database("Opening database", "path", config.Path, "exists", dbExists)

	conn, err := sql.Open("sqlite", buildDSN(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(config.ConnMaxLifetime)

	database := &Database{db: conn, config: config, logger: logger}

	if err := database.initialize(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.runMigrations(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	logger.Database("Database initialized successfully",
		"path", config.Path,
		"existed", dbExists,
		"wal_mode", config.EnableWAL)

	return database, nil
}

// buildDSN constructs the modernc SQLite DSN; PRAGMAs are passed as
// repeated _pragma parameters so every new connection gets them.
func buildDSN(config Config) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", config.BusyTimeoutMs))
	if config.EnableWAL {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	if config.EnableForeignKeys {
		q.Add("_pragma", "foreign_keys(1)")
	}
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + config.Path + "?" + q.Encode()
}

// initialize verifies the connection and the journal mode.
func (d *Database) initialize(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if d.config.EnableWAL {
		var journalMode string
		if err := d.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
			return fmt.Errorf("failed to read journal mode: %w", err)
		}
		if journalMode != "wal" {
			d.logger.Warn("WAL mode not enabled", "journal_mode", journalMode)
		}
	}
	return nil
}

// DB returns the underlying connection.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Close checkpoints the WAL and closes the connection.
func (d *Database) Close() error {
	d.logger.Database("Closing database connection")

	if d.config.EnableWAL {
		if _, err := d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
			d.logger.Warn("failed to checkpoint WAL", "error", err)
		}
	}
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Health pings the database and reports pool statistics.
func (d *Database) Health(ctx context.Context) (map[string]any, error) {
	if err := d.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	stats := d.db.Stats()
	return map[string]any{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
		"wait_duration":    stats.WaitDuration.String(),
	}, nil
}

// WithTx executes a function within a database transaction.
func (d *Database) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			d.logger.Error("Failed to rollback transaction", "error", rollbackErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// checkDatabaseExists checks if the database file exists and is not empty.
func checkDatabaseExists(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	stat, err := os.Stat(abs)
	return err == nil && stat.Size() > 0
}
