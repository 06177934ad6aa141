package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ebooklister/ebooklister/internal/auth/etsy"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultCredentialsTable = "etsy_credentials"
	defaultCredentialsID    = "default"
)

// PostgresStoreConfig captures configuration required to initialize a Postgres-backed store.
type PostgresStoreConfig struct {
	DSN    string
	Schema string
	Table  string
	// ID selects the row, allowing several shops to share one table.
	ID string
}

// PostgresStore persists the token pair as a single row upserted on every save.
type PostgresStore struct {
	db  *sql.DB
	cfg PostgresStoreConfig
	mu  sync.Mutex
}

// NewPostgresStore opens the database through the pgx stdlib driver and verifies connectivity.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres store: DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping database: %w", err)
	}
	cfg.DSN = dsn
	return NewPostgresStoreWithDB(db, cfg), nil
}

// NewPostgresStoreWithDB wraps an existing handle.
func NewPostgresStoreWithDB(db *sql.DB, cfg PostgresStoreConfig) *PostgresStore {
	if strings.TrimSpace(cfg.Table) == "" {
		cfg.Table = defaultCredentialsTable
	}
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = defaultCredentialsID
	}
	return &PostgresStore{db: db, cfg: cfg}
}

// Close releases the underlying database connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Location returns the qualified table name.
func (s *PostgresStore) Location() string { return s.tableName() }

// EnsureSchema creates the schema (when configured) and the credentials table.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if schema := strings.TrimSpace(s.cfg.Schema); schema != "" {
		if _, err := s.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdentifier(schema)); err != nil {
			return fmt.Errorf("postgres store: create schema: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, s.tableName())); err != nil {
		return fmt.Errorf("postgres store: create credentials table: %w", err)
	}
	return nil
}

// Save upserts the pair.
func (s *PostgresStore) Save(ctx context.Context, pair etsy.TokenPair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	expires := sql.NullTime{Time: pair.ExpiresAt, Valid: !pair.ExpiresAt.IsZero()}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id)
		DO UPDATE SET access_token = EXCLUDED.access_token, refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`, s.tableName())
	if _, err := s.db.ExecContext(ctx, query, s.cfg.ID, pair.AccessToken, pair.RefreshToken, expires); err != nil {
		return fmt.Errorf("postgres store: save credentials: %w", err)
	}
	return nil
}

// Load reads the pair; a missing row yields ErrNoCredentials.
func (s *PostgresStore) Load(ctx context.Context) (etsy.TokenPair, error) {
	query := fmt.Sprintf("SELECT access_token, refresh_token, expires_at FROM %s WHERE id = $1", s.tableName())
	var (
		pair    etsy.TokenPair
		expires sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, s.cfg.ID).Scan(&pair.AccessToken, &pair.RefreshToken, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return etsy.TokenPair{}, ErrNoCredentials
		}
		return etsy.TokenPair{}, fmt.Errorf("postgres store: load credentials: %w", err)
	}
	if expires.Valid {
		pair.ExpiresAt = expires.Time.In(time.UTC)
	}
	if pair.AccessToken == "" {
		return etsy.TokenPair{}, ErrNoCredentials
	}
	return pair, nil
}

func (s *PostgresStore) tableName() string {
	if strings.TrimSpace(s.cfg.Schema) == "" {
		return quoteIdentifier(s.cfg.Table)
	}
	return quoteIdentifier(s.cfg.Schema) + "." + quoteIdentifier(s.cfg.Table)
}

func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
