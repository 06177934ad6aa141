// Package store persists marketplace credentials and archives fetched PDFs.
//
// The default credential backend is a KEY=VALUE env file shared with other settings;
// a PostgreSQL backend is available for hosted deployments.
package store

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/ebooklister/ebooklister/internal/auth/etsy"
	"github.com/ebooklister/ebooklister/internal/config"
	log "github.com/sirupsen/logrus"
)

// ErrNoCredentials is returned by Load when nothing has been stored yet.
var ErrNoCredentials = errors.New("no stored credentials")

// ErrUnstorableValue rejects token values that a dotenv line cannot carry literally.
var ErrUnstorableValue = errors.New("value cannot be stored in an env file")

// CredentialStore persists the single active token pair.
type CredentialStore interface {
	Save(ctx context.Context, pair etsy.TokenPair) error
	Load(ctx context.Context) (etsy.TokenPair, error)
	// Location describes where credentials live, for operator-facing messages.
	Location() string
}

// OpenCredentialStore selects the Postgres backend when PGSTORE_DSN is set, otherwise the env file.
func OpenCredentialStore(ctx context.Context, cfg *config.Config) (CredentialStore, error) {
	if dsn, ok := os.LookupEnv("PGSTORE_DSN"); ok && strings.TrimSpace(dsn) != "" {
		pg, err := NewPostgresStore(ctx, PostgresStoreConfig{
			DSN:    dsn,
			Schema: os.Getenv("PGSTORE_SCHEMA"),
		})
		if err != nil {
			return nil, err
		}
		if err = pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		log.Infof("credentials stored in postgres table %s", pg.Location())
		return pg, nil
	}
	return NewEnvFileStore(cfg.CredentialsFile, cfg.CredentialsPrefix), nil
}
