package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ebooklister/ebooklister/internal/auth/etsy"
)

func newMockStore(t *testing.T, cfg PostgresStoreConfig) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock database: %v", err)
	}
	t.Cleanup(func() {
		if errExpect := mock.ExpectationsWereMet(); errExpect != nil {
			t.Errorf("there were unfulfilled expectations: %v", errExpect)
		}
		_ = db.Close()
	})
	return NewPostgresStoreWithDB(db, cfg), mock
}

func TestPostgresStoreSave(t *testing.T) {
	store, mock := newMockStore(t, PostgresStoreConfig{})
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "etsy_credentials"`)).
		WithArgs("default", "a1", "r1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Save(context.Background(), etsy.TokenPair{AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func TestPostgresStoreSaveRejectsInvalidPair(t *testing.T) {
	store, _ := newMockStore(t, PostgresStoreConfig{})
	if err := store.Save(context.Background(), etsy.TokenPair{}); !errors.Is(err, etsy.ErrInvalidTokenPair) {
		t.Fatalf("err = %v, want ErrInvalidTokenPair", err)
	}
}

func TestPostgresStoreLoad(t *testing.T) {
	store, mock := newMockStore(t, PostgresStoreConfig{Schema: "shop", ID: "main"})
	expires := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT access_token, refresh_token, expires_at FROM "shop"."etsy_credentials" WHERE id = $1`)).
		WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"access_token", "refresh_token", "expires_at"}).AddRow("a1", "r1", expires))

	pair, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if pair.AccessToken != "a1" || pair.RefreshToken != "r1" || !pair.ExpiresAt.Equal(expires) {
		t.Fatalf("pair = %+v", pair)
	}
}

func TestPostgresStoreLoadNoRow(t *testing.T) {
	store, mock := newMockStore(t, PostgresStoreConfig{})
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "etsy_credentials"`)).
		WithArgs("default").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.Load(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
}

func TestPostgresStoreEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t, PostgresStoreConfig{Schema: "shop"})
	mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "shop"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "shop"."etsy_credentials"`)).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if got := store.Location(); got != `"shop"."etsy_credentials"` {
		t.Fatalf("Location() = %q", got)
	}
}
