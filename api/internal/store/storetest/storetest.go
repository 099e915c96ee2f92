// Package storetest opens throwaway in-memory SQLite databases with the
// production schema for package tests.
package storetest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"dents-inspector/api/internal/store"
)

// DSN returns a private shared-cache in-memory database name with foreign keys on.
func DSN() string {
	return "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
}

// Open returns a migrated, empty database closed at test cleanup.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.DriverSQLite, DSN())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(ctx, db, store.DriverSQLite))
	return db
}

// OpenSeeded returns a migrated database loaded with taxonomy.Defaults.
func OpenSeeded(t testing.TB) *sql.DB {
	t.Helper()
	db := Open(t)
	_, err := store.NewTaxonomyRepo(db).SeedDefaults(context.Background())
	require.NoError(t, err)
	return db
}
