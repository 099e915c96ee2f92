package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dents-inspector/api/internal/plds"
	"dents-inspector/api/internal/store"
	"dents-inspector/api/internal/store/storetest"
	"dents-inspector/api/internal/taxonomy"
)

func mustParse(t *testing.T, s string) plds.Code {
	t.Helper()
	c, err := plds.Parse(s)
	require.NoError(t, err)
	return c
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := storetest.Open(t)
	require.NoError(t, store.Migrate(context.Background(), db, store.DriverSQLite))
}

func TestMigrateUnknownDriver(t *testing.T) {
	db := storetest.Open(t)
	err := store.Migrate(context.Background(), db, "oracle")
	assert.Error(t, err)
}

func TestTaxonomyRepo_ListAllOrderedByID(t *testing.T) {
	db := storetest.OpenSeeded(t)
	repo := store.NewTaxonomyRepo(db)

	got, err := repo.ListAll(context.Background(), taxonomy.Severity)
	require.NoError(t, err)
	assert.Equal(t, []taxonomy.Entry{
		{ID: 1, Label: "small"},
		{ID: 2, Label: "medium"},
		{ID: 3, Label: "large"},
		{ID: 4, Label: "replacement-required"},
	}, got)

	locs, err := repo.ListAll(context.Background(), taxonomy.Location)
	require.NoError(t, err)
	require.Len(t, locs, 15)
	assert.Equal(t, taxonomy.Entry{ID: 0, Label: "all"}, locs[0])
	assert.Equal(t, taxonomy.Entry{ID: 37, Label: "underhood"}, locs[len(locs)-1])
}

func TestTaxonomyRepo_ListAllEmpty(t *testing.T) {
	repo := store.NewTaxonomyRepo(storetest.Open(t))
	got, err := repo.ListAll(context.Background(), taxonomy.Part)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestTaxonomyRepo_Get(t *testing.T) {
	repo := store.NewTaxonomyRepo(storetest.OpenSeeded(t))
	ctx := context.Background()

	e, err := repo.Get(ctx, taxonomy.Location, 37)
	require.NoError(t, err)
	assert.Equal(t, "underhood", e.Label)

	_, err = repo.Get(ctx, taxonomy.Location, 999)
	assert.ErrorIs(t, err, taxonomy.ErrNotFound)

	_, err = repo.Get(ctx, taxonomy.Category("color"), 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, taxonomy.ErrNotFound)
}

func TestTaxonomyRepo_SeedIsIdempotent(t *testing.T) {
	repo := store.NewTaxonomyRepo(storetest.Open(t))
	ctx := context.Background()

	n, err := repo.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Positive(t, n)

	n, err = repo.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTaxonomyRepo_UnseedCascadesToPLDS(t *testing.T) {
	db := storetest.OpenSeeded(t)
	tax := store.NewTaxonomyRepo(db)
	repo := store.NewPLDSRepo(db)
	ctx := context.Background()

	_, err := repo.GetOrCreate(ctx, mustParse(t, "1->2->3->4"))
	require.NoError(t, err)
	_, err = repo.GetOrCreate(ctx, mustParse(t, "2->2->3"))
	require.NoError(t, err)

	n, err := tax.Unseed(ctx, taxonomy.Severity, []int{4})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "2->2->3", all[0].Code.String())
}

func TestPLDSRepo_NullSeverityIsDistinctTuple(t *testing.T) {
	repo := store.NewPLDSRepo(storetest.OpenSeeded(t))
	ctx := context.Background()

	withSev, err := repo.GetOrCreate(ctx, mustParse(t, "1->2->3->1"))
	require.NoError(t, err)
	noSev, err := repo.GetOrCreate(ctx, mustParse(t, "1->2->3"))
	require.NoError(t, err)
	assert.NotEqual(t, withSev.ID, noSev.ID)

	again, err := repo.GetOrCreate(ctx, mustParse(t, "1->2->3"))
	require.NoError(t, err)
	assert.Equal(t, noSev.ID, again.ID, "absent severity must still be unique")

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPLDSRepo_ExistsAndLabels(t *testing.T) {
	repo := store.NewPLDSRepo(storetest.OpenSeeded(t))
	ctx := context.Background()
	code := mustParse(t, "15->5->2->3")

	ok, err := repo.Exists(ctx, code)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Labels(ctx, code)
	assert.ErrorIs(t, err, plds.ErrNotFound)

	_, err = repo.GetOrCreate(ctx, code)
	require.NoError(t, err)

	ok, err = repo.Exists(ctx, code)
	require.NoError(t, err)
	assert.True(t, ok)

	dec, err := repo.Labels(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "wheel", dec.Part)
	assert.Equal(t, "left-rear", dec.Location)
	assert.Equal(t, "scratch", dec.DamageType)
	require.NotNil(t, dec.Severity)
	assert.Equal(t, "large", *dec.Severity)
}

func TestOpenSQLiteEnforcesForeignKeys(t *testing.T) {
	ctx := context.Background()
	for name, query := range map[string]string{
		"no query":          "",
		"other params":      "?_busy_timeout=5000",
		"trailing question": "?",
	} {
		t.Run(name, func(t *testing.T) {
			dsn := filepath.Join(t.TempDir(), "fk.db") + query
			db, err := store.Open(ctx, store.DriverSQLite, dsn)
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })

			var on int
			require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on))
			assert.Equal(t, 1, on)

			require.NoError(t, store.Migrate(ctx, db, store.DriverSQLite))
			_, err = store.NewTaxonomyRepo(db).SeedDefaults(ctx)
			require.NoError(t, err)
			repo := store.NewPLDSRepo(db)
			_, err = repo.GetOrCreate(ctx, mustParse(t, "1->2->3->4"))
			require.NoError(t, err)
			_, err = store.NewTaxonomyRepo(db).UnseedDefaults(ctx)
			require.NoError(t, err)
			all, err := repo.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestOpenSQLiteKeepsExplicitForeignKeys(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared&_foreign_keys=off")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var on int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on))
	assert.Equal(t, 0, on)
}

func TestSafeDSNSummary(t *testing.T) {
	assert.Equal(t, "host=db port=5432 db=inspector user=app",
		store.SafeDSNSummary("postgres://app:secret@db:5432/inspector?sslmode=disable"))
	assert.Equal(t, "sqlite=inspector.db", store.SafeDSNSummary("inspector.db?_foreign_keys=on"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), "oracle", "x")
	assert.Error(t, err)
}
