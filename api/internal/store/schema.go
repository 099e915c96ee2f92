package store

import (
	"context"
	"database/sql"
	"fmt"

	"dents-inspector/api/internal/taxonomy"
)

var tables = map[taxonomy.Category]string{
	taxonomy.Part:       "parts",
	taxonomy.Location:   "locations",
	taxonomy.DamageType: "damage_types",
	taxonomy.Severity:   "severities",
}

func tableFor(cat taxonomy.Category) (string, error) {
	t, ok := tables[cat]
	if !ok {
		return "", fmt.Errorf("unknown taxonomy category %q", cat)
	}
	return t, nil
}

func taxonomyDDL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
	id INTEGER PRIMARY KEY,
	label VARCHAR(30) NOT NULL UNIQUE
)`
}

const pldsColumns = `
	part_id INTEGER NOT NULL REFERENCES parts(id) ON DELETE CASCADE,
	location_id INTEGER NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
	damage_type_id INTEGER NOT NULL REFERENCES damage_types(id) ON DELETE CASCADE,
	severity_id INTEGER NULL REFERENCES severities(id) ON DELETE CASCADE,`

var pldsDDL = map[string]string{
	DriverPostgres: `CREATE TABLE IF NOT EXISTS plds (
	id BIGSERIAL PRIMARY KEY,` + pldsColumns + `
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	DriverSQLite: `CREATE TABLE IF NOT EXISTS plds (
	id INTEGER PRIMARY KEY AUTOINCREMENT,` + pldsColumns + `
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
}

// NULL severities never collide in a plain unique constraint, so the index
// folds them onto a sentinel that no seeded id uses.
const pldsUniqueIndex = `CREATE UNIQUE INDEX IF NOT EXISTS plds_tuple_uq
	ON plds (part_id, location_id, damage_type_id, COALESCE(severity_id, -1))`

// Migrate creates the taxonomy and plds tables if they don't exist.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	ddl, ok := pldsDDL[driver]
	if !ok {
		return fmt.Errorf("unsupported database driver %q", driver)
	}
	stmts := make([]string, 0, len(tables)+2)
	for _, cat := range taxonomy.Categories() {
		stmts = append(stmts, taxonomyDDL(tables[cat]))
	}
	stmts = append(stmts, ddl, pldsUniqueIndex)

	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
