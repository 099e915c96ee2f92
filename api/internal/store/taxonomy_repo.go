package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dents-inspector/api/internal/taxonomy"
)

type TaxonomyRepo struct{ DB *sql.DB }

func NewTaxonomyRepo(db *sql.DB) *TaxonomyRepo { return &TaxonomyRepo{DB: db} }

// ListAll returns every entry of the category ordered by id.
func (r *TaxonomyRepo) ListAll(ctx context.Context, cat taxonomy.Category) ([]taxonomy.Entry, error) {
	table, err := tableFor(cat)
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, `select id, label from `+table+` order by id`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", cat, err)
	}
	defer rows.Close()

	out := []taxonomy.Entry{}
	for rows.Next() {
		var e taxonomy.Entry
		if err := rows.Scan(&e.ID, &e.Label); err != nil {
			return nil, fmt.Errorf("list %s: %w", cat, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *TaxonomyRepo) Get(ctx context.Context, cat taxonomy.Category, id int) (taxonomy.Entry, error) {
	table, err := tableFor(cat)
	if err != nil {
		return taxonomy.Entry{}, err
	}
	e := taxonomy.Entry{}
	err = r.DB.QueryRowContext(ctx, `select id, label from `+table+` where id = $1`, id).Scan(&e.ID, &e.Label)
	if errors.Is(err, sql.ErrNoRows) {
		return taxonomy.Entry{}, fmt.Errorf("%s %d: %w", cat, id, taxonomy.ErrNotFound)
	}
	if err != nil {
		return taxonomy.Entry{}, fmt.Errorf("get %s %d: %w", cat, id, err)
	}
	return e, nil
}

// Seed inserts entries, leaving rows with an existing id untouched.
// It returns the number of rows actually inserted.
func (r *TaxonomyRepo) Seed(ctx context.Context, cat taxonomy.Category, entries []taxonomy.Entry) (int64, error) {
	table, err := tableFor(cat)
	if err != nil {
		return 0, err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	q := `insert into ` + table + ` (id, label) values ($1, $2) on conflict (id) do nothing`
	var inserted int64
	for _, e := range entries {
		res, err := tx.ExecContext(ctx, q, e.ID, e.Label)
		if err != nil {
			return 0, fmt.Errorf("seed %s %d %q: %w", cat, e.ID, e.Label, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// Unseed deletes the given ids. Dependent plds rows go with them (ON DELETE CASCADE).
func (r *TaxonomyRepo) Unseed(ctx context.Context, cat taxonomy.Category, ids []int) (int64, error) {
	table, err := tableFor(cat)
	if err != nil {
		return 0, err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var deleted int64
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `delete from `+table+` where id = $1`, id)
		if err != nil {
			return 0, fmt.Errorf("unseed %s %d: %w", cat, id, err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

// SeedDefaults loads taxonomy.Defaults into every table.
func (r *TaxonomyRepo) SeedDefaults(ctx context.Context) (int64, error) {
	var total int64
	defaults := taxonomy.Defaults()
	for _, cat := range taxonomy.Categories() {
		n, err := r.Seed(ctx, cat, defaults[cat])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// UnseedDefaults removes every id listed in taxonomy.Defaults.
func (r *TaxonomyRepo) UnseedDefaults(ctx context.Context) (int64, error) {
	var total int64
	defaults := taxonomy.Defaults()
	for _, cat := range taxonomy.Categories() {
		ids := make([]int, 0, len(defaults[cat]))
		for _, e := range defaults[cat] {
			ids = append(ids, e.ID)
		}
		n, err := r.Unseed(ctx, cat, ids)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
