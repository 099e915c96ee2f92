package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dents-inspector/api/internal/plds"
)

// createAttempts bounds GetOrCreate when a concurrent unseed removes the row
// between the insert and the read-back.
const createAttempts = 3

type PLDSRepo struct{ DB *sql.DB }

func NewPLDSRepo(db *sql.DB) *PLDSRepo { return &PLDSRepo{DB: db} }

const tupleWhere = `part_id = $1 and location_id = $2 and damage_type_id = $3
  and coalesce(severity_id, -1) = coalesce($4, -1)`

func tupleArgs(c plds.Code) []any {
	var sev any
	if c.Severity != nil {
		sev = int64(*c.Severity)
	}
	return []any{c.Part, c.Location, c.DamageType, sev}
}

func (r *PLDSRepo) Exists(ctx context.Context, c plds.Code) (bool, error) {
	var ok bool
	err := r.DB.QueryRowContext(ctx, `select exists(select 1 from plds where `+tupleWhere+`)`, tupleArgs(c)...).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("plds exists %s: %w", c, err)
	}
	return ok, nil
}

// Find returns the persisted row for c.
func (r *PLDSRepo) Find(ctx context.Context, c plds.Code) (plds.Record, error) {
	return findRecord(ctx, r.DB, c)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findRecord(ctx context.Context, q queryRower, c plds.Code) (plds.Record, error) {
	var (
		id  int64
		sev sql.NullInt64
		out plds.Code
	)
	err := q.QueryRowContext(ctx, `select id, part_id, location_id, damage_type_id, severity_id
from plds where `+tupleWhere, tupleArgs(c)...).Scan(&id, &out.Part, &out.Location, &out.DamageType, &sev)
	if errors.Is(err, sql.ErrNoRows) {
		return plds.Record{}, fmt.Errorf("%s: %w", c, plds.ErrNotFound)
	}
	if err != nil {
		return plds.Record{}, fmt.Errorf("plds find %s: %w", c, err)
	}
	if sev.Valid {
		s := int(sev.Int64)
		out.Severity = &s
	}
	return plds.Record{ID: id, Code: out}, nil
}

// Labels joins the row with its taxonomy tables.
func (r *PLDSRepo) Labels(ctx context.Context, c plds.Code) (plds.Decoded, error) {
	const q = `
select p.label, l.label, d.label, s.label
from plds x
join parts p on p.id = x.part_id
join locations l on l.id = x.location_id
join damage_types d on d.id = x.damage_type_id
left join severities s on s.id = x.severity_id
where x.part_id = $1 and x.location_id = $2 and x.damage_type_id = $3
  and coalesce(x.severity_id, -1) = coalesce($4, -1)`
	var (
		out plds.Decoded
		sev sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, q, tupleArgs(c)...).Scan(&out.Part, &out.Location, &out.DamageType, &sev)
	if errors.Is(err, sql.ErrNoRows) {
		return plds.Decoded{}, fmt.Errorf("%s: %w", c, plds.ErrNotFound)
	}
	if err != nil {
		return plds.Decoded{}, fmt.Errorf("plds labels %s: %w", c, err)
	}
	if sev.Valid {
		out.Severity = &sev.String
	}
	return out, nil
}

// GetOrCreate inserts the tuple unless the unique index already holds it and
// reads the surviving row back in the same transaction. Concurrent callers
// with the same tuple all observe the one row that won the insert.
func (r *PLDSRepo) GetOrCreate(ctx context.Context, c plds.Code) (plds.Record, error) {
	var lastErr error
	for attempt := 1; attempt <= createAttempts; attempt++ {
		rec, err := r.getOrCreateOnce(ctx, c)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, plds.ErrNotFound) {
			return plds.Record{}, err
		}
		lastErr = err
	}
	return plds.Record{}, lastErr
}

func (r *PLDSRepo) getOrCreateOnce(ctx context.Context, c plds.Code) (plds.Record, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return plds.Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
insert into plds (part_id, location_id, damage_type_id, severity_id)
values ($1, $2, $3, $4)
on conflict do nothing`
	if _, err := tx.ExecContext(ctx, q, tupleArgs(c)...); err != nil {
		return plds.Record{}, fmt.Errorf("plds insert %s: %w", c, err)
	}
	rec, err := findRecord(ctx, tx, c)
	if err != nil {
		return plds.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return plds.Record{}, err
	}
	return rec, nil
}

// List returns every persisted code ordered by id.
func (r *PLDSRepo) List(ctx context.Context) ([]plds.Record, error) {
	rows, err := r.DB.QueryContext(ctx, `select id, part_id, location_id, damage_type_id, severity_id from plds order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []plds.Record{}
	for rows.Next() {
		var (
			rec plds.Record
			sev sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.Code.Part, &rec.Code.Location, &rec.Code.DamageType, &sev); err != nil {
			return nil, err
		}
		if sev.Valid {
			s := int(sev.Int64)
			rec.Code.Severity = &s
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
