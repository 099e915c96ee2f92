package plds

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dents-inspector/api/internal/taxonomy"
)

// Store persists codes. Lookups of a missing tuple return an error wrapping
// ErrNotFound.
type Store interface {
	Exists(ctx context.Context, c Code) (bool, error)
	Labels(ctx context.Context, c Code) (Decoded, error)
	GetOrCreate(ctx context.Context, c Code) (Record, error)
}

// Taxonomy resolves ids; a missing id returns an error wrapping taxonomy.ErrNotFound.
type Taxonomy interface {
	Get(ctx context.Context, cat taxonomy.Category, id int) (taxonomy.Entry, error)
}

type Codec struct {
	store Store
	tax   Taxonomy
	log   *zap.Logger
}

func NewCodec(store Store, tax Taxonomy, log *zap.Logger) *Codec {
	if log == nil {
		log = zap.NewNop()
	}
	return &Codec{store: store, tax: tax, log: log}
}

// Exists reports whether s is a well-formed code with a persisted row.
// Malformed input is not an error here: it simply does not exist.
func (c *Codec) Exists(ctx context.Context, s string) (bool, error) {
	code, err := Parse(s)
	if err != nil {
		return false, nil
	}
	return c.store.Exists(ctx, code)
}

// Decode returns the label projection of s.
func (c *Codec) Decode(ctx context.Context, s string) (Decoded, error) {
	code, err := Parse(s)
	if err != nil {
		return Decoded{}, err
	}
	return c.store.Labels(ctx, code)
}

// CreateFrom returns the row for s, creating it on first use. Every referenced
// id must already exist in its taxonomy table.
func (c *Codec) CreateFrom(ctx context.Context, s string) (Record, error) {
	code, err := Parse(s)
	if err != nil {
		return Record{}, err
	}

	refs := []struct {
		cat taxonomy.Category
		id  *int
	}{
		{taxonomy.Part, &code.Part},
		{taxonomy.Location, &code.Location},
		{taxonomy.DamageType, &code.DamageType},
		{taxonomy.Severity, code.Severity},
	}
	for _, ref := range refs {
		if ref.id == nil {
			continue
		}
		if _, err := c.tax.Get(ctx, ref.cat, *ref.id); err != nil {
			if errors.Is(err, taxonomy.ErrNotFound) {
				return Record{}, &ReferenceNotFoundError{Code: s, Category: ref.cat, ID: *ref.id}
			}
			return Record{}, fmt.Errorf("resolve %s %d: %w", ref.cat, *ref.id, err)
		}
	}

	rec, err := c.store.GetOrCreate(ctx, code)
	if err != nil {
		return Record{}, fmt.Errorf("create plds %s: %w", code, err)
	}
	c.log.Debug("plds resolved", zap.String("plds", code.String()), zap.Int64("id", rec.ID))
	return rec, nil
}
