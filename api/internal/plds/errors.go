package plds

import (
	"fmt"

	"dents-inspector/api/internal/taxonomy"
)

// ReferenceNotFoundError names the first component of a code whose id is not
// present in its taxonomy table.
type ReferenceNotFoundError struct {
	Code     string
	Category taxonomy.Category
	ID       int
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("plds %q: %s id %d not found", e.Code, e.Category, e.ID)
}

func (e *ReferenceNotFoundError) Unwrap() error { return ErrReferenceNotFound }
