package plds

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Separator joins the components of an encoded code: "15->5->2->3".
const Separator = "->"

var (
	ErrInvalidFormat     = errors.New("invalid plds format")
	ErrNotFound          = errors.New("plds not found")
	ErrReferenceNotFound = errors.New("plds reference not found")
)

// Code is a Part-Location-DamageType-Severity tuple. Severity is the only
// optional component and is nil when the code has three components.
type Code struct {
	Part       int
	Location   int
	DamageType int
	Severity   *int
}

// Parse decodes "p->l->d" or "p->l->d->s". Any other shape, or a component
// that is not a 32-bit integer, yields an error wrapping ErrInvalidFormat.
// Taxonomy ids are INTEGER columns, so wider values can never match a row.
func Parse(s string) (Code, error) {
	parts := strings.Split(s, Separator)
	if len(parts) != 3 && len(parts) != 4 {
		return Code{}, fmt.Errorf("%w: %q: expected 3 or 4 components, got %d", ErrInvalidFormat, s, len(parts))
	}
	ids := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return Code{}, fmt.Errorf("%w: %q: component %d: %v", ErrInvalidFormat, s, i+1, err)
		}
		ids[i] = int(n)
	}
	c := Code{Part: ids[0], Location: ids[1], DamageType: ids[2]}
	if len(ids) == 4 {
		sev := ids[3]
		c.Severity = &sev
	}
	return c, nil
}

func (c Code) HasSeverity() bool { return c.Severity != nil }

func (c Code) String() string {
	s := fmt.Sprintf("%d%s%d%s%d", c.Part, Separator, c.Location, Separator, c.DamageType)
	if c.Severity != nil {
		s += Separator + strconv.Itoa(*c.Severity)
	}
	return s
}

// Equal compares all four components, treating two absent severities as equal.
func (c Code) Equal(o Code) bool {
	if c.Part != o.Part || c.Location != o.Location || c.DamageType != o.DamageType {
		return false
	}
	if c.Severity == nil || o.Severity == nil {
		return c.Severity == nil && o.Severity == nil
	}
	return *c.Severity == *o.Severity
}

// Record is a persisted code.
type Record struct {
	ID   int64 `json:"id"`
	Code Code  `json:"-"`
}

// Decoded is the label projection of a code.
type Decoded struct {
	Part       string  `json:"part"`
	Location   string  `json:"location"`
	DamageType string  `json:"damage_type"`
	Severity   *string `json:"severity"`
}
