package taxonomy

import (
	"errors"
	"fmt"
	"strings"
)

// Category is one of the four fixed damage enumerations.
type Category string

const (
	Part       Category = "part"
	Location   Category = "location"
	DamageType Category = "damage_type"
	Severity   Category = "severity"
)

var categories = []Category{Part, Location, DamageType, Severity}

// Categories returns all categories in PLDS component order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case Part, Location, DamageType, Severity:
		return c, nil
	case "damage", "damagetype", "damage-type", "type":
		return DamageType, nil
	}
	return "", fmt.Errorf("unknown taxonomy category %q", s)
}

// Title is the upper-case plural used in the model instructions.
func (c Category) Title() string {
	switch c {
	case Part:
		return "PARTS"
	case Location:
		return "LOCATIONS"
	case DamageType:
		return "DAMAGE_TYPES"
	case Severity:
		return "SEVERITIES"
	}
	return strings.ToUpper(string(c))
}

func (c Category) String() string { return string(c) }

// Entry is one taxonomy row. Ids are assigned by seed data, never generated.
type Entry struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// ErrNotFound is returned by lookups when no row carries the requested id.
var ErrNotFound = errors.New("taxonomy entry not found")
