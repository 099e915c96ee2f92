package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"dents-inspector/api/internal/taxonomy"
)

// Lister reads one taxonomy category ordered by id.
type Lister interface {
	ListAll(ctx context.Context, cat taxonomy.Category) ([]taxonomy.Entry, error)
}

// Builder renders the system instructions for the inspection model from the
// current taxonomy. Nothing is cached: every Build reads the tables again.
type Builder struct {
	tax Lister
}

func NewBuilder(tax Lister) *Builder { return &Builder{tax: tax} }

const identity = "# Identity\n\n" +
	"You are a car inspection assistant. Your clients are:\n" +
	"* Insurance companies\n" +
	"* Car rentals\n" +
	"You help your clients' employees inspect cars in order to detect damages.\n" +
	"When you receive from a user a list of photos of an inspected car,\n" +
	"you inspect the photos and produce a damages report.\n"

const responseShape = "\n# Response\n\n" +
	"Your response should be a JSON list of objects and nothing else.\n" +
	"Each element in the response should contain:\n" +
	"* key 'photo' -- the photo (file name) where the damage was detected\n" +
	"* key 'position' -- the position where the damage was detected in the photo, a JSON object\n" +
	"** with numeric keys:\n" +
	"*** topY\n" +
	"*** bottomY\n" +
	"*** leftX\n" +
	"*** rightX\n" +
	"* key 'plds' -- a string of format '<p>-><l>-><d>-><s>' (example: '15->5->2->3') where:\n"

// Build returns the full instruction text.
func (b *Builder) Build(ctx context.Context) (string, error) {
	var sb strings.Builder
	sb.WriteString(identity)
	sb.WriteString(responseShape)

	roles := map[taxonomy.Category]string{
		taxonomy.Part:       "p is an id of a part",
		taxonomy.Location:   "l is an id of a location",
		taxonomy.DamageType: "d is an id of a damage type",
		taxonomy.Severity:   "s is an id of a severity (optional; omit '-><s>' when the severity cannot be judged)",
	}
	for _, cat := range taxonomy.Categories() {
		entries, err := b.tax.ListAll(ctx, cat)
		if err != nil {
			return "", fmt.Errorf("instructions: %w", err)
		}
		listing, err := Listing(entries)
		if err != nil {
			return "", fmt.Errorf("instructions: %s: %w", cat, err)
		}
		fmt.Fprintf(&sb, "** %s - one of %s:\n %s\n", roles[cat], cat.Title(), listing)
	}
	sb.WriteString("If no damage is visible in any photo, respond with an empty list [].\n")
	return sb.String(), nil
}

// Listing serializes entries as an indented JSON array of {"<id>": "<label>"}
// objects, keeping the given order.
func Listing(entries []taxonomy.Entry) (string, error) {
	items := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]string{strconv.Itoa(e.ID): e.Label})
	}
	out, err := json.MarshalIndent(items, "", "    ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
