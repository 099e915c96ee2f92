package damage

import "dents-inspector/api/internal/plds"

// Position is a bounding box in the photo's pixel space.
type Position struct {
	TopY    float64 `json:"topY"`
	BottomY float64 `json:"bottomY"`
	LeftX   float64 `json:"leftX"`
	RightX  float64 `json:"rightX"`
}

// Detection is one damage observation as reported by the model.
type Detection struct {
	Photo    string   `json:"photo"`
	Position Position `json:"position"`
	PLDS     string   `json:"plds"`
}

// Enriched is a Detection whose code has been replaced by its labels.
type Enriched struct {
	Photo    string       `json:"photo"`
	Position Position     `json:"position"`
	PLDS     plds.Decoded `json:"plds"`
}

// Report is the translated result of one inspection.
type Report struct {
	Event   string     `json:"event,omitempty"`
	Engine  string     `json:"engine,omitempty"`
	Model   string     `json:"model,omitempty"`
	Damages []Enriched `json:"damages"`
}
