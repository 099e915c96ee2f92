package taxonomy

// Defaults returns the seed taxonomy. Locations and severities keep the ids the
// inspection models were prompted with in production; do not renumber them.
func Defaults() map[Category][]Entry {
	return map[Category][]Entry{
		Part: {
			{1, "front-bumper"},
			{2, "rear-bumper"},
			{3, "hood"},
			{4, "trunk"},
			{5, "roof"},
			{6, "windshield"},
			{7, "rear-window"},
			{8, "front-door"},
			{9, "rear-door"},
			{10, "fender"},
			{11, "quarter-panel"},
			{12, "side-mirror"},
			{13, "headlight"},
			{14, "taillight"},
			{15, "wheel"},
			{16, "tire"},
			{17, "side-skirt"},
			{18, "grille"},
			{19, "side-window"},
			{20, "dashboard"},
			{21, "seat"},
			{22, "engine"},
		},
		Location: {
			{0, "all"},
			{4, "left-front"},
			{5, "left-rear"},
			{6, "right-front"},
			{7, "right-rear"},
			{1, "center-front"},
			{2, "center-rear"},
			{3, "left-side"},
			{8, "right-side"},
			{29, "center"},
			{12, "left-row3"},
			{13, "right-row3"},
			{11, "center-row3"},
			{32, "warning-light"},
			{37, "underhood"},
		},
		DamageType: {
			{1, "dent"},
			{2, "scratch"},
			{3, "crack"},
			{4, "broken"},
			{5, "missing"},
			{6, "paint-chip"},
			{7, "rust"},
			{8, "flat"},
			{9, "stain"},
			{10, "tear"},
		},
		Severity: {
			{1, "small"},
			{3, "large"},
			{2, "medium"},
			{4, "replacement-required"},
		},
	}
}
