package model

// Event is a ground-truth fiscal act with its canonical evidence passages
type Event struct {
	ID                string        `json:"event_id" yaml:"event_id"`
	Name              string        `json:"name" yaml:"name"`
	Year              int           `json:"year" yaml:"year"`
	DateSigned        string        `json:"date_signed,omitempty" yaml:"date_signed,omitempty"` // YYYY-MM-DD
	CanonicalPassages []string      `json:"canonical_passages" yaml:"canonical_passages"`       // Verbatim quotes
	CategoryLabel     string        `json:"category_label" yaml:"category_label"`               // e.g., "Deficit-driven"
	Exogeneity        string        `json:"exogeneity,omitempty" yaml:"exogeneity,omitempty"`   // "Exogenous" or "Endogenous"
	KeywordSets       [][]string    `json:"keyword_sets,omitempty" yaml:"keyword_sets,omitempty"`
	Identifiers       []string      `json:"identifiers,omitempty" yaml:"identifiers,omitempty"` // e.g., "Public Law 101-508"
	Timing            []TimingEntry `json:"timing,omitempty" yaml:"timing,omitempty"`
}

// TimingEntry is one quarterly change in liabilities attributed to an act
type TimingEntry struct {
	Quarter    string  `json:"quarter" yaml:"quarter"` // Canonical "YYYYQn"
	Amount     float64 `json:"amount" yaml:"amount"`   // Billions of dollars, signed
	Category   string  `json:"category,omitempty" yaml:"category,omitempty"`
	Exogeneity string  `json:"exogeneity,omitempty" yaml:"exogeneity,omitempty"`
}

// EventIndex returns events keyed by ID
func EventIndex(events []Event) map[string]Event {
	idx := make(map[string]Event, len(events))
	for _, e := range events {
		idx[e.ID] = e
	}
	return idx
}
