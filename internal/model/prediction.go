package model

// PredictionStatus marks whether a unit produced a usable vote
type PredictionStatus string

const (
	StatusOK            PredictionStatus = "OK"
	StatusInvalidOutput PredictionStatus = "INVALID_OUTPUT" // Every sample failed schema validation
)

// Sample is a single classifier response for a unit
type Sample struct {
	Label      string          `json:"label,omitempty"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning,omitempty"`
	Items      []ExtractedItem `json:"items,omitempty"`
	Compliant  bool            `json:"compliant"`
	Error      string          `json:"error,omitempty"` // Validation failure for non-compliant samples
	Raw        string          `json:"raw,omitempty"`
}

// ExtractedItem is one structured element of an extraction output (e.g., a timing entry)
type ExtractedItem struct {
	Quarter  string   `json:"quarter"`
	Amount   float64  `json:"amount"`
	Evidence []string `json:"evidence,omitempty"`
	Support  float64  `json:"support,omitempty"` // Fraction of compliant samples that produced the item
}

// Prediction is the reduced self-consistency vote for one unit
type Prediction struct {
	UnitID         string           `json:"unit_id"`
	EventID        string           `json:"event_id,omitempty"`
	Tier           Tier             `json:"tier,omitempty"`
	PredictedLabel string           `json:"predicted_label"`
	TrueLabel      string           `json:"true_label,omitempty"`
	Confidence     float64          `json:"confidence"`
	AgreementRate  float64          `json:"agreement_rate"`
	Status         PredictionStatus `json:"status"`
	Items          []ExtractedItem  `json:"items,omitempty"`
	NonCompliant   int              `json:"non_compliant"`
	RawSamples     []Sample         `json:"raw_samples"`
}

// Valid reports whether the prediction carries a vote
func (p Prediction) Valid() bool {
	return p.Status == StatusOK
}
