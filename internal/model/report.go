package model

import "time"

// RunManifest identifies an evaluation run and what it covered.
// Predictions and results are keyed by (codebook version, seed, fold set).
type RunManifest struct {
	RunID           string        `json:"run_id"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	CodebookName    string        `json:"codebook_name"`
	CodebookVersion string        `json:"codebook_version"`
	Seed            uint64        `json:"seed"`
	Folds           []string      `json:"folds"`        // Held-out event IDs
	FailedFolds     []string      `json:"failed_folds"` // Excluded from point estimates
	CoverageGaps    []CoverageGap `json:"coverage_gaps,omitempty"`
	InvalidOutputs  int           `json:"invalid_outputs"` // Units marked INVALID_OUTPUT
	Provider        string        `json:"provider,omitempty"`
	Model           string        `json:"model,omitempty"`
}

// Verdict is the outcome of a behavioral probe, with transparent data
type Verdict struct {
	Test        string                 `json:"test"`
	Passed      bool                   `json:"passed"`
	Value       float64                `json:"value"`
	Target      string                 `json:"target"`
	Severity    Severity               `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Severity indicates how much a verdict matters
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// BehavioralReport collects the verdicts for one codebook/classifier pair
type BehavioralReport struct {
	CodebookName    string    `json:"codebook_name"`
	CodebookVersion string    `json:"codebook_version"`
	RunAt           time.Time `json:"run_at"`
	Verdicts        []Verdict `json:"verdicts"`
}

// Passed reports whether every verdict passed
func (r *BehavioralReport) Passed() bool {
	for _, v := range r.Verdicts {
		if !v.Passed {
			return false
		}
	}
	return true
}
