package model

// EvaluationResult is one metric with its bootstrap confidence interval.
// CILow/CIHigh are nil when the interval is undefined.
type EvaluationResult struct {
	Metric          string           `json:"metric"`
	PointEstimate   float64          `json:"point_estimate"`
	CILow           *float64         `json:"ci_low"`
	CIHigh          *float64         `json:"ci_high"`
	N               int              `json:"n"`
	Resamples       int              `json:"resamples"`
	Warning         string           `json:"warning,omitempty"`
	ConfusionMatrix *ConfusionMatrix `json:"confusion_matrix,omitempty"`
}

// ConfusionMatrix counts (true, predicted) label pairs. Rows are true labels.
type ConfusionMatrix struct {
	Labels []string `json:"labels"`
	Counts [][]int  `json:"counts"`
}

// Count returns the number of pairs with the given true and predicted labels
func (m *ConfusionMatrix) Count(trueLabel, predicted string) int {
	ti, pi := -1, -1
	for i, l := range m.Labels {
		if l == trueLabel {
			ti = i
		}
		if l == predicted {
			pi = i
		}
	}
	if ti < 0 || pi < 0 {
		return 0
	}
	return m.Counts[ti][pi]
}
