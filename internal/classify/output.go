package classify

import (
	"encoding/json"
	"strings"

	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/model"
)

type rawOutput struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Items      []struct {
		Quarter  string   `json:"quarter"`
		Amount   float64  `json:"amount"`
		Evidence []string `json:"evidence"`
	} `json:"items"`
}

// ParseOutput validates a raw classifier response against schema.
// The returned sample is always populated; on failure it is marked
// non-compliant and the error is a *model.NonCompliantOutput.
func ParseOutput(raw string, schema *codebook.OutputSchema) (model.Sample, error) {
	sample := model.Sample{Raw: raw}

	body := extractJSON(raw)
	if body == "" {
		return nonCompliant(sample, "no JSON object in response")
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nonCompliant(sample, "invalid JSON: "+err.Error())
	}
	if schema != nil {
		if err := schema.Validate(doc); err != nil {
			return nonCompliant(sample, err.Error())
		}
	}

	var out rawOutput
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nonCompliant(sample, "decode output: "+err.Error())
	}

	sample.Label = out.Label
	sample.Confidence = out.Confidence
	sample.Reasoning = out.Reasoning
	sample.Compliant = true
	for _, it := range out.Items {
		sample.Items = append(sample.Items, model.ExtractedItem{
			Quarter:  it.Quarter,
			Amount:   it.Amount,
			Evidence: it.Evidence,
		})
	}
	return sample, nil
}

func nonCompliant(sample model.Sample, reason string) (model.Sample, error) {
	sample.Compliant = false
	sample.Error = reason
	return sample, &model.NonCompliantOutput{Raw: sample.Raw, Reason: reason}
}

// extractJSON strips markdown fences and surrounding prose, returning the
// outermost JSON object
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
