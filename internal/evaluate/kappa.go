package evaluate

import (
	"fmt"
	"sort"

	"github.com/ppiankov/shockeval/internal/model"
)

// FleissKappa measures agreement between at least three raters. Each label
// set holds one rater's labels for the same ordered subjects.
func FleissKappa(labelSets [][]string) (float64, error) {
	raters := len(labelSets)
	if raters < 3 {
		return 0, &model.ConfigurationError{Field: "label_sets", Reason: fmt.Sprintf("fleiss kappa needs at least 3 label sets, got %d", raters)}
	}
	subjects := len(labelSets[0])
	if subjects == 0 {
		return 0, &model.ConfigurationError{Field: "label_sets", Reason: "no subjects"}
	}
	for i, set := range labelSets {
		if len(set) != subjects {
			return 0, &model.ConfigurationError{
				Field:  "label_sets",
				Reason: fmt.Sprintf("label set %d has %d labels, expected %d", i, len(set), subjects),
			}
		}
	}

	categoryTotals := make(map[string]int)
	var pBar float64
	for s := 0; s < subjects; s++ {
		counts := make(map[string]int)
		for r := 0; r < raters; r++ {
			counts[labelSets[r][s]]++
		}
		var sumSq int
		for cat, n := range counts {
			sumSq += n * n
			categoryTotals[cat] += n
		}
		pBar += float64(sumSq-raters) / float64(raters*(raters-1))
	}
	pBar /= float64(subjects)

	cats := make([]string, 0, len(categoryTotals))
	for c := range categoryTotals {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	var pE float64
	total := float64(subjects * raters)
	for _, c := range cats {
		p := float64(categoryTotals[c]) / total
		pE += p * p
	}
	if pE == 1 {
		// Every rating fell in one category
		return 1, nil
	}
	return (pBar - pE) / (1 - pE), nil
}

// InterpretKappa maps kappa onto the Landis-Koch style scale
func InterpretKappa(k float64) string {
	switch {
	case k < 0.20:
		return "poor"
	case k < 0.40:
		return "fair"
	case k < 0.60:
		return "moderate"
	case k <= 0.80:
		return "substantial"
	default:
		return "near-perfect"
	}
}
