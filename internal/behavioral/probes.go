package behavioral

import (
	"context"
	"fmt"

	"github.com/ppiankov/shockeval/internal/classify"
	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/evaluate"
	"github.com/ppiankov/shockeval/internal/model"
)

type miss struct {
	ID       string `json:"id"`
	Expected string `json:"expected"`
	Got      string `json:"got"`
}

func legalOutput(sets ...batch) model.Verdict {
	total, compliant := 0, 0
	var failed []string
	for _, b := range sets {
		failed = append(failed, b.failed...)
		for _, p := range b.preds {
			if p == nil {
				continue
			}
			for _, s := range p.RawSamples {
				total++
				if s.Compliant {
					compliant++
				}
			}
		}
	}
	value := 0.0
	if total > 0 {
		value = float64(compliant) / float64(total)
	}
	return model.Verdict{
		Test:        TestLegalOutput,
		Passed:      total > 0 && compliant == total,
		Value:       value,
		Target:      "100% schema-valid responses",
		Severity:    model.SeverityCritical,
		Description: "share of classifier responses that pass output schema validation",
		Data: map[string]interface{}{
			"responses":     total,
			"compliant":     compliant,
			"non_compliant": total - compliant,
			"failed_units":  batch{failed: failed}.failedUnits(),
		},
	}
}

func recovery(name, description string, cases []Case, b batch) model.Verdict {
	correct := 0
	var misses []miss
	for i, c := range cases {
		if b.preds[i] == nil {
			continue
		}
		got := b.preds[i].PredictedLabel
		if got == c.Label {
			correct++
			continue
		}
		misses = append(misses, miss{ID: c.ID, Expected: c.Label, Got: got})
	}
	value := 0.0
	if len(cases) > 0 {
		value = float64(correct) / float64(len(cases))
	}
	return model.Verdict{
		Test:        name,
		Passed:      len(cases) > 0 && correct == len(cases),
		Value:       value,
		Target:      "100% recovered",
		Severity:    model.SeverityCritical,
		Description: description,
		Data: map[string]interface{}{
			"cases":        len(cases),
			"misses":       misses,
			"failed_units": b.failedUnits(),
		},
	}
}

func (r *Runner) orderInvariance(ctx context.Context, call classify.CallFunc, cb *codebook.Codebook, cases []Case, original batch) (model.Verdict, error) {
	reversed, err := r.classifyAll(ctx, call, cb.Reversed(), cases)
	if err != nil {
		return model.Verdict{}, err
	}
	shuffled, err := r.classifyAll(ctx, call, cb.Shuffled(r.opts.ShuffleSeed), cases)
	if err != nil {
		return model.Verdict{}, err
	}

	verdict := model.Verdict{
		Test:        TestOrderInvariance,
		Target:      fmt.Sprintf("label change < %.0f%% and kappa > %.2f", 100*r.opts.MaxOrderChange, r.opts.MinKappa),
		Severity:    model.SeverityWarning,
		Description: "label stability across original, reversed and shuffled class orderings",
	}
	failed := unionFailed(cases, original, reversed, shuffled)

	// Compare only cases classified under all three orderings
	sets := make([][]string, 3)
	for i := range cases {
		if original.preds[i] == nil || reversed.preds[i] == nil || shuffled.preds[i] == nil {
			continue
		}
		sets[0] = append(sets[0], original.preds[i].PredictedLabel)
		sets[1] = append(sets[1], reversed.preds[i].PredictedLabel)
		sets[2] = append(sets[2], shuffled.preds[i].PredictedLabel)
	}
	if len(sets[0]) == 0 {
		verdict.Data = map[string]interface{}{
			"reason":       "no case was classified under every ordering",
			"cases":        len(cases),
			"failed_units": failed,
		}
		return verdict, nil
	}

	changes := 0
	for i := range sets[0] {
		if sets[1][i] != sets[0][i] {
			changes++
		}
		if sets[2][i] != sets[0][i] {
			changes++
		}
	}
	changeRate := float64(changes) / float64(2*len(sets[0]))

	kappa, err := evaluate.FleissKappa(sets)
	if err != nil {
		return model.Verdict{}, err
	}

	verdict.Passed = changeRate < r.opts.MaxOrderChange && kappa > r.opts.MinKappa
	verdict.Value = changeRate
	verdict.Data = map[string]interface{}{
		"kappa":                kappa,
		"kappa_interpretation": evaluate.InterpretKappa(kappa),
		"changes":              changes,
		"cases":                len(cases),
		"compared":             len(sets[0]),
		"failed_units":         failed,
	}
	return verdict, nil
}

type exclusionCell struct {
	Trigger  bool   `json:"trigger"`
	Clause   bool   `json:"clause"`
	Expected string `json:"expected"`
	Got      string `json:"got"`
	Correct  bool   `json:"correct"`
}

// exclusionConsistency crosses (text with/without the trigger token) with
// (codebook with/without a matching exclusion clause). Only the cell with
// both should move the label to the exclusion label.
func (r *Runner) exclusionConsistency(ctx context.Context, call classify.CallFunc, cb *codebook.Codebook, cases []Case) (model.Verdict, error) {
	verdict := model.Verdict{
		Test:        TestExclusionConsistency,
		Target:      "4/4 cells correct",
		Severity:    model.SeverityWarning,
		Description: "exclusion clause applies only when its trigger is present",
	}

	excluded := r.opts.ExclusionDefault
	if !cb.HasLabel(excluded) {
		excluded = cb.Classes[len(cb.Classes)-1].Label
	}
	var base *Case
	for i := range cases {
		if cases[i].Label != excluded {
			base = &cases[i]
			break
		}
	}
	if base == nil {
		verdict.Data = map[string]interface{}{"reason": "no case with a label other than " + excluded}
		return verdict, nil
	}

	trigger := r.opts.TriggerToken
	texts := []Case{
		{ID: base.ID + "/plain", Text: base.Text},
		{ID: base.ID + "/trigger", Text: base.Text + "\n" + trigger},
	}

	without, err := r.classifyAll(ctx, call, cb, texts)
	if err != nil {
		return model.Verdict{}, err
	}
	with, err := r.classifyAll(ctx, call, cb.WithExclusion(trigger, excluded), texts)
	if err != nil {
		return model.Verdict{}, err
	}

	cells := []exclusionCell{
		{Trigger: false, Clause: false, Expected: base.Label, Got: predictedLabel(without.preds[0])},
		{Trigger: false, Clause: true, Expected: base.Label, Got: predictedLabel(with.preds[0])},
		{Trigger: true, Clause: false, Expected: base.Label, Got: predictedLabel(without.preds[1])},
		{Trigger: true, Clause: true, Expected: excluded, Got: predictedLabel(with.preds[1])},
	}
	correct := 0
	for i := range cells {
		cells[i].Correct = cells[i].Got == cells[i].Expected
		if cells[i].Correct {
			correct++
		}
	}

	verdict.Value = float64(correct) / float64(len(cells))
	verdict.Passed = correct == len(cells)
	verdict.Data = map[string]interface{}{
		"case":            base.ID,
		"exclusion_label": excluded,
		"trigger":         trigger,
		"cells":           cells,
		"failed_units":    batch{failed: append(without.failed, with.failed...)}.failedUnits(),
	}
	return verdict, nil
}

func (r *Runner) labelProbe(ctx context.Context, call classify.CallFunc, name, description string, variant *codebook.Codebook, mapping codebook.LabelMap, cases []Case, baseline float64) (model.Verdict, error) {
	b, err := r.classifyAll(ctx, call, variant, cases)
	if err != nil {
		return model.Verdict{}, err
	}
	acc := accuracyOf(cases, b.preds, mapping)
	drop := baseline - acc

	return model.Verdict{
		Test:        name,
		Passed:      drop <= r.opts.MaxLabelDrop,
		Value:       acc,
		Target:      fmt.Sprintf("accuracy drop <= %.0f%%", 100*r.opts.MaxLabelDrop),
		Severity:    model.SeverityWarning,
		Description: description,
		Data: map[string]interface{}{
			"baseline_accuracy": baseline,
			"drop":              drop,
			"cases":             len(cases),
			"failed_units":      b.failedUnits(),
		},
	}, nil
}

func accuracyOf(cases []Case, preds []*model.Prediction, mapping codebook.LabelMap) float64 {
	if len(cases) == 0 {
		return 0
	}
	correct := 0
	for i, c := range cases {
		if preds[i] == nil || !preds[i].Valid() {
			continue
		}
		if mapping.Original(preds[i].PredictedLabel) == c.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(cases))
}

func predictedLabel(p *model.Prediction) string {
	if p == nil {
		return ""
	}
	return p.PredictedLabel
}

// unionFailed lists each case that failed in any of the batches once, in case order
func unionFailed(cases []Case, sets ...batch) []string {
	out := []string{}
	for i, c := range cases {
		for _, b := range sets {
			if b.preds[i] == nil {
				out = append(out, c.ID)
				break
			}
		}
	}
	return out
}
