// Package consistency reduces several sampled classifier outputs for one
// unit into a single prediction.
package consistency

import (
	"context"
	"fmt"
	"sort"

	"github.com/ppiankov/shockeval/internal/classify"
	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MinItemSupport is the share of compliant samples an extracted item needs
const MinItemSupport = 0.5

// Aggregator runs self-consistency sampling
type Aggregator struct {
	log *zap.Logger
}

// NewAggregator creates an aggregator
func NewAggregator(log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{log: log}
}

// Aggregate draws nSamples concurrent samples and votes. A transient failure
// of any sample fails the whole unit; non-compliant samples are recorded and
// excluded from the vote.
func (a *Aggregator) Aggregate(ctx context.Context, call classify.CallFunc, in classify.Input, nSamples int, temperature float64) (*model.Prediction, error) {
	if nSamples <= 0 {
		return nil, &model.ConfigurationError{Field: "consistency.samples", Reason: "must be positive"}
	}

	samples := make([]model.Sample, nSamples)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < nSamples; i++ {
		g.Go(func() error {
			s, err := call(gctx, in, temperature)
			if err != nil {
				if model.IsNonCompliant(err) {
					s.Compliant = false
					if s.Error == "" {
						s.Error = err.Error()
					}
					samples[i] = s
					return nil
				}
				return err
			}
			samples[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("unit %s: %w", in.UnitID, err)
	}

	if in.Codebook != nil {
		for i := range samples {
			if samples[i].Compliant && !in.Codebook.HasLabel(samples[i].Label) {
				samples[i].Compliant = false
				samples[i].Error = fmt.Sprintf("label %q is not in the codebook", samples[i].Label)
			}
		}
	}

	pred := Reduce(samples)
	pred.UnitID = in.UnitID
	if in.Codebook != nil && in.Codebook.Kind == codebook.KindExtraction && pred.Status == model.StatusOK {
		pred.Items = MergeItems(samples)
	}

	if pred.Status == model.StatusInvalidOutput {
		a.log.Warn("every sample was non-compliant", zap.String("unit", in.UnitID), zap.Int("samples", nSamples))
	}
	return pred, nil
}

// Reduce votes over samples. AgreementRate uses every sample, compliant or
// not, as the denominator.
func Reduce(samples []model.Sample) *model.Prediction {
	pred := &model.Prediction{RawSamples: samples}

	type tally struct {
		count   int
		confSum float64
	}
	tallies := make(map[string]*tally)
	for _, s := range samples {
		if !s.Compliant {
			pred.NonCompliant++
			continue
		}
		t := tallies[s.Label]
		if t == nil {
			t = &tally{}
			tallies[s.Label] = t
		}
		t.count++
		t.confSum += s.Confidence
	}

	if len(tallies) == 0 {
		pred.Status = model.StatusInvalidOutput
		return pred
	}

	labels := make([]string, 0, len(tallies))
	for l := range tallies {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		ti, tj := tallies[labels[i]], tallies[labels[j]]
		if ti.count != tj.count {
			return ti.count > tj.count
		}
		mi, mj := ti.confSum/float64(ti.count), tj.confSum/float64(tj.count)
		if mi != mj {
			return mi > mj
		}
		return labels[i] < labels[j]
	})

	win := tallies[labels[0]]
	pred.Status = model.StatusOK
	pred.PredictedLabel = labels[0]
	pred.Confidence = win.confSum / float64(win.count)
	pred.AgreementRate = float64(win.count) / float64(len(samples))
	return pred
}

// MergeItems keeps extracted items produced by at least MinItemSupport of the
// compliant samples. Items are keyed by canonical quarter; amounts merge by
// median and evidence by sorted union.
func MergeItems(samples []model.Sample) []model.ExtractedItem {
	type group struct {
		amounts  []float64
		evidence map[string]bool
	}
	groups := make(map[string]*group)
	compliant := 0

	for _, s := range samples {
		if !s.Compliant {
			continue
		}
		compliant++

		perSample := make(map[string]float64)
		for _, it := range s.Items {
			key, ok := model.CanonicalQuarter(it.Quarter)
			if !ok {
				continue
			}
			perSample[key] += it.Amount
			g := groups[key]
			if g == nil {
				g = &group{evidence: make(map[string]bool)}
				groups[key] = g
			}
			for _, e := range it.Evidence {
				g.evidence[e] = true
			}
		}
		for key, amount := range perSample {
			groups[key].amounts = append(groups[key].amounts, amount)
		}
	}
	if compliant == 0 {
		return nil
	}

	var out []model.ExtractedItem
	for key, g := range groups {
		support := float64(len(g.amounts)) / float64(compliant)
		if support < MinItemSupport {
			continue
		}
		evidence := make([]string, 0, len(g.evidence))
		for e := range g.evidence {
			evidence = append(evidence, e)
		}
		sort.Strings(evidence)
		out = append(out, model.ExtractedItem{
			Quarter:  key,
			Amount:   median(g.amounts),
			Evidence: evidence,
			Support:  support,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		qi, _ := model.QuarterIndex(out[i].Quarter)
		qj, _ := model.QuarterIndex(out[j].Quarter)
		return qi < qj
	})
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
