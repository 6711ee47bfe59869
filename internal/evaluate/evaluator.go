// Package evaluate turns LOOCV predictions into metrics with bootstrap
// confidence intervals.
package evaluate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/model"
	"go.uber.org/zap"
)

// Options configures the evaluator
type Options struct {
	PositiveLabel   string // Empty means macro averaging
	Seed            uint64
	Confidence      float64
	MinResamples    int
	MinObservations int
}

// OptionsFromConfig converts model.Config
func OptionsFromConfig(cfg *model.Config) Options {
	return Options{
		PositiveLabel:   cfg.Evaluation.PositiveLabel,
		Seed:            cfg.LOOCV.Seed,
		Confidence:      cfg.Evaluation.Confidence,
		MinResamples:    cfg.Evaluation.MinResamples,
		MinObservations: cfg.Evaluation.MinObservations,
	}
}

// Evaluator computes metric point estimates and intervals
type Evaluator struct {
	opts Options
	log  *zap.Logger
}

// NewEvaluator creates an evaluator
func NewEvaluator(opts Options, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{opts: opts, log: log}
}

// DefaultMetrics returns the metric set for a codebook kind
func DefaultMetrics(kind codebook.Kind) []string {
	if kind == codebook.KindExtraction {
		return append([]string(nil), ExtractionMetrics...)
	}
	return append([]string(nil), ClassificationMetrics...)
}

// Evaluate returns one result per metric, sorted by metric name. Insufficient
// samples leave the interval nil and record a warning; unknown metrics are a
// configuration error.
func (e *Evaluator) Evaluate(obs []Observation, metrics []string, nBootstrap int) ([]model.EvaluationResult, error) {
	for _, m := range metrics {
		if _, ok := metricFuncs[m]; !ok {
			return nil, &model.ConfigurationError{Field: "metrics", Reason: "unknown metric " + m}
		}
	}

	var confusion *model.ConfusionMatrix
	results := make([]model.EvaluationResult, 0, len(metrics))
	for _, m := range metrics {
		point, defined, _ := Compute(m, obs, e.opts.PositiveLabel)
		res := model.EvaluationResult{
			Metric:        m,
			PointEstimate: point,
			N:             len(obs),
		}

		if !defined {
			res.Warning = "metric undefined for these observations"
			results = append(results, res)
			continue
		}

		iv, err := Bootstrap(m, obs, e.opts.PositiveLabel, BootstrapOptions{
			Resamples:       nBootstrap,
			Seed:            e.opts.Seed,
			Confidence:      e.opts.Confidence,
			MinResamples:    e.opts.MinResamples,
			MinObservations: e.opts.MinObservations,
		})
		var insufficient *model.InsufficientSampleError
		switch {
		case errors.As(err, &insufficient):
			res.Warning = insufficient.Error()
			e.log.Warn("confidence interval undefined", zap.String("metric", m), zap.Error(err))
		case err != nil:
			return nil, fmt.Errorf("bootstrap %s: %w", m, err)
		default:
			low, high := iv.Low, iv.High
			res.CILow = &low
			res.CIHigh = &high
			res.Resamples = iv.Resamples
		}

		if classificationMetric[m] {
			if confusion == nil {
				confusion = ConfusionMatrix(obs)
			}
			res.ConfusionMatrix = confusion
		}
		results = append(results, res)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Metric < results[j].Metric })
	return results, nil
}

// ObservationsFromPredictions keeps valid predictions and counts the
// INVALID_OUTPUT ones separately. Timing truth comes from events.
func ObservationsFromPredictions(preds []model.Prediction, events []model.Event) ([]Observation, int) {
	idx := model.EventIndex(events)
	obs := make([]Observation, 0, len(preds))
	invalid := 0
	for _, p := range preds {
		if !p.Valid() {
			invalid++
			continue
		}
		o := Observation{
			UnitID:         p.UnitID,
			EventID:        p.EventID,
			Tier:           p.Tier,
			Predicted:      p.PredictedLabel,
			True:           p.TrueLabel,
			PredictedItems: p.Items,
		}
		if ev, ok := idx[p.EventID]; ok {
			o.TrueTiming = ev.Timing
			if o.True == "" {
				o.True = ev.CategoryLabel
			}
		}
		obs = append(obs, o)
	}
	return obs, invalid
}
