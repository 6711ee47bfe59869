// Package loocv runs leave-one-event-out cross-validation of a codebook.
package loocv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/shockeval/internal/classify"
	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/consistency"
	"github.com/ppiankov/shockeval/internal/model"
	"github.com/ppiankov/shockeval/internal/sample"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// retrySleepFunc waits between retries (injectable for tests)
var retrySleepFunc consistency.SleepFunc = consistency.SleepContext

// FoldState tracks one held-out event through the harness
type FoldState string

const (
	FoldPending        FoldState = "PENDING"
	FoldBuildingPrompt FoldState = "BUILDING_PROMPT"
	FoldClassifying    FoldState = "CLASSIFYING"
	FoldAggregated     FoldState = "AGGREGATED"
	FoldFailed         FoldState = "FAILED"
)

// Fold is the outcome for one held-out event
type Fold struct {
	EventID     string             `json:"event_id"`
	State       FoldState          `json:"state"`
	Examples    int                `json:"examples"`
	Units       int                `json:"units"`
	Retries     int                `json:"retries"`
	Error       string             `json:"error,omitempty"`
	Predictions []model.Prediction `json:"predictions,omitempty"`
}

// Result collects every fold of a run
type Result struct {
	Folds          []Fold              `json:"folds"`
	Predictions    []model.Prediction  `json:"predictions"`
	Gaps           []model.CoverageGap `json:"gaps,omitempty"`
	InvalidOutputs int                 `json:"invalid_outputs"`
}

// FailedFolds returns the IDs of folds that ended FAILED
func (r *Result) FailedFolds() []string {
	var out []string
	for _, f := range r.Folds {
		if f.State == FoldFailed {
			out = append(out, f.EventID)
		}
	}
	return out
}

// Options configures the harness
type Options struct {
	Strategy             sample.Strategy
	HardNegativeFraction float64
	NegativeLabel        string
	RequireNegativeLabel bool
	MaxExampleTokens     int
	Keywords             []string
	MinPassageChars      int
	Samples              int
	Temperature          float64
	MaxRetries           int
	BaseBackoff          time.Duration
	FoldConcurrency      int
}

// OptionsFromConfig converts model.Config
func OptionsFromConfig(cfg *model.Config) Options {
	return Options{
		Strategy:             sample.Strategy(cfg.Sampling.Strategy),
		HardNegativeFraction: cfg.Sampling.HardNegativeFraction,
		NegativeLabel:        cfg.Sampling.NegativeLabel,
		RequireNegativeLabel: cfg.Sampling.RequireNegativeLabel,
		MaxExampleTokens:     cfg.Sampling.MaxExampleTokens,
		Keywords:             cfg.Matching.DomainKeywords,
		MinPassageChars:      cfg.Matching.MinPassageChars,
		Samples:              cfg.Consistency.Samples,
		Temperature:          cfg.Consistency.Temperature,
		MaxRetries:           cfg.LOOCV.MaxRetries,
		BaseBackoff:          cfg.LOOCV.BaseBackoff,
		FoldConcurrency:      cfg.LOOCV.FoldConcurrency,
	}
}

// Harness runs LOOCV folds
type Harness struct {
	opts       Options
	aggregator *consistency.Aggregator
	log        *zap.Logger
}

// NewHarness creates a harness
func NewHarness(opts Options, log *zap.Logger) *Harness {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Strategy == "" {
		opts.Strategy = sample.StrategyStratified
	}
	if opts.NegativeLabel == "" {
		opts.NegativeLabel = "NONE"
	}
	if opts.Samples <= 0 {
		opts.Samples = 1
	}
	if opts.FoldConcurrency <= 0 {
		opts.FoldConcurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Harness{
		opts:       opts,
		aggregator: consistency.NewAggregator(log),
		log:        log,
	}
}

// Run holds out each event in turn, builds a few-shot prompt from the rest
// of corpus, and classifies every Tier 1 and Tier 2 chunk of the held-out
// event. A data-leakage violation aborts the run. On cancellation the
// in-flight folds are marked FAILED and the context error is returned along
// with the partial result.
func (h *Harness) Run(ctx context.Context, cb *codebook.Codebook, events []model.Event, corpus *model.Corpus, call classify.CallFunc, nFewShot int, seed uint64) (*Result, error) {
	if cb == nil {
		return nil, &model.ConfigurationError{Field: "codebook", Reason: "required"}
	}
	if nFewShot <= 0 {
		return nil, &model.ConfigurationError{Field: "loocv.n_few_shot", Reason: fmt.Sprintf("must be positive, got %d", nFewShot)}
	}

	// Negative examples teach NegativeLabel, so the classifier must be able to answer it.
	omitNegatives := !cb.HasLabel(h.opts.NegativeLabel)
	if omitNegatives {
		if h.opts.RequireNegativeLabel {
			return nil, &model.ConfigurationError{
				Field:  "sampling.negative_label",
				Reason: fmt.Sprintf("codebook %q has no class %q for negative examples", cb.Name, h.opts.NegativeLabel),
			}
		}
		h.log.Warn("codebook has no negative class, few-shot sets use positive examples only",
			zap.String("codebook", cb.Name),
			zap.String("negative_label", h.opts.NegativeLabel))
	}

	ordered := append([]model.Event(nil), events...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	sampler := sample.NewSampler(sample.Options{
		Seed:                 seed,
		HardNegativeFraction: h.opts.HardNegativeFraction,
		NegativeLabel:        h.opts.NegativeLabel,
		MinPassageChars:      h.opts.MinPassageChars,
		OmitNegatives:        omitNegatives,
		MaxExampleTokens:     h.opts.MaxExampleTokens,
		Keywords:             h.opts.Keywords,
	}, h.log)
	chunks := corpus.ChunkIndex()

	folds := make([]Fold, len(ordered))
	for i, ev := range ordered {
		folds[i] = Fold{EventID: ev.ID, State: FoldPending}
	}

	h.log.Info("starting LOOCV",
		zap.String("codebook", cb.Name),
		zap.String("codebook_version", cb.Version),
		zap.Int("folds", len(folds)),
		zap.Int("n_few_shot", nFewShot),
		zap.Uint64("seed", seed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.FoldConcurrency)

	for i, ev := range ordered {
		g.Go(func() error {
			fold, err := h.runFold(gctx, cb, ev, corpus, chunks, sampler, call, nFewShot)
			folds[i] = fold
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{Folds: folds}
	for _, f := range folds {
		switch {
		case f.State == FoldFailed:
			result.Gaps = append(result.Gaps, model.CoverageGap{Kind: model.GapFailedFold, EventID: f.EventID, Reason: f.Error})
		case f.State == FoldAggregated && f.Units == 0:
			result.Gaps = append(result.Gaps, model.CoverageGap{Kind: model.GapEmptyFold, EventID: f.EventID, Reason: "event has no Tier 1 or Tier 2 chunks"})
		}
		for _, p := range f.Predictions {
			if !p.Valid() {
				result.InvalidOutputs++
			}
			result.Predictions = append(result.Predictions, p)
		}
	}

	h.log.Info("LOOCV complete",
		zap.Int("folds", len(folds)),
		zap.Int("predictions", len(result.Predictions)),
		zap.Int("failed_folds", len(result.FailedFolds())),
		zap.Int("gaps", len(result.Gaps)),
		zap.Int("invalid_outputs", result.InvalidOutputs))

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// runFold returns a non-nil error only for conditions that abort the whole run
func (h *Harness) runFold(ctx context.Context, cb *codebook.Codebook, ev model.Event, corpus *model.Corpus, chunks map[string]model.Chunk, sampler *sample.Sampler, call classify.CallFunc, nFewShot int) (Fold, error) {
	fold := Fold{EventID: ev.ID, State: FoldBuildingPrompt}
	log := h.log.With(zap.String("fold", ev.ID))

	if err := ctx.Err(); err != nil {
		return failed(fold, "canceled"), nil
	}

	set, err := sampler.Sample(corpus, ev.ID, nFewShot, h.opts.Strategy)
	if err != nil {
		if errors.Is(err, model.ErrDataLeakage) {
			log.Error("data leakage in few-shot set", zap.Error(err))
			return failed(fold, err.Error()), err
		}
		var ce *model.ConfigurationError
		if errors.As(err, &ce) {
			return failed(fold, err.Error()), err
		}
		log.Warn("fold failed while sampling examples", zap.Error(err))
		return failed(fold, err.Error()), nil
	}
	examples := make([]codebook.Example, len(set.Examples))
	for i, ex := range set.Examples {
		examples[i] = codebook.Example{Label: ex.Label, Text: ex.Text}
	}
	fold.Examples = len(examples)

	fold.State = FoldClassifying
	matches := corpus.MatchesForEvent(ev.ID)
	sort.Slice(matches, func(i, j int) bool { return matches[i].ChunkID < matches[j].ChunkID })

	var preds []model.Prediction
	for _, m := range matches {
		ch, ok := chunks[m.ChunkID]
		if !ok {
			log.Warn("matched chunk missing from corpus", zap.String("chunk", m.ChunkID))
			continue
		}
		in := classify.Input{
			UnitID:   ch.ID,
			Codebook: cb,
			Examples: examples,
			Text:     ch.Text,
		}

		pred, retries, err := h.aggregator.AggregateWithRetry(ctx, call, in, h.opts.Samples, h.opts.Temperature, h.retryPolicy())
		fold.Retries += retries
		if err != nil {
			if ctx.Err() != nil {
				return failed(fold, "canceled"), nil
			}
			log.Warn("fold failed", zap.String("unit", ch.ID), zap.Int("retries", retries), zap.Error(err))
			return failed(fold, err.Error()), nil
		}

		pred.EventID = ev.ID
		pred.Tier = m.Tier
		pred.TrueLabel = ev.CategoryLabel
		preds = append(preds, *pred)
	}

	fold.State = FoldAggregated
	fold.Units = len(preds)
	fold.Predictions = preds
	log.Debug("fold aggregated", zap.Int("units", fold.Units), zap.Int("examples", fold.Examples))
	return fold, nil
}

func (h *Harness) retryPolicy() consistency.RetryPolicy {
	return consistency.RetryPolicy{
		MaxRetries:  h.opts.MaxRetries,
		BaseBackoff: h.opts.BaseBackoff,
		Sleep: func(ctx context.Context, d time.Duration) error {
			return retrySleepFunc(ctx, d)
		},
	}
}

func failed(fold Fold, reason string) Fold {
	fold.State = FoldFailed
	fold.Error = reason
	fold.Predictions = nil
	fold.Units = 0
	return fold
}
