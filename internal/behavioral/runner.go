// Package behavioral probes whether a classifier actually follows a codebook,
// independent of ground-truth events.
package behavioral

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/shockeval/internal/classify"
	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/consistency"
	"github.com/ppiankov/shockeval/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Probe names
const (
	TestLegalOutput          = "legal_output"
	TestDefinitionRecovery   = "definition_recovery"
	TestExampleRecovery      = "example_recovery"
	TestOrderInvariance      = "order_invariance"
	TestExclusionConsistency = "exclusion_consistency"
	TestGenericLabelAccuracy = "generic_label_accuracy"
	TestSwappedLabelAccuracy = "swapped_label_accuracy"
)

// Case is a labeled text used by the order and label probes
type Case struct {
	ID    string `json:"id" yaml:"id"`
	Text  string `json:"text" yaml:"text"`
	Label string `json:"label" yaml:"label"`
}

// retrySleepFunc waits between retries (injectable for tests)
var retrySleepFunc consistency.SleepFunc = consistency.SleepContext

// Options configures the runner
type Options struct {
	Samples          int
	Temperature      float64
	MaxRetries       int
	BaseBackoff      time.Duration
	MaxOrderChange   float64
	MinKappa         float64
	MaxLabelDrop     float64
	TriggerToken     string
	ShuffleSeed      uint64
	ExclusionDefault string
	Concurrency      int
}

// OptionsFromConfig converts model.Config
func OptionsFromConfig(cfg *model.Config) Options {
	temperature := cfg.Behavioral.Temperature
	if temperature == 0 && cfg.Behavioral.Samples > 1 {
		temperature = cfg.Consistency.Temperature
	}
	return Options{
		Samples:          cfg.Behavioral.Samples,
		Temperature:      temperature,
		MaxRetries:       cfg.LOOCV.MaxRetries,
		BaseBackoff:      cfg.LOOCV.BaseBackoff,
		MaxOrderChange:   cfg.Behavioral.MaxOrderChange,
		MinKappa:         cfg.Behavioral.MinKappa,
		MaxLabelDrop:     cfg.Behavioral.MaxLabelDrop,
		TriggerToken:     cfg.Behavioral.TriggerToken,
		ShuffleSeed:      cfg.Behavioral.ShuffleSeed,
		ExclusionDefault: cfg.Behavioral.ExclusionDefault,
		Concurrency:      cfg.LLM.MaxConcurrent,
	}
}

// Runner executes the behavioral probes
type Runner struct {
	opts       Options
	aggregator *consistency.Aggregator
	log        *zap.Logger
}

// NewRunner creates a runner
func NewRunner(opts Options, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Samples <= 0 {
		opts.Samples = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.TriggerToken == "" {
		opts.TriggerToken = "ZQXJ-TRIGGER"
	}
	return &Runner{opts: opts, aggregator: consistency.NewAggregator(log), log: log}
}

// Run executes every probe. Cases default to the codebook's positive examples.
func (r *Runner) Run(ctx context.Context, cb *codebook.Codebook, call classify.CallFunc, cases []Case) (*model.BehavioralReport, error) {
	if cb == nil || len(cb.Classes) == 0 {
		return nil, &model.ConfigurationError{Field: "codebook", Reason: "a codebook with at least one class is required"}
	}
	if len(cases) == 0 {
		cases = ExampleCases(cb)
	}
	if len(cases) == 0 {
		return nil, &model.ConfigurationError{Field: "cases", Reason: "no cases and no codebook examples"}
	}

	report := &model.BehavioralReport{
		CodebookName:    cb.Name,
		CodebookVersion: cb.Version,
		RunAt:           time.Now().UTC(),
	}

	original, err := r.classifyAll(ctx, call, cb, cases)
	if err != nil {
		return nil, err
	}
	definitions, err := r.classifyAll(ctx, call, cb, DefinitionCases(cb))
	if err != nil {
		return nil, err
	}
	examples, err := r.classifyAll(ctx, call, cb, ExampleCases(cb))
	if err != nil {
		return nil, err
	}

	report.Verdicts = append(report.Verdicts,
		legalOutput(original, definitions, examples),
		recovery(TestDefinitionRecovery, "classifier recovers each label from its own definition", DefinitionCases(cb), definitions),
		recovery(TestExampleRecovery, "classifier recovers each label from its positive examples", ExampleCases(cb), examples),
	)

	order, err := r.orderInvariance(ctx, call, cb, cases, original)
	if err != nil {
		return nil, err
	}
	report.Verdicts = append(report.Verdicts, order)

	exclusion, err := r.exclusionConsistency(ctx, call, cb, cases)
	if err != nil {
		return nil, err
	}
	report.Verdicts = append(report.Verdicts, exclusion)

	baseline := accuracyOf(cases, original.preds, nil)
	generic, mapping := cb.WithGenericLabels()
	gv, err := r.labelProbe(ctx, call, TestGenericLabelAccuracy, "accuracy with meaningless label names", generic, mapping, cases, baseline)
	if err != nil {
		return nil, err
	}
	swapped, swapMap := cb.WithSwappedLabels()
	sv, err := r.labelProbe(ctx, call, TestSwappedLabelAccuracy, "accuracy with label names rotated between definitions", swapped, swapMap, cases, baseline)
	if err != nil {
		return nil, err
	}
	report.Verdicts = append(report.Verdicts, gv, sv)

	passed := 0
	for _, v := range report.Verdicts {
		if v.Passed {
			passed++
		}
	}
	r.log.Info("behavioral tests complete",
		zap.String("codebook", cb.Name),
		zap.Int("passed", passed),
		zap.Int("total", len(report.Verdicts)))

	return report, nil
}

// DefinitionCases turns each class definition into a case expecting its label
func DefinitionCases(cb *codebook.Codebook) []Case {
	out := make([]Case, 0, len(cb.Classes))
	for i, c := range cb.Classes {
		out = append(out, Case{ID: fmt.Sprintf("definition[%d]", i), Text: c.LabelDefinition, Label: c.Label})
	}
	return out
}

// ExampleCases turns every positive example into a case expecting its label
func ExampleCases(cb *codebook.Codebook) []Case {
	var out []Case
	for i, c := range cb.Classes {
		for j, ex := range c.PositiveExamples {
			out = append(out, Case{ID: fmt.Sprintf("classes[%d].positive[%d]", i, j), Text: ex, Label: c.Label})
		}
	}
	return out
}

// batch holds one prediction per case. Units whose transient failures
// outlast the retry budget keep a nil prediction and are listed in failed.
type batch struct {
	preds  []*model.Prediction
	failed []string
}

func (b batch) failedUnits() []string {
	if len(b.failed) == 0 {
		return []string{}
	}
	return b.failed
}

func (r *Runner) classifyAll(ctx context.Context, call classify.CallFunc, cb *codebook.Codebook, cases []Case) (batch, error) {
	preds := make([]*model.Prediction, len(cases))
	failed := make([]bool, len(cases))
	policy := consistency.RetryPolicy{
		MaxRetries:  r.opts.MaxRetries,
		BaseBackoff: r.opts.BaseBackoff,
		Sleep: func(ctx context.Context, d time.Duration) error {
			return retrySleepFunc(ctx, d)
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, c := range cases {
		g.Go(func() error {
			in := classify.Input{UnitID: c.ID, Codebook: cb, Text: c.Text}
			p, retries, err := r.aggregator.AggregateWithRetry(gctx, call, in, r.opts.Samples, r.opts.Temperature, policy)
			if err != nil {
				if model.IsTransient(err) && gctx.Err() == nil {
					r.log.Warn("unit failed after retries",
						zap.String("unit", c.ID),
						zap.Int("retries", retries),
						zap.Error(err))
					failed[i] = true
					return nil
				}
				return err
			}
			preds[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return batch{}, fmt.Errorf("behavioral classification: %w", err)
	}

	b := batch{preds: preds}
	for i, f := range failed {
		if f {
			b.failed = append(b.failed, cases[i].ID)
		}
	}
	return b, nil
}
