package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/shockeval/internal/classify"
	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/evaluate"
	"github.com/ppiankov/shockeval/internal/loocv"
	"github.com/ppiankov/shockeval/internal/model"
	"go.uber.org/zap"
)

// RunInfo describes the classifier behind a run
type RunInfo struct {
	Provider string
	Model    string
}

// EvaluationRun is the full output of a cross-validated evaluation
type EvaluationRun struct {
	Manifest    model.RunManifest        `json:"manifest"`
	Folds       []loocv.Fold             `json:"folds"`
	Predictions []model.Prediction       `json:"predictions"`
	Results     []model.EvaluationResult `json:"results"`
}

// CrossValidate runs LOOCV over the corpus and returns the raw fold output
func (p *Pipeline) CrossValidate(ctx context.Context, cb *codebook.Codebook, corpus *model.Corpus, call classify.CallFunc) (*loocv.Result, error) {
	h := loocv.NewHarness(loocv.OptionsFromConfig(p.cfg), p.log)
	return h.Run(ctx, cb, corpus.Events, corpus, call, p.cfg.LOOCV.NFewShot, p.cfg.LOOCV.Seed)
}

// Score computes the metric set for kind over valid predictions. It also
// returns the number of INVALID_OUTPUT predictions left out.
func (p *Pipeline) Score(preds []model.Prediction, events []model.Event, kind codebook.Kind) ([]model.EvaluationResult, int, error) {
	obs, invalid := evaluate.ObservationsFromPredictions(preds, events)
	ev := evaluate.NewEvaluator(evaluate.OptionsFromConfig(p.cfg), p.log)
	results, err := ev.Evaluate(obs, evaluate.DefaultMetrics(kind), p.cfg.Evaluation.Bootstrap)
	if err != nil {
		return nil, invalid, err
	}
	return results, invalid, nil
}

// Evaluate cross-validates cb against the corpus and scores the predictions.
// Failed folds are excluded from the estimates and listed in the manifest.
// On cancellation the partial run is returned with the context error.
func (p *Pipeline) Evaluate(ctx context.Context, cb *codebook.Codebook, corpus *model.Corpus, call classify.CallFunc, info RunInfo, uncovered []model.CoverageGap) (*EvaluationRun, error) {
	started := time.Now().UTC()

	cv, cvErr := p.CrossValidate(ctx, cb, corpus, call)
	if cv == nil {
		return nil, cvErr
	}

	run := &EvaluationRun{
		Manifest: model.RunManifest{
			RunID:           uuid.NewString(),
			StartedAt:       started,
			CodebookName:    cb.Name,
			CodebookVersion: cb.Version,
			Seed:            p.cfg.LOOCV.Seed,
			FailedFolds:     cv.FailedFolds(),
			CoverageGaps:    append(append([]model.CoverageGap(nil), uncovered...), cv.Gaps...),
			InvalidOutputs:  cv.InvalidOutputs,
			Provider:        info.Provider,
			Model:           info.Model,
		},
		Folds:       cv.Folds,
		Predictions: cv.Predictions,
	}
	for _, f := range cv.Folds {
		run.Manifest.Folds = append(run.Manifest.Folds, f.EventID)
	}
	sort.Strings(run.Manifest.Folds)

	if cvErr == nil {
		results, _, err := p.Score(cv.Predictions, corpus.Events, cb.Kind)
		if err != nil {
			return nil, err
		}
		run.Results = results
	}
	run.Manifest.FinishedAt = time.Now().UTC()

	if cvErr == nil {
		key := PredictionKey(cb.Hash(), p.cfg.LOOCV.Seed, run.Manifest.Folds)
		if err := p.store.Put(key, run); err != nil {
			p.log.Warn("failed to persist run", zap.String("run_id", run.Manifest.RunID), zap.Error(err))
		}
	}

	p.log.Info("evaluation complete",
		zap.String("run_id", run.Manifest.RunID),
		zap.Int("metrics", len(run.Results)),
		zap.Int("failed_folds", len(run.Manifest.FailedFolds)),
		zap.Int("invalid_outputs", run.Manifest.InvalidOutputs))

	return run, cvErr
}
