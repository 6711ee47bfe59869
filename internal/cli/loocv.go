package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/pipeline"
	"github.com/ppiankov/shockeval/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	loocvCodebook string
	loocvCorpus   string
	loocvEvents   eventFlags
	loocvIDs      string
	loocvOut      string
	loocvMetrics  string
)

// loocvCmd represents the loocv command
var loocvCmd = &cobra.Command{
	Use:   "loocv",
	Short: "Cross-validate a codebook classifier and score its predictions",
	Long: `LOOCV holds out each event in turn, builds a few-shot prompt from the
remaining events only, classifies every Tier 1 and Tier 2 chunk of the held-out
event with repeated sampling, and reduces the samples by majority vote.

Predictions are scored with bootstrapped confidence intervals. Failed folds are
excluded from the estimates and listed in the run manifest.

Example:
  shockeval loocv --codebook motivation.yaml --corpus shockeval-results/corpus.json --provider openai --model gpt-4o-mini
  shockeval loocv --codebook timing.yaml --events events.yaml --source-dir data/extracted --samples 5`,
	Args: cobra.NoArgs,
	RunE: runLOOCV,
}

func init() {
	rootCmd.AddCommand(loocvCmd)

	loocvCmd.Flags().StringVar(&loocvCodebook, "codebook", "", "codebook YAML (required)")
	loocvCmd.Flags().StringVar(&loocvCorpus, "corpus", "", "corpus written by 'shockeval prepare' (default: prepare now)")
	loocvEvents.register(loocvCmd)
	loocvCmd.Flags().StringVar(&loocvIDs, "ids", "", "file of document IDs when preparing")
	loocvCmd.Flags().StringVar(&loocvOut, "out", "", "run output path (default: <output-dir>/run.json)")
	loocvCmd.Flags().StringVar(&loocvMetrics, "metrics-file", "", "write classifier metrics in Prometheus text format")
	loocvCmd.Flags().Int("samples", 0, "self-consistency samples per chunk")
	loocvCmd.Flags().Int("n-few-shot", 0, "few-shot examples per class")
	_ = loocvCmd.MarkFlagRequired("codebook")

	_ = viper.BindPFlag("consistency.samples", loocvCmd.Flags().Lookup("samples"))
	_ = viper.BindPFlag("loocv.n_few_shot", loocvCmd.Flags().Lookup("n-few-shot"))
}

func runLOOCV(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	cb, err := codebook.Load(loocvCodebook)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	call, info, err := newCallFunc(cfg, reg)
	if err != nil {
		return err
	}

	var prep pipeline.PrepareResult
	var p *pipeline.Pipeline
	if loocvCorpus != "" {
		if err := readJSONFile(loocvCorpus, &prep); err != nil {
			return err
		}
		p = pipeline.New(cfg, nil, store.FromConfig(cfg.Cache, logger), logger)
	} else {
		events, err := loocvEvents.load()
		if err != nil {
			return err
		}
		var ids []string
		p, ids, err = prepareInputs(ctx, cfg, loocvIDs)
		if err != nil {
			return err
		}
		res, err := p.Prepare(ctx, ids, events)
		if err != nil {
			return fmt.Errorf("prepare failed: %w", err)
		}
		prep = *res
	}
	if prep.Corpus == nil {
		return fmt.Errorf("corpus is empty")
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Codebook: %s v%s (%d classes)\n", cb.Name, cb.Version, len(cb.Classes))
		fmt.Fprintf(os.Stderr, "Classifier: %s/%s, %d samples per chunk\n", info.Provider, info.Model, cfg.Consistency.Samples)
		fmt.Fprintf(os.Stderr, "Folds: %d events\n\n", len(prep.Corpus.Events))
	}

	run, runErr := p.Evaluate(ctx, cb, prep.Corpus, call, info, prep.Uncovered)
	if run == nil {
		return fmt.Errorf("loocv failed: %w", runErr)
	}

	r := pipeline.NewRenderer(os.Stderr)
	path := outputFile(cfg, loocvOut, "run.json")
	if err := r.RenderJSON(run, path); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	if err := writeMetrics(loocvMetrics, reg); err != nil {
		logger.Warn("metrics not written", zap.Error(err))
	}

	if runErr != nil {
		if errors.Is(runErr, ctx.Err()) {
			fmt.Fprintf(os.Stderr, "Interrupted; partial run written to %s\n", path)
		}
		return fmt.Errorf("loocv failed: %w", runErr)
	}

	r.RenderEvaluationSummary(run)
	fmt.Fprintf(os.Stderr, "✓ Wrote run: %s\n", path)
	return nil
}
