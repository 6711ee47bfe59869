package cli

import (
	"fmt"
	"os"

	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	evaluateRun    string
	evaluateEvents eventFlags
	evaluateKind   string
	evaluateOut    string
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Re-score the predictions of an earlier run",
	Long: `Evaluate recomputes metrics and bootstrap confidence intervals for the
predictions stored in a run file, e.g. with a different resample count or seed.

Classification codebooks report precision, recall, F1, weighted F1, accuracy
and per-tier recall. Extraction codebooks report exact, within-one-quarter and
sign accuracy, and MAPE on amounts.

Example:
  shockeval evaluate --run shockeval-results/run.json --events events.yaml
  shockeval evaluate --run run.json --events events.yaml --kind extraction --bootstrap 5000`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evaluateRun, "run", "", "run file written by 'shockeval loocv' (required)")
	evaluateEvents.register(evaluateCmd)
	evaluateCmd.Flags().StringVar(&evaluateKind, "kind", string(codebook.KindClassification), "codebook kind: classification or extraction")
	evaluateCmd.Flags().StringVar(&evaluateOut, "out", "", "results output path (default: <output-dir>/results.json)")
	evaluateCmd.Flags().Int("bootstrap", 0, "bootstrap resamples")
	_ = evaluateCmd.MarkFlagRequired("run")

	_ = viper.BindPFlag("evaluation.bootstrap", evaluateCmd.Flags().Lookup("bootstrap"))
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	kind := codebook.Kind(evaluateKind)
	if kind != codebook.KindClassification && kind != codebook.KindExtraction {
		return fmt.Errorf("unknown kind %q (supported: classification, extraction)", evaluateKind)
	}

	var run pipeline.EvaluationRun
	if err := readJSONFile(evaluateRun, &run); err != nil {
		return err
	}
	events, err := evaluateEvents.load()
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, nil, nil, logger)
	results, invalid, err := p.Score(run.Predictions, events, kind)
	if err != nil {
		return fmt.Errorf("evaluate failed: %w", err)
	}

	run.Results = results
	run.Manifest.InvalidOutputs = invalid

	r := pipeline.NewRenderer(os.Stderr)
	path := outputFile(cfg, evaluateOut, "results.json")
	if err := r.RenderJSON(&run, path); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	r.RenderEvaluationSummary(&run)
	fmt.Fprintf(os.Stderr, "✓ Wrote results: %s\n", path)
	return nil
}
