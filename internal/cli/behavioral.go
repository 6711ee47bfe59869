package cli

import (
	"fmt"
	"os"

	"github.com/ppiankov/shockeval/internal/behavioral"
	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	behavioralCodebook string
	behavioralCases    string
	behavioralOut      string
	behavioralMetrics  string
	behavioralStrict   bool
)

// behavioralCmd represents the behavioral command
var behavioralCmd = &cobra.Command{
	Use:   "behavioral",
	Short: "Check that a classifier follows a codebook",
	Long: `Behavioral runs probes that need no ground truth:
- legal output: every answer is a codebook label
- definition and example recovery: each label is recovered from its own text
- order invariance: reversing or shuffling classes barely changes answers
- exclusion consistency: an exclusion trigger forces its label
- generic and swapped labels: accuracy depends on definitions, not names

Cases default to the codebook's positive examples.

Example:
  shockeval behavioral --codebook motivation.yaml --provider openai --model gpt-4o-mini
  shockeval behavioral --codebook motivation.yaml --cases cases.yaml --strict`,
	Args: cobra.NoArgs,
	RunE: runBehavioral,
}

func init() {
	rootCmd.AddCommand(behavioralCmd)

	behavioralCmd.Flags().StringVar(&behavioralCodebook, "codebook", "", "codebook YAML (required)")
	behavioralCmd.Flags().StringVar(&behavioralCases, "cases", "", "labeled cases YAML (default: codebook positive examples)")
	behavioralCmd.Flags().StringVar(&behavioralOut, "out", "", "report output path (default: <output-dir>/behavioral.json)")
	behavioralCmd.Flags().StringVar(&behavioralMetrics, "metrics-file", "", "write classifier metrics in Prometheus text format")
	behavioralCmd.Flags().BoolVar(&behavioralStrict, "strict", false, "exit non-zero when any probe fails")
	_ = behavioralCmd.MarkFlagRequired("codebook")
}

func runBehavioral(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	cb, err := codebook.Load(behavioralCodebook)
	if err != nil {
		return err
	}
	cases, err := loadCases(behavioralCases)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	call, _, err := newCallFunc(cfg, reg)
	if err != nil {
		return err
	}

	runner := behavioral.NewRunner(behavioral.OptionsFromConfig(cfg), logger)
	report, err := runner.Run(ctx, cb, call, cases)
	if err != nil {
		return fmt.Errorf("behavioral tests failed: %w", err)
	}

	r := pipeline.NewRenderer(os.Stderr)
	path := outputFile(cfg, behavioralOut, "behavioral.json")
	if err := r.RenderJSON(report, path); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	if err := writeMetrics(behavioralMetrics, reg); err != nil {
		logger.Warn("metrics not written", zap.Error(err))
	}
	r.RenderBehavioralSummary(report)
	fmt.Fprintf(os.Stderr, "✓ Wrote report: %s\n", path)

	if behavioralStrict && !report.Passed() {
		return fmt.Errorf("one or more behavioral probes failed")
	}
	return nil
}

// loadCases reads a YAML list of cases, or {cases: [...]}
func loadCases(path string) ([]behavioral.Case, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}

	var cases []behavioral.Case
	if err := yaml.Unmarshal(data, &cases); err != nil {
		var wrapped struct {
			Cases []behavioral.Case `yaml:"cases"`
		}
		if werr := yaml.Unmarshal(data, &wrapped); werr != nil {
			return nil, fmt.Errorf("parse cases: %w", err)
		}
		cases = wrapped.Cases
	}
	for i, c := range cases {
		if c.Text == "" || c.Label == "" {
			return nil, fmt.Errorf("cases[%d]: text and label are required", i)
		}
		if c.ID == "" {
			cases[i].ID = fmt.Sprintf("case[%d]", i)
		}
	}
	return cases, nil
}
