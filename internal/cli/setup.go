package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/shockeval/internal/classify"
	"github.com/ppiankov/shockeval/internal/llm"
	"github.com/ppiankov/shockeval/internal/model"
	"github.com/ppiankov/shockeval/internal/pipeline"
	"github.com/ppiankov/shockeval/internal/source"
	"github.com/ppiankov/shockeval/internal/store"
	"github.com/ppiankov/shockeval/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// eventFlags selects the ground-truth event table
type eventFlags struct {
	events   string
	shocks   string
	labels   string
	keywords string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.events, "events", "", "events table (YAML or JSON)")
	cmd.Flags().StringVar(&f.shocks, "shocks", "", "companion parsed_shocks.json (alternative to --events)")
	cmd.Flags().StringVar(&f.labels, "labels", "", "companion parsed_labels.json")
	cmd.Flags().StringVar(&f.keywords, "keywords", "", "keyword overrides YAML for companion events")
}

func (f *eventFlags) load() ([]model.Event, error) {
	switch {
	case f.events != "":
		return source.LoadEvents(f.events)
	case f.shocks != "":
		return source.LoadCompanion(f.shocks, f.labels, f.keywords)
	default:
		return nil, fmt.Errorf("either --events or --shocks is required")
	}
}

// prepareInputs builds the pipeline and resolves the document IDs
func prepareInputs(ctx context.Context, cfg *model.Config, idsFile string) (*pipeline.Pipeline, []string, error) {
	loader, err := source.NewLoader(ctx, cfg.Source, logger)
	if err != nil {
		return nil, nil, err
	}

	var ids []string
	if idsFile != "" {
		ids, err = worker.ReadIDsFromFile(idsFile)
	} else {
		ids, err = loader.List(ctx)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve documents: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("no documents found")
	}

	st := store.FromConfig(cfg.Cache, logger)
	return pipeline.New(cfg, loader, st, logger), ids, nil
}

// newCallFunc wires the configured provider behind a rate-limited gateway
func newCallFunc(cfg *model.Config, reg prometheus.Registerer) (classify.CallFunc, pipeline.RunInfo, error) {
	llmCfg := llm.ApplyEnv(llm.ConfigFromModel(cfg.LLM))
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, pipeline.RunInfo{}, fmt.Errorf("create LLM provider: %w", err)
	}
	if provider == nil {
		return nil, pipeline.RunInfo{}, &model.ConfigurationError{Field: "llm.provider", Reason: "no classifier provider configured (use --provider)"}
	}

	gw, err := classify.NewGateway(provider, classify.GatewayOptionsFromConfig(cfg.LLM), reg, logger)
	if err != nil {
		return nil, pipeline.RunInfo{}, err
	}
	c := classify.NewLLMClassifier(gw, logger)
	return c.Call(), pipeline.RunInfo{Provider: provider.Name(), Model: cfg.LLM.Model}, nil
}

// writeMetrics saves gateway metrics in the Prometheus text format
func writeMetrics(path string, reg *prometheus.Registry) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// outputFile returns the explicit path or name inside the output directory
func outputFile(cfg *model.Config, explicit, name string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(cfg.Output.Dir, name)
}
