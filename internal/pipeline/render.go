package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/shockeval/internal/model"
)

// Renderer writes run artifacts and human summaries
type Renderer struct {
	out io.Writer
}

// NewRenderer creates a renderer that prints summaries to out
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// RenderJSON writes v as indented JSON, replacing path atomically
func (r *Renderer) RenderJSON(v interface{}, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// RenderPrepareSummary prints document and tier counts
func (r *Renderer) RenderPrepareSummary(res *PrepareResult) {
	cached := 0
	for _, d := range res.Documents {
		if d.Cached {
			cached++
		}
	}
	fmt.Fprintf(r.out, "\nDocuments: %d (%d cached, %d failed)\n", len(res.Documents), cached, len(res.Failed()))
	fmt.Fprintf(r.out, "Chunks:    %d\n", len(res.Corpus.Chunks))
	fmt.Fprintf(r.out, "Matches:   TIER1=%d TIER2=%d NEGATIVE=%d\n",
		res.TierCounts[model.TierOne], res.TierCounts[model.TierTwo], res.TierCounts[model.TierNegative])
	if len(res.Uncovered) > 0 {
		ids := make([]string, len(res.Uncovered))
		for i, g := range res.Uncovered {
			ids[i] = g.EventID
		}
		sort.Strings(ids)
		fmt.Fprintf(r.out, "Uncovered: %s\n", strings.Join(ids, ", "))
	}
	for _, d := range res.Failed() {
		fmt.Fprintf(r.out, "  ✗ %s: %s\n", d.ID, d.Error)
	}
}

// RenderEvaluationSummary prints one line per metric
func (r *Renderer) RenderEvaluationSummary(run *EvaluationRun) {
	m := run.Manifest
	fmt.Fprintf(r.out, "\nRun %s: %s v%s, seed %d\n", m.RunID, m.CodebookName, m.CodebookVersion, m.Seed)
	fmt.Fprintf(r.out, "Folds: %d (%d failed), invalid outputs: %d\n", len(m.Folds), len(m.FailedFolds), m.InvalidOutputs)

	for _, res := range run.Results {
		ci := "n/a"
		if res.CILow != nil && res.CIHigh != nil {
			ci = fmt.Sprintf("[%.3f, %.3f]", *res.CILow, *res.CIHigh)
		}
		line := fmt.Sprintf("  %-18s %.3f  %s  n=%d", res.Metric, res.PointEstimate, ci, res.N)
		if res.Warning != "" {
			line += "  (" + res.Warning + ")"
		}
		fmt.Fprintln(r.out, line)
	}
}

// RenderBehavioralSummary prints each verdict
func (r *Renderer) RenderBehavioralSummary(rep *model.BehavioralReport) {
	fmt.Fprintf(r.out, "\nBehavioral tests: %s v%s\n", rep.CodebookName, rep.CodebookVersion)
	for _, v := range rep.Verdicts {
		mark := "✓"
		if !v.Passed {
			mark = "✗"
		}
		fmt.Fprintf(r.out, "  %s %-26s %.3f  target %s\n", mark, v.Test, v.Value, v.Target)
	}
}
