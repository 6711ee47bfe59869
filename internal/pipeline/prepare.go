// Package pipeline composes loading, chunking, matching, cross-validation
// and evaluation into runs, and renders their artifacts.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/shockeval/internal/chunk"
	"github.com/ppiankov/shockeval/internal/match"
	"github.com/ppiankov/shockeval/internal/model"
	"github.com/ppiankov/shockeval/internal/store"
	"github.com/ppiankov/shockeval/internal/worker"
	"go.uber.org/zap"
)

// Pipeline orchestrates a shockeval run
type Pipeline struct {
	cfg     *model.Config
	loader  worker.DocumentLoader
	store   *store.Store
	chunker *chunk.Chunker
	matcher *match.Matcher
	log     *zap.Logger
}

// New creates a pipeline. A nil store disables artifact reuse.
func New(cfg *model.Config, loader worker.DocumentLoader, st *store.Store, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if st == nil {
		st = store.New(nil, 0, log)
	}
	return &Pipeline{
		cfg:     cfg,
		loader:  loader,
		store:   st,
		chunker: chunk.NewChunker(log),
		matcher: match.NewMatcher(match.OptionsFromConfig(cfg.Matching), log),
		log:     log,
	}
}

// DocumentStatus reports how one document was prepared
type DocumentStatus struct {
	ID     string `json:"document_id"`
	Pages  int    `json:"pages,omitempty"`
	Chunks int    `json:"chunks"`
	Cached bool   `json:"cached"`
	Error  string `json:"error,omitempty"`
}

// PrepareResult is the chunk and match artifact set for a run
type PrepareResult struct {
	Corpus     *model.Corpus       `json:"corpus"`
	Uncovered  []model.CoverageGap `json:"uncovered,omitempty"`
	Documents  []DocumentStatus    `json:"documents"`
	TierCounts map[model.Tier]int  `json:"tier_counts"`
	Duration   time.Duration       `json:"duration"`
}

// Failed returns the documents that could not be loaded or chunked
func (r *PrepareResult) Failed() []DocumentStatus {
	var out []DocumentStatus
	for _, d := range r.Documents {
		if d.Error != "" {
			out = append(out, d)
		}
	}
	return out
}

// Prepare chunks every document and matches the chunks against events.
// Chunks and match reports are reused from the store when their inputs are
// unchanged. A document that fails to load is reported and skipped; invalid
// parameters abort.
func (p *Pipeline) Prepare(ctx context.Context, ids []string, events []model.Event) (*PrepareResult, error) {
	start := time.Now()

	params := chunk.ParamsFromConfig(p.cfg.Chunking)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ids = dedupe(ids)
	statuses := make([]DocumentStatus, len(ids))
	chunksByDoc := make([][]model.Chunk, len(ids))
	keys := make([]string, len(ids))

	var missIDs []string
	missIdx := make(map[string]int)
	for i, id := range ids {
		statuses[i].ID = id
		keys[i] = ChunkKey(id, params)

		var cached []model.Chunk
		found, err := p.store.Get(keys[i], &cached)
		if err != nil {
			p.log.Warn("discarding unreadable chunk artifact", zap.String("document", id), zap.Error(err))
		}
		if found && err == nil {
			chunksByDoc[i] = cached
			statuses[i].Chunks = len(cached)
			statuses[i].Cached = true
			continue
		}
		missIDs = append(missIDs, id)
		missIdx[id] = i
	}

	p.log.Info("chunking documents",
		zap.Int("documents", len(ids)),
		zap.Int("cached", len(ids)-len(missIDs)),
		zap.Int("window_size", params.WindowSize),
		zap.Int("overlap", params.Overlap))

	bp := worker.NewBatchProcessor(p.loader, p.chunker, params, p.cfg.Matching.Workers)
	for _, res := range bp.ProcessDocuments(ctx, missIDs) {
		i := missIdx[res.DocumentID]
		statuses[i].Pages = res.Pages
		if res.Error != nil {
			statuses[i].Error = res.Error.Error()
			p.log.Warn("document skipped", zap.String("document", res.DocumentID), zap.Error(res.Error))
			continue
		}
		chunksByDoc[i] = res.Chunks
		statuses[i].Chunks = len(res.Chunks)
		if err := p.store.Put(keys[i], res.Chunks); err != nil {
			p.log.Warn("failed to persist chunks", zap.String("document", res.DocumentID), zap.Error(err))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var chunks []model.Chunk
	var usedKeys []string
	for i := range ids {
		if statuses[i].Error != "" || chunksByDoc[i] == nil {
			continue
		}
		chunks = append(chunks, chunksByDoc[i]...)
		usedKeys = append(usedKeys, keys[i])
	}

	report, err := store.Load(ctx, p.store, MatchKey(usedKeys, events, p.cfg.Matching), func(ctx context.Context) (*match.Report, error) {
		return p.matcher.Match(ctx, chunks, events)
	})
	if err != nil {
		return nil, fmt.Errorf("match chunks: %w", err)
	}

	result := &PrepareResult{
		Corpus: &model.Corpus{
			Events:  events,
			Chunks:  chunks,
			Matches: report.Matches,
		},
		Uncovered:  report.Uncovered,
		Documents:  statuses,
		TierCounts: report.TierCounts(),
		Duration:   time.Since(start),
	}

	p.log.Info("preparation complete",
		zap.Int("chunks", len(chunks)),
		zap.Int("matches", len(report.Matches)),
		zap.Int("uncovered_events", len(report.Uncovered)),
		zap.Int("failed_documents", len(result.Failed())),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
