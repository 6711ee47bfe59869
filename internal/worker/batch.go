package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/shockeval/internal/chunk"
	"github.com/ppiankov/shockeval/internal/model"
)

// DocumentLoader fetches an extracted document by ID
type DocumentLoader interface {
	Load(ctx context.Context, documentID string) (*model.Document, error)
}

// ChunkJob loads one document and splits it into chunks
type ChunkJob struct {
	index   int
	ID      string
	Loader  DocumentLoader
	Chunker *chunk.Chunker
	Params  chunk.Params
}

// Execute executes the chunk job
func (j *ChunkJob) Execute(ctx context.Context) Result {
	res := &ChunkResult{index: j.index, DocumentID: j.ID}

	doc, err := j.Loader.Load(ctx, j.ID)
	if err != nil {
		res.Error = fmt.Errorf("load %s: %w", j.ID, err)
		return res
	}
	res.Pages = doc.NumPages()

	chunks, err := j.Chunker.Chunk(doc, j.Params)
	if err != nil {
		res.Error = fmt.Errorf("chunk %s: %w", j.ID, err)
		return res
	}
	res.Chunks = chunks
	return res
}

// ChunkResult is the outcome of a chunk job
type ChunkResult struct {
	index      int
	DocumentID string
	Pages      int
	Chunks     []model.Chunk
	Error      error
}

// GetError returns the error from the chunk result
func (r *ChunkResult) GetError() error {
	return r.Error
}

// BatchProcessor chunks many documents concurrently
type BatchProcessor struct {
	loader      DocumentLoader
	chunker     *chunk.Chunker
	params      chunk.Params
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(loader DocumentLoader, chunker *chunk.Chunker, params chunk.Params, concurrency int) *BatchProcessor {
	if chunker == nil {
		chunker = chunk.NewChunker(nil)
	}
	return &BatchProcessor{
		loader:      loader,
		chunker:     chunker,
		params:      params,
		concurrency: concurrency,
	}
}

// ProcessDocuments chunks every document. Results keep the order of ids.
func (b *BatchProcessor) ProcessDocuments(ctx context.Context, ids []string) []*ChunkResult {
	if len(ids) == 0 {
		return []*ChunkResult{}
	}

	jobs := make([]Job, len(ids))
	for i, id := range ids {
		jobs[i] = &ChunkJob{
			index:   i,
			ID:      id,
			Loader:  b.loader,
			Chunker: b.chunker,
			Params:  b.params,
		}
	}

	results := Run(ctx, b.concurrency, jobs)

	out := make([]*ChunkResult, 0, len(results))
	for _, r := range results {
		out = append(out, r.(*ChunkResult))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })

	return out
}

// ProcessFile reads document IDs from a file and chunks them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*ChunkResult, error) {
	ids, err := ReadIDsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read document IDs: %w", err)
	}

	return b.ProcessDocuments(ctx, ids), nil
}

// ReadIDsFromFile reads document IDs from a file (one per line)
func ReadIDsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var ids []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			ids = append(ids, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return ids, nil
}
