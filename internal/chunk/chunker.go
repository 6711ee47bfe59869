// Package chunk splits extracted documents into overlapping page windows.
package chunk

import (
	"fmt"
	"strings"

	"github.com/ppiankov/shockeval/internal/model"
	"go.uber.org/zap"
)

// Params controls windowing. WindowSize and Overlap are page counts.
type Params struct {
	WindowSize int
	Overlap    int
	MaxTokens  int // Advisory; oversized windows are logged, never split
}

// ParamsFromConfig converts the chunking section of the run config
func ParamsFromConfig(cfg model.ChunkingConfig) Params {
	return Params{
		WindowSize: cfg.WindowSize,
		Overlap:    cfg.Overlap,
		MaxTokens:  cfg.MaxTokens,
	}
}

// Validate rejects parameters that cannot produce a forward-moving window
func (p Params) Validate() error {
	if p.WindowSize <= 0 {
		return &model.ConfigurationError{Field: "window_size", Reason: fmt.Sprintf("must be positive, got %d", p.WindowSize)}
	}
	if p.Overlap < 0 {
		return &model.ConfigurationError{Field: "overlap", Reason: fmt.Sprintf("must not be negative, got %d", p.Overlap)}
	}
	if p.Overlap >= p.WindowSize {
		return &model.ConfigurationError{
			Field:  "overlap",
			Reason: fmt.Sprintf("overlap %d must be smaller than window_size %d", p.Overlap, p.WindowSize),
		}
	}
	return nil
}

// Chunker produces page windows for documents
type Chunker struct {
	log *zap.Logger
}

// NewChunker creates a chunker. A nil logger discards output.
func NewChunker(log *zap.Logger) *Chunker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chunker{log: log}
}

// Chunk splits doc into windows stepping by WindowSize-Overlap pages.
// The final window is clipped to the last page; every page lands in at least one chunk.
func (c *Chunker) Chunk(doc *model.Document, p Params) ([]model.Chunk, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if doc == nil || len(doc.Pages) == 0 {
		return []model.Chunk{}, nil
	}

	n := len(doc.Pages)
	stride := p.WindowSize - p.Overlap
	var chunks []model.Chunk

	for start := 0; ; start += stride {
		end := start + p.WindowSize
		if end > n {
			end = n
		}

		ch := buildChunk(doc, start, end)
		if p.MaxTokens > 0 && ch.TokenCount > p.MaxTokens {
			c.log.Warn("chunk exceeds token budget",
				zap.String("chunk_id", ch.ID),
				zap.Int("tokens", ch.TokenCount),
				zap.Int("max_tokens", p.MaxTokens))
		}
		chunks = append(chunks, ch)

		if end == n {
			break
		}
	}

	c.log.Debug("chunked document",
		zap.String("document_id", doc.ID),
		zap.Int("pages", n),
		zap.Int("chunks", len(chunks)))

	return chunks, nil
}

// buildChunk assembles pages[start:end) into a chunk with 1-based page numbers
func buildChunk(doc *model.Document, start, end int) model.Chunk {
	texts := make([]string, 0, end-start)
	for _, page := range doc.Pages[start:end] {
		texts = append(texts, strings.TrimSpace(page.Text))
	}
	text := strings.Join(texts, "\n\n")

	return model.Chunk{
		ID:         fmt.Sprintf("%s:p%d-%d", doc.ID, start+1, end),
		DocumentID: doc.ID,
		StartPage:  start + 1,
		EndPage:    end,
		Text:       text,
		TokenCount: EstimateTokens(text),
	}
}

// Coverage returns the 1-based pages of an n-page document that no chunk covers
func Coverage(chunks []model.Chunk, n int) []int {
	covered := make([]bool, n+1)
	for _, ch := range chunks {
		for p := ch.StartPage; p <= ch.EndPage && p <= n; p++ {
			if p >= 1 {
				covered[p] = true
			}
		}
	}
	var missing []int
	for p := 1; p <= n; p++ {
		if !covered[p] {
			missing = append(missing, p)
		}
	}
	return missing
}
