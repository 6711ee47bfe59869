// Package classify applies a codebook to text through an LLM provider.
package classify

import (
	"context"
	"fmt"
	"sync"

	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/llm"
	"github.com/ppiankov/shockeval/internal/model"
	"go.uber.org/zap"
)

// Input is everything needed to label one unit
type Input struct {
	UnitID   string
	Codebook *codebook.Codebook
	Examples []codebook.Example
	Text     string
}

// CallFunc produces one classifier sample for an input
type CallFunc func(ctx context.Context, in Input, temperature float64) (model.Sample, error)

// Classifier produces one sample per call. Schema failures are reported as
// *model.NonCompliantOutput together with the non-compliant sample.
type Classifier interface {
	Classify(ctx context.Context, in Input, temperature float64) (model.Sample, error)
}

// Completer is the part of the gateway the classifier depends on
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// LLMClassifier renders codebook prompts and validates the responses
type LLMClassifier struct {
	completer Completer
	log       *zap.Logger

	mu      sync.Mutex
	schemas map[string]*codebook.OutputSchema
}

// NewLLMClassifier creates a classifier over a completer (usually a *Gateway)
func NewLLMClassifier(completer Completer, log *zap.Logger) *LLMClassifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LLMClassifier{
		completer: completer,
		log:       log,
		schemas:   make(map[string]*codebook.OutputSchema),
	}
}

// Classify sends one request and parses the response
func (c *LLMClassifier) Classify(ctx context.Context, in Input, temperature float64) (model.Sample, error) {
	if in.Codebook == nil {
		return model.Sample{}, fmt.Errorf("classify %s: no codebook", in.UnitID)
	}
	schema, err := c.schema(in.Codebook)
	if err != nil {
		return model.Sample{}, err
	}

	prompt := in.Codebook.BuildPrompt(in.Examples, in.Text)
	resp, err := c.completer.Complete(ctx, llm.CompletionRequest{
		System:      prompt.System,
		Prompt:      prompt.User,
		Temperature: temperature,
		JSON:        true,
	})
	if err != nil {
		return model.Sample{}, fmt.Errorf("classify %s: %w", in.UnitID, err)
	}

	sample, err := ParseOutput(resp.Text, schema)
	if err != nil {
		c.log.Debug("non-compliant classifier output",
			zap.String("unit", in.UnitID),
			zap.String("codebook", in.Codebook.Name),
			zap.Error(err))
	}
	return sample, err
}

// Call adapts the classifier to a CallFunc
func (c *LLMClassifier) Call() CallFunc {
	return c.Classify
}

func (c *LLMClassifier) schema(cb *codebook.Codebook) (*codebook.OutputSchema, error) {
	key := cb.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.schemas[key]; ok {
		return s, nil
	}
	s, err := cb.CompileSchema()
	if err != nil {
		return nil, err
	}
	c.schemas[key] = s
	return s, nil
}
