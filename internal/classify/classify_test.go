package classify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/shockeval/internal/codebook"
	"github.com/ppiankov/shockeval/internal/llm"
	"github.com/ppiankov/shockeval/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCodebook = `
name: Motivation
version: "1"
classes:
  - label: Deficit-driven
    label_definition: Enacted to reduce an inherited deficit.
    clarification: []
    negative_clarification: []
    positive_examples: [reduce the deficit]
    negative_examples: [speed the recovery]
  - label: Countercyclical
    label_definition: Enacted to return growth to normal.
    clarification: []
    negative_clarification: []
    positive_examples: [speed the recovery]
    negative_examples: [reduce the deficit]
output_instructions: Pick the primary motivation.
`

func loadCodebook(t *testing.T) *codebook.Codebook {
	t.Helper()
	cb, err := codebook.Parse([]byte(testCodebook))
	require.NoError(t, err)
	return cb
}

func compiledSchema(t *testing.T) *codebook.OutputSchema {
	t.Helper()
	s, err := loadCodebook(t).CompileSchema()
	require.NoError(t, err)
	return s
}

func TestParseOutput(t *testing.T) {
	schema := compiledSchema(t)

	tests := []struct {
		name      string
		raw       string
		compliant bool
		label     string
	}{
		{"plain", `{"label":"Deficit-driven","confidence":0.9,"reasoning":"r"}`, true, "Deficit-driven"},
		{"fenced", "```json\n{\"label\":\"Countercyclical\",\"confidence\":0.4}\n```", true, "Countercyclical"},
		{"prose around", `Here you go: {"label":"Countercyclical","confidence":1} hope it helps`, true, "Countercyclical"},
		{"unknown label", `{"label":"Spending-driven","confidence":0.9}`, false, ""},
		{"missing confidence", `{"label":"Deficit-driven"}`, false, ""},
		{"confidence out of range", `{"label":"Deficit-driven","confidence":1.5}`, false, ""},
		{"not json", `I think it is deficit-driven`, false, ""},
		{"broken json", `{"label": "Deficit-driven", `, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sample, err := ParseOutput(tt.raw, schema)
			assert.Equal(t, tt.compliant, sample.Compliant)
			assert.Equal(t, tt.raw, sample.Raw)
			if tt.compliant {
				require.NoError(t, err)
				assert.Equal(t, tt.label, sample.Label)
				return
			}
			require.Error(t, err)
			assert.True(t, model.IsNonCompliant(err))
			assert.NotEmpty(t, sample.Error)
		})
	}
}

type fakeCompleter struct {
	text string
	err  error

	mu   sync.Mutex
	reqs []llm.CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Text: f.text, TokensUsed: 10}, nil
}

func TestLLMClassifier_Classify(t *testing.T) {
	fc := &fakeCompleter{text: `{"label":"Countercyclical","confidence":0.75,"reasoning":"recovery"}`}
	c := NewLLMClassifier(fc, nil)

	in := Input{
		UnitID:   "doc:p1-50",
		Codebook: loadCodebook(t),
		Examples: []codebook.Example{{Label: "Deficit-driven", Text: "cut the deficit"}},
		Text:     "to speed the recovery",
	}
	sample, err := c.Classify(context.Background(), in, 0.7)
	require.NoError(t, err)
	assert.True(t, sample.Compliant)
	assert.Equal(t, "Countercyclical", sample.Label)
	assert.InDelta(t, 0.75, sample.Confidence, 1e-9)

	require.Len(t, fc.reqs, 1)
	req := fc.reqs[0]
	assert.True(t, req.JSON)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
	assert.Contains(t, req.System, "## Deficit-driven")
	assert.Contains(t, req.Prompt, "Example 1 (label: Deficit-driven)")
	assert.Contains(t, req.Prompt, "to speed the recovery")
}

func TestLLMClassifier_NonCompliant(t *testing.T) {
	fc := &fakeCompleter{text: `{"label":"Other","confidence":0.5}`}
	c := NewLLMClassifier(fc, nil)

	sample, err := c.Call()(context.Background(), Input{UnitID: "u", Codebook: loadCodebook(t), Text: "x"}, 0)
	require.Error(t, err)
	assert.True(t, model.IsNonCompliant(err))
	assert.False(t, sample.Compliant)
}

func TestLLMClassifier_TransientPassesThrough(t *testing.T) {
	fc := &fakeCompleter{err: &model.TransientClassifierError{StatusCode: 503, Err: errors.New("unavailable")}}
	c := NewLLMClassifier(fc, nil)

	_, err := c.Classify(context.Background(), Input{UnitID: "u", Codebook: loadCodebook(t), Text: "x"}, 0)
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
}

func TestLLMClassifier_NoCodebook(t *testing.T) {
	c := NewLLMClassifier(&fakeCompleter{}, nil)
	_, err := c.Classify(context.Background(), Input{UnitID: "u"}, 0)
	assert.Error(t, err)
}

type fakeProvider struct {
	delay   time.Duration
	err     error
	current int32
	peak    int32
	calls   int32
}

func (p *fakeProvider) Name() string                         { return "fake" }
func (p *fakeProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	atomic.AddInt32(&p.calls, 1)
	n := atomic.AddInt32(&p.current, 1)
	defer atomic.AddInt32(&p.current, -1)
	for {
		peak := atomic.LoadInt32(&p.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&p.peak, peak, n) {
			break
		}
	}

	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	return &llm.CompletionResponse{Text: `{"label":"x"}`, Model: req.Model, TokensUsed: 7}, nil
}

func TestGateway_ConcurrencyCap(t *testing.T) {
	p := &fakeProvider{delay: 20 * time.Millisecond}
	reg := prometheus.NewRegistry()
	g, err := NewGateway(p, GatewayOptions{Model: "m", MaxConcurrent: 2}, reg, nil)
	require.NoError(t, err)
	assert.Equal(t, "fake/m", g.Key())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := g.Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})
			assert.NoError(t, err)
			assert.Equal(t, "m", resp.Model)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), atomic.LoadInt32(&p.calls))
	assert.LessOrEqual(t, atomic.LoadInt32(&p.peak), int32(2))
	assert.Equal(t, 8.0, testutil.ToFloat64(g.metrics.calls.WithLabelValues("fake", "ok")))
	assert.Equal(t, 56.0, testutil.ToFloat64(g.metrics.tokens.WithLabelValues("fake")))
	assert.Equal(t, 0.0, testutil.ToFloat64(g.metrics.inFlight))
}

func TestGateway_TimeoutIsTransient(t *testing.T) {
	p := &fakeProvider{delay: time.Second}
	g, err := NewGateway(p, GatewayOptions{MaxConcurrent: 1, Timeout: 20 * time.Millisecond}, nil, nil)
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.calls.WithLabelValues("fake", "transient")))
}

func TestGateway_CallerCancellation(t *testing.T) {
	p := &fakeProvider{delay: time.Second}
	g, err := NewGateway(p, GatewayOptions{MaxConcurrent: 1}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = g.Complete(ctx, llm.CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	assert.False(t, model.IsTransient(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.calls.WithLabelValues("fake", "canceled")))
}

func TestGateway_PermanentError(t *testing.T) {
	p := &fakeProvider{err: errors.New("bad request")}
	g, err := NewGateway(p, GatewayOptions{}, nil, nil)
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bad request"))
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.calls.WithLabelValues("fake", "error")))
}

func TestNewGateway_Errors(t *testing.T) {
	_, err := NewGateway(nil, GatewayOptions{}, nil, nil)
	var ce *model.ConfigurationError
	assert.ErrorAs(t, err, &ce)

	reg := prometheus.NewRegistry()
	_, err = NewGateway(&fakeProvider{}, GatewayOptions{}, reg, nil)
	require.NoError(t, err)
	_, err = NewGateway(&fakeProvider{}, GatewayOptions{}, reg, nil)
	assert.Error(t, err, "registering twice on one registry must fail")
}

func TestGatewayOptionsFromConfig(t *testing.T) {
	opts := GatewayOptionsFromConfig(model.LLMConfig{Model: "m", Timeout: 3, MaxConcurrent: 4, RequestsPerSecond: 2, Burst: 1})
	assert.Equal(t, 3*time.Second, opts.Timeout)
	assert.Equal(t, 4, opts.MaxConcurrent)
	assert.Equal(t, "m", opts.Model)
}
