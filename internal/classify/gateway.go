package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/shockeval/internal/llm"
	"github.com/ppiankov/shockeval/internal/model"
	"github.com/ppiankov/shockeval/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// GatewayOptions bounds the load placed on a provider
type GatewayOptions struct {
	Model             string
	MaxTokens         int
	MaxConcurrent     int
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration // Per call; 0 disables
}

// GatewayOptionsFromConfig converts model.LLMConfig
func GatewayOptionsFromConfig(cfg model.LLMConfig) GatewayOptions {
	return GatewayOptions{
		Model:             cfg.Model,
		MaxTokens:         cfg.MaxTokens,
		MaxConcurrent:     cfg.MaxConcurrent,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Timeout:           time.Duration(cfg.Timeout) * time.Second,
	}
}

// Gateway serializes access to one provider: a global concurrency cap,
// a rate limiter keyed by provider/model, and a per-call timeout
type Gateway struct {
	provider llm.Provider
	opts     GatewayOptions
	key      string
	sem      chan struct{}
	limiter  *worker.Limiter
	metrics  *gatewayMetrics
	log      *zap.Logger
}

// NewGateway wraps provider. Metrics are registered on reg when it is non-nil.
func NewGateway(provider llm.Provider, opts GatewayOptions, reg prometheus.Registerer, log *zap.Logger) (*Gateway, error) {
	if provider == nil {
		return nil, &model.ConfigurationError{Field: "llm.provider", Reason: "no classifier provider configured"}
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	m := newGatewayMetrics()
	if reg != nil {
		if err := m.register(reg); err != nil {
			return nil, fmt.Errorf("register gateway metrics: %w", err)
		}
	}

	return &Gateway{
		provider: provider,
		opts:     opts,
		key:      provider.Name() + "/" + opts.Model,
		sem:      make(chan struct{}, opts.MaxConcurrent),
		limiter:  worker.NewLimiter(opts.RequestsPerSecond, opts.Burst),
		metrics:  m,
		log:      log,
	}, nil
}

// Key returns the provider/model key used for rate limiting
func (g *Gateway) Key() string {
	return g.key
}

// Complete dispatches one request once a concurrency slot and a rate token are available
func (g *Gateway) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-g.sem }()

	g.metrics.inFlight.Inc()
	defer g.metrics.inFlight.Dec()

	if err := g.limiter.Wait(ctx, g.key); err != nil {
		return nil, err
	}

	if req.Model == "" {
		req.Model = g.opts.Model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = g.opts.MaxTokens
	}

	callCtx := ctx
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.provider.Complete(callCtx, req)
	elapsed := time.Since(start)

	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !model.IsTransient(err) {
		err = &model.TransientClassifierError{Err: fmt.Errorf("call timed out after %s: %w", g.opts.Timeout, err)}
	}

	outcome := outcomeOf(ctx, err)
	g.metrics.calls.WithLabelValues(g.provider.Name(), outcome).Inc()
	g.metrics.latency.WithLabelValues(g.provider.Name()).Observe(elapsed.Seconds())
	if resp != nil {
		g.metrics.tokens.WithLabelValues(g.provider.Name()).Add(float64(resp.TokensUsed))
	}

	if err != nil {
		g.log.Debug("classifier call failed",
			zap.String("key", g.key),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}
	return resp, nil
}

func outcomeOf(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case ctx.Err() != nil:
		return "canceled"
	case model.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
