package llm

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ppiankov/shockeval/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one prompt and returns the raw completion text
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is a single classifier call
type CompletionRequest struct {
	// System carries the codebook instructions
	System string

	// Prompt carries the few-shot examples and the unit text
	Prompt string

	// Model overrides the configured model when set
	Model string

	// Temperature controls sampling; self-consistency needs it above zero
	Temperature float64

	// MaxTokens limits the response length
	MaxTokens int

	// JSON asks the provider for a JSON object response where supported
	JSON bool
}

// CompletionResponse is the provider's answer
type CompletionResponse struct {
	// Text is the completion text, expected to hold a JSON object
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "gemini", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic/Gemini
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   60,
		MaxTokens: 1024,
	}
}

// statusError wraps an HTTP failure. 429 and 5xx become transient.
func statusError(status int, err error) error {
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return &model.TransientClassifierError{StatusCode: status, Err: err}
	}
	return err
}

// transportError marks timeouts and network failures as transient.
// Cancellation by the caller is returned unchanged.
func transportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.TransientClassifierError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &model.TransientClassifierError{Err: err}
	}
	return err
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
