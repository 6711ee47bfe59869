package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/shockeval/internal/model"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "gemini", "google":
		return NewGeminiProvider(config)

	case "":
		// No provider configured - return nil (classification disabled)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama, gemini)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(modelConfig model.LLMConfig) Config {
	return Config{
		Provider:   modelConfig.Provider,
		Model:      modelConfig.Model,
		APIKey:     modelConfig.APIKey,
		BaseURL:    modelConfig.BaseURL,
		Timeout:    modelConfig.Timeout,
		MaxTokens:  modelConfig.MaxTokens,
		HTTPProxy:  modelConfig.HTTPProxy,
		HTTPSProxy: modelConfig.HTTPSProxy,
		NoProxy:    modelConfig.NoProxy,
	}
}

// ApplyEnv fills the API key and base URL from the provider's environment
// variables when the configuration leaves them empty
func ApplyEnv(config Config) Config {
	lookup := func(keys ...string) string {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				return v
			}
		}
		return ""
	}

	switch strings.ToLower(config.Provider) {
	case "openai":
		if config.APIKey == "" {
			config.APIKey = lookup("OPENAI_API_KEY")
		}
	case "anthropic", "claude":
		if config.APIKey == "" {
			config.APIKey = lookup("ANTHROPIC_API_KEY")
		}
	case "gemini", "google":
		if config.APIKey == "" {
			config.APIKey = lookup("GEMINI_API_KEY", "GOOGLE_API_KEY")
		}
	case "ollama":
		if config.BaseURL == "" {
			config.BaseURL = lookup("OLLAMA_BASE_URL", "OLLAMA_HOST")
		}
	}
	return config
}
