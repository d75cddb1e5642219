package llm

import (
	"fmt"
	"log/slog"
	"strings"
)

// ProviderType represents the type of LLM provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderOllama    ProviderType = "ollama"
	ProviderLMStudio  ProviderType = "lmstudio"
)

// NewProvider creates a new LLM provider based on the configuration.
func NewProvider(cfg ProviderConfig, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := ValidateProviderConfig(cfg); err != nil {
		return nil, err
	}

	providerType := ProviderType(strings.ToLower(cfg.Provider))
	if cfg.Model == "" {
		cfg.Model = GetDefaultModel(cfg.Provider)
	}

	logger.Info("creating LLM provider",
		"provider", providerType,
		"model", cfg.Model,
		"fast_model", cfg.FastModel,
	)

	switch providerType {
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg, logger)

	case ProviderOpenAI, ProviderOllama, ProviderLMStudio:
		if cfg.BaseURL == "" {
			cfg.BaseURL = GetDefaultBaseURL(cfg.Provider)
		}
		return NewOpenAICompatProvider(cfg, logger)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// ValidateProviderConfig validates the provider configuration.
func ValidateProviderConfig(cfg ProviderConfig) error {
	switch ProviderType(strings.ToLower(cfg.Provider)) {
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return fmt.Errorf("API key is required for Anthropic provider")
		}

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return fmt.Errorf("API key is required for OpenAI provider")
		}

	case ProviderOllama, ProviderLMStudio:
		// No API key required

	default:
		return fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	return nil
}

// GetDefaultModel returns the default model for a given provider.
func GetDefaultModel(provider string) string {
	switch ProviderType(strings.ToLower(provider)) {
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderOllama:
		return "llama3.2"
	case ProviderLMStudio:
		return "local-model"
	default:
		return ""
	}
}

// GetDefaultBaseURL returns the default base URL for a given provider.
func GetDefaultBaseURL(provider string) string {
	switch ProviderType(strings.ToLower(provider)) {
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderOllama:
		return "http://localhost:11434/v1"
	case ProviderLMStudio:
		return "http://localhost:1234/v1"
	default:
		return ""
	}
}
