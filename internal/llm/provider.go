// Package llm provides a unified interface for the language models that judge page content.
package llm

import (
	"context"
	"strings"
)

// Provider defines the interface that all LLM providers must implement.
type Provider interface {
	// Chat sends a chat request to the LLM and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Name returns the provider name (e.g., "anthropic", "openai", "ollama").
	Name() string

	// Model returns the model name being used.
	Model() string
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonStop      StopReason = "stop"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of the conversation. Only text content is exchanged.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// NewUserMessage creates a user text message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// ChatRequest represents a request to the LLM.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// SystemPrompt is the system prompt for the conversation.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness in the response.
	Temperature float64 `json:"temperature,omitempty"`

	// Tier selects between the provider's fast and strong model when both are configured.
	Tier ModelTier `json:"tier,omitempty"`
}

// ChatResponse represents a response from the LLM.
type ChatResponse struct {
	// Text is the concatenated text content of the reply.
	Text string `json:"text"`

	// StopReason indicates why the model stopped generating.
	StopReason StopReason `json:"stop_reason"`

	// Usage contains token usage information.
	Usage Usage `json:"usage"`

	// Model is the model that generated the response.
	Model string `json:"model"`
}

// Usage contains token usage information.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TotalTokens returns the total number of tokens used.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// ModelTier selects the model used for a request.
type ModelTier string

const (
	// TierStandard is for short verdicts: relevance, results confirmation, pagination.
	TierStandard ModelTier = "standard"
	// TierAdvanced is for blocking detection, planning and extraction.
	TierAdvanced ModelTier = "advanced"
)

// ProviderConfig holds common configuration for LLM providers.
type ProviderConfig struct {
	// Provider is the provider name (anthropic, openai, ollama, lmstudio).
	Provider string `json:"provider"`

	// Model is the model used for TierAdvanced requests.
	Model string `json:"model"`

	// FastModel is used for TierStandard requests. Empty means Model.
	FastModel string `json:"fast_model,omitempty"`

	// APIKey is the API key for authentication.
	APIKey string `json:"api_key,omitempty"`

	// BaseURL is the base URL for OpenAI-compatible servers.
	BaseURL string `json:"base_url,omitempty"`

	// MaxTokens is the default maximum tokens to generate.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature is the default temperature.
	Temperature float64 `json:"temperature,omitempty"`
}

// DefaultProviderConfig returns the default provider configuration.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Provider:    "anthropic",
		Model:       "claude-sonnet-4-20250514",
		MaxTokens:   2000,
		Temperature: 0.1,
	}
}

// modelFor picks the model name for a tier.
func (c ProviderConfig) modelFor(tier ModelTier) string {
	if tier == TierStandard && strings.TrimSpace(c.FastModel) != "" {
		return c.FastModel
	}
	return c.Model
}
