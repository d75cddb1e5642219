package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompatProvider implements the Provider interface for OpenAI-compatible APIs.
// This works with OpenAI, Ollama, LM Studio, and other OpenAI-compatible servers.
type OpenAICompatProvider struct {
	client       *openai.Client
	providerName string
	logger       *slog.Logger
	config       ProviderConfig
}

// NewOpenAICompatProvider creates a new OpenAI-compatible provider.
func NewOpenAICompatProvider(cfg ProviderConfig, logger *slog.Logger) (*OpenAICompatProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for OpenAI-compatible provider")
	}

	if logger == nil {
		logger = slog.Default()
	}

	// Local servers like Ollama/LM Studio don't require API keys
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "not-needed"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = cfg.BaseURL

	if cfg.Model == "" {
		cfg.Model = GetDefaultModel(cfg.Provider)
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}

	providerName := cfg.Provider
	if providerName == "" {
		providerName = "openai_compat"
	}

	return &OpenAICompatProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		providerName: providerName,
		logger:       logger.With("component", "openai_compat_provider", "provider", providerName),
		config:       cfg,
	}, nil
}

// Chat sends a chat request to the OpenAI-compatible server and returns the response.
func (p *OpenAICompatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := p.config.modelFor(req.Tier)
	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: p.convertMessages(req),
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens > 0 {
		chatReq.MaxTokens = maxTokens
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.config.Temperature
	}
	if temperature > 0 {
		chatReq.Temperature = float32(temperature)
	}

	p.logger.Debug("sending request to OpenAI-compatible server",
		"model", model,
		"base_url", p.config.BaseURL,
		"message_count", len(chatReq.Messages),
	)

	response, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("OpenAI-compatible API call failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI-compatible API")
	}

	return p.convertResponse(&response), nil
}

// Name returns the provider name.
func (p *OpenAICompatProvider) Name() string {
	return p.providerName
}

// Model returns the model name.
func (p *OpenAICompatProvider) Model() string {
	return p.config.Model
}

// convertMessages converts our Message format to OpenAI's format.
func (p *OpenAICompatProvider) convertMessages(req ChatRequest) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if req.SystemPrompt != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Text,
		})
	}

	return result
}

// convertResponse converts OpenAI's response to our ChatResponse format.
func (p *OpenAICompatProvider) convertResponse(resp *openai.ChatCompletionResponse) *ChatResponse {
	choice := resp.Choices[0]

	return &ChatResponse{
		Text:       choice.Message.Content,
		StopReason: p.convertFinishReason(choice.FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		Model: resp.Model,
	}
}

// convertFinishReason converts OpenAI's finish reason to our StopReason type.
func (p *OpenAICompatProvider) convertFinishReason(reason openai.FinishReason) StopReason {
	switch reason {
	case openai.FinishReasonLength:
		return StopReasonMaxTokens
	default:
		return StopReasonEndTurn
	}
}
