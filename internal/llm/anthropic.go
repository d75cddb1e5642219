package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements the Provider interface for Anthropic's Claude models.
type AnthropicProvider struct {
	client *anthropic.Client
	logger *slog.Logger
	config ProviderConfig
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg ProviderConfig, logger *slog.Logger) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2000
	}

	return &AnthropicProvider{
		client: &client,
		logger: logger.With("component", "anthropic_provider"),
		config: cfg,
	}, nil
}

// Chat sends a chat request to Claude and returns the response.
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	model := p.config.modelFor(req.Tier)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  p.convertMessages(req.Messages),
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.config.Temperature
	}
	if temperature > 0 {
		params.Temperature = anthropic.Float(temperature)
	}

	p.logger.Debug("sending request to Anthropic",
		"model", model,
		"message_count", len(req.Messages),
	)

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API call failed: %w", err)
	}

	return p.convertResponse(response), nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the model name.
func (p *AnthropicProvider) Model() string {
	return p.config.Model
}

// convertMessages converts our Message format to Anthropic's format.
// System messages are carried by the request's System field instead.
func (p *AnthropicProvider) convertMessages(messages []Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			continue
		}

		block := anthropic.NewTextBlock(msg.Text)
		if msg.Role == RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(block))
			continue
		}
		result = append(result, anthropic.NewUserMessage(block))
	}

	return result
}

// convertResponse converts Anthropic's response to our ChatResponse format.
func (p *AnthropicProvider) convertResponse(resp *anthropic.Message) *ChatResponse {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &ChatResponse{
		Text:       sb.String(),
		StopReason: p.convertStopReason(resp.StopReason),
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
		Model: string(resp.Model),
	}
}

// convertStopReason converts Anthropic's stop reason to our StopReason type.
func (p *AnthropicProvider) convertStopReason(reason anthropic.StopReason) StopReason {
	switch reason {
	case "max_tokens":
		return StopReasonMaxTokens
	case "stop_sequence":
		return StopReasonStop
	default:
		return StopReasonEndTurn
	}
}
