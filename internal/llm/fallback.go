package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FallbackProvider tries each wrapped provider in order and returns the first
// successful response. A cancelled context stops the chain immediately.
type FallbackProvider struct {
	providers []Provider
	logger    *slog.Logger
}

// NewFallbackProvider creates a new fallback provider wrapper.
func NewFallbackProvider(logger *slog.Logger, providers ...Provider) *FallbackProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackProvider{
		providers: providers,
		logger:    logger.With("component", "fallback_provider"),
	}
}

// Chat implements the Provider interface.
func (p *FallbackProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if len(p.providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	var errs []error
	for _, provider := range p.providers {
		resp, err := provider.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("provider failed, trying next",
			"provider", provider.Name(),
			"model", provider.Model(),
			"error", err,
		)
		errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
	}

	return nil, errors.Join(errs...)
}

// Name returns the primary provider's name with a fallback suffix.
func (p *FallbackProvider) Name() string {
	if len(p.providers) == 0 {
		return "fallback"
	}
	return p.providers[0].Name() + "_fallback"
}

// Model returns the primary provider's model.
func (p *FallbackProvider) Model() string {
	if len(p.providers) == 0 {
		return ""
	}
	return p.providers[0].Model()
}
