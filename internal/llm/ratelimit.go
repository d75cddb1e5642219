package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedProvider paces calls to a wrapped provider.
type RateLimitedProvider struct {
	wrapped Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider allows perMinute calls per minute with the given burst.
// A non-positive perMinute disables pacing.
func NewRateLimitedProvider(p Provider, perMinute, burst int) *RateLimitedProvider {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{
		wrapped: p,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Chat waits for a token and then forwards the request.
func (p *RateLimitedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return p.wrapped.Chat(ctx, req)
}

// Name returns the wrapped provider's name.
func (p *RateLimitedProvider) Name() string {
	return p.wrapped.Name()
}

// Model returns the wrapped provider's model.
func (p *RateLimitedProvider) Model() string {
	return p.wrapped.Model()
}
