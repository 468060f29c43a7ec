package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles requests to a wrapped provider. It never retries; a
// request that cannot obtain a token before its context ends fails.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p with a token bucket of rps requests per second.
// A non-positive rps returns p unchanged.
func NewRateLimited(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{Provider: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Chat waits for a token, then delegates.
func (r *RateLimited) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return ChatResponse{}, fmt.Errorf("%s: rate limit: %w", r.Name(), err)
	}
	return r.Provider.Chat(ctx, req)
}

// Stream waits for a token, then delegates.
func (r *RateLimited) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error) {
	if err := r.limiter.Wait(ctx); err != nil {
		ch := make(chan StreamChunk)
		errCh := make(chan error, 1)
		close(ch)
		errCh <- fmt.Errorf("%s: rate limit: %w", r.Name(), err)
		close(errCh)
		return ch, errCh
	}
	return r.Provider.Stream(ctx, req)
}
