package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// LimitedProvider throttles embedding calls to a sustained rate with a burst
// allowance, blocking (up to the context deadline) until a slot is free.
type LimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

var _ Provider = (*LimitedProvider)(nil)

// WithRateLimit wraps provider with a rate limiter of perSec sustained calls
// and the given burst.
func WithRateLimit(provider Provider, perSec float64, burst int) *LimitedProvider {
	return &LimitedProvider{
		inner:   provider,
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

// Embed waits for a limiter slot, then calls the wrapped provider.
func (l *LimitedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding: rate limit wait: %w", err)
	}
	return l.inner.Embed(ctx, text)
}

// Dimension returns the wrapped provider's dimension.
func (l *LimitedProvider) Dimension() int {
	return l.inner.Dimension()
}
