package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects embedding calls to
// keep a failing provider from stalling every pipeline invocation.
var ErrCircuitOpen = errors.New("embedding: circuit breaker is open")

// BreakerConfig tunes the circuit breaker around a provider.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that trip the circuit.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing probes.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of probe successes needed to close
	// the circuit again.
	HalfOpenMaxSuccesses uint32
}

// DefaultBreakerConfig mirrors the defaults used for other upstream calls:
// trip after 3 failures, probe after 30 seconds, close after 2 successes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	}
}

// BreakerProvider wraps a Provider with a circuit breaker. When the circuit
// is open, Embed fails fast with ErrCircuitOpen — which the pipeline treats
// like any other embedding failure: fatal to that request.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

var _ Provider = (*BreakerProvider)(nil)

// WithBreaker wraps provider with a circuit breaker.
func WithBreaker(provider Provider, cfg BreakerConfig) *BreakerProvider {
	settings := gobreaker.Settings{
		Name:        "EmbeddingProvider",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	return &BreakerProvider{
		inner:   provider,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Embed calls the wrapped provider through the breaker.
func (b *BreakerProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return b.inner.Embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result.([]float32), nil
}

// Dimension returns the wrapped provider's dimension.
func (b *BreakerProvider) Dimension() int {
	return b.inner.Dimension()
}

// State returns the breaker state: "closed", "open", or "half-open".
func (b *BreakerProvider) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
