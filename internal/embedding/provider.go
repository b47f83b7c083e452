// Package embedding defines the embedding-provider contract the pipeline
// consumes and the wrappers (circuit breaker, rate limiter) that harden it.
//
// The provider itself is an external collaborator: one opaque text-to-vector
// call. Everything downstream only assumes a fixed dimension per deployment.
package embedding

import (
	"context"
	"fmt"

	"github.com/meridian-labs/tether/pkg/types"
)

// Provider turns text into a fixed-dimension vector. Every call within a
// deployment returns the same dimensionality.
type Provider interface {
	// Embed returns the vector for text. Failure is fatal to the request
	// that needed the embedding: no vector, no memory.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector length this provider produces.
	Dimension() int
}

// Prefixes used to obtain the three independent views of one message from a
// single-vector provider. Intent embeds the raw text; frustration embeds an
// emotional-tone view; product embeds the subject-matter summary.
const (
	tonePrefix    = "emotional tone: "
	productPrefix = "topic: "
)

// EmbedMessage produces the intent, frustration, and product vectors for one
// inbound message. When summary is empty, the product view falls back to the
// message text.
func EmbedMessage(ctx context.Context, p Provider, text, summary string) (*types.MultiVectorEmbedding, error) {
	intent, err := p.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding: intent vector: %w", err)
	}

	frustration, err := p.Embed(ctx, tonePrefix+text)
	if err != nil {
		return nil, fmt.Errorf("embedding: frustration vector: %w", err)
	}

	productText := summary
	if productText == "" {
		productText = text
	}
	product, err := p.Embed(ctx, productPrefix+productText)
	if err != nil {
		return nil, fmt.Errorf("embedding: product vector: %w", err)
	}

	return &types.MultiVectorEmbedding{
		Intent:      intent,
		Frustration: frustration,
		Product:     product,
	}, nil
}
