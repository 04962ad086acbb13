// Package vectorizer turns text into embedding vectors. The OpenAI-compatible
// provider is the reference implementation; Cached wraps any provider with a
// key-value embedding cache so repeated texts cost no tokens.
package vectorizer

import (
	"context"
	"errors"
)

// ErrProvider marks failures of the upstream embedding provider. Callers
// wrap-check with errors.Is to separate provider outages from local errors.
var ErrProvider = errors.New("vectorizer: provider error")

// Vectorizer produces embedding vectors for text.
type Vectorizer interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns embeddings for texts, in input order. An empty
	// input returns nil without a provider round trip.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dims returns the configured vector dimensionality, 0 when the
	// provider decides.
	Dims() int
}
