// Package embedding provides the embedding capability contract and its
// Ollama, ONNX, and mock implementations.
package embedding

import "context"

// Embedder produces vector embeddings for text. The contract requires one
// vector per input text, with all vectors from one call sharing a dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// HashString returns a deterministic non-negative hash of s. Used for mock
// embeddings and fallback token IDs.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
