// Package embedding turns query text into vectors. Providers (ONNX, OpenAI, mock)
// implement Embedder; QueryEmbedder applies the query instruction, validates the
// provider output and normalizes it for the index metric.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
