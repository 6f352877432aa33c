package embedding

import (
	"context"
	"fmt"
	"time"
)

// EmbedInBatches embeds texts through e in fixed-size batches, sleeping delay
// between batches as a backpressure valve and checking ctx between batches for
// cooperative cancellation. The returned vectors preserve input order. Any
// batch failure aborts the whole call.
func EmbedInBatches(ctx context.Context, e Embedder, texts []string, batchSize int, delay time.Duration) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), end-start)
		}
		vectors = append(vectors, batch...)
		if end < len(texts) && delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return vectors, nil
}
