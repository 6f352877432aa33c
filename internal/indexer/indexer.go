// Package indexer orchestrates document indexing: validate, chunk, embed in
// backpressured batches, and atomically replace the document's chunk set.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kioku/internal/chunk"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/validate"
	"go.uber.org/zap"
)

// Default pipeline parameters. Batches are deliberately small and separated by
// a short yield so embedding never starves other work sharing the accelerator.
const (
	DefaultBatchSize  = 2
	DefaultBatchDelay = 20 * time.Millisecond
)

// Sink receives the output of indexing. Implementations must apply
// ReplaceDocument atomically for the document: the new chunk set and vectors
// fully replace whatever was indexed before, never partially.
type Sink interface {
	ReplaceDocument(documentID string, chunks []models.DocumentChunk, embedded []models.EmbeddedChunk) error
	RemoveDocument(documentID string) error
	Reset() error
}

// Indexer validates, chunks, and embeds document content into a Sink.
type Indexer struct {
	embedder    embedding.Embedder
	sink        Sink
	batchSize   int
	batchDelay  time.Duration
	maxSize     int64
	textSize    int
	textOverlap int
	codeLines   int
	codeOverlap int
	logger      *zap.Logger // optional; when set, logs debug events
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// WithBatching overrides the embedding batch size and inter-batch delay.
func WithBatching(size int, delay time.Duration) Option {
	return func(idx *Indexer) {
		if size > 0 {
			idx.batchSize = size
		}
		if delay >= 0 {
			idx.batchDelay = delay
		}
	}
}

// WithMaxSize overrides the content size cap in bytes.
func WithMaxSize(limit int64) Option {
	return func(idx *Indexer) { idx.maxSize = limit }
}

// WithChunking overrides the chunk window parameters.
func WithChunking(textSize, textOverlap, codeLines, codeOverlap int) Option {
	return func(idx *Indexer) {
		idx.textSize = textSize
		idx.textOverlap = textOverlap
		idx.codeLines = codeLines
		idx.codeOverlap = codeOverlap
	}
}

// New creates an indexer writing to sink via embedder.
func New(embedder embedding.Embedder, sink Sink, opts ...Option) *Indexer {
	idx := &Indexer{
		embedder:    embedder,
		sink:        sink,
		batchSize:   DefaultBatchSize,
		batchDelay:  DefaultBatchDelay,
		maxSize:     validate.DefaultMaxSize,
		textSize:    chunk.DefaultTextSize,
		textOverlap: chunk.DefaultTextOverlap,
		codeLines:   chunk.DefaultCodeLines,
		codeOverlap: chunk.DefaultCodeOverlap,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func (idx *Indexer) chunkerFor(kind models.DocumentKind) chunk.Chunker {
	if kind == models.KindCode {
		return chunk.NewCodeChunker(idx.codeLines, idx.codeOverlap)
	}
	return chunk.NewTextChunker(idx.textSize, idx.textOverlap)
}

// IndexDocument validates and chunks content, embeds the chunks in batches,
// and replaces the document's entry set in the sink as one atomic operation.
// Validation failures return a *validate.Error. An embedding failure aborts
// the whole document: nothing is persisted and the error is returned without
// retry.
func (idx *Indexer) IndexDocument(ctx context.Context, documentID string, content []byte, kind models.DocumentKind) error {
	if err := validate.Check(content, idx.maxSize); err != nil {
		return err
	}
	chunks := idx.chunkerFor(kind).Chunk(documentID, string(content))
	if len(chunks) == 0 {
		return &validate.Error{Reason: validate.ReasonEmpty}
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := embedding.EmbedInBatches(ctx, idx.embedder, texts, idx.batchSize, idx.batchDelay)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", documentID, err)
	}
	embedded := make([]models.EmbeddedChunk, len(chunks))
	for i, ch := range chunks {
		embedded[i] = models.EmbeddedChunk{
			ID:         ch.ID,
			ChunkID:    ch.ID,
			DocumentID: documentID,
			ChunkIndex: ch.ChunkIndex,
			Vector:     vectors[i],
		}
	}
	if err := idx.sink.ReplaceDocument(documentID, chunks, embedded); err != nil {
		return fmt.Errorf("store document %s: %w", documentID, err)
	}
	if idx.logger != nil {
		idx.logger.Debug("document indexed",
			zap.String("doc_id", documentID),
			zap.Int("chunks", len(chunks)))
	}
	return nil
}

// DeleteDocument removes all chunks and vectors for the document. Deleting a
// document that was never indexed is a no-op.
func (idx *Indexer) DeleteDocument(documentID string) error {
	return idx.sink.RemoveDocument(documentID)
}

// Reset clears every indexed document.
func (idx *Indexer) Reset() error {
	return idx.sink.Reset()
}
