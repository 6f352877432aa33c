package library

import (
	"context"
	"fmt"
	"os"

	"github.com/hyperjump/kioku/internal/chunk"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/models"
	"go.uber.org/zap"
)

// RebuildResult summarizes a full index rebuild.
type RebuildResult struct {
	Indexed     int            `json:"indexed"`
	Skipped     int            `json:"skipped"`
	SkipReasons map[string]int `json:"skip_reasons,omitempty"`
}

// RebuildIndex recomputes chunks and embeddings for every eligible document
// and atomically swaps in the new chunk map and vector index. The rebuild is
// all-or-nothing: a failure or cancellation mid-way leaves the in-memory state
// untouched, because the swap happens only after every batch succeeds.
// Documents above the size ceiling are skipped for embedding cost reasons;
// code documents are skipped entirely unless includeCode is set.
func (l *Library) RebuildIndex(ctx context.Context, includeCode bool, embedder embedding.Embedder) (*RebuildResult, error) {
	l.mu.Lock()
	docs := make([]*models.Document, 0, len(l.documents))
	for _, d := range l.documents {
		cp := *d
		docs = append(docs, &cp)
	}
	l.mu.Unlock()

	result := &RebuildResult{SkipReasons: make(map[string]int)}
	newChunks := make(map[string][]models.DocumentChunk)
	var newEntries []models.EmbeddedChunk

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if doc.Kind == models.KindCode && !includeCode {
			result.Skipped++
			result.SkipReasons["code_excluded"]++
			continue
		}
		text, skipReason := l.rebuildText(doc)
		if skipReason != "" {
			result.Skipped++
			result.SkipReasons[skipReason]++
			continue
		}
		chunks := chunk.ForKind(doc.Kind).Chunk(doc.ID, text)
		if len(chunks) == 0 {
			result.Skipped++
			result.SkipReasons["empty"]++
			continue
		}
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Content
		}
		vectors, err := embedding.EmbedInBatches(ctx, embedder, texts, l.batchSize, l.batchDelay)
		if err != nil {
			return nil, fmt.Errorf("rebuild: embed %s: %w", doc.ID, err)
		}
		newChunks[doc.ID] = chunks
		newEntries = append(newEntries, zipEmbedded(chunks, vectors)...)
		result.Indexed++
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunks = newChunks
	l.index.ReplaceAll(newEntries)
	if err := l.persistChunksAndVectorsLocked(); err != nil {
		return nil, err
	}
	if l.logger != nil {
		l.logger.Info("index rebuilt",
			zap.Int("indexed", result.Indexed),
			zap.Int("skipped", result.Skipped))
	}
	return result, nil
}

// rebuildText loads the text for a document during rebuild: code documents
// re-read their source file, imported documents re-extract the managed copy.
// A non-empty skip reason is returned when the document cannot participate.
func (l *Library) rebuildText(doc *models.Document) (text, skipReason string) {
	path := doc.StoredPath
	if doc.Kind == models.KindCode {
		path = doc.SourcePath
	}
	if path == "" {
		return "", "no_source"
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", "missing_file"
	}
	if info.Size() > l.ceiling {
		return "", "too_large"
	}
	extracted, err := l.extractor.Extract(path)
	if err != nil {
		return "", "extract_failed"
	}
	return extracted, ""
}
