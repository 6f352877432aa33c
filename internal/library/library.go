// Package library owns the document catalog, the chunk-by-document map, and
// the persisted vector index. All mutation is serialized through one mutex so
// the core is safe to drive from any goroutine.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kioku/internal/chunk"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/extract"
	"github.com/hyperjump/kioku/internal/keyword"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/validate"
	"github.com/hyperjump/kioku/internal/vector"
	"github.com/hyperjump/kioku/pkg/utils"
	"go.uber.org/zap"
)

// DefaultRebuildCeiling is the per-file size above which a document is skipped
// during a full rebuild, for embedding cost reasons.
const DefaultRebuildCeiling = 3 * 512 * 1024 // 1.5 MB

const previewLength = 200

// Library is the catalog of indexed documents and their chunks, wrapping the
// vector index and its persisted form.
type Library struct {
	dataDir    string
	extractor  *extract.Extractor
	embedder   embedding.Embedder // optional; nil means import does not embed
	keyword    *keyword.Index     // optional
	index      *vector.Index
	batchSize  int
	batchDelay time.Duration
	ceiling    int64
	logger     *zap.Logger

	mu         sync.Mutex
	documents  map[string]*models.Document
	chunks     map[string][]models.DocumentChunk
	workspaces map[string]*models.Workspace
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(lib *Library) { lib.logger = l }
}

// WithEmbedder makes imports embed chunks immediately instead of waiting for
// a rebuild.
func WithEmbedder(e embedding.Embedder) Option {
	return func(lib *Library) { lib.embedder = e }
}

// WithKeywordIndex attaches a keyword index kept in sync with the catalog.
func WithKeywordIndex(k *keyword.Index) Option {
	return func(lib *Library) { lib.keyword = k }
}

// WithBatching overrides the embedding batch size and inter-batch delay used
// by import and rebuild.
func WithBatching(size int, delay time.Duration) Option {
	return func(lib *Library) {
		if size > 0 {
			lib.batchSize = size
		}
		if delay >= 0 {
			lib.batchDelay = delay
		}
	}
}

// WithRebuildCeiling overrides the per-file size ceiling for rebuilds.
func WithRebuildCeiling(limit int64) Option {
	return func(lib *Library) {
		if limit > 0 {
			lib.ceiling = limit
		}
	}
}

// New creates a library rooted at dataDir and restores any persisted state.
func New(dataDir string, opts ...Option) (*Library, error) {
	lib := &Library{
		dataDir:    dataDir,
		extractor:  extract.NewExtractor(),
		index:      vector.NewIndex(),
		batchSize:  2,
		batchDelay: 20 * time.Millisecond,
		ceiling:    DefaultRebuildCeiling,
		documents:  make(map[string]*models.Document),
		chunks:     make(map[string][]models.DocumentChunk),
		workspaces: make(map[string]*models.Workspace),
	}
	for _, opt := range opts {
		opt(lib)
	}
	if err := os.MkdirAll(lib.originalsPath(), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	lib.loadState()
	return lib, nil
}

// Index exposes the vector index for retrieval.
func (l *Library) Index() *vector.Index {
	return l.index
}

// Document returns the catalog entry for id.
func (l *Library) Document(id string) (*models.Document, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, ok := l.documents[id]
	if !ok {
		return nil, false
	}
	cp := *doc
	return &cp, true
}

// ListDocuments returns all catalog entries, most recently updated first.
func (l *Library) ListDocuments() []*models.Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	docs := make([]*models.Document, 0, len(l.documents))
	for _, d := range l.documents {
		cp := *d
		docs = append(docs, &cp)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
	return docs
}

// Chunk returns the chunk at index within the document.
func (l *Library) Chunk(documentID string, chunkIndex int) (models.DocumentChunk, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.chunks[documentID] {
		if ch.ChunkIndex == chunkIndex {
			return ch, true
		}
	}
	return models.DocumentChunk{}, false
}

// CountChunks returns the total number of chunks across all documents.
func (l *Library) CountChunks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, chs := range l.chunks {
		n += len(chs)
	}
	return n
}

// ImportDocument extracts text from the file at path, copies the original
// into managed storage, chunks the text, and appends a new document to the
// catalog. When an embedder is attached the chunks are embedded immediately;
// an embedding failure aborts the whole import, leaving no partial state.
func (l *Library) ImportDocument(ctx context.Context, path string, kind models.DocumentKind) (*models.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(content)) > validate.DefaultMaxSize {
		return nil, fmt.Errorf("validate %s: %w", filepath.Base(path),
			&validate.Error{Reason: validate.ReasonTooLarge, Size: int64(len(content)), Limit: validate.DefaultMaxSize})
	}
	ext := filepath.Ext(path)
	text, err := l.extractor.ExtractBytes(content, ext)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	if err := validate.Check([]byte(text), validate.DefaultMaxSize); err != nil {
		return nil, fmt.Errorf("validate %s: %w", filepath.Base(path), err)
	}

	docID := uuid.New().String()
	storedPath := filepath.Join(l.originalsPath(), docID+ext)
	if err := vector.WriteFileAtomic(storedPath, content); err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	now := time.Now()
	doc := &models.Document{
		ID:         docID,
		Title:      filepath.Base(path),
		Kind:       kind,
		StoredPath: storedPath,
		SourcePath: path,
		Preview:    utils.Preview(text, previewLength),
		WordCount:  utils.WordCount(text),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	chunks := chunk.ForKind(kind).Chunk(docID, text)

	var embedded []models.EmbeddedChunk
	if l.embedder != nil && len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Content
		}
		vectors, err := embedding.EmbedInBatches(ctx, l.embedder, texts, l.batchSize, l.batchDelay)
		if err != nil {
			_ = os.Remove(storedPath)
			return nil, fmt.Errorf("embed import: %w", err)
		}
		embedded = zipEmbedded(chunks, vectors)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.documents[docID] = doc
	l.chunks[docID] = chunks
	if embedded != nil {
		l.index.ReplaceEntries(docID, embedded)
	}
	if err := l.persistLocked(); err != nil {
		// Roll back so a failed import leaves no trace in memory or on disk.
		delete(l.documents, docID)
		delete(l.chunks, docID)
		l.index.RemoveEntries(docID)
		_ = os.Remove(storedPath)
		return nil, err
	}
	l.keywordAdd(ctx, doc)
	if l.logger != nil {
		l.logger.Debug("document imported",
			zap.String("doc_id", docID),
			zap.String("title", doc.Title),
			zap.Int("chunks", len(chunks)))
	}
	cp := *doc
	return &cp, nil
}

// RemoveDocument deletes the document, its chunks, its vectors, and the
// managed copy of the original. Removing an unknown document is a no-op.
func (l *Library) RemoveDocument(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, ok := l.documents[id]
	if !ok {
		// Still drop any orphaned chunks and vectors under that ID.
		delete(l.chunks, id)
		l.index.RemoveEntries(id)
		return nil
	}
	delete(l.documents, id)
	delete(l.chunks, id)
	l.index.RemoveEntries(id)
	if doc.StoredPath != "" {
		_ = os.Remove(doc.StoredPath)
	}
	if err := l.persistLocked(); err != nil {
		return err
	}
	l.keywordDelete(id)
	if l.logger != nil {
		l.logger.Debug("document removed", zap.String("doc_id", id))
	}
	return nil
}

// RegisterCodeDocument upserts a catalog entry for a file reference. If a
// document already points at sourcePath its title, kind, workspace, and
// timestamp are updated in place, so re-scans never duplicate entries.
func (l *Library) RegisterCodeDocument(id, sourcePath, title, workspaceID string) *models.Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	doc, ok := l.documents[id]
	if !ok {
		doc = l.findBySourceLocked(sourcePath)
	}
	if doc != nil {
		doc.Title = title
		doc.Kind = models.KindCode
		doc.WorkspaceID = workspaceID
		doc.SourcePath = sourcePath
		doc.UpdatedAt = now
	} else {
		doc = &models.Document{
			ID:          id,
			Title:       title,
			Kind:        models.KindCode,
			SourcePath:  sourcePath,
			WorkspaceID: workspaceID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		l.documents[id] = doc
	}
	if err := l.persistCatalogLocked(); err != nil && l.logger != nil {
		l.logger.Warn("persist catalog", zap.Error(err))
	}
	l.keywordAdd(context.Background(), doc)
	cp := *doc
	return &cp
}

func (l *Library) findBySourceLocked(sourcePath string) *models.Document {
	for _, d := range l.documents {
		if d.SourcePath == sourcePath && d.SourcePath != "" {
			return d
		}
	}
	return nil
}

// PurgeCodeDocuments bulk-removes every document owned by the workspace,
// including chunks and vectors. Used when a workspace is removed or fully
// re-scanned.
func (l *Library) PurgeCodeDocuments(workspaceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var removed []string
	for id, d := range l.documents {
		if d.WorkspaceID == workspaceID {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(l.documents, id)
		delete(l.chunks, id)
		l.index.RemoveEntries(id)
		l.keywordDelete(id)
	}
	if len(removed) == 0 {
		return nil
	}
	if l.logger != nil {
		l.logger.Debug("workspace documents purged",
			zap.String("workspace_id", workspaceID),
			zap.Int("count", len(removed)))
	}
	return l.persistLocked()
}

// SearchDocuments runs a keyword query over the catalog and returns matching
// documents in score order. Returns nil when no keyword index is attached.
func (l *Library) SearchDocuments(ctx context.Context, query string, limit int) ([]*models.Document, error) {
	if l.keyword == nil {
		return nil, nil
	}
	hits, err := l.keyword.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	docs := make([]*models.Document, 0, len(hits))
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, hit := range hits {
		if d, ok := l.documents[hit.ID]; ok {
			cp := *d
			docs = append(docs, &cp)
		}
	}
	return docs, nil
}

// ReplaceDocument atomically swaps in the chunk set and vectors for a
// document. This is the sink side of the indexing pipeline.
func (l *Library) ReplaceDocument(documentID string, chunks []models.DocumentChunk, embedded []models.EmbeddedChunk) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunks[documentID] = chunks
	l.index.ReplaceEntries(documentID, embedded)
	return l.persistChunksAndVectorsLocked()
}

// Reset clears every chunk and vector while keeping the catalog, forcing a
// rebuild to restore retrieval.
func (l *Library) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunks = make(map[string][]models.DocumentChunk)
	l.index.Reset()
	return l.persistChunksAndVectorsLocked()
}

func (l *Library) persistLocked() error {
	if err := l.persistCatalogLocked(); err != nil {
		return err
	}
	return l.persistChunksAndVectorsLocked()
}

func (l *Library) persistChunksAndVectorsLocked() error {
	if err := l.persistChunksLocked(); err != nil {
		return err
	}
	return l.index.Save(l.vectorsPath())
}

// keywordAdd and keywordDelete keep the keyword index in sync. Failures here
// are logged and never fail the catalog operation.
func (l *Library) keywordAdd(ctx context.Context, doc *models.Document) {
	if l.keyword == nil {
		return
	}
	if err := l.keyword.Add(ctx, doc); err != nil && l.logger != nil {
		l.logger.Warn("keyword index add", zap.String("doc_id", doc.ID), zap.Error(err))
	}
}

func (l *Library) keywordDelete(id string) {
	if l.keyword == nil {
		return
	}
	if err := l.keyword.Delete(id); err != nil && l.logger != nil {
		l.logger.Warn("keyword index delete", zap.String("doc_id", id), zap.Error(err))
	}
}

func zipEmbedded(chunks []models.DocumentChunk, vectors [][]float32) []models.EmbeddedChunk {
	embedded := make([]models.EmbeddedChunk, len(chunks))
	for i, ch := range chunks {
		embedded[i] = models.EmbeddedChunk{
			ID:         ch.ID,
			ChunkID:    ch.ID,
			DocumentID: ch.DocumentID,
			ChunkIndex: ch.ChunkIndex,
			Vector:     vectors[i],
		}
	}
	return embedded
}
