// Package retriever answers questions over the document catalog: it embeds
// the query, pulls the closest chunks from the vector index, and hands a
// grounded prompt to the language model.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/library"
	"github.com/hyperjump/kioku/internal/llm"
	"github.com/hyperjump/kioku/internal/vector"
)

const (
	// DefaultTopK is how many chunks end up in the prompt context.
	DefaultTopK = 12

	// DefaultOverFetch is the candidate count queried when results are
	// filtered by workspace afterwards. The index has no per-workspace
	// partitioning, so the filter runs on an oversized candidate set.
	DefaultOverFetch = 30

	defaultSystemPrompt = "You are a helpful assistant. Answer the question using only the numbered context passages below. " +
		"Cite passages by their number, like [1]. If the context does not contain the answer, say so."
)

// Options controls a single retrieval-augmented generation call.
type Options struct {
	TopK         int
	OverFetch    int
	WorkspaceIDs []string // empty means no workspace filter
	IncludeScore bool
	SystemPrompt string
	Generation   llm.GenerationConfig
}

func (o *Options) applyDefaults() {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.OverFetch <= 0 {
		o.OverFetch = DefaultOverFetch
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = defaultSystemPrompt
	}
}

// Source describes one context passage that backed an answer.
type Source struct {
	SourceID   string  `json:"sourceId"`
	Title      string  `json:"title"`
	ChunkIndex int     `json:"chunkIndex"`
	Score      float64 `json:"score"`
}

// Retriever wires the embedding capability, the document library, and the
// language model into the answer pipeline.
type Retriever struct {
	lib      *library.Library
	embedder embedding.Embedder
	gen      llm.Generator
	logger   *zap.Logger
}

type Option func(*Retriever)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func New(lib *library.Library, embedder embedding.Embedder, gen llm.Generator, opts ...Option) *Retriever {
	r := &Retriever{
		lib:      lib,
		embedder: embedder,
		gen:      gen,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Answer runs the full pipeline and returns the generated text with the
// sources that grounded it.
func (r *Retriever) Answer(ctx context.Context, query string, opts Options) (string, []Source, error) {
	msgs, sources, err := r.prepare(ctx, query, &opts)
	if err != nil {
		return "", nil, err
	}
	text, err := r.gen.Chat(ctx, msgs, opts.Generation)
	if err != nil {
		return "", nil, fmt.Errorf("generate answer: %w", err)
	}
	return text, sources, nil
}

// AnswerStream is the streaming variant of Answer. Generated fragments are
// passed to fn as they arrive; a non-nil return from fn cancels generation.
func (r *Retriever) AnswerStream(ctx context.Context, query string, opts Options, fn func(fragment string) error) ([]Source, error) {
	msgs, sources, err := r.prepare(ctx, query, &opts)
	if err != nil {
		return nil, err
	}
	if err := r.gen.ChatStream(ctx, msgs, opts.Generation, fn); err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return sources, nil
}

// Retrieve returns the top chunks for a query without invoking the language
// model.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]vector.Result, error) {
	opts.applyDefaults()
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.queryIndex(vec, &opts), nil
}

func (r *Retriever) prepare(ctx context.Context, query string, opts *Options) ([]llm.Message, []Source, error) {
	opts.applyDefaults()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil, fmt.Errorf("empty query")
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}
	results := r.queryIndex(vec, opts)
	r.logger.Debug("retrieved context",
		zap.String("query", query),
		zap.Int("chunks", len(results)))

	contextBlock, sources := r.buildContext(results, opts.IncludeScore)
	user := query
	if contextBlock != "" {
		user = fmt.Sprintf("Context:\n%s\nQuestion: %s", contextBlock, query)
	}
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: opts.SystemPrompt},
		{Role: llm.RoleUser, Content: user},
	}
	return msgs, sources, nil
}

// queryIndex runs the similarity search. With a workspace filter it queries an
// oversized candidate set, drops chunks owned by other workspaces, and then
// truncates to top-K.
func (r *Retriever) queryIndex(vec []float32, opts *Options) []vector.Result {
	if len(opts.WorkspaceIDs) == 0 {
		return r.lib.Index().Query(vec, opts.TopK)
	}
	candidates := r.lib.Index().Query(vec, opts.OverFetch)
	member := r.lib.WorkspaceDocumentIDs(opts.WorkspaceIDs)
	filtered := candidates[:0]
	for _, res := range candidates {
		if member[res.Entry.DocumentID] {
			filtered = append(filtered, res)
		}
	}
	if len(filtered) > opts.TopK {
		filtered = filtered[:opts.TopK]
	}
	return filtered
}

// buildContext renders the numbered context block and the matching source
// list. Chunks whose backing document or text has gone missing are skipped.
func (r *Retriever) buildContext(results []vector.Result, includeScore bool) (string, []Source) {
	var (
		b       strings.Builder
		sources []Source
	)
	for _, res := range results {
		chunk, ok := r.lib.Chunk(res.Entry.DocumentID, res.Entry.ChunkIndex)
		if !ok {
			continue
		}
		doc, ok := r.lib.Document(res.Entry.DocumentID)
		if !ok {
			continue
		}
		n := len(sources) + 1
		if includeScore {
			fmt.Fprintf(&b, "[%d] Source: %s (score %.3f)\n%s\n\n", n, doc.ID, res.Score, chunk.Content)
		} else {
			fmt.Fprintf(&b, "[%d] Source: %s\n%s\n\n", n, doc.ID, chunk.Content)
		}
		sources = append(sources, Source{
			SourceID:   doc.ID,
			Title:      doc.Title,
			ChunkIndex: res.Entry.ChunkIndex,
			Score:      res.Score,
		})
	}
	return b.String(), sources
}
