package indexer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/validate"
)

// memorySink collects replacements so tests can inspect what was indexed.
type memorySink struct {
	mu       sync.Mutex
	chunks   map[string][]models.DocumentChunk
	embedded map[string][]models.EmbeddedChunk
	removals []string
	resets   int
}

func newMemorySink() *memorySink {
	return &memorySink{
		chunks:   map[string][]models.DocumentChunk{},
		embedded: map[string][]models.EmbeddedChunk{},
	}
}

func (s *memorySink) ReplaceDocument(documentID string, chunks []models.DocumentChunk, embedded []models.EmbeddedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[documentID] = chunks
	s.embedded[documentID] = embedded
	return nil
}

func (s *memorySink) RemoveDocument(documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, documentID)
	delete(s.embedded, documentID)
	s.removals = append(s.removals, documentID)
	return nil
}

func (s *memorySink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = map[string][]models.DocumentChunk{}
	s.embedded = map[string][]models.EmbeddedChunk{}
	s.resets++
	return nil
}

// failingEmbedder always fails, for abort-path tests.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedder unavailable")
}
func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedder unavailable")
}
func (failingEmbedder) Dimensions() int { return 4 }
func (failingEmbedder) Close() error    { return nil }

func TestIndexDocument(t *testing.T) {
	sink := newMemorySink()
	idx := New(embedding.NewMockEmbedder(8), sink, WithBatching(2, 0))

	content := []byte(strings.Repeat("a", 1500))
	if err := idx.IndexDocument(context.Background(), "doc-1", content, models.KindGeneric); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	chunks := sink.chunks["doc-1"]
	embedded := sink.embedded["doc-1"]
	if len(chunks) != 2 || len(embedded) != 2 {
		t.Fatalf("got %d chunks, %d embedded", len(chunks), len(embedded))
	}
	for i := range chunks {
		if embedded[i].ChunkID != chunks[i].ID {
			t.Errorf("embedded %d references %s, chunk is %s", i, embedded[i].ChunkID, chunks[i].ID)
		}
		if embedded[i].ChunkIndex != i {
			t.Errorf("embedded %d has index %d", i, embedded[i].ChunkIndex)
		}
		if len(embedded[i].Vector) != 8 {
			t.Errorf("vector dimension = %d", len(embedded[i].Vector))
		}
	}
}

func TestIndexDocument_codeKind(t *testing.T) {
	sink := newMemorySink()
	idx := New(embedding.NewMockEmbedder(4), sink, WithBatching(2, 0))

	var b strings.Builder
	for i := 0; i < 150; i++ {
		b.WriteString("func line() {}\n")
	}
	if err := idx.IndexDocument(context.Background(), "doc-c", []byte(b.String()), models.KindCode); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if len(sink.chunks["doc-c"]) != 3 {
		t.Errorf("got %d chunks, want 3 line windows", len(sink.chunks["doc-c"]))
	}
}

func TestIndexDocument_validation(t *testing.T) {
	sink := newMemorySink()
	idx := New(embedding.NewMockEmbedder(4), sink, WithBatching(2, 0), WithMaxSize(100))

	tests := []struct {
		name    string
		content []byte
		reason  validate.Reason
	}{
		{"too large", []byte(strings.Repeat("a", 101)), validate.ReasonTooLarge},
		{"binary", []byte("abc\x00def"), validate.ReasonBinary},
		{"empty", []byte("   "), validate.ReasonEmpty},
	}
	for _, tt := range tests {
		err := idx.IndexDocument(context.Background(), "doc-x", tt.content, models.KindGeneric)
		if validate.ReasonOf(err) != tt.reason {
			t.Errorf("%s: got %v, want reason %q", tt.name, err, tt.reason)
		}
	}
	if len(sink.chunks) != 0 {
		t.Errorf("rejected content reached the sink: %+v", sink.chunks)
	}
}

func TestIndexDocument_embedFailureAborts(t *testing.T) {
	sink := newMemorySink()
	idx := New(failingEmbedder{}, sink, WithBatching(2, 0))

	err := idx.IndexDocument(context.Background(), "doc-1", []byte("some content"), models.KindGeneric)
	if err == nil {
		t.Fatal("expected error")
	}
	if validate.IsValidationError(err) {
		t.Error("embedding failure misreported as validation error")
	}
	if len(sink.chunks) != 0 {
		t.Error("partial result persisted after embed failure")
	}
}

func TestIndexDocument_cancellation(t *testing.T) {
	sink := newMemorySink()
	idx := New(embedding.NewMockEmbedder(4), sink, WithBatching(1, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := idx.IndexDocument(ctx, "doc-1", []byte("content"), models.KindGeneric)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if len(sink.chunks) != 0 {
		t.Error("partial result persisted after cancellation")
	}
}

func TestDeleteDocumentAndReset(t *testing.T) {
	sink := newMemorySink()
	idx := New(embedding.NewMockEmbedder(4), sink, WithBatching(2, 0))

	if err := idx.IndexDocument(context.Background(), "doc-1", []byte("content"), models.KindGeneric); err != nil {
		t.Fatal(err)
	}
	if err := idx.DeleteDocument("doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if len(sink.removals) != 1 || sink.removals[0] != "doc-1" {
		t.Errorf("removals = %v", sink.removals)
	}
	if err := idx.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if sink.resets != 1 {
		t.Errorf("resets = %d", sink.resets)
	}
}
