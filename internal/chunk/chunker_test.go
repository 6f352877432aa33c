package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/kioku/internal/models"
)

func TestTextChunker_windowAndOverlap(t *testing.T) {
	// 1500 chars with size 1000 / overlap 200: windows at 0 and 800.
	content := strings.Repeat("a", 1500)
	chunks := NewTextChunker(1000, 200).Chunk("doc-1", content)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0].Content) != 1000 {
		t.Errorf("first chunk length = %d", len(chunks[0].Content))
	}
	if len(chunks[1].Content) != 700 {
		t.Errorf("second chunk length = %d", len(chunks[1].Content))
	}
}

func TestTextChunker_shortContent(t *testing.T) {
	chunks := NewTextChunker(1000, 200).Chunk("doc-1", "short note")
	if len(chunks) != 1 || chunks[0].Content != "short note" {
		t.Fatalf("got %+v", chunks)
	}
}

func TestTextChunker_empty(t *testing.T) {
	if got := NewTextChunker(1000, 200).Chunk("doc-1", ""); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
	if got := NewTextChunker(1000, 200).Chunk("doc-1", "   \n  "); len(got) != 0 {
		t.Errorf("whitespace-only content produced %d chunks", len(got))
	}
}

func TestTextChunker_normalizesCRLF(t *testing.T) {
	chunks := NewTextChunker(1000, 200).Chunk("doc-1", "line1\r\nline2")
	if len(chunks) != 1 || chunks[0].Content != "line1\nline2" {
		t.Fatalf("got %+v", chunks)
	}
}

func TestTextChunker_runesNotBytes(t *testing.T) {
	// Multi-byte runes count as one character each.
	content := strings.Repeat("日", 10)
	chunks := NewTextChunker(10, 2).Chunk("doc-1", content)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
}

func TestTextChunker_coverage(t *testing.T) {
	// Every window start must land on offset n*(size-overlap), leaving no gaps.
	content := strings.Repeat("x", 2600)
	chunks := NewTextChunker(1000, 200).Chunk("doc-1", content)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	total := 0
	for _, ch := range chunks {
		total += len(ch.Content)
	}
	// 2600 chars with 200 overlap per boundary: 2600 + 2*200 = 3000.
	if total != 3000 {
		t.Errorf("total chunk chars = %d, want 3000", total)
	}
}

func TestCodeChunker_lineWindows(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 150; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	chunks := NewCodeChunker(80, 10).Chunk("doc-1", b.String())
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	// With step 70, the second window starts at line 70.
	if !strings.HasPrefix(chunks[1].Content, "line 70\n") {
		t.Errorf("second chunk starts %q", chunks[1].Content[:12])
	}
	// No chunk may split a line.
	for _, ch := range chunks {
		for _, ln := range strings.Split(ch.Content, "\n") {
			if ln != "" && !strings.HasPrefix(ln, "line ") {
				t.Errorf("partial line %q in chunk %d", ln, ch.ChunkIndex)
			}
		}
	}
}

func TestChunkIDs_deterministic(t *testing.T) {
	content := strings.Repeat("b", 1500)
	first := NewTextChunker(1000, 200).Chunk("doc-9", content)
	second := NewTextChunker(1000, 200).Chunk("doc-9", content)
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d ID changed: %s vs %s", i, first[i].ID, second[i].ID)
		}
		if first[i].ID != fmt.Sprintf("doc-9_%d", i) {
			t.Errorf("chunk ID = %s", first[i].ID)
		}
		if first[i].ChunkIndex != i {
			t.Errorf("chunk index = %d, want %d", first[i].ChunkIndex, i)
		}
	}
}

func TestForKind(t *testing.T) {
	if _, ok := ForKind(models.KindCode).(*CodeChunker); !ok {
		t.Error("code kind did not select line chunker")
	}
	if _, ok := ForKind(models.KindJournal).(*TextChunker); !ok {
		t.Error("journal kind did not select text chunker")
	}
}
