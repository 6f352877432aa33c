package vector

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kioku/internal/models"
)

func entry(id, docID string, chunkIndex int, vec []float32) models.EmbeddedChunk {
	return models.EmbeddedChunk{
		ID:         id,
		ChunkID:    id,
		DocumentID: docID,
		ChunkIndex: chunkIndex,
		Vector:     vec,
	}
}

func TestIndex_dimensionEstablishedByFirstAdd(t *testing.T) {
	idx := NewIndex()
	if idx.Dimension() != 0 {
		t.Fatalf("new index dimension = %d", idx.Dimension())
	}
	idx.AddEntries([]models.EmbeddedChunk{entry("c1", "d1", 0, []float32{1, 0, 0})})
	if idx.Dimension() != 3 {
		t.Errorf("dimension = %d, want 3", idx.Dimension())
	}
}

func TestIndex_mismatchedDimensionDropped(t *testing.T) {
	idx := NewIndex()
	idx.AddEntries([]models.EmbeddedChunk{
		entry("c1", "d1", 0, []float32{1, 0, 0}),
		entry("c2", "d1", 1, []float32{1, 0}), // wrong dimension
		entry("c3", "d1", 2, nil),             // empty vector
	})
	if idx.Size() != 1 {
		t.Errorf("size = %d, want 1", idx.Size())
	}
}

func TestIndex_query(t *testing.T) {
	idx := NewIndex()
	idx.AddEntries([]models.EmbeddedChunk{
		entry("c1", "d1", 0, []float32{1, 0, 0}),
		entry("c2", "d2", 0, []float32{0, 1, 0}),
	})
	results := idx.Query([]float32{1, 0, 0}, 2)
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Entry.ID != "c1" {
		t.Errorf("top result = %s", results[0].Entry.ID)
	}
	if math.Abs(results[0].Score-1.0) > 1e-6 {
		t.Errorf("top score = %f", results[0].Score)
	}
	if math.Abs(results[1].Score) > 1e-6 {
		t.Errorf("orthogonal score = %f", results[1].Score)
	}
}

func TestIndex_queryTopKTruncates(t *testing.T) {
	idx := NewIndex()
	for i := 0; i < 5; i++ {
		idx.AddEntries([]models.EmbeddedChunk{entry("c", "d", i, []float32{1, float32(i)})})
	}
	if got := len(idx.Query([]float32{1, 0}, 3)); got != 3 {
		t.Errorf("got %d results, want 3", got)
	}
}

func TestIndex_queryMismatchedVector(t *testing.T) {
	idx := NewIndex()
	idx.AddEntries([]models.EmbeddedChunk{entry("c1", "d1", 0, []float32{1, 0, 0})})
	if got := idx.Query([]float32{1, 0}, 5); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
	if got := NewIndex().Query([]float32{1, 0}, 5); got != nil {
		t.Errorf("empty index returned %+v", got)
	}
}

func TestIndex_stableTieOrder(t *testing.T) {
	idx := NewIndex()
	// Identical vectors score identically; insertion order must hold.
	for i := 0; i < 4; i++ {
		idx.AddEntries([]models.EmbeddedChunk{entry("c", "d", i, []float32{1, 1})})
	}
	results := idx.Query([]float32{1, 1}, 4)
	for i, res := range results {
		if res.Entry.ChunkIndex != i {
			t.Errorf("position %d holds chunk %d", i, res.Entry.ChunkIndex)
		}
	}
}

func TestIndex_replaceEntries(t *testing.T) {
	idx := NewIndex()
	idx.AddEntries([]models.EmbeddedChunk{
		entry("c1", "d1", 0, []float32{1, 0}),
		entry("c2", "d2", 0, []float32{0, 1}),
	})
	idx.ReplaceEntries("d1", []models.EmbeddedChunk{
		entry("c1b", "d1", 0, []float32{0.5, 0.5}),
		entry("c1c", "d1", 1, []float32{0.5, 0.5}),
	})
	if idx.Size() != 3 {
		t.Errorf("size = %d, want 3", idx.Size())
	}
	for _, res := range idx.Query([]float32{1, 0}, 10) {
		if res.Entry.ID == "c1" {
			t.Error("replaced entry still present")
		}
	}
}

func TestIndex_removeResetsDimensionWhenEmpty(t *testing.T) {
	idx := NewIndex()
	idx.AddEntries([]models.EmbeddedChunk{entry("c1", "d1", 0, []float32{1, 0, 0})})
	idx.RemoveEntries("d1")
	if idx.Size() != 0 || idx.Dimension() != 0 {
		t.Errorf("size/dimension = %d/%d after removing last document", idx.Size(), idx.Dimension())
	}
	// A different dimension can now be established.
	idx.AddEntries([]models.EmbeddedChunk{entry("c2", "d2", 0, []float32{1, 0})})
	if idx.Dimension() != 2 {
		t.Errorf("dimension = %d, want 2", idx.Dimension())
	}
}

func TestIndex_replaceAll(t *testing.T) {
	idx := NewIndex()
	idx.AddEntries([]models.EmbeddedChunk{entry("c1", "d1", 0, []float32{1, 0, 0})})
	idx.ReplaceAll([]models.EmbeddedChunk{
		entry("n1", "d2", 0, []float32{1, 0}),
		entry("n2", "d3", 0, []float32{0, 1}),
	})
	if idx.Size() != 2 || idx.Dimension() != 2 {
		t.Errorf("size/dimension = %d/%d", idx.Size(), idx.Dimension())
	}
}

func TestIndex_saveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.json")

	idx := NewIndex()
	idx.AddEntries([]models.EmbeddedChunk{
		entry("c1", "d1", 0, []float32{1, 0}),
		entry("c2", "d2", 0, []float32{0, 1}),
	})
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := NewIndex()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Size() != 2 || loaded.Dimension() != 2 {
		t.Fatalf("loaded size/dimension = %d/%d", loaded.Size(), loaded.Dimension())
	}
	results := loaded.Query([]float32{1, 0}, 1)
	if len(results) != 1 || results[0].Entry.ID != "c1" {
		t.Errorf("query after load = %+v", results)
	}
}

func TestIndex_loadSelfHeals(t *testing.T) {
	dir := t.TempDir()
	idx := NewIndex()

	if err := idx.Load(filepath.Join(dir, "missing.json")); err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("size = %d after loading missing file", idx.Size())
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := idx.Load(corrupt); err != nil {
		t.Fatalf("Load corrupt: %v", err)
	}
	if idx.Size() != 0 || idx.Dimension() != 0 {
		t.Errorf("corrupt load left size/dimension %d/%d", idx.Size(), idx.Dimension())
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("%s: got %f, want %f", tt.name, got, tt.want)
		}
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")
	if err := WriteFileAtomic(path, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("got %q", data)
	}
	// No temp files may be left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("%d files in dir, want 1", len(entries))
	}
}
