// Package vector provides an in-memory, persisted vector index with
// cosine-similarity top-K search.
package vector

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/kioku/internal/models"
)

// Result is a single search hit with its cosine similarity score.
type Result struct {
	Entry models.EmbeddedChunk
	Score float64
}

// Index is an in-memory vector index using brute-force cosine similarity.
// All mutation is serialized through its write lock; queries may run
// concurrently when no write is in flight.
type Index struct {
	dimension int
	entries   []models.EmbeddedChunk
	mu        sync.RWMutex
}

// NewIndex creates an empty index. The dimension is established by the first
// entry added.
func NewIndex() *Index {
	return &Index{}
}

// Dimension returns the established vector dimension, or 0 when empty.
func (idx *Index) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

// Size returns the number of entries in the index.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// AddEntries appends entries. The first vector added to an empty index
// establishes the dimension; entries whose vector length disagrees with the
// established dimension are silently dropped so they cannot corrupt a later
// query.
func (idx *Index) AddEntries(batch []models.EmbeddedChunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.addLocked(batch)
}

func (idx *Index) addLocked(batch []models.EmbeddedChunk) {
	for _, e := range batch {
		if len(e.Vector) == 0 {
			continue
		}
		if idx.dimension == 0 {
			idx.dimension = len(e.Vector)
		}
		if len(e.Vector) != idx.dimension {
			continue
		}
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		idx.entries = append(idx.entries, e)
	}
}

// ReplaceEntries removes all existing entries for the document and adds the
// new ones. This is the unit of atomic re-indexing per document.
func (idx *Index) ReplaceEntries(documentID string, newEntries []models.EmbeddedChunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(documentID)
	idx.addLocked(newEntries)
}

// RemoveEntries removes all entries for the document. If the index becomes
// empty the dimension resets to 0 so a future add can re-establish it.
func (idx *Index) RemoveEntries(documentID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(documentID)
}

func (idx *Index) removeLocked(documentID string) {
	kept := idx.entries[:0]
	for _, e := range idx.entries {
		if e.DocumentID != documentID {
			kept = append(kept, e)
		}
	}
	// Zero the tail so removed entries are not retained by the backing array.
	for i := len(kept); i < len(idx.entries); i++ {
		idx.entries[i] = models.EmbeddedChunk{}
	}
	idx.entries = kept
	if len(idx.entries) == 0 {
		idx.dimension = 0
	}
}

// ReplaceAll atomically swaps the full index contents for the given entries,
// re-establishing the dimension from scratch. Used by full rebuilds so
// concurrent queries see either the old index or the new one, never a mix.
func (idx *Index) ReplaceAll(entries []models.EmbeddedChunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = nil
	idx.dimension = 0
	idx.addLocked(entries)
}

// Reset removes all entries and clears the dimension.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = nil
	idx.dimension = 0
}

// Query scores every entry by cosine similarity against the query vector and
// returns the topK highest, ties broken by insertion order. It returns nil
// when the index is empty or the query vector's length disagrees with the
// established dimension.
func (idx *Index) Query(vector []float32, topK int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.dimension == 0 || len(vector) != idx.dimension || topK <= 0 {
		return nil
	}
	results := make([]Result, len(idx.entries))
	for i, e := range idx.entries {
		results[i] = Result{Entry: e, Score: CosineSimilarity(vector, e.Vector)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results
}

// snapshot is the persisted form: a single JSON document holding the dimension
// and the full entry set.
type snapshot struct {
	Dimension int     `json:"dimension"`
	Entries   []models.EmbeddedChunk `json:"entries"`
}

// Save writes the index to path as one atomic snapshot (temp-write + rename).
func (idx *Index) Save(path string) error {
	if path == "" {
		return nil
	}
	idx.mu.RLock()
	snap := snapshot{Dimension: idx.dimension, Entries: idx.entries}
	data, err := json.Marshal(snap)
	idx.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	return WriteFileAtomic(path, data)
}

// Load replaces the index contents from the snapshot at path. A missing or
// malformed snapshot yields an empty index rather than an error, so a corrupt
// file self-heals at the cost of a rebuild.
func (idx *Index) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = nil
	idx.dimension = 0
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil
	}
	// Re-add through the guarded path so a tampered snapshot cannot smuggle in
	// mixed dimensions.
	idx.dimension = 0
	idx.addLocked(snap.Entries)
	return nil
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by a rename. The parent directory is created if needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// CosineSimilarity returns the cosine similarity between a and b. A zero-norm
// vector compared against anything scores 0, never NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
