package embedding

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

func TestMockEmbedder_deterministic(t *testing.T) {
	e := NewMockEmbedder(8)
	a, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, _ := e.Embed(context.Background(), "hello")
	c, _ := e.Embed(context.Background(), "world")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text produced different vectors")
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
}

func TestMockEmbedder_unitNorm(t *testing.T) {
	e := NewMockEmbedder(16)
	vec, _ := e.Embed(context.Background(), "norm check")
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", math.Sqrt(sum))
	}
}

func TestMockEmbedder_batch(t *testing.T) {
	e := NewMockEmbedder(4)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	for _, v := range vecs {
		if len(v) != 4 {
			t.Errorf("vector dimension = %d", len(v))
		}
	}
}

// countingEmbedder records batch sizes and per-text calls.
type countingEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	fail    bool
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, append([]string(nil), texts...))
	e.mu.Unlock()
	if e.fail {
		return nil, errors.New("embedder down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (e *countingEmbedder) Dimensions() int { return 2 }
func (e *countingEmbedder) Close() error    { return nil }

func TestEmbedInBatches_batchSizes(t *testing.T) {
	e := &countingEmbedder{}
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := EmbedInBatches(context.Background(), e, texts, 2, 0)
	if err != nil {
		t.Fatalf("EmbedInBatches: %v", err)
	}
	if len(vecs) != 5 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	if len(e.batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(e.batches))
	}
	if len(e.batches[0]) != 2 || len(e.batches[1]) != 2 || len(e.batches[2]) != 1 {
		t.Errorf("batch sizes %d/%d/%d", len(e.batches[0]), len(e.batches[1]), len(e.batches[2]))
	}
	// Order preserved: vector i encodes len(texts[i]).
	for i, text := range texts {
		if vecs[i][0] != float32(len(text)) {
			t.Errorf("vector %d out of order", i)
		}
	}
}

func TestEmbedInBatches_failureAborts(t *testing.T) {
	e := &countingEmbedder{fail: true}
	if _, err := EmbedInBatches(context.Background(), e, []string{"a", "b"}, 2, 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmbedInBatches_cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := &countingEmbedder{}
	_, err := EmbedInBatches(ctx, e, []string{"a", "b", "c"}, 1, time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(e.batches) != 0 {
		t.Errorf("%d batches ran after cancellation", len(e.batches))
	}
}

func TestEmbedInBatches_empty(t *testing.T) {
	vecs, err := EmbedInBatches(context.Background(), &countingEmbedder{}, nil, 2, 0)
	if err != nil {
		t.Fatalf("EmbedInBatches: %v", err)
	}
	if len(vecs) != 0 {
		t.Errorf("got %d vectors", len(vecs))
	}
}

func TestCache_lruEviction(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Get("a") // a becomes most recent
	c.Set("c", []float32{3})
	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry survived eviction")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry evicted")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d", c.Len())
	}
}

func TestCachedEmbedder_servesHits(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewCachedEmbedder(inner, 10)
	ctx := context.Background()
	if _, err := e.Embed(ctx, "repeat"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, err := e.Embed(ctx, "repeat"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(inner.batches) != 1 {
		t.Errorf("inner called %d times, want 1", len(inner.batches))
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") != HashString("abc") {
		t.Error("hash not deterministic")
	}
	if HashString("") != 0 {
		t.Errorf("empty hash = %d", HashString(""))
	}
	if HashString("some very long string that can overflow the accumulator éè") < 0 {
		t.Error("hash went negative")
	}
}
