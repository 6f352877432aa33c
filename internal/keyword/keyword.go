// Package keyword provides a Bleve keyword index over the document catalog,
// complementing semantic retrieval with title/preview term search.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/hyperjump/kioku/internal/models"
)

// Result is a single keyword search hit.
type Result struct {
	ID    string
	Score float64
}

// Index is a Bleve-backed keyword index over catalog documents.
type Index struct {
	index bleve.Index
}

// indexedDocument is the subset of a Document fed to Bleve.
type indexedDocument struct {
	Title   string `json:"title"`
	Preview string `json:"preview"`
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize without stemming, so exact words
	// in titles match exact query terms.
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textField)
	docMapping.AddFieldMappingsAt("preview", textField)
	im.DefaultMapping = docMapping
	return im
}

// Open creates or opens a Bleve index at path. An existing index is reused so
// unchanged documents survive restarts without re-indexing.
func Open(path string) (*Index, error) {
	if _, err := os.Stat(path); err == nil {
		idx, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open keyword index: %w", openErr)
		}
		return &Index{index: idx}, nil
	}
	idx, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &Index{index: idx}, nil
}

// OpenMemory creates an in-memory index, used by tests.
func OpenMemory() (*Index, error) {
	idx, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &Index{index: idx}, nil
}

// Add indexes a document's title and preview under its ID. Underscores in the
// title are treated as spaces so multi-word queries match filenames.
func (i *Index) Add(ctx context.Context, doc *models.Document) error {
	return i.index.Index(doc.ID, indexedDocument{
		Title:   normalizeTitle(doc.Title),
		Preview: doc.Preview,
	})
}

// Delete removes a document from the index.
func (i *Index) Delete(id string) error {
	return i.index.Delete(id)
}

// Search runs a match query over title and preview and returns up to limit
// hits by descending score.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	hits := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, Result{ID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// Close closes the underlying Bleve index.
func (i *Index) Close() error {
	return i.index.Close()
}

// normalizeTitle replaces underscores with spaces so the standard analyzer
// splits filename-style titles into searchable words.
func normalizeTitle(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		if r == '_' {
			r = ' '
		}
		out = append(out, r)
	}
	return string(out)
}
