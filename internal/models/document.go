// Package models defines core data structures for documents, chunks, embeddings, and workspaces.
package models

import "time"

// DocumentKind classifies a document for chunking and retrieval purposes.
type DocumentKind string

const (
	KindJournal DocumentKind = "journal"
	KindNote    DocumentKind = "note"
	KindGeneric DocumentKind = "generic"
	KindCode    DocumentKind = "code"
)

// Document represents a catalog entry for an indexed document.
type Document struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Kind        DocumentKind `json:"kind"`
	StoredPath  string       `json:"stored_path,omitempty"` // managed copy of the original, if imported
	SourcePath  string       `json:"source_path,omitempty"` // file the document was registered from
	Preview     string       `json:"preview,omitempty"`
	WordCount   int          `json:"word_count,omitempty"`
	WorkspaceID string       `json:"workspace_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// DocumentChunk is a bounded slice of a document's text with a stable index.
// ChunkIndex values for one document are contiguous from 0 in chunking order.
type DocumentChunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
}

// EmbeddedChunk pairs a chunk with its embedding vector. DocumentID and
// ChunkIndex are duplicated from the chunk for fast lookup at query time.
type EmbeddedChunk struct {
	ID         string    `json:"id"`
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Vector     []float32 `json:"vector"`
}

// Workspace is a named, rooted code tree indexed independently of generic documents.
type Workspace struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	RootPath       string    `json:"root_path"`
	Extensions     []string  `json:"extensions,omitempty"`
	IgnorePatterns []string  `json:"ignore_patterns,omitempty"`
	WatchEnabled   bool      `json:"watch_enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RegistryEntry records what the change tracker knows about one file: the
// document indexed from it and the modification time observed at index time.
type RegistryEntry struct {
	DocumentID string `json:"document_id"`
	ModTime    int64  `json:"mod_time"` // UnixNano at last index
}
