package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
)

// Persisted file names under the library data directory. Each is a single
// JSON document written atomically (temp-write + rename).
const (
	documentsFile  = "documents.json"
	chunksFile     = "chunks.json"
	vectorsFile    = "vectors.json"
	workspacesFile = "workspaces.json"
	originalsDir   = "originals"
)

// loadJSON reads path into v. A missing or malformed file leaves v untouched
// and returns false; the catalog self-heals from a blown-away file at the
// cost of a rebuild.
func loadJSON(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false
	}
	return true
}

// saveJSON writes v to path atomically.
func saveJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return vector.WriteFileAtomic(path, data)
}

func (l *Library) documentsPath() string  { return filepath.Join(l.dataDir, documentsFile) }
func (l *Library) chunksPath() string     { return filepath.Join(l.dataDir, chunksFile) }
func (l *Library) vectorsPath() string    { return filepath.Join(l.dataDir, vectorsFile) }
func (l *Library) workspacesPath() string { return filepath.Join(l.dataDir, workspacesFile) }
func (l *Library) originalsPath() string  { return filepath.Join(l.dataDir, originalsDir) }

// persistCatalogLocked writes the document catalog. Caller holds l.mu.
func (l *Library) persistCatalogLocked() error {
	docs := make([]*models.Document, 0, len(l.documents))
	for _, d := range l.documents {
		docs = append(docs, d)
	}
	return saveJSON(l.documentsPath(), docs)
}

// persistChunksLocked writes the chunk-by-document map. Caller holds l.mu.
func (l *Library) persistChunksLocked() error {
	return saveJSON(l.chunksPath(), l.chunks)
}

// persistWorkspacesLocked writes the workspace catalog. Caller holds l.mu.
func (l *Library) persistWorkspacesLocked() error {
	wss := make([]*models.Workspace, 0, len(l.workspaces))
	for _, w := range l.workspaces {
		wss = append(wss, w)
	}
	return saveJSON(l.workspacesPath(), wss)
}

// loadState restores the catalog, chunk map, workspaces, and vector snapshot
// from the data directory. Missing or corrupt files yield empty state.
func (l *Library) loadState() {
	var docs []*models.Document
	if loadJSON(l.documentsPath(), &docs) {
		for _, d := range docs {
			l.documents[d.ID] = d
		}
	}
	loadJSON(l.chunksPath(), &l.chunks)
	var wss []*models.Workspace
	if loadJSON(l.workspacesPath(), &wss) {
		for _, w := range wss {
			l.workspaces[w.ID] = w
		}
	}
	_ = l.index.Load(l.vectorsPath())
}
