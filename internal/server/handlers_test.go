package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/library"
	"github.com/hyperjump/kioku/internal/models"
)

func newTestServer(t *testing.T) (*Server, *library.Library) {
	t.Helper()
	embedder := embedding.NewMockEmbedder(8)
	lib, err := library.New(t.TempDir(), library.WithEmbedder(embedder))
	if err != nil {
		t.Fatalf("library.New: %v", err)
	}
	srv := NewServer(lib, nil, nil, embedder, &config.ServerConfig{Host: "localhost", Port: 8087}, zap.NewNop())
	return srv, lib
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func writeTempDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHandleImportDocument(t *testing.T) {
	srv, _ := newTestServer(t)
	path := writeTempDoc(t, "the quarterly report covers revenue and churn")

	body, _ := json.Marshal(map[string]string{"path": path})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents/import", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleImportDocument(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var doc models.Document
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if doc.Title != "note.txt" || doc.Kind != models.KindGeneric {
		t.Errorf("doc = %+v", doc)
	}
}

func TestHandleImportDocument_missingFile(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"path": "/no/such/file.txt"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents/import", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleImportDocument(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestHandleImportDocument_invalidContent(t *testing.T) {
	srv, _ := newTestServer(t)
	path := writeTempDoc(t, "   \n\t  ")

	body, _ := json.Marshal(map[string]string{"path": path})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents/import", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleImportDocument(w, r)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d, want 422, body %s", w.Code, w.Body.String())
	}
}

func TestHandleImportDocument_pathRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents/import", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	srv.handleImportDocument(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleGetAndDeleteDocument(t *testing.T) {
	srv, lib := newTestServer(t)
	doc, err := lib.ImportDocument(context.Background(), writeTempDoc(t, "some indexed content"), models.KindGeneric)
	if err != nil {
		t.Fatal(err)
	}

	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID, nil), "id", doc.ID)
	w := httptest.NewRecorder()
	srv.handleGetDocument(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("get status: got %d", w.Code)
	}

	r = withURLParam(httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+doc.ID, nil), "id", doc.ID)
	w = httptest.NewRecorder()
	srv.handleDeleteDocument(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("delete status: got %d", w.Code)
	}

	r = withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID, nil), "id", doc.ID)
	w = httptest.NewRecorder()
	srv.handleGetDocument(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want 404", w.Code)
	}
}

func TestHandleListDocuments(t *testing.T) {
	srv, lib := newTestServer(t)
	if _, err := lib.ImportDocument(context.Background(), writeTempDoc(t, "listed content"), models.KindGeneric); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	w := httptest.NewRecorder()
	srv.handleListDocuments(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Documents []models.Document `json:"documents"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Documents) != 1 {
		t.Errorf("documents: got %d, want 1", len(out.Documents))
	}
}

func TestHandleSearch_queryRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	srv.handleSearch(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleAsk_notConfigured(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"question": "anything"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/ask", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleAsk(w, r)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleRebuildIndex(t *testing.T) {
	srv, lib := newTestServer(t)
	if _, err := lib.ImportDocument(context.Background(), writeTempDoc(t, "content to rebuild"), models.KindGeneric); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil)
	w := httptest.NewRecorder()
	srv.handleRebuildIndex(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var result library.RebuildResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Indexed != 1 {
		t.Errorf("indexed: got %d, want 1", result.Indexed)
	}
}

func TestHandleCreateWorkspace(t *testing.T) {
	srv, _ := newTestServer(t)
	root := t.TempDir()

	body, _ := json.Marshal(map[string]interface{}{"name": "api", "rootPath": root})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/workspaces", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleCreateWorkspace(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var ws models.Workspace
	if err := json.NewDecoder(w.Body).Decode(&ws); err != nil {
		t.Fatal(err)
	}
	if ws.Name != "api" || ws.ID == "" {
		t.Errorf("workspace = %+v", ws)
	}
}

func TestHandleCreateWorkspace_invalidRoot(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"name": "bad", "rootPath": "/no/such/dir"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/workspaces", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleCreateWorkspace(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, lib := newTestServer(t)
	if _, err := lib.ImportDocument(context.Background(), writeTempDoc(t, "counted content"), models.KindGeneric); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.handleStatus(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["documents"].(float64) != 1 {
		t.Errorf("documents: got %v", out["documents"])
	}
	if out["vector_index_size"].(float64) != 1 {
		t.Errorf("vector_index_size: got %v", out["vector_index_size"])
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}
