package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/llm"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/retriever"
	"github.com/hyperjump/kioku/internal/validate"
)

type importRequest struct {
	Path string `json:"path"`
	Kind string `json:"kind,omitempty"`
}

func (s *Server) handleImportDocument(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "file not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	kind := models.DocumentKind(req.Kind)
	if kind == "" {
		kind = models.KindGeneric
	}
	s.logger.Debug("import request", zap.String("path", abs), zap.String("kind", string(kind)))
	doc, err := s.lib.ImportDocument(r.Context(), abs, kind)
	if err != nil {
		if validate.IsValidationError(err) {
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("import failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.lib.ListDocuments()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, ok := s.lib.Document(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.lib.RemoveDocument(id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	docs, err := s.lib.SearchDocuments(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

type askRequest struct {
	Question      string   `json:"question"`
	WorkspaceIDs  []string `json:"workspaceIds,omitempty"`
	TopK          int      `json:"topK,omitempty"`
	IncludeScores bool     `json:"includeScores,omitempty"`
	Stream        bool     `json:"stream,omitempty"`
	MaxTokens     int      `json:"maxTokens,omitempty"`
	Temperature   float64  `json:"temperature,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.retr == nil {
		s.respondError(w, http.StatusNotImplemented, "generation not configured")
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	opts := retriever.Options{
		TopK:         req.TopK,
		WorkspaceIDs: req.WorkspaceIDs,
		IncludeScore: req.IncludeScores,
		Generation: llm.GenerationConfig{
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		},
	}
	if req.Stream {
		s.streamAnswer(w, r, req.Question, opts)
		return
	}
	answer, sources, err := s.retr.Answer(r.Context(), req.Question, opts)
	if err != nil {
		s.logger.Error("answer failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"answer":  answer,
		"sources": sources,
	})
}

// streamAnswer writes the generated answer as newline-delimited JSON events:
// fragment events while generating, then one final event carrying the sources.
func (s *Server) streamAnswer(w http.ResponseWriter, r *http.Request, question string, opts retriever.Options) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	sources, err := s.retr.AnswerStream(r.Context(), question, opts, func(fragment string) error {
		if err := enc.Encode(map[string]string{"fragment": fragment}); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		s.logger.Error("streamed answer failed", zap.Error(err))
		_ = enc.Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = enc.Encode(map[string]interface{}{"done": true, "sources": sources})
	if flusher != nil {
		flusher.Flush()
	}
}

type rebuildRequest struct {
	IncludeCode bool `json:"includeCode,omitempty"`
}

func (s *Server) handleRebuildIndex(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	s.logger.Info("rebuild index request", zap.Bool("include_code", req.IncludeCode))
	result, err := s.lib.RebuildIndex(r.Context(), req.IncludeCode, s.embedder)
	if err != nil {
		s.logger.Error("rebuild failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

type workspaceRequest struct {
	Name           string   `json:"name"`
	RootPath       string   `json:"rootPath"`
	Extensions     []string `json:"extensions,omitempty"`
	IgnorePatterns []string `json:"ignorePatterns,omitempty"`
	Watch          bool     `json:"watch,omitempty"`
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req workspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.RootPath == "" {
		s.respondError(w, http.StatusBadRequest, "name and rootPath are required")
		return
	}
	abs, err := filepath.Abs(req.RootPath)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid rootPath")
		return
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "rootPath is not a directory")
		return
	}
	ws, err := s.lib.CreateWorkspace(req.Name, abs, req.Extensions, req.IgnorePatterns, req.Watch)
	if err != nil {
		s.logger.Error("create workspace failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Watch && s.trackers != nil {
		if err := s.trackers.AddWorkspace(r.Context(), ws); err != nil {
			s.logger.Warn("workspace created but tracking failed",
				zap.String("workspace", ws.ID),
				zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusCreated, ws)
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"workspaces": s.lib.ListWorkspaces()})
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ws, ok := s.lib.Workspace(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "workspace not found")
		return
	}
	s.respondJSON(w, http.StatusOK, ws)
}

func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete workspace request", zap.String("id", id))
	if s.trackers != nil {
		s.trackers.RemoveWorkspace(id)
	}
	if err := s.lib.DeleteWorkspace(id); err != nil {
		s.logger.Error("delete workspace failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleReindexWorkspace(w http.ResponseWriter, r *http.Request) {
	if s.trackers == nil {
		s.respondError(w, http.StatusNotImplemented, "tracking not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	s.logger.Info("reindex workspace request", zap.String("id", id))
	result, err := s.trackers.Reconcile(r.Context(), id, true)
	if err != nil {
		s.logger.Error("reindex failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	idx := s.lib.Index()
	resp := map[string]interface{}{
		"documents":         len(s.lib.ListDocuments()),
		"chunks":            s.lib.CountChunks(),
		"vector_index_size": idx.Size(),
		"vector_dimension":  idx.Dimension(),
	}
	if s.trackers != nil {
		resp["tracked_roots"] = s.trackers.Tracked()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
