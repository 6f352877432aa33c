package library

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kioku/internal/models"
	"go.uber.org/zap"
)

// CreateWorkspace adds a named code tree to the catalog.
func (l *Library) CreateWorkspace(name, rootPath string, extensions, ignorePatterns []string, watch bool) (*models.Workspace, error) {
	if name == "" || rootPath == "" {
		return nil, fmt.Errorf("workspace name and root path are required")
	}
	now := time.Now()
	ws := &models.Workspace{
		ID:             uuid.New().String(),
		Name:           name,
		RootPath:       rootPath,
		Extensions:     extensions,
		IgnorePatterns: ignorePatterns,
		WatchEnabled:   watch,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.workspaces[ws.ID] = ws
	if err := l.persistWorkspacesLocked(); err != nil {
		delete(l.workspaces, ws.ID)
		return nil, err
	}
	if l.logger != nil {
		l.logger.Debug("workspace created", zap.String("workspace_id", ws.ID), zap.String("name", name))
	}
	cp := *ws
	return &cp, nil
}

// Workspace returns the workspace with the given ID.
func (l *Library) Workspace(id string) (*models.Workspace, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ws, ok := l.workspaces[id]
	if !ok {
		return nil, false
	}
	cp := *ws
	return &cp, true
}

// ListWorkspaces returns all workspaces sorted by name.
func (l *Library) ListWorkspaces() []*models.Workspace {
	l.mu.Lock()
	defer l.mu.Unlock()
	wss := make([]*models.Workspace, 0, len(l.workspaces))
	for _, w := range l.workspaces {
		cp := *w
		wss = append(wss, &cp)
	}
	sort.Slice(wss, func(i, j int) bool { return wss[i].Name < wss[j].Name })
	return wss
}

// UpdateWorkspace replaces the mutable fields of a workspace.
func (l *Library) UpdateWorkspace(ws *models.Workspace) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.workspaces[ws.ID]
	if !ok {
		return fmt.Errorf("workspace %s not found", ws.ID)
	}
	existing.Name = ws.Name
	existing.RootPath = ws.RootPath
	existing.Extensions = ws.Extensions
	existing.IgnorePatterns = ws.IgnorePatterns
	existing.WatchEnabled = ws.WatchEnabled
	existing.UpdatedAt = time.Now()
	return l.persistWorkspacesLocked()
}

// DeleteWorkspace removes the workspace and purges every document it owns.
func (l *Library) DeleteWorkspace(id string) error {
	l.mu.Lock()
	_, ok := l.workspaces[id]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	delete(l.workspaces, id)
	err := l.persistWorkspacesLocked()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.PurgeCodeDocuments(id)
}

// WorkspaceDocumentIDs returns the IDs of all documents owned by any of the
// given workspaces. Used for workspace-scoped retrieval filtering.
func (l *Library) WorkspaceDocumentIDs(workspaceIDs []string) map[string]bool {
	want := make(map[string]bool, len(workspaceIDs))
	for _, id := range workspaceIDs {
		want[id] = true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]bool)
	for id, d := range l.documents {
		if d.WorkspaceID != "" && want[d.WorkspaceID] {
			out[id] = true
		}
	}
	return out
}
