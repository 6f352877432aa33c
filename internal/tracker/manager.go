package tracker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/library"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/sourceid"
	"github.com/hyperjump/kioku/internal/watcher"
)

// Manager runs one Tracker per watched root: each watch-enabled workspace and
// optionally an inbox directory. Debounced filesystem signals from the
// notifier drive reconciliation; manual reindex requests go through
// Reconcile.
type Manager struct {
	lib         *library.Library
	idx         *indexer.Indexer
	notifier    watcher.Notifier
	registryDir string
	inboxPath   string
	inboxExts   []string
	logger      *zap.Logger

	mu       sync.Mutex
	trackers map[string]*Tracker // keyed by owner ID
	cancels  map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithInbox enables the drop-in directory tracker.
func WithInbox(path string, extensions []string) ManagerOption {
	return func(m *Manager) {
		m.inboxPath = path
		m.inboxExts = extensions
	}
}

func NewManager(lib *library.Library, idx *indexer.Indexer, notifier watcher.Notifier, registryDir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		lib:         lib,
		idx:         idx,
		notifier:    notifier,
		registryDir: registryDir,
		logger:      zap.NewNop(),
		trackers:    map[string]*Tracker{},
		cancels:     map[string]context.CancelFunc{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start brings up trackers for the inbox and every watch-enabled workspace,
// runs an initial reconciliation for each, and begins consuming change
// signals. It returns after the initial passes complete; signal handling
// continues until ctx is canceled.
func (m *Manager) Start(ctx context.Context) error {
	if m.inboxPath != "" {
		t := NewInboxTracker(m.inboxPath, m.registryDir, m.lib,
			WithLogger(m.logger),
			WithExtensions(m.inboxExts))
		if err := m.startTracker(ctx, sourceid.InboxOwner, m.inboxPath, t); err != nil {
			return fmt.Errorf("start inbox tracker: %w", err)
		}
	}
	for _, ws := range m.lib.ListWorkspaces() {
		if !ws.WatchEnabled {
			continue
		}
		if err := m.AddWorkspace(ctx, ws); err != nil {
			m.logger.Error("start workspace tracker failed",
				zap.String("workspace", ws.ID),
				zap.Error(err))
		}
	}
	return nil
}

// AddWorkspace starts tracking a workspace root. The initial reconciliation
// runs synchronously so callers observe a populated index.
func (m *Manager) AddWorkspace(ctx context.Context, ws *models.Workspace) error {
	t := NewWorkspaceTracker(ws, m.registryDir, m.lib, m.idx, WithLogger(m.logger))
	return m.startTracker(ctx, ws.ID, ws.RootPath, t)
}

func (m *Manager) startTracker(ctx context.Context, ownerID, root string, t *Tracker) error {
	m.mu.Lock()
	if _, exists := m.trackers[ownerID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("already tracking %s", ownerID)
	}
	m.trackers[ownerID] = t
	m.mu.Unlock()

	if _, err := t.Reconcile(ctx, false); err != nil {
		m.logger.Warn("initial reconciliation failed",
			zap.String("root", root),
			zap.Error(err))
	}

	signals, err := m.notifier.Watch(ctx, root)
	if err != nil {
		// Tracking without watching still works; manual reindex covers it.
		m.logger.Warn("watch unavailable, manual reindex only",
			zap.String("root", root),
			zap.Error(err))
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancels[ownerID] = cancel
	m.mu.Unlock()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t.Run(runCtx, signals)
	}()
	return nil
}

// RemoveWorkspace stops tracking a workspace root. Documents stay in the
// catalog until the workspace itself is deleted.
func (m *Manager) RemoveWorkspace(ownerID string) {
	m.mu.Lock()
	if cancel, ok := m.cancels[ownerID]; ok {
		cancel()
		delete(m.cancels, ownerID)
	}
	delete(m.trackers, ownerID)
	m.mu.Unlock()
}

// Reconcile runs a reconciliation pass for the given owner (workspace ID or
// the inbox owner). With full set, every present file is reindexed.
func (m *Manager) Reconcile(ctx context.Context, ownerID string, full bool) (*ReconcileResult, error) {
	m.mu.Lock()
	t, ok := m.trackers[ownerID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("not tracking %s", ownerID)
	}
	return t.Reconcile(ctx, full)
}

// Tracked returns the owner IDs with an active tracker.
func (m *Manager) Tracked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	owners := make([]string, 0, len(m.trackers))
	for id := range m.trackers {
		owners = append(owners, id)
	}
	return owners
}

// Stop cancels all signal loops and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
	if err := m.notifier.Close(); err != nil {
		m.logger.Warn("close notifier failed", zap.Error(err))
	}
}
