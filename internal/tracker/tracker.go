package tracker

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/library"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/sourceid"
	"github.com/hyperjump/kioku/internal/validate"
	"github.com/hyperjump/kioku/pkg/utils"
)

const (
	// DefaultParallelism bounds how many files are read and embedded at once
	// during a reconciliation pass.
	DefaultParallelism = 4

	// DefaultModTimeTolerance absorbs filesystem timestamp rounding. A file
	// whose modification time moved by less than this is treated as unchanged.
	DefaultModTimeTolerance = 500 * time.Millisecond

	registryFileName = "registry.json"
)

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Indexed     int            `json:"indexed"`
	Removed     int            `json:"removed"`
	Skipped     int            `json:"skipped"`
	SkipReasons map[string]int `json:"skip_reasons,omitempty"`
}

// Tracker keeps a directory tree and the document catalog in sync. Each
// tracked file maps to exactly one document whose identity is derived from the
// owner and the root-relative path, so repeated passes over an unchanged tree
// are no-ops.
type Tracker struct {
	root        string
	ownerID     string
	workspaceID string
	extensions  []string
	ignore      []string

	lib *library.Library
	idx *indexer.Indexer

	registryPath string
	parallelism  int
	tolerance    time.Duration
	logger       *zap.Logger

	mu  sync.Mutex
	reg registry
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithParallelism(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.parallelism = n
		}
	}
}

func WithModTimeTolerance(d time.Duration) Option {
	return func(t *Tracker) {
		if d >= 0 {
			t.tolerance = d
		}
	}
}

func WithIgnorePatterns(patterns []string) Option {
	return func(t *Tracker) { t.ignore = patterns }
}

func WithExtensions(exts []string) Option {
	return func(t *Tracker) { t.extensions = exts }
}

// NewWorkspaceTracker tracks the source files of a workspace. Files are
// registered as code documents owned by the workspace and indexed through idx.
func NewWorkspaceTracker(ws *models.Workspace, registryDir string, lib *library.Library, idx *indexer.Indexer, opts ...Option) *Tracker {
	t := newTracker(ws.RootPath, ws.ID, registryDir, lib, idx)
	t.workspaceID = ws.ID
	t.extensions = ws.Extensions
	t.ignore = ws.IgnorePatterns
	for _, opt := range opts {
		opt(t)
	}
	t.reg = loadRegistry(t.registryPath)
	return t
}

// NewInboxTracker tracks a drop-in directory. Files are imported as regular
// documents through the library's import pipeline.
func NewInboxTracker(root, registryDir string, lib *library.Library, opts ...Option) *Tracker {
	t := newTracker(root, sourceid.InboxOwner, registryDir, lib, nil)
	for _, opt := range opts {
		opt(t)
	}
	t.reg = loadRegistry(t.registryPath)
	return t
}

func newTracker(root, ownerID, registryDir string, lib *library.Library, idx *indexer.Indexer) *Tracker {
	return &Tracker{
		root:         root,
		ownerID:      ownerID,
		lib:          lib,
		idx:          idx,
		registryPath: filepath.Join(registryDir, ownerID+"_"+registryFileName),
		parallelism:  DefaultParallelism,
		tolerance:    DefaultModTimeTolerance,
		logger:       zap.NewNop(),
	}
}

// Reconcile walks the tracked root and brings the catalog in line with it:
// new and modified files are (re)indexed, files removed from disk have their
// documents removed. With fullRescan set, every present file is reindexed
// regardless of its recorded modification time.
func (t *Tracker) Reconcile(ctx context.Context, fullRescan bool) (*ReconcileResult, error) {
	present, err := t.scan()
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", t.root, err)
	}

	t.mu.Lock()
	var toIndex []string
	var toRemove []string
	for rel, mtime := range present {
		entry, known := t.reg[rel]
		if fullRescan || !known || !withinTolerance(entry.ModTime, mtime.UnixNano(), t.tolerance) {
			toIndex = append(toIndex, rel)
		}
	}
	for rel := range t.reg {
		if _, ok := present[rel]; !ok {
			toRemove = append(toRemove, rel)
		}
	}
	t.mu.Unlock()
	sort.Strings(toIndex)
	sort.Strings(toRemove)

	result := &ReconcileResult{SkipReasons: map[string]int{}}

	for _, rel := range toRemove {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		t.mu.Lock()
		entry := t.reg[rel]
		t.mu.Unlock()
		if err := t.lib.RemoveDocument(entry.DocumentID); err != nil {
			t.logger.Warn("remove document failed",
				zap.String("path", rel),
				zap.Error(err))
		}
		t.mu.Lock()
		delete(t.reg, rel)
		t.mu.Unlock()
		result.Removed++
	}

	t.indexFiles(ctx, toIndex, present, result)

	t.mu.Lock()
	err = saveRegistry(t.registryPath, t.reg)
	t.mu.Unlock()
	if err != nil {
		return result, fmt.Errorf("save registry: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	t.logger.Info("reconciliation complete",
		zap.String("root", t.root),
		zap.Int("indexed", result.Indexed),
		zap.Int("removed", result.Removed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// Run consumes change signals and reconciles after each one. Signals arriving
// while a pass is in flight stay pending on the channel, so passes never
// overlap and no change is lost. Run returns when ctx is canceled or the
// signal channel closes.
func (t *Tracker) Run(ctx context.Context, signals <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			if _, err := t.Reconcile(ctx, false); err != nil && ctx.Err() == nil {
				t.logger.Error("reconciliation failed",
					zap.String("root", t.root),
					zap.Error(err))
			}
		}
	}
}

// scan collects the tracked files under the root as root-relative slash paths
// mapped to their modification times. An unreadable root is an error rather
// than an empty set, so a vanished root never reads as "everything deleted".
func (t *Tracker) scan() (map[string]time.Time, error) {
	present := map[string]time.Time{}
	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == t.root {
				return err
			}
			t.logger.Debug("skipping unreadable path", zap.String("path", path))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(t.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && ignored(rel+"/", t.ignore) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ignored(rel, t.ignore) {
			return nil
		}
		if !extensionAllowed(filepath.Ext(rel), t.extensions) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		present[rel] = info.ModTime()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return present, nil
}

// indexFiles (re)indexes the given files with bounded parallelism. File reads
// and embedding run concurrently; registry updates are serialized on t.mu and
// catalog updates on the library's own lock.
func (t *Tracker) indexFiles(ctx context.Context, files []string, present map[string]time.Time, result *ReconcileResult) {
	if len(files) == 0 {
		return
	}
	var (
		wg   sync.WaitGroup
		rmu  sync.Mutex
		work = make(chan string)
	)
	workers := t.parallelism
	if workers > len(files) {
		workers = len(files)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range work {
				indexed, reason := t.indexOne(ctx, rel, present[rel])
				rmu.Lock()
				if indexed {
					result.Indexed++
				} else {
					result.Skipped++
					result.SkipReasons[reason]++
				}
				rmu.Unlock()
			}
		}()
	}
	for _, rel := range files {
		if ctx.Err() != nil {
			break
		}
		work <- rel
	}
	close(work)
	wg.Wait()
}

// indexOne brings a single file into the catalog and records it in the
// registry. It reports whether the file was indexed and, if not, why.
func (t *Tracker) indexOne(ctx context.Context, rel string, mtime time.Time) (bool, string) {
	if err := ctx.Err(); err != nil {
		return false, "canceled"
	}
	abs := filepath.Join(t.root, filepath.FromSlash(rel))

	if t.workspaceID == "" {
		return t.importInboxFile(ctx, rel, abs, mtime)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		t.logger.Warn("read failed", zap.String("path", abs), zap.Error(err))
		return false, "read_failed"
	}
	docID := sourceid.Format(t.ownerID, rel)
	t.lib.RegisterCodeDocument(docID, abs, utils.Truncate(rel, 200), t.workspaceID)
	if err := t.idx.IndexDocument(ctx, docID, content, models.KindCode); err != nil {
		t.logger.Debug("index skipped",
			zap.String("path", rel),
			zap.Error(err))
		// The catalog entry stays so the file shows up in listings, but it
		// contributes no chunks until its content becomes indexable.
		t.record(rel, docID, mtime)
		return false, skipReason(err)
	}
	t.record(rel, docID, mtime)
	return true, ""
}

// failedImportID marks a registry entry whose file could not be imported. It
// never matches a catalog document, so replacement removal stays a no-op.
const failedImportID = "!failed"

// importInboxFile runs a dropped file through the regular import pipeline and
// replaces any document a previous version of the file produced.
func (t *Tracker) importInboxFile(ctx context.Context, rel, abs string, mtime time.Time) (bool, string) {
	t.mu.Lock()
	prev, hadPrev := t.reg[rel]
	t.mu.Unlock()

	doc, err := t.lib.ImportDocument(ctx, abs, models.KindGeneric)
	if err != nil {
		t.logger.Warn("inbox import failed",
			zap.String("path", rel),
			zap.Error(err))
		// Recording the failure keeps an unchanged bad file from being
		// re-read and re-extracted on every subsequent pass.
		t.record(rel, failedImportID, mtime)
		return false, skipReason(err)
	}
	if hadPrev && prev.DocumentID != doc.ID {
		if err := t.lib.RemoveDocument(prev.DocumentID); err != nil {
			t.logger.Warn("replace previous import failed",
				zap.String("path", rel),
				zap.Error(err))
		}
	}
	t.record(rel, doc.ID, mtime)
	return true, ""
}

func (t *Tracker) record(rel, docID string, mtime time.Time) {
	t.mu.Lock()
	t.reg[rel] = models.RegistryEntry{DocumentID: docID, ModTime: mtime.UnixNano()}
	t.mu.Unlock()
}

// skipReason buckets an indexing failure for the reconciliation summary.
func skipReason(err error) string {
	if reason := validate.ReasonOf(err); reason != "" {
		return string(reason)
	}
	return "index_failed"
}

func withinTolerance(a, b int64, tolerance time.Duration) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= int64(tolerance)
}
