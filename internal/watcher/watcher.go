// Package watcher delivers debounced change signals for watched directory
// roots. The reconciler consumes one capability — "watch a directory, get a
// signal when it has settled after changes" — through the Notifier interface,
// so it never knows which platform backend is active.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last raw event before a
// coalesced change signal is delivered.
const DefaultDebounce = time.Second

// Notifier watches a directory root and delivers one debounced signal per
// settled burst of filesystem changes.
type Notifier interface {
	// Watch starts watching root and returns the signal channel. The channel
	// has capacity 1: a signal arriving while a previous one is still being
	// handled stays pending rather than being dropped. Watching stops when
	// ctx is cancelled.
	Watch(ctx context.Context, root string) (<-chan struct{}, error)
	Close() error
}

// FSNotifier implements Notifier with fsnotify, installing recursive watches
// and restarting a single per-root timer on every raw event so bursts from
// editors and compilers collapse into one signal.
type FSNotifier struct {
	debounce time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	roots []*watchedRoot
}

type watchedRoot struct {
	root    string
	watcher *fsnotify.Watcher
	timer   *time.Timer
	signal  chan struct{}
}

// Option configures an FSNotifier.
type Option func(*FSNotifier)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(n *FSNotifier) { n.logger = l }
}

// WithDebounce overrides the debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(n *FSNotifier) {
		if d > 0 {
			n.debounce = d
		}
	}
}

// NewFSNotifier creates a notifier with the default debounce.
func NewFSNotifier(opts ...Option) *FSNotifier {
	n := &FSNotifier{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Watch installs a recursive watch on root and returns the debounced signal
// channel. A missing root is created so an inbox folder can be watched before
// anything ever lands in it.
func (n *FSNotifier) Watch(ctx context.Context, root string) (<-chan struct{}, error) {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, err
		}
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addRecursive(fsw, root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	wr := &watchedRoot{
		root:    root,
		watcher: fsw,
		signal:  make(chan struct{}, 1),
	}
	n.mu.Lock()
	n.roots = append(n.roots, wr)
	n.mu.Unlock()
	if n.logger != nil {
		n.logger.Debug("watch installed", zap.String("root", root))
	}
	go n.run(ctx, wr)
	return wr.signal, nil
}

func (n *FSNotifier) run(ctx context.Context, wr *watchedRoot) {
	defer func() {
		n.mu.Lock()
		if wr.timer != nil {
			wr.timer.Stop()
		}
		n.mu.Unlock()
		_ = wr.watcher.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-wr.watcher.Events:
			if !ok {
				return
			}
			n.handleEvent(wr, ev)
		case err, ok := <-wr.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors never stop monitoring; the root may become valid
			// again and the next event will be picked up normally.
			if err != nil && n.logger != nil {
				n.logger.Debug("watch error", zap.String("root", wr.root), zap.Error(err))
			}
		}
	}
}

func (n *FSNotifier) handleEvent(wr *watchedRoot, ev fsnotify.Event) {
	if n.logger != nil {
		n.logger.Debug("watch event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	}
	// Newly created directories must be added to the watch before their
	// contents produce events.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = addRecursive(wr.watcher, ev.Name)
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if wr.timer != nil {
		wr.timer.Stop()
	}
	wr.timer = time.AfterFunc(n.debounce, func() {
		select {
		case wr.signal <- struct{}{}:
		default:
			// A signal is already pending; the coming reconcile pass will
			// observe this change too.
		}
	})
}

// Close stops every watch.
func (n *FSNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var err error
	for _, wr := range n.roots {
		if wr.timer != nil {
			wr.timer.Stop()
		}
		if closeErr := wr.watcher.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	n.roots = nil
	return err
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal to the watch.
			return nil
		}
		if d.IsDir() {
			if addErr := fsw.Add(path); addErr != nil {
				return nil
			}
		}
		return nil
	})
}
