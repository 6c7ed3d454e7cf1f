// Package watcher reloads member search index files when they change on
// disk. Parent directories are watched rather than the files themselves so
// that editors and doc generators replacing a file by rename are noticed.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/3worlds/aot/internal/jsindex"
	"github.com/3worlds/aot/internal/member"
	"github.com/3worlds/aot/pkg/config"
	"github.com/3worlds/aot/pkg/metrics"
)

// Loader receives the entries of a re-parsed source.
type Loader interface {
	Load(ctx context.Context, name string, entries []member.Entry) error
}

// Watcher debounces file events per source and reloads the changed source.
// Reload failures are logged and the previous generation keeps serving.
type Watcher struct {
	fsw      *fsnotify.Watcher
	loader   Loader
	sources  map[string]config.SourceConfig
	debounce time.Duration
	metrics  *metrics.Metrics
	onReload func(source string)
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

// New creates a watcher for the given sources. Every reload attempt is
// recorded in m, which may be nil. onReload, when non-nil, is called after
// every successful reload.
func New(loader Loader, sources []config.SourceConfig, debounce time.Duration, m *metrics.Metrics, onReload func(source string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		loader:   loader,
		sources:  make(map[string]config.SourceConfig, len(sources)),
		debounce: debounce,
		metrics:  m,
		onReload: onReload,
		logger:   slog.Default().With("component", "index-watcher"),
		timers:   make(map[string]*time.Timer),
	}
	dirs := make(map[string]bool)
	for _, src := range sources {
		path, err := filepath.Abs(src.Path)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("resolving %s: %w", src.Path, err)
		}
		w.sources[path] = src
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run processes file events until ctx is cancelled, then waits for any
// reload in flight.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching index files", "files", len(w.sources))
	defer w.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	path, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	src, ok := w.sources[path]
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, pending := w.timers[path]; pending {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		if w.closed {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()
		w.reload(ctx, src)
	})
}

func (w *Watcher) reload(ctx context.Context, src config.SourceConfig) {
	doc, err := jsindex.ParseFile(ctx, src.Path)
	if err != nil {
		w.metrics.RecordSource(src.Name, 0, err)
		w.logger.Error("reparsing index file failed, keeping previous generation",
			"source", src.Name,
			"path", src.Path,
			"error", err,
		)
		return
	}
	if err := w.loader.Load(ctx, src.Name, doc.Entries); err != nil {
		w.metrics.RecordSource(src.Name, 0, err)
		w.logger.Error("reloading source failed", "source", src.Name, "error", err)
		return
	}
	w.metrics.RecordSource(src.Name, len(doc.Entries), nil)
	w.logger.Info("index file reloaded", "source", src.Name, "entries", len(doc.Entries))
	if w.onReload != nil {
		w.onReload(src.Name)
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
	if err := w.fsw.Close(); err != nil {
		w.logger.Error("closing file watcher", "error", err)
	}
}
