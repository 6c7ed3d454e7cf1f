// Package shard routes member search index sources to their engines. Each
// source owns an independent indexer.Engine backed by its own data
// directory, and the Router dispatches loads and searches by source name.
package shard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/3worlds/aot/internal/indexer"
	"github.com/3worlds/aot/internal/jsindex"
	"github.com/3worlds/aot/internal/member"
	"github.com/3worlds/aot/pkg/config"
	apperrors "github.com/3worlds/aot/pkg/errors"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidName reports whether name can be used as a source name. Names
// double as directory names, so path separators are rejected.
func ValidName(name string) bool {
	return validName.MatchString(name)
}

// Router maps source names to dedicated indexer.Engine instances.
type Router struct {
	engines map[string]*indexer.Engine
	mu      sync.RWMutex
	dataDir string
	logger  *slog.Logger
}

// NewRouter creates a router whose engines live under cfg.DataDir. Sources
// persisted by a previous run are restored. An empty DataDir keeps every
// source in memory only.
func NewRouter(cfg config.IndexerConfig) (*Router, error) {
	r := &Router{
		engines: make(map[string]*indexer.Engine),
		dataDir: cfg.DataDir,
		logger:  slog.Default().With("component", "source-router"),
	}
	if r.dataDir == "" {
		return r, nil
	}
	if err := os.MkdirAll(r.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	dirEntries, err := os.ReadDir(r.dataDir)
	if err != nil {
		return nil, fmt.Errorf("reading index data directory: %w", err)
	}
	for _, d := range dirEntries {
		if !d.IsDir() || !ValidName(d.Name()) {
			continue
		}
		engine, err := indexer.NewEngine(d.Name(), filepath.Join(r.dataDir, d.Name()))
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("restoring source %s: %w", d.Name(), err)
		}
		if engine.TotalDocs() == 0 {
			engine.Close()
			continue
		}
		r.engines[d.Name()] = engine
		r.logger.Info("source restored",
			"source", d.Name(),
			"entries", engine.TotalDocs(),
			"generation", engine.Generation(),
		)
	}
	r.logger.Info("source router ready", "sources", len(r.engines))
	return r, nil
}

// Load replaces the entries of a source, creating its engine on first use.
func (r *Router) Load(ctx context.Context, name string, entries []member.Entry) error {
	if !ValidName(name) {
		return apperrors.Newf(apperrors.ErrInvalidInput, "invalid source name %q", name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	engine, err := r.engineFor(name)
	if err != nil {
		return err
	}
	if err := engine.Replace(entries); err != nil {
		return fmt.Errorf("loading source %s: %w", name, err)
	}
	return nil
}

func (r *Router) engineFor(name string) (*indexer.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if engine, ok := r.engines[name]; ok {
		return engine, nil
	}
	dir := ""
	if r.dataDir != "" {
		dir = filepath.Join(r.dataDir, name)
	}
	engine, err := indexer.NewEngine(name, dir)
	if err != nil {
		return nil, fmt.Errorf("creating engine for source %s: %w", name, err)
	}
	r.engines[name] = engine
	return engine, nil
}

// LoadFiles parses the configured index files concurrently and loads each
// into its source. The first failure cancels the remaining loads.
func (r *Router) LoadFiles(ctx context.Context, sources []config.SourceConfig) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, src := range sources {
		g.Go(func() error {
			doc, err := jsindex.ParseFile(ctx, src.Path)
			if err != nil {
				return fmt.Errorf("source %s: %w", src.Name, err)
			}
			if err := r.Load(ctx, src.Name, doc.Entries); err != nil {
				return err
			}
			r.logger.Info("index file loaded",
				"source", src.Name,
				"path", src.Path,
				"entries", len(doc.Entries),
			)
			return nil
		})
	}
	return g.Wait()
}

// Route returns the Engine serving the named source.
func (r *Router) Route(name string) (*indexer.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("routing %q: %w", name, apperrors.ErrSourceNotFound)
	}
	return engine, nil
}

// Remove drops a source and deletes its segments.
func (r *Router) Remove(name string) error {
	r.mu.Lock()
	engine, ok := r.engines[name]
	delete(r.engines, name)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("removing %q: %w", name, apperrors.ErrSourceNotFound)
	}
	if err := engine.Close(); err != nil {
		r.logger.Error("close failed", "source", name, "error", err)
	}
	if r.dataDir != "" {
		if err := os.RemoveAll(filepath.Join(r.dataDir, name)); err != nil {
			return fmt.Errorf("removing segments of %s: %w", name, err)
		}
	}
	r.logger.Info("source removed", "source", name)
	return nil
}

// GetAllEngines returns a snapshot map of all source engines.
func (r *Router) GetAllEngines() map[string]*indexer.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]*indexer.Engine, len(r.engines))
	for name, engine := range r.engines {
		result[name] = engine
	}
	return result
}

// Sources returns the loaded source names in sorted order.
func (r *Router) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FlushAll flushes every source engine to disk.
func (r *Router) FlushAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for name, engine := range r.engines {
		if err := engine.Flush(); err != nil {
			r.logger.Error("flush failed", "source", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close flushes and closes every source engine.
func (r *Router) Close() error {
	if err := r.FlushAll(); err != nil {
		r.logger.Error("final flush failed", "error", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeAll()
}

// closeAll closes every source engine, collecting the first error encountered.
func (r *Router) closeAll() error {
	var firstErr error
	for name, engine := range r.engines {
		if err := engine.Close(); err != nil {
			r.logger.Error("close failed", "source", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
