// Package indexer owns the searchable state of one member search index
// source. An Engine holds exactly one generation of entries at a time;
// Replace builds the next generation in memory, persists it as a segment
// and swaps it in.
package indexer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/3worlds/aot/internal/indexer/index"
	"github.com/3worlds/aot/internal/indexer/segment"
	"github.com/3worlds/aot/internal/indexer/tokenizer"
	"github.com/3worlds/aot/internal/member"
)

// generation is an immutable snapshot of a source. Exactly one of mem and
// reader serves postings.
type generation struct {
	id          int64
	mem         *index.MemoryIndex
	reader      *segment.Reader
	entries     []member.Entry
	byKey       map[string]int
	docLengths  map[string]int
	totalTokens int64
}

type Engine struct {
	name    string
	dataDir string
	writer  *segment.Writer
	logger  *slog.Logger

	mu  sync.RWMutex
	gen *generation
}

// NewEngine creates the engine for a source. Segments are kept in dataDir;
// an empty dataDir keeps the source in memory only. The newest readable
// segment found in dataDir is restored.
func NewEngine(name, dataDir string) (*Engine, error) {
	e := &Engine{
		name:    name,
		dataDir: dataDir,
		logger:  slog.Default().With("component", "indexer", "source", name),
		gen:     newGeneration(0),
	}
	if dataDir == "" {
		return e, nil
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e.writer = segment.NewWriter(dataDir)
	if err := e.loadExistingSegment(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

func newGeneration(id int64) *generation {
	return &generation{
		id:         id,
		mem:        index.NewMemoryIndex(),
		byKey:      make(map[string]int),
		docLengths: make(map[string]int),
	}
}

// Replace indexes a complete entry set as a new generation and persists it.
// Entries sharing a key are indexed once; the first occurrence wins.
func (e *Engine) Replace(entries []member.Entry) error {
	e.mu.RLock()
	prevID := e.gen.id
	e.mu.RUnlock()

	id := time.Now().UnixNano()
	if id <= prevID {
		id = prevID + 1
	}
	next := newGeneration(id)
	next.entries = make([]member.Entry, 0, len(entries))
	duplicates := 0
	for _, entry := range entries {
		key := entry.Key()
		if _, dup := next.byKey[key]; dup {
			duplicates++
			continue
		}
		next.byKey[key] = len(next.entries)
		next.entries = append(next.entries, entry)
		length := next.mem.AddEntry(key, entry)
		next.docLengths[key] = length
		next.totalTokens += int64(length)
	}
	if duplicates > 0 {
		e.logger.Warn("duplicate entries skipped", "count", duplicates)
	}

	if e.writer != nil {
		if err := e.persist(next); err != nil {
			return err
		}
	}

	e.mu.Lock()
	old := e.gen
	e.gen = next
	e.mu.Unlock()

	e.retire(old)
	e.logger.Info("index generation replaced",
		"generation", next.id,
		"entries", len(next.entries),
		"terms", e.termCount(next),
	)
	return nil
}

// Flush persists the current generation if it is still memory-only.
func (e *Engine) Flush() error {
	if e.writer == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen.reader != nil || len(e.gen.entries) == 0 {
		return nil
	}
	return e.persist(e.gen)
}

// persist writes g as a segment and switches it to serve from the segment.
func (e *Engine) persist(g *generation) error {
	if len(g.entries) == 0 {
		return nil
	}
	catalog := make([]segment.CatalogEntry, len(g.entries))
	for i, entry := range g.entries {
		key := entry.Key()
		catalog[i] = segment.CatalogEntry{Key: key, Entry: entry, Length: g.docLengths[key]}
	}
	segmentName, err := e.writer.Write(g.id, g.mem.Snapshot(), catalog)
	if err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}
	reader, err := segment.OpenReader(filepath.Join(e.dataDir, segmentName))
	if err != nil {
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	g.reader = reader
	g.mem = nil
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
	)
	return nil
}

// retire closes the segment of a replaced generation and deletes its file.
func (e *Engine) retire(old *generation) {
	if old == nil || old.reader == nil {
		return
	}
	path := old.reader.Path()
	if err := old.reader.Close(); err != nil {
		e.logger.Error("closing segment reader", "error", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.logger.Error("removing old segment", "segment", path, "error", err)
	}
}

// Search returns the postings of a single term.
func (e *Engine) Search(term string) (index.PostingList, error) {
	tokens := tokenizer.Tokenize(term)
	if len(tokens) == 0 {
		return nil, nil
	}
	normalizedTerm := tokens[0].Term

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gen.reader != nil {
		postings, err := e.gen.reader.Search(normalizedTerm)
		if err != nil {
			return nil, fmt.Errorf("searching segment of %s: %w", e.name, err)
		}
		return postings, nil
	}
	return e.gen.mem.Search(normalizedTerm), nil
}

// SearchPrefix returns the terms starting with prefix and their postings.
func (e *Engine) SearchPrefix(prefix string, limit int) ([]index.TermEntry, error) {
	prefix = strings.ToLower(prefix)
	if prefix == "" {
		return nil, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gen.reader != nil {
		terms, err := e.gen.reader.SearchPrefix(prefix, limit)
		if err != nil {
			return nil, fmt.Errorf("prefix search in segment of %s: %w", e.name, err)
		}
		return terms, nil
	}
	return e.gen.mem.SearchPrefix(prefix, limit), nil
}

// Entry returns the indexed entry with the given key.
func (e *Engine) Entry(key string) (member.Entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i, ok := e.gen.byKey[key]
	if !ok {
		return member.Entry{}, false
	}
	return e.gen.entries[i], true
}

// Entries returns the entries of the current generation in load order. The
// slice must not be modified.
func (e *Engine) Entries() []member.Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen.entries
}

func (e *Engine) DocLength(key string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen.docLengths[key]
}

func (e *Engine) AvgDocLength() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.gen.entries) == 0 {
		return 0
	}
	return float64(e.gen.totalTokens) / float64(len(e.gen.entries))
}

func (e *Engine) TotalDocs() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int64(len(e.gen.entries))
}

// Generation identifies the loaded entry set; 0 means nothing is loaded.
func (e *Engine) Generation() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen.id
}

func (e *Engine) Name() string {
	return e.name
}

// Close releases the current segment. Segment files stay on disk.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen.reader == nil {
		return nil
	}
	err := e.gen.reader.Close()
	e.gen = newGeneration(e.gen.id)
	return err
}

func (e *Engine) termCount(g *generation) int {
	if g.reader != nil {
		return g.reader.Terms()
	}
	return len(g.mem.Snapshot())
}

// loadExistingSegment restores the newest readable segment and removes
// every other segment and leftover temp file.
func (e *Engine) loadExistingSegment() error {
	dirEntries, err := os.ReadDir(e.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		switch {
		case strings.HasSuffix(entry.Name(), ".tmp"):
			os.Remove(filepath.Join(e.dataDir, entry.Name()))
		case strings.HasSuffix(entry.Name(), segment.Extension):
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(segFiles)))

	for i, name := range segFiles {
		path := filepath.Join(e.dataDir, name)
		reader, err := segment.OpenReader(path)
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.gen = restoreGeneration(reader)
		e.logger.Info("loaded existing segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
		for _, stale := range segFiles[i+1:] {
			if err := os.Remove(filepath.Join(e.dataDir, stale)); err != nil {
				e.logger.Warn("removing stale segment", "segment", stale, "error", err)
			}
		}
		return nil
	}
	e.logger.Info("no segment to restore")
	return nil
}

func restoreGeneration(reader *segment.Reader) *generation {
	catalog := reader.Catalog()
	g := &generation{
		id:         reader.Generation(),
		reader:     reader,
		entries:    make([]member.Entry, len(catalog)),
		byKey:      make(map[string]int, len(catalog)),
		docLengths: make(map[string]int, len(catalog)),
	}
	for i, c := range catalog {
		g.entries[i] = c.Entry
		g.byKey[c.Key] = i
		g.docLengths[c.Key] = c.Length
		g.totalTokens += int64(c.Length)
	}
	return g
}
