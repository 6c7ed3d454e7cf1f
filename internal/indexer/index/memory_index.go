package index

import (
	"sort"
	"strings"
	"sync"

	"github.com/3worlds/aot/internal/indexer/tokenizer"
	"github.com/3worlds/aot/internal/member"
)

type MemoryIndex struct {
	mu       sync.RWMutex
	index    map[string]map[string]*Posting
	terms    []string
	dirty    bool
	docCount int
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]map[string]*Posting),
	}
}

// AddEntry indexes the searchable parts of e under key and returns the
// number of tokens indexed, which is the entry's document length.
func (m *MemoryIndex) AddEntry(key string, e member.Entry) int {
	termData := make(map[string]*Posting)
	pos := 0
	add := func(text string, field Field) {
		tokens := tokenizer.Tokenize(text)
		for _, token := range tokens {
			p, exists := termData[token.Term]
			if !exists {
				p = &Posting{
					Key:       key,
					Positions: make([]int, 0, 2),
				}
				termData[token.Term] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, pos+token.Position)
			p.Fields |= field
		}
		pos += len(tokens)
	}
	add(e.Name(), FieldName)
	for _, param := range e.Params() {
		add(param, FieldParams)
	}
	add(e.Class, FieldClass)
	add(e.Package, FieldPackage)

	m.mu.Lock()
	defer m.mu.Unlock()

	for term, posting := range termData {
		if _, exists := m.index[term]; !exists {
			m.index[term] = make(map[string]*Posting)
			m.dirty = true
		}
		m.index[term][key] = posting
		m.size += int64(len(term) + len(key) + len(posting.Positions)*8 + 64)
	}
	m.docCount++
	return pos
}

func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[term]
	if !exists {
		return nil
	}
	return sortedPostings(docs)
}

// SearchPrefix returns every term starting with prefix, with its postings,
// in term order. At most limit terms are expanded when limit > 0.
func (m *MemoryIndex) SearchPrefix(prefix string, limit int) []TermEntry {
	m.mu.Lock()
	if m.dirty {
		m.terms = m.terms[:0]
		for term := range m.index {
			m.terms = append(m.terms, term)
		}
		sort.Strings(m.terms)
		m.dirty = false
	}
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []TermEntry
	i := sort.SearchStrings(m.terms, prefix)
	for ; i < len(m.terms) && strings.HasPrefix(m.terms[i], prefix); i++ {
		if limit > 0 && len(result) >= limit {
			break
		}
		term := m.terms[i]
		result = append(result, TermEntry{Term: term, Postings: sortedPostings(m.index[term])})
	}
	return result
}

func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: sortedPostings(docs),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docCount
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[string]*Posting)
	m.terms = nil
	m.dirty = false
	m.docCount = 0
	m.size = 0
}

func sortedPostings(docs map[string]*Posting) PostingList {
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result
}
