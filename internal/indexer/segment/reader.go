package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"
	"strings"

	"github.com/3worlds/aot/internal/indexer/index"
)

// Reader serves postings from a segment file. The dictionary and entry
// catalog are held in memory; postings are read on demand.
type Reader struct {
	file       *os.File
	filePath   string
	header     SegmentHeader
	generation int64
	dict       []DictEntry
	catalog    []CatalogEntry
	postBase   int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := readSegment(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func readSegment(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:  binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		CatOffset:  int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		CatSize:    int64(binary.LittleEndian.Uint64(headerBytes[56:64])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	catBytes := make([]byte, header.CatSize)
	if _, err := f.ReadAt(catBytes, header.CatOffset); err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.CatOffset+header.CatSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	checksum := crc32.NewIEEE()
	checksum.Write(dictBytes)
	checksum.Write(catBytes)
	if want := binary.LittleEndian.Uint32(footer[0:4]); checksum.Sum32() != want {
		return nil, fmt.Errorf("segment %s: checksum mismatch", path)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	var catalog []CatalogEntry
	if err := json.Unmarshal(catBytes, &catalog); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return &Reader{
		file:       f,
		filePath:   path,
		header:     header,
		generation: int64(binary.LittleEndian.Uint64(footer[8:16])),
		dict:       dict,
		catalog:    catalog,
		postBase:   header.PostOffset,
	}, nil
}

func (r *Reader) Search(term string) (index.PostingList, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return nil, nil
	}
	return r.readPostings(r.dict[idx])
}

// SearchPrefix returns every term starting with prefix, with its postings,
// in term order. At most limit terms are expanded when limit > 0.
func (r *Reader) SearchPrefix(prefix string, limit int) ([]index.TermEntry, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= prefix
	})
	var result []index.TermEntry
	for ; idx < len(r.dict) && strings.HasPrefix(r.dict[idx].Term, prefix); idx++ {
		if limit > 0 && len(result) >= limit {
			break
		}
		postings, err := r.readPostings(r.dict[idx])
		if err != nil {
			return nil, err
		}
		result = append(result, index.TermEntry{Term: r.dict[idx].Term, Postings: postings})
	}
	return result, nil
}

func (r *Reader) readPostings(entry DictEntry) (index.PostingList, error) {
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// Catalog returns the indexed entries in the order they were written.
func (r *Reader) Catalog() []CatalogEntry {
	return r.catalog
}

func (r *Reader) Generation() int64 {
	return r.generation
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Close() error {
	return r.file.Close()
}
