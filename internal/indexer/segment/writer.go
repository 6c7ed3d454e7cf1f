package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/3worlds/aot/internal/indexer/index"
	"github.com/3worlds/aot/internal/member"
)

// MagicBytes identifies a valid .msix segment file.
const (
	MagicBytes    uint32 = 0x4D534958
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".msix"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
	CatOffset  int64
	CatSize    int64
}

// DictEntry maps a term to its postings offset, length, and document frequency
// in the segment file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// CatalogEntry is one indexed member with its key and token count.
type CatalogEntry struct {
	Key    string       `json:"k"`
	Entry  member.Entry `json:"e"`
	Length int          `json:"n"`
}

// Writer serialises an index generation into new .msix segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Name returns the file name of the segment for a generation. Names sort
// in generation order.
func Name(generation int64) string {
	return fmt.Sprintf("seg_%020d%s", generation, Extension)
}

// Write atomically creates the segment file for a generation from its term
// entries and entry catalog. It writes to a .tmp file first and renames on
// success.
func (w *Writer) Write(generation int64, terms []index.TermEntry, catalog []CatalogEntry) (string, error) {
	if len(catalog) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := Name(generation)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()
	defer os.Remove(tmpPath)

	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(terms)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(catalog)))

	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(terms))
	for _, entry := range terms {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(postingsData))
	}
	postingsSize := offset - postingsStart

	dictStart := offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}

	catStart := dictStart + int64(len(dictData))
	catData, err := json.Marshal(catalog)
	if err != nil {
		return "", fmt.Errorf("marshaling catalog: %w", err)
	}
	if _, err := f.Write(catData); err != nil {
		return "", fmt.Errorf("writing catalog: %w", err)
	}

	checksum := crc32.NewIEEE()
	checksum.Write(dictData)
	checksum.Write(catData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(catalog)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(generation))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(postingsSize))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsSize))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(catStart))
	binary.LittleEndian.PutUint64(headerBytes[56:64], uint64(len(catData)))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}
