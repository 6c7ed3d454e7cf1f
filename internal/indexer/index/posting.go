package index

// Field flags record which parts of an entry a term occurred in.
type Field uint8

const (
	FieldName Field = 1 << iota
	FieldParams
	FieldClass
	FieldPackage
)

// Has reports whether f includes every flag in other.
func (f Field) Has(other Field) bool {
	return f&other == other
}

// Posting records the occurrences of one term in one entry, addressed by
// the entry's key.
type Posting struct {
	Key       string `json:"k"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p"`
	Fields    Field  `json:"m"`
}

type PostingList []Posting

type TermEntry struct {
	Term     string      `json:"t"`
	Postings PostingList `json:"p"`
}
