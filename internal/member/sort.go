package member

import (
	"slices"
	"strings"
)

// Compare orders entries the way generated indexes list them: by
// case-folded label, then package, then class.
func Compare(a, b Entry) int {
	if c := strings.Compare(strings.ToLower(a.Label), strings.ToLower(b.Label)); c != 0 {
		return c
	}
	if c := strings.Compare(a.Package, b.Package); c != 0 {
		return c
	}
	if c := strings.Compare(a.Class, b.Class); c != 0 {
		return c
	}
	if c := strings.Compare(a.Label, b.Label); c != 0 {
		return c
	}
	return strings.Compare(a.URL, b.URL)
}

// Sort sorts entries in place in index order.
func Sort(entries []Entry) {
	slices.SortStableFunc(entries, Compare)
}
