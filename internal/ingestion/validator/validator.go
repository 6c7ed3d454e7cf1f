// Package validator checks an uploaded member search index before it is
// published: the source name, the body, the JavaScript syntax and every
// entry's label/anchor consistency.
package validator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/3worlds/aot/internal/indexer/shard"
	"github.com/3worlds/aot/internal/jsindex"
	"github.com/3worlds/aot/internal/member"
)

// ValidationError holds per-field failure messages and, for documents that
// parsed, the per-entry report.
type ValidationError struct {
	Fields map[string]string
	Report *member.Report
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	if e.Report != nil && e.Report.Errors > 0 {
		parts = append(parts, fmt.Sprintf("entries:%d invalid", e.Report.Errors))
	}
	return strings.Join(parts, "; ")
}

// ValidateIndex parses body and validates every entry. Syntax errors are
// returned as *jsindex.SyntaxError; anything else rejected is a
// *ValidationError. Warnings are reported but do not reject the index.
func ValidateIndex(ctx context.Context, source string, body []byte) (*jsindex.Document, *member.Report, error) {
	errs := make(map[string]string)
	if !shard.ValidName(source) {
		errs["source"] = "source must be 1-64 letters, digits, '.', '_' or '-' and start with a letter or digit"
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		errs["body"] = "index body is required"
	}
	if len(errs) > 0 {
		return nil, nil, &ValidationError{Fields: errs}
	}

	doc, err := jsindex.Parse(ctx, body)
	if err != nil {
		return nil, nil, err
	}
	if len(doc.Entries) == 0 {
		return nil, nil, &ValidationError{Fields: map[string]string{"entries": "index has no entries"}}
	}
	report := member.ValidateAll(doc.Entries)
	if !report.OK() {
		return nil, report, &ValidationError{Fields: map[string]string{}, Report: report}
	}
	return doc, report, nil
}
