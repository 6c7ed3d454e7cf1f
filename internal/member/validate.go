package member

import (
	"fmt"
	"strings"
)

// Severity grades a validation issue. Errors make an entry unusable;
// warnings flag records a docs generator would not have written.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding on one field of an entry.
type Issue struct {
	Field    string   `json:"field"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s: %s", i.Severity, i.Field, i.Message)
}

// Validate checks an entry against the member search index schema: p, c and
// l must be present, and u, when present, must be the URL-encoded anchor
// form of l.
func Validate(e Entry) []Issue {
	var issues []Issue
	if strings.TrimSpace(e.Package) == "" {
		issues = append(issues, Issue{Field: "p", Severity: SeverityError, Message: "package is required"})
	}
	if strings.TrimSpace(e.Class) == "" {
		issues = append(issues, Issue{Field: "c", Severity: SeverityError, Message: "class is required"})
	}
	if strings.TrimSpace(e.Label) == "" {
		issues = append(issues, Issue{Field: "l", Severity: SeverityError, Message: "label is required"})
		return issues
	}
	if e.IsExecutable() && !strings.HasSuffix(e.Label, ")") {
		issues = append(issues, Issue{Field: "l", Severity: SeverityError, Message: "unterminated parameter list"})
		return issues
	}

	if e.URL == "" {
		if anchorDiffers(e) {
			issues = append(issues, Issue{
				Field:    "u",
				Severity: SeverityWarning,
				Message:  "anchor missing where it differs from the label",
			})
		}
		return issues
	}
	if err := CheckAnchor(e); err != nil {
		issues = append(issues, Issue{Field: "u", Severity: SeverityError, Message: err.Error()})
	}
	return issues
}

// anchorDiffers reports whether the anchor of an executable member is not
// the label itself, which is when the docs generator writes u: constructors
// (<init>), labels that erase or encode to something else, and parameters
// of reference type, which anchors spell fully qualified.
func anchorDiffers(e Entry) bool {
	if !e.IsExecutable() {
		return false
	}
	if e.Kind() == KindConstructor {
		return true
	}
	params := e.Params()
	erased := make([]string, len(params))
	for i, p := range params {
		erased[i] = Erase(p)
		if !isPrimitive(strings.TrimSuffix(erased[i], arraySuffix(erased[i]))) {
			return true
		}
	}
	return EncodeAnchor(e.Name(), erased) != e.Label
}

func isPrimitive(t string) bool {
	switch t {
	case "boolean", "byte", "char", "short", "int", "long", "float", "double":
		return true
	}
	return false
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CheckAnchor verifies that e.URL is a valid URL-encoded transform of
// e.Label. Entries without a URL are trivially valid.
func CheckAnchor(e Entry) error {
	if e.URL == "" {
		return nil
	}
	for i := 0; i < len(e.URL); i++ {
		if c := e.URL[i]; c != '%' && !anchorSafe(c) {
			return fmt.Errorf("anchor contains unencoded character %q", c)
		}
	}
	decoded, err := Unescape(e.URL)
	if err != nil {
		return err
	}

	if !e.IsExecutable() {
		if decoded != e.Label {
			return fmt.Errorf("field anchor %q does not match label %q", decoded, e.Label)
		}
		return nil
	}

	name, anchorParams, ok := splitSignature(decoded)
	if !ok {
		return fmt.Errorf("anchor %q is not a signature", decoded)
	}
	switch {
	case name == e.Name():
	case name == ConstructorName && e.Kind() == KindConstructor:
	default:
		return fmt.Errorf("anchor names %q but label names %q", name, e.Name())
	}

	labelParams := e.Params()
	if len(anchorParams) != len(labelParams) {
		return fmt.Errorf("anchor has %d parameters, label has %d", len(anchorParams), len(labelParams))
	}
	for i, lp := range labelParams {
		if err := matchParam(Erase(lp), anchorParams[i]); err != nil {
			return fmt.Errorf("parameter %d: %w", i+1, err)
		}
	}
	return nil
}

// matchParam accepts an anchor parameter that is the erased label type
// itself or a qualified form of it.
func matchParam(labelType, anchorType string) error {
	if strings.ContainsAny(anchorType, " <>") {
		return fmt.Errorf("anchor type %q is not erased", anchorType)
	}
	if anchorType == labelType || strings.HasSuffix(anchorType, "."+labelType) {
		return nil
	}
	if looksLikeTypeVariable(labelType) && arraySuffix(labelType) == arraySuffix(anchorType) {
		return nil
	}
	return fmt.Errorf("anchor type %q does not match label type %q", anchorType, labelType)
}

// EntryIssue ties an Issue to the entry it was found on.
type EntryIssue struct {
	Index int   `json:"index"`
	Entry Entry `json:"entry"`
	Issue
}

// Report is the outcome of validating a whole index.
type Report struct {
	Entries  int          `json:"entries"`
	Errors   int          `json:"errors"`
	Warnings int          `json:"warnings"`
	Issues   []EntryIssue `json:"issues,omitempty"`
}

// OK reports whether the index has no errors.
func (r *Report) OK() bool {
	return r.Errors == 0
}

// ValidateAll validates every entry and flags duplicate keys, which would
// make two records address the same anchor.
func ValidateAll(entries []Entry) *Report {
	report := &Report{Entries: len(entries)}
	seen := make(map[string]int, len(entries))
	add := func(idx int, e Entry, issue Issue) {
		report.Issues = append(report.Issues, EntryIssue{Index: idx, Entry: e, Issue: issue})
		if issue.Severity == SeverityError {
			report.Errors++
		} else {
			report.Warnings++
		}
	}
	for i, e := range entries {
		for _, issue := range Validate(e) {
			add(i, e, issue)
		}
		key := e.Key()
		if first, dup := seen[key]; dup {
			add(i, e, Issue{
				Field:    "u",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("duplicates entry %d", first),
			})
			continue
		}
		seen[key] = i
	}
	return report
}
