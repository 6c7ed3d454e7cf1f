package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/3worlds/aot/internal/jsindex"
	"github.com/3worlds/aot/internal/member"
)

type validateOptions struct {
	strict bool
	format string
}

// fileReport is the validate outcome for one file.
type fileReport struct {
	Path   string         `json:"path"`
	Syntax string         `json:"syntax_error,omitempty"`
	Report *member.Report `json:"report,omitempty"`
}

func (r fileReport) failed(strict bool) bool {
	if r.Syntax != "" {
		return true
	}
	return !r.Report.OK() || (strict && r.Report.Warnings > 0)
}

func newValidateCmd() *cobra.Command {
	var opts validateOptions

	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check index files for syntax and entry errors",
		Long: `Parse each index file and validate every entry: p, c and l must be
present, and u, when present, must be the anchor form of l. Duplicate
anchors are reported as warnings.

Examples:
  msi validate docs/member-search-index.js
  msi validate --strict --format json build/*.js`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("unknown format %q", opts.format)
			}
			reports := make([]fileReport, 0, len(args))
			failed := 0
			for _, path := range args {
				r := validateFile(cmd, path)
				if r.failed(opts.strict) {
					failed++
				}
				reports = append(reports, r)
			}
			out := cmd.OutOrStdout()
			if opts.format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(reports); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					printReport(out, r)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) failed validation", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Treat warnings as failures")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func validateFile(cmd *cobra.Command, path string) fileReport {
	doc, err := jsindex.ParseFile(cmd.Context(), path)
	if err != nil {
		var syn *jsindex.SyntaxError
		if errors.As(err, &syn) {
			return fileReport{Path: path, Syntax: syn.Error()}
		}
		return fileReport{Path: path, Syntax: err.Error()}
	}
	return fileReport{Path: path, Report: member.ValidateAll(doc.Entries)}
}

func printReport(w io.Writer, r fileReport) {
	if r.Syntax != "" {
		fmt.Fprintf(w, "%s: %s\n", r.Path, r.Syntax)
		return
	}
	fmt.Fprintf(w, "%s: %d entries, %d errors, %d warnings\n",
		r.Path, r.Report.Entries, r.Report.Errors, r.Report.Warnings)
	for _, issue := range r.Report.Issues {
		fmt.Fprintf(w, "  #%d %s: %s\n", issue.Index, issue.Entry.QualifiedName(), issue.Issue)
	}
}
