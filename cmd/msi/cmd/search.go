package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/3worlds/aot/internal/searcher/executor"
	"github.com/3worlds/aot/internal/searcher/parser"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	indexes []string
	limit   int
	source  string
	format  string
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search index files for members",
		Long: `Search members by name across one or more index files.

Queries match camelCase fragments and initials, exclude words with NOT or a
leading '-', and accept the qualifiers p:<package>, c:<class> and
kind:<method|field|constructor>.

Examples:
  msi search --index docs/member-search-index.js checkArch
  msi search --index aot=docs/a.js --index omugi=docs/b.js "c:Tree kind:method"
  msi search -n 5 --format json getRoot`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("unknown format %q", opts.format)
			}
			if opts.limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			plan, err := parser.Parse(strings.Join(args, " "))
			if err != nil {
				return err
			}
			router, err := loadRouter(cmd.Context(), global, opts.indexes)
			if err != nil {
				return err
			}
			defer router.Close()

			result, err := executor.NewSharded(router, 0).Execute(cmd.Context(), plan, opts.limit, opts.source)
			if err != nil {
				return err
			}
			if opts.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printResults(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&opts.indexes, "index", "i", nil, "Index file as PATH or NAME=PATH (repeatable)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "Search only this source")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func printResults(w io.Writer, result *executor.SearchResult) {
	if len(result.Results) == 0 {
		fmt.Fprintf(w, "No members found matching %q\n", result.Query)
	}
	for i, hit := range result.Results {
		e := hit.Entry()
		fmt.Fprintf(w, "%2d. %s.%s.%s [%s]\n", i+1, e.Package, e.Class, e.Label, e.Kind())
		fmt.Fprintf(w, "    %s (%s, score %.2f)\n", e.Href(), hit.Source, hit.Score)
	}
	if len(result.Results) > 0 {
		fmt.Fprintf(w, "\n%d of %d match(es)\n", len(result.Results), result.TotalHits)
	}
	if len(result.FailedSources) > 0 {
		fmt.Fprintf(w, "sources unavailable: %s\n", strings.Join(result.FailedSources, ", "))
	}
}
