package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3worlds/aot/internal/javasrc"
	"github.com/3worlds/aot/internal/jsindex"
)

type genOptions struct {
	src         string
	out         string
	packages    []string
	known       []string
	concurrency int
}

func newGenCmd() *cobra.Command {
	var opts genOptions

	cmd := &cobra.Command{
		Use:   "gen --src DIR",
		Short: "Generate an index from Java sources",
		Long: `Parse every .java file under --src and emit the member search index
javadoc would produce for its public and protected members.

Existing indexes given with --known seed the type table, so parameter types
from other libraries resolve to their packages.

Examples:
  msi gen --src src/main/java --out docs/member-search-index.js
  msi gen --src . --package au.edu.anu.aot --known omugi-index.js`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := javasrc.Options{
				Packages:    opts.packages,
				Concurrency: opts.concurrency,
			}
			for _, path := range opts.known {
				doc, err := jsindex.ParseFile(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("known index: %w", err)
				}
				gen.Known = append(gen.Known, doc.Entries...)
			}

			result, err := javasrc.NewGenerator(gen).Generate(cmd.Context(), opts.src)
			if err != nil {
				return err
			}
			for _, w := range result.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			if err := writeIndex(cmd, opts.out, jsindex.NewDocument(result.Entries)); err != nil {
				return err
			}
			if opts.out != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d entries from %d files to %s\n",
					len(result.Entries), result.Files, opts.out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.src, "src", "", "Java source root")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringSliceVarP(&opts.packages, "package", "p", nil, "Only include these packages and their subpackages")
	cmd.Flags().StringArrayVar(&opts.known, "known", nil, "Existing index used to resolve external types (repeatable)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Parallel parsers (default GOMAXPROCS)")
	_ = cmd.MarkFlagRequired("src")

	return cmd
}
