package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/3worlds/aot/internal/jsindex"
	"github.com/3worlds/aot/internal/member"
)

func newRenderCmd() *cobra.Command {
	var (
		index string
		out   string
	)

	cmd := &cobra.Command{
		Use:   "render --index FILE",
		Short: "Rewrite an index file in canonical form",
		Long: `Parse an index file, sort its entries into documentation order and write
it back in the compact layout javadoc emits. Writes to stdout unless --out
is given. The file may also be passed as the only argument.

Examples:
  msi render --index docs/member-search-index.js --out docs/member-search-index.js
  msi render build/index.json > member-search-index.js`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				index = args[0]
			}
			if index == "" {
				return fmt.Errorf("an index file is required: pass --index FILE")
			}
			doc, err := jsindex.ParseFile(cmd.Context(), index)
			if err != nil {
				return err
			}
			member.Sort(doc.Entries)
			return writeIndex(cmd, out, doc)
		},
	}

	cmd.Flags().StringVarP(&index, "index", "i", "", "Index file to render")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")

	return cmd
}

// writeIndex renders doc to path, or to stdout when path is empty. The file
// is only replaced once rendering succeeded.
func writeIndex(cmd *cobra.Command, path string, doc *jsindex.Document) error {
	if path == "" {
		return jsindex.Render(cmd.OutOrStdout(), doc)
	}
	var buf bytes.Buffer
	if err := jsindex.Render(&buf, doc); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
