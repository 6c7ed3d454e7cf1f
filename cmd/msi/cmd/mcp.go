package cmd

import (
	"github.com/spf13/cobra"

	"github.com/3worlds/aot/internal/mcpserver"
	"github.com/3worlds/aot/internal/searcher/executor"
)

func newMCPCmd(global *globalOptions) *cobra.Command {
	var indexes []string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve member search to assistants over MCP stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing the
search_members and list_class_members tools over the given index files.

Stdout carries JSON-RPC only; logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			router, err := loadRouter(cmd.Context(), global, indexes)
			if err != nil {
				return err
			}
			defer router.Close()
			return mcpserver.New("msi", Version, executor.NewSharded(router, 0), router).ServeStdio()
		},
	}

	cmd.Flags().StringArrayVarP(&indexes, "index", "i", nil, "Index file as PATH or NAME=PATH (repeatable)")

	return cmd
}
