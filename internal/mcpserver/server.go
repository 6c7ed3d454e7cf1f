// Package mcpserver exposes member search to assistants as Model Context
// Protocol tools served over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/3worlds/aot/internal/indexer"
	"github.com/3worlds/aot/internal/member"
	"github.com/3worlds/aot/internal/searcher/executor"
	"github.com/3worlds/aot/internal/searcher/parser"
)

// Tool names
const (
	ToolSearchMembers    = "search_members"
	ToolListClassMembers = "list_class_members"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

type Searcher interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int, source string) (*executor.SearchResult, error)
}

// Catalog resolves loaded sources. shard.Router implements it.
type Catalog interface {
	Sources() []string
	Route(name string) (*indexer.Engine, error)
}

type Server struct {
	mcpServer *server.MCPServer
	searcher  Searcher
	catalog   Catalog
	logger    *slog.Logger
}

// New creates the server and registers its tools.
func New(name, version string, searcher Searcher, catalog Catalog) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version),
		searcher:  searcher,
		catalog:   catalog,
		logger:    slog.Default().With("component", "mcp-server"),
	}
	s.mcpServer.AddTool(SearchMembersTool(), s.HandleSearchMembers)
	s.mcpServer.AddTool(ListClassMembersTool(), s.HandleListClassMembers)
	return s
}

// ServeStdio serves the tools on stdin/stdout until the client hangs up.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server starting", "sources", s.catalog.Sources())
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("serving mcp: %w", err)
	}
	return nil
}

func SearchMembersTool() mcp.Tool {
	return mcp.NewTool(ToolSearchMembers,
		mcp.WithDescription("Search Java API members (methods, fields, constructors) by name. "+
			"Supports camelCase fragments, initials, NOT/-word exclusions and the qualifiers "+
			"p:<package>, c:<class> and kind:<method|field|constructor>."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query, e.g. 'checkArch' or 'c:Archetypes kind:field'")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum results (default %d, max %d)", defaultLimit, maxLimit))),
		mcp.WithString("source", mcp.Description("Restrict the search to one loaded index")),
	)
}

func ListClassMembersTool() mcp.Tool {
	return mcp.NewTool(ToolListClassMembers,
		mcp.WithDescription("List every member of a class in documentation order"),
		mcp.WithString("class", mcp.Required(), mcp.Description("Simple class name, e.g. 'Archetypes'")),
		mcp.WithString("package", mcp.Description("Fully qualified package, to disambiguate classes sharing a name")),
	)
}

func (s *Server) HandleSearchMembers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(mcp.ParseString(req, "query", ""))
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	limit := int(mcp.ParseFloat64(req, "limit", defaultLimit))
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	source := mcp.ParseString(req, "source", "")

	plan, err := parser.Parse(query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid query: %v", err)), nil
	}
	result, err := s.searcher.Execute(ctx, plan, limit, source)
	if err != nil {
		s.logger.Warn("search failed", "query", query, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Search failed: %v", err)), nil
	}
	if len(result.Results) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No members found matching '%s'", query)), nil
	}

	lines := make([]string, 0, len(result.Results))
	for _, hit := range result.Results {
		lines = append(lines, formatHit(hit))
	}
	text := fmt.Sprintf("Found %d member(s) matching '%s', showing %d:\n- %s",
		result.TotalHits, query, len(result.Results), strings.Join(lines, "\n- "))
	if len(result.FailedSources) > 0 {
		text += fmt.Sprintf("\n(sources unavailable: %s)", strings.Join(result.FailedSources, ", "))
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) HandleListClassMembers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	class := strings.TrimSpace(mcp.ParseString(req, "class", ""))
	if class == "" {
		return mcp.NewToolResultError("class parameter is required"), nil
	}
	pkg := strings.TrimSpace(mcp.ParseString(req, "package", ""))

	var found []member.Entry
	packages := make(map[string]struct{})
	for _, name := range s.catalog.Sources() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		engine, err := s.catalog.Route(name)
		if err != nil {
			continue
		}
		for _, e := range engine.Entries() {
			if e.Class != class || (pkg != "" && e.Package != pkg) {
				continue
			}
			packages[e.Package] = struct{}{}
			found = append(found, e)
		}
	}
	// Sources are loaded separately; documentation order spans all of them.
	member.Sort(found)
	lines := make([]string, len(found))
	for i, e := range found {
		lines[i] = fmt.Sprintf("%s [%s] %s", e.Label, e.Kind(), e.Href())
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No class '%s' found", class)), nil
	}
	header := fmt.Sprintf("%d member(s) of %s", len(lines), class)
	if len(packages) > 1 {
		header += fmt.Sprintf(" across %d packages; pass 'package' to narrow", len(packages))
	}
	return mcp.NewToolResultText(header + ":\n- " + strings.Join(lines, "\n- ")), nil
}

func formatHit(hit executor.Hit) string {
	e := hit.Entry()
	return fmt.Sprintf("%s.%s.%s [%s] %s (score %.2f, %s)",
		e.Package, e.Class, e.Label, e.Kind(), e.Href(), hit.Score, hit.Source)
}
