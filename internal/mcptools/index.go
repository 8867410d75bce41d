package mcptools

import (
	"context"

	"github.com/KaramelBytes/vaultsync-cli/internal/core"
	"github.com/KaramelBytes/vaultsync-cli/internal/syncer"
	"github.com/mark3labs/mcp-go/mcp"
)

// SearchIndexTool handles the search_index MCP tool.
type SearchIndexTool struct {
	svc *core.Service
}

func NewSearchIndexTool(svc *core.Service) *SearchIndexTool {
	return &SearchIndexTool{svc: svc}
}

func (t *SearchIndexTool) Definition() mcp.Tool {
	return mcp.NewTool("search_index",
		mcp.WithDescription("Search indexed vault content. Returns paths ranked by relevance with a short snippet."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 10)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func (t *SearchIndexTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("query")
	if err != nil || q == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	hits, err := t.svc.Search(ctx, q, intArg(req, "limit", 10))
	if err != nil {
		return errorResult("search index", err), nil
	}
	return jsonResult(hits)
}

// ReconcileTool handles the reconcile_index MCP tool.
type ReconcileTool struct {
	svc *core.Service
}

func NewReconcileTool(svc *core.Service) *ReconcileTool {
	return &ReconcileTool{svc: svc}
}

func (t *ReconcileTool) Definition() mcp.Tool {
	return mcp.NewTool("reconcile_index",
		mcp.WithDescription(
			"Bring the content index back in step with the vault: drop records of deleted files, "+
				"refresh records of files edited elsewhere and repair earlier failed updates.",
		),
		mcp.WithBoolean("include_untracked",
			mcp.Description("Also index vault files that have no record (default: false)"),
		),
	)
}

func (t *ReconcileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := t.svc.Reconcile(ctx, syncer.ReconcileOptions{IncludeUntracked: boolArg(req, "include_untracked", false)})
	if err != nil {
		return errorResult("reconcile index", err), nil
	}
	return jsonResult(report)
}
