package mcptools

import (
	"context"
	"fmt"

	"github.com/KaramelBytes/vaultsync-cli/internal/core"
	"github.com/mark3labs/mcp-go/mcp"
)

// TreeTool handles the get_vault_tree MCP tool.
type TreeTool struct {
	svc *core.Service
}

func NewTreeTool(svc *core.Service) *TreeTool {
	return &TreeTool{svc: svc}
}

// Definition returns the MCP tool definition for get_vault_tree.
func (t *TreeTool) Definition() mcp.Tool {
	return mcp.NewTool("get_vault_tree",
		mcp.WithDescription("Return the directory tree of the vault, or of a subdirectory, as nested JSON entries with vault-relative paths."),
		mcp.WithString("root",
			mcp.Description("Vault-relative directory to start from (default: the vault root)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the get_vault_tree tool call.
func (t *TreeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree, err := t.svc.GetVaultTree(ctx, req.GetString("root", ""))
	if err != nil {
		return errorResult("build vault tree", err), nil
	}
	return jsonResult(tree)
}

// ReadFileTool handles the read_file MCP tool.
type ReadFileTool struct {
	svc *core.Service
}

func NewReadFileTool(svc *core.Service) *ReadFileTool {
	return &ReadFileTool{svc: svc}
}

func (t *ReadFileTool) Definition() mcp.Tool {
	return mcp.NewTool("read_file",
		mcp.WithDescription("Read the raw content of a vault file."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Vault-relative file path"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func (t *ReadFileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	content, err := t.svc.ReadFile(ctx, p)
	if err != nil {
		return errorResult("read file", err), nil
	}
	return mcp.NewToolResultText(content), nil
}

// WriteFileTool handles the write_file MCP tool.
type WriteFileTool struct {
	svc *core.Service
}

func NewWriteFileTool(svc *core.Service) *WriteFileTool {
	return &WriteFileTool{svc: svc}
}

func (t *WriteFileTool) Definition() mcp.Tool {
	return mcp.NewTool("write_file",
		mcp.WithDescription(
			"Save content to an existing vault file. "+
				"With index=true the content index is updated alongside the save; "+
				"files that are already indexed are always kept current.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Vault-relative file path"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("New file content"),
		),
		mcp.WithBoolean("index",
			mcp.Description("Index the file alongside the save (default: false)"),
		),
	)
}

func (t *WriteFileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("'content' is required"), nil
	}
	if err := t.svc.SyncOnWrite(ctx, p, content, boolArg(req, "index", false)); err != nil {
		return errorResult("write file", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved %s (%d bytes)", p, len(content))), nil
}

// CreateFileTool handles the create_file MCP tool.
type CreateFileTool struct {
	svc *core.Service
}

func NewCreateFileTool(svc *core.Service) *CreateFileTool {
	return &CreateFileTool{svc: svc}
}

func (t *CreateFileTool) Definition() mcp.Tool {
	return mcp.NewTool("create_file",
		mcp.WithDescription("Create a vault file, including missing parent directories, and index it."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Vault-relative file path"),
		),
		mcp.WithString("content",
			mcp.Description("Initial file content (default: empty)"),
		),
	)
}

func (t *CreateFileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	if err := t.svc.SyncOnCreate(ctx, p, req.GetString("content", "")); err != nil {
		return errorResult("create file", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created %s", p)), nil
}

// CreateDirectoryTool handles the create_directory MCP tool.
type CreateDirectoryTool struct {
	svc *core.Service
}

func NewCreateDirectoryTool(svc *core.Service) *CreateDirectoryTool {
	return &CreateDirectoryTool{svc: svc}
}

func (t *CreateDirectoryTool) Definition() mcp.Tool {
	return mcp.NewTool("create_directory",
		mcp.WithDescription("Create a vault directory and any missing parents. Existing directories are left as they are."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Vault-relative directory path"),
		),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func (t *CreateDirectoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	if err := t.svc.CreateDirectory(ctx, p); err != nil {
		return errorResult("create directory", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("directory %s ready", p)), nil
}

// MoveEntryTool handles the move_entry MCP tool.
type MoveEntryTool struct {
	svc *core.Service
}

func NewMoveEntryTool(svc *core.Service) *MoveEntryTool {
	return &MoveEntryTool{svc: svc}
}

func (t *MoveEntryTool) Definition() mcp.Tool {
	return mcp.NewTool("move_entry",
		mcp.WithDescription("Move or rename a vault file or directory. Index records follow the move without re-indexing."),
		mcp.WithString("from",
			mcp.Required(),
			mcp.Description("Current vault-relative path"),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("New vault-relative path"),
		),
	)
}

func (t *MoveEntryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError("'from' is required"), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError("'to' is required"), nil
	}
	if err := t.svc.SyncOnMove(ctx, from, to); err != nil {
		return errorResult("move entry", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved %s -> %s", from, to)), nil
}

// JoinPathTool handles the join_path MCP tool.
type JoinPathTool struct{}

func NewJoinPathTool() *JoinPathTool {
	return &JoinPathTool{}
}

func (t *JoinPathTool) Definition() mcp.Tool {
	return mcp.NewTool("join_path",
		mcp.WithDescription("Join vault path segments and clean the result. Paths leaving the vault are rejected."),
		mcp.WithArray("parts",
			mcp.Required(),
			mcp.Description("Path segments to join"),
			mcp.WithStringItems(),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func (t *JoinPathTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parts, err := req.RequireStringSlice("parts")
	if err != nil || len(parts) == 0 {
		return mcp.NewToolResultError("'parts' must be a non-empty list of strings"), nil
	}
	p, err := core.JoinPath(parts...)
	if err != nil {
		return errorResult("join path", err), nil
	}
	return mcp.NewToolResultText(p), nil
}
