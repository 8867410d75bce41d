package mcptools

import (
	"context"
	"fmt"

	"github.com/KaramelBytes/vaultsync-cli/internal/core"
	"github.com/KaramelBytes/vaultsync-cli/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
)

// SessionFactory creates a session for model. contextLength overrides the
// model's context window when > 0.
type SessionFactory func(model string, contextLength int) (*session.Session, error)

// OpenSessionTool handles the open_session MCP tool.
type OpenSessionTool struct {
	reg          *session.Registry
	factory      SessionFactory
	defaultModel string
}

func NewOpenSessionTool(reg *session.Registry, factory SessionFactory, defaultModel string) *OpenSessionTool {
	return &OpenSessionTool{reg: reg, factory: factory, defaultModel: defaultModel}
}

func (t *OpenSessionTool) Definition() mcp.Tool {
	return mcp.NewTool("open_session",
		mcp.WithDescription(
			"Open a language-model session and return its id. "+
				"The session fixes the tokenizer and context window used by augment_prompt_with_file.",
		),
		mcp.WithString("model",
			mcp.Description("Model name used to look up the context window (default: configured model)"),
		),
		mcp.WithNumber("context_length",
			mcp.Description("Context window in tokens, overriding the model catalog"),
		),
	)
}

func (t *OpenSessionTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	model := req.GetString("model", t.defaultModel)
	s, err := t.factory(model, intArg(req, "context_length", 0))
	if err != nil {
		return errorResult("open session", err), nil
	}
	t.reg.Register(s)
	return jsonResult(map[string]any{
		"session_id":     s.ID,
		"model":          s.Model,
		"context_length": s.ContextLength(),
	})
}

// CloseSessionTool handles the close_session MCP tool.
type CloseSessionTool struct {
	reg *session.Registry
}

func NewCloseSessionTool(reg *session.Registry) *CloseSessionTool {
	return &CloseSessionTool{reg: reg}
}

func (t *CloseSessionTool) Definition() mcp.Tool {
	return mcp.NewTool("close_session",
		mcp.WithDescription("Close a language-model session."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by open_session"),
		),
	)
}

func (t *CloseSessionTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	if !t.reg.Remove(id) {
		return errorResult("close session", fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("session %s closed", id)), nil
}

// AugmentPromptTool handles the augment_prompt_with_file MCP tool.
type AugmentPromptTool struct {
	svc *core.Service
	reg *session.Registry
}

func NewAugmentPromptTool(svc *core.Service, reg *session.Registry) *AugmentPromptTool {
	return &AugmentPromptTool{svc: svc, reg: reg}
}

func (t *AugmentPromptTool) Definition() mcp.Tool {
	return mcp.NewTool("augment_prompt_with_file",
		mcp.WithDescription(
			"Combine a vault file with a prompt so the result fits the session's context window. "+
				"Content that does not fit is cut at the returned cutoff_offset (bytes into the file) "+
				"and the prompt carries a truncation note.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by open_session"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Vault-relative file path"),
		),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The user prompt"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func (t *AugmentPromptTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("'prompt' is required"), nil
	}
	s, err := t.reg.Get(id)
	if err != nil {
		return errorResult("augment prompt", err), nil
	}
	res, err := t.svc.AugmentPromptWithFile(ctx, p, prompt, s)
	if err != nil {
		return errorResult("augment prompt", err), nil
	}
	return jsonResult(res)
}
