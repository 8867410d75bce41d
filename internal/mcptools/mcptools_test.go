package mcptools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/KaramelBytes/vaultsync-cli/internal/core"
	"github.com/KaramelBytes/vaultsync-cli/internal/index"
	"github.com/KaramelBytes/vaultsync-cli/internal/session"
	"github.com/KaramelBytes/vaultsync-cli/internal/syncer"
	"github.com/KaramelBytes/vaultsync-cli/internal/vault"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestService(t *testing.T) *core.Service {
	t.Helper()
	store, err := vault.NewLocalStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	idx := index.NewMemoryIndex()
	return core.New(store, idx, syncer.New(store, idx))
}

func heuristicFactory(model string, contextLength int) (*session.Session, error) {
	return session.New(session.Options{
		Model:         model,
		ContextLength: contextLength,
		Tokenizer:     session.HeuristicTokenizer{},
	})
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	res, err := h(context.Background(), makeReq(args))
	if err != nil {
		t.Fatalf("handler returned protocol error: %v", err)
	}
	return res
}

// ─── Vault tools ─────────────────────────────────────────────────────────────

func TestTreeTool_Definition(t *testing.T) {
	def := NewTreeTool(newTestService(t)).Definition()
	if def.Name != "get_vault_tree" {
		t.Errorf("tool name = %q, want %q", def.Name, "get_vault_tree")
	}
	if _, ok := def.InputSchema.Properties["root"]; !ok {
		t.Error("missing 'root' parameter")
	}
}

func TestCreateReadMoveTree(t *testing.T) {
	svc := newTestService(t)

	res := call(t, NewCreateFileTool(svc).Handle, map[string]interface{}{"path": "a/b/note.md", "content": "hello vault"})
	if res.IsError {
		t.Fatalf("create_file failed: %s", resultText(res))
	}

	res = call(t, NewReadFileTool(svc).Handle, map[string]interface{}{"path": "a/b/note.md"})
	if got := resultText(res); got != "hello vault" {
		t.Fatalf("read_file = %q", got)
	}

	res = call(t, NewMoveEntryTool(svc).Handle, map[string]interface{}{"from": "a/b/note.md", "to": "c/note.md"})
	if res.IsError {
		t.Fatalf("move_entry failed: %s", resultText(res))
	}

	res = call(t, NewTreeTool(svc).Handle, map[string]interface{}{})
	var tree vault.VaultEntry
	if err := json.Unmarshal([]byte(resultText(res)), &tree); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if vault.FindByPath(&tree, "c/note.md") == nil {
		t.Fatalf("moved file missing from tree: %s", resultText(res))
	}

	paths, err := svc.Records(context.Background(), "")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(paths) != 1 || paths[0] != "c/note.md" {
		t.Fatalf("records = %v", paths)
	}
}

func TestWriteFileTool_IndexFlag(t *testing.T) {
	svc := newTestService(t)
	write := NewWriteFileTool(svc)

	call(t, write.Handle, map[string]interface{}{"path": "plain.md", "content": "x"})
	call(t, write.Handle, map[string]interface{}{"path": "indexed.md", "content": "y", "index": true})

	paths, _ := svc.Records(context.Background(), "")
	if len(paths) != 1 || paths[0] != "indexed.md" {
		t.Fatalf("records = %v", paths)
	}
}

func TestToolErrorsAreResults(t *testing.T) {
	svc := newTestService(t)

	res := call(t, NewReadFileTool(svc).Handle, map[string]interface{}{})
	if !res.IsError {
		t.Error("read_file without path should fail")
	}
	res = call(t, NewReadFileTool(svc).Handle, map[string]interface{}{"path": "missing.md"})
	if !res.IsError || !strings.Contains(resultText(res), "not found") {
		t.Errorf("read_file missing = %q", resultText(res))
	}
	res = call(t, NewMoveEntryTool(svc).Handle, map[string]interface{}{"from": "nope", "to": "other"})
	if !res.IsError {
		t.Error("move_entry of missing source should fail")
	}
}

func TestCreateDirectoryTool_Idempotent(t *testing.T) {
	svc := newTestService(t)
	tool := NewCreateDirectoryTool(svc)
	for i := 0; i < 2; i++ {
		if res := call(t, tool.Handle, map[string]interface{}{"path": "x/y"}); res.IsError {
			t.Fatalf("create_directory #%d failed: %s", i, resultText(res))
		}
	}
}

func TestJoinPathTool(t *testing.T) {
	tool := NewJoinPathTool()
	res := call(t, tool.Handle, map[string]interface{}{"parts": []interface{}{"notes", "../journal", "day.md"}})
	if got := resultText(res); got != "journal/day.md" {
		t.Fatalf("join_path = %q", got)
	}
	res = call(t, tool.Handle, map[string]interface{}{"parts": []interface{}{"..", "etc"}})
	if !res.IsError {
		t.Error("join_path escaping the vault should fail")
	}
}

// ─── Session tools ───────────────────────────────────────────────────────────

func TestSessionLifecycleAndAugment(t *testing.T) {
	svc := newTestService(t)
	reg := session.NewRegistry()

	call(t, NewCreateFileTool(svc).Handle, map[string]interface{}{"path": "doc.md", "content": strings.Repeat("lorem ipsum ", 200)})

	res := call(t, NewOpenSessionTool(reg, heuristicFactory, "openai/gpt-4o-mini").Handle,
		map[string]interface{}{"context_length": float64(100)})
	if res.IsError {
		t.Fatalf("open_session failed: %s", resultText(res))
	}
	var opened struct {
		SessionID     string `json:"session_id"`
		ContextLength int    `json:"context_length"`
	}
	if err := json.Unmarshal([]byte(resultText(res)), &opened); err != nil {
		t.Fatalf("decode open_session: %v", err)
	}
	if opened.ContextLength != 100 {
		t.Errorf("context_length = %d", opened.ContextLength)
	}

	augment := NewAugmentPromptTool(svc, reg)
	res = call(t, augment.Handle, map[string]interface{}{
		"session_id": opened.SessionID,
		"path":       "doc.md",
		"prompt":     "Summarize this.",
	})
	if res.IsError {
		t.Fatalf("augment failed: %s", resultText(res))
	}
	var out struct {
		Prompt       string `json:"prompt"`
		CutoffOffset int    `json:"cutoff_offset"`
		Truncated    bool   `json:"truncated"`
		Tokens       int    `json:"tokens"`
	}
	if err := json.Unmarshal([]byte(resultText(res)), &out); err != nil {
		t.Fatalf("decode augment: %v", err)
	}
	if !out.Truncated || out.Tokens > 100 || out.CutoffOffset <= 0 {
		t.Fatalf("unexpected augment result: %+v", out)
	}

	closeTool := NewCloseSessionTool(reg)
	if res := call(t, closeTool.Handle, map[string]interface{}{"session_id": opened.SessionID}); res.IsError {
		t.Fatalf("close_session failed: %s", resultText(res))
	}
	if res := call(t, closeTool.Handle, map[string]interface{}{"session_id": opened.SessionID}); !res.IsError {
		t.Error("closing twice should fail")
	}

	res = call(t, augment.Handle, map[string]interface{}{
		"session_id": opened.SessionID,
		"path":       "doc.md",
		"prompt":     "again",
	})
	if !res.IsError || !strings.Contains(resultText(res), session.ErrSessionNotFound.Error()) {
		t.Fatalf("augment after close = %q", resultText(res))
	}
}

// ─── Index tools ─────────────────────────────────────────────────────────────

func TestSearchAndReconcileTools(t *testing.T) {
	svc := newTestService(t)
	call(t, NewCreateFileTool(svc).Handle, map[string]interface{}{"path": "go.md", "content": "channels and goroutines"})

	res := call(t, NewSearchIndexTool(svc).Handle, map[string]interface{}{"query": "goroutines", "limit": float64(3)})
	if res.IsError || !strings.Contains(resultText(res), "go.md") {
		t.Fatalf("search_index = %q", resultText(res))
	}
	if res := call(t, NewSearchIndexTool(svc).Handle, map[string]interface{}{}); !res.IsError {
		t.Error("search without query should fail")
	}

	res = call(t, NewReconcileTool(svc).Handle, map[string]interface{}{})
	if res.IsError {
		t.Fatalf("reconcile_index failed: %s", resultText(res))
	}
	var report syncer.ReconcileReport
	if err := json.Unmarshal([]byte(resultText(res)), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Checked != 1 {
		t.Errorf("checked = %d", report.Checked)
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(newTestService(t), session.NewRegistry(), heuristicFactory, "")
	if s == nil {
		t.Fatal("nil server")
	}
	tools := s.ListTools()
	for _, name := range []string{
		"get_vault_tree", "read_file", "write_file", "create_file", "create_directory",
		"move_entry", "join_path", "open_session", "close_session",
		"augment_prompt_with_file", "search_index", "reconcile_index",
	} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
}
