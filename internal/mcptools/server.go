package mcptools

import (
	"github.com/KaramelBytes/vaultsync-cli/internal/core"
	"github.com/KaramelBytes/vaultsync-cli/internal/session"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// NewServer creates the MCP server with every vault tool registered.
func NewServer(svc *core.Service, reg *session.Registry, factory SessionFactory, defaultModel string) *server.MCPServer {
	s := server.NewMCPServer(
		"vaultsync",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	tree := NewTreeTool(svc)
	s.AddTool(tree.Definition(), tree.Handle)
	read := NewReadFileTool(svc)
	s.AddTool(read.Definition(), read.Handle)
	write := NewWriteFileTool(svc)
	s.AddTool(write.Definition(), write.Handle)
	create := NewCreateFileTool(svc)
	s.AddTool(create.Definition(), create.Handle)
	mkdir := NewCreateDirectoryTool(svc)
	s.AddTool(mkdir.Definition(), mkdir.Handle)
	move := NewMoveEntryTool(svc)
	s.AddTool(move.Definition(), move.Handle)
	join := NewJoinPathTool()
	s.AddTool(join.Definition(), join.Handle)

	open := NewOpenSessionTool(reg, factory, defaultModel)
	s.AddTool(open.Definition(), open.Handle)
	closeTool := NewCloseSessionTool(reg)
	s.AddTool(closeTool.Definition(), closeTool.Handle)
	augment := NewAugmentPromptTool(svc, reg)
	s.AddTool(augment.Definition(), augment.Handle)

	search := NewSearchIndexTool(svc)
	s.AddTool(search.Definition(), search.Handle)
	reconcile := NewReconcileTool(svc)
	s.AddTool(reconcile.Definition(), reconcile.Handle)

	return s
}

const instructions = `vaultsync keeps a content index in step with a file vault.
Use write_file, create_file and move_entry for every change so the index follows.
Open a session before augment_prompt_with_file; close it when done.`
