package tools

import (
	"context"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentedit/document"
	"agentedit/workspace"
)

const (
	ToolRead              = "read"
	ToolWrite             = "write"
	ToolReadWorkspaceFile = "read_workspace_file"
	ToolGrep              = "grep"
	ToolReplace           = "replace"
	ToolLs                = "ls"
)

func (d *Dispatcher) registerBuiltins() {
	d.register(mcptypes.NewTool(ToolRead,
		mcptypes.WithDescription("Read the full content of the active document."),
	), d.read)

	d.register(mcptypes.NewTool(ToolWrite,
		mcptypes.WithDescription("Append text to the end of the active document."),
		mcptypes.WithString("content", mcptypes.Required(), mcptypes.Description("Text to append")),
	), d.write)

	d.register(mcptypes.NewTool(ToolReadWorkspaceFile,
		mcptypes.WithDescription("Read a file from the open workspace."),
		mcptypes.WithString("path", mcptypes.Required(), mcptypes.Description("Path relative to the workspace root")),
	), d.readWorkspaceFile)

	d.register(mcptypes.NewTool(ToolGrep,
		mcptypes.WithDescription("Search the active document line by line with a regular expression."),
		mcptypes.WithString("pattern", mcptypes.Required(), mcptypes.Description("Regular expression (RE2 syntax)")),
	), d.grep)

	d.register(mcptypes.NewTool(ToolReplace,
		mcptypes.WithDescription("Replace the first exact occurrence of target in the active document."),
		mcptypes.WithString("target", mcptypes.Required(), mcptypes.Description("Exact text to find")),
		mcptypes.WithString("newContent", mcptypes.Required(), mcptypes.Description("Replacement text")),
	), d.replace)

	d.register(mcptypes.NewTool(ToolLs,
		mcptypes.WithDescription("List every file and directory in the open workspace."),
	), d.ls)
}

func (d *Dispatcher) read(ctx context.Context, inv Invocation) (any, error) {
	return d.doc.Content()
}

func (d *Dispatcher) write(ctx context.Context, inv Invocation) (any, error) {
	content := inv.String("content")
	if err := d.doc.Append(content, document.WithMessageID(inv.MessageID)); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":  true,
		"appended": len([]rune(content)),
	}, nil
}

func (d *Dispatcher) readWorkspaceFile(ctx context.Context, inv Invocation) (any, error) {
	if d.fs == nil {
		return nil, ErrNoWorkspace
	}
	ref, err := d.fs.ResolvePath(d.root, inv.String("path"))
	if err != nil {
		return nil, err
	}
	return d.cache.CachedRead(ctx, ref, d.fs.ReadBytes)
}

func (d *Dispatcher) grep(ctx context.Context, inv Invocation) (any, error) {
	return d.doc.Search(inv.String("pattern"))
}

func (d *Dispatcher) replace(ctx context.Context, inv Invocation) (any, error) {
	target := inv.String("target")
	if err := d.doc.Replace(target, inv.String("newContent"), document.WithMessageID(inv.MessageID)); err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("replaced %d characters", len([]rune(target))),
	}, nil
}

func (d *Dispatcher) ls(ctx context.Context, inv Invocation) (any, error) {
	if d.fs == nil {
		return nil, ErrNoWorkspace
	}
	tree, err := d.fs.ListTree(ctx, d.root)
	if err != nil {
		return nil, err
	}
	return workspace.RenderTree(tree), nil
}
