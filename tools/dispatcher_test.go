package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentedit/document"
	"agentedit/model"
	"agentedit/workspace"
)

func setup(t *testing.T, content string) (*Dispatcher, *document.Manager, *workspace.MemFS) {
	t.Helper()
	fs := workspace.NewMemFS(map[string]string{
		"doc.md":        content,
		"src/main.go":   "package main",
		"docs/guide.md": "# Guide",
	})
	retry := document.RetryConfig{MaxRetries: 1, InitialInterval: time.Millisecond}
	doc := document.NewManager(fs, nil, retry)
	_, err := doc.Load(context.Background(), "doc.md", "doc.md")
	require.NoError(t, err)
	return NewDispatcher(doc, fs, "", workspace.NewContentCache(8)), doc, fs
}

func call(name string, args map[string]any) model.ToolCall {
	return model.ToolCall{ID: "call_1", Name: name, Arguments: args}
}

func TestDefinitions(t *testing.T) {
	d, _, _ := setup(t, "")
	defs := d.Definitions()

	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	assert.Equal(t, []string{"read", "write", "read_workspace_file", "grep", "replace", "ls"}, names)
	assert.Equal(t, []string{"target", "newContent"}, defs[4].InputSchema.Required)
	assert.Empty(t, defs[0].InputSchema.Required)
}

func TestValidation(t *testing.T) {
	d, doc, _ := setup(t, "hello world")
	ctx := context.Background()

	tests := []struct {
		name    string
		call    model.ToolCall
		wantErr error
		wantMsg string
	}{
		{name: "unknown tool", call: call("delete_everything", nil), wantErr: ErrUnknownTool},
		{name: "missing content", call: call("write", map[string]any{}), wantErr: ErrMissingArgument, wantMsg: "missing argument: content"},
		{name: "nil content", call: call("write", map[string]any{"content": nil}), wantErr: ErrMissingArgument},
		{name: "numeric target", call: call("replace", map[string]any{"target": 123.0, "newContent": "x"}), wantErr: ErrInvalidArgumentType},
		{name: "int target", call: call("replace", map[string]any{"target": 123, "newContent": "x"}), wantErr: ErrInvalidArgumentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(ctx, tt.call, "msg")
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.EqualError(t, err, tt.wantMsg)
			}
		})
	}

	snaps, err := doc.Snapshots()
	require.NoError(t, err)
	assert.Len(t, snaps, 1, "rejected calls must not mutate the document")
}

func TestWriteAndReplaceSnapshotOnce(t *testing.T) {
	d, doc, _ := setup(t, "hello")
	ctx := context.Background()

	_, err := d.Dispatch(ctx, call("write", map[string]any{"content": " world"}), "msg-1")
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, call("replace", map[string]any{"target": "world", "newContent": "there"}), "msg-2")
	require.NoError(t, err)

	content, err := doc.Content()
	require.NoError(t, err)
	assert.Equal(t, "hello there", content)

	snaps, err := doc.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, "msg-1", snaps[1].MessageID)
	assert.Equal(t, "msg-2", snaps[2].MessageID)
	assert.Equal(t, document.TriggerToolExecution, snaps[2].Trigger)
}

func TestReplaceMissPassesThrough(t *testing.T) {
	d, _, _ := setup(t, "hello world")
	_, err := d.Dispatch(context.Background(), call("replace", map[string]any{"target": "nonexistent", "newContent": "x"}), "")
	assert.ErrorIs(t, err, document.ErrTargetNotFound)
}

func TestReadClassToolsDoNotMutate(t *testing.T) {
	d, doc, fs := setup(t, "line1\nhello\nline3")
	ctx := context.Background()

	got, err := d.Dispatch(ctx, call("read", nil), "")
	require.NoError(t, err)
	assert.Equal(t, "line1\nhello\nline3", got)

	got, err = d.Dispatch(ctx, call("grep", map[string]any{"pattern": "hello"}), "")
	require.NoError(t, err)
	matches, ok := got.([]document.MatchResult)
	require.True(t, ok)
	require.Len(t, matches, 1)
	assert.Equal(t, 2, matches[0].Line)

	got, err = d.Dispatch(ctx, call("read_workspace_file", map[string]any{"path": "src/main.go"}), "")
	require.NoError(t, err)
	assert.Equal(t, "package main", got)

	// Second read is served from cache
	reads := fs.Reads()
	_, err = d.Dispatch(ctx, call("read_workspace_file", map[string]any{"path": "src/main.go"}), "")
	require.NoError(t, err)
	assert.Equal(t, reads, fs.Reads())

	got, err = d.Dispatch(ctx, call("ls", nil), "")
	require.NoError(t, err)
	assert.Equal(t, "docs/\n  guide.md\nsrc/\n  main.go\ndoc.md", got)

	state, err := doc.State()
	require.NoError(t, err)
	assert.False(t, state.IsDirty)
	assert.Len(t, state.Snapshots, 1)
}

func TestReadWorkspaceFileErrors(t *testing.T) {
	d, _, _ := setup(t, "")
	ctx := context.Background()

	_, err := d.Dispatch(ctx, call("read_workspace_file", map[string]any{"path": "../secret"}), "")
	assert.ErrorIs(t, err, workspace.ErrOutsideWorkspace)

	_, err = d.Dispatch(ctx, call("read_workspace_file", map[string]any{"path": "missing.txt"}), "")
	assert.ErrorIs(t, err, workspace.ErrNotFound)

	noWorkspace := NewDispatcher(document.NewManager(workspace.NewMemFS(nil), nil, document.DefaultRetryConfig()), nil, "", nil)
	_, err = noWorkspace.Dispatch(ctx, call("ls", nil), "")
	assert.ErrorIs(t, err, ErrNoWorkspace)
	_, err = noWorkspace.Dispatch(ctx, call("read", nil), "")
	assert.ErrorIs(t, err, document.ErrNoDocumentLoaded)
}
