package testutil

import (
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentedit/model"
)

// TextReply returns an assistant reply without tool calls.
func TextReply(content string) Step {
	return Step{Reply: model.NewMessage(model.RoleAssistant, content)}
}

// ToolReply returns an assistant reply requesting the given calls.
func ToolReply(content string, calls ...model.ToolCall) Step {
	msg := model.NewMessage(model.RoleAssistant, content)
	msg.ToolCalls = calls
	return Step{Reply: msg}
}

// ErrorStep fails the provider call with err.
func ErrorStep(err error) Step {
	return Step{Err: err}
}

// Call builds a pending tool call.
func Call(id, name string, args map[string]any) model.ToolCall {
	if args == nil {
		args = map[string]any{}
	}
	return model.ToolCall{ID: id, Name: name, Arguments: args}
}

// TestMessages returns a sample conversation for testing
func TestMessages() []model.ChatMessage {
	return []model.ChatMessage{
		model.NewMessage(model.RoleUser, "Hello, how are you?"),
		model.NewMessage(model.RoleAssistant, "I'm doing well, thank you!"),
		model.NewMessage(model.RoleUser, "Can you help me with a task?"),
	}
}

// TestTools returns sample tool schemas for testing
func TestTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		mcptypes.NewTool("read_workspace_file",
			mcptypes.WithDescription("Read a file from the workspace"),
			mcptypes.WithString("path", mcptypes.Required(), mcptypes.Description("Path relative to the workspace root")),
		),
		mcptypes.NewTool("grep",
			mcptypes.WithDescription("Search the document"),
			mcptypes.WithString("pattern", mcptypes.Required(), mcptypes.Description("Regular expression")),
		),
	}
}
