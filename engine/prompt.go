package engine

import (
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentedit/model"
)

// buildToolPrompt keeps tool guidance short so it leaves room for the
// user's own system prompt on small local models.
func buildToolPrompt(tools []mcptypes.Tool) string {
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	return fmt.Sprintf(
		"TOOLS: %s\n\n"+
			"You are editing the user's active document. Use read or grep before changing it.\n"+
			"Use write to append and replace to change existing text.\n\n"+
			"Summarize what you changed in a short and concise way when you are done.",
		strings.Join(names, ", "),
	)
}

// buildRequestMessages prepends the ephemeral system messages to the stored
// history. Nothing built here is ever written back to the session.
//
// Layer 1: tool instructions (only if tools are offered)
// Layer 2: configured system prompt
// Layer 3: per-send context (file name, selection)
// Layer 4: the conversation
func buildRequestMessages(history []model.ChatMessage, tools []mcptypes.Tool, systemPrompt, contextText string) []model.ChatMessage {
	messages := make([]model.ChatMessage, 0, len(history)+3)
	if len(tools) > 0 {
		messages = append(messages, model.NewMessage(model.RoleSystem, buildToolPrompt(tools)))
	}
	if systemPrompt != "" {
		messages = append(messages, model.NewMessage(model.RoleSystem, systemPrompt))
	}
	if contextText != "" {
		messages = append(messages, model.NewMessage(model.RoleSystem, "Context:\n"+contextText))
	}
	for _, msg := range history {
		messages = append(messages, msg.Clone())
	}
	return messages
}
