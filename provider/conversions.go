package provider

import (
	"encoding/json"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentedit/config"
	"agentedit/model"
)

// Wire types for the OpenAI-compatible chat-completions protocol.

type wireMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

// streamChunk is one "data:" payload of a streaming response.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []deltaToolCall `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
}

type deltaToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// convertToWireMessages maps a conversation onto wire messages.
//
// An assistant message with tool calls serializes each call's arguments as a
// JSON string. Every settled call also emits a role "tool" message carrying
// the JSON-encoded result, placed directly after its parent assistant message
// so the model sees each result next to the call that produced it.
func convertToWireMessages(messages []model.ChatMessage) []wireMessage {
	result := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		content := msg.Content
		wm := wireMessage{
			Role:    string(msg.Role),
			Content: &content,
		}

		if msg.Role == model.RoleAssistant && msg.HasToolCalls() {
			if content == "" {
				wm.Content = nil
			}
			wm.ToolCalls = make([]wireToolCall, len(msg.ToolCalls))
			for i, call := range msg.ToolCalls {
				args := call.Arguments
				if args == nil {
					args = map[string]any{}
				}
				wm.ToolCalls[i] = wireToolCall{
					ID:   call.ID,
					Type: "function",
					Function: wireFunction{
						Name:      call.Name,
						Arguments: encodeJSON(args, "{}"),
					},
				}
			}
		}
		result = append(result, wm)

		for _, call := range msg.ToolCalls {
			if !call.Settled() {
				continue
			}
			payload := encodeJSON(call.Result.Payload(), "null")
			result = append(result, wireMessage{
				Role:       string(model.RoleTool),
				Content:    &payload,
				Name:       call.Name,
				ToolCallID: call.ID,
			})
		}
	}
	return result
}

// convertFromWireMessage maps a non-streaming response message back to an
// assistant ChatMessage.
func convertFromWireMessage(wm wireMessage) model.ChatMessage {
	content := ""
	if wm.Content != nil {
		content = *wm.Content
	}
	msg := model.NewMessage(model.RoleAssistant, content)
	for _, call := range wm.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: ParseToolArguments(call.Function.Arguments),
		})
	}
	return msg
}

// convertToolsToWire converts tool schemas to the wire "function" tool format.
//
//	{"name": "grep", "inputSchema": {"type": "object", "properties": {...}, "required": [...]}}
//
// becomes
//
//	{"type": "function", "function": {"name": "grep", "parameters": {...}}}
func convertToolsToWire(tools []mcptypes.Tool) []wireTool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]wireTool, len(tools))
	for i, tool := range tools {
		props := tool.InputSchema.Properties
		if props == nil {
			props = map[string]any{}
		}
		schemaType := tool.InputSchema.Type
		if schemaType == "" {
			schemaType = "object"
		}
		params := map[string]any{
			"type":       schemaType,
			"properties": props,
		}
		if len(tool.InputSchema.Required) > 0 {
			params["required"] = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			params["$defs"] = tool.InputSchema.Defs
		}

		result[i] = wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		}
	}
	return result
}

// ParseToolArguments parses a JSON arguments string into a map. Malformed
// or empty input yields an empty map.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		if argsJSON != "" && config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] Unparseable tool arguments %q: %v", argsJSON, err)
		}
		return make(map[string]any)
	}
	return args
}

func encodeJSON(v any, fallback string) string {
	data, err := json.Marshal(v)
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] Failed to encode %T: %v", v, err)
		}
		return fallback
	}
	return string(data)
}
