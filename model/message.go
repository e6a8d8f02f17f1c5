package model

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ChatMessage represents a single message in a conversation.
//
// Messages are append-only within a session. Assistant messages may carry
// tool calls; each call is settled in place once the dispatcher has run it.
type ChatMessage struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// NewMessage creates a message with a fresh ID and the current timestamp.
func NewMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// HasToolCalls reports whether the message requests any tool invocations.
func (m ChatMessage) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Clone returns a deep copy of the message so callers can't mutate session state.
func (m ChatMessage) Clone() ChatMessage {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			out.ToolCalls[i] = call.Clone()
		}
	}
	return out
}

// ToolCall is a single tool invocation requested by the model.
//
// ID must match the identifier the model assigned so that the result message
// can be correlated back to the call. A call without Result is pending.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    *ToolResult    `json:"result,omitempty"`
}

// Settled reports whether the call has a result (successful or failed).
func (c ToolCall) Settled() bool {
	return c.Result != nil
}

// Clone copies the call, including its argument map and result.
func (c ToolCall) Clone() ToolCall {
	out := c
	if c.Arguments != nil {
		out.Arguments = make(map[string]any, len(c.Arguments))
		for k, v := range c.Arguments {
			out.Arguments[k] = v
		}
	}
	if c.Result != nil {
		r := *c.Result
		out.Result = &r
	}
	return out
}

// ToolResult is the outcome of a settled tool call. Exactly one of Value or
// Error is meaningful: a non-empty Error marks the call as failed.
type ToolResult struct {
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// Success wraps a successful tool return value.
func Success(value any) *ToolResult {
	return &ToolResult{Value: value}
}

// Failure wraps a tool error as conversational data.
func Failure(err error) *ToolResult {
	return &ToolResult{Error: err.Error()}
}

// Failed reports whether the tool call returned an error.
func (r *ToolResult) Failed() bool {
	return r != nil && r.Error != ""
}

// Payload returns what is sent back to the model: the raw value on success,
// or an {"error": message} record on failure.
func (r *ToolResult) Payload() any {
	if r == nil {
		return nil
	}
	if r.Error != "" {
		return map[string]string{"error": r.Error}
	}
	return r.Value
}
