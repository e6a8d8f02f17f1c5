package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatSession is a single conversation owned by the engine.
type ChatSession struct {
	ID            string        `json:"id"`
	Messages      []ChatMessage `json:"messages"`
	SelectedModel string        `json:"selected_model"`
	ToolsEnabled  bool          `json:"tools_enabled"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewSession creates an empty session with a fresh ID.
func NewSession(selectedModel string, toolsEnabled bool) *ChatSession {
	now := time.Now()
	return &ChatSession{
		ID:            uuid.New().String(),
		Messages:      []ChatMessage{},
		SelectedModel: selectedModel,
		ToolsEnabled:  toolsEnabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy of the session.
func (s *ChatSession) Clone() *ChatSession {
	out := *s
	out.Messages = make([]ChatMessage, len(s.Messages))
	for i, msg := range s.Messages {
		out.Messages[i] = msg.Clone()
	}
	return &out
}

// LastMessage returns the most recent message, if any.
func (s *ChatSession) LastMessage() (ChatMessage, bool) {
	if len(s.Messages) == 0 {
		return ChatMessage{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// FirstUserMessage returns the content of the first user message, used for naming.
func (s *ChatSession) FirstUserMessage() string {
	for _, msg := range s.Messages {
		if msg.Role == RoleUser {
			return msg.Content
		}
	}
	return ""
}
