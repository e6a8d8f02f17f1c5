package engine

import "agentedit/model"

// State is the per-session position in the conversation loop.
type State string

const (
	StateIdle              State = "idle"
	StateAwaitingAssistant State = "awaiting_assistant"
	StateExecutingTools    State = "executing_tools"
)

// EventType identifies an engine notification.
type EventType string

const (
	EventMessageAdded   EventType = "message_added"
	EventMessageUpdated EventType = "message_updated"
	EventStreamingChunk EventType = "streaming_chunk"
	EventSessionUpdated EventType = "session_updated"
	EventStateChanged   EventType = "state_changed"
	EventError          EventType = "error"
)

// Event is published on the engine's bus. Only the fields relevant to Type
// are set; Message and Session are copies and safe to keep.
type Event struct {
	Type      EventType
	SessionID string

	Message *model.ChatMessage
	Chunk   string
	State   State
	Session *model.ChatSession
	Err     error
}
