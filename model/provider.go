package model

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Provider abstracts a chat-completions backend using the engine's own types.
//
// This interface is defined in the model package (not provider package) to avoid
// import cycles: provider implementations import model, and the engine depends
// on the interface without importing the provider package.
type Provider interface {
	// Complete sends the conversation and returns the whole assistant reply.
	Complete(ctx context.Context, req ChatRequest) (ChatMessage, error)

	// Stream sends the conversation and returns an iterator over content deltas.
	// The final assistant message is available from the stream once it is drained.
	Stream(ctx context.Context, req ChatRequest) (MessageStream, error)

	// ListModels returns available models for this provider.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Ping checks if the provider is reachable and the credential is accepted.
	Ping(ctx context.Context) error
}

// ChatRequest is one round-trip to the provider.
type ChatRequest struct {
	Model    string
	Messages []ChatMessage
	// Tools is nil when tool use is disabled for the session.
	Tools []mcptypes.Tool
}

// MessageStream is a pull-based iterator over a streamed assistant reply.
//
//	for stream.Next() {
//	    render(stream.Current())
//	}
//	if err := stream.Err(); err != nil { ... }
//	msg := stream.Message()
type MessageStream interface {
	// Next advances to the next content delta. It returns false when the
	// stream is exhausted or failed.
	Next() bool
	// Current returns the content delta produced by the last call to Next.
	Current() string
	// Err returns the first error encountered while reading the stream.
	Err() error
	// Message returns the reassembled assistant message. Only valid after
	// Next has returned false and Err is nil.
	Message() ChatMessage
	// Close releases the underlying transport.
	Close() error
}

// ModelInfo describes a model offered by a provider.
type ModelInfo struct {
	Name         string // Display name
	InternalName string // Full API name
	Size         int64
	Provider     string // Provider ID: "openai", "openrouter", "ollama"
}
