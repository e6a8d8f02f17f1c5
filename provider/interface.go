// Package provider implements model.Provider for OpenAI-compatible
// chat-completions backends.
//
// The provider layer owns every conversion between the engine's own types
// (model.ChatMessage, model.ToolCall, mcp tool schemas) and the wire format,
// so the engine stays provider-agnostic.
//
// # Streaming
//
// Stream returns a model.MessageStream. Content deltas are pulled with Next
// and Current; tool-call fragments are reassembled per slot and exposed on
// the final Message once the stream is drained:
//
//	stream, err := p.Stream(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for stream.Next() {
//	    fmt.Print(stream.Current())
//	}
//	if err := stream.Err(); err != nil {
//	    return err
//	}
//	reply := stream.Message()
//
// # Errors
//
// Failures are *APIError values matching one of ErrAuth, ErrRateLimited,
// ErrAPI or ErrStream through errors.Is.
package provider

import (
	"net/http"
	"time"
)

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOllama     ProviderType = "ollama"
)

// Config holds provider-specific configuration.
type Config struct {
	ID      string
	Type    ProviderType
	BaseURL string
	APIKey  string

	// RequestsPerMinute enables client-side rate limiting when positive.
	RequestsPerMinute int
	// Timeout bounds Complete end to end and the wait for Stream's response
	// headers, when positive.
	Timeout time.Duration
	// HTTPClient overrides the transport (tests use httptest clients).
	HTTPClient *http.Client
}
