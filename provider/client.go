package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"agentedit/config"
	"agentedit/model"
)

// Client speaks the OpenAI-compatible chat-completions protocol.
//
// Chat requests are encoded and decoded by hand so that tool-result
// messages and streamed tool-call fragments follow the exact wire shape the
// engine relies on. Model listing goes through the official SDK.
type Client struct {
	id      string
	kind    ProviderType
	baseURL string
	apiKey  string
	timeout time.Duration

	http    *http.Client
	sdk     openai.Client
	limiter *rate.Limiter
}

// NewClient creates a chat-completions client from cfg. BaseURL must already
// be resolved (see NewProvider for defaults).
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for provider %s", cfg.ID)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		id:      cfg.ID,
		kind:    cfg.Type,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http:    httpClient,
		sdk: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(cfg.APIKey),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(0),
		),
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c, nil
}

// Complete sends a non-streaming request and returns the assistant reply.
func (c *Client) Complete(ctx context.Context, req model.ChatRequest) (model.ChatMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.post(ctx, req, false)
	if err != nil {
		return model.ChatMessage{}, err
	}
	defer resp.Body.Close()

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return model.ChatMessage{}, &APIError{Kind: ErrAPI, StatusCode: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	if len(decoded.Choices) == 0 {
		return model.ChatMessage{}, &APIError{Kind: ErrAPI, StatusCode: resp.StatusCode, Message: "response contained no choices"}
	}
	return convertFromWireMessage(decoded.Choices[0].Message), nil
}

// Stream sends a streaming request. The caller must Close the returned
// stream. A positive timeout bounds the wait for response headers; after
// that only ctx limits the stream.
func (c *Client) Stream(ctx context.Context, req model.ChatRequest) (model.MessageStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	var timer *time.Timer
	if c.timeout > 0 {
		timer = time.AfterFunc(c.timeout, cancel)
	}

	resp, err := c.post(ctx, req, true)
	if timer != nil && !timer.Stop() {
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return nil, transportError(fmt.Errorf("no response within %v: %w", c.timeout, context.DeadlineExceeded))
	}
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		cancel()
		return nil, &APIError{Kind: ErrStream, StatusCode: resp.StatusCode, Message: "streaming not supported"}
	}
	stream := newSSEStream(resp.Body)
	stream.cancel = cancel
	return stream, nil
}

// post sends the chat request and returns a 2xx response. Any other outcome
// is mapped to an *APIError.
func (c *Client) post(ctx context.Context, req model.ChatRequest, stream bool) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, transportError(fmt.Errorf("rate limiter: %w", err))
		}
	}

	body, err := json.Marshal(chatRequest{
		Model:    req.Model,
		Messages: convertToWireMessages(req.Messages),
		Tools:    convertToolsToWire(req.Tools),
		Stream:   stream,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] %s: POST /chat/completions model=%s messages=%d tools=%d stream=%v",
			c.id, req.Model, len(req.Messages), len(req.Tools), stream)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := errorFromResponse(resp)
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] %s: %v", c.id, apiErr)
		}
		return nil, apiErr
	}
	return resp, nil
}

// ListModels lists the models the provider offers via GET /models.
func (c *Client) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	page, err := c.sdk.Models.List(ctx)
	if err != nil {
		return nil, fromSDKError(err)
	}

	result := make([]model.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		name := m.ID
		if c.kind == ProviderTypeOpenRouter {
			name = stripProviderPrefix(m.ID)
		}
		result = append(result, model.ModelInfo{
			Name:         name,
			InternalName: m.ID,
			Provider:     c.id,
		})
	}
	return result, nil
}

// Ping checks reachability and credentials by listing models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.ListModels(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", c.id, err)
	}
	return nil
}

// stripProviderPrefix removes vendor prefixes from OpenRouter model names.
// "meta-llama/llama-3.2-90b-instruct" → "llama-3.2-90b-instruct"
func stripProviderPrefix(modelName string) string {
	if idx := strings.Index(modelName, "/"); idx != -1 {
		return modelName[idx+1:]
	}
	return modelName
}
