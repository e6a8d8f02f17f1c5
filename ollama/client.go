// Package ollama talks to the native Ollama API for the things the
// OpenAI-compatible endpoint does not cover: listing installed models and
// health checks.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"agentedit/model"
)

// DefaultURL is the local Ollama server.
const DefaultURL = "http://localhost:11434"

type Client struct {
	client     *api.Client
	baseURL    string
	providerID string
}

// NewClient creates a client for the Ollama server at baseURL. Models it
// lists are attributed to providerID.
func NewClient(baseURL, providerID string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if providerID == "" {
		providerID = "ollama"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &Client{
		client:     api.NewClient(parsedURL, httpClient),
		baseURL:    baseURL,
		providerID: providerID,
	}, nil
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]model.ModelInfo, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = model.ModelInfo{
			Name:         m.Name,
			InternalName: m.Name,
			Size:         m.Size,
			Provider:     c.providerID,
		}
	}
	return models, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.client.List(ctx); err != nil {
		return fmt.Errorf("ollama ping failed: %w", err)
	}
	return nil
}

// toolSupport lists model families by prefix, most specific first so that
// "llama3.2" is matched before the generic "llama3".
var toolSupport = []struct {
	prefix    string
	supported bool
}{
	{"llama3.3", true},
	{"llama3.2", true},
	{"llama3.1", true},
	{"llama3-gradient", false},
	{"command-r", true},
	{"qwen", true},
	{"mistral", true},
	{"nemotron", true},
	{"granite3", true},
	{"codellama", false},
	{"llama3", false},
	{"deepseek", false},
	{"phi", false},
	{"gemma", false},
}

// SupportsToolCalling reports whether an Ollama model family is known to
// handle tool definitions. Unknown families are treated as unsupported.
func SupportsToolCalling(modelName string) bool {
	name := strings.ToLower(modelName)
	for _, entry := range toolSupport {
		if strings.HasPrefix(name, entry.prefix) {
			return entry.supported
		}
	}
	return false
}
