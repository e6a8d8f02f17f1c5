package provider

import (
	"context"
	"fmt"
	"strings"

	"agentedit/config"
	"agentedit/model"
	"agentedit/ollama"
)

// OllamaProvider chats through Ollama's OpenAI-compatible /v1 endpoint and
// lists models through the native API.
//
// Tool schemas are withheld from model families that are known not to
// support tool calling; those models answer in plain text instead of
// failing the request.
type OllamaProvider struct {
	*Client
	native *ollama.Client
}

// NewOllamaProvider creates a provider for the Ollama server at cfg.BaseURL
// (the server root, without /v1).
func NewOllamaProvider(cfg Config) (*OllamaProvider, error) {
	root := strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")
	if root == "" {
		root = ollama.DefaultURL
	}

	native, err := ollama.NewClient(root, cfg.ID, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	chatCfg := cfg
	chatCfg.BaseURL = root + "/v1"
	client, err := NewClient(chatCfg)
	if err != nil {
		return nil, err
	}

	return &OllamaProvider{Client: client, native: native}, nil
}

func (p *OllamaProvider) Complete(ctx context.Context, req model.ChatRequest) (model.ChatMessage, error) {
	return p.Client.Complete(ctx, p.filterTools(req))
}

func (p *OllamaProvider) Stream(ctx context.Context, req model.ChatRequest) (model.MessageStream, error) {
	return p.Client.Stream(ctx, p.filterTools(req))
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	models, err := p.native.ListModels(ctx)
	if err != nil {
		return nil, transportError(err)
	}
	return models, nil
}

func (p *OllamaProvider) Ping(ctx context.Context) error {
	if err := p.native.Ping(ctx); err != nil {
		return transportError(err)
	}
	return nil
}

func (p *OllamaProvider) filterTools(req model.ChatRequest) model.ChatRequest {
	if len(req.Tools) == 0 || ollama.SupportsToolCalling(req.Model) {
		return req
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] Model %s does not support tool calling; sending request without tools", req.Model)
	}
	req.Tools = nil
	return req
}
