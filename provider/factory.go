package provider

import (
	"fmt"

	"agentedit/model"
)

// Default endpoints per provider type.
const (
	DefaultOpenAIURL     = "https://api.openai.com/v1"
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
)

// NewProvider creates a provider based on configuration.
//
// Supported provider types:
//   - ProviderTypeOpenAI: OpenAI API (API key required)
//   - ProviderTypeOpenRouter: OpenRouter (API key required)
//   - ProviderTypeOllama: local or remote Ollama server
//
// Returns an error if the type is unknown or a required API key is missing.
func NewProvider(cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultOpenAIURL
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		return newClientProvider(cfg)
	case ProviderTypeOpenRouter:
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultOpenRouterURL
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenRouter API key is required")
		}
		return newClientProvider(cfg)
	case ProviderTypeOllama:
		p, err := NewOllamaProvider(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

func newClientProvider(cfg Config) (model.Provider, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MapProviderIDToType infers a provider type from a well-known provider ID.
// Unknown IDs map to OpenAI, since any OpenAI-compatible endpoint can be
// configured under its own ID.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "ollama":
		return ProviderTypeOllama
	case "openrouter":
		return ProviderTypeOpenRouter
	default:
		return ProviderTypeOpenAI
	}
}
