package config

import "fmt"

// ProviderConfig is one [[providers]] entry.
type ProviderConfig struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	Type    string `toml:"type"`
	BaseURL string `toml:"base_url"`
	Enabled bool   `toml:"enabled"`
}

// FindProvider returns the provider entry with the given ID.
func (c *Config) FindProvider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// EnabledProviders returns the providers with enabled = true.
func (c *Config) EnabledProviders() []ProviderConfig {
	var enabled []ProviderConfig
	for _, p := range c.Providers {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// SetProviderEnabled toggles a provider in the user config file, adding a
// default entry for well-known providers that aren't listed yet.
func SetProviderEnabled(dataDir, providerID string, enabled bool) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	found := false
	for i := range cfg.Providers {
		if cfg.Providers[i].ID == providerID {
			cfg.Providers[i].Enabled = enabled
			found = true
			break
		}
	}
	if !found {
		baseURL := ProviderDefaultBaseURL(providerID)
		if baseURL == "" {
			return fmt.Errorf("unknown provider: %s", providerID)
		}
		cfg.Providers = append(cfg.Providers, ProviderConfig{
			ID:      providerID,
			Name:    ProviderDisplayName(providerID),
			Type:    providerID,
			BaseURL: baseURL,
			Enabled: enabled,
		})
	}

	if err := SaveUserConfig(cfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ProviderDisplayName returns the display name for a provider
func ProviderDisplayName(providerID string) string {
	switch providerID {
	case "ollama":
		return "Ollama"
	case "openrouter":
		return "OpenRouter"
	case "openai":
		return "OpenAI"
	default:
		return providerID
	}
}

// ProviderDefaultBaseURL returns the default base URL for a provider
func ProviderDefaultBaseURL(providerID string) string {
	switch providerID {
	case "ollama":
		return "http://localhost:11434"
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	case "openai":
		return "https://api.openai.com/v1"
	default:
		return ""
	}
}
