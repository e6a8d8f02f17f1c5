package provider

import (
	"agentedit/config"
	"agentedit/model"
)

// InitializeProviders creates a provider for every enabled [[providers]]
// entry, keyed by provider ID.
//
// A provider that fails to initialize (missing API key, unreadable
// credential) is logged and skipped so the editor can still start with the
// rest. The provider type comes from the entry's type field, falling back to
// MapProviderIDToType.
//
// Example:
//
//	providers := provider.InitializeProviders(cfg)
//	// providers = {"ollama": ..., "openrouter": ...}
func InitializeProviders(cfg *config.Config) map[string]model.Provider {
	providers := make(map[string]model.Provider)

	for _, providerCfg := range cfg.EnabledProviders() {
		providerType := ProviderType(providerCfg.Type)
		if providerType == "" {
			providerType = MapProviderIDToType(providerCfg.ID)
		}

		apiKey := ""
		if cfg.CredentialStore != nil {
			key, err := cfg.CredentialStore.APIKey(providerCfg.ID)
			if err != nil {
				if config.DebugLog != nil {
					config.DebugLog.Printf("[Provider] Warning: could not read API key for %s: %v", providerCfg.ID, err)
				}
				continue
			}
			apiKey = key
		}

		p, err := NewProvider(Config{
			ID:                providerCfg.ID,
			Type:              providerType,
			BaseURL:           providerCfg.BaseURL,
			APIKey:            apiKey,
			RequestsPerMinute: cfg.Network.RequestsPerMinute,
			Timeout:           cfg.RequestTimeout(),
		})
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Provider] Warning: failed to initialize provider %s: %v", providerCfg.ID, err)
			}
			continue
		}

		providers[providerCfg.ID] = p
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] Initialized provider: %s (type: %s)", providerCfg.ID, providerType)
		}
	}

	return providers
}
