package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const userConfigName = "config.toml"

// LoadSystemConfig reads settings.toml, writing the commented template on
// first run.
func LoadSystemConfig() (*SystemConfig, error) {
	cfg := DefaultSystemConfig()
	if err := decodeOrSeed(GetSettingsFilePath(), GenerateSystemConfigTemplate(), cfg); err != nil {
		return nil, fmt.Errorf("system config: %w", err)
	}
	return cfg, nil
}

// LoadUserConfig reads <dataDir>/config.toml over the defaults, so keys the
// file omits keep their default values.
func LoadUserConfig(dataDir string) (*UserConfig, error) {
	cfg := DefaultUserConfig()
	if err := decodeOrSeed(filepath.Join(dataDir, userConfigName), GenerateUserConfigTemplate(), cfg); err != nil {
		return nil, fmt.Errorf("user config: %w", err)
	}
	return cfg, nil
}

// SaveUserConfig replaces <dataDir>/config.toml with cfg.
func SaveUserConfig(cfg *UserConfig, dataDir string) error {
	if err := EnsureDir(dataDir); err != nil {
		return fmt.Errorf("user config: %w", err)
	}
	path := filepath.Join(dataDir, userConfigName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("user config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("user config: encode %s: %w", path, err)
	}
	return nil
}

// decodeOrSeed decodes path into into. A missing file is created from
// template and into is left at its defaults.
func decodeOrSeed(path, template string, into any) error {
	if !FileExists(path) {
		if err := EnsureDir(filepath.Dir(path)); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(template), 0600); err != nil {
			return fmt.Errorf("seed %s: %w", path, err)
		}
		return nil
	}
	if _, err := toml.DecodeFile(path, into); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
