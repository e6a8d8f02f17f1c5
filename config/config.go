package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type DocumentConfig struct {
	AutoSaveSeconds int `toml:"auto_save_seconds"`
	IORetries       int `toml:"io_retries"`
	RetryInitialMS  int `toml:"retry_initial_ms"`
	RetryMaxMS      int `toml:"retry_max_ms"`
}

type WorkspaceConfig struct {
	CacheEntries int  `toml:"cache_entries"`
	Watch        bool `toml:"watch"`
}

type NetworkConfig struct {
	RequestsPerMinute int `toml:"requests_per_minute"`
	TimeoutSeconds    int `toml:"timeout_seconds"`
}

type SecurityConfig struct {
	Method     SecurityMethod `toml:"method"`
	SSHKeyPath string         `toml:"ssh_key_path,omitempty"`
}

type UserConfig struct {
	DefaultProvider string           `toml:"default_provider"`
	DefaultModel    string           `toml:"default_model"`
	ToolsEnabled    bool             `toml:"tools_enabled"`
	WorkspaceRoot   string           `toml:"workspace_root,omitempty"`
	SystemPrompt    string           `toml:"system_prompt,omitempty"`
	Providers       []ProviderConfig `toml:"providers"`
	Document        DocumentConfig   `toml:"document"`
	Workspace       WorkspaceConfig  `toml:"workspace"`
	Network         NetworkConfig    `toml:"network"`
	Security        SecurityConfig   `toml:"security"`
}

// Config is the merged runtime configuration: system settings, user config
// and environment overrides, in increasing priority.
type Config struct {
	DataDirectory   string
	DefaultProvider string
	DefaultModel    string
	ToolsEnabled    bool
	WorkspaceRoot   string
	SystemPrompt    string
	Providers       []ProviderConfig
	Document        DocumentConfig
	Workspace       WorkspaceConfig
	Network         NetworkConfig
	Security        SecurityConfig

	CredentialStore *CredentialStore
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// WorkspaceDir returns the expanded workspace root, or "" if none is set.
func (c *Config) WorkspaceDir() string {
	return ExpandPath(c.WorkspaceRoot)
}

// AutoSaveInterval returns zero when auto-save is disabled.
func (c *Config) AutoSaveInterval() time.Duration {
	return time.Duration(c.Document.AutoSaveSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Network.TimeoutSeconds) * time.Second
}

func (c *Config) applyUserConfig(u *UserConfig) {
	c.DefaultProvider = u.DefaultProvider
	c.DefaultModel = u.DefaultModel
	c.ToolsEnabled = u.ToolsEnabled
	c.WorkspaceRoot = u.WorkspaceRoot
	c.SystemPrompt = u.SystemPrompt
	c.Providers = u.Providers
	c.Document = u.Document
	c.Workspace = u.Workspace
	c.Network = u.Network
	c.Security = u.Security
}

func (c *Config) applyEnvOverrides() {
	if provider := os.Getenv("AGENTEDIT_PROVIDER"); provider != "" {
		c.DefaultProvider = provider
	}
	if model := os.Getenv("AGENTEDIT_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if workspace := os.Getenv("AGENTEDIT_WORKSPACE"); workspace != "" {
		c.WorkspaceRoot = workspace
	}
}

func CheckDebug() bool {
	debug := os.Getenv("AGENTEDIT_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: the log may contain document excerpts
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (AGENTEDIT_DEBUG=%s) ===", os.Getenv("AGENTEDIT_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Load reads settings.toml for the data directory, then the user config
// inside it, then applies environment overrides. Missing files are created
// from templates.
func Load() (*Config, error) {
	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}

	cfg := &Config{DataDirectory: systemCfg.DataDirectory}
	if dataDir := os.Getenv("AGENTEDIT_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUserConfig(userCfg)
	cfg.applyEnvOverrides()

	if cfg.Security.Method == "" {
		cfg.Security.Method = SecurityPlainText
	}
	store := NewCredentialStore(cfg.Security.Method, ExpandPath(cfg.Security.SSHKeyPath))
	if err := store.Load(dataDir); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	cfg.CredentialStore = store

	return cfg, nil
}
