package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/agentedit",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		DefaultProvider: "ollama",
		DefaultModel:    "llama3.1:latest",
		ToolsEnabled:    true,
		Providers: []ProviderConfig{
			{ID: "ollama", Name: "Ollama", Type: "ollama", BaseURL: "http://localhost:11434", Enabled: true},
		},
		Document: DocumentConfig{
			IORetries:      3,
			RetryInitialMS: 100,
			RetryMaxMS:     2000,
		},
		Workspace: WorkspaceConfig{
			CacheEntries: 64,
			Watch:        true,
		},
		Network: NetworkConfig{
			TimeoutSeconds: 120,
		},
		Security: SecurityConfig{
			Method: SecurityPlainText,
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# agentedit System Configuration
# Location: ~/.config/agentedit/settings.toml
# This file uses TOML format: https://toml.io

# Directory where sessions, the chat archive and user config are stored
data_directory = "~/.local/share/agentedit"
`
}

func GenerateUserConfigTemplate() string {
	return `# agentedit User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Provider and model used for new sessions
default_provider = "ollama"
default_model = "llama3.1:latest"

# Let the assistant call editor tools (read, write, grep, replace, ls, read_workspace_file)
tools_enabled = true

# Directory the assistant may list and read files from (optional)
workspace_root = ""

# System prompt sent ahead of every conversation (optional)
system_prompt = ""

[[providers]]
id = "ollama"
name = "Ollama"
type = "ollama"
base_url = "http://localhost:11434"
enabled = true

# [[providers]]
# id = "openai"
# name = "OpenAI"
# type = "openai"
# base_url = "https://api.openai.com/v1"
# enabled = true

[document]
# Save dirty documents every N seconds (0 disables auto-save)
auto_save_seconds = 0
# Retries for file reads and writes, with exponential backoff
io_retries = 3
retry_initial_ms = 100
retry_max_ms = 2000

[workspace]
# Recently read files kept in memory
cache_entries = 64
# Drop cached files when they change on disk
watch = true

[network]
# Client-side request limit per provider (0 disables)
requests_per_minute = 0
# Seconds to wait for a provider to start answering (0 disables)
timeout_seconds = 120

[security]
# How API keys in credentials.toml are stored: "plaintext" or "ssh_key"
method = "plaintext"
# ssh_key_path = "~/.ssh/id_ed25519"
`
}
