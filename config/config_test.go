package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func writeTestKey(t *testing.T, dir string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "test key")
	require.NoError(t, err)

	path := filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func TestLoadCreatesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("AGENTEDIT_DATA_DIR", filepath.Join(home, "data"))
	t.Setenv("AGENTEDIT_PROVIDER", "")
	t.Setenv("AGENTEDIT_MODEL", "")
	t.Setenv("AGENTEDIT_WORKSPACE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "data"), cfg.DataDir())
	assert.Equal(t, "ollama", cfg.DefaultProvider)
	assert.True(t, cfg.ToolsEnabled)
	assert.Equal(t, 3, cfg.Document.IORetries)
	assert.Equal(t, SecurityPlainText, cfg.Security.Method)
	assert.NotNil(t, cfg.CredentialStore)

	assert.FileExists(t, GetSettingsFilePath())
	info, err := os.Stat(filepath.Join(home, "data", "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	p, ok := cfg.FindProvider("ollama")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:11434", p.BaseURL)
}

func TestLoadEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("AGENTEDIT_DATA_DIR", filepath.Join(home, "data"))
	t.Setenv("AGENTEDIT_PROVIDER", "openai")
	t.Setenv("AGENTEDIT_MODEL", "gpt-4o-mini")
	t.Setenv("AGENTEDIT_WORKSPACE", "~/project")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.DefaultProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.DefaultModel)
	assert.Equal(t, filepath.Join(home, "project"), cfg.WorkspaceDir())
}

func TestLoadUserConfigKeepsDefaultsForOmittedKeys(t *testing.T) {
	dir := t.TempDir()
	content := `
default_provider = "openrouter"

[network]
requests_per_minute = 30
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))

	cfg, err := LoadUserConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "openrouter", cfg.DefaultProvider)
	assert.Equal(t, 30, cfg.Network.RequestsPerMinute)
	assert.Equal(t, 64, cfg.Workspace.CacheEntries)
}

func TestLoadUserConfigRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("default_provider = "), 0600))

	_, err := LoadUserConfig(dir)
	assert.ErrorContains(t, err, "parse")
}

func TestEnsureDataDirPermissionsTightens(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(dir, 0755))

	require.NoError(t, EnsureDataDirPermissions(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestSetProviderEnabled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SetProviderEnabled(dir, "openai", true))

	cfg, err := LoadUserConfig(dir)
	require.NoError(t, err)
	var found bool
	for _, p := range cfg.Providers {
		if p.ID == "openai" {
			found = true
			assert.True(t, p.Enabled)
			assert.Equal(t, "https://api.openai.com/v1", p.BaseURL)
		}
	}
	assert.True(t, found)

	assert.Error(t, SetProviderEnabled(dir, "mystery", true))
}

func TestPlaintextCredentials(t *testing.T) {
	dir := t.TempDir()
	store := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, store.Set("openai", "sk-test"))
	require.NoError(t, store.Save(dir))

	loaded := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, loaded.Load(dir))
	key, err := loaded.APIKey("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)

	key, err = loaded.APIKey("missing")
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestSSHKeyCredentials(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeTestKey(t, dir)

	store := NewCredentialStore(SecuritySSHKey, keyPath)
	require.NoError(t, store.Set("openrouter", "sk-or-secret"))
	assert.NotEqual(t, "sk-or-secret", store.Get("openrouter"))
	require.NoError(t, store.Save(dir))

	loaded := NewCredentialStore(SecuritySSHKey, keyPath)
	require.NoError(t, loaded.Load(dir))
	key, err := loaded.APIKey("openrouter")
	require.NoError(t, err)
	assert.Equal(t, "sk-or-secret", key)

	_, err = loaded.Decrypt("not base64!")
	assert.Error(t, err)
}

func TestEncryptedSSHKeyNeedsPassphrase(t *testing.T) {
	dir := t.TempDir()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte("hunter2"))
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600))

	_, err = LoadSSHSigner(keyPath, "")
	assert.ErrorIs(t, err, ErrPassphraseRequired)

	signer, err := LoadSSHSigner(keyPath, "hunter2")
	require.NoError(t, err)
	assert.NotNil(t, signer)
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, "/home/tester/docs", ExpandPath("~/docs"))
	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, "/tmp/x", ExpandPath("/tmp//x/"))
}
