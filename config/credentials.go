package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// SecurityMethod defines how API keys are stored in credentials.toml
type SecurityMethod string

const (
	SecurityPlainText SecurityMethod = "plaintext"
	SecuritySSHKey    SecurityMethod = "ssh_key"
)

// CredentialStore maps provider IDs to opaque API keys.
//
// With the plaintext method the opaque value is the key itself. With the
// ssh_key method each value is base64(AES-256-GCM(key)), decrypted on demand
// with a key derived from the user's SSH key.
type CredentialStore struct {
	method      SecurityMethod
	credentials map[string]string
	sshKeyPath  string
	passphrase  string

	mu         sync.Mutex
	encManager *EncryptionManager
}

func NewCredentialStore(method SecurityMethod, sshKeyPath string) *CredentialStore {
	return &CredentialStore{
		method:      method,
		credentials: make(map[string]string),
		sshKeyPath:  sshKeyPath,
	}
}

// SetPassphrase sets the passphrase for an encrypted SSH key. It takes
// effect on the next Decrypt or Encrypt.
func (c *CredentialStore) SetPassphrase(passphrase string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passphrase = passphrase
	c.encManager = nil
}

func (c *CredentialStore) Method() SecurityMethod {
	return c.method
}

// Get returns the opaque stored value for a provider.
func (c *CredentialStore) Get(providerID string) string {
	return c.credentials[providerID]
}

// APIKey returns the decrypted key for a provider, or "" if none is stored.
func (c *CredentialStore) APIKey(providerID string) (string, error) {
	opaque := c.credentials[providerID]
	if opaque == "" {
		return "", nil
	}
	key, err := c.Decrypt(opaque)
	if err != nil {
		return "", fmt.Errorf("credential for %s: %w", providerID, err)
	}
	return key, nil
}

// Set encrypts apiKey with the configured method and stores it.
func (c *CredentialStore) Set(providerID, apiKey string) error {
	opaque, err := c.Encrypt(apiKey)
	if err != nil {
		return err
	}
	c.credentials[providerID] = opaque
	return nil
}

func (c *CredentialStore) Delete(providerID string) {
	delete(c.credentials, providerID)
}

// Decrypt turns an opaque stored value into a plaintext key.
func (c *CredentialStore) Decrypt(opaque string) (string, error) {
	switch c.method {
	case SecurityPlainText, "":
		return opaque, nil
	case SecuritySSHKey:
		enc, err := c.encryption()
		if err != nil {
			return "", err
		}
		data, err := base64.StdEncoding.DecodeString(opaque)
		if err != nil {
			return "", fmt.Errorf("invalid encrypted credential: %w", err)
		}
		plain, err := enc.Decrypt(data)
		if err != nil {
			return "", err
		}
		return string(plain), nil
	default:
		return "", fmt.Errorf("unknown security method: %s", c.method)
	}
}

// Encrypt is the inverse of Decrypt.
func (c *CredentialStore) Encrypt(plain string) (string, error) {
	switch c.method {
	case SecurityPlainText, "":
		return plain, nil
	case SecuritySSHKey:
		enc, err := c.encryption()
		if err != nil {
			return "", err
		}
		data, err := enc.Encrypt([]byte(plain))
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		return "", fmt.Errorf("unknown security method: %s", c.method)
	}
}

// encryption lazily loads the SSH key so plaintext setups never touch it.
func (c *CredentialStore) encryption() (*EncryptionManager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encManager != nil {
		return c.encManager, nil
	}

	keyPath := c.sshKeyPath
	if keyPath == "" {
		keys := FindSSHKeys()
		if len(keys) == 0 {
			return nil, fmt.Errorf("no SSH key configured for credential encryption")
		}
		keyPath = keys[0]
	}

	enc := NewEncryptionManager(keyPath, c.passphrase)
	if err := enc.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	c.encManager = enc
	return enc, nil
}

type credentialsFile struct {
	Credentials map[string]string `toml:"credentials"`
}

func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.toml")
}

// Load reads credentials.toml. A missing file is an empty store.
func (c *CredentialStore) Load(dataDir string) error {
	path := credentialsPath(dataDir)
	if !FileExists(path) {
		c.credentials = make(map[string]string)
		return nil
	}

	var cf credentialsFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if cf.Credentials == nil {
		cf.Credentials = make(map[string]string)
	}
	c.credentials = cf.Credentials
	return nil
}

// Save writes credentials.toml with 0600 permissions.
func (c *CredentialStore) Save(dataDir string) error {
	f, err := os.OpenFile(credentialsPath(dataDir), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create credentials file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(credentialsFile{Credentials: c.credentials}); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	return nil
}
