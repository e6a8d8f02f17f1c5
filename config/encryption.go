package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

var errNotInitialized = errors.New("encryption manager not initialized")

// keyDerivationMessage is signed to derive the AES key. Changing it makes
// every stored credential unreadable.
var keyDerivationMessage = []byte("agentedit-encryption-key-derivation-v1")

// EncryptionManager encrypts small blobs with AES-256-GCM using a key derived
// from an SSH signature.
type EncryptionManager struct {
	sshKeyPath string
	passphrase string
	aesKey     []byte
}

func NewEncryptionManager(sshKeyPath, passphrase string) *EncryptionManager {
	return &EncryptionManager{sshKeyPath: sshKeyPath, passphrase: passphrase}
}

// Initialize loads the SSH key and derives the AES key.
func (e *EncryptionManager) Initialize() error {
	signer, err := LoadSSHSigner(e.sshKeyPath, e.passphrase)
	if err != nil {
		return err
	}
	aesKey, err := DeriveAESKeyFromSSH(signer)
	if err != nil {
		return fmt.Errorf("failed to derive encryption key: %w", err)
	}
	e.aesKey = aesKey
	if DebugLog != nil {
		DebugLog.Printf("[Encryption] Initialized with key %s", e.sshKeyPath)
	}
	return nil
}

// Encrypt returns [nonce][ciphertext+tag].
func (e *EncryptionManager) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt expects the layout produced by Encrypt.
func (e *EncryptionManager) Decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	plaintext, err := gcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func (e *EncryptionManager) gcm() (cipher.AEAD, error) {
	if e.aesKey == nil {
		return nil, errNotInitialized
	}
	block, err := aes.NewCipher(e.aesKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// DeriveAESKeyFromSSH derives a 32-byte key by hashing the signature of a
// fixed message. Ed25519 and RSA PKCS#1 v1.5 signatures are deterministic,
// so the same SSH key always yields the same AES key.
func DeriveAESKeyFromSSH(signer ssh.Signer) ([]byte, error) {
	signature, err := signer.Sign(rand.Reader, keyDerivationMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	hash := sha256.Sum256(signature.Blob)
	return hash[:], nil
}
