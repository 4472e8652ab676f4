// Package credential encrypts integration credentials at rest with
// AES-256-GCM under a key derived from the configured passphrase.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for key derivation.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	keyLen       = 32 // AES-256
	nonceLen     = 12
)

// ErrNoPassphrase is returned by New when no passphrase is configured.
var ErrNoPassphrase = errors.New("credentials passphrase is not configured")

// Cipher encrypts and decrypts credential blobs. Blobs are
// base64(nonce || ciphertext+tag).
type Cipher struct {
	aead cipher.AEAD
}

// New derives the AES key from passphrase and salt.
func New(passphrase string, salt []byte) (*Cipher, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keyLen)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns the encoded blob.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt.
func (c *Cipher) Decrypt(blob string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("decode credential blob: %w", err)
	}
	if len(data) < nonceLen {
		return "", errors.New("credential blob too short")
	}
	plain, err := c.aead.Open(nil, data[:nonceLen], data[nonceLen:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt credential blob: %w", err)
	}
	defer zeroBytes(plain)
	return string(plain), nil
}

// Seal marshals creds to JSON and encrypts the result.
func (c *Cipher) Seal(creds models.Credentials) (string, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}
	defer zeroBytes(raw)
	return c.Encrypt(string(raw))
}

// Open decrypts blob and decodes the credentials JSON. Malformed blobs are
// configuration errors.
func (c *Cipher) Open(blob string) (models.Credentials, error) {
	var creds models.Credentials
	plain, err := c.Decrypt(blob)
	if err != nil {
		return creds, &models.Error{Kind: models.KindConfiguration, Message: "decrypt credentials", Err: err}
	}
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return creds, &models.Error{Kind: models.KindConfiguration, Message: "decode credentials", Err: err}
	}
	return creds, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
