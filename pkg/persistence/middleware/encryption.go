// Package middleware wraps document stores with cross-cutting behavior.
package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/tradeflow/pkg/ports"
)

// KeySize is the required key length (AES-256).
const KeySize = 32

// ErrUndecryptable means no configured key opened a sealed document.
var ErrUndecryptable = errors.New("decryption failed with all available keys")

// Sealed is the envelope persisted in place of the plain document.
// Only the id is visible to the backend; the whole document is in Ciphertext.
type Sealed struct {
	Ciphertext []byte `json:"ciphertext"`
}

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new documents. Must be KeySize bytes.
	ActiveKey []byte

	// FallbackKeys are tried, in order, when the active key cannot open a document.
	// This enables key rotation without rewriting stored data first.
	FallbackKeys [][]byte
}

// Validate checks key sizes.
func (c EncryptionConfig) Validate() error {
	if len(c.ActiveKey) != KeySize {
		return fmt.Errorf("active key must be %d bytes, got %d", KeySize, len(c.ActiveKey))
	}
	for i, k := range c.FallbackKeys {
		if len(k) != KeySize {
			return fmt.Errorf("fallback key %d must be %d bytes, got %d", i, KeySize, len(k))
		}
	}
	return nil
}

// Encrypted stores documents of type T sealed with AES-GCM in an envelope store.
type Encrypted[T any] struct {
	next   ports.Store[Sealed]
	config EncryptionConfig
}

// NewEncryption wraps next so that every document is sealed before it reaches the backend.
func NewEncryption[T any](next ports.Store[Sealed], config EncryptionConfig) (*Encrypted[T], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Encrypted[T]{next: next, config: config}, nil
}

func (m *Encrypted[T]) Save(ctx context.Context, id string, doc *T) error {
	plain, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}
	ciphertext, err := encrypt(plain, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", id, err)
	}
	return m.next.Save(ctx, id, &Sealed{Ciphertext: ciphertext})
}

func (m *Encrypted[T]) Load(ctx context.Context, id string) (*T, error) {
	envelope, err := m.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(envelope.Ciphertext) == 0 {
		return nil, fmt.Errorf("document %s is missing its encrypted envelope", id)
	}

	plain, err := decryptWithRotation(envelope.Ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s: %w", id, err)
	}

	var doc T
	if err := json.Unmarshal(plain, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted %s: %w", id, err)
	}
	return &doc, nil
}

func (m *Encrypted[T]) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *Encrypted[T]) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, ErrUndecryptable
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
