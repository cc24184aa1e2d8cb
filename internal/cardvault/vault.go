// Package cardvault seals card fields for the payment record. Nothing here
// charges a card.
package cardvault

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

type Vault struct {
	key []byte
}

func New(key []byte) (*Vault, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("card vault key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Vault{key: k}, nil
}

// Seal returns nonce || ciphertext.
func (v *Vault) Seal(plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

func (v *Vault) Open(sealed []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}

	return string(plaintext), nil
}
