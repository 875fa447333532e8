package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// ErrCiphertextTooShort is returned when a ciphertext cannot hold a nonce.
var ErrCiphertextTooShort = errors.New("adaptive: ciphertext too short")

// Cipher provides authenticated encryption.
type Cipher interface {
	// Type returns the cipher type.
	Type() CipherType

	// Encrypt encrypts plaintext bound to additionalData.
	// The nonce is prepended to the returned ciphertext.
	Encrypt(plaintext, additionalData []byte) ([]byte, error)

	// Decrypt reverses Encrypt; it fails if either input was tampered with.
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)
}

// New creates a cipher for key, selecting the algorithm for this platform.
func New(key []byte) (Cipher, error) {
	if hasAESAcceleration() {
		return NewWithType(key, CipherAESGCM)
	}
	return NewWithType(key, CipherChaCha20)
}

// NewWithType creates a cipher of the specified type.
func NewWithType(key []byte, cipherType CipherType) (Cipher, error) {
	var (
		aead cipher.AEAD
		err  error
	)

	switch cipherType {
	case CipherAESGCM:
		switch len(key) {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("adaptive: invalid key size %d for AES-GCM: must be 16, 24, or 32 bytes", len(key))
		}
		var block cipher.Block
		if block, err = aes.NewCipher(key); err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case CipherChaCha20:
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("adaptive: invalid key size %d for ChaCha20-Poly1305: must be 32 bytes", len(key))
		}
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, errors.New("adaptive: unknown cipher type: " + string(cipherType))
	}
	if err != nil {
		return nil, err
	}

	return &aeadCipher{typ: cipherType, aead: aead}, nil
}

// ParseHexKey decodes a hex encoded key and checks it is usable by New.
func ParseHexKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("adaptive: key is not hex: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("adaptive: key must be 16, 24, or 32 bytes, got %d", len(key))
	}
}

// hasAESAcceleration reports whether crypto/aes uses hardware instructions
// on this architecture.
func hasAESAcceleration() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}

type aeadCipher struct {
	typ  CipherType
	aead cipher.AEAD
}

func (c *aeadCipher) Type() CipherType {
	return c.typ
}

func (c *aeadCipher) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (c *aeadCipher) Decrypt(ciphertext, additionalData []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(ciphertext) < n+c.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	return c.aead.Open(nil, ciphertext[:n], ciphertext[n:], additionalData)
}
