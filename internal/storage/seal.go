package storage

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
	"github.com/yndnr/pairmesh-go/pkg/crypto/adaptive"
)

// SealedPrefix marks a credential blob sealed at rest.
const SealedPrefix = "enc:v1:"

// Sealer encrypts credential blobs bound to their identity.
// A nil *Sealer stores blobs in plaintext.
type Sealer struct {
	cipher adaptive.Cipher
}

// NewSealer builds a Sealer from a hex key. An empty key returns nil.
func NewSealer(hexKey string) (*Sealer, error) {
	if strings.TrimSpace(hexKey) == "" {
		return nil, nil
	}

	key, err := adaptive.ParseHexKey(hexKey)
	if err != nil {
		return nil, fmt.Errorf("storage: encryption key: %w", err)
	}

	c, err := adaptive.New(key)
	if err != nil {
		return nil, fmt.Errorf("storage: cipher: %w", err)
	}
	return &Sealer{cipher: c}, nil
}

// Seal returns the stored form of blob for identity.
func (s *Sealer) Seal(identity string, blob []byte) (string, error) {
	if s == nil {
		return string(blob), nil
	}

	ct, err := s.cipher.Encrypt(blob, []byte(identity))
	if err != nil {
		return "", err
	}
	return SealedPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as-is.
func (s *Sealer) Open(identity, value string) ([]byte, error) {
	encoded, sealed := strings.CutPrefix(value, SealedPrefix)
	if !sealed {
		return []byte(value), nil
	}
	if s == nil {
		return nil, domain.ErrCredentialCorrupt.WithDetails("sealed credentials but no encryption key configured")
	}

	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, domain.ErrCredentialCorrupt.WithCause(err)
	}

	pt, err := s.cipher.Decrypt(ct, []byte(identity))
	if err != nil {
		return nil, domain.ErrCredentialCorrupt.WithCause(err)
	}
	return pt, nil
}
