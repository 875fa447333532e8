// Package adaptive provides authenticated encryption with automatic
// algorithm selection.
//
// AES-GCM is chosen on architectures where Go's crypto/aes is hardware
// accelerated (amd64, arm64); ChaCha20-Poly1305 everywhere else. Both are
// AEADs: ciphertexts carry a random nonce prefix and are bound to the
// caller's additional data.
//
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, []byte("15551234567"))
//	plain, err := c.Decrypt(sealed, []byte("15551234567"))
package adaptive
