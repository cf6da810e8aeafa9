// Package cryptox holds the key-derivation and key-wrapping primitives
// shared by the vault services: HKDF expansion of protocol secrets and
// AES-GCM wrapping of content-encryption keys.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// SessionKeySize is the size of a derived unlock-session key.
	SessionKeySize = 32

	gcmNonceSize = 12
)

// DeriveKey expands secret into a size-byte key bound to the given label.
// The secret is expected to be uniformly random already (an OPAQUE session
// or export key), so no salt is required.
func DeriveKey(secret []byte, label string, size int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(label))
	key := make([]byte, size)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return key, nil
}

// WrapKey encrypts a content-encryption key under kek with AES-GCM. The
// returned blob is nonce||ciphertext and is what gets stored in the
// SecretTag record.
func WrapKey(cek, kek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return append(nonce, aesgcm.Seal(nil, nonce, cek, nil)...), nil
}

// UnwrapKey reverses WrapKey. It fails if the blob is truncated or the
// authentication tag does not verify.
func UnwrapKey(blob, kek []byte) ([]byte, error) {
	if len(blob) < gcmNonceSize {
		return nil, fmt.Errorf("wrapped key too short: %d bytes", len(blob))
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return aesgcm.Open(nil, blob[:gcmNonceSize], blob[gcmNonceSize:], nil)
}
