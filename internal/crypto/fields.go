// Package crypto provides field-level encryption for sensitive display
// fields stored in the document store (contact phone numbers). Values are
// sealed with NaCl secretbox under a single platform key and encoded as
// base64 for storage inside BSON/JSON documents.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"

	"opsdeck/internal/types"
)

const (
	keySize   = 32
	nonceSize = 24
)

// FieldCipher encrypts and decrypts short string fields. It is safe for
// concurrent use; the key is fixed at construction.
type FieldCipher struct {
	key [keySize]byte
}

// NewFieldCipher creates a FieldCipher from a hex-encoded 32-byte key, the
// format used by the FIELD_ENCRYPTION_KEY configuration value.
func NewFieldCipher(hexKey types.SecretString) (*FieldCipher, error) {
	raw, err := hex.DecodeString(hexKey.Unmask())
	if err != nil {
		return nil, fmt.Errorf("field key is not valid hex: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("field key must be %d bytes, got %d", keySize, len(raw))
	}
	fc := &FieldCipher{}
	copy(fc.key[:], raw)
	return fc, nil
}

// Encrypt seals plaintext under a fresh random nonce. The nonce is prepended
// to the ciphertext and the whole value is base64-encoded. Empty input
// encrypts to empty output so optional fields stay optional.
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalCrypto, "failed to generate nonce", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or truncated values return an error
// rather than garbage.
func (c *FieldCipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalCrypto, "ciphertext is not valid base64", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", types.NewAppError(types.ErrCodeInternalCrypto, "ciphertext too short", nil)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", types.NewAppError(types.ErrCodeInternalCrypto, "ciphertext authentication failed", nil)
	}
	return string(plain), nil
}
