// Package crypto provides the symmetric field cipher used by the settlement
// ledger. Profit and balance columns are encrypted at rest so backups or
// exports of the store never contain plaintext PnL.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
)

// fieldSalt is a fixed application salt for key derivation. The passphrase is
// the secret; the salt only separates this key domain from other uses of the
// same passphrase.
var fieldSalt = []byte("ghostarb.ledger.v1")

// FieldCipher encrypts and decrypts individual numeric ledger fields with
// AES-256-GCM. The key is derived once from an operator passphrase.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher derives the ledger key from passphrase and returns a ready
// cipher. An empty passphrase is a configuration error: the process must not
// run with a plaintext ledger.
func NewFieldCipher(passphrase string) (*FieldCipher, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: ledger encryption key must not be empty")
	}

	key := pbkdf2.Key([]byte(passphrase), fieldSalt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return &FieldCipher{aead: aead}, nil
}

// EncryptFloat seals a float value into nonce||ciphertext.
func (c *FieldCipher) EncryptFloat(v float64) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}
	plaintext := strconv.FormatFloat(v, 'f', -1, 64)
	return c.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// DecryptFloat opens a payload produced by EncryptFloat. Malformed or
// tampered payloads decrypt to 0.0 rather than failing: history queries over
// a partially corrupted ledger must keep working, and a zero row is visibly
// wrong without being able to take the reader down.
func (c *FieldCipher) DecryptFloat(payload []byte) float64 {
	if len(payload) < c.aead.NonceSize() {
		return 0.0
	}
	nonce, ciphertext := payload[:c.aead.NonceSize()], payload[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return 0.0
	}
	v, err := strconv.ParseFloat(string(plaintext), 64)
	if err != nil {
		return 0.0
	}
	return v
}
