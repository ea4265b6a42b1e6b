// Package fieldcrypt encrypts individual stored fields with AES-256-GCM.
// The key is derived once from an application secret via PBKDF2-HMAC-SHA256
// and held for the life of the codec; storage layers call Encrypt/Decrypt
// at the row boundary so the rest of the system only sees plaintext.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const keySize = 32

// ErrDecrypt is returned for any undecryptable input: tampered ciphertext,
// wrong key, or garbage that never was a sealed value. Callers must treat
// it as a hard failure, never as an absent value.
var ErrDecrypt = errors.New("fieldcrypt: decryption failed")

// Config carries the key derivation inputs.
type Config struct {
	Secret     []byte
	Salt       []byte
	Iterations int
}

// Codec seals and reveals field values. Safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// New derives the AES key and constructs the codec. Derivation is
// deliberately expensive and happens exactly once per process.
func New(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("fieldcrypt: secret is required")
	}
	if len(cfg.Salt) == 0 {
		return nil, errors.New("fieldcrypt: salt is required")
	}
	if cfg.Iterations <= 0 {
		return nil, errors.New("fieldcrypt: iterations must be > 0")
	}

	key := pbkdf2.Key(cfg.Secret, cfg.Salt, cfg.Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext and returns base64url(nonce || ciphertext).
func (c *Codec) Encrypt(plaintext []byte) (string, error) {
	if c == nil {
		return "", errors.New("fieldcrypt: nil codec")
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any failure maps to ErrDecrypt.
func (c *Codec) Decrypt(encoded string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("fieldcrypt: nil codec")
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(raw) < c.aead.NonceSize() {
		return nil, ErrDecrypt
	}

	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
