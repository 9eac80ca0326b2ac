// Package crypto encrypts secret values stored at rest: cloud provider
// credential fields, server SSH secrets and workflow webhook secrets.
//
// Ciphertexts are stored as "ivHex:cipherHex". New values use AES-256-GCM
// with a 12-byte IV and the GCM tag appended to the ciphertext. Values
// written by older deployments used AES-256-CBC with a 16-byte IV and no tag;
// Decrypt still reads those.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/serversoft/serversoft/internal/telemetry"
)

var (
	// ErrKeyEmpty is returned when the cipher secret is empty.
	ErrKeyEmpty = errors.New("crypto: encryption key must not be empty")
	// ErrMalformedCiphertext is returned when the value is not ivHex:cipherHex
	// or the IV/ciphertext lengths are impossible.
	ErrMalformedCiphertext = errors.New("crypto: ciphertext is malformed")
	// ErrDecryptionFailed is returned on authentication failure, bad padding
	// or a wrong key.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
)

const (
	gcmIVSize = 12
	cbcIVSize = aes.BlockSize
)

// Cipher encrypts and decrypts string values with a key derived from a secret.
type Cipher struct {
	key []byte
}

// NewCipher derives a 32-byte AES key as SHA-256 of secret.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrKeyEmpty
	}
	sum := sha256.Sum256([]byte(secret))
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return &Cipher{key: key}, nil
}

// Encrypt returns plaintext encrypted as "ivHex:cipherHex" using a fresh IV.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcmIVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It also accepts legacy CBC values.
func (c *Cipher) Decrypt(value string) (string, error) {
	ivHex, cipherHex, ok := strings.Cut(value, ":")
	if !ok {
		return "", ErrMalformedCiphertext
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	data, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	switch len(iv) {
	case gcmIVSize:
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return "", err
		}
		if len(data) < aead.Overhead() {
			return "", ErrMalformedCiphertext
		}
		plain, err := aead.Open(nil, iv, data, nil)
		if err != nil {
			return "", ErrDecryptionFailed
		}
		return string(plain), nil
	case cbcIVSize:
		return decryptCBC(block, iv, data)
	default:
		return "", ErrMalformedCiphertext
	}
}

func decryptCBC(block cipher.Block, iv, data []byte) (string, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", ErrMalformedCiphertext
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	pad := int(plain[len(plain)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(plain) {
		return "", ErrDecryptionFailed
	}
	if !bytes.Equal(plain[len(plain)-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return "", ErrDecryptionFailed
	}
	return string(plain[:len(plain)-pad]), nil
}

// DecryptOrPassthrough decrypts value, returning it unchanged (still
// encrypted) when decryption fails. The failure is logged and counted.
func (c *Cipher) DecryptOrPassthrough(value string) string {
	plain, err := c.Decrypt(value)
	if err != nil {
		slog.Warn("failed to decrypt stored secret, returning stored value", "error", err)
		telemetry.CredentialDecryptFailuresTotal.Inc()
		return value
	}
	return plain
}

// IsEncrypted reports whether value has the ivHex:cipherHex shape.
func IsEncrypted(value string) bool {
	ivHex, cipherHex, ok := strings.Cut(value, ":")
	if !ok || cipherHex == "" {
		return false
	}
	if len(ivHex) != gcmIVSize*2 && len(ivHex) != cbcIVSize*2 {
		return false
	}
	_, err1 := hex.DecodeString(ivHex)
	_, err2 := hex.DecodeString(cipherHex)
	return err1 == nil && err2 == nil
}

// GenerateSecret returns a random 32-byte secret, hex encoded, suitable for
// ENCRYPTION_KEY.
func GenerateSecret() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
