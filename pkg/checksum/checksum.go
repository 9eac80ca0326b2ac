// Package checksum computes SHA-256 digests of installer artifacts. Storage
// backends hash while streaming so the digest recorded in the catalog always
// matches the bytes that were written.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()

	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifySHA256 verifies that the checksum of data matches the expected checksum.
// The comparison ignores case.
func VerifySHA256(reader io.Reader, expectedChecksum string) (bool, error) {
	actualChecksum, err := CalculateSHA256(reader)
	if err != nil {
		return false, err
	}

	return strings.EqualFold(actualChecksum, expectedChecksum), nil
}

// Reader hashes everything read through it.
type Reader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: sha256.New()}
}

func (cr *Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.h.Write(p[:n])
		cr.n += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of the bytes read so far.
func (cr *Reader) Sum() string {
	return hex.EncodeToString(cr.h.Sum(nil))
}

// Size returns the number of bytes read so far.
func (cr *Reader) Size() int64 {
	return cr.n
}
