// Package storage defines the Storage interface for installer artifact
// backends.
//
// Backends register themselves with the factory from an init() function in
// their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return New(&cfg.Storage.MyBackend)
//	    })
//	}
//
// cmd/server blank-imports every backend so the registrations run.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no object exists at the requested path.
	ErrNotFound = errors.New("artifact not found")

	// ErrSignedURLUnsupported is returned by backends that cannot hand out a
	// direct download URL. Callers stream the object through Download instead.
	ErrSignedURLUnsupported = errors.New("backend does not support signed URLs")
)

// Storage is implemented by every artifact backend.
type Storage interface {
	// Upload stores the contents of reader at path. size is a hint and may be
	// -1 when unknown. The returned checksum is the SHA-256 of what was written.
	Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error)

	// Download opens the object at path. Returns ErrNotFound when missing.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the object at path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// SignedURL returns a time-limited download URL, or ErrSignedURLUnsupported.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// Exists reports whether an object exists at path.
	Exists(ctx context.Context, path string) (bool, error)
}

// UploadResult contains information about an uploaded file
type UploadResult struct {
	Path     string
	Size     int64
	Checksum string
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ArtifactPath returns the object path for a software item's installer.
// The filename is reduced to a safe base name.
func ArtifactPath(softwareID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "artifact"
	}
	return fmt.Sprintf("software/%s/%s", softwareID, base)
}
