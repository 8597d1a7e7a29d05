// Package blob stores content-addressed files. Objects are immutable and
// addressed by the lowercase hex SHA-1 of their content, so writes are
// idempotent and reads never race with writers.
package blob

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"regexp"
)

// Driver identifies a blob backend driver.
type Driver string

const (
	// DriverMemory is the in-memory driver, for tests and development.
	DriverMemory Driver = "memory"
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem Driver = "fs"
	// DriverS3 is the S3-compatible driver.
	DriverS3 Driver = "s3"
)

// ErrNotFound indicates no object with the given digest exists.
var ErrNotFound = errors.New("blob: not found")

// ErrBadDigest indicates a digest that is not 40 lowercase hex characters.
var ErrBadDigest = errors.New("blob: malformed digest")

var digestRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Digest computes the content address of a byte slice.
func Digest(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ValidDigest reports whether s is a well-formed content address.
func ValidDigest(s string) bool {
	return digestRe.MatchString(s)
}

// Store is the interface for blob storage backends.
type Store interface {
	// Put stores data and returns its digest. Storing the same content
	// twice is a no-op.
	Put(ctx context.Context, data []byte) (string, error)

	// Get returns the content with the given digest, or ErrNotFound.
	Get(ctx context.Context, digest string) ([]byte, error)

	// Exists reports whether content with the given digest is stored.
	Exists(ctx context.Context, digest string) (bool, error)

	// Driver identifies the backend.
	Driver() Driver
}
