// Package storage implements the encrypted blob store: payloads are sealed
// with an AEAD before they reach a Backend and opened on the way back, so
// backends only ever see nonce || tag || ciphertext.
package storage

import (
	"context"
	"errors"
	"strings"
)

// Backend is raw object I/O under string keys. Implementations return an
// error matching common.ErrorNotFound from GetObject for a missing key and
// treat DeleteObject of a missing key as success.
type Backend interface {
	PutObject(ctx context.Context, key string, data []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error

	// Type returns the backend identifier ("local", "s3").
	Type() string
}

var ErrInvalidKey = errors.New("invalid storage key")

// ValidateKey rejects keys that are empty, absolute, or that could escape
// their owner partition.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
