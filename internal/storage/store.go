// Package storage provides the string-keyed blob persistence layer the
// companion core is built on. Keys are hierarchical, slash-separated relative
// paths; values are opaque byte blobs (JSON documents or image binaries).
package storage

import (
	"context"
	"fmt"

	"github.com/memorymate/companion/internal/apperrors"
)

// Store defines the key-value persistence contract.
// Get and Delete fail with apperrors.ErrNotFound for absent keys;
// Set is an unconditional upsert that creates intermediate structure
// as needed. There are no transactional guarantees across keys.
type Store interface {
	// Has checks if a key exists
	Has(ctx context.Context, key string) (bool, error)

	// Get reads the value stored under key
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value under key, creating it if it doesn't exist
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the value stored under key
	Delete(ctx context.Context, key string) error
}

// notFound wraps apperrors.ErrNotFound with the offending key.
func notFound(key string) error {
	return fmt.Errorf("key %s: %w", key, apperrors.ErrNotFound)
}
