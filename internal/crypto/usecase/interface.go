// Package usecase implements the field encryption facade, the single entry
// point applications use. It coordinates the key manager, AEAD ciphers, the
// plaintext cache, and the search hash service.
package usecase

import (
	"context"
)

// Stats is a point-in-time snapshot of the facade's operation counters.
type Stats struct {
	Encryptions uint64 `json:"encryptions"`
	Decryptions uint64 `json:"decryptions"`
	CacheHits   uint64 `json:"cache_hits"`
	CacheMisses uint64 `json:"cache_misses"`
	Rotations   uint64 `json:"rotations"`
	Failures    uint64 `json:"failures"`
}

// FieldEncryptor is the application-facing contract for field level
// encryption.
type FieldEncryptor interface {
	// Encrypt encrypts plaintext under the active key, binding fieldContext
	// into the authentication tag, and returns the serialized payload.
	Encrypt(ctx context.Context, plaintext []byte, fieldContext string) (string, error)

	// Decrypt parses a serialized payload and returns the plaintext. The
	// supplied fieldContext must match the one used at encryption time.
	Decrypt(ctx context.Context, payload string, fieldContext string) ([]byte, error)

	// SearchHash returns a deterministic keyed hash of value for equality
	// lookups, using salt to separate fields.
	SearchHash(value []byte, salt string) (string, error)

	// Rotate activates a new key version and returns its number.
	Rotate(ctx context.Context) (uint, error)

	// Revoke permanently blocks decryption with the given key version.
	Revoke(ctx context.Context, version uint) error

	// Stats returns a snapshot of the operation counters.
	Stats() Stats

	// Close wipes all sensitive in-memory state held by the facade.
	Close() error
}
