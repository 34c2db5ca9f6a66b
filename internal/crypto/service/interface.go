// Package service provides the cryptographic services of the field
// encryption engine: AEAD ciphers, key lifecycle management, and the KMS
// keeper used to wrap key material at rest.
package service

import (
	"context"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
//
// The authentication tag is carried separately from the ciphertext so it can
// be stored as its own payload field.
type AEAD interface {
	// Encrypt encrypts plaintext with a fresh random nonce, binding aad into
	// the authentication tag.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce, tag []byte, err error)

	// Decrypt verifies the tag against ciphertext and aad before returning
	// any plaintext.
	Decrypt(ciphertext, nonce, tag, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// Keeper wraps and unwraps key material using an external secrets backend.
// *secrets.Keeper from gocloud.dev implements this interface.
type Keeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// KMSService opens Keeper instances for a configured provider URI.
type KMSService interface {
	// OpenKeeper opens a keeper for the configured KMS provider.
	// Returns an error if the key URI is invalid or the connection fails.
	OpenKeeper(ctx context.Context, keyURI string) (Keeper, error)
}

// KeyRepository is the durable storage contract for versioned key records.
//
// Implementations persist keeper-wrapped key material only; the plaintext
// Key field of a record is never serialized. All calls honor the context
// deadline so a slow backend cannot stall unrelated work.
type KeyRepository interface {
	// Load returns the key record for a version, or an error wrapping
	// errors.ErrNotFound if the version is unknown.
	Load(ctx context.Context, version uint) (*cryptoDomain.KeyRecord, error)

	// Save persists a new or updated key record with least-privilege
	// permissions on the storage medium.
	Save(ctx context.Context, record *cryptoDomain.KeyRecord) error

	// List returns all known key records ordered by version descending.
	List(ctx context.Context) ([]*cryptoDomain.KeyRecord, error)
}

// KeyManager orchestrates the key lifecycle: current-version selection,
// rotation, revocation, and version lookup for decryption.
type KeyManager interface {
	// ActiveKey returns the record used for new encryptions, with plaintext
	// key material populated. Fails with ErrNoKeyAvailable if none exists.
	ActiveKey(ctx context.Context) (*cryptoDomain.KeyRecord, error)

	// KeyForVersion returns the record for decrypting payloads written at
	// an older version. Fails with ErrKeyNotFoundForVersion if the version
	// is unknown and ErrKeyRevoked if the version has been revoked.
	KeyForVersion(ctx context.Context, version uint) (*cryptoDomain.KeyRecord, error)

	// Rotate generates and activates a new key version, demoting the
	// previous active key to retired. Returns the new version number.
	// A concurrent second rotation is rejected with ErrRotationInProgress.
	Rotate(ctx context.Context) (uint, error)

	// Revoke permanently blocks decryption with the given version.
	// The active version cannot be revoked; rotate first.
	Revoke(ctx context.Context, version uint) error

	// Close zeroes all in-memory key material.
	Close()
}
