package domain

import (
	"github.com/allisson/fieldcrypt/internal/errors"
)

// Field encryption error definitions.
//
// These domain-specific errors wrap standard errors from internal/errors so
// callers can branch on the base kind with errors.Is while logging the full
// chain. None of them ever carry plaintext or key material.
var (
	// ErrNoKeyAvailable indicates no active encryption key could be loaded.
	// Fatal for encryption and for decryption of any payload: the engine
	// fails closed instead of operating without encryption.
	ErrNoKeyAvailable = errors.Wrap(errors.ErrUnavailable, "no encryption key available")

	// ErrKeyNotFoundForVersion indicates a payload references a key version
	// absent from the key store. Non-retriable.
	ErrKeyNotFoundForVersion = errors.Wrap(errors.ErrNotFound, "key not found for version")

	// ErrKeyRevoked indicates a payload references a revoked key version.
	// Permanent and non-retriable; used for keys marked as compromised.
	ErrKeyRevoked = errors.Wrap(errors.ErrForbidden, "key revoked")

	// ErrDecryptionFailed indicates authentication tag verification failed:
	// the ciphertext, nonce, tag, or context was tampered with or corrupted.
	//
	// The specific cause is never disclosed, and no partial plaintext is
	// released. Callers must not retry with the same payload.
	ErrDecryptionFailed = errors.Wrap(errors.ErrInvalidInput, "decryption failed")

	// ErrMalformedPayload indicates a payload failed structural validation
	// before any cryptographic work was attempted.
	ErrMalformedPayload = errors.Wrap(errors.ErrInvalidInput, "malformed payload")

	// ErrInvalidKeyFormat indicates key material with an out-of-range size
	// or an unknown algorithm or status.
	ErrInvalidKeyFormat = errors.Wrap(errors.ErrInvalidInput, "invalid key format")

	// ErrRotationInProgress indicates a second rotation was requested while
	// one was already in flight. Rotations are rejected, not queued; the
	// caller can retry once the first rotation completes.
	ErrRotationInProgress = errors.Wrap(errors.ErrConflict, "key rotation already in progress")

	// ErrEmptyContext indicates an encryption was requested without a
	// context string. The context is the associated data binding a payload
	// to its field, so an empty one would disable tamper evidence.
	ErrEmptyContext = errors.Wrap(errors.ErrInvalidInput, "empty encryption context")
)
