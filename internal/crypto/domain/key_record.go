// Package domain defines the core models for versioned field-level encryption.
//
// A single chain of versioned keys protects field values: the active key
// encrypts new payloads, retired keys decrypt old ones, and revoked keys are
// blocked entirely. Payloads are self-describing so a value can be decrypted
// with nothing but the key store.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/fieldcrypt/internal/secmem"
)

// KeyRecord represents one version of the field encryption key.
//
// Key material exists in two forms: EncryptedKey is the keeper-wrapped form
// safe to persist, and Key is the plaintext form populated only while the
// record is resident in the key manager. Key is never serialized.
type KeyRecord struct {
	ID           uuid.UUID `json:"id"`
	Version      uint      `json:"version"`
	Algorithm    Algorithm `json:"algorithm"`
	Status       KeyStatus `json:"status"`
	EncryptedKey []byte    `json:"encrypted_key"`
	Key          []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks the structural invariants of a key record as loaded from
// storage. It does not require plaintext key material to be present.
func (k *KeyRecord) Validate() error {
	if k.Version == 0 {
		return fmt.Errorf("%w: version must be positive", ErrInvalidKeyFormat)
	}
	if !k.Algorithm.Valid() {
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidKeyFormat, k.Algorithm)
	}
	if !k.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidKeyFormat, k.Status)
	}
	if len(k.EncryptedKey) == 0 {
		return fmt.Errorf("%w: missing encrypted key material", ErrInvalidKeyFormat)
	}
	if k.Key != nil && len(k.Key) != KeySize {
		return fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidKeyFormat, KeySize, len(k.Key))
	}
	return nil
}

// Zero wipes the plaintext key material. The record remains usable for
// metadata queries but not for cryptographic operations.
func (k *KeyRecord) Zero() {
	secmem.Wipe(k.Key)
	k.Key = nil
}
