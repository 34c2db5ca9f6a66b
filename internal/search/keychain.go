// Package search derives deterministic keyed hashes of plaintext values so
// callers can run equality lookups over encrypted columns without
// decrypting rows. Hashes are one-way and leak nothing beyond equality of
// normalized inputs.
package search

import (
	"encoding/base64"
	"fmt"
	"strings"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	"github.com/allisson/fieldcrypt/internal/errors"
	"github.com/allisson/fieldcrypt/internal/secmem"
)

// KeyChain holds the search keys, distinct from the encryption key chain.
//
// Search keys do not rotate by default: rotating one changes every derived
// hash, which breaks existing search indexes until the caller re-hashes all
// rows. The chain still supports multiple keys so such a migration can run
// with old and new keys available side by side.
type KeyChain struct {
	activeID string
	keys     map[string][]byte
}

// NewKeyChain builds a keychain from plaintext 32-byte keys. The active ID
// must reference one of them.
func NewKeyChain(activeID string, keys map[string][]byte) (*KeyChain, error) {
	if activeID == "" {
		return nil, fmt.Errorf("%w: active search key id is required", errors.ErrInvalidInput)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no search keys provided", errors.ErrInvalidInput)
	}
	for id, key := range keys {
		if len(key) != cryptoDomain.KeySize {
			return nil, fmt.Errorf("%w: search key %s must be %d bytes, got %d",
				cryptoDomain.ErrInvalidKeyFormat, id, cryptoDomain.KeySize, len(key))
		}
	}
	if _, ok := keys[activeID]; !ok {
		return nil, fmt.Errorf("%w: active search key %s not in chain", errors.ErrNotFound, activeID)
	}
	return &KeyChain{activeID: activeID, keys: keys}, nil
}

// ActiveID returns the ID of the key used for new hashes.
func (k *KeyChain) ActiveID() string {
	return k.activeID
}

// Get retrieves a search key by ID.
func (k *KeyChain) Get(id string) ([]byte, bool) {
	key, ok := k.keys[id]
	return key, ok
}

// Close wipes all key material and empties the chain.
func (k *KeyChain) Close() {
	for id, key := range k.keys {
		secmem.Wipe(key)
		delete(k.keys, id)
	}
	k.activeID = ""
}

// WrappedKey is one parsed SEARCH_KEYS entry: the key material is still
// keeper ciphertext and must be unwrapped before building a KeyChain.
type WrappedKey struct {
	ID      string
	Wrapped []byte
}

// ParseWrappedKeys parses the SEARCH_KEYS environment value, a
// comma-separated list of "id:base64-wrapped-key" entries (the same layout
// the key store uses for encryption keys).
func ParseWrappedKeys(raw string) ([]WrappedKey, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: SEARCH_KEYS is empty", errors.ErrInvalidInput)
	}

	var out []WrappedKey
	seen := make(map[string]bool)
	for part := range strings.SplitSeq(raw, ",") {
		p := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(p) != 2 || p[0] == "" {
			return nil, fmt.Errorf("%w: entry %q must be id:base64key", errors.ErrInvalidInput, part)
		}
		wrapped, err := base64.StdEncoding.DecodeString(p[1])
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64 for search key %s: %v", errors.ErrInvalidInput, p[0], err)
		}
		if seen[p[0]] {
			return nil, fmt.Errorf("%w: duplicate search key id %s", errors.ErrInvalidInput, p[0])
		}
		seen[p[0]] = true
		out = append(out, WrappedKey{ID: p[0], Wrapped: wrapped})
	}
	return out, nil
}
