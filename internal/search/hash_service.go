package search

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/text/cases"

	"github.com/allisson/fieldcrypt/internal/errors"
	"github.com/allisson/fieldcrypt/internal/secmem"
)

const derivedKeySize = 32

// Normalizer canonicalizes a plaintext before hashing so that inputs which
// should compare equal produce the same hash.
type Normalizer func(value []byte) []byte

var foldCaser = cases.Fold()

// NormalizeDefault trims surrounding whitespace and applies Unicode case
// folding.
func NormalizeDefault(value []byte) []byte {
	return foldCaser.Bytes([]byte(strings.TrimSpace(string(value))))
}

// NormalizeEmail lowercases and trims an email address so "Bob@X.com " and
// "bob@x.com" hash identically.
func NormalizeEmail(value []byte) []byte {
	return NormalizeDefault(value)
}

// NormalizeNone hashes the value exactly as given.
func NormalizeNone(value []byte) []byte {
	out := make([]byte, len(value))
	copy(out, value)
	return out
}

// HashService produces deterministic keyed hashes for searchable encrypted
// fields.
type HashService interface {
	SearchHash(value []byte, salt string) (string, error)
}

// HMACHashService implements HashService with HMAC-SHA256. The per-field
// salt is not mixed into the MAC input directly: a subkey is derived from
// the active search key and the salt with HKDF-SHA256, so equal values in
// different fields produce unrelated hashes and a leak of one field's
// hashes tells nothing about another's.
type HMACHashService struct {
	chain       *KeyChain
	normalizers map[string]Normalizer
}

// NewHMACHashService creates a hash service over the given keychain.
// normalizers maps a salt to the Normalizer for that field; salts without
// an entry use NormalizeDefault. A nil map is allowed.
func NewHMACHashService(chain *KeyChain, normalizers map[string]Normalizer) *HMACHashService {
	return &HMACHashService{chain: chain, normalizers: normalizers}
}

// SearchHash returns the hex-encoded HMAC-SHA256 of the normalized value
// under the salt-derived subkey of the active search key.
func (h *HMACHashService) SearchHash(value []byte, salt string) (string, error) {
	if salt == "" {
		return "", fmt.Errorf("%w: salt is required", errors.ErrInvalidInput)
	}
	key, ok := h.chain.Get(h.chain.ActiveID())
	if !ok {
		return "", fmt.Errorf("%w: active search key %s", errors.ErrNotFound, h.chain.ActiveID())
	}

	normalize := h.normalizers[salt]
	if normalize == nil {
		normalize = NormalizeDefault
	}
	normalized := normalize(value)
	defer secmem.Wipe(normalized)

	subKey := make([]byte, derivedKeySize)
	defer secmem.Wipe(subKey)
	kdf := hkdf.New(sha256.New, key, nil, []byte("fieldcrypt/search/"+salt))
	if _, err := io.ReadFull(kdf, subKey); err != nil {
		return "", fmt.Errorf("derive search subkey: %w", err)
	}

	mac := hmac.New(sha256.New, subKey)
	mac.Write(normalized)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
