package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// payloadPrefix versions the serialized payload layout itself, independent
// of the key version, so the format can evolve without breaking old rows.
const payloadPrefix = "fc1"

// EncryptedPayload is the at-rest representation of one encrypted field value.
//
// The payload is self-describing: it carries the key version, algorithm,
// context, nonce, ciphertext, and authentication tag, so it can be decrypted
// without any out-of-band state besides the key store. The context string
// (typically the field name) is bound into the authentication tag as
// associated data; it is not secret, but any change to it at decrypt time
// makes verification fail.
type EncryptedPayload struct {
	Version    uint      `json:"version"`
	Algorithm  Algorithm `json:"algorithm"`
	Context    string    `json:"context"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	AuthTag    []byte    `json:"auth_tag"`
}

// Validate checks field sizes before any cryptographic operation is
// attempted, so malformed input fails fast with ErrMalformedPayload. A
// zero-length ciphertext is valid: encrypting an empty value yields only
// the authentication tag.
func (p *EncryptedPayload) Validate() error {
	if p.Version == 0 {
		return fmt.Errorf("%w: version must be positive", ErrMalformedPayload)
	}
	if !p.Algorithm.Valid() {
		return fmt.Errorf("%w: unknown algorithm %q", ErrMalformedPayload, p.Algorithm)
	}
	if p.Context == "" {
		return fmt.Errorf("%w: missing context", ErrMalformedPayload)
	}
	if len(p.Nonce) != NonceSize {
		return fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrMalformedPayload, NonceSize, len(p.Nonce))
	}
	if len(p.AuthTag) != TagSize {
		return fmt.Errorf("%w: auth tag must be %d bytes, got %d", ErrMalformedPayload, TagSize, len(p.AuthTag))
	}
	return nil
}

// String serializes the payload to its storage representation:
//
//	fc1:<version>:<algorithm>:<b64 context>:<b64 nonce>:<b64 ciphertext>:<b64 tag>
//
// Round-trips with ParseEncryptedPayload.
func (p EncryptedPayload) String() string {
	enc := base64.StdEncoding
	return fmt.Sprintf("%s:%d:%s:%s:%s:%s:%s",
		payloadPrefix,
		p.Version,
		p.Algorithm,
		enc.EncodeToString([]byte(p.Context)),
		enc.EncodeToString(p.Nonce),
		enc.EncodeToString(p.Ciphertext),
		enc.EncodeToString(p.AuthTag),
	)
}

// ParseEncryptedPayload deserializes a payload from its storage
// representation, validating every field. Any structural problem is reported
// as ErrMalformedPayload with a description of the offending part.
func ParseEncryptedPayload(content string) (EncryptedPayload, error) {
	parts := strings.Split(content, ":")
	if len(parts) != 7 {
		return EncryptedPayload{}, fmt.Errorf(
			"%w: expected 7 colon-separated parts, got %d", ErrMalformedPayload, len(parts),
		)
	}
	if parts[0] != payloadPrefix {
		return EncryptedPayload{}, fmt.Errorf(
			"%w: unknown payload prefix %q", ErrMalformedPayload, parts[0],
		)
	}

	version, err := strconv.ParseUint(parts[1], 10, 0)
	if err != nil {
		return EncryptedPayload{}, fmt.Errorf("%w: invalid version: %v", ErrMalformedPayload, err)
	}

	enc := base64.StdEncoding
	context, err := enc.DecodeString(parts[3])
	if err != nil {
		return EncryptedPayload{}, fmt.Errorf("%w: invalid context encoding: %v", ErrMalformedPayload, err)
	}
	nonce, err := enc.DecodeString(parts[4])
	if err != nil {
		return EncryptedPayload{}, fmt.Errorf("%w: invalid nonce encoding: %v", ErrMalformedPayload, err)
	}
	ciphertext, err := enc.DecodeString(parts[5])
	if err != nil {
		return EncryptedPayload{}, fmt.Errorf("%w: invalid ciphertext encoding: %v", ErrMalformedPayload, err)
	}
	authTag, err := enc.DecodeString(parts[6])
	if err != nil {
		return EncryptedPayload{}, fmt.Errorf("%w: invalid auth tag encoding: %v", ErrMalformedPayload, err)
	}

	payload := EncryptedPayload{
		Version:    uint(version),
		Algorithm:  Algorithm(parts[2]),
		Context:    string(context),
		Nonce:      nonce,
		Ciphertext: ciphertext,
		AuthTag:    authTag,
	}
	if err := payload.Validate(); err != nil {
		return EncryptedPayload{}, err
	}
	return payload, nil
}
