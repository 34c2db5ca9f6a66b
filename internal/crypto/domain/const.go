package domain

// Algorithm represents the authenticated encryption algorithm used for a key.
//
// All supported algorithms provide Authenticated Encryption with Associated
// Data (AEAD), ensuring both confidentiality and authenticity of encrypted
// field values. Both use 32-byte keys, 12-byte nonces, and 16-byte tags, so
// payloads have the same shape regardless of algorithm.
type Algorithm string

const (
	// AESGCM is AES-256-GCM. Preferred on CPUs with AES-NI acceleration.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 is ChaCha20-Poly1305. Constant-time in software, preferred on
	// platforms without AES hardware support.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// Valid reports whether the algorithm is one of the supported AEAD modes.
func (a Algorithm) Valid() bool {
	return a == AESGCM || a == ChaCha20
}

// KeyStatus represents the lifecycle state of an encryption key version.
type KeyStatus string

const (
	// KeyStatusActive marks the single key used for new encryptions.
	KeyStatusActive KeyStatus = "active"

	// KeyStatusRetired marks a key kept only for decrypting old payloads.
	KeyStatusRetired KeyStatus = "retired"

	// KeyStatusRevoked marks a compromised key. Decryption with a revoked
	// key is forbidden and fails with ErrKeyRevoked.
	KeyStatusRevoked KeyStatus = "revoked"
)

// Valid reports whether the status is a known lifecycle state.
func (s KeyStatus) Valid() bool {
	switch s {
	case KeyStatusActive, KeyStatusRetired, KeyStatusRevoked:
		return true
	}
	return false
}

// Fixed sizes for all supported algorithms. Payloads or key records with
// fields outside these sizes are rejected before any cryptographic work.
const (
	// KeySize is the exact key length in bytes (256 bits).
	KeySize = 32

	// NonceSize is the exact nonce length in bytes (96 bits).
	NonceSize = 12

	// TagSize is the exact authentication tag length in bytes (128 bits).
	TagSize = 16
)
