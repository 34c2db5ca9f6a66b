package service

import (
	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
)

// AEADManagerService implements the AEADManager interface for creating AEAD
// cipher instances.
type AEADManagerService struct{}

// NewAEADManager creates a new AEADManagerService.
func NewAEADManager() *AEADManagerService {
	return &AEADManagerService{}
}

// CreateCipher creates an AEAD cipher instance for the specified algorithm.
// Returns ErrInvalidKeyFormat if the key is not exactly 32 bytes or the
// algorithm is unknown, before any cryptographic state is built.
func (am *AEADManagerService) CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeyFormat
	}

	switch alg {
	case cryptoDomain.AESGCM:
		return NewAESGCM(key)
	case cryptoDomain.ChaCha20:
		return NewChaCha20Poly1305(key)
	default:
		return nil, cryptoDomain.ErrInvalidKeyFormat
	}
}
