package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
)

// AESGCMCipher implements the AEAD interface using AES-256-GCM.
//
// A unique 12-byte nonce is generated with crypto/rand for every encryption;
// with a 96-bit random nonce the collision probability within a key's
// operational lifetime is negligible, and a key version is retired on
// rotation long before it matters.
//
// The cipher instance is stateless and safe for concurrent use from multiple
// goroutines.
type AESGCMCipher struct {
	aead cipher.AEAD
}

// NewAESGCM creates a new AES-256-GCM cipher instance.
// The key must be exactly 32 bytes; shorter or longer keys are rejected by
// the AEADManager before this constructor runs.
func NewAESGCM(key []byte) (*AESGCMCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMCipher{aead: aead}, nil
}

// Encrypt encrypts plaintext with a fresh random nonce, binding aad into the
// authentication tag. The tag is returned separately from the ciphertext so
// payloads can store it as an independent field.
func (a *AESGCMCipher) Encrypt(plaintext, aad []byte) (ciphertext, nonce, tag []byte, err error) {
	nonce = make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := a.aead.Seal(nil, nonce, plaintext, aad)
	split := len(sealed) - a.aead.Overhead()
	return sealed[:split:split], nonce, sealed[split:], nil
}

// Decrypt verifies the tag against ciphertext and aad before returning any
// plaintext. On verification failure it returns ErrDecryptionFailed without
// disclosing the cause.
func (a *AESGCMCipher) Decrypt(ciphertext, nonce, tag, aad []byte) ([]byte, error) {
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := a.aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	return plaintext, nil
}
