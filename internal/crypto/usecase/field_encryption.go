package usecase

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/allisson/fieldcrypt/internal/cache"
	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/allisson/fieldcrypt/internal/crypto/service"
	"github.com/allisson/fieldcrypt/internal/errors"
	"github.com/allisson/fieldcrypt/internal/metrics"
	"github.com/allisson/fieldcrypt/internal/search"
	"github.com/allisson/fieldcrypt/internal/secmem"
)

// fieldEncryptionService implements FieldEncryptor.
//
// Cache entries are keyed by an HMAC fingerprint of the serialized payload
// under a random per-process key, so cache keys reveal nothing about
// ciphertexts and cannot be precomputed by another process.
type fieldEncryptionService struct {
	keyManager     cryptoService.KeyManager
	aeadManager    cryptoService.AEADManager
	hashService    search.HashService
	cache          *cache.SecureCache
	metrics        metrics.EngineMetrics
	logger         *slog.Logger
	fingerprintKey []byte

	encryptions atomic.Uint64
	decryptions atomic.Uint64
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
	rotations   atomic.Uint64
	failures    atomic.Uint64
}

// NewFieldEncryptionService creates the facade. cache may be nil to disable
// plaintext caching and em may be nil to disable cache metrics.
func NewFieldEncryptionService(
	keyManager cryptoService.KeyManager,
	aeadManager cryptoService.AEADManager,
	hashService search.HashService,
	plaintextCache *cache.SecureCache,
	em metrics.EngineMetrics,
	logger *slog.Logger,
) (FieldEncryptor, error) {
	fingerprintKey := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(fingerprintKey); err != nil {
		return nil, fmt.Errorf("generate fingerprint key: %w", err)
	}
	if em == nil {
		em = metrics.NewNoOpEngineMetrics()
	}
	return &fieldEncryptionService{
		keyManager:     keyManager,
		aeadManager:    aeadManager,
		hashService:    hashService,
		cache:          plaintextCache,
		metrics:        em,
		logger:         logger,
		fingerprintKey: fingerprintKey,
	}, nil
}

// Encrypt encrypts plaintext under the active key with fieldContext as
// associated data and returns the serialized payload.
func (s *fieldEncryptionService) Encrypt(
	ctx context.Context,
	plaintext []byte,
	fieldContext string,
) (string, error) {
	if fieldContext == "" {
		s.failures.Add(1)
		return "", cryptoDomain.ErrEmptyContext
	}

	record, err := s.keyManager.ActiveKey(ctx)
	if err != nil {
		s.failures.Add(1)
		return "", err
	}

	cipher, err := s.aeadManager.CreateCipher(record.Key, record.Algorithm)
	if err != nil {
		s.failures.Add(1)
		return "", err
	}

	ciphertext, nonce, tag, err := cipher.Encrypt(plaintext, []byte(fieldContext))
	if err != nil {
		s.failures.Add(1)
		return "", err
	}

	payload := cryptoDomain.EncryptedPayload{
		Version:    record.Version,
		Algorithm:  record.Algorithm,
		Context:    fieldContext,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		AuthTag:    tag,
	}

	s.encryptions.Add(1)
	return payload.String(), nil
}

// Decrypt parses the payload, checks the cache, and decrypts on a miss. The
// supplied fieldContext is the associated data for tag verification, so a
// payload encrypted for one field cannot be decrypted as another.
func (s *fieldEncryptionService) Decrypt(
	ctx context.Context,
	payload string,
	fieldContext string,
) ([]byte, error) {
	if fieldContext == "" {
		s.failures.Add(1)
		return nil, cryptoDomain.ErrEmptyContext
	}

	parsed, err := cryptoDomain.ParseEncryptedPayload(payload)
	if err != nil {
		s.failures.Add(1)
		return nil, err
	}
	if parsed.Context != fieldContext {
		s.failures.Add(1)
		return nil, fmt.Errorf("%w: context mismatch", cryptoDomain.ErrDecryptionFailed)
	}

	fingerprint := s.fingerprint(payload)
	if plaintext, ok := s.cache.Get(fingerprint); ok {
		s.cacheHits.Add(1)
		s.decryptions.Add(1)
		s.metrics.RecordCacheAccess(ctx, "hit")
		return plaintext, nil
	}
	s.cacheMisses.Add(1)
	s.metrics.RecordCacheAccess(ctx, "miss")

	record, err := s.keyManager.KeyForVersion(ctx, parsed.Version)
	if err != nil {
		s.failures.Add(1)
		return nil, err
	}

	cipher, err := s.aeadManager.CreateCipher(record.Key, parsed.Algorithm)
	if err != nil {
		s.failures.Add(1)
		return nil, err
	}

	plaintext, err := cipher.Decrypt(parsed.Ciphertext, parsed.Nonce, parsed.AuthTag, []byte(fieldContext))
	if err != nil {
		s.failures.Add(1)
		return nil, err
	}

	s.cache.Put(fingerprint, plaintext)
	s.decryptions.Add(1)
	return plaintext, nil
}

// SearchHash delegates to the configured hash service.
func (s *fieldEncryptionService) SearchHash(value []byte, salt string) (string, error) {
	if s.hashService == nil {
		s.failures.Add(1)
		return "", errors.Wrap(errors.ErrUnavailable, "search hashing is not configured")
	}
	hash, err := s.hashService.SearchHash(value, salt)
	if err != nil {
		s.failures.Add(1)
		return "", err
	}
	return hash, nil
}

// Rotate activates a new key version. Existing payloads stay decryptable
// under their recorded versions, so the cache is left intact.
func (s *fieldEncryptionService) Rotate(ctx context.Context) (uint, error) {
	version, err := s.keyManager.Rotate(ctx)
	if err != nil {
		s.failures.Add(1)
		return 0, err
	}
	s.rotations.Add(1)
	s.logger.Info("key rotated", slog.Uint64("version", uint64(version)))
	return version, nil
}

// Revoke blocks decryption with the given version and purges the plaintext
// cache. Fingerprints do not encode the key version, so dropping everything
// is the only way to guarantee no value decrypted under the revoked key is
// still served.
func (s *fieldEncryptionService) Revoke(ctx context.Context, version uint) error {
	if err := s.keyManager.Revoke(ctx, version); err != nil {
		s.failures.Add(1)
		return err
	}
	s.cache.Purge()
	s.logger.Info("key revoked", slog.Uint64("version", uint64(version)))
	return nil
}

// Stats returns a snapshot of the operation counters.
func (s *fieldEncryptionService) Stats() Stats {
	return Stats{
		Encryptions: s.encryptions.Load(),
		Decryptions: s.decryptions.Load(),
		CacheHits:   s.cacheHits.Load(),
		CacheMisses: s.cacheMisses.Load(),
		Rotations:   s.rotations.Load(),
		Failures:    s.failures.Load(),
	}
}

// Close purges the cache, wipes the fingerprint key, and zeroes all key
// material held by the key manager.
func (s *fieldEncryptionService) Close() error {
	s.cache.Purge()
	secmem.Wipe(s.fingerprintKey)
	s.keyManager.Close()
	return nil
}

func (s *fieldEncryptionService) fingerprint(payload string) string {
	mac := hmac.New(sha256.New, s.fingerprintKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
