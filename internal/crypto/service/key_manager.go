package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	"github.com/allisson/fieldcrypt/internal/errors"
	"github.com/allisson/fieldcrypt/internal/secmem"
)

// KeyManagerService implements the KeyManager interface over a key
// repository and a KMS keeper.
//
// State machine: no-key (initial, every lookup fails closed) -> ready (one
// active key resident) -> rotating (new key generated, not yet committed) ->
// ready. The in-memory view swaps atomically under a write lock, so encrypt
// and decrypt calls running concurrently with a rotation observe either the
// old or the new active key, never a missing one.
//
// Key material is kept wrapped at rest; records are unwrapped on demand and
// the plaintext stays resident only inside this manager. Concurrent cold
// lookups of the same version collapse into a single repository read.
type KeyManagerService struct {
	repo      KeyRepository
	keeper    Keeper
	logger    *slog.Logger
	algorithm cryptoDomain.Algorithm
	timeout   time.Duration
	retries   int

	mu     sync.RWMutex
	keys   map[uint]*cryptoDomain.KeyRecord
	active uint

	rotateMu sync.Mutex
	loads    singleflight.Group
}

// NewKeyManager creates a KeyManagerService. New keys are generated with the
// given algorithm; old keys keep the algorithm they were created with.
// timeout bounds each repository or keeper call; retries is the number of
// additional attempts for transient I/O failures.
func NewKeyManager(
	repo KeyRepository,
	keeper Keeper,
	logger *slog.Logger,
	algorithm cryptoDomain.Algorithm,
	timeout time.Duration,
	retries int,
) *KeyManagerService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &KeyManagerService{
		repo:      repo,
		keeper:    keeper,
		logger:    logger,
		algorithm: algorithm,
		timeout:   timeout,
		retries:   retries,
		keys:      make(map[uint]*cryptoDomain.KeyRecord),
	}
}

// Init loads all key records from the repository and unwraps the active key.
//
// An empty repository is not an error: the manager stays in the no-key state
// until the first key is created via Rotate. Any I/O failure is escalated to
// ErrNoKeyAvailable so the engine fails closed instead of starting without
// encryption. If a crash during a previous rotation left more than one
// active record, the highest version wins and the others are demoted.
func (km *KeyManagerService) Init(ctx context.Context) error {
	var records []*cryptoDomain.KeyRecord
	err := km.withRetry(ctx, "list", func(ctx context.Context) error {
		var err error
		records, err = km.repo.List(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: listing key versions: %v", cryptoDomain.ErrNoKeyAvailable, err)
	}

	keys := make(map[uint]*cryptoDomain.KeyRecord, len(records))
	var active *cryptoDomain.KeyRecord
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
		if rec.Status == cryptoDomain.KeyStatusActive {
			if active == nil {
				active = rec
			} else {
				// Leftover from an interrupted rotation; records are
				// version-descending so the first active seen is newest.
				km.logger.Warn("demoting stale active key",
					slog.Uint64("version", uint64(rec.Version)),
				)
				demoted := *rec
				demoted.Status = cryptoDomain.KeyStatusRetired
				rec = &demoted
				if err := km.withRetry(ctx, "save", func(ctx context.Context) error {
					return km.repo.Save(ctx, rec)
				}); err != nil {
					return fmt.Errorf("%w: demoting stale active key: %v", cryptoDomain.ErrNoKeyAvailable, err)
				}
			}
		}
		keys[rec.Version] = rec
	}

	var activeVersion uint
	if active != nil {
		key, err := km.unwrap(ctx, active.EncryptedKey)
		if err != nil {
			return fmt.Errorf("%w: unwrapping active key: %v", cryptoDomain.ErrNoKeyAvailable, err)
		}
		unwrapped := *active
		unwrapped.Key = key
		keys[active.Version] = &unwrapped
		activeVersion = active.Version
	}

	km.mu.Lock()
	km.keys = keys
	km.active = activeVersion
	km.mu.Unlock()

	return nil
}

// ActiveKey returns the current active key record with plaintext material
// populated, or ErrNoKeyAvailable if the manager holds no active key.
func (km *KeyManagerService) ActiveKey(ctx context.Context) (*cryptoDomain.KeyRecord, error) {
	km.mu.RLock()
	rec := km.keys[km.active]
	km.mu.RUnlock()

	if rec == nil {
		return nil, cryptoDomain.ErrNoKeyAvailable
	}
	if rec.Key != nil {
		return rec, nil
	}
	resolved, err := km.resolve(ctx, rec.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrNoKeyAvailable, err)
	}
	return resolved, nil
}

// KeyForVersion returns the key record for decrypting payloads written at
// the given version, unwrapping it from the repository if needed.
func (km *KeyManagerService) KeyForVersion(ctx context.Context, version uint) (*cryptoDomain.KeyRecord, error) {
	km.mu.RLock()
	rec := km.keys[version]
	km.mu.RUnlock()

	if rec != nil {
		if rec.Status == cryptoDomain.KeyStatusRevoked {
			return nil, fmt.Errorf("%w: version %d", cryptoDomain.ErrKeyRevoked, version)
		}
		if rec.Key != nil {
			return rec, nil
		}
	}
	return km.resolve(ctx, version)
}

// resolve loads and unwraps a key version, collapsing concurrent calls for
// the same version into one repository read.
func (km *KeyManagerService) resolve(ctx context.Context, version uint) (*cryptoDomain.KeyRecord, error) {
	result, err, _ := km.loads.Do(fmt.Sprintf("%d", version), func() (any, error) {
		km.mu.RLock()
		rec := km.keys[version]
		km.mu.RUnlock()

		if rec == nil {
			var loaded *cryptoDomain.KeyRecord
			err := km.withRetry(ctx, "load", func(ctx context.Context) error {
				var err error
				loaded, err = km.repo.Load(ctx, version)
				return err
			})
			if err != nil {
				if errors.Is(err, errors.ErrNotFound) {
					return nil, fmt.Errorf("%w: version %d", cryptoDomain.ErrKeyNotFoundForVersion, version)
				}
				return nil, err
			}
			if err := loaded.Validate(); err != nil {
				return nil, err
			}
			rec = loaded
		}

		if rec.Status == cryptoDomain.KeyStatusRevoked {
			// Keep the metadata resident so repeated lookups short-circuit.
			km.store(rec)
			return nil, fmt.Errorf("%w: version %d", cryptoDomain.ErrKeyRevoked, version)
		}

		if rec.Key == nil {
			key, err := km.unwrap(ctx, rec.EncryptedKey)
			if err != nil {
				return nil, err
			}
			unwrapped := *rec
			unwrapped.Key = key
			rec = &unwrapped
		}
		km.store(rec)
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*cryptoDomain.KeyRecord), nil
}

// Rotate generates a new key, persists it as active, demotes the previous
// active key to retired, and swaps the in-memory state atomically. A second
// concurrent rotation is rejected with ErrRotationInProgress.
func (km *KeyManagerService) Rotate(ctx context.Context) (uint, error) {
	if !km.rotateMu.TryLock() {
		return 0, cryptoDomain.ErrRotationInProgress
	}
	defer km.rotateMu.Unlock()

	// Consult storage rather than memory for the version watermark so a key
	// created by another process is never shadowed.
	var records []*cryptoDomain.KeyRecord
	err := km.withRetry(ctx, "list", func(ctx context.Context) error {
		var err error
		records, err = km.repo.List(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: listing key versions: %v", cryptoDomain.ErrNoKeyAvailable, err)
	}
	newVersion := uint(1)
	if len(records) > 0 {
		newVersion = records[0].Version + 1
	}

	key := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(key); err != nil {
		return 0, fmt.Errorf("failed to generate key material: %w", err)
	}
	wrapped, err := km.wrap(ctx, key)
	if err != nil {
		secmem.Wipe(key)
		return 0, err
	}

	newRec := &cryptoDomain.KeyRecord{
		ID:           uuid.Must(uuid.NewV7()),
		Version:      newVersion,
		Algorithm:    km.algorithm,
		Status:       cryptoDomain.KeyStatusActive,
		EncryptedKey: wrapped,
		Key:          key,
		CreatedAt:    time.Now().UTC(),
	}
	if err := km.withRetry(ctx, "save", func(ctx context.Context) error {
		return km.repo.Save(ctx, newRec)
	}); err != nil {
		secmem.Wipe(key)
		return 0, fmt.Errorf("failed to persist new key version %d: %w", newVersion, err)
	}

	km.mu.RLock()
	prev := km.keys[km.active]
	km.mu.RUnlock()

	var demoted *cryptoDomain.KeyRecord
	if prev != nil {
		d := *prev
		d.Status = cryptoDomain.KeyStatusRetired
		demoted = &d
		if err := km.withRetry(ctx, "save", func(ctx context.Context) error {
			return km.repo.Save(ctx, demoted)
		}); err != nil {
			// The new key is already persisted as active. On restart the
			// highest-version active wins, so stay on the old key in memory
			// and surface the failure instead of committing half a rotation.
			return 0, fmt.Errorf("failed to demote key version %d: %w", prev.Version, err)
		}
	}

	km.mu.Lock()
	km.keys[newVersion] = newRec
	if demoted != nil {
		km.keys[demoted.Version] = demoted
	}
	km.active = newVersion
	km.mu.Unlock()

	km.logger.Info("key rotated",
		slog.Uint64("new_version", uint64(newVersion)),
		slog.String("algorithm", string(km.algorithm)),
	)
	return newVersion, nil
}

// Revoke marks a key version as revoked and wipes its resident plaintext.
// The active version cannot be revoked; rotate first so encryption always
// has a usable key.
func (km *KeyManagerService) Revoke(ctx context.Context, version uint) error {
	km.mu.RLock()
	rec := km.keys[version]
	activeVersion := km.active
	km.mu.RUnlock()

	if version == activeVersion && activeVersion != 0 {
		return fmt.Errorf("%w: cannot revoke the active key version %d", errors.ErrConflict, version)
	}

	if rec == nil {
		var loaded *cryptoDomain.KeyRecord
		err := km.withRetry(ctx, "load", func(ctx context.Context) error {
			var err error
			loaded, err = km.repo.Load(ctx, version)
			return err
		})
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return fmt.Errorf("%w: version %d", cryptoDomain.ErrKeyNotFoundForVersion, version)
			}
			return err
		}
		rec = loaded
	}

	revoked := *rec
	revoked.Status = cryptoDomain.KeyStatusRevoked
	revoked.Key = nil
	if err := km.withRetry(ctx, "save", func(ctx context.Context) error {
		return km.repo.Save(ctx, &revoked)
	}); err != nil {
		return fmt.Errorf("failed to persist revocation of version %d: %w", version, err)
	}

	km.mu.Lock()
	old := km.keys[version]
	km.keys[version] = &revoked
	km.mu.Unlock()

	if old != nil {
		old.Zero()
	}

	km.logger.Warn("key revoked", slog.Uint64("version", uint64(version)))
	return nil
}

// Close zeroes all in-memory key material. Call after all encrypt and
// decrypt operations have quiesced.
func (km *KeyManagerService) Close() {
	km.mu.Lock()
	defer km.mu.Unlock()
	for _, rec := range km.keys {
		rec.Zero()
	}
	km.keys = make(map[uint]*cryptoDomain.KeyRecord)
	km.active = 0
}

// store inserts or replaces a record in the in-memory map.
func (km *KeyManagerService) store(rec *cryptoDomain.KeyRecord) {
	km.mu.Lock()
	km.keys[rec.Version] = rec
	km.mu.Unlock()
}

// wrap encrypts key material with the KMS keeper.
func (km *KeyManagerService) wrap(ctx context.Context, key []byte) ([]byte, error) {
	var wrapped []byte
	err := km.withRetry(ctx, "wrap", func(ctx context.Context) error {
		var err error
		wrapped, err = km.keeper.Encrypt(ctx, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap key material: %w", err)
	}
	return wrapped, nil
}

// unwrap decrypts key material with the KMS keeper and validates its size.
func (km *KeyManagerService) unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	var key []byte
	err := km.withRetry(ctx, "unwrap", func(ctx context.Context) error {
		var err error
		key, err = km.keeper.Decrypt(ctx, wrapped)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key material: %w", err)
	}
	if len(key) != cryptoDomain.KeySize {
		secmem.Wipe(key)
		return nil, fmt.Errorf("%w: unwrapped key must be %d bytes, got %d",
			cryptoDomain.ErrInvalidKeyFormat, cryptoDomain.KeySize, len(key))
	}
	return key, nil
}

// withRetry runs fn with a per-attempt timeout, retrying transient failures
// with exponential backoff. Domain errors (not found, invalid input) are
// never retried.
func (km *KeyManagerService) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := 50 * time.Millisecond
	var err error
	for attempt := 0; attempt <= km.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, km.timeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrInvalidInput) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < km.retries {
			km.logger.Warn("key store operation failed, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return err
			}
			backoff *= 2
		}
	}
	return err
}
