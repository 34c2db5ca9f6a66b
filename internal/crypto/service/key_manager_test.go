package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/secrets"
	"gocloud.dev/secrets/localsecrets"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	"github.com/allisson/fieldcrypt/internal/errors"
)

// memoryKeyRepository is an in-memory KeyRepository with failure injection
// for exercising retry and fail-closed behavior.
type memoryKeyRepository struct {
	mu       sync.Mutex
	records  map[uint]cryptoDomain.KeyRecord
	failures int
	keeper   *secrets.Keeper
}

func newMemoryKeyRepository() *memoryKeyRepository {
	return &memoryKeyRepository{records: make(map[uint]cryptoDomain.KeyRecord)}
}

func (m *memoryKeyRepository) failNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

func (m *memoryKeyRepository) maybeFail() error {
	if m.failures > 0 {
		m.failures--
		return errors.Wrap(errors.ErrUnavailable, "injected failure")
	}
	return nil
}

func (m *memoryKeyRepository) Load(ctx context.Context, version uint) (*cryptoDomain.KeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	rec, ok := m.records[version]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "key version %d", version)
	}
	cp := rec
	cp.Key = nil // persisted records carry wrapped material only
	return &cp, nil
}

func (m *memoryKeyRepository) Save(ctx context.Context, record *cryptoDomain.KeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return err
	}
	cp := *record
	cp.Key = nil
	m.records[record.Version] = cp
	return nil
}

func (m *memoryKeyRepository) List(ctx context.Context) ([]*cryptoDomain.KeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeFail(); err != nil {
		return nil, err
	}
	var maxVersion uint
	for v := range m.records {
		if v > maxVersion {
			maxVersion = v
		}
	}
	out := make([]*cryptoDomain.KeyRecord, 0, len(m.records))
	for v := maxVersion; v >= 1; v-- {
		if rec, ok := m.records[v]; ok {
			cp := rec
			cp.Key = nil
			out = append(out, &cp)
		}
	}
	return out, nil
}

func newTestKeyManager(t *testing.T, repo *memoryKeyRepository) *KeyManagerService {
	t.Helper()
	// Managers sharing a repository must share its wrapping keeper, or records
	// wrapped by one manager cannot be unwrapped by another.
	if repo.keeper == nil {
		secretKey, err := localsecrets.NewRandomKey()
		require.NoError(t, err)
		repo.keeper = localsecrets.NewKeeper(secretKey)
		keeper := repo.keeper
		t.Cleanup(func() { _ = keeper.Close() })
	}

	logger := slog.New(slog.DiscardHandler)
	return NewKeyManager(repo, repo.keeper, logger, cryptoDomain.AESGCM, time.Second, 2)
}

func TestKeyManagerService_NoKeyState(t *testing.T) {
	ctx := context.Background()
	km := newTestKeyManager(t, newMemoryKeyRepository())
	require.NoError(t, km.Init(ctx))

	_, err := km.ActiveKey(ctx)
	assert.ErrorIs(t, err, cryptoDomain.ErrNoKeyAvailable)
}

func TestKeyManagerService_Rotate(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryKeyRepository()
	km := newTestKeyManager(t, repo)
	require.NoError(t, km.Init(ctx))
	defer km.Close()

	t.Run("first rotation creates version 1", func(t *testing.T) {
		version, err := km.Rotate(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint(1), version)

		active, err := km.ActiveKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint(1), active.Version)
		assert.Equal(t, cryptoDomain.KeyStatusActive, active.Status)
		assert.Len(t, active.Key, cryptoDomain.KeySize)
	})

	t.Run("subsequent rotation demotes previous key", func(t *testing.T) {
		version, err := km.Rotate(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint(2), version)

		active, err := km.ActiveKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint(2), active.Version)

		old, err := km.KeyForVersion(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, cryptoDomain.KeyStatusRetired, old.Status)
		assert.Len(t, old.Key, cryptoDomain.KeySize)
	})

	t.Run("keys differ across versions", func(t *testing.T) {
		k1, err := km.KeyForVersion(ctx, 1)
		require.NoError(t, err)
		k2, err := km.KeyForVersion(ctx, 2)
		require.NoError(t, err)
		assert.NotEqual(t, k1.Key, k2.Key)
	})
}

func TestKeyManagerService_VersionDurability(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryKeyRepository()
	km := newTestKeyManager(t, repo)
	require.NoError(t, km.Init(ctx))
	defer km.Close()

	for range 5 {
		_, err := km.Rotate(ctx)
		require.NoError(t, err)
	}

	// Every historical version must still resolve for decryption.
	for v := uint(1); v <= 5; v++ {
		rec, err := km.KeyForVersion(ctx, v)
		require.NoError(t, err)
		assert.Equal(t, v, rec.Version)
		assert.Len(t, rec.Key, cryptoDomain.KeySize)
	}
}

func TestKeyManagerService_KeyForVersion(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryKeyRepository()
	km := newTestKeyManager(t, repo)
	require.NoError(t, km.Init(ctx))
	defer km.Close()

	_, err := km.Rotate(ctx)
	require.NoError(t, err)

	t.Run("unknown version", func(t *testing.T) {
		_, err := km.KeyForVersion(ctx, 42)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyNotFoundForVersion)
	})

	t.Run("cold version loads from repository", func(t *testing.T) {
		_, err := km.Rotate(ctx)
		require.NoError(t, err)

		// A fresh manager has no versions resident.
		km2 := newTestKeyManager(t, repo)
		require.NoError(t, km2.Init(ctx))
		defer km2.Close()

		rec, err := km2.KeyForVersion(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, uint(1), rec.Version)
	})
}

func TestKeyManagerService_Revoke(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryKeyRepository()
	km := newTestKeyManager(t, repo)
	require.NoError(t, km.Init(ctx))
	defer km.Close()

	_, err := km.Rotate(ctx)
	require.NoError(t, err)
	_, err = km.Rotate(ctx)
	require.NoError(t, err)

	t.Run("revoking the active key is rejected", func(t *testing.T) {
		err := km.Revoke(ctx, 2)
		assert.ErrorIs(t, err, errors.ErrConflict)
	})

	t.Run("revoked version blocks decryption lookups", func(t *testing.T) {
		require.NoError(t, km.Revoke(ctx, 1))

		_, err := km.KeyForVersion(ctx, 1)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyRevoked)

		// The record still physically exists in storage.
		rec, err := repo.Load(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, cryptoDomain.KeyStatusRevoked, rec.Status)
	})

	t.Run("revocation survives a restart", func(t *testing.T) {
		km2 := newTestKeyManager(t, repo)
		require.NoError(t, km2.Init(ctx))
		defer km2.Close()

		_, err := km2.KeyForVersion(ctx, 1)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyRevoked)
	})

	t.Run("revoking an unknown version", func(t *testing.T) {
		err := km.Revoke(ctx, 99)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyNotFoundForVersion)
	})
}

func TestKeyManagerService_ConcurrentRotation(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryKeyRepository()
	km := newTestKeyManager(t, repo)
	require.NoError(t, km.Init(ctx))
	defer km.Close()

	_, err := km.Rotate(ctx)
	require.NoError(t, err)

	const workers = 8
	results := make(chan error, workers)
	var start sync.WaitGroup
	start.Add(1)
	for range workers {
		go func() {
			start.Wait()
			_, err := km.Rotate(ctx)
			results <- err
		}()
	}
	start.Done()

	var ok, rejected int
	for range workers {
		err := <-results
		switch {
		case err == nil:
			ok++
		case errors.Is(err, cryptoDomain.ErrRotationInProgress):
			rejected++
		default:
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	assert.Equal(t, workers, ok+rejected)
	assert.GreaterOrEqual(t, ok, 1)

	// Whatever interleaving happened, there is exactly one active key.
	active, err := km.ActiveKey(ctx)
	require.NoError(t, err)
	records, err := repo.List(ctx)
	require.NoError(t, err)
	activeCount := 0
	for _, rec := range records {
		if rec.Status == cryptoDomain.KeyStatusActive {
			activeCount++
			assert.Equal(t, active.Version, rec.Version)
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestKeyManagerService_RotationVisibility(t *testing.T) {
	// Encrypt/decrypt lookups running concurrently with rotations must never
	// observe a missing active key.
	ctx := context.Background()
	repo := newMemoryKeyRepository()
	km := newTestKeyManager(t, repo)
	require.NoError(t, km.Init(ctx))
	defer km.Close()

	_, err := km.Rotate(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				rec, err := km.ActiveKey(ctx)
				assert.NoError(t, err)
				if rec != nil {
					assert.Len(t, rec.Key, cryptoDomain.KeySize)
				}
			}
		}()
	}

	for range 10 {
		_, err := km.Rotate(ctx)
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()
}

func TestKeyManagerService_Retry(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryKeyRepository()
	km := newTestKeyManager(t, repo)
	require.NoError(t, km.Init(ctx))
	defer km.Close()

	_, err := km.Rotate(ctx)
	require.NoError(t, err)

	t.Run("transient failures are retried", func(t *testing.T) {
		// No Init so version 1 is a cold load hitting the repository.
		km2 := newTestKeyManager(t, repo)
		defer km2.Close()

		repo.failNext(2)
		rec, err := km2.KeyForVersion(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, uint(1), rec.Version)
	})

	t.Run("exhausted retries fail closed", func(t *testing.T) {
		repo.failNext(10)
		km3 := newTestKeyManager(t, repo)
		err := km3.Init(ctx)
		assert.ErrorIs(t, err, cryptoDomain.ErrNoKeyAvailable)
		repo.failNext(0)
	})
}

func TestKeyManagerService_InitDemotesStaleActives(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryKeyRepository()

	// Simulate a crash between saving the new active key and demoting the
	// old one: two active records on disk.
	seed := newTestKeyManager(t, repo)
	require.NoError(t, seed.Init(ctx))
	_, err := seed.Rotate(ctx)
	require.NoError(t, err)
	seed.Close()

	repo.mu.Lock()
	rec := repo.records[1]
	rec.Version = 2
	rec.Status = cryptoDomain.KeyStatusActive
	repo.records[2] = rec
	repo.mu.Unlock()

	km := newTestKeyManager(t, repo)
	require.NoError(t, km.Init(ctx))
	defer km.Close()

	active, err := km.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), active.Version)

	old, err := repo.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, cryptoDomain.KeyStatusRetired, old.Status)
}

func TestKeyManagerService_Close(t *testing.T) {
	ctx := context.Background()
	km := newTestKeyManager(t, newMemoryKeyRepository())
	require.NoError(t, km.Init(ctx))

	_, err := km.Rotate(ctx)
	require.NoError(t, err)
	active, err := km.ActiveKey(ctx)
	require.NoError(t, err)
	key := active.Key

	km.Close()

	for _, v := range key {
		assert.Equal(t, byte(0), v)
	}
	_, err = km.ActiveKey(ctx)
	assert.ErrorIs(t, err, cryptoDomain.ErrNoKeyAvailable)
}
