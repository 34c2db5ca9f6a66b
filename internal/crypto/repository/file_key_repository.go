// Package repository provides key store backends for versioned key records.
//
// Records always carry keeper-wrapped key material; plaintext keys never
// reach a backend. The filesystem backend is the production default, the
// environment backend serves development and tests.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	"github.com/allisson/fieldcrypt/internal/errors"
)

const (
	keyFilePrefix = "key-"
	keyFileSuffix = ".json"

	// Least-privilege permissions: only the service principal may read
	// wrapped key material.
	keyDirPerm  = 0o700
	keyFilePerm = 0o600
)

// FileKeyRepository persists one JSON record per key version under a
// directory, e.g. key-0000000001.json. Writes go through a temp file and
// rename so a crash never leaves a partially written record.
type FileKeyRepository struct {
	dir string
}

// NewFileKeyRepository creates the backing directory if needed and returns a
// repository rooted at it.
func NewFileKeyRepository(dir string) (*FileKeyRepository, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: key store path is required", errors.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, keyDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create key store directory: %w", err)
	}
	return &FileKeyRepository{dir: dir}, nil
}

// Load reads the record for a version. Returns an error wrapping
// errors.ErrNotFound if the version has no file.
func (r *FileKeyRepository) Load(ctx context.Context, version uint) (*cryptoDomain.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnavailable, err)
	}

	data, err := os.ReadFile(r.path(version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrNotFound, "key version %d", version)
		}
		return nil, fmt.Errorf("%w: reading key version %d: %v", errors.ErrUnavailable, version, err)
	}

	var rec cryptoDomain.KeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decoding key version %d: %v", cryptoDomain.ErrInvalidKeyFormat, version, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if rec.Version != version {
		return nil, fmt.Errorf("%w: file for version %d holds version %d",
			cryptoDomain.ErrInvalidKeyFormat, version, rec.Version)
	}
	return &rec, nil
}

// Save writes a record with 0600 permissions, atomically replacing any
// previous file for the same version.
func (r *FileKeyRepository) Save(ctx context.Context, record *cryptoDomain.KeyRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrUnavailable, err)
	}
	if err := record.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode key version %d: %w", record.Version, err)
	}

	tmp, err := os.CreateTemp(r.dir, keyFilePrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp key file: %v", errors.ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(keyFilePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: restricting key file permissions: %v", errors.ErrUnavailable, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing key version %d: %v", errors.ErrUnavailable, record.Version, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: syncing key version %d: %v", errors.ErrUnavailable, record.Version, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing key version %d: %v", errors.ErrUnavailable, record.Version, err)
	}
	if err := os.Rename(tmpName, r.path(record.Version)); err != nil {
		return fmt.Errorf("%w: committing key version %d: %v", errors.ErrUnavailable, record.Version, err)
	}
	return nil
}

// List returns all records ordered by version descending.
func (r *FileKeyRepository) List(ctx context.Context) ([]*cryptoDomain.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnavailable, err)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing key store: %v", errors.ErrUnavailable, err)
	}

	var versions []uint
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, keyFilePrefix) || !strings.HasSuffix(name, keyFileSuffix) {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, keyFilePrefix), keyFileSuffix)
		version, err := strconv.ParseUint(raw, 10, 0)
		if err != nil {
			continue
		}
		versions = append(versions, uint(version))
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

	records := make([]*cryptoDomain.KeyRecord, 0, len(versions))
	for _, version := range versions {
		rec, err := r.Load(ctx, version)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *FileKeyRepository) path(version uint) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s%010d%s", keyFilePrefix, version, keyFileSuffix))
}
