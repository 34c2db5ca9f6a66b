package repository

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	"github.com/allisson/fieldcrypt/internal/errors"
)

// EnvKeyRepository serves key records parsed from an environment variable,
// for development and test environments without a writable key store.
//
// Format, comma-separated:
//
//	FIELD_KEYS="1:retired:aes-gcm:<base64 wrapped key>,2:active:aes-gcm:<base64 wrapped key>"
//
// The wrapped key is keeper ciphertext, exactly as a file record would hold
// it. The backend is read-only: Save fails, so rotation requires the file
// backend.
type EnvKeyRepository struct {
	records map[uint]*cryptoDomain.KeyRecord
}

// NewEnvKeyRepository parses the raw FIELD_KEYS value into an in-memory
// repository. Fails fast on any malformed entry.
func NewEnvKeyRepository(raw string) (*EnvKeyRepository, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: FIELD_KEYS is empty", errors.ErrInvalidInput)
	}

	records := make(map[uint]*cryptoDomain.KeyRecord)
	for part := range strings.SplitSeq(raw, ",") {
		p := strings.SplitN(strings.TrimSpace(part), ":", 4)
		if len(p) != 4 {
			return nil, fmt.Errorf("%w: entry %q must be version:status:algorithm:base64key",
				cryptoDomain.ErrInvalidKeyFormat, part)
		}
		version, err := strconv.ParseUint(p[0], 10, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid version in %q: %v", cryptoDomain.ErrInvalidKeyFormat, part, err)
		}
		wrapped, err := base64.StdEncoding.DecodeString(p[3])
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64 key material for version %s: %v",
				cryptoDomain.ErrInvalidKeyFormat, p[0], err)
		}
		rec := &cryptoDomain.KeyRecord{
			ID:           uuid.Must(uuid.NewV7()),
			Version:      uint(version),
			Algorithm:    cryptoDomain.Algorithm(p[2]),
			Status:       cryptoDomain.KeyStatus(p[1]),
			EncryptedKey: wrapped,
			CreatedAt:    time.Now().UTC(),
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		if _, exists := records[rec.Version]; exists {
			return nil, fmt.Errorf("%w: duplicate version %d", cryptoDomain.ErrInvalidKeyFormat, rec.Version)
		}
		records[rec.Version] = rec
	}
	return &EnvKeyRepository{records: records}, nil
}

// Load returns the record for a version.
func (r *EnvKeyRepository) Load(ctx context.Context, version uint) (*cryptoDomain.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnavailable, err)
	}
	rec, ok := r.records[version]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "key version %d", version)
	}
	cp := *rec
	return &cp, nil
}

// Save always fails: environment-held keys are immutable at runtime.
func (r *EnvKeyRepository) Save(ctx context.Context, record *cryptoDomain.KeyRecord) error {
	return fmt.Errorf("%w: environment key store is read-only", errors.ErrForbidden)
}

// List returns all records ordered by version descending.
func (r *EnvKeyRepository) List(ctx context.Context) ([]*cryptoDomain.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnavailable, err)
	}
	var maxVersion uint
	for v := range r.records {
		if v > maxVersion {
			maxVersion = v
		}
	}
	out := make([]*cryptoDomain.KeyRecord, 0, len(r.records))
	for v := maxVersion; v >= 1; v-- {
		if rec, ok := r.records[v]; ok {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}
