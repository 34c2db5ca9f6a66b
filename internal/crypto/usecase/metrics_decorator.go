package usecase

import (
	"context"
	"time"

	"github.com/allisson/fieldcrypt/internal/metrics"
)

// fieldEncryptorWithMetrics decorates FieldEncryptor with metrics instrumentation.
type fieldEncryptorWithMetrics struct {
	next    FieldEncryptor
	metrics metrics.EngineMetrics
}

// NewFieldEncryptorWithMetrics wraps a FieldEncryptor with metrics recording.
func NewFieldEncryptorWithMetrics(encryptor FieldEncryptor, m metrics.EngineMetrics) FieldEncryptor {
	return &fieldEncryptorWithMetrics{
		next:    encryptor,
		metrics: m,
	}
}

// Encrypt records metrics for field encryption operations.
func (f *fieldEncryptorWithMetrics) Encrypt(
	ctx context.Context,
	plaintext []byte,
	fieldContext string,
) (string, error) {
	start := time.Now()
	payload, err := f.next.Encrypt(ctx, plaintext, fieldContext)

	status := "success"
	if err != nil {
		status = "error"
	}

	f.metrics.RecordOperation(ctx, "encrypt", status)
	f.metrics.RecordDuration(ctx, "encrypt", time.Since(start), status)

	return payload, err
}

// Decrypt records metrics for field decryption operations.
func (f *fieldEncryptorWithMetrics) Decrypt(
	ctx context.Context,
	payload string,
	fieldContext string,
) ([]byte, error) {
	start := time.Now()
	plaintext, err := f.next.Decrypt(ctx, payload, fieldContext)

	status := "success"
	if err != nil {
		status = "error"
	}

	f.metrics.RecordOperation(ctx, "decrypt", status)
	f.metrics.RecordDuration(ctx, "decrypt", time.Since(start), status)

	return plaintext, err
}

// SearchHash records metrics for search hash operations.
func (f *fieldEncryptorWithMetrics) SearchHash(value []byte, salt string) (string, error) {
	start := time.Now()
	hash, err := f.next.SearchHash(value, salt)

	status := "success"
	if err != nil {
		status = "error"
	}

	ctx := context.Background()
	f.metrics.RecordOperation(ctx, "search_hash", status)
	f.metrics.RecordDuration(ctx, "search_hash", time.Since(start), status)

	return hash, err
}

// Rotate records metrics for key rotation operations.
func (f *fieldEncryptorWithMetrics) Rotate(ctx context.Context) (uint, error) {
	start := time.Now()
	version, err := f.next.Rotate(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}

	f.metrics.RecordOperation(ctx, "rotate", status)
	f.metrics.RecordDuration(ctx, "rotate", time.Since(start), status)

	return version, err
}

// Revoke records metrics for key revocation operations.
func (f *fieldEncryptorWithMetrics) Revoke(ctx context.Context, version uint) error {
	start := time.Now()
	err := f.next.Revoke(ctx, version)

	status := "success"
	if err != nil {
		status = "error"
	}

	f.metrics.RecordOperation(ctx, "revoke", status)
	f.metrics.RecordDuration(ctx, "revoke", time.Since(start), status)

	return err
}

// Stats returns the wrapped encryptor's counters.
func (f *fieldEncryptorWithMetrics) Stats() Stats {
	return f.next.Stats()
}

// Close closes the wrapped encryptor.
func (f *fieldEncryptorWithMetrics) Close() error {
	return f.next.Close()
}
