package commands

import (
	"context"
	"fmt"

	"github.com/allisson/fieldcrypt/internal/app"
)

// RunEncryptValue encrypts a single value under the active key and prints
// the serialized payload. Intended for testing configurations and for
// one-off operations like seeding fixtures.
func RunEncryptValue(ctx context.Context, value, fieldContext string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	encryptor, err := container.FieldEncryptor(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize field encryptor: %w", err)
	}

	payload, err := encryptor.Encrypt(ctx, []byte(value), fieldContext)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}

	fmt.Println(payload)
	return nil
}

// RunDecryptValue decrypts a serialized payload and prints the plaintext.
func RunDecryptValue(ctx context.Context, payload, fieldContext string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	encryptor, err := container.FieldEncryptor(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize field encryptor: %w", err)
	}

	plaintext, err := encryptor.Decrypt(ctx, payload, fieldContext)
	if err != nil {
		return fmt.Errorf("failed to decrypt value: %w", err)
	}

	fmt.Println(string(plaintext))
	return nil
}

// RunSearchHash prints the deterministic search hash for a value and salt.
func RunSearchHash(ctx context.Context, value, salt string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	encryptor, err := container.FieldEncryptor(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize field encryptor: %w", err)
	}

	hash, err := encryptor.SearchHash([]byte(value), salt)
	if err != nil {
		return fmt.Errorf("failed to compute search hash: %w", err)
	}

	fmt.Println(hash)
	return nil
}
