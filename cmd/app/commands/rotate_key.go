package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/fieldcrypt/internal/app"
)

// RunRotateKey generates and activates a new key version. The previous
// active key is retired but remains available for decrypting existing
// payloads. Running this against an empty key store creates version 1.
func RunRotateKey(ctx context.Context) error {
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

	version, err := encryptor.Rotate(ctx)
	if err != nil {
		return fmt.Errorf("failed to rotate key: %w", err)
	}

	logger.Info("key rotated successfully", slog.Uint64("version", uint64(version)))
	fmt.Printf("New active key version: %d\n", version)

	return nil
}
