package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/fieldcrypt/internal/app"
)

// RunRevokeKey permanently blocks decryption with the given key version.
// The active version cannot be revoked; rotate first. Revocation is
// irreversible: payloads written under the revoked version become
// unreadable.
func RunRevokeKey(ctx context.Context, version uint) error {
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

	if err := encryptor.Revoke(ctx, version); err != nil {
		return fmt.Errorf("failed to revoke key version %d: %w", version, err)
	}

	logger.Info("key revoked successfully", slog.Uint64("version", uint64(version)))
	fmt.Printf("Key version %d revoked\n", version)

	return nil
}
