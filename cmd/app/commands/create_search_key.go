package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/allisson/fieldcrypt/internal/crypto/service"
	"github.com/allisson/fieldcrypt/internal/secmem"
)

// RunCreateSearchKey generates a 32-byte search key, wraps it with the KMS
// keeper, and prints the SEARCH_KEYS entry to add to the environment. Key
// material is wiped from memory after encoding.
//
// If keyID is empty, a default ID in format "search-key-YYYY-MM-DD" is used.
//
// Search keys should not be rotated casually: changing the active search key
// invalidates every stored hash until the affected rows are re-hashed.
func RunCreateSearchKey(ctx context.Context, keyID, kmsKeyURI string) error {
	if kmsKeyURI == "" {
		return fmt.Errorf(
			"--kms-key-uri is required\n\nFor local development:\n  --kms-key-uri=\"base64key://<32-byte-base64-key>\"\n\nFor production, use a cloud KMS:\n  --kms-key-uri=\"gcpkms://projects/.../cryptoKeys/...\"\n  --kms-key-uri=\"awskms:///alias/...\"\n  --kms-key-uri=\"hashivault://keyname\"",
		)
	}

	if keyID == "" {
		keyID = fmt.Sprintf("search-key-%s", time.Now().Format("2006-01-02"))
	}

	searchKey := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(searchKey); err != nil {
		return fmt.Errorf("failed to generate search key: %w", err)
	}
	defer secmem.Wipe(searchKey)

	kmsService := cryptoService.NewKMSService()
	keeper, err := kmsService.OpenKeeper(ctx, kmsKeyURI)
	if err != nil {
		return fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close KMS keeper: %v\n", closeErr)
		}
	}()

	wrapped, err := keeper.Encrypt(ctx, searchKey)
	if err != nil {
		return fmt.Errorf("failed to wrap search key: %w", err)
	}

	fmt.Println("# Add to your environment:")
	fmt.Printf("SEARCH_KEYS=\"%s:%s\"\n", keyID, base64.StdEncoding.EncodeToString(wrapped))
	fmt.Printf("ACTIVE_SEARCH_KEY_ID=\"%s\"\n", keyID)

	return nil
}
