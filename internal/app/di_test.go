package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/allisson/fieldcrypt/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LogLevel:           "info",
		DefaultAlgorithm:   "aes-gcm",
		KMSKeyURI:          "base64key://",
		KeyStorePath:       t.TempDir(),
		KeyStoreTimeout:    time.Second,
		KeyStoreMaxRetries: 1,
		CacheEnabled:       true,
		CacheMaxBytes:      1 << 16,
		CacheMaxEntries:    64,
		CacheTTL:           time.Minute,
		MetricsEnabled:     false,
		MetricsNamespace:   "fieldcrypt_test",
		MetricsHost:        "127.0.0.1",
		MetricsPort:        0,
	}
}

// TestNewContainer verifies that a new container can be created with a valid configuration.
func TestNewContainer(t *testing.T) {
	cfg := testConfig(t)
	container := NewContainer(cfg)

	if container == nil {
		t.Fatal("expected non-nil container")
	}

	if container.Config() != cfg {
		t.Error("container config does not match provided config")
	}
}

// TestContainerLogger verifies that the logger can be retrieved from the container.
func TestContainerLogger(t *testing.T) {
	container := NewContainer(&config.Config{LogLevel: "debug"})
	logger := container.Logger()

	if logger == nil {
		t.Fatal("expected non-nil logger")
	}

	// Calling Logger() again should return the same instance (singleton)
	logger2 := container.Logger()
	if logger != logger2 {
		t.Error("expected same logger instance on multiple calls")
	}
}

// TestContainerFieldEncryptor wires the whole engine together and runs a
// round trip through the facade.
func TestContainerFieldEncryptor(t *testing.T) {
	ctx := context.Background()
	container := NewContainer(testConfig(t))
	defer func() {
		if err := container.Shutdown(ctx); err != nil {
			t.Errorf("shutdown failed: %v", err)
		}
	}()

	encryptor, err := container.FieldEncryptor(ctx)
	if err != nil {
		t.Fatalf("failed to get field encryptor: %v", err)
	}

	// Same instance on repeated access
	encryptor2, err := container.FieldEncryptor(ctx)
	if err != nil {
		t.Fatalf("failed to get field encryptor again: %v", err)
	}
	if encryptor != encryptor2 {
		t.Error("expected same field encryptor instance on multiple calls")
	}

	if _, err := encryptor.Rotate(ctx); err != nil {
		t.Fatalf("failed to create first key: %v", err)
	}

	payload, err := encryptor.Encrypt(ctx, []byte("611-22-8145"), "users.ssn")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	plaintext, err := encryptor.Decrypt(ctx, payload, "users.ssn")
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(plaintext, []byte("611-22-8145")) {
		t.Errorf("round trip mismatch: got %q", plaintext)
	}
}

// TestContainerSearchKeyChain verifies search keys are unwrapped via the keeper.
func TestContainerSearchKeyChain(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	container := NewContainer(cfg)
	defer func() { _ = container.Shutdown(ctx) }()

	keeper, err := container.Keeper()
	if err != nil {
		t.Fatalf("failed to get keeper: %v", err)
	}

	rawKey := bytes.Repeat([]byte{0x42}, 32)
	wrapped, err := keeper.Encrypt(ctx, rawKey)
	if err != nil {
		t.Fatalf("failed to wrap search key: %v", err)
	}
	cfg.SearchKeys = "k1:" + base64.StdEncoding.EncodeToString(wrapped)

	chain, err := container.SearchKeyChain(ctx)
	if err != nil {
		t.Fatalf("failed to get search key chain: %v", err)
	}
	if chain == nil {
		t.Fatal("expected non-nil search key chain")
	}
	if chain.ActiveID() != "k1" {
		t.Errorf("expected active id k1, got %s", chain.ActiveID())
	}

	key, ok := chain.Get("k1")
	if !ok {
		t.Fatal("expected key k1 in chain")
	}
	if !bytes.Equal(key, rawKey) {
		t.Error("unwrapped key does not match original")
	}

	encryptor, err := container.FieldEncryptor(ctx)
	if err != nil {
		t.Fatalf("failed to get field encryptor: %v", err)
	}
	hash, err := encryptor.SearchHash([]byte("alice@example.com"), "email")
	if err != nil {
		t.Fatalf("search hash failed: %v", err)
	}
	if hash == "" {
		t.Error("expected non-empty search hash")
	}
}

// TestContainerNoSearchKeys verifies search hashing fails cleanly when not configured.
func TestContainerNoSearchKeys(t *testing.T) {
	ctx := context.Background()
	container := NewContainer(testConfig(t))
	defer func() { _ = container.Shutdown(ctx) }()

	encryptor, err := container.FieldEncryptor(ctx)
	if err != nil {
		t.Fatalf("failed to get field encryptor: %v", err)
	}

	if _, err := encryptor.SearchHash([]byte("value"), "email"); err == nil {
		t.Error("expected error when search keys are not configured")
	}
}

// TestContainerOpsServer verifies the ops server can be assembled.
func TestContainerOpsServer(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.MetricsEnabled = true
	container := NewContainer(cfg)
	defer func() { _ = container.Shutdown(ctx) }()

	server, err := container.OpsServer(ctx)
	if err != nil {
		t.Fatalf("failed to get ops server: %v", err)
	}
	if server == nil {
		t.Fatal("expected non-nil ops server")
	}
}

// TestContainerInitializationErrors verifies that initialization errors are
// properly handled and repeated on subsequent access.
func TestContainerInitializationErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.KMSKeyURI = "bogus://nope"
	container := NewContainer(cfg)

	if _, err := container.Keeper(); err == nil {
		t.Fatal("expected error for invalid KMS key URI")
	}

	// Error should be sticky
	if _, err := container.Keeper(); err == nil {
		t.Fatal("expected sticky error on second access")
	}

	if _, err := container.FieldEncryptor(context.Background()); err == nil {
		t.Fatal("expected field encryptor init to fail without keeper")
	}
}
