// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/fieldcrypt/internal/cache"
	"github.com/allisson/fieldcrypt/internal/config"
	cryptoDomain "github.com/allisson/fieldcrypt/internal/crypto/domain"
	"github.com/allisson/fieldcrypt/internal/crypto/repository"
	cryptoService "github.com/allisson/fieldcrypt/internal/crypto/service"
	cryptoUsecase "github.com/allisson/fieldcrypt/internal/crypto/usecase"
	"github.com/allisson/fieldcrypt/internal/http"
	"github.com/allisson/fieldcrypt/internal/metrics"
	"github.com/allisson/fieldcrypt/internal/search"
	"github.com/allisson/fieldcrypt/internal/secmem"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger *slog.Logger
	keeper cryptoService.Keeper

	// Repositories and services
	keyRepo     cryptoService.KeyRepository
	keyManager  *cryptoService.KeyManagerService
	searchChain *search.KeyChain

	// Use Cases
	fieldEncryptor cryptoUsecase.FieldEncryptor

	// Observability
	metricsProvider *metrics.Provider
	engineMetrics   metrics.EngineMetrics

	// Servers
	opsServer *http.OpsServer

	// Initialization flags and mutex for thread-safety
	mu                 sync.Mutex
	loggerInit         sync.Once
	keeperInit         sync.Once
	keyRepoInit        sync.Once
	keyManagerInit     sync.Once
	searchChainInit    sync.Once
	fieldEncryptorInit sync.Once
	metricsInit        sync.Once
	opsServerInit      sync.Once
	initErrors         map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// Keeper returns the KMS keeper used to wrap key material at rest.
func (c *Container) Keeper() (cryptoService.Keeper, error) {
	c.keeperInit.Do(func() {
		keeper, err := c.initKeeper()
		if err != nil {
			c.initErrors["keeper"] = err
			return
		}
		c.keeper = keeper
	})
	if storedErr, exists := c.initErrors["keeper"]; exists {
		return nil, storedErr
	}
	return c.keeper, nil
}

// KeyRepository returns the durable store for wrapped key records.
func (c *Container) KeyRepository() (cryptoService.KeyRepository, error) {
	c.keyRepoInit.Do(func() {
		repo, err := c.initKeyRepository()
		if err != nil {
			c.initErrors["keyRepo"] = err
			return
		}
		c.keyRepo = repo
	})
	if storedErr, exists := c.initErrors["keyRepo"]; exists {
		return nil, storedErr
	}
	return c.keyRepo, nil
}

// KeyManager returns the initialized key lifecycle manager.
func (c *Container) KeyManager(ctx context.Context) (*cryptoService.KeyManagerService, error) {
	c.keyManagerInit.Do(func() {
		km, err := c.initKeyManager(ctx)
		if err != nil {
			c.initErrors["keyManager"] = err
			return
		}
		c.keyManager = km
	})
	if storedErr, exists := c.initErrors["keyManager"]; exists {
		return nil, storedErr
	}
	return c.keyManager, nil
}

// SearchKeyChain returns the unwrapped search key chain, or nil when no
// search keys are configured.
func (c *Container) SearchKeyChain(ctx context.Context) (*search.KeyChain, error) {
	c.searchChainInit.Do(func() {
		chain, err := c.initSearchKeyChain(ctx)
		if err != nil {
			c.initErrors["searchChain"] = err
			return
		}
		c.searchChain = chain
	})
	if storedErr, exists := c.initErrors["searchChain"]; exists {
		return nil, storedErr
	}
	return c.searchChain, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	if err := c.ensureMetrics(); err != nil {
		return nil, err
	}
	return c.metricsProvider, nil
}

// EngineMetrics returns the engine metrics recorder. A no-op implementation
// is returned when metrics are disabled.
func (c *Container) EngineMetrics() (metrics.EngineMetrics, error) {
	if err := c.ensureMetrics(); err != nil {
		return nil, err
	}
	return c.engineMetrics, nil
}

// FieldEncryptor returns the field encryption facade.
func (c *Container) FieldEncryptor(ctx context.Context) (cryptoUsecase.FieldEncryptor, error) {
	c.fieldEncryptorInit.Do(func() {
		encryptor, err := c.initFieldEncryptor(ctx)
		if err != nil {
			c.initErrors["fieldEncryptor"] = err
			return
		}
		c.fieldEncryptor = encryptor
	})
	if storedErr, exists := c.initErrors["fieldEncryptor"]; exists {
		return nil, storedErr
	}
	return c.fieldEncryptor, nil
}

// OpsServer returns the operations HTTP server instance.
func (c *Container) OpsServer(ctx context.Context) (*http.OpsServer, error) {
	c.opsServerInit.Do(func() {
		server, err := c.initOpsServer(ctx)
		if err != nil {
			c.initErrors["opsServer"] = err
			return
		}
		c.opsServer = server
	})
	if storedErr, exists := c.initErrors["opsServer"]; exists {
		return nil, storedErr
	}
	return c.opsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	// Shutdown ops server if initialized
	if c.opsServer != nil {
		if err := c.opsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("ops server shutdown: %w", err))
		}
	}

	// Close the facade: purges the plaintext cache and zeroes key material
	if c.fieldEncryptor != nil {
		if err := c.fieldEncryptor.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("field encryptor close: %w", err))
		}
	} else if c.keyManager != nil {
		c.keyManager.Close()
	}

	// Wipe the search key chain if initialized
	if c.searchChain != nil {
		c.searchChain.Close()
	}

	// Flush pending metrics if initialized
	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	// Close the KMS keeper if initialized
	if c.keeper != nil {
		if err := c.keeper.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("keeper close: %w", err))
		}
	}

	// Wipe any scoped buffers still registered
	secmem.ReleaseAll()

	// Return combined errors if any occurred
	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initKeeper opens the KMS keeper for the configured key URI.
func (c *Container) initKeeper() (cryptoService.Keeper, error) {
	kms := cryptoService.NewKMSService()
	keeper, err := kms.OpenKeeper(context.Background(), c.config.KMSKeyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return keeper, nil
}

// initKeyRepository selects a key store backend based on configuration:
// a directory of wrapped key records, or the read-only FIELD_KEYS variable.
func (c *Container) initKeyRepository() (cryptoService.KeyRepository, error) {
	if c.config.KeyStorePath != "" {
		repo, err := repository.NewFileKeyRepository(c.config.KeyStorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open file key repository: %w", err)
		}
		return repo, nil
	}
	repo, err := repository.NewEnvKeyRepository(c.config.FieldKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to load env key repository: %w", err)
	}
	return repo, nil
}

// initKeyManager creates and initializes the key lifecycle manager.
func (c *Container) initKeyManager(ctx context.Context) (*cryptoService.KeyManagerService, error) {
	keeper, err := c.Keeper()
	if err != nil {
		return nil, fmt.Errorf("failed to get keeper for key manager: %w", err)
	}

	repo, err := c.KeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get key repository for key manager: %w", err)
	}

	km := cryptoService.NewKeyManager(
		repo,
		keeper,
		c.Logger(),
		cryptoDomain.Algorithm(c.config.DefaultAlgorithm),
		c.config.KeyStoreTimeout,
		c.config.KeyStoreMaxRetries,
	)
	if err := km.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}
	return km, nil
}

// initSearchKeyChain parses SEARCH_KEYS and unwraps each entry with the KMS keeper.
func (c *Container) initSearchKeyChain(ctx context.Context) (*search.KeyChain, error) {
	if c.config.SearchKeys == "" {
		return nil, nil
	}

	keeper, err := c.Keeper()
	if err != nil {
		return nil, fmt.Errorf("failed to get keeper for search key chain: %w", err)
	}

	wrapped, err := search.ParseWrappedKeys(c.config.SearchKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search keys: %w", err)
	}

	keys := make(map[string][]byte, len(wrapped))
	for _, entry := range wrapped {
		key, err := keeper.Decrypt(ctx, entry.Wrapped)
		if err != nil {
			return nil, fmt.Errorf("failed to unwrap search key %s: %w", entry.ID, err)
		}
		keys[entry.ID] = key
	}

	activeID := c.config.ActiveSearchKeyID
	if activeID == "" && len(wrapped) == 1 {
		activeID = wrapped[0].ID
	}

	chain, err := search.NewKeyChain(activeID, keys)
	if err != nil {
		for _, key := range keys {
			secmem.Wipe(key)
		}
		return nil, fmt.Errorf("failed to build search key chain: %w", err)
	}
	return chain, nil
}

// ensureMetrics initializes the metrics provider and engine metrics together.
func (c *Container) ensureMetrics() error {
	c.metricsInit.Do(func() {
		if !c.config.MetricsEnabled {
			c.engineMetrics = metrics.NewNoOpEngineMetrics()
			return
		}

		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metrics"] = fmt.Errorf("failed to create metrics provider: %w", err)
			return
		}

		engineMetrics, err := metrics.NewEngineMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metrics"] = fmt.Errorf("failed to create engine metrics: %w", err)
			return
		}

		c.metricsProvider = provider
		c.engineMetrics = engineMetrics
	})
	if storedErr, exists := c.initErrors["metrics"]; exists {
		return storedErr
	}
	return nil
}

// initFieldEncryptor creates the facade with all its dependencies.
func (c *Container) initFieldEncryptor(ctx context.Context) (cryptoUsecase.FieldEncryptor, error) {
	keyManager, err := c.KeyManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get key manager for field encryptor: %w", err)
	}

	chain, err := c.SearchKeyChain(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get search key chain for field encryptor: %w", err)
	}
	var hashService search.HashService
	if chain != nil {
		hashService = search.NewHMACHashService(chain, nil)
	}

	engineMetrics, err := c.EngineMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get engine metrics for field encryptor: %w", err)
	}

	var plaintextCache *cache.SecureCache
	if c.config.CacheEnabled {
		plaintextCache = cache.New(c.config.CacheMaxBytes, c.config.CacheMaxEntries, c.config.CacheTTL)
	}

	encryptor, err := cryptoUsecase.NewFieldEncryptionService(
		keyManager,
		cryptoService.NewAEADManager(),
		hashService,
		plaintextCache,
		engineMetrics,
		c.Logger(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create field encryptor: %w", err)
	}

	return cryptoUsecase.NewFieldEncryptorWithMetrics(encryptor, engineMetrics), nil
}

// initOpsServer creates the operations HTTP server with all its dependencies.
func (c *Container) initOpsServer(ctx context.Context) (*http.OpsServer, error) {
	encryptor, err := c.FieldEncryptor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get field encryptor for ops server: %w", err)
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for ops server: %w", err)
	}

	return http.NewOpsServer(
		c.config.MetricsHost,
		c.config.MetricsPort,
		c.Logger(),
		provider,
		encryptor,
	), nil
}
