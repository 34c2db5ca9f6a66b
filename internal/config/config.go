// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	validation "github.com/jellydator/validation"
	"github.com/joho/godotenv"

	appvalidation "github.com/allisson/fieldcrypt/internal/validation"
)

// Config holds all application configuration.
type Config struct {
	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string

	// DefaultAlgorithm is the AEAD algorithm used for new keys
	// ("aes-gcm" or "chacha20-poly1305").
	DefaultAlgorithm string

	// KMSKeyURI is the URI of the key-wrapping key (e.g., "base64key://...",
	// "hashivault://keyname").
	KMSKeyURI string

	// KeyStorePath is the directory where wrapped key records are stored.
	// When empty, keys are loaded read-only from the FIELD_KEYS variable.
	KeyStorePath string
	// FieldKeys holds wrapped key records in "version:status:algorithm:base64key"
	// comma-separated form. Only consulted when KeyStorePath is empty.
	FieldKeys string
	// KeyStoreTimeout bounds each key store or KMS call.
	KeyStoreTimeout time.Duration
	// KeyStoreMaxRetries is the number of additional attempts for transient
	// key store failures.
	KeyStoreMaxRetries int

	// CacheEnabled indicates whether the decrypted value cache is enabled.
	CacheEnabled bool
	// CacheMaxBytes is the total plaintext byte budget of the cache.
	CacheMaxBytes int
	// CacheMaxEntries is the maximum number of cached values.
	CacheMaxEntries int
	// CacheTTL is the fixed time-to-live applied to every cached value.
	CacheTTL time.Duration

	// SearchKeys holds the search key chain in "id:base64key" comma-separated
	// form. The key material is wrapped with the KMS key.
	SearchKeys string
	// ActiveSearchKeyID selects the search key used for new hashes.
	ActiveSearchKeyID string

	// MetricsEnabled indicates whether metrics collection is enabled.
	MetricsEnabled bool
	// MetricsNamespace is the namespace for the application metrics.
	MetricsNamespace string
	// MetricsHost is the host address the metrics server will bind to.
	MetricsHost string
	// MetricsPort is the port number for the metrics server.
	MetricsPort int
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	return &Config{
		// Logging
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		// Encryption
		DefaultAlgorithm: env.GetString("DEFAULT_ALGORITHM", "aes-gcm"),
		KMSKeyURI:        env.GetString("KMS_KEY_URI", ""),

		// Key store
		KeyStorePath:       env.GetString("KEYSTORE_PATH", ""),
		FieldKeys:          env.GetString("FIELD_KEYS", ""),
		KeyStoreTimeout:    env.GetDuration("KEYSTORE_TIMEOUT_SECONDS", 5, time.Second),
		KeyStoreMaxRetries: env.GetInt("KEYSTORE_MAX_RETRIES", 2),

		// Decrypted value cache
		CacheEnabled:    env.GetBool("CACHE_ENABLED", true),
		CacheMaxBytes:   env.GetInt("CACHE_MAX_BYTES", 1<<20),
		CacheMaxEntries: env.GetInt("CACHE_MAX_ENTRIES", 1024),
		CacheTTL:        env.GetDuration("CACHE_TTL_SECONDS", 300, time.Second),

		// Search hashing
		SearchKeys:        env.GetString("SEARCH_KEYS", ""),
		ActiveSearchKeyID: env.GetString("ACTIVE_SEARCH_KEY_ID", ""),

		// Metrics
		MetricsEnabled:   env.GetBool("METRICS_ENABLED", true),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "fieldcrypt"),
		MetricsHost:      env.GetString("METRICS_HOST", "0.0.0.0"),
		MetricsPort:      env.GetInt("METRICS_PORT", 8081),
	}
}

// Validate checks that the loaded configuration is usable before any
// component is constructed.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel,
			validation.Required,
			validation.In("debug", "info", "warn", "error"),
		),
		validation.Field(&c.DefaultAlgorithm,
			validation.Required,
			validation.In("aes-gcm", "chacha20-poly1305"),
		),
		validation.Field(&c.KMSKeyURI, validation.Required),
		validation.Field(&c.FieldKeys, appvalidation.FieldKeys),
		validation.Field(&c.KeyStoreMaxRetries, validation.Min(0)),
		validation.Field(&c.CacheMaxBytes, validation.Min(0)),
		validation.Field(&c.CacheMaxEntries, validation.Min(0)),
		validation.Field(&c.SearchKeys, appvalidation.KeyChain),
	)
	return appvalidation.WrapValidationError(err)
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	// Get current working directory
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	// Search for .env file recursively up the directory tree
	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			// .env file found, load it
			_ = godotenv.Load(envPath)
			return
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}
}
