package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nftlend/observability/logging"
)

const (
	defaultListen      = ":8646"
	defaultGenesis     = "config/testdata/devnet.toml"
	defaultIssuer      = "nftlend"
	defaultRateLimit   = 120
	defaultRateBurst   = 20
	defaultStorageKind = StorageMemory

	// EnvJWTSecret overrides auth.hmac_secret.
	EnvJWTSecret = "LENDINGD_JWT_SECRET"
	// EnvIndexerDSN overrides indexer.dsn.
	EnvIndexerDSN = "LENDINGD_INDEXER_DSN"
)

// Storage backends for committed lending records.
const (
	StorageMemory  = "memory"
	StorageLevelDB = "leveldb"
	StorageBolt    = "bolt"
)

// Config captures the runtime settings for the lending service daemon.
type Config struct {
	ListenAddress string        `yaml:"listen"`
	Genesis       string        `yaml:"genesis"`
	Environment   string        `yaml:"env"`
	Devnet        bool          `yaml:"devnet"`
	Auth          AuthConfig    `yaml:"auth"`
	RateLimit     RateLimit     `yaml:"rate_limit"`
	Storage       StorageConfig `yaml:"storage"`
	Indexer       IndexerConfig `yaml:"indexer"`
	Logging       LoggingConfig `yaml:"logging"`
	Telemetry     Telemetry     `yaml:"telemetry"`
}

// AuthConfig describes the JWT verification applied to state-changing routes.
// The token subject carries the caller address.
type AuthConfig struct {
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

// RateLimit throttles requests per client address.
type RateLimit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// StorageConfig selects where committed registry records are written.
type StorageConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

// IndexerConfig points the event index at postgres (postgres://...) or
// sqlite (sqlite:<path> or sqlite::memory:). An empty DSN disables it.
type IndexerConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Traces   bool   `yaml:"traces"`
	Metrics  bool   `yaml:"metrics"`
}

// Default returns the configuration used when no file is supplied. Secrets
// still come from the environment.
func Default() (Config, error) {
	cfg := Config{}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the YAML configuration from disk, applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: defaultListen,
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.Auth.HMACSecret = secret
	}
	if dsn := strings.TrimSpace(os.Getenv(EnvIndexerDSN)); dsn != "" {
		cfg.Indexer.DSN = dsn
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Genesis = strings.TrimSpace(cfg.Genesis)
	if cfg.Genesis == "" {
		cfg.Genesis = defaultGenesis
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = defaultIssuer
	}
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = defaultRateLimit
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = defaultRateBurst
	}
	cfg.Storage.Kind = strings.ToLower(strings.TrimSpace(cfg.Storage.Kind))
	if cfg.Storage.Kind == "" {
		cfg.Storage.Kind = defaultStorageKind
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	cfg.Indexer.DSN = strings.TrimSpace(cfg.Indexer.DSN)
	cfg.Logging.Level = strings.TrimSpace(cfg.Logging.Level)
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
}

// Validate ensures the configuration is internally consistent.
func (cfg Config) Validate() error {
	if len(cfg.Auth.HMACSecret) < 16 {
		return fmt.Errorf("auth: hmac_secret must be at least 16 bytes (set %s)", EnvJWTSecret)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must be non-negative")
	}
	switch cfg.Storage.Kind {
	case StorageMemory:
	case StorageLevelDB, StorageBolt:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage: path required for %s backend", cfg.Storage.Kind)
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Kind)
	}
	if dsn := cfg.Indexer.DSN; dsn != "" && !strings.HasPrefix(dsn, "postgres://") &&
		!strings.HasPrefix(dsn, "postgresql://") && !strings.HasPrefix(dsn, "sqlite:") {
		return fmt.Errorf("indexer: unsupported dsn scheme")
	}
	if cfg.Devnet && strings.EqualFold(cfg.Environment, "production") {
		return fmt.Errorf("devnet routes cannot be enabled in production")
	}
	return nil
}

// Sanitized returns a copy of the Config with secrets masked for logging.
func (cfg Config) Sanitized() Config {
	clone := cfg
	clone.Auth.HMACSecret = logging.MaskValue(clone.Auth.HMACSecret)
	clone.Indexer.DSN = logging.MaskDSN(clone.Indexer.DSN)
	return clone
}
