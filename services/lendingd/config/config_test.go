package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nftlend/observability/logging"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6000 "
auth:
  hmac_secret: " 0123456789abcdef0123 "
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":6000", cfg.ListenAddress)
	require.Equal(t, "0123456789abcdef0123", cfg.Auth.HMACSecret)
	require.Equal(t, defaultIssuer, cfg.Auth.Issuer)
	require.Equal(t, 2*time.Minute, cfg.Auth.ClockSkew)
	require.Equal(t, StorageMemory, cfg.Storage.Kind)
	require.Equal(t, float64(defaultRateLimit), cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, defaultGenesis, cfg.Genesis)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvJWTSecret, "from-environment-secret")
	t.Setenv(EnvIndexerDSN, "sqlite::memory:")
	path := writeConfig(t, `
auth:
  hmac_secret: short
storage:
  kind: BOLT
  path: /tmp/lending.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-environment-secret", cfg.Auth.HMACSecret)
	require.Equal(t, "sqlite::memory:", cfg.Indexer.DSN)
	require.Equal(t, StorageBolt, cfg.Storage.Kind)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"short secret": `
auth:
  hmac_secret: short
`,
		"storage path": `
auth:
  hmac_secret: 0123456789abcdef
storage:
  kind: leveldb
`,
		"unknown backend": `
auth:
  hmac_secret: 0123456789abcdef
storage:
  kind: redis
`,
		"indexer scheme": `
auth:
  hmac_secret: 0123456789abcdef
indexer:
  dsn: mysql://root@localhost/lending
`,
		"devnet in production": `
env: production
devnet: true
auth:
  hmac_secret: 0123456789abcdef
`,
		"unknown field": `
auth:
  hmac_secret: 0123456789abcdef
tls:
  cert: server.crt
`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, contents))
			require.Error(t, err)
		})
	}
}

func TestSanitizedMasksSecrets(t *testing.T) {
	cfg := Config{
		Auth:    AuthConfig{HMACSecret: "0123456789abcdef"},
		Indexer: IndexerConfig{DSN: "postgres://lend:hunter2@db:5432/lending"},
	}
	clean := cfg.Sanitized()
	require.Equal(t, logging.RedactedValue, clean.Auth.HMACSecret)
	require.Equal(t, "postgres://[REDACTED]@db:5432/lending", clean.Indexer.DSN)
	require.Equal(t, "0123456789abcdef", cfg.Auth.HMACSecret)
}

func TestDefaultRequiresSecretFromEnvironment(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")
	_, err := Default()
	require.Error(t, err)

	t.Setenv(EnvJWTSecret, "0123456789abcdef")
	cfg, err := Default()
	require.NoError(t, err)
	require.Equal(t, defaultListen, cfg.ListenAddress)
}
