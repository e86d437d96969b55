package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"HTREE_BIND_ADDR", "HTREE_PORT", "HTREE_DATA_DIR", "AUDIT_DSN",
		"HTREE_SIGNING_KEY", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY",
		"S3_BUCKET", "S3_USE_SSL", "REDIS_URL", "REDIS_PASSWORD",
	} {
		t.Setenv(key, "")
	}

	cfg := ServerFromEnv()
	assert.Equal(t, "127.0.0.1", cfg.BindAddr)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Empty(t, cfg.AuditDSN)
	assert.Equal(t, "minioadmin", cfg.S3AccessKey)
	assert.False(t, cfg.S3UseSSL)
}

func TestServerFromEnvOverrides(t *testing.T) {
	t.Setenv("HTREE_BIND_ADDR", "0.0.0.0")
	t.Setenv("HTREE_PORT", "9999")
	t.Setenv("S3_USE_SSL", "true")

	cfg := ServerFromEnv()
	assert.Equal(t, "0.0.0.0", cfg.BindAddr)
	assert.Equal(t, 9999, cfg.Port)
	assert.True(t, cfg.S3UseSSL)
}

func TestEnvIntOrDefaultIgnoresGarbage(t *testing.T) {
	t.Setenv("HTREE_PORT", "not-a-number")
	cfg := ServerFromEnv()
	assert.Equal(t, DefaultPort, cfg.Port)
}
