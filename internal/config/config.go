// Package config collects the environment-variable and flag driven
// settings cmd/htree-server needs, the way the teacher's cmd/server reads
// DATABASE_URL, REDIS_URL, TWILIO_* etc. directly from os.Getenv at
// startup rather than through a config struct. Here they are gathered
// into one place because htree-server has several genuinely optional
// subsystems (audit, attestation, blob mirroring) that all need their own
// on/off switch.
package config

import (
	"os"
	"strconv"
)

// Server holds the settings cmd/htree-server needs to start.
type Server struct {
	// BindAddr and Port form the listen address, matching spec.md §6.6's
	// server CLI shape (<bind-addr=127.0.0.1> [port=2636]).
	BindAddr string
	Port     int

	// DataDir is where internal/storage.Store keeps its on-disk index.
	DataDir string

	// AuditDSN, when non-empty, enables internal/audit's Postgres ledger.
	AuditDSN string

	// SigningKeyPath, when non-empty, enables internal/attest signed tree
	// heads for GET /sth.
	SigningKeyPath string

	// S3Endpoint, when non-empty, enables internal/storage's blob mirror.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// RedisAddr, when non-empty, enables internal/ratelimit's per-IP push
	// throttling. Push requests are allowed unconditionally without it.
	RedisAddr     string
	RedisPassword string
}

// DefaultPort is spec.md §6.6's default server port.
const DefaultPort = 2636

// ServerFromEnv builds a Server from environment variables, falling back
// to spec.md's documented defaults. Flags passed on the CLI (see
// cmd/htree-server) override these.
func ServerFromEnv() Server {
	return Server{
		BindAddr:       envOrDefault("HTREE_BIND_ADDR", "127.0.0.1"),
		Port:           envIntOrDefault("HTREE_PORT", DefaultPort),
		DataDir:        envOrDefault("HTREE_DATA_DIR", "data"),
		AuditDSN:       os.Getenv("AUDIT_DSN"),
		SigningKeyPath: os.Getenv("HTREE_SIGNING_KEY"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3AccessKey:    envOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:    envOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:       envOrDefault("S3_BUCKET", "htree-blobs"),
		S3UseSSL:       os.Getenv("S3_USE_SSL") == "true",
		RedisAddr:      os.Getenv("REDIS_URL"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
