// Command htree-server runs the HTTP transport for the append-only
// Merkle blob store described in spec.md §6.2. Its shape — a Server
// struct wiring optional subsystems, a gorilla/mux router, and graceful
// shutdown on SIGINT/SIGTERM — follows the teacher's cmd/server/main.go.
// Its argument contract follows spec.md §6.6: positional
// <bind-addr=127.0.0.1> [port=2636], the same cobra-based shape as
// cmd/htree-client, with ambient subsystem toggles layered on as flags.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kindlyrobotics/htree/internal/attest"
	"github.com/kindlyrobotics/htree/internal/audit"
	"github.com/kindlyrobotics/htree/internal/config"
	"github.com/kindlyrobotics/htree/internal/ratelimit"
	"github.com/kindlyrobotics/htree/internal/storage"
)

func main() {
	if err := newServeCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newServeCmd builds the root command: positional <bind-addr> [port] per
// spec.md §6.6, with the server's ambient subsystem toggles as flags.
func newServeCmd() *cobra.Command {
	cfg := config.ServerFromEnv()

	var dataDir, auditDSN, s3Endpoint, signingKey string

	cmd := &cobra.Command{
		Use:   "htree-server [bind-addr] [port]",
		Short: "Server for the htree verifiable append-only blob store",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bindAddr := cfg.BindAddr
			if len(args) > 0 {
				bindAddr = args[0]
			}
			port := cfg.Port
			if len(args) > 1 {
				p, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid port: %w", err)
				}
				port = p
			}
			return runServer(bindAddr, port, dataDir, auditDSN, s3Endpoint, signingKey)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", cfg.DataDir, "on-disk store directory")
	cmd.Flags().StringVar(&auditDSN, "audit-dsn", cfg.AuditDSN, "optional Postgres DSN for the audit ledger")
	cmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", cfg.S3Endpoint, "optional S3-compatible endpoint for blob mirroring")
	cmd.Flags().StringVar(&signingKey, "signing-key", cfg.SigningKeyPath, "optional path to a Dilithium3 signing key for /sth")

	return cmd
}

func runServer(bindAddr string, port int, dataDir, auditDSN, s3Endpoint, signingKey string) error {
	cfg := config.ServerFromEnv()

	log.Println("[Server] Starting htree-server...")

	store, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("[Server] WARN: Redis unreachable, push rate limiting disabled: %v", err)
		} else {
			limiter = ratelimit.NewLimiter(rdb)
			log.Println("[Server] Redis connection established, push rate limiting active")
		}
	} else {
		limiter = ratelimit.NewLimiter(nil)
	}

	var signer *attest.Signer
	if signingKey != "" {
		signer, err = attest.NewSignerFromFile(signingKey)
		if err != nil {
			log.Printf("[Server] WARN: Failed to load signing key: %v (attestation disabled)", err)
			signer = nil
		} else {
			log.Printf("[Server] Loaded attestation key: %s", signer.Fingerprint())
		}
	}

	var ledger *audit.Ledger
	if auditDSN != "" {
		ledger, err = audit.Open(auditDSN)
		if err != nil {
			log.Printf("[Server] WARN: Failed to open audit ledger: %v (auditing disabled)", err)
			ledger = nil
		}
	}
	defer ledger.Close()

	var mirror *storage.BlobMirror
	if s3Endpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mirror, err = storage.NewBlobMirror(ctx, s3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL)
		cancel()
		if err != nil {
			log.Printf("[Server] WARN: Failed to init blob mirror: %v (mirroring disabled)", err)
			mirror = nil
		}
	}

	srv := &Server{
		store:   store,
		limiter: limiter,
		signer:  signer,
		ledger:  ledger,
		mirror:  mirror,
	}

	router := srv.setupRouter()

	addr := bindAddr + ":" + strconv.Itoa(port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[Server] HTTP server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("[Server] Server exited gracefully")
	return nil
}

func (s *Server) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/sth", s.handleSTH).Methods("GET")
	router.HandleFunc("/", s.handlePush).Methods("POST")
	router.HandleFunc("/{id}/proof", s.handleProof).Methods("GET")
	router.HandleFunc("/{id}", s.handleGet).Methods("GET")

	return router
}
