// Package audit keeps an append-only Postgres ledger of root transitions,
// adapted from the teacher's internal/db.DB connection setup (sql.Open,
// connection pool tuning, migrations-table bootstrap). A store's on-disk
// files already let it recover its own history, so this ledger exists for
// operators who want transitions recorded somewhere outside the server's
// own disk - auditing, not recovery.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/kindlyrobotics/htree/internal/merkle"
)

// RootTransition records one push's effect on a store's root.
type RootTransition struct {
	Nth       uint64
	OldRoot   *merkle.H
	NewRoot   merkle.H
	LeafHash  merkle.H
	Timestamp time.Time
}

// Ledger records root transitions to Postgres. A nil *Ledger is valid and
// every method on it is a no-op, so callers can construct one
// unconditionally and simply skip wiring it when AUDIT_DSN is unset.
type Ledger struct {
	db *sql.DB
}

// Open connects to the ledger database at dsn and ensures its table
// exists. Mirrors the teacher's NewDB pool tuning (max open/idle conns,
// conn lifetime) and its PingContext startup check.
func Open(dsn string) (*Ledger, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("audit: ping postgres: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.ensureSchema(ctx); err != nil {
		return nil, err
	}
	log.Println("[Audit] PostgreSQL ledger connection established")
	return l, nil
}

// OpenFromEnv opens a Ledger using the AUDIT_DSN environment variable,
// returning (nil, nil) when it is unset so that auditing is simply
// disabled rather than an error.
func OpenFromEnv() (*Ledger, error) {
	dsn := os.Getenv("AUDIT_DSN")
	if dsn == "" {
		return nil, nil
	}
	return Open(dsn)
}

func (l *Ledger) ensureSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS root_transitions (
			id SERIAL PRIMARY KEY,
			nth BIGINT NOT NULL,
			old_root CHAR(64),
			new_root CHAR(64) NOT NULL,
			leaf_hash CHAR(64) NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("audit: create root_transitions table: %w", err)
	}
	return nil
}

// Record appends one transition to the ledger. Errors are returned to the
// caller rather than swallowed: unlike blob mirroring, an audit gap is
// something an operator running with AUDIT_DSN set wants to know about.
func (l *Ledger) Record(ctx context.Context, t RootTransition) error {
	if l == nil {
		return nil
	}
	var oldRoot *string
	if t.OldRoot != nil {
		s := t.OldRoot.String()
		oldRoot = &s
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO root_transitions (nth, old_root, new_root, leaf_hash, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.Nth, oldRoot, t.NewRoot.String(), t.LeafHash.String(), t.Timestamp)
	if err != nil {
		return fmt.Errorf("audit: record transition: %w", err)
	}
	return nil
}

// History returns every recorded transition, oldest first.
func (l *Ledger) History(ctx context.Context) ([]RootTransition, error) {
	if l == nil {
		return nil, nil
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT nth, old_root, new_root, leaf_hash, recorded_at
		FROM root_transitions
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("audit: query history: %w", err)
	}
	defer rows.Close()

	var out []RootTransition
	for rows.Next() {
		var t RootTransition
		var oldRoot *string
		var newRoot, leafHash string
		if err := rows.Scan(&t.Nth, &oldRoot, &newRoot, &leafHash, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("audit: scan transition: %w", err)
		}
		if oldRoot != nil {
			h, err := merkle.ParseHash(*oldRoot)
			if err != nil {
				return nil, fmt.Errorf("audit: parse old root: %w", err)
			}
			t.OldRoot = &h
		}
		newH, err := merkle.ParseHash(newRoot)
		if err != nil {
			return nil, fmt.Errorf("audit: parse new root: %w", err)
		}
		t.NewRoot = newH
		leafH, err := merkle.ParseHash(leafHash)
		if err != nil {
			return nil, fmt.Errorf("audit: parse leaf hash: %w", err)
		}
		t.LeafHash = leafH
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
