// Package storage implements the server-side persistence layer described
// in spec.md §6.4: one serialized HMap per known root, indexed by the
// root's hex encoding, plus the payload blobs pushed into the store.
//
// Adapted from the teacher's internal/storage.Service (pre-signed S3
// upload/download flow backed by minio-go): here the canonical copy of
// every blob always lives on local disk under data/, since that is what
// the verification path reads back, and the minio-go mirror in blobs.go
// is a purely optional, best-effort secondary copy.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/kindlyrobotics/htree/internal/merkle"
)

// Store indexes on-disk HMap documents by their current root and keeps
// the pushed payload blobs alongside them. A Store serializes pushes with
// a single mutex: spec.md §5 requires single-writer-per-dataset, and here
// "dataset" is the whole directory a Store manages.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open returns a Store rooted at dir, creating dir if it does not yet
// exist (spec.md §6.4: "Absence of data/ is a startup error the server
// creates on demand").
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) storePath(root merkle.H) string {
	return filepath.Join(s.dir, root.String()+".store")
}

func (s *Store) payloadPath(hash merkle.H) string {
	return filepath.Join(s.dir, hash.String())
}

// Load reads the HMap document for root. A nil root means "no store yet"
// and returns a freshly created empty store, mirroring the client's first
// push (no root supplied).
func (s *Store) Load(root *merkle.H) (*merkle.HMap[[]byte], error) {
	if root == nil {
		return merkle.New[[]byte](), nil
	}
	b, err := os.ReadFile(s.storePath(*root))
	if err != nil {
		return nil, fmt.Errorf("storage: load root %s: %w", root, err)
	}
	m := merkle.New[[]byte]()
	if err := json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("storage: decode store for root %s: %w", root, err)
	}
	return m, nil
}

// Lock acquires the Store's single-writer lock for the duration of a
// push; callers must call the returned unlock function exactly once.
func (s *Store) Lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

// SaveAtomic writes m under its newRoot's store file and then removes the
// oldRoot's file, if any. The write is atomic (write-to-temp, rename into
// place) so that at every instant either the old-root file or the
// new-root file is present — never neither. If the process crashes after
// the rename but before the delete, both files are left on disk; a
// subsequent call with the same (oldRoot, newRoot) pair rewrites the
// new-root file and removes the leftover old-root file, and an old-root
// file that is already gone is not an error, so the operation is safe to
// retry.
func (s *Store) SaveAtomic(oldRoot *merkle.H, newRoot merkle.H, m *merkle.HMap[[]byte]) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("storage: encode store for root %s: %w", newRoot, err)
	}
	if err := writeAtomic(s.storePath(newRoot), b); err != nil {
		return fmt.Errorf("storage: persist root %s: %w", newRoot, err)
	}
	if oldRoot != nil && *oldRoot != newRoot {
		if err := os.Remove(s.storePath(*oldRoot)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("storage: remove stale root %s: %w", oldRoot, err)
		}
	}
	return nil
}

// SavePayload writes the raw pushed bytes under data/<hex(hash)>, the
// blob naming convention from spec.md §6.4.
func (s *Store) SavePayload(hash merkle.H, data []byte) error {
	if err := writeAtomic(s.payloadPath(hash), data); err != nil {
		return fmt.Errorf("storage: persist payload %s: %w", hash, err)
	}
	return nil
}

// LoadPayload reads back a previously-saved payload.
func (s *Store) LoadPayload(hash merkle.H) ([]byte, error) {
	b, err := os.ReadFile(s.payloadPath(hash))
	if err != nil {
		return nil, fmt.Errorf("storage: load payload %s: %w", hash, err)
	}
	return b, nil
}

// writeAtomic writes data to a uniquely-named temp file in the same
// directory as path and renames it into place, so readers never observe a
// partially-written file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
