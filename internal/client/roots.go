package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kindlyrobotics/htree/internal/merkle"
)

// RootStore is roots.json from spec.md §6.5: a mapping from server
// identifier (host[:port]) to the client's current root for that server,
// updated atomically after every successful push or verified get.
type RootStore struct {
	path  string
	roots map[string]string
}

// OpenRootStore loads roots.json from dir, treating a missing file as an
// empty store (a client's first-ever push has no prior root).
func OpenRootStore(dir string) (*RootStore, error) {
	path := filepath.Join(dir, "roots.json")
	roots := make(map[string]string)

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("client: read roots.json: %w", err)
		}
	} else if err := json.Unmarshal(b, &roots); err != nil {
		return nil, fmt.Errorf("client: decode roots.json: %w", err)
	}

	return &RootStore{path: path, roots: roots}, nil
}

// Get returns the stored root for key, or nil if none is recorded yet.
func (rs *RootStore) Get(key string) (*merkle.H, error) {
	raw, ok := rs.roots[key]
	if !ok {
		return nil, nil
	}
	h, err := merkle.ParseHash(raw)
	if err != nil {
		return nil, fmt.Errorf("client: parse stored root for %s: %w", key, err)
	}
	return &h, nil
}

// Set records root for key and atomically persists roots.json.
func (rs *RootStore) Set(key string, root merkle.H) error {
	rs.roots[key] = root.String()
	b, err := json.MarshalIndent(rs.roots, "", "  ")
	if err != nil {
		return fmt.Errorf("client: encode roots.json: %w", err)
	}

	dir := filepath.Dir(rs.path)
	tmp := filepath.Join(dir, ".tmp-roots-"+uuid.NewString())
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("client: write roots.json: %w", err)
	}
	if err := os.Rename(tmp, rs.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("client: persist roots.json: %w", err)
	}
	return nil
}
