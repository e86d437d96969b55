package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/kindlyrobotics/htree/internal/attest"
	"github.com/kindlyrobotics/htree/internal/audit"
	"github.com/kindlyrobotics/htree/internal/merkle"
	"github.com/kindlyrobotics/htree/internal/ratelimit"
	"github.com/kindlyrobotics/htree/internal/storage"
)

// Server wires the core merkle store up to its optional domain
// subsystems, the way the teacher's Server struct holds one field per
// service and leaves fields nil when a subsystem failed to initialize.
type Server struct {
	store   *storage.Store
	limiter *ratelimit.Limiter
	signer  *attest.Signer
	ledger  *audit.Ledger
	mirror  *storage.BlobMirror
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func rootFromQuery(r *http.Request) (*merkle.H, error) {
	raw := r.URL.Query().Get("root")
	if raw == "" {
		return nil, nil
	}
	h, err := merkle.ParseHash(raw)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handlePush implements spec.md §6.2's POST /: multipart fields "hash"
// (64-char hex) and "file" (binary), optional query "root" naming the
// client's current root. Responds with the JSON Proof for the pushed
// entry.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	oldRoot, err := rootFromQuery(r)
	if err != nil {
		http.Error(w, "malformed root", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "malformed multipart request", http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		if err := s.limiter.CheckPush(r.Context(), clientIP(r)); err != nil {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	hashHex := r.FormValue("hash")
	hash, err := merkle.ParseHash(hashHex)
	if err != nil {
		http.Error(w, "malformed hash field", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read uploaded file", http.StatusInternalServerError)
		return
	}
	if merkle.Sum(data) != hash {
		http.Error(w, "hash does not match file contents", http.StatusBadRequest)
		return
	}

	unlock := s.store.Lock()
	defer unlock()

	m, err := s.store.Load(oldRoot)
	if err != nil {
		log.Printf("[Server] Failed to load store for root %v: %v", oldRoot, err)
		http.Error(w, "unknown root", http.StatusNotFound)
		return
	}

	proof := m.Push(hash, data)
	newRoot := m.Root()

	if err := s.store.SaveAtomic(oldRoot, newRoot, m); err != nil {
		log.Printf("[Server] Failed to persist store: %v", err)
		http.Error(w, "failed to persist store", http.StatusInternalServerError)
		return
	}
	if err := s.store.SavePayload(hash, data); err != nil {
		log.Printf("[Server] Failed to persist payload: %v", err)
		http.Error(w, "failed to persist payload", http.StatusInternalServerError)
		return
	}

	s.mirror.Mirror(r.Context(), hash, data)

	if s.ledger != nil {
		t := audit.RootTransition{
			Nth:       uint64(proof.Nth()),
			OldRoot:   oldRoot,
			NewRoot:   newRoot,
			LeafHash:  hash,
			Timestamp: time.Now(),
		}
		if err := s.ledger.Record(context.Background(), t); err != nil {
			log.Printf("[Server] WARN: failed to record audit transition: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(proof)
}

func parseIndex(r *http.Request) (int, error) {
	vars := mux.Vars(r)
	return strconv.Atoi(vars["id"])
}

// handleGet implements GET /<id>?root=<hex>: returns the pushed payload's
// bytes as a download.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	idx, err := parseIndex(r)
	if err != nil {
		http.Error(w, "malformed index", http.StatusBadRequest)
		return
	}
	root, err := rootFromQuery(r)
	if err != nil || root == nil {
		http.Error(w, "root query parameter is required", http.StatusBadRequest)
		return
	}

	m, err := s.store.Load(root)
	if err != nil {
		http.Error(w, "unknown root", http.StatusNotFound)
		return
	}

	_, data, err := m.Get(idx)
	if err != nil {
		if errors.Is(err, merkle.ErrOutOfRange) {
			http.Error(w, "index out of range", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// handleProof implements GET /<id>/proof?root=<hex>: returns the JSON
// Proof for the pushed entry at idx.
func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	idx, err := parseIndex(r)
	if err != nil {
		http.Error(w, "malformed index", http.StatusBadRequest)
		return
	}
	root, err := rootFromQuery(r)
	if err != nil || root == nil {
		http.Error(w, "root query parameter is required", http.StatusBadRequest)
		return
	}

	m, err := s.store.Load(root)
	if err != nil {
		http.Error(w, "unknown root", http.StatusNotFound)
		return
	}

	proof, err := m.Proof(idx)
	if err != nil {
		if errors.Is(err, merkle.ErrOutOfRange) {
			http.Error(w, "index out of range", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(proof)
}

// handleSTH implements GET /sth?root=<hex>, the advisory signed-tree-head
// endpoint from SPEC_FULL.md §6.2. 404s if attestation is disabled or the
// root is unknown.
func (s *Server) handleSTH(w http.ResponseWriter, r *http.Request) {
	if s.signer == nil {
		http.Error(w, "attestation not configured", http.StatusNotFound)
		return
	}
	root, err := rootFromQuery(r)
	if err != nil || root == nil {
		http.Error(w, "root query parameter is required", http.StatusBadRequest)
		return
	}

	m, err := s.store.Load(root)
	if err != nil {
		http.Error(w, "unknown root", http.StatusNotFound)
		return
	}

	sth, err := s.signer.Attest(uint64(m.Len()), *root)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to attest: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sth)
}
