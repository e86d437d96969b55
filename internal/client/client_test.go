package client

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindlyrobotics/htree/internal/merkle"
)

// fakeServer is a minimal in-memory stand-in for htree-server, just enough
// of spec.md §6.2's wire protocol to exercise Client against.
type fakeServer struct {
	m *merkle.HMap[[]byte]
}

func newFakeServer() *httptest.Server {
	fs := &fakeServer{m: merkle.New[[]byte]()}
	mux := http.NewServeMux()
	mux.HandleFunc("/", fs.handlePush)
	mux.HandleFunc("/0", fs.handleIndexed(0))
	mux.HandleFunc("/1", fs.handleIndexed(1))
	mux.HandleFunc("/0/proof", fs.handleProof(0))
	mux.HandleFunc("/1/proof", fs.handleProof(1))
	return httptest.NewServer(mux)
}

func (fs *fakeServer) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hash, err := merkle.ParseHash(r.FormValue("hash"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	proof := fs.m.Push(hash, data)
	json.NewEncoder(w).Encode(proof)
}

func (fs *fakeServer) handleIndexed(nth int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, data, err := fs.m.Get(nth)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}
}

func (fs *fakeServer) handleProof(nth int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := fs.m.Proof(nth)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(p)
	}
}

func serverHostPort(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	hostname, portRaw, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portRaw)
	require.NoError(t, err)
	return hostname, port
}

func TestPushGetProofRoundTrip(t *testing.T) {
	srv := newFakeServer()
	defer srv.Close()
	host, port := serverHostPort(t, srv)
	c := New(host, port)

	proof0, root0, err := c.Push(context.Background(), nil, []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, 0, proof0.Nth())

	proof1, root1, err := c.Push(context.Background(), &root0, []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, 1, proof1.Nth())

	got0, err := c.Get(context.Background(), root1, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got0)

	got1, err := c.Get(context.Background(), root1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got1)
}

func TestPushRejectsMismatchedPrevRoot(t *testing.T) {
	srv := newFakeServer()
	defer srv.Close()
	host, port := serverHostPort(t, srv)
	c := New(host, port)

	_, _, err := c.Push(context.Background(), nil, []byte("first"))
	require.NoError(t, err)

	wrongRoot := merkle.Sum([]byte("not the real root"))
	_, _, err = c.Push(context.Background(), &wrongRoot, []byte("second"))
	assert.ErrorIs(t, err, merkle.ErrVerificationFailed)
}

func TestGetRejectsWrongRoot(t *testing.T) {
	srv := newFakeServer()
	defer srv.Close()
	host, port := serverHostPort(t, srv)
	c := New(host, port)

	_, _, err := c.Push(context.Background(), nil, []byte("first"))
	require.NoError(t, err)

	wrongRoot := merkle.Sum([]byte("tampered"))
	_, err = c.Get(context.Background(), wrongRoot, 0)
	assert.ErrorIs(t, err, merkle.ErrVerificationFailed)
}
