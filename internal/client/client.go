// Package client implements the client side of spec.md §6.5/§6.6: talking
// to an htree-server over HTTP, verifying every response against the
// locally-held root before trusting it, and persisting that root to
// roots.json. None of this is part of the core algorithm (spec.md treats
// the transport and root persistence as external collaborators); this
// package is the "external collaborator" spec.md describes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/kindlyrobotics/htree/internal/merkle"
)

// Client talks to one htree-server over HTTP and verifies every response.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New returns a Client targeting the given server and port.
func New(server string, port int) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    fmt.Sprintf("http://%s:%d", server, port),
	}
}

// Push uploads data under its BLAKE3 hash. If prevRoot is non-nil, it is
// sent as the server's expected current root. The proof returned by the
// server is verified before Push returns it: the proof's recovered
// previous root (Proof.Hash) must equal prevRoot exactly (spec.md §4.7's
// zero-trust check). Folding data's hash through the proof (ProveOn) then
// gives the new root the caller should persist.
func (c *Client) Push(ctx context.Context, prevRoot *merkle.H, data []byte) (merkle.Proof, merkle.H, error) {
	hash := merkle.Sum(data)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("hash", hash.String()); err != nil {
		return merkle.Proof{}, merkle.H{}, fmt.Errorf("client: build request: %w", err)
	}
	part, err := w.CreateFormFile("file", "payload")
	if err != nil {
		return merkle.Proof{}, merkle.H{}, fmt.Errorf("client: build request: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return merkle.Proof{}, merkle.H{}, fmt.Errorf("client: build request: %w", err)
	}
	if err := w.Close(); err != nil {
		return merkle.Proof{}, merkle.H{}, fmt.Errorf("client: build request: %w", err)
	}

	reqURL := c.baseURL + "/"
	if prevRoot != nil {
		reqURL += "?root=" + prevRoot.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return merkle.Proof{}, merkle.H{}, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	proof, err := c.doProofRequest(req)
	if err != nil {
		return merkle.Proof{}, merkle.H{}, err
	}

	if err := verifyAgainstPrevRoot(proof, prevRoot); err != nil {
		return merkle.Proof{}, merkle.H{}, err
	}

	newRoot := proof.ProveOn(hash).Unwrap()
	return proof, newRoot, nil
}

// verifyAgainstPrevRoot implements the zero-trust check from spec.md §4.7:
// a non-first push's proof must recover exactly the root the client held
// before this push. A first push (prevRoot nil) has no previous root to
// recover and Proof.Hash reports that with ok=false.
func verifyAgainstPrevRoot(proof merkle.Proof, prevRoot *merkle.H) error {
	recovered, ok := proof.Hash()
	if prevRoot == nil {
		if ok {
			return fmt.Errorf("client: %w: server returned a non-empty previous root for the first push", merkle.ErrVerificationFailed)
		}
		return nil
	}
	if !ok || recovered != *prevRoot {
		return fmt.Errorf("client: %w: server's proof does not recover our previous root", merkle.ErrVerificationFailed)
	}
	return nil
}

// Get downloads the nth payload and its proof, verifying the proof
// against root before returning the payload.
func (c *Client) Get(ctx context.Context, root merkle.H, nth int) ([]byte, error) {
	proof, err := c.Proof(ctx, root, nth)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/%d?root=%s", c.baseURL, nth, root.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: server returned %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}

	if !proof.ProveOn(merkle.Sum(data)).Against(root) {
		return nil, fmt.Errorf("client: %w: payload does not match root via proof", merkle.ErrVerificationFailed)
	}
	return data, nil
}

// Proof fetches the inclusion proof for the nth entry against root.
func (c *Client) Proof(ctx context.Context, root merkle.H, nth int) (merkle.Proof, error) {
	reqURL := fmt.Sprintf("%s/%d/proof?root=%s", c.baseURL, nth, root.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return merkle.Proof{}, fmt.Errorf("client: build request: %w", err)
	}
	return c.doProofRequest(req)
}

func (c *Client) doProofRequest(req *http.Request) (merkle.Proof, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return merkle.Proof{}, fmt.Errorf("client: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return merkle.Proof{}, fmt.Errorf("client: server returned %s: %s", resp.Status, string(body))
	}

	var proof merkle.Proof
	if err := json.NewDecoder(resp.Body).Decode(&proof); err != nil {
		return merkle.Proof{}, fmt.Errorf("client: decode proof: %w", err)
	}
	return proof, nil
}

// ServerKey returns the host[:port] identifier roots.json keys entries by.
func ServerKey(server string, port int) string {
	return server + ":" + strconv.Itoa(port)
}
