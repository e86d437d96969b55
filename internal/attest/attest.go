// Package attest provides optional, advisory signing of tree roots.
//
// Adapted from the teacher's internal/transparency.Signer lifecycle (PEM
// key loading, TRANSPARENCY_SIGNING_KEY-style environment convention,
// fingerprinting) and from its internal/crypto post-quantum signer, which
// used CIRCL's Dilithium3 implementation. A SignedTreeHead here attests to
// "at push number nth, the store's root was this hash" — unlike a
// certificate-transparency STH it carries no independent trust; a client
// can reconstruct the same root on its own via Proof.Hash, so the
// signature only helps when sharing a root with a third party who has
// not seen the proof chain themselves.
package attest

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"github.com/kindlyrobotics/htree/internal/merkle"
)

const (
	pemPrivBlockType = "DILITHIUM3 PRIVATE KEY"
	pemPubBlockType  = "DILITHIUM3 PUBLIC KEY"
)

// SignedTreeHead attests to the root hash of a store after its nth push
// (Nth is the number of elements in the store at attestation time).
type SignedTreeHead struct {
	Nth       uint64   `json:"nth"`
	Root      merkle.H `json:"root"`
	Signature []byte   `json:"signature"`
}

// Signer holds a Dilithium3 keypair and signs tree heads with it.
type Signer struct {
	pub         *mode3.PublicKey
	priv        *mode3.PrivateKey
	fingerprint string
}

// GenerateKey creates a fresh Dilithium3 keypair and wraps it in a Signer.
func GenerateKey() (*Signer, error) {
	pub, priv, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("attest: generate key: %w", err)
	}
	return newSigner(pub, priv), nil
}

func newSigner(pub *mode3.PublicKey, priv *mode3.PrivateKey) *Signer {
	var packedPub [mode3.PublicKeySize]byte
	pub.Pack(&packedPub)
	sum := sha256.Sum256(packedPub[:])
	return &Signer{
		pub:         pub,
		priv:        priv,
		fingerprint: hex.EncodeToString(sum[:16]),
	}
}

// NewSignerFromFile loads a Signer from a PEM file holding both halves of
// a packed Dilithium3 keypair, the way NewSignerFromFile loads an
// Ed25519/P-256 key in the teacher's transparency package.
func NewSignerFromFile(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("attest: read key file: %w", err)
	}
	return NewSignerFromPEM(data)
}

// NewSignerFromPEM parses the public and private key blocks written by
// MarshalPEM. Dilithium3 keys are generated and stored as a pair rather
// than derived from one another, the same way the teacher's pqc helpers
// always pass public and private key bytes as independent parameters.
func NewSignerFromPEM(pemData []byte) (*Signer, error) {
	pubBlock, rest := pem.Decode(pemData)
	if pubBlock == nil || pubBlock.Type != pemPubBlockType {
		return nil, fmt.Errorf("attest: expected %s PEM block first", pemPubBlockType)
	}
	privBlock, _ := pem.Decode(rest)
	if privBlock == nil || privBlock.Type != pemPrivBlockType {
		return nil, fmt.Errorf("attest: expected %s PEM block second", pemPrivBlockType)
	}
	if len(pubBlock.Bytes) != mode3.PublicKeySize {
		return nil, fmt.Errorf("attest: invalid public key size: got %d want %d", len(pubBlock.Bytes), mode3.PublicKeySize)
	}
	if len(privBlock.Bytes) != mode3.PrivateKeySize {
		return nil, fmt.Errorf("attest: invalid private key size: got %d want %d", len(privBlock.Bytes), mode3.PrivateKeySize)
	}

	var packedPub [mode3.PublicKeySize]byte
	copy(packedPub[:], pubBlock.Bytes)
	pub := new(mode3.PublicKey)
	pub.Unpack(&packedPub)

	var packedPriv [mode3.PrivateKeySize]byte
	copy(packedPriv[:], privBlock.Bytes)
	priv := new(mode3.PrivateKey)
	priv.Unpack(&packedPriv)

	return newSigner(pub, priv), nil
}

// NewSignerFromEnv loads a signer from HTREE_SIGNING_KEY, which may hold
// either a file path or the raw PEM text, mirroring the teacher's
// NewSignerFromEnv convention for TRANSPARENCY_SIGNING_KEY.
func NewSignerFromEnv() (*Signer, error) {
	keyData := os.Getenv("HTREE_SIGNING_KEY")
	if keyData == "" {
		return nil, fmt.Errorf("attest: HTREE_SIGNING_KEY environment variable not set")
	}
	if _, err := os.Stat(keyData); err == nil {
		return NewSignerFromFile(keyData)
	}
	return NewSignerFromPEM([]byte(keyData))
}

// MarshalPEM packs the signer's public and private key into two PEM
// blocks (public first), suitable for writing to disk via
// GenerateKey -> MarshalPEM -> os.WriteFile.
func (s *Signer) MarshalPEM() []byte {
	var packedPub [mode3.PublicKeySize]byte
	s.pub.Pack(&packedPub)
	var packedPriv [mode3.PrivateKeySize]byte
	s.priv.Pack(&packedPriv)

	var buf bytes.Buffer
	buf.Write(pem.EncodeToMemory(&pem.Block{Type: pemPubBlockType, Bytes: packedPub[:]}))
	buf.Write(pem.EncodeToMemory(&pem.Block{Type: pemPrivBlockType, Bytes: packedPriv[:]}))
	return buf.Bytes()
}

// Fingerprint returns a short hex identifier for the signer's public key.
func (s *Signer) Fingerprint() string {
	return s.fingerprint
}

// PublicKeyBytes returns the packed public key, for distribution to
// clients that want to call Verify independently of this Signer.
func (s *Signer) PublicKeyBytes() []byte {
	var packed [mode3.PublicKeySize]byte
	s.pub.Pack(&packed)
	return packed[:]
}

// signedMessage builds the big-endian(nth) || root byte string that gets
// signed, the same length-prefixed-fields convention the teacher's Sign
// uses for epoch_number || root_hash || tree_size || timestamp.
func signedMessage(nth uint64, root merkle.H) []byte {
	msg := make([]byte, 8+len(root))
	binary.BigEndian.PutUint64(msg[:8], nth)
	copy(msg[8:], root[:])
	return msg
}

// Attest signs the store's root as observed after its nth push.
func (s *Signer) Attest(nth uint64, root merkle.H) (*SignedTreeHead, error) {
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.priv, signedMessage(nth, root), sig)
	return &SignedTreeHead{Nth: nth, Root: root, Signature: sig}, nil
}

// Verify checks sth's signature against a packed Dilithium3 public key.
func Verify(publicKey []byte, sth *SignedTreeHead) bool {
	if len(publicKey) != mode3.PublicKeySize {
		return false
	}
	var packed [mode3.PublicKeySize]byte
	copy(packed[:], publicKey)
	pub := new(mode3.PublicKey)
	pub.Unpack(&packed)
	return mode3.Verify(pub, signedMessage(sth.Nth, sth.Root), sth.Signature)
}
