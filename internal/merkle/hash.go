// Package merkle implements the append-only Merkle storage engine: a
// right-spine binary tree that grows one leaf per push, plus the proof
// machinery that lets a client recompute the tree's root from only its
// previous root, the newly uploaded leaf hash, and the proof the server
// returns for that push.
package merkle

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// HashSize is the width, in bytes, of every digest in this package.
const HashSize = 32

// H is a fixed-width 256-bit digest. It is comparable and usable as a map
// key, unlike a []byte.
type H [HashSize]byte

// String returns the lowercase hex encoding of h.
func (h H) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of h's underlying bytes.
func (h H) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// ParseHash decodes a 64-character lowercase hex string into an H.
func ParseHash(s string) (H, error) {
	var h H
	if len(s) != HashSize*2 {
		return h, fmt.Errorf("%w: want %d hex chars, got %d", ErrMalformedHash, HashSize*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	copy(h[:], b)
	return h, nil
}

// FromBytes copies b (which must be HashSize long) into an H.
func FromBytes(b []byte) (H, error) {
	var h H
	if len(b) != HashSize {
		return h, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedHash, HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Sum hashes data in one shot.
func Sum(data []byte) H {
	return H(blake3.Sum256(data))
}

// hasher is the streaming hasher used to concatenate byte slices without
// allocating a joined buffer. Two sequential Write calls on one hasher
// must produce the same digest as Sum(append(a, b...)); this is what lets
// independent implementations of this algorithm agree on hashes.
type hasher struct {
	h *blake3.Hasher
}

// newHasher returns a ready-to-use streaming hasher.
func newHasher() hasher {
	return hasher{h: blake3.New(32, nil)}
}

func (s hasher) write(b []byte) hasher {
	s.h.Write(b) //nolint:errcheck // hash.Hash.Write never errors
	return s
}

func (s hasher) sum() H {
	var out H
	copy(out[:], s.h.Sum(nil))
	return out
}

// hashPair streams a || b through one hasher and returns the digest. Used
// by every internal-node hash computation so that concatenation is always
// done via streaming writes, never buffer allocation.
func hashPair(a, b H) H {
	return newHasher().write(a[:]).write(b[:]).sum()
}
