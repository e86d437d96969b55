package merkle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func h(b byte) H {
	return Sum([]byte{b})
}

// Scenario A — single element.
func TestSingleElement(t *testing.T) {
	store := New[byte]()
	store.Push(h(0), 0)

	root, err := store.TryRoot()
	require.NoError(t, err)
	assert.Equal(t, h(0), root)

	p, err := store.Proof(0)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Nth())
	assert.Empty(t, p.Hashes())
	assert.True(t, p.ProveOn(h(0)).Against(h(0)))
}

// Scenario B — two elements.
func TestTwoElements(t *testing.T) {
	store := New[byte]()
	store.Push(h(0), 0)
	store.Push(h(1), 1)

	p0, err := store.Proof(0)
	require.NoError(t, err)
	assert.Equal(t, []H{h(1)}, p0.Hashes())

	p1, err := store.Proof(1)
	require.NoError(t, err)
	assert.Equal(t, []H{h(0)}, p1.Hashes())

	root := store.Root()
	assert.Equal(t, hashPair(h(0), h(1)), root)
	assert.True(t, p0.ProveOn(h(0)).Against(root))
	assert.True(t, p1.ProveOn(h(1)).Against(root))
}

// Scenario C — three elements, right-spine insertion.
func TestThreeElements(t *testing.T) {
	store := New[byte]()
	store.Push(h(0), 0)
	store.Push(h(1), 1)
	store.Push(h(2), 2)

	l := hashPair(h(0), h(2))

	p0, err := store.Proof(0)
	require.NoError(t, err)
	assert.Equal(t, []H{h(1), h(2)}, p0.Hashes())

	p1, err := store.Proof(1)
	require.NoError(t, err)
	assert.Equal(t, []H{l}, p1.Hashes())

	root := store.Root()
	assert.Equal(t, hashPair(l, h(1)), root)

	for i, hi := range []H{h(0), h(1), h(2)} {
		p, err := store.Proof(i)
		require.NoError(t, err)
		assert.Truef(t, p.ProveOn(hi).Against(root), "leaf %d failed to verify", i)
	}
}

// Scenario D — root update chain, simulating the client-side protocol.
func TestRootUpdateChain(t *testing.T) {
	store := New[int]()
	var clientRoot *H

	hashes := make([]H, 6)
	for i := range hashes {
		hashes[i] = h(byte(i))
	}

	for i, hi := range hashes {
		proof := store.Push(hi, i)
		prev, ok := proof.Hash()
		if i == 0 {
			assert.False(t, ok, "first push must have no previous root")
		} else {
			require.True(t, ok)
			require.NotNil(t, clientRoot)
			assert.Equal(t, *clientRoot, prev)
		}
		newRoot := proof.ProveOn(hi).Unwrap()
		clientRoot = &newRoot
	}

	finalRoot := store.Root()
	require.NotNil(t, clientRoot)
	assert.Equal(t, finalRoot, *clientRoot)

	for i := range hashes {
		p, err := store.Proof(i)
		require.NoError(t, err)
		assert.True(t, p.ProveOn(hashes[i]).Against(finalRoot))
	}
}

// Scenario E — tamper detection: a corrupted payload fails verification.
func TestTamperDetection(t *testing.T) {
	store := New[[]byte]()
	payload := []byte("hello world")
	hash := Sum(payload)
	store.Push(hash, payload)

	root := store.Root()
	p, err := store.Proof(0)
	require.NoError(t, err)
	assert.True(t, p.ProveOn(Sum(payload)).Against(root))

	corrupted := append([]byte(nil), payload...)
	corrupted[0] ^= 0xFF
	assert.False(t, p.ProveOn(Sum(corrupted)).Against(root))
}

// Scenario F — insertion order changes the root.
func TestInsertionOrderDependence(t *testing.T) {
	forward := New[byte]()
	forward.Push(h(0), 0)
	forward.Push(h(1), 1)
	forward.Push(h(2), 2)

	backward := New[byte]()
	backward.Push(h(2), 2)
	backward.Push(h(1), 1)
	backward.Push(h(0), 0)

	assert.NotEqual(t, forward.Root(), backward.Root())
}

func TestPushProofAgree(t *testing.T) {
	store := New[byte]()
	for i := byte(0); i < 6; i++ {
		pushed := store.Push(h(i), i)
		queried, err := store.Proof(int(i))
		require.NoError(t, err)
		assert.Equal(t, pushed, queried)
	}
}

func TestGetReturnsPushedPayload(t *testing.T) {
	store := New[byte]()
	for i := byte(0); i < 6; i++ {
		store.Push(h(i), i)
	}
	for i := 0; i < 6; i++ {
		p, data, err := store.Get(i)
		require.NoError(t, err)
		assert.Equal(t, byte(i), data)
		qp, err := store.Proof(i)
		require.NoError(t, err)
		assert.Equal(t, qp, p)
	}
}

func TestOutOfRange(t *testing.T) {
	store := New[byte]()
	store.Push(h(0), 0)

	_, err := store.Proof(1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, _, err = store.Get(5)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestEmptyRoot(t *testing.T) {
	store := New[byte]()
	_, err := store.TryRoot()
	assert.ErrorIs(t, err, ErrEmptyRoot)
	assert.Panics(t, func() { store.Root() })
}

func TestDuplicateHashDistinctProofs(t *testing.T) {
	store := New[byte]()
	store.Push(h(0), 0)
	p0 := store.Push(h(0), 1)

	p1, err := store.Proof(0)
	require.NoError(t, err)
	assert.NotEqual(t, p1.Nth(), p0.Nth())
	// The final hop's sibling is the same leaf hash both times.
	assert.Equal(t, h(0), p0.Hashes()[len(p0.Hashes())-1])
}

func TestMerge(t *testing.T) {
	l := leaf(h(0))
	var empty *tree

	assert.Same(t, l, merge(empty, l))
	assert.Same(t, l, merge(l, empty))

	n := merge(l, leaf(h(1)))
	assert.Equal(t, kindNode, n.kind)
}

// Round trip: serialized store reproduces the same root.
func TestStoreSerializationRoundTrip(t *testing.T) {
	store := New[[]byte]()
	for i := byte(0); i < 4; i++ {
		store.Push(h(i), []byte{i})
	}

	blob, err := json.Marshal(store)
	require.NoError(t, err)

	restored := New[[]byte]()
	require.NoError(t, json.Unmarshal(blob, restored))

	assert.Equal(t, store.Root(), restored.Root())
	for i := 0; i < 4; i++ {
		want, wantData, err := store.Get(i)
		require.NoError(t, err)
		got, gotData, err := restored.Get(i)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, wantData, gotData)
	}
}

// Proof JSON round trip.
func TestProofSerializationRoundTrip(t *testing.T) {
	store := New[byte]()
	store.Push(h(0), 0)
	store.Push(h(1), 1)
	p, err := store.Proof(1)
	require.NoError(t, err)

	blob, err := json.Marshal(p)
	require.NoError(t, err)

	var restored Proof
	require.NoError(t, json.Unmarshal(blob, &restored))
	assert.Equal(t, p, restored)
}

func TestParseHashRoundTrip(t *testing.T) {
	want := h(42)
	got, err := ParseHash(want.String())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ParseHash("not-hex")
	assert.ErrorIs(t, err, ErrMalformedHash)

	_, err = ParseHash("ab")
	assert.ErrorIs(t, err, ErrMalformedHash)
}
