package merkle

// HMap is the append-only Merkle store: a sequence of payloads paired
// with the tree whose shape records their insertion order. HMap is not
// safe for concurrent use by multiple goroutines; a single HMap has a
// single writer, exactly the contract the surrounding server enforces by
// loading one store per request.
type HMap[D any] struct {
	data []D
	tr   *tree
}

// New returns an empty store.
func New[D any]() *HMap[D] {
	return &HMap[D]{}
}

// Len reports how many entries have been pushed.
func (m *HMap[D]) Len() int {
	return len(m.data)
}

// Root returns the store's current root hash. It is a precondition
// violation to call Root on an empty store; callers should check Len
// first, or use TryRoot.
func (m *HMap[D]) Root() H {
	if m.tr == nil {
		panic("merkle: Root on empty store")
	}
	return m.tr.rootHash()
}

// TryRoot returns the current root, or ErrEmptyRoot if the store has no
// entries yet.
func (m *HMap[D]) TryRoot() (H, error) {
	if m.tr == nil {
		return H{}, ErrEmptyRoot
	}
	return m.tr.rootHash(), nil
}

// Push appends data under the given pre-computed hash and returns the
// Proof witnessing its insertion. See the package-level algorithm note on
// pushDescend for how the returned hashes double as the sibling path
// needed to recompute the tree's previous root (Proof.Hash).
func (m *HMap[D]) Push(hash H, data D) Proof {
	nth := len(m.data)
	newTree, hashes := pushDescend(m.tr, uint64(nth), hash)
	m.tr = newTree
	m.data = append(m.data, data)
	return Proof{nth: nth, hashes: hashes}
}

// pushDescend walks from node downward following the bits of pos (LSB
// first, one bit consumed per Node level), recording the sibling hash at
// each step, until it reaches a non-Node (Empty or Leaf). There it grafts
// a new leaf holding newLeaf via merge, returning the rebuilt subtree and
// the sibling hashes collected on the way down, in root-to-leaf order.
func pushDescend(node *tree, pos uint64, newLeaf H) (*tree, []H) {
	if node == nil || node.kind != kindNode {
		var hashes []H
		if node != nil {
			hashes = []H{node.rootHash()}
		}
		return merge(node, leaf(newLeaf)), hashes
	}

	bit := pos & 1
	pos >>= 1

	if bit == 1 {
		sibling := node.left.rootHash()
		newRight, rest := pushDescend(node.right, pos, newLeaf)
		return &tree{kind: kindNode, left: node.left, right: newRight}, prepend(sibling, rest)
	}
	sibling := node.right.rootHash()
	newLeft, rest := pushDescend(node.left, pos, newLeaf)
	return &tree{kind: kindNode, left: newLeft, right: node.right}, prepend(sibling, rest)
}

func prepend(h H, rest []H) []H {
	out := make([]H, 0, len(rest)+1)
	out = append(out, h)
	return append(out, rest...)
}

// Proof returns the inclusion proof for the nth pushed entry, or
// ErrOutOfRange if nth is not a valid index.
func (m *HMap[D]) Proof(nth int) (Proof, error) {
	if nth < 0 || nth >= len(m.data) {
		return Proof{}, ErrOutOfRange
	}
	hashes := proofDescend(m.tr, uint64(nth))
	return Proof{nth: nth, hashes: hashes}, nil
}

// proofDescend is the read-only counterpart of pushDescend: it walks the
// same bit-guided path but never mutates the tree, and does not record the
// leaf's own hash (a leaf is not its own sibling).
func proofDescend(node *tree, pos uint64) []H {
	if node == nil || node.kind != kindNode {
		return nil
	}
	bit := pos & 1
	pos >>= 1
	if bit == 1 {
		return prepend(node.left.rootHash(), proofDescend(node.right, pos))
	}
	return prepend(node.right.rootHash(), proofDescend(node.left, pos))
}

// Get returns the nth pushed payload together with its proof, or
// ErrOutOfRange if nth is not a valid index.
func (m *HMap[D]) Get(nth int) (Proof, D, error) {
	p, err := m.Proof(nth)
	if err != nil {
		var zero D
		return Proof{}, zero, err
	}
	return p, m.data[nth], nil
}
