package merkle

import (
	"encoding/json"
	"fmt"
)

// leafWire and nodeWire mirror the tagged-union wire shape described in
// spec.md §6.3: {Empty} | {Leaf: {hash}} | {Node: {left, right}}.
type leafWire struct {
	Hash H `json:"hash"`
}

type nodeWire struct {
	Left  *tree `json:"left"`
	Right *tree `json:"right"`
}

type treeWire struct {
	Leaf *leafWire `json:"Leaf,omitempty"`
	Node *nodeWire `json:"Node,omitempty"`
}

// MarshalJSON never sees a nil receiver in practice: callers that need to
// marshal an Empty tree substitute an explicit kindEmpty sentinel so that
// encoding/json's nil-pointer short circuit ("null") never masks our
// custom "Empty" encoding. See store_json.go.
func (t *tree) MarshalJSON() ([]byte, error) {
	if t == nil || t.kind == kindEmpty {
		return json.Marshal("Empty")
	}
	switch t.kind {
	case kindLeaf:
		return json.Marshal(treeWire{Leaf: &leafWire{Hash: t.hash}})
	case kindNode:
		return json.Marshal(treeWire{Node: &nodeWire{Left: t.left, Right: t.right}})
	default:
		return nil, fmt.Errorf("merkle: marshal: unknown tree kind %d", t.kind)
	}
}

func (t *tree) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != "Empty" {
			return fmt.Errorf("merkle: unmarshal: unexpected tree tag %q", s)
		}
		t.kind = kindEmpty
		return nil
	}

	var w treeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("merkle: unmarshal tree: %w", err)
	}
	switch {
	case w.Leaf != nil:
		t.kind = kindLeaf
		t.hash = w.Leaf.Hash
	case w.Node != nil:
		t.kind = kindNode
		t.left = w.Node.Left
		t.right = w.Node.Right
	default:
		return fmt.Errorf("merkle: unmarshal tree: neither Leaf nor Node present")
	}
	return nil
}
