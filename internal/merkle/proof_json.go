package merkle

import "encoding/json"

// proofWire is the wire shape from spec.md §6.3:
// {"nth": <non-negative integer>, "hashes": [[u8;32], ...]}.
type proofWire struct {
	Nth    int `json:"nth"`
	Hashes []H `json:"hashes"`
}

func (p Proof) MarshalJSON() ([]byte, error) {
	hashes := p.hashes
	if hashes == nil {
		hashes = []H{}
	}
	return json.Marshal(proofWire{Nth: p.nth, Hashes: hashes})
}

func (p *Proof) UnmarshalJSON(b []byte) error {
	var w proofWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	p.nth = w.Nth
	p.hashes = w.Hashes
	return nil
}
