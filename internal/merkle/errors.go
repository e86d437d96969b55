package merkle

import "errors"

// Sentinel errors surfaced at the core's API boundary. Callers should use
// errors.Is to test for these rather than comparing strings.
var (
	// ErrOutOfRange is returned by Proof/Get when nth >= the number of
	// pushed entries.
	ErrOutOfRange = errors.New("merkle: index out of range")

	// ErrEmptyRoot is returned by Root on a store with no entries.
	ErrEmptyRoot = errors.New("merkle: root requested on empty store")

	// ErrVerificationFailed is returned by client-side helpers when a
	// PartialProof does not match the expected root.
	ErrVerificationFailed = errors.New("merkle: verification failed")

	// ErrMalformedHash is returned when externally-supplied hex does not
	// decode to a well-formed 256-bit hash.
	ErrMalformedHash = errors.New("merkle: malformed hash")
)
