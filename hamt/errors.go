package hamt

import "errors"

// Errors named 1:1 with wnfs-hamt/src/error.rs's HamtError enum. These
// indicate implementation bugs or corrupted blocks — they must never
// occur against well-formed data (spec.md section 7).
var (
	ErrCursorOutOfBounds       = errors.New("hashbits cursor exceeded hash output length")
	ErrNonCanonicalizablePointer = errors.New("cannot canonicalize a link pointer to a node with zero pointers")
	ErrValuesPointerExpected   = errors.New("values pointer expected")
	ErrKeyNotFound             = errors.New("key does not exist in hamt")
	ErrHashPrefixIndexOutOfBounds = errors.New("hash prefix index is out of bounds")
)
