package base

import "errors"

// Input errors: surfaced to the caller unchanged.
var (
	ErrInvalidPath      = errors.New("invalid path")
	ErrNotADirectory    = errors.New("not a directory")
	ErrFileAlreadyExists = errors.New("file already exists")
	ErrNotFound         = errors.New("not found")
)

// Store errors: surfaced, never retried by the core.
var (
	ErrCIDNotFound             = errors.New("cid not found in blockstore")
	ErrMaximumBlockSizeExceeded = errors.New("maximum block size exceeded")
)

// Integrity errors: fatal to the affected subtree.
var (
	ErrUndecodableCBOR    = errors.New("undecodable cbor data")
	ErrHeaderCIDMismatch  = errors.New("header cid mismatch")
	ErrIncompatibleVersion = errors.New("incompatible wnfs version")
)
