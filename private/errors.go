package private

import "errors"

// Errors specific to the private node store/load pipeline. The
// integrity and store errors shared with every other package live in
// base.
var (
	// There is no separate ambiguous-load error: the Load functions
	// return every decryptable, header-matching candidate, leaving
	// ambiguity resolution to the caller (spec.md section 4.4).
	ErrNoCandidateMatched = errors.New("private: no candidate cid decrypted to a matching header")
	ErrDecryptionFailed   = errors.New("private: decryption failed")
	ErrNotAFile           = errors.New("private: node is not a file")
	ErrNotADirectory      = errors.New("private: node is not a directory")
)
