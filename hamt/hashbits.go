package hamt

import (
	"golang.org/x/crypto/sha3"
)

// HashByteSize is the fixed digest size used as HAMT key material.
const HashByteSize = 32

// HashOutput is a fixed 32-byte digest — spec.md's HashOutput.
type HashOutput [HashByteSize]byte

// MaxDepth is ceil(256/4): the deepest a HAMT may nest given a 4-bit
// nibble per level over a 256-bit hash.
const MaxDepth = HashByteSize * 8 / BitsPerNibble

// BitsPerNibble is 4: branching factor 16, so each level of the trie
// consumes 4 bits of the key's hash.
const BitsPerNibble = 4

// HashKey hashes an arbitrary byte key with SHA3-256 keyed by salt —
// "keyed by a per-HAMT salt" per spec.md section 4.5.
func HashKey(salt []byte, key []byte) HashOutput {
	h := sha3.New256()
	h.Write(salt)
	h.Write(key)
	var out HashOutput
	copy(out[:], h.Sum(nil))
	return out
}

// HashBits is a 4-bit nibble cursor over a HashOutput, advancing one
// nibble (one trie level) at a time.
type HashBits struct {
	hash     HashOutput
	consumed int // nibbles consumed so far
}

func NewHashBits(hash HashOutput) *HashBits {
	return &HashBits{hash: hash}
}

// Next returns the next 4-bit nibble (0..15), advancing the cursor. It
// fails with ErrCursorOutOfBounds past nibble 63 (MaxDepth).
func (hb *HashBits) Next() (int, error) {
	if hb.consumed >= MaxDepth {
		return 0, ErrCursorOutOfBounds
	}
	byteIdx := hb.consumed / 2
	nibble := hb.hash[byteIdx]
	var v int
	if hb.consumed%2 == 0 {
		v = int(nibble >> 4)
	} else {
		v = int(nibble & 0x0F)
	}
	hb.consumed++
	return v, nil
}

// Depth reports how many nibbles have been consumed so far.
func (hb *HashBits) Depth() int { return hb.consumed }
