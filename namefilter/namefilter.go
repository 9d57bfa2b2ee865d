// Package namefilter implements the legacy 2048-bit Bloom filter naming
// scheme (C2 of spec.md), kept compatible with older WNFS revisions
// alongside the accumulator-based scheme in package nameaccumulator.
package namefilter

import (
	"crypto/rand"
	"crypto/sha256"
)

const (
	bitCount   = 2048
	byteCount  = bitCount / 8
	numHashes  = 30
	// SaturationThreshold is the minimum popcount a saturated filter must
	// reach. A saturated filter deliberately leaks no cardinality below
	// this point.
	SaturationThreshold = 1019
)

// Filter is a 2048-bit Bloom filter over name segments, addressable by
// the XXH32-derived enhanced-double-hashing scheme from spec.md section
// 4.2 (Kirsch-Mitzenmacher, Algorithm 2).
type Filter struct {
	bits [byteCount]byte
}

// Empty returns a zeroed filter — the identity bare namefilter root.
func Empty() Filter { return Filter{} }

func FromBytes(b [byteCount]byte) Filter { return Filter{bits: b} }

func (f Filter) Bytes() [byteCount]byte { return f.bits }

func (f *Filter) setBit(i uint32) {
	idx := i / 8
	bit := i % 8
	f.bits[idx] |= 1 << bit
}

func (f Filter) getBit(i uint32) bool {
	idx := i / 8
	bit := i % 8
	return f.bits[idx]&(1<<bit) != 0
}

// bitIndices returns the 30 bit positions enhanced double hashing derives
// for item, using XXH32 seeded at 0 and 1 as the two base hashes:
// position_i = (h1 + i*h2 + i^2) mod 2048.
func bitIndices(item []byte) [numHashes]uint32 {
	h1 := xxh32Sum(item, 0)
	h2 := xxh32Sum(item, 1)

	var out [numHashes]uint32
	for i := uint32(0); i < numHashes; i++ {
		out[i] = (h1 + i*h2 + i*i) % bitCount
	}
	return out
}

// Add sets the 30 bits item's enhanced-double-hash derives.
func (f *Filter) Add(item []byte) {
	for _, idx := range bitIndices(item) {
		f.setBit(idx)
	}
}

// Contains returns true iff every bit item derives is set. False
// positives are expected and acceptable (it's a Bloom filter); false
// negatives for an added item must never happen.
func (f Filter) Contains(item []byte) bool {
	for _, idx := range bitIndices(item) {
		if !f.getBit(idx) {
			return false
		}
	}
	return true
}

// PopCount returns the number of set bits.
func (f Filter) PopCount() int {
	n := 0
	for _, b := range f.bits {
		n += popcountByte(b)
	}
	return n
}

func popcountByte(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}

// Saturate adds uniformly-random items until popcount reaches
// SaturationThreshold (inclusive). The upstream reference implementation
// computes the popcount and then bails out without ever looping (see
// spec.md's Open Question); this implementation carries out the intended
// behavior: keep adding random items until the threshold is met.
func (f *Filter) Saturate() error {
	for f.PopCount() < SaturationThreshold {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		f.Add(buf)
	}
	return nil
}

// AddDigest is a convenience wrapper that hashes an arbitrary-length
// segment down to a fixed digest before adding it, the way a WNFS
// INumber or accumulator segment would be folded into a bare namefilter.
func (f *Filter) AddDigest(segment []byte) {
	h := sha256.Sum256(segment)
	f.Add(h[:])
}
