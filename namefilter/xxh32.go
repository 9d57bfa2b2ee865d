package namefilter

// xxh32 is a small, dependency-free port of the XXH32 algorithm
// (Yann Collet's xxHash, 32-bit variant). No library in the pack
// implements XXH32 — cespare/xxhash/v2 is XXH64-only, and folding an
// XXH64 digest down to 32 bits is a different, non-conformant
// algorithm that would not reproduce bit positions computed by any
// other XXH32 implementation. spec.md section 4.2 requires XXH32
// specifically (seeds 0 and 1) for cross-implementation reproducibility,
// so it's ported directly here instead.
const (
	xxh32Prime1 uint32 = 2654435761
	xxh32Prime2 uint32 = 2246822519
	xxh32Prime3 uint32 = 3266489917
	xxh32Prime4 uint32 = 668265263
	xxh32Prime5 uint32 = 374761393
)

func xxh32Round(acc, input uint32) uint32 {
	acc += input * xxh32Prime2
	acc = rotl32(acc, 13)
	acc *= xxh32Prime1
	return acc
}

func rotl32(x uint32, r uint) uint32 {
	return (x << r) | (x >> (32 - r))
}

func readLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// xxh32Sum computes XXH32(input, seed) per the reference algorithm.
func xxh32Sum(input []byte, seed uint32) uint32 {
	n := len(input)
	p := 0
	var h32 uint32

	if n >= 16 {
		v1 := seed + xxh32Prime1 + xxh32Prime2
		v2 := seed + xxh32Prime2
		v3 := seed
		v4 := seed - xxh32Prime1

		for ; p <= n-16; p += 16 {
			v1 = xxh32Round(v1, readLE32(input[p:]))
			v2 = xxh32Round(v2, readLE32(input[p+4:]))
			v3 = xxh32Round(v3, readLE32(input[p+8:]))
			v4 = xxh32Round(v4, readLE32(input[p+12:]))
		}

		h32 = rotl32(v1, 1) + rotl32(v2, 7) + rotl32(v3, 12) + rotl32(v4, 18)
	} else {
		h32 = seed + xxh32Prime5
	}

	h32 += uint32(n)

	for ; p+4 <= n; p += 4 {
		h32 += readLE32(input[p:]) * xxh32Prime3
		h32 = rotl32(h32, 17) * xxh32Prime4
	}

	for ; p < n; p++ {
		h32 += uint32(input[p]) * xxh32Prime5
		h32 = rotl32(h32, 11) * xxh32Prime1
	}

	h32 ^= h32 >> 15
	h32 *= xxh32Prime2
	h32 ^= h32 >> 13
	h32 *= xxh32Prime3
	h32 ^= h32 >> 16

	return h32
}
