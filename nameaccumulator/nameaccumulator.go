// Package nameaccumulator implements the cryptographic name accumulator
// scheme (C1 of spec.md): a 2048-bit RSA accumulator over odd-prime name
// segments, plus the PoKE* and PoKCR batched membership proofs from
// "Batching Techniques for Accumulators with Applications to IOPs and
// Stateless Blockchains" (https://eprint.iacr.org/2018/1188.pdf), the
// paper wnfs-nameaccumulator/src/lib.rs cites as its source.
package nameaccumulator

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
	"sort"
)

// Verification errors, named 1:1 with wnfs-nameaccumulator/src/error.rs's
// VerificationError enum.
var (
	ErrLHashNonPrime     = errors.New("hash-to-prime didn't end up prime")
	ErrResidueOutsideRange = errors.New("residue outside range")
	ErrValidationFailed  = errors.New("nameaccumulator batched proof validation failed")
	ErrNoInverse         = errors.New("couldn't invert base accumulator state")
)

// segmentBits is the bit width name segments are drawn from: [2^255, 2^256).
const segmentBits = 256

// millerRabinRounds is the rejection-sampling primality floor spec.md's
// section 4.1 "Algorithm detail floor" mandates.
const millerRabinRounds = 40

// Setup is the public parameters of the RSA accumulator: a 2048-bit
// modulus N and generator g. Implementations must never persist the
// factorization of N; in production this is the RSA-2048 Factoring
// Challenge modulus.
type Setup struct {
	N *big.Int
	G *big.Int
}

// NewSetup builds a Setup from an externally supplied modulus/generator
// pair (e.g. the RSA Factoring Challenge value). The core never
// generates its own modulus — doing so would require knowing the
// factorization, which must never exist.
func NewSetup(n, g *big.Int) Setup {
	return Setup{N: new(big.Int).Set(n), G: new(big.Int).Set(g)}
}

// rsa2048FactoringChallenge is RSA Laboratories' published 2048-bit
// RSA Factoring Challenge modulus: nobody has ever published its
// factorization, so it's safe to use as a real accumulator modulus
// without any party having to be trusted to "forget" a trapdoor.
const rsa2048FactoringChallenge = "25195908475657893494027183240048398571429282126204032027777137836043662020707595556264018525880784406918290641249515082189298559149176184502808489120072844992687392807287776735971418347270261896375014971824691165077613379859095700097330459748808428401797429100642458691817195118746121515172654632282216869987549182422433637259085141865462043576798423387184774447920739934236584823824281198163815010674810451660377306056201619676256133844143603833904414952634432190114657544454178424020924616515723350778707749817125772467962926386356373289912154831438167899885040445364023527381951378636564391212010397122822120720357"

// DefaultSetup returns the accumulator Setup built on the RSA-2048
// Factoring Challenge modulus with the conventional generator g = 65537.
func DefaultSetup() Setup {
	n, ok := new(big.Int).SetString(rsa2048FactoringChallenge, 10)
	if !ok {
		panic("nameaccumulator: malformed embedded RSA-2048 modulus constant")
	}
	return Setup{N: n, G: big.NewInt(65537)}
}

// NameSegment is an odd prime exponent in the RSA accumulator domain.
type NameSegment struct {
	prime *big.Int
}

// RandomSegment draws a CSPRNG segment and hashes it to a prime in
// [2^255, 2^256).
func RandomSegment() (NameSegment, error) {
	buf := make([]byte, segmentBits/8)
	if _, err := rand.Read(buf); err != nil {
		return NameSegment{}, err
	}
	return hashToPrimeSegment(buf)
}

// SegmentFromDigest builds a domain-separated, deterministic segment from
// arbitrary bytes — used to derive a child's segment from its inumber, or
// from any other identifier that must be reproducible across writers.
func SegmentFromDigest(domain string, data []byte) (NameSegment, error) {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write(data)
	return hashToPrimeSegment(h.Sum(nil))
}

// hashToPrimeSegment performs rejection sampling: hash, test primality
// with >= 40 Miller-Rabin rounds, increment and retry on failure. The
// result is always odd (primes > 2 are odd) and in [2^255, 2^256).
func hashToPrimeSegment(seed []byte) (NameSegment, error) {
	h := sha256.Sum256(seed)
	candidate := new(big.Int).SetBytes(h[:])
	candidate.SetBit(candidate, segmentBits-1, 1) // force into top half of the range
	candidate.SetBit(candidate, 0, 1)              // force odd

	for i := 0; i < 1<<20; i++ {
		if candidate.ProbablyPrime(millerRabinRounds) {
			return NameSegment{prime: candidate}, nil
		}
		candidate.Add(candidate, big.NewInt(2))
	}
	return NameSegment{}, ErrLHashNonPrime
}

// SegmentFromBytes reconstructs a NameSegment from its canonical
// 32-byte encoding, trusting that it was produced by Bytes() on a
// previously validated segment rather than re-running primality tests.
func SegmentFromBytes(b []byte) NameSegment {
	return NameSegment{prime: new(big.Int).SetBytes(b)}
}

func (s NameSegment) Bytes() []byte {
	b := make([]byte, segmentBits/8)
	s.prime.FillBytes(b)
	return b
}

func (s NameSegment) cmp(o NameSegment) int { return s.prime.Cmp(o.prime) }

// Accumulator is a quadratic residue in Z/N: the canonical label of a
// name. empty(setup) = g.
type Accumulator struct {
	residue *big.Int
}

// Empty returns the accumulator's identity element, g.
func Empty(setup Setup) Accumulator {
	return Accumulator{residue: new(big.Int).Set(setup.G)}
}

// Add computes a^segment mod N. Commutative and associative in the
// exponent, so the order segments are added in never matters.
func (a Accumulator) Add(seg NameSegment, setup Setup) Accumulator {
	r := new(big.Int).Exp(a.residue, seg.prime, setup.N)
	return Accumulator{residue: r}
}

// Bytes is the canonical 256-byte big-endian modular residue, the wire
// representation from spec.md section 6.
func (a Accumulator) Bytes() []byte {
	b := make([]byte, 256)
	a.residue.FillBytes(b)
	return b
}

func AccumulatorFromBytes(b []byte) Accumulator {
	return Accumulator{residue: new(big.Int).SetBytes(b)}
}

func (a Accumulator) Equal(o Accumulator) bool {
	return a.residue.Cmp(o.residue) == 0
}

// Name is an accumulator base paired with a set of segments that have
// been added to it but not yet folded in ("flattened"). Deferring the
// exponentiation keeps adds commutative regardless of call order; only
// Flatten needs a canonical (ascending prime) application order.
type Name struct {
	base    Accumulator
	pending []NameSegment
}

// NameFromAccumulator wraps an already-flattened accumulator with no
// pending segments.
func NameFromAccumulator(acc Accumulator) Name {
	return Name{base: acc}
}

// Add appends a pending segment. Because Flatten applies segments in
// canonical ascending order regardless of insertion order, Add is
// effectively commutative.
func (n Name) Add(seg NameSegment) Name {
	pending := make([]NameSegment, len(n.pending), len(n.pending)+1)
	copy(pending, n.pending)
	pending = append(pending, seg)
	return Name{base: n.base, pending: pending}
}

// IsZero reports whether n is the Name type's zero value — never a
// name anyone actually holds, but a sentinel callers can pass when no
// name is known yet (e.g. before a header has been decrypted) to skip
// a name-match check rather than flatten a nil accumulator.
func (n Name) IsZero() bool {
	return n.base.residue == nil && len(n.pending) == 0
}

// Flatten applies the pending segments in canonical ascending order and
// returns the resulting accumulator, the node's canonical label.
func (n Name) Flatten(setup Setup) Accumulator {
	sorted := make([]NameSegment, len(n.pending))
	copy(sorted, n.pending)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].cmp(sorted[j]) < 0 })

	acc := n.base
	for _, seg := range sorted {
		acc = acc.Add(seg, setup)
	}
	return acc
}
