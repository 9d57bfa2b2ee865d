package nameaccumulator

import (
	"crypto/sha256"
	"math/big"
)

// Proof is a PoKE* (Proof of Knowledge of Exponent, small-exponent
// variant) batched membership proof for the claim base^x = acc for a
// known exponent x, per spec.md section 4.1.
type Proof struct {
	Q *big.Int // base^floor(x/l)
	R *big.Int // x mod l
}

// primeSizeBits bounds the Fiat-Shamir challenge prime l: small enough to
// keep proofs compact, large enough that random tampering is caught with
// overwhelming probability (soundness error <= 1/l).
const primeSizeBits = 128

// Prove builds a PoKE* proof that base^x = acc (mod N) for a prover who
// knows x.
func Prove(setup Setup, base, acc *big.Int, x *big.Int) (Proof, error) {
	l, err := fiatShamirPrime(setup, base, acc)
	if err != nil {
		return Proof{}, err
	}

	q := new(big.Int)
	r := new(big.Int)
	q.DivMod(x, l, r)

	Q := new(big.Int).Exp(base, q, setup.N)
	return Proof{Q: Q, R: r}, nil
}

// Verify checks a PoKE* proof: Q^l * base^r == acc (mod N) and 0 <= r < l.
func Verify(setup Setup, base, acc *big.Int, proof Proof) error {
	l, err := fiatShamirPrime(setup, base, acc)
	if err != nil {
		return err
	}

	if proof.R.Sign() < 0 || proof.R.Cmp(l) >= 0 {
		return ErrResidueOutsideRange
	}

	lhs := new(big.Int).Exp(proof.Q, l, setup.N)
	baseR := new(big.Int).Exp(base, proof.R, setup.N)
	lhs.Mul(lhs, baseR)
	lhs.Mod(lhs, setup.N)

	if lhs.Cmp(new(big.Int).Mod(acc, setup.N)) != 0 {
		return ErrValidationFailed
	}
	return nil
}

// fiatShamirPrime derives the verifier's challenge prime l by hashing
// (base, acc, Q) is what an interactive verifier would sample; in the
// non-interactive Fiat-Shamir form used here it's a hash-to-prime over
// (setup.N, base, acc) so both prover and verifier agree on l without
// interaction.
func fiatShamirPrime(setup Setup, base, acc *big.Int) (*big.Int, error) {
	h := sha256.New()
	h.Write(setup.N.Bytes())
	h.Write(base.Bytes())
	h.Write(acc.Bytes())
	seg, err := hashToPrimeSegment(h.Sum(nil))
	if err != nil {
		return nil, err
	}
	// Truncate to primeSizeBits worth of entropy: keep the top
	// primeSizeBits bits of the 256-bit prime, force the result odd, and
	// step upward by 2 until a prime is found, so l stays compact.
	l := new(big.Int).Rsh(seg.prime, segmentBits-primeSizeBits)
	if l.Bit(0) == 0 {
		l.SetBit(l, 0, 1)
	}
	for i := 0; i < 1<<16; i++ {
		if l.ProbablyPrime(millerRabinRounds) {
			return l, nil
		}
		l.Add(l, big.NewInt(2))
	}
	return nil, ErrLHashNonPrime
}

// BatchedProof aggregates multiple PoKE* statements sharing the same base
// and modulus into one product check (PoKCR): instead of verifying each
// acc_i = base^x_i independently, the prover commits to the product
// accumulator and a single combined proof suffices.
type BatchedProof struct {
	Combined Proof
}

// ProveBatch builds a PoKCR proof for n independent (acc_i, x_i) claims
// against the same base: it proves knowledge of x = sum(x_i) such that
// base^x = prod(acc_i).
func ProveBatch(setup Setup, base *big.Int, accs []*big.Int, xs []*big.Int) (BatchedProof, error) {
	product := big.NewInt(1)
	for _, a := range accs {
		product.Mul(product, a)
		product.Mod(product, setup.N)
	}
	sum := big.NewInt(0)
	for _, x := range xs {
		sum.Add(sum, x)
	}

	proof, err := Prove(setup, base, product, sum)
	return BatchedProof{Combined: proof}, err
}

// VerifyBatch checks a PoKCR proof against the claimed set of accumulator
// values: it folds them into the product accumulator and runs a single
// PoKE* verification.
func VerifyBatch(setup Setup, base *big.Int, accs []*big.Int, proof BatchedProof) error {
	product := big.NewInt(1)
	for _, a := range accs {
		product.Mul(product, a)
		product.Mod(product, setup.N)
	}
	return Verify(setup, base, product, proof.Combined)
}
