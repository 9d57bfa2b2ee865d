package nameaccumulator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// testSetup builds a small-but-still-exercising RSA-style modulus from
// two large primes. Production deployments use the RSA-2048 Factoring
// Challenge value; tests do not need the factorization to be secret, so
// both factors are spelled out below.
func testSetup(t *testing.T) Setup {
	t.Helper()
	p, ok := new(big.Int).SetString("170141183460469231731687303715884105727", 10) // 2^127-1, Mersenne prime
	require.True(t, ok)
	q, ok := new(big.Int).SetString("162259276829213363391578010288127", 10) // 2^107-1, Mersenne prime
	require.True(t, ok)
	n := new(big.Int).Mul(p, q)
	return NewSetup(n, big.NewInt(65537))
}

func TestAccumulatorCommutative(t *testing.T) {
	setup := testSetup(t)
	s1, err := RandomSegment()
	require.NoError(t, err)
	s2, err := RandomSegment()
	require.NoError(t, err)

	a := Empty(setup).Add(s1, setup).Add(s2, setup)
	b := Empty(setup).Add(s2, setup).Add(s1, setup)
	require.True(t, a.Equal(b))
}

func TestNameFlattenOrderIndependent(t *testing.T) {
	setup := testSetup(t)
	s1, err := RandomSegment()
	require.NoError(t, err)
	s2, err := RandomSegment()
	require.NoError(t, err)
	s3, err := RandomSegment()
	require.NoError(t, err)

	n1 := NameFromAccumulator(Empty(setup)).Add(s1).Add(s2).Add(s3)
	n2 := NameFromAccumulator(Empty(setup)).Add(s3).Add(s1).Add(s2)

	require.True(t, n1.Flatten(setup).Equal(n2.Flatten(setup)))
}

func TestAccumulatorBytesRoundtrip(t *testing.T) {
	setup := testSetup(t)
	seg, err := RandomSegment()
	require.NoError(t, err)
	a := Empty(setup).Add(seg, setup)

	b := AccumulatorFromBytes(a.Bytes())
	require.True(t, a.Equal(b))
	require.Len(t, a.Bytes(), 256)
}

func TestPoKEHappyPath(t *testing.T) {
	setup := testSetup(t)
	base := new(big.Int).Set(setup.G)

	x := big.NewInt(1)
	var segs []NameSegment
	for i := 0; i < 3; i++ {
		seg, err := RandomSegment()
		require.NoError(t, err)
		segs = append(segs, seg)
		x.Mul(x, seg.prime)
	}

	acc := new(big.Int).Exp(base, x, setup.N)

	proof, err := Prove(setup, base, acc, x)
	require.NoError(t, err)
	require.NoError(t, Verify(setup, base, acc, proof))
}

func TestPoKETamperedQRejected(t *testing.T) {
	setup := testSetup(t)
	base := new(big.Int).Set(setup.G)
	x := big.NewInt(123456789)
	acc := new(big.Int).Exp(base, x, setup.N)

	proof, err := Prove(setup, base, acc, x)
	require.NoError(t, err)

	tampered := proof
	tampered.Q = new(big.Int).Xor(proof.Q, big.NewInt(1))
	require.Error(t, Verify(setup, base, acc, tampered))
}

func TestSegmentsArePrime(t *testing.T) {
	for i := 0; i < 10; i++ {
		seg, err := RandomSegment()
		require.NoError(t, err)
		require.True(t, seg.prime.ProbablyPrime(40))
		require.Equal(t, uint(1), seg.prime.Bit(0), "segment must be odd")
	}
}

func TestSegmentFromDigestDeterministic(t *testing.T) {
	s1, err := SegmentFromDigest("wnfs-inumber", []byte("abc"))
	require.NoError(t, err)
	s2, err := SegmentFromDigest("wnfs-inumber", []byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 0, s1.cmp(s2))

	s3, err := SegmentFromDigest("wnfs-inumber", []byte("abd"))
	require.NoError(t, err)
	require.NotEqual(t, 0, s1.cmp(s3))
}
