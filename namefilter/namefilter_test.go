package namefilter

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddContainsNoFalseNegatives(t *testing.T) {
	f := Empty()
	for i := 0; i < 50; i++ {
		f.AddDigest([]byte(fmt.Sprintf("%d", i)))
	}

	for i := 0; i < 50; i++ {
		require.True(t, f.Contains(hashOf(fmt.Sprintf("%d", i))), "item %d must be present", i)
	}

	require.LessOrEqual(t, f.PopCount(), 50*numHashes)
	require.Less(t, f.PopCount(), bitCount)
}

// hashOf re-derives the digest AddDigest hashes its input down to, so
// Contains(...) checks against the identical bit positions.
func hashOf(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

func TestSaturateReachesThreshold(t *testing.T) {
	f := Empty()
	require.NoError(t, f.Saturate())
	require.GreaterOrEqual(t, f.PopCount(), SaturationThreshold)
}

func TestSaturateIdempotentAboveThreshold(t *testing.T) {
	f := Empty()
	require.NoError(t, f.Saturate())
	count := f.PopCount()
	require.NoError(t, f.Saturate())
	require.Equal(t, count, f.PopCount())
}

func TestBytesRoundtrip(t *testing.T) {
	f := Empty()
	f.AddDigest([]byte("hello"))
	b := f.Bytes()
	require.Len(t, b, byteCount)

	f2 := FromBytes(b)
	require.Equal(t, f.PopCount(), f2.PopCount())
}
