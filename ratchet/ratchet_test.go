package ratchet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdvanceMonotone(t *testing.T) {
	r, err := NewSpiral()
	require.NoError(t, err)

	before := *r
	r.Advance()
	require.False(t, r.Equal(&before))
}

func TestAdvanceThenPreviousOneStep(t *testing.T) {
	r0, err := NewSpiral()
	require.NoError(t, err)
	r1 := *r0
	r1.Advance()

	prev, err := r1.Previous(r0, 1)
	require.NoError(t, err)
	require.Len(t, prev, 1)
	require.True(t, prev[0].Equal(&r1))
}

func TestPreviousThousandSteps(t *testing.T) {
	r0, err := NewSpiral()
	require.NoError(t, err)

	r1000 := *r0
	for i := 0; i < 1000; i++ {
		r1000.Advance()
	}

	seq, err := r1000.Previous(r0, 2000)
	require.NoError(t, err)
	require.Len(t, seq, 1000)
	require.True(t, seq[len(seq)-1].Equal(&r1000))
}

func TestPreviousBudgetExceeded(t *testing.T) {
	r0, err := NewSpiral()
	require.NoError(t, err)
	r1000 := *r0
	for i := 0; i < 1000; i++ {
		r1000.Advance()
	}

	_, err = r1000.Previous(r0, 10)
	require.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	r, err := NewSpiral()
	require.NoError(t, err)
	r.Advance()

	encoded := r.Encode()
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.True(t, r.Equal(decoded))
}

func TestKeyDerivationDeterministic(t *testing.T) {
	r, err := NewSpiral()
	require.NoError(t, err)

	k1 := r.Key()
	k2 := r.Key()
	require.Equal(t, k1, k2)

	snap1 := SnapshotKeyFromTemporal(k1)
	snap2 := SnapshotKeyFromTemporal(k1)
	require.Equal(t, snap1, snap2)
	require.NotEqual(t, k1, snap1)
}

func TestAdvanceCascadesIntoMedium(t *testing.T) {
	r, err := NewSpiral()
	require.NoError(t, err)
	mediumBefore := r.medium

	for i := 0; i < mediumEpochSize; i++ {
		r.Advance()
	}
	require.NotEqual(t, mediumBefore, r.medium)
}
