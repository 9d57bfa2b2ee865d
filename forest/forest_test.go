package forest

import (
	"context"
	"math/big"
	"testing"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/wnfs-wg/go-wnfs/blockstore"
	"github.com/wnfs-wg/go-wnfs/nameaccumulator"
)

func testSetup(t *testing.T) nameaccumulator.Setup {
	t.Helper()
	n, ok := new(big.Int).SetString("170141183460469231731687303715884105727", 10)
	require.True(t, ok)
	g := big.NewInt(65537)
	return nameaccumulator.NewSetup(n, g)
}

func testCID(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	h, err := mh.Sum(data, mh.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, h)
}

func testName(t *testing.T, seed string) nameaccumulator.Name {
	t.Helper()
	seg, err := nameaccumulator.SegmentFromDigest("forest-test", []byte(seed))
	require.NoError(t, err)
	return nameaccumulator.NameFromAccumulator(nameaccumulator.Empty(testSetup(t))).Add(seg)
}

func TestPutThenGetReturnsCID(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()
	f := New(testSetup(t), []byte("salt"))

	name := testName(t, "a")
	c := testCID(t, []byte("block-a"))

	require.NoError(t, f.Put(ctx, store, name, c))

	got, err := f.Get(ctx, store, name)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Equals(c))
}

func TestPutUnionsConcurrentCIDs(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()
	f := New(testSetup(t), []byte("salt"))

	name := testName(t, "a")
	c1 := testCID(t, []byte("block-1"))
	c2 := testCID(t, []byte("block-2"))

	require.NoError(t, f.Put(ctx, store, name, c1))
	require.NoError(t, f.Put(ctx, store, name, c2))

	got, err := f.Get(ctx, store, name)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestGetMissingNameReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()
	f := New(testSetup(t), []byte("salt"))

	name := testName(t, "missing")
	got, err := f.Get(ctx, store, name)
	require.NoError(t, err)
	require.Nil(t, got)

	has, err := f.Has(ctx, store, name)
	require.NoError(t, err)
	require.False(t, has)
}

func TestRemoveDropsLabel(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()
	f := New(testSetup(t), []byte("salt"))

	name := testName(t, "a")
	require.NoError(t, f.Put(ctx, store, name, testCID(t, []byte("x"))))

	removed, err := f.Remove(ctx, store, name)
	require.NoError(t, err)
	require.True(t, removed)

	has, err := f.Has(ctx, store, name)
	require.NoError(t, err)
	require.False(t, has)
}

func TestWriteRoundtripsThroughBlockstore(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()
	f := New(testSetup(t), []byte("salt"))

	require.NoError(t, f.Put(ctx, store, testName(t, "a"), testCID(t, []byte("x"))))
	require.NoError(t, f.Put(ctx, store, testName(t, "b"), testCID(t, []byte("y"))))

	rootCID, err := f.Write(ctx, store)
	require.NoError(t, err)

	data, err := store.GetBlock(ctx, rootCID)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestLoadReconstructsWrittenForest(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()
	setup := testSetup(t)
	salt := []byte("salt")

	f := New(setup, salt)
	name := testName(t, "a")
	c := testCID(t, []byte("x"))
	require.NoError(t, f.Put(ctx, store, name, c))

	rootCID, err := f.Write(ctx, store)
	require.NoError(t, err)

	loaded, err := Load(ctx, store, setup, salt, rootCID)
	require.NoError(t, err)

	got, err := loaded.Get(ctx, store, name)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Equals(c))
}

func TestDiffReportsAddedLabel(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()
	setup := testSetup(t)
	salt := []byte("salt")

	a := New(setup, salt)
	require.NoError(t, a.Put(ctx, store, testName(t, "kept"), testCID(t, []byte("x"))))

	b := New(setup, salt)
	require.NoError(t, b.Put(ctx, store, testName(t, "kept"), testCID(t, []byte("x"))))
	require.NoError(t, b.Put(ctx, store, testName(t, "new"), testCID(t, []byte("z"))))

	changes, err := Diff(ctx, store, salt, a, b)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, LabelAdded, changes[0].Kind)
}

func TestMergeUnionsDivergentCIDSets(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()
	setup := testSetup(t)
	salt := []byte("salt")

	name := testName(t, "shared")
	a := New(setup, salt)
	require.NoError(t, a.Put(ctx, store, name, testCID(t, []byte("from-a"))))

	b := New(setup, salt)
	require.NoError(t, b.Put(ctx, store, name, testCID(t, []byte("from-b"))))

	merged, err := Merge(ctx, store, a, b)
	require.NoError(t, err)

	got, err := merged.Get(ctx, store, name)
	require.NoError(t, err)
	require.Len(t, got, 2)
}
