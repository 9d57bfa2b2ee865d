package private

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/wnfs-wg/go-wnfs/base"
	"github.com/wnfs-wg/go-wnfs/blockstore"
	"github.com/wnfs-wg/go-wnfs/forest"
	"github.com/wnfs-wg/go-wnfs/nameaccumulator"
)

func testSetup(t *testing.T) nameaccumulator.Setup {
	t.Helper()
	n, ok := new(big.Int).SetString("170141183460469231731687303715884105727", 10)
	require.True(t, ok)
	g := big.NewInt(65537)
	return nameaccumulator.NewSetup(n, g)
}

func testRootName(t *testing.T, setup nameaccumulator.Setup, seed string) nameaccumulator.Name {
	t.Helper()
	seg, err := nameaccumulator.SegmentFromDigest("private-test", []byte(seed))
	require.NoError(t, err)
	return nameaccumulator.NameFromAccumulator(nameaccumulator.Empty(setup)).Add(seg)
}

func TestFileStoreLoadRoundtrip(t *testing.T) {
	ctx := context.Background()
	setup := testSetup(t)
	store := blockstore.NewMemory()
	fo := forest.New(setup, []byte("salt"))
	parent := testRootName(t, setup, "root")

	f, err := NewFile(parent, []byte("hello wnfs"))
	require.NoError(t, err)

	ref, err := f.Store(ctx, setup, fo, store)
	require.NoError(t, err)

	loaded, err := LoadFile(ctx, setup, f.Header.Name, ref, fo, store)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, []byte("hello wnfs"), loaded[0].Content)
}

func TestFileStoreAdvancesRatchetAndRecordsPrevious(t *testing.T) {
	ctx := context.Background()
	setup := testSetup(t)
	store := blockstore.NewMemory()
	fo := forest.New(setup, []byte("salt"))
	parent := testRootName(t, setup, "root")

	f, err := NewFile(parent, []byte("v1"))
	require.NoError(t, err)

	ref1, err := f.Store(ctx, setup, fo, store)
	require.NoError(t, err)
	require.Empty(t, f.Previous)

	f.Content = []byte("v2")
	ref2, err := f.Store(ctx, setup, fo, store)
	require.NoError(t, err)

	require.NotEqual(t, ref1.RevisionNameHash, ref2.RevisionNameHash)
	require.NotEqual(t, ref1.TemporalKey, ref2.TemporalKey)
	require.Len(t, f.Previous, 1)
	require.Equal(t, 0, f.Previous[0].Skip)

	loaded, err := LoadFile(ctx, setup, f.Header.Name, ref2, fo, store)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, []byte("v2"), loaded[0].Content)
	require.Len(t, loaded[0].Previous, 1)
}

func TestLoadFileResolvesConcurrentWriteAmbiguity(t *testing.T) {
	ctx := context.Background()
	setup := testSetup(t)
	store := blockstore.NewMemory()
	fo := forest.New(setup, []byte("salt"))
	parent := testRootName(t, setup, "root")

	h, err := NewHeader(parent)
	require.NoError(t, err)

	f1 := &File{Header: h.Clone(), Metadata: base.NewMetadata(base.Timestamp()), Content: []byte("writer-a")}
	f2 := &File{Header: h.Clone(), Metadata: base.NewMetadata(base.Timestamp()), Content: []byte("writer-b")}

	ref1, err := f1.Store(ctx, setup, fo, store)
	require.NoError(t, err)
	ref2, err := f2.Store(ctx, setup, fo, store)
	require.NoError(t, err)
	require.Equal(t, ref1.RevisionNameHash, ref2.RevisionNameHash)

	loaded, err := LoadFile(ctx, setup, h.Name, ref1, fo, store)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	contents := map[string]bool{}
	for _, f := range loaded {
		contents[string(f.Content)] = true
	}
	require.True(t, contents["writer-a"])
	require.True(t, contents["writer-b"])
}

func TestLoadFileSkipsUndecryptableCandidateNonFatally(t *testing.T) {
	ctx := context.Background()
	setup := testSetup(t)
	store := blockstore.NewMemory()
	fo := forest.New(setup, []byte("salt"))
	parent := testRootName(t, setup, "root")

	f, err := NewFile(parent, []byte("real content"))
	require.NoError(t, err)
	ref, err := f.Store(ctx, setup, fo, store)
	require.NoError(t, err)

	revName, err := f.Header.RevisionName()
	require.NoError(t, err)

	garbageCID, err := store.PutBlock(ctx, []byte("not a valid sealed block at all"), base.CodecRaw)
	require.NoError(t, err)
	require.NoError(t, fo.Put(ctx, store, revName, garbageCID))

	loaded, err := LoadFile(ctx, setup, f.Header.Name, ref, fo, store)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, []byte("real content"), loaded[0].Content)
}

func TestLoadFileMissingRevisionIsFatal(t *testing.T) {
	ctx := context.Background()
	setup := testSetup(t)
	store := blockstore.NewMemory()
	fo := forest.New(setup, []byte("salt"))
	parent := testRootName(t, setup, "root")

	f, err := NewFile(parent, []byte("x"))
	require.NoError(t, err)

	// never stored: forest has no entry for this revision's label
	h, err := mh.Sum([]byte("nonexistent"), mh.SHA2_256, -1)
	require.NoError(t, err)
	unstoredRef, err := RefFromHeader(setup, f.Header, cid.NewCidV1(cid.Raw, h))
	require.NoError(t, err)

	_, err = LoadFile(ctx, setup, f.Header.Name, unstoredRef, fo, store)
	require.Error(t, err)
	require.ErrorIs(t, err, base.ErrCIDNotFound)
}

func TestDirectoryStoreLoadRoundtrip(t *testing.T) {
	ctx := context.Background()
	setup := testSetup(t)
	store := blockstore.NewMemory()
	fo := forest.New(setup, []byte("salt"))
	parent := testRootName(t, setup, "root")

	d, err := NewDirectory(parent)
	require.NoError(t, err)

	child, err := NewFile(d.Header.Name, []byte("child content"))
	require.NoError(t, err)
	childRef, err := child.Store(ctx, setup, fo, store)
	require.NoError(t, err)

	require.NoError(t, d.SetChild("greeting.txt", childRef))

	dirRef, err := d.Store(ctx, setup, fo, store)
	require.NoError(t, err)

	loaded, err := LoadDirectory(ctx, setup, d.Header.Name, dirRef, fo, store)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Contains(t, loaded[0].Entries, "greeting.txt")

	sealed := loaded[0].Entries["greeting.txt"]
	recoveredRef, err := sealed.Decrypt(loaded[0].Header.SnapshotKey())
	require.NoError(t, err)

	childLoaded, err := LoadFile(ctx, setup, child.Header.Name, recoveredRef, fo, store)
	require.NoError(t, err)
	require.Len(t, childLoaded, 1)
	require.Equal(t, []byte("child content"), childLoaded[0].Content)
}

func TestDirectoryAdvanceReencryptsEntries(t *testing.T) {
	ctx := context.Background()
	setup := testSetup(t)
	store := blockstore.NewMemory()
	fo := forest.New(setup, []byte("salt"))
	parent := testRootName(t, setup, "root")

	d, err := NewDirectory(parent)
	require.NoError(t, err)

	child, err := NewFile(d.Header.Name, []byte("v1"))
	require.NoError(t, err)
	childRef, err := child.Store(ctx, setup, fo, store)
	require.NoError(t, err)
	require.NoError(t, d.SetChild("f.txt", childRef))

	_, err = d.Store(ctx, setup, fo, store)
	require.NoError(t, err)

	// advance the directory again; the previously-sealed entry must
	// still decrypt correctly under the new snapshot key.
	dirRef2, err := d.Store(ctx, setup, fo, store)
	require.NoError(t, err)

	loaded, err := LoadDirectory(ctx, setup, d.Header.Name, dirRef2, fo, store)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	sealed := loaded[0].Entries["f.txt"]
	recoveredRef, err := sealed.Decrypt(loaded[0].Header.SnapshotKey())
	require.NoError(t, err)

	childLoaded, err := LoadFile(ctx, setup, child.Header.Name, recoveredRef, fo, store)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), childLoaded[0].Content)
}

func TestLoadNodeDispatchesFileAndDirectory(t *testing.T) {
	ctx := context.Background()
	setup := testSetup(t)
	store := blockstore.NewMemory()
	fo := forest.New(setup, []byte("salt"))
	parent := testRootName(t, setup, "root")

	f, err := NewFile(parent, []byte("a file"))
	require.NoError(t, err)
	fileRef, err := f.Store(ctx, setup, fo, store)
	require.NoError(t, err)

	d, err := NewDirectory(parent)
	require.NoError(t, err)
	dirRef, err := d.Store(ctx, setup, fo, store)
	require.NoError(t, err)

	fileNodes, err := LoadNode(ctx, setup, f.Header.Name, fileRef, fo, store)
	require.NoError(t, err)
	require.Len(t, fileNodes, 1)
	require.NotNil(t, fileNodes[0].File)
	require.Nil(t, fileNodes[0].Directory)

	dirNodes, err := LoadNode(ctx, setup, d.Header.Name, dirRef, fo, store)
	require.NoError(t, err)
	require.Len(t, dirNodes, 1)
	require.NotNil(t, dirNodes[0].Directory)
	require.Nil(t, dirNodes[0].File)
}

func TestRefEncryptDecryptRoundtrip(t *testing.T) {
	ctx := context.Background()
	setup := testSetup(t)
	store := blockstore.NewMemory()
	fo := forest.New(setup, []byte("salt"))
	parent := testRootName(t, setup, "root")

	f, err := NewFile(parent, []byte("secret"))
	require.NoError(t, err)
	ref, err := f.Store(ctx, setup, fo, store)
	require.NoError(t, err)

	var parentKey [32]byte
	copy(parentKey[:], []byte("0123456789abcdef0123456789abcdef"))

	sealed, err := ref.Encrypt(parentKey)
	require.NoError(t, err)

	recovered, err := sealed.Decrypt(parentKey)
	require.NoError(t, err)
	require.Equal(t, ref.TemporalKey, recovered.TemporalKey)
	require.Equal(t, ref.SnapshotKey, recovered.SnapshotKey)
}

func TestRefDecryptWrongKeyFails(t *testing.T) {
	ctx := context.Background()
	setup := testSetup(t)
	store := blockstore.NewMemory()
	fo := forest.New(setup, []byte("salt"))
	parent := testRootName(t, setup, "root")

	f, err := NewFile(parent, []byte("secret"))
	require.NoError(t, err)
	ref, err := f.Store(ctx, setup, fo, store)
	require.NoError(t, err)

	var parentKey, wrongKey [32]byte
	copy(parentKey[:], []byte("0123456789abcdef0123456789abcdef"))
	copy(wrongKey[:], []byte("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"))

	sealed, err := ref.Encrypt(parentKey)
	require.NoError(t, err)

	_, err = sealed.Decrypt(wrongKey)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDecryptionFailed))
}
