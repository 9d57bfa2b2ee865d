package blockstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wnfs-wg/go-wnfs/base"
)

func TestDiskPutGetRoundtrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewDisk(dir)
	require.NoError(t, err)

	id, err := store.PutBlock(ctx, []byte("hello disk"), base.CodecRaw)
	require.NoError(t, err)

	has, err := store.HasBlock(ctx, id)
	require.NoError(t, err)
	require.True(t, has)

	data, err := store.GetBlock(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello disk"), data)
}

func TestDiskGetMissingIsCIDNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	id, err := NewMemory().PutBlock(ctx, []byte("x"), base.CodecRaw)
	require.NoError(t, err)

	_, err = store.GetBlock(ctx, id)
	require.ErrorIs(t, err, base.ErrCIDNotFound)
}

func TestDiskDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewDisk(dir)
	require.NoError(t, err)

	id, err := store.PutBlock(ctx, []byte("original"), base.CodecRaw)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.path(id), []byte("tampered bytes, wrong hash"), 0644))

	_, err = store.GetBlock(ctx, id)
	require.Error(t, err)
}
