package link

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
)

type memFetcher map[cid.Cid][]byte

func (m memFetcher) GetBlock(ctx context.Context, id cid.Cid) ([]byte, error) {
	return m[id], nil
}

func testCID(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	h, err := mh.Sum(data, mh.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, h)
}

func TestDirtyRequiresCIDToSerialize(t *testing.T) {
	l := FromValue("hello")
	_, err := l.RequireCID()
	require.ErrorIs(t, err, ErrDirtyWithNoCID)

	l.MarkStored(testCID(t, []byte("hello")))
	id, err := l.RequireCID()
	require.NoError(t, err)
	require.True(t, id.Defined())
}

func TestResolveValueCachesResult(t *testing.T) {
	data := []byte("payload")
	id := testCID(t, data)
	fetcher := memFetcher{id: data}

	calls := 0
	decode := func(d []byte, c cid.Cid) (string, error) {
		calls++
		return string(d), nil
	}

	l := FromCID[string](id)
	v, err := l.ResolveValue(context.Background(), fetcher, decode)
	require.NoError(t, err)
	require.Equal(t, "payload", v)

	v2, err := l.ResolveValue(context.Background(), fetcher, decode)
	require.NoError(t, err)
	require.Equal(t, "payload", v2)
	require.Equal(t, 1, calls, "second resolve must hit the cache, not the fetcher")
}

func TestSetValueInvalidatesCID(t *testing.T) {
	l := FromCID[string](testCID(t, []byte("x")))
	l.SetValue("y")
	require.True(t, l.IsDirty())
	_, ok := l.CID()
	require.False(t, ok)
}
