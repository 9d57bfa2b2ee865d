// Package link implements the lazy, resolution-caching indirection (C7
// of spec.md) used throughout the HAMT and private node trees: a value
// that is either a CID waiting to be fetched or an in-memory value
// waiting to be stored.
package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
)

// ErrDirtyWithNoCID is returned when serializing a Link that has never
// been stored: callers must Store it (obtaining a CID) before it can be
// written out, mirroring crates/fs/private/link.rs and the untagged
// Pointer::NodeLink serialization rule in wnfs-hamt.
var ErrDirtyWithNoCID = errors.New("link: cannot serialize a dirty link with no cid")

// Decoder turns fetched bytes for a CID into a value of type T.
type Decoder[T any] func(data []byte, id cid.Cid) (T, error)

// Fetcher is the minimal capability Link needs from a blockstore: get
// raw bytes for a CID.
type Fetcher interface {
	GetBlock(ctx context.Context, id cid.Cid) ([]byte, error)
}

// Link is lazy, resolution-caching indirection: Clean{cid, value} once a
// value has been decoded, Dirty(value) for an in-memory value with no
// CID yet. After one successful ResolveValue the value is cached and
// later calls return it without fetching. Link does no locking:
// concurrent ResolveValue calls on the same unresolved Link may each
// fetch and decode the block.
type Link[T any] struct {
	cid   cid.Cid
	value *T
	dirty bool
}

// FromValue builds a Dirty link around an in-memory value with no CID.
func FromValue[T any](v T) *Link[T] {
	return &Link[T]{value: &v, dirty: true}
}

// FromCID builds a Clean link that hasn't resolved its value yet.
func FromCID[T any](id cid.Cid) *Link[T] {
	return &Link[T]{cid: id}
}

// IsDirty reports whether this link has no CID (never stored).
func (l *Link[T]) IsDirty() bool { return l.dirty }

// CID returns the link's CID, if it has one.
func (l *Link[T]) CID() (cid.Cid, bool) {
	if l.dirty {
		return cid.Undef, false
	}
	return l.cid, true
}

// ResolveValue returns the cached value if present, else fetches and
// decodes it from the CID, caching the result for subsequent calls —
// "at most one resolve" per spec.md section 4.7.
func (l *Link[T]) ResolveValue(ctx context.Context, store Fetcher, decode Decoder[T]) (T, error) {
	if l.value != nil {
		return *l.value, nil
	}
	if l.dirty {
		var zero T
		return zero, errors.New("link: dirty link has no cid to resolve")
	}

	data, err := store.GetBlock(ctx, l.cid)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("resolving link %s: %w", l.cid, err)
	}
	v, err := decode(data, l.cid)
	if err != nil {
		var zero T
		return zero, err
	}
	l.value = &v
	return v, nil
}

// SetValue mutates the link's in-memory value, invalidating its CID: the
// next serialization attempt must re-store it first.
func (l *Link[T]) SetValue(v T) {
	l.value = &v
	l.dirty = true
	l.cid = cid.Undef
}

// MarkStored records the CID a Dirty link was just persisted under,
// transitioning it to Clean.
func (l *Link[T]) MarkStored(id cid.Cid) {
	l.cid = id
	l.dirty = false
}

// RequireCID returns the link's CID for serialization, failing if the
// link is Dirty with no CID — forcing callers to store first.
func (l *Link[T]) RequireCID() (cid.Cid, error) {
	if l.dirty {
		return cid.Undef, ErrDirtyWithNoCID
	}
	return l.cid, nil
}
