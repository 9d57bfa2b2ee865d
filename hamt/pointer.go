package hamt

import (
	"sort"

	"github.com/wnfs-wg/go-wnfs/link"
)

// ValuesBucketSize is the maximum number of entries a Values pointer may
// hold before it's split into a child Node — branching factor 16, bucket
// size 3, per spec.md section 3/4.5 and wnfs-hamt's
// HAMT_VALUES_BUCKET_SIZE constant.
const ValuesBucketSize = 3

// KV is one (key, value) entry inside a Values bucket.
type KV[V any] struct {
	Key   string
	Value V
}

// Pointer is the untagged union wnfs-hamt/src/pointer.rs's
// Pointer::{Values, NodeLink} describes: either a small sorted bucket of
// entries, or a lazy link to a child Node one level deeper.
type Pointer[V any] struct {
	Values []KV[V]
	Child  *link.Link[*Node[V]]
}

func valuesPointer[V any](kvs ...KV[V]) *Pointer[V] {
	return &Pointer[V]{Values: kvs}
}

func linkPointer[V any](child *Node[V]) *Pointer[V] {
	return &Pointer[V]{Child: link.FromValue(child)}
}

func (p *Pointer[V]) IsLink() bool { return p.Child != nil }

// sortValues restores the "sorted ascending by hash(K) then K" invariant
// within a Values bucket (spec.md section 3, HAMT invariant 3).
func sortValues[V any](salt []byte, kvs []KV[V]) {
	sort.Slice(kvs, func(i, j int) bool {
		hi := HashKey(salt, []byte(kvs[i].Key))
		hj := HashKey(salt, []byte(kvs[j].Key))
		for k := range hi {
			if hi[k] != hj[k] {
				return hi[k] < hj[k]
			}
		}
		return kvs[i].Key < kvs[j].Key
	})
}
