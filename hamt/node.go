package hamt

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/ipfs/go-cid"
	golog "github.com/ipfs/go-log/v2"

	"github.com/wnfs-wg/go-wnfs/base"
	"github.com/wnfs-wg/go-wnfs/link"
)

var log = golog.Logger("wnfs")

// Store is the minimal blockstore capability the HAMT needs: get raw
// bytes for a CID, put raw bytes under a new one. Any blockstore.BlockStore
// satisfies this structurally.
type Store interface {
	GetBlock(ctx context.Context, id cid.Cid) ([]byte, error)
	PutBlock(ctx context.Context, data []byte, codec base.Codec) (cid.Cid, error)
}

// Node is one trie node: a 16-bit bitmap plus one Pointer per set bit,
// ordered by bit index (spec.md section 3, HAMT invariants 1-2).
type Node[V any] struct {
	Bitmap   uint16
	Pointers []*Pointer[V]
}

func NewNode[V any]() *Node[V] { return &Node[V]{} }

func (n *Node[V]) clone() *Node[V] {
	cp := &Node[V]{Bitmap: n.Bitmap, Pointers: make([]*Pointer[V], len(n.Pointers))}
	copy(cp.Pointers, n.Pointers)
	return cp
}

// indexForBit maps a bitmap bit position to its position within the
// compressed Pointers slice: the popcount of bits below it.
func (n *Node[V]) indexForBit(bit int) int {
	mask := uint16(1<<uint(bit)) - 1
	return bits.OnesCount16(n.Bitmap & mask)
}

func (n *Node[V]) hasBit(bit int) bool {
	return n.Bitmap&(1<<uint(bit)) != 0
}

func insertPointer[V any](pointers []*Pointer[V], idx int, p *Pointer[V]) []*Pointer[V] {
	out := make([]*Pointer[V], 0, len(pointers)+1)
	out = append(out, pointers[:idx]...)
	out = append(out, p)
	out = append(out, pointers[idx:]...)
	return out
}

func removePointer[V any](pointers []*Pointer[V], idx int) []*Pointer[V] {
	out := make([]*Pointer[V], 0, len(pointers)-1)
	out = append(out, pointers[:idx]...)
	out = append(out, pointers[idx+1:]...)
	return out
}

func resolveChild[V any](ctx context.Context, p *Pointer[V], salt []byte, store Store) (*Node[V], error) {
	decode := func(data []byte, id cid.Cid) (*Node[V], error) {
		n := &Node[V]{}
		if err := n.UnmarshalCBOR(data); err != nil {
			return nil, fmt.Errorf("decoding hamt node %s: %w", id, err)
		}
		return n, nil
	}
	return p.Child.ResolveValue(ctx, storeFetcher{store}, decode)
}

type storeFetcher struct{ Store }

func (s storeFetcher) GetBlock(ctx context.Context, id cid.Cid) ([]byte, error) {
	return s.Store.GetBlock(ctx, id)
}

// Set inserts (or updates) key -> value and returns the new root,
// structurally sharing everything off the path to this key
// (copy-on-write). salt parameterizes the keyed hash function.
func (n *Node[V]) Set(ctx context.Context, salt []byte, store Store, key string, value V) (*Node[V], error) {
	hb := NewHashBits(HashKey(salt, []byte(key)))
	return n.setAt(ctx, hb, salt, store, key, value)
}

func (n *Node[V]) setAt(ctx context.Context, hb *HashBits, salt []byte, store Store, key string, value V) (*Node[V], error) {
	if hb.Depth() >= MaxDepth {
		return n.setUnboundedBucket(key, value), nil
	}

	nib, err := hb.Next()
	if err != nil {
		return nil, err
	}

	if !n.hasBit(nib) {
		idx := n.indexForBit(nib)
		clone := n.clone()
		clone.Bitmap |= 1 << uint(nib)
		clone.Pointers = insertPointer(clone.Pointers, idx, valuesPointer(KV[V]{Key: key, Value: value}))
		return clone, nil
	}

	idx := n.indexForBit(nib)
	p := n.Pointers[idx]

	if p.IsLink() {
		child, err := resolveChild(ctx, p, salt, store)
		if err != nil {
			return nil, err
		}
		newChild, err := child.setAt(ctx, hb, salt, store, key, value)
		if err != nil {
			return nil, err
		}
		clone := n.clone()
		clone.Pointers[idx] = linkPointer(newChild)
		return clone, nil
	}

	for i, kv := range p.Values {
		if kv.Key == key {
			newValues := append([]KV[V]{}, p.Values...)
			newValues[i].Value = value
			clone := n.clone()
			clone.Pointers[idx] = valuesPointer(newValues...)
			return clone, nil
		}
	}

	if len(p.Values) < ValuesBucketSize {
		newValues := append(append([]KV[V]{}, p.Values...), KV[V]{Key: key, Value: value})
		sortValues(salt, newValues)
		clone := n.clone()
		clone.Pointers[idx] = valuesPointer(newValues...)
		return clone, nil
	}

	// Bucket promotion: split a full 3-entry bucket into a child node one
	// level deeper, reinserting every existing entry plus the new one.
	log.Debugw("hamt bucket split", "depth", hb.Depth(), "nib", nib, "key", key)
	child := &Node[V]{}
	all := append(append([]KV[V]{}, p.Values...), KV[V]{Key: key, Value: value})
	for _, kv := range all {
		khb := &HashBits{hash: HashKey(salt, []byte(kv.Key)), consumed: hb.Depth()}
		var err error
		child, err = child.setAt(ctx, khb, salt, store, kv.Key, kv.Value)
		if err != nil {
			return nil, err
		}
	}

	clone := n.clone()
	clone.Pointers[idx] = linkPointer(child)
	return clone, nil
}

// setUnboundedBucket handles the theoretical depth==MaxDepth case: the
// spec permits an unbounded bucket here since there are no hash bits
// left to split on.
func (n *Node[V]) setUnboundedBucket(key string, value V) *Node[V] {
	clone := n.clone()
	if len(clone.Pointers) == 0 {
		clone.Bitmap = 1
		clone.Pointers = []*Pointer[V]{valuesPointer(KV[V]{Key: key, Value: value})}
		return clone
	}
	p := clone.Pointers[0]
	for i, kv := range p.Values {
		if kv.Key == key {
			newValues := append([]KV[V]{}, p.Values...)
			newValues[i].Value = value
			clone.Pointers[0] = valuesPointer(newValues...)
			return clone
		}
	}
	newValues := append(append([]KV[V]{}, p.Values...), KV[V]{Key: key, Value: value})
	clone.Pointers[0] = valuesPointer(newValues...)
	return clone
}

// Get looks up key, returning (value, true) if present.
func (n *Node[V]) Get(ctx context.Context, salt []byte, store Store, key string) (V, bool, error) {
	hb := NewHashBits(HashKey(salt, []byte(key)))
	return n.getAt(ctx, hb, salt, store, key)
}

func (n *Node[V]) getAt(ctx context.Context, hb *HashBits, salt []byte, store Store, key string) (V, bool, error) {
	var zero V
	if hb.Depth() >= MaxDepth {
		if len(n.Pointers) == 0 {
			return zero, false, nil
		}
		for _, kv := range n.Pointers[0].Values {
			if kv.Key == key {
				return kv.Value, true, nil
			}
		}
		return zero, false, nil
	}

	nib, err := hb.Next()
	if err != nil {
		return zero, false, err
	}
	if !n.hasBit(nib) {
		return zero, false, nil
	}

	idx := n.indexForBit(nib)
	p := n.Pointers[idx]
	if p.IsLink() {
		child, err := resolveChild(ctx, p, salt, store)
		if err != nil {
			return zero, false, err
		}
		return child.getAt(ctx, hb, salt, store, key)
	}

	for _, kv := range p.Values {
		if kv.Key == key {
			return kv.Value, true, nil
		}
	}
	return zero, false, nil
}

// Remove deletes key if present and canonicalizes the result: any Link
// whose resolved node collapses to a single Values pointer is inlined
// back into the parent (spec.md section 3, "Canonicalization").
func (n *Node[V]) Remove(ctx context.Context, salt []byte, store Store, key string) (*Node[V], bool, error) {
	hb := NewHashBits(HashKey(salt, []byte(key)))
	return n.removeAt(ctx, hb, salt, store, key)
}

func (n *Node[V]) removeAt(ctx context.Context, hb *HashBits, salt []byte, store Store, key string) (*Node[V], bool, error) {
	if hb.Depth() >= MaxDepth {
		if len(n.Pointers) == 0 {
			return n, false, nil
		}
		p := n.Pointers[0]
		for i, kv := range p.Values {
			if kv.Key == key {
				clone := n.clone()
				newValues := append(append([]KV[V]{}, p.Values[:i]...), p.Values[i+1:]...)
				if len(newValues) == 0 {
					clone.Bitmap = 0
					clone.Pointers = nil
				} else {
					clone.Pointers[0] = valuesPointer(newValues...)
				}
				return clone, true, nil
			}
		}
		return n, false, nil
	}

	nib, err := hb.Next()
	if err != nil {
		return nil, false, err
	}
	if !n.hasBit(nib) {
		return n, false, nil
	}

	idx := n.indexForBit(nib)
	p := n.Pointers[idx]

	if p.IsLink() {
		child, err := resolveChild(ctx, p, salt, store)
		if err != nil {
			return nil, false, err
		}
		newChild, removed, err := child.removeAt(ctx, hb, salt, store, key)
		if err != nil || !removed {
			return n, removed, err
		}

		clone := n.clone()
		switch {
		case len(newChild.Pointers) == 0:
			// empty sub-shard: prune the bit entirely.
			log.Debugw("hamt shard pruned", "depth", hb.Depth(), "nib", nib)
			clone.Bitmap &^= 1 << uint(nib)
			clone.Pointers = removePointer(clone.Pointers, idx)
		case len(newChild.Pointers) == 1 && !newChild.Pointers[0].IsLink():
			// collapses to a single Values bucket: inline it.
			log.Debugw("hamt shard collapsed", "depth", hb.Depth(), "nib", nib)
			clone.Pointers[idx] = newChild.Pointers[0]
		default:
			clone.Pointers[idx] = linkPointer(newChild)
		}
		return clone, true, nil
	}

	for i, kv := range p.Values {
		if kv.Key != key {
			continue
		}
		clone := n.clone()
		newValues := append(append([]KV[V]{}, p.Values[:i]...), p.Values[i+1:]...)
		if len(newValues) == 0 {
			clone.Bitmap &^= 1 << uint(nib)
			clone.Pointers = removePointer(clone.Pointers, idx)
		} else {
			clone.Pointers[idx] = valuesPointer(newValues...)
		}
		return clone, true, nil
	}

	return n, false, nil
}

// Write recursively persists every dirty (in-memory, uncommitted) link
// reachable from n, bottom-up, and returns the CID of n itself. Clean
// subtrees whose CID is already known are skipped — this is the
// structural-sharing payoff: an unmodified sibling is never re-encoded.
func (n *Node[V]) Write(ctx context.Context, store Store) (cid.Cid, error) {
	for i, p := range n.Pointers {
		if !p.IsLink() {
			continue
		}
		if _, ok := p.Child.CID(); ok {
			continue
		}
		childNode, err := dirtyValue(p.Child)
		if err != nil {
			return cid.Undef, err
		}
		childCID, err := childNode.Write(ctx, store)
		if err != nil {
			return cid.Undef, err
		}
		p.Child.MarkStored(childCID)
		n.Pointers[i] = p
	}

	data, err := n.MarshalCBOR()
	if err != nil {
		return cid.Undef, err
	}
	return store.PutBlock(ctx, data, base.CodecDagCbor)
}

// dirtyValue extracts the in-memory value of a Dirty link without
// attempting to fetch it.
func dirtyValue[V any](l *link.Link[*Node[V]]) (*Node[V], error) {
	v, err := l.ResolveValue(context.Background(), noopFetcher{}, func(data []byte, id cid.Cid) (*Node[V], error) {
		return nil, fmt.Errorf("dirty link unexpectedly needed a fetch")
	})
	return v, err
}

type noopFetcher struct{}

func (noopFetcher) GetBlock(ctx context.Context, id cid.Cid) ([]byte, error) {
	return nil, fmt.Errorf("noopFetcher: no blocks available")
}
