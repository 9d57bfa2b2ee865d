// Package forest implements the PrivateForest: the top-level HAMT that
// maps an accumulated name's hash to the set of block CIDs stored
// under that name (spec.md section 4.6).
package forest

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	golog "github.com/ipfs/go-log/v2"
	"golang.org/x/crypto/sha3"

	"github.com/wnfs-wg/go-wnfs/hamt"
	"github.com/wnfs-wg/go-wnfs/nameaccumulator"
)

var log = golog.Logger("wnfs")

// Forest is a PrivateForest: an RSA accumulator Setup plus a HAMT from
// label hash to CIDSet.
type Forest struct {
	Setup nameaccumulator.Setup
	Root  *hamt.Hamt[CIDSet]
	salt  []byte
}

// New creates an empty forest over the given accumulator setup. salt
// keys the HAMT's internal hash function, kept separate from any
// per-name cryptographic material.
func New(setup nameaccumulator.Setup, salt []byte) *Forest {
	return &Forest{Setup: setup, Root: hamt.NewHamt[CIDSet](), salt: salt}
}

// Label hashes an accumulated name down to the HAMT key this forest
// uses: SHA3-256 of the name's canonical 256-byte accumulator
// encoding (spec.md section 4.6).
func Label(setup nameaccumulator.Setup, name nameaccumulator.Name) string {
	acc := name.Flatten(setup)
	sum := sha3.Sum256(acc.Bytes())
	return string(sum[:])
}

// Put unions blockCID into the CIDSet stored under name's label,
// creating the entry if absent.
func (f *Forest) Put(ctx context.Context, store hamt.Store, name nameaccumulator.Name, blockCID cid.Cid) error {
	label := Label(f.Setup, name)

	existing, ok, err := f.Root.Root.Get(ctx, f.salt, store, label)
	if err != nil {
		return fmt.Errorf("forest put %x: %w", label, err)
	}

	var merged CIDSet
	if ok {
		merged = Union(existing, Single(blockCID))
	} else {
		merged = Single(blockCID)
	}

	newRoot, err := f.Root.Root.Set(ctx, f.salt, store, label, merged)
	if err != nil {
		return fmt.Errorf("forest put %x: %w", label, err)
	}
	f.Root.Root = newRoot
	log.Debugw("Forest.Put", "label", fmt.Sprintf("%x", label), "cid", blockCID, "setSize", len(merged))
	return nil
}

// Get returns the full CIDSet stored under name's label.
func (f *Forest) Get(ctx context.Context, store hamt.Store, name nameaccumulator.Name) (CIDSet, error) {
	label := Label(f.Setup, name)
	set, ok, err := f.Root.Root.Get(ctx, f.salt, store, label)
	if err != nil {
		return nil, fmt.Errorf("forest get %x: %w", label, err)
	}
	log.Debugw("Forest.Get", "label", fmt.Sprintf("%x", label), "found", ok, "setSize", len(set))
	if !ok {
		return nil, nil
	}
	return set, nil
}

// GetByLabelHash looks a CIDSet up directly by its already-computed
// 32-byte label hash, bypassing name re-derivation — the path a Ref
// holder takes, since a Ref already carries its revision's label hash.
func (f *Forest) GetByLabelHash(ctx context.Context, store hamt.Store, labelHash [32]byte) (CIDSet, error) {
	set, ok, err := f.Root.Root.Get(ctx, f.salt, store, string(labelHash[:]))
	if err != nil {
		return nil, fmt.Errorf("forest get by label: %w", err)
	}
	log.Debugw("Forest.GetByLabelHash", "labelHash", fmt.Sprintf("%x", labelHash), "found", ok, "setSize", len(set))
	if !ok {
		return nil, nil
	}
	return set, nil
}

// Has reports whether anything is stored under name's label.
func (f *Forest) Has(ctx context.Context, store hamt.Store, name nameaccumulator.Name) (bool, error) {
	label := Label(f.Setup, name)
	_, ok, err := f.Root.Root.Get(ctx, f.salt, store, label)
	return ok, err
}

// Remove deletes the entire CIDSet stored under name's label,
// regardless of which CIDs it contained — used when a revision is
// being superseded outright rather than merged with a concurrent one.
func (f *Forest) Remove(ctx context.Context, store hamt.Store, name nameaccumulator.Name) (bool, error) {
	label := Label(f.Setup, name)
	newRoot, removed, err := f.Root.Root.Remove(ctx, f.salt, store, label)
	if err != nil {
		return false, fmt.Errorf("forest remove %x: %w", label, err)
	}
	f.Root.Root = newRoot
	return removed, nil
}

// Write persists the forest's HAMT to store, returning the root CID.
func (f *Forest) Write(ctx context.Context, store hamt.Store) (cid.Cid, error) {
	return f.Root.Write(ctx, store)
}

// Load reconstructs a Forest from a previously-Write-returned root CID.
func Load(ctx context.Context, store hamt.Store, setup nameaccumulator.Setup, salt []byte, rootCID cid.Cid) (*Forest, error) {
	data, err := store.GetBlock(ctx, rootCID)
	if err != nil {
		return nil, fmt.Errorf("loading forest root %s: %w", rootCID, err)
	}
	root := &hamt.Hamt[CIDSet]{}
	if err := root.UnmarshalCBOR(data); err != nil {
		return nil, fmt.Errorf("decoding forest root %s: %w", rootCID, err)
	}
	return &Forest{Setup: setup, Root: root, salt: salt}, nil
}

// ChangeKind classifies one ForestChange event.
type ChangeKind int

const (
	LabelAdded ChangeKind = iota
	LabelRemoved
	CIDSetChanged
)

// ForestChange is one label's movement between two forest snapshots —
// the event shape the merge strategy consumes (spec.md section 4.6).
type ForestChange struct {
	Kind     ChangeKind
	Label    string
	Previous CIDSet
	Current  CIDSet
}

// Diff lifts hamt.Diff into ForestChange events.
func Diff(ctx context.Context, store hamt.Store, salt []byte, a, b *Forest) ([]ForestChange, error) {
	changes, err := hamt.Diff(ctx, salt, store, a.Root.Root, b.Root.Root, func(x, y CIDSet) bool { return x.Equal(y) })
	if err != nil {
		return nil, err
	}

	out := make([]ForestChange, len(changes))
	for i, c := range changes {
		fc := ForestChange{Label: c.Key, Previous: c.Previous, Current: c.Current}
		switch c.Type {
		case hamt.Add:
			fc.Kind = LabelAdded
		case hamt.Remove:
			fc.Kind = LabelRemoved
		case hamt.Modify:
			fc.Kind = CIDSetChanged
		}
		out[i] = fc
	}
	return out, nil
}

// Merge unions both forests' CIDSets for every label present in
// either, returning a new forest. Concurrent writers to the same
// label end up with both CIDs present rather than one clobbering the
// other (spec.md section 5, "Ordering guarantees").
func Merge(ctx context.Context, store hamt.Store, a, b *Forest) (*Forest, error) {
	if a.Setup.N.Cmp(b.Setup.N) != 0 || a.Setup.G.Cmp(b.Setup.G) != 0 {
		return nil, fmt.Errorf("forest merge: setups differ")
	}

	merged := New(a.Setup, a.salt)
	root := a.Root.Root

	changes, err := hamt.Diff(ctx, a.salt, store, a.Root.Root, b.Root.Root, func(x, y CIDSet) bool { return x.Equal(y) })
	if err != nil {
		return nil, err
	}

	for _, c := range changes {
		switch c.Type {
		case hamt.Add:
			root, err = root.Set(ctx, a.salt, store, c.Key, c.Current)
		case hamt.Modify:
			root, err = root.Set(ctx, a.salt, store, c.Key, Union(c.Previous, c.Current))
		case hamt.Remove:
			// present only in a: already carried by starting from a.Root.
		}
		if err != nil {
			return nil, err
		}
	}

	merged.Root.Root = root
	log.Debugw("Forest.Merge", "changes", len(changes))
	return merged, nil
}
