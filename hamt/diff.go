package hamt

import "context"

// ChangeType classifies one key's movement between two HAMT snapshots,
// matching wnfs-hamt/src/diff.rs's Add/Remove/Modify.
type ChangeType int

const (
	Add ChangeType = iota
	Remove
	Modify
)

func (c ChangeType) String() string {
	switch c {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Modify:
		return "modify"
	default:
		return "unknown"
	}
}

// Change is one entry in a Diff result.
type Change[V any] struct {
	Type     ChangeType
	Key      string
	Previous V
	Current  V
}

// Diff walks two root nodes in lockstep, bit by bit, and reports every
// key whose value differs between a and b. Sibling Link pointers that
// resolve to the same CID are pruned without being fetched or
// recursed into — the structural-sharing payoff spec.md section 4.5
// calls out.
func Diff[V any](ctx context.Context, salt []byte, store Store, a, b *Node[V], equal func(x, y V) bool) ([]Change[V], error) {
	return diffNodes(ctx, salt, store, a, b, equal)
}

func diffNodes[V any](ctx context.Context, salt []byte, store Store, a, b *Node[V], equal func(x, y V) bool) ([]Change[V], error) {
	var changes []Change[V]

	for bit := 0; bit < 16; bit++ {
		aHas, bHas := a.hasBit(bit), b.hasBit(bit)
		if !aHas && !bHas {
			continue
		}

		var ap, bp *Pointer[V]
		if aHas {
			ap = a.Pointers[a.indexForBit(bit)]
		}
		if bHas {
			bp = b.Pointers[b.indexForBit(bit)]
		}

		switch {
		case aHas && !bHas:
			entries := map[string]V{}
			if err := collectPointer(ctx, salt, store, ap, entries); err != nil {
				return nil, err
			}
			changes = append(changes, diffEntries(entries, nil)...)

		case !aHas && bHas:
			entries := map[string]V{}
			if err := collectPointer(ctx, salt, store, bp, entries); err != nil {
				return nil, err
			}
			changes = append(changes, diffEntries(nil, entries)...)

		case ap.IsLink() && bp.IsLink():
			aCID, aOK := ap.Child.CID()
			bCID, bOK := bp.Child.CID()
			if aOK && bOK && aCID.Equals(bCID) {
				continue // identical subtree: prune
			}
			childA, err := resolveChild(ctx, ap, salt, store)
			if err != nil {
				return nil, err
			}
			childB, err := resolveChild(ctx, bp, salt, store)
			if err != nil {
				return nil, err
			}
			sub, err := diffNodes(ctx, salt, store, childA, childB, equal)
			if err != nil {
				return nil, err
			}
			changes = append(changes, sub...)

		default:
			entriesA := map[string]V{}
			entriesB := map[string]V{}
			if err := collectPointer(ctx, salt, store, ap, entriesA); err != nil {
				return nil, err
			}
			if err := collectPointer(ctx, salt, store, bp, entriesB); err != nil {
				return nil, err
			}
			changes = append(changes, diffEntriesEqual(entriesA, entriesB, equal)...)
		}
	}

	return changes, nil
}

func collectPointer[V any](ctx context.Context, salt []byte, store Store, p *Pointer[V], into map[string]V) error {
	if p.IsLink() {
		child, err := resolveChild(ctx, p, salt, store)
		if err != nil {
			return err
		}
		return collect(ctx, salt, store, child, into)
	}
	for _, kv := range p.Values {
		into[kv.Key] = kv.Value
	}
	return nil
}

func collect[V any](ctx context.Context, salt []byte, store Store, n *Node[V], into map[string]V) error {
	for _, p := range n.Pointers {
		if err := collectPointer(ctx, salt, store, p, into); err != nil {
			return err
		}
	}
	return nil
}

// diffEntries reports pure Add/Remove between two key sets with no
// value comparison available (used when one side is entirely absent).
func diffEntries[V any](a, b map[string]V) []Change[V] {
	var changes []Change[V]
	for k, v := range a {
		changes = append(changes, Change[V]{Type: Remove, Key: k, Previous: v})
	}
	for k, v := range b {
		changes = append(changes, Change[V]{Type: Add, Key: k, Current: v})
	}
	return changes
}

func diffEntriesEqual[V any](a, b map[string]V, equal func(x, y V) bool) []Change[V] {
	var changes []Change[V]
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			changes = append(changes, Change[V]{Type: Remove, Key: k, Previous: av})
			continue
		}
		if !equal(av, bv) {
			changes = append(changes, Change[V]{Type: Modify, Key: k, Previous: av, Current: bv})
		}
	}
	for k, bv := range b {
		if _, ok := a[k]; !ok {
			changes = append(changes, Change[V]{Type: Add, Key: k, Current: bv})
		}
	}
	return changes
}
