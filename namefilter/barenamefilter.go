package namefilter

// BareNamefilter is a namefilter that has a node's inumber folded in but
// not yet its current ratchet key — the legacy analogue of the
// accumulator scheme's "pending Name before Flatten". Child nodes derive
// their bare filter from their parent's, giving WNFS's namefilter a
// hierarchical relationship without ever storing back-links.
type BareNamefilter Filter

// IdentityBareNamefilter is the root bare namefilter new top-level trees
// start from.
func IdentityBareNamefilter() BareNamefilter { return BareNamefilter(Empty()) }

// NewBareNamefilter derives a child's bare filter from its parent's by
// folding in the child's inumber.
func NewBareNamefilter(parent BareNamefilter, inumber [32]byte) BareNamefilter {
	f := Filter(parent)
	f.Add(inumber[:])
	return BareNamefilter(f)
}

// AddKey folds a ratchet-derived key into a bare namefilter, producing
// the saturated filter whose bytes are hashed to form a revision's Name.
func AddKey(bnf BareNamefilter, key [32]byte) (Filter, error) {
	f := Filter(bnf)
	f.Add(key[:])
	if err := f.Saturate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}
