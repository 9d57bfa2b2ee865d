package forest

import (
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
)

var cborMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// CIDSet is a canonically-sorted set of CIDs — the forest HAMT's value
// type, serialized as a plain sorted array so union depends only on
// content (spec.md section 4.6).
type CIDSet []cid.Cid

// Union returns the sorted union of a and b, deduplicating by CID
// string.
func Union(a, b CIDSet) CIDSet {
	seen := make(map[string]cid.Cid, len(a)+len(b))
	for _, c := range a {
		seen[c.KeyString()] = c
	}
	for _, c := range b {
		seen[c.KeyString()] = c
	}
	out := make(CIDSet, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	sortCIDs(out)
	return out
}

func sortCIDs(cids CIDSet) {
	sort.Slice(cids, func(i, j int) bool { return cids[i].KeyString() < cids[j].KeyString() })
}

// Single builds a one-element CIDSet.
func Single(c cid.Cid) CIDSet { return CIDSet{c} }

// Equal reports whether a and b contain the same CIDs, ignoring order.
func (a CIDSet) Equal(b CIDSet) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append(CIDSet{}, a...), append(CIDSet{}, b...)
	sortCIDs(sa)
	sortCIDs(sb)
	for i := range sa {
		if !sa[i].Equals(sb[i]) {
			return false
		}
	}
	return true
}

// MarshalCBOR encodes a CIDSet as a plain array of raw CID byte
// strings — cid.Cid carries no native CBOR codec of its own, so the
// forest value type rolls its own, mirroring the untagged Pointer
// values encoding in hamt/serializable.go.
func (a CIDSet) MarshalCBOR() ([]byte, error) {
	raw := make([][]byte, len(a))
	for i, c := range a {
		raw[i] = c.Bytes()
	}
	return cborMode.Marshal(raw)
}

func (a *CIDSet) UnmarshalCBOR(data []byte) error {
	var raw [][]byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(CIDSet, len(raw))
	for i, b := range raw {
		c, err := cid.Cast(b)
		if err != nil {
			return err
		}
		out[i] = c
	}
	*a = out
	return nil
}
