package hamt

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"

	"github.com/wnfs-wg/go-wnfs/base"
	"github.com/wnfs-wg/go-wnfs/link"
)

// StructureTag is the constant "structure" discriminant a serialized
// root Hamt carries, distinguishing it from other PrivateForest-shaped
// values that might share a block codec.
const StructureTag = "hamt"

var cborMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// kvPair is the wire shape of one Values entry: a 2-element CBOR array,
// not a map, to keep the encoding compact and key order explicit.
type kvPair[V any] struct {
	_ struct{} `cbor:",toarray"`
	K string
	V V
}

// MarshalCBOR encodes a Pointer as wnfs-hamt's untagged union: a CID
// byte string for a link, or an array of [key, value] pairs for a
// Values bucket.
func (p Pointer[V]) MarshalCBOR() ([]byte, error) {
	if p.IsLink() {
		id, err := p.Child.RequireCID()
		if err != nil {
			return nil, err
		}
		return cborMode.Marshal(id.Bytes())
	}
	pairs := make([]kvPair[V], len(p.Values))
	for i, kv := range p.Values {
		pairs[i] = kvPair[V]{K: kv.Key, V: kv.Value}
	}
	return cborMode.Marshal(pairs)
}

// UnmarshalCBOR decodes a Pointer, discriminating link-vs-values by the
// CBOR major type of the top-level item (byte string vs array).
func (p *Pointer[V]) UnmarshalCBOR(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("hamt: empty pointer encoding")
	}
	major := data[0] >> 5
	if major == 2 { // byte string: a CID
		var raw []byte
		if err := cbor.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decoding pointer link bytes: %w", err)
		}
		id, err := cid.Cast(raw)
		if err != nil {
			return fmt.Errorf("decoding pointer link cid: %w", err)
		}
		p.Child = link.FromCID[*Node[V]](id)
		p.Values = nil
		return nil
	}

	var pairs []kvPair[V]
	if err := cbor.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("decoding pointer values: %w", err)
	}
	p.Values = make([]KV[V], len(pairs))
	for i, kv := range pairs {
		p.Values[i] = KV[V]{Key: kv.K, Value: kv.V}
	}
	p.Child = nil
	return nil
}

// nodeSerializable is the wire shape of a Node: [bitmap(2 bytes),
// [Pointer, …]], matching wnfs-hamt/src/serializable.rs's
// NodeSerializable.
type nodeSerializable[V any] struct {
	_        struct{} `cbor:",toarray"`
	Bitmap   [2]byte
	Pointers []Pointer[V]
}

func (n Node[V]) MarshalCBOR() ([]byte, error) {
	ns := nodeSerializable[V]{Pointers: make([]Pointer[V], len(n.Pointers))}
	binary.BigEndian.PutUint16(ns.Bitmap[:], n.Bitmap)
	for i, p := range n.Pointers {
		ns.Pointers[i] = *p
	}
	return cborMode.Marshal(ns)
}

func (n *Node[V]) UnmarshalCBOR(data []byte) error {
	var ns nodeSerializable[V]
	if err := cbor.Unmarshal(data, &ns); err != nil {
		return fmt.Errorf("decoding hamt node: %w", err)
	}
	n.Bitmap = binary.BigEndian.Uint16(ns.Bitmap[:])
	n.Pointers = make([]*Pointer[V], len(ns.Pointers))
	for i := range ns.Pointers {
		p := ns.Pointers[i]
		n.Pointers[i] = &p
	}
	return nil
}

// Hamt is the versioned, named root wrapper a PrivateForest stores:
// HamtSerializable{root, version, structure} in wnfs-hamt terms.
type Hamt[V any] struct {
	Root      *Node[V]
	Version   *semver.Version
	Structure string
}

func NewHamt[V any]() *Hamt[V] {
	return &Hamt[V]{Root: NewNode[V](), Version: base.LatestVersion, Structure: StructureTag}
}

// Write flushes every dirty node reachable from h.Root (persisting each
// bottom-up, same as Node.Write), then stores the versioned wrapper
// itself as one block and returns its CID — the block a PrivateForest's
// root CID actually refers to.
func (h *Hamt[V]) Write(ctx context.Context, store Store) (cid.Cid, error) {
	if _, err := h.Root.Write(ctx, store); err != nil {
		return cid.Undef, err
	}
	data, err := h.MarshalCBOR()
	if err != nil {
		return cid.Undef, err
	}
	return store.PutBlock(ctx, data, base.CodecDagCbor)
}

type hamtSerializable struct {
	Root      cbor.RawMessage `cbor:"root"`
	Version   string          `cbor:"version"`
	Structure string          `cbor:"structure"`
}

func (h Hamt[V]) MarshalCBOR() ([]byte, error) {
	rootBytes, err := h.Root.MarshalCBOR()
	if err != nil {
		return nil, err
	}
	return cborMode.Marshal(hamtSerializable{
		Root:      rootBytes,
		Version:   h.Version.String(),
		Structure: h.Structure,
	})
}

func (h *Hamt[V]) UnmarshalCBOR(data []byte) error {
	var hs hamtSerializable
	if err := cbor.Unmarshal(data, &hs); err != nil {
		return fmt.Errorf("decoding hamt root: %w", err)
	}
	v, err := semver.NewVersion(hs.Version)
	if err != nil {
		return fmt.Errorf("decoding hamt version %q: %w", hs.Version, err)
	}
	if !base.CompatibleVersion(v) {
		return base.ErrIncompatibleVersion
	}
	root := &Node[V]{}
	if err := root.UnmarshalCBOR(hs.Root); err != nil {
		return err
	}
	h.Root = root
	h.Version = v
	h.Structure = hs.Structure
	return nil
}
