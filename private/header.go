package private

import (
	"golang.org/x/crypto/hkdf"

	"crypto/sha256"

	"github.com/wnfs-wg/go-wnfs/nameaccumulator"
	"github.com/wnfs-wg/go-wnfs/ratchet"
)

// revisionSegmentDomain domain-separates the digest fed into the name
// accumulator to produce a node's per-revision name, keeping it
// distinct from any other use of SegmentFromDigest.
const revisionSegmentDomain = "wnfs/revision"

// headerKeyDomain labels the HKDF derivation of a header block's
// encryption key from the node's flattened name accumulator.
const headerKeyDomain = "wnfs/header"

// Header is the PrivateNodeHeader of spec.md section 3:
// (inumber, ratchet, name). It is persisted as its own CBOR block,
// encrypted under a key derived from the name accumulator rather than
// the ratchet, so an adversary who learns a ratchet state cannot
// enumerate the node's ancestors.
type Header struct {
	INumber nameaccumulator.NameSegment
	Ratchet *ratchet.Spiral
	Name    nameaccumulator.Name
}

// NewHeader mints a fresh header as a child of parentName: a random
// inumber segment folded into parentName, plus a freshly seeded
// ratchet.
func NewHeader(parentName nameaccumulator.Name) (Header, error) {
	inumber, err := nameaccumulator.RandomSegment()
	if err != nil {
		return Header{}, err
	}
	r, err := ratchet.NewSpiral()
	if err != nil {
		return Header{}, err
	}
	return Header{
		INumber: inumber,
		Ratchet: r,
		Name:    parentName.Add(inumber),
	}, nil
}

// HeaderKey derives the header block's encryption key from the node's
// flattened name accumulator.
func (h Header) HeaderKey(setup nameaccumulator.Setup) [32]byte {
	flattened := h.Name.Flatten(setup)
	return hkdfKey(headerKeyDomain, flattened.Bytes())
}

// RevisionName folds the ratchet's current "revision" HKDF output into
// the node's base name, producing a name accumulator unique to this
// exact revision — the name the forest indexes content under.
func (h Header) RevisionName() (nameaccumulator.Name, error) {
	revKey := h.Ratchet.RevisionKey()
	seg, err := nameaccumulator.SegmentFromDigest(revisionSegmentDomain, revKey[:])
	if err != nil {
		return nameaccumulator.Name{}, err
	}
	return h.Name.Add(seg), nil
}

// TemporalKey is this revision's content-decryption root key.
func (h Header) TemporalKey() [32]byte { return h.Ratchet.Key() }

// SnapshotKey is the actual AES key content is sealed under, one HKDF
// step below the temporal key.
func (h Header) SnapshotKey() [32]byte {
	return ratchet.SnapshotKeyFromTemporal(h.TemporalKey())
}

// AdvanceRevision mutates the header's ratchet forward by one step,
// preparing it for its next stored revision. The caller owns
// copy-on-write: Header is always cloned before this is called on a
// mutation path.
func (h *Header) AdvanceRevision() { h.Ratchet.Advance() }

// Clone deep-copies the header so mutation never touches a
// previously-stored revision's ratchet in place.
func (h Header) Clone() Header {
	r := *h.Ratchet
	return Header{INumber: h.INumber, Ratchet: &r, Name: h.Name}
}

func hkdfKey(label string, ikm []byte) [32]byte {
	r := hkdf.New(sha256.New, ikm, nil, []byte(label))
	var out [32]byte
	if _, err := r.Read(out[:]); err != nil {
		panic(err)
	}
	return out
}
