package private

import (
	"github.com/ipfs/go-cid"

	"github.com/wnfs-wg/go-wnfs/forest"
	"github.com/wnfs-wg/go-wnfs/nameaccumulator"
	"github.com/wnfs-wg/go-wnfs/ratchet"
)

// Ref is a PrivateRef (spec.md section 3): everything needed to fetch
// and decrypt one revision of one node, without exposing its name or
// ratchet state to anyone who doesn't already hold this value.
//
// INumber is carried alongside the four fields spec.md's literal
// PrivateRef names, because a holder of only a Ref otherwise has no
// way to derive the node's Name (and hence its header's accumulator-
// derived decryption key) — Name is parentName.Add(INumber), and a
// parent walking its own entry map knows parentName but not a child's
// randomly-chosen inumber until it's told. INumber isn't sensitive on
// its own (it's one accumulator segment among many composing a name
// already implicitly observable via the forest label), and every Ref
// lives only inside a Serializable sealed within its parent's own
// encrypted content block, or in a caller's hands directly.
type Ref struct {
	RevisionNameHash [32]byte
	TemporalKey      [32]byte
	SnapshotKey      [32]byte
	ContentCID       cid.Cid
	INumber          nameaccumulator.NameSegment
}

// RefFromHeader builds the Ref a caller needs to later Load this exact
// revision.
func RefFromHeader(setup nameaccumulator.Setup, h Header, contentCID cid.Cid) (Ref, error) {
	revName, err := h.RevisionName()
	if err != nil {
		return Ref{}, err
	}

	var nameHash [32]byte
	copy(nameHash[:], forest.Label(setup, revName))

	return Ref{
		RevisionNameHash: nameHash,
		TemporalKey:      h.TemporalKey(),
		SnapshotKey:      h.SnapshotKey(),
		ContentCID:       contentCID,
		INumber:          h.INumber,
	}, nil
}

// ChildName computes the Name this Ref's node holds, given the Name of
// the directory that holds it — the step a tree-walker takes before
// calling LoadFile/LoadDirectory/LoadNode on a never-before-seen child.
func (r Ref) ChildName(parentName nameaccumulator.Name) nameaccumulator.Name {
	return parentName.Add(r.INumber)
}

// Serializable is PrivateRefSerializable: a Ref with its temporal key
// encrypted to a parent-derived key, suitable for embedding in a
// parent directory's entry map (spec.md section 3).
type Serializable struct {
	RevisionNameHash     [32]byte
	EncryptedTemporalKey []byte
	ContentCID           cid.Cid
	INumber              []byte
}

// Encrypt seals r's temporal key under parentKey (typically the
// parent directory's snapshot key) for storage inside the parent's
// entry map.
func (r Ref) Encrypt(parentKey [32]byte) (Serializable, error) {
	sealed, err := seal(parentKey, r.TemporalKey[:])
	if err != nil {
		return Serializable{}, err
	}
	return Serializable{
		RevisionNameHash:     r.RevisionNameHash,
		EncryptedTemporalKey: sealed,
		ContentCID:           r.ContentCID,
		INumber:              r.INumber.Bytes(),
	}, nil
}

// Decrypt recovers a full Ref from a Serializable, given the parent
// key it was encrypted under. The snapshot key is re-derived from the
// recovered temporal key rather than stored, keeping the serialized
// form one HKDF step smaller.
func (s Serializable) Decrypt(parentKey [32]byte) (Ref, error) {
	plaintext, err := open(parentKey, s.EncryptedTemporalKey)
	if err != nil {
		return Ref{}, err
	}
	var temporal [32]byte
	copy(temporal[:], plaintext)

	return Ref{
		RevisionNameHash: s.RevisionNameHash,
		TemporalKey:      temporal,
		SnapshotKey:      ratchet.SnapshotKeyFromTemporal(temporal),
		ContentCID:       s.ContentCID,
		INumber:          nameaccumulator.SegmentFromBytes(s.INumber),
	}, nil
}
