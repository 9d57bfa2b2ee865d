package private

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"

	"github.com/wnfs-wg/go-wnfs/base"
	"github.com/wnfs-wg/go-wnfs/blockstore"
	"github.com/wnfs-wg/go-wnfs/forest"
	"github.com/wnfs-wg/go-wnfs/nameaccumulator"
)

// Directory is a PrivateDirectory: a header plus an ordered mapping of
// child name to that child's (encrypted) Ref.
type Directory struct {
	Header   Header
	Metadata base.Metadata
	Previous []PreviousLink
	Entries  map[string]Serializable

	headerCID cid.Cid
}

// NewDirectory creates a brand-new, unstored directory as a child of
// parentName.
func NewDirectory(parentName nameaccumulator.Name) (*Directory, error) {
	h, err := NewHeader(parentName)
	if err != nil {
		return nil, err
	}
	return &Directory{
		Header:   h,
		Metadata: base.NewMetadata(base.Timestamp()),
		Entries:  map[string]Serializable{},
	}, nil
}

// SetChild records childRef, encrypted under d's snapshot key, as the
// entry for name. Callers store the child first (obtaining its Ref)
// and then call SetChild before storing d itself — mirroring the
// copy-on-write path of spec.md section 2's write data flow.
func (d *Directory) SetChild(name string, childRef Ref) error {
	sealed, err := childRef.Encrypt(d.Header.SnapshotKey())
	if err != nil {
		return err
	}
	d.Entries[name] = sealed
	return nil
}

// RemoveChild drops name from d's entries, reporting whether it was
// present.
func (d *Directory) RemoveChild(name string) bool {
	if _, ok := d.Entries[name]; !ok {
		return false
	}
	delete(d.Entries, name)
	return true
}

// Store persists d, advancing its ratchet when it already had a
// previous stored revision, and returns the Ref for the new revision.
func (d *Directory) Store(ctx context.Context, setup nameaccumulator.Setup, fo *forest.Forest, store blockstore.BlockStore) (Ref, error) {
	if d.headerCID != cid.Undef {
		oldKey := d.Header.SnapshotKey()
		d.Previous = append(d.Previous, PreviousLink{Skip: nextSkip(len(d.Previous)), CID: d.headerCID})
		d.Header = d.Header.Clone()
		d.Header.AdvanceRevision()
		if err := d.reencryptEntries(oldKey); err != nil {
			return Ref{}, err
		}
	}

	headerCID, err := putHeader(ctx, store, setup, d.Header)
	if err != nil {
		return Ref{}, fmt.Errorf("storing directory header: %w", err)
	}
	d.headerCID = headerCID

	dc := directoryContent{
		Type:      base.NTDir,
		Version:   base.LatestVersion.String(),
		HeaderCID: headerCID,
		Previous:  d.Previous,
		Metadata:  d.Metadata,
		Entries:   d.sortedEntries(),
	}
	plaintext, err := cbor.Marshal(dc)
	if err != nil {
		return Ref{}, err
	}

	sealed, err := seal(d.Header.SnapshotKey(), plaintext)
	if err != nil {
		return Ref{}, err
	}

	contentCID, err := store.PutBlock(ctx, sealed, base.CodecRaw)
	if err != nil {
		return Ref{}, fmt.Errorf("storing directory content: %w", err)
	}

	ref, err := RefFromHeader(setup, d.Header, contentCID)
	if err != nil {
		return Ref{}, err
	}

	revName, err := d.Header.RevisionName()
	if err != nil {
		return Ref{}, err
	}
	if err := fo.Put(ctx, store, revName, contentCID); err != nil {
		return Ref{}, fmt.Errorf("inserting directory revision into forest: %w", err)
	}

	log.Debugw("Directory.Store", "contentCid", contentCID, "headerCid", headerCID, "entries", len(d.Entries))
	return ref, nil
}

// reencryptEntries re-seals every child Ref's temporal key under d's
// new snapshot key, given the snapshot key entries were sealed under
// before this revision's advance.
func (d *Directory) reencryptEntries(oldKey [32]byte) error {
	for name, s := range d.Entries {
		ref, err := s.Decrypt(oldKey)
		if err != nil {
			return fmt.Errorf("re-encrypting entry %q: %w", name, err)
		}
		resealed, err := ref.Encrypt(d.Header.SnapshotKey())
		if err != nil {
			return err
		}
		d.Entries[name] = resealed
	}
	return nil
}

func (d *Directory) sortedEntries() []namedRef {
	names := make([]string, 0, len(d.Entries))
	for name := range d.Entries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]namedRef, len(names))
	for i, name := range names {
		out[i] = namedRef{Name: name, Ref: d.Entries[name]}
	}
	return out
}

// LoadDirectory mirrors LoadFile's candidate-resolution loop for
// directories.
func LoadDirectory(ctx context.Context, setup nameaccumulator.Setup, name nameaccumulator.Name, ref Ref, fo *forest.Forest, store blockstore.BlockStore) ([]*Directory, error) {
	candidates, err := fo.GetByLabelHash(ctx, store, ref.RevisionNameHash)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: %w", ref.ContentCID, base.ErrCIDNotFound)
	}

	var expectedLabel []byte
	if !name.IsZero() {
		expectedLabel = name.Flatten(setup).Bytes()
	}

	var matches []*Directory
	for _, contentCID := range candidates {
		d, err := tryDecodeDirectory(ctx, setup, name, expectedLabel, ref, contentCID, store)
		if err != nil {
			if errors.Is(err, base.ErrCIDNotFound) {
				return nil, err
			}
			log.Debugw("LoadDirectory candidate rejected", "cid", contentCID, "err", err)
			continue
		}
		matches = append(matches, d)
	}

	log.Debugw("LoadDirectory", "revisionNameHash", fmt.Sprintf("%x", ref.RevisionNameHash), "candidates", len(candidates), "matches", len(matches))
	if len(matches) == 0 {
		return nil, ErrNoCandidateMatched
	}
	return matches, nil
}

func tryDecodeDirectory(ctx context.Context, setup nameaccumulator.Setup, name nameaccumulator.Name, expectedLabel []byte, ref Ref, contentCID cid.Cid, store blockstore.BlockStore) (*Directory, error) {
	sealed, err := store.GetBlock(ctx, contentCID)
	if err != nil {
		return nil, err
	}

	plaintext, err := open(ref.SnapshotKey, sealed)
	if err != nil {
		return nil, err
	}

	var dc directoryContent
	if err := cbor.Unmarshal(plaintext, &dc); err != nil {
		return nil, fmt.Errorf("%w: %v", base.ErrUndecodableCBOR, err)
	}

	h, err := getHeader(ctx, store, setup, name, dc.HeaderCID)
	if err != nil {
		return nil, err
	}

	if expectedLabel != nil && string(h.Name.Flatten(setup).Bytes()) != string(expectedLabel) {
		return nil, base.ErrHeaderCIDMismatch
	}

	entries := make(map[string]Serializable, len(dc.Entries))
	for _, nr := range dc.Entries {
		entries[nr.Name] = nr.Ref
	}

	return &Directory{
		Header:    h,
		Metadata:  dc.Metadata,
		Previous:  dc.Previous,
		Entries:   entries,
		headerCID: dc.HeaderCID,
	}, nil
}
