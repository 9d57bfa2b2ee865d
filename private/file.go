package private

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	golog "github.com/ipfs/go-log/v2"

	"github.com/wnfs-wg/go-wnfs/base"
	"github.com/wnfs-wg/go-wnfs/blockstore"
	"github.com/wnfs-wg/go-wnfs/forest"
	"github.com/wnfs-wg/go-wnfs/nameaccumulator"
)

var log = golog.Logger("wnfs")

// File is a PrivateFile: a header plus inline content bytes (no
// UnixFS-style chunking — out of scope per spec.md section 1).
type File struct {
	Header   Header
	Metadata base.Metadata
	Previous []PreviousLink
	Content  []byte

	headerCID cid.Cid // set once Stored
}

// NewFile creates a brand-new, unstored file as a child of parentName.
func NewFile(parentName nameaccumulator.Name, content []byte) (*File, error) {
	h, err := NewHeader(parentName)
	if err != nil {
		return nil, err
	}
	return &File{
		Header:   h,
		Metadata: base.NewMetadata(base.Timestamp()),
		Content:  content,
	}, nil
}

// Store persists f — Detached or Stored — advancing its ratchet
// exactly when it already had a previous stored revision, per
// spec.md section 4.4's state machine, and returns the Ref for the
// newly stored revision.
func (f *File) Store(ctx context.Context, setup nameaccumulator.Setup, fo *forest.Forest, store blockstore.BlockStore) (Ref, error) {
	if f.headerCID != cid.Undef {
		f.Previous = append(f.Previous, PreviousLink{Skip: nextSkip(len(f.Previous)), CID: f.headerCID})
		f.Header = f.Header.Clone()
		f.Header.AdvanceRevision()
	}

	headerCID, err := putHeader(ctx, store, setup, f.Header)
	if err != nil {
		return Ref{}, fmt.Errorf("storing file header: %w", err)
	}
	f.headerCID = headerCID

	fc := fileContent{
		Type:      base.NTFile,
		Version:   base.LatestVersion.String(),
		HeaderCID: headerCID,
		Previous:  f.Previous,
		Metadata:  f.Metadata,
		Content:   f.Content,
	}
	plaintext, err := cbor.Marshal(fc)
	if err != nil {
		return Ref{}, err
	}

	sealed, err := seal(f.Header.SnapshotKey(), plaintext)
	if err != nil {
		return Ref{}, err
	}

	contentCID, err := store.PutBlock(ctx, sealed, base.CodecRaw)
	if err != nil {
		return Ref{}, fmt.Errorf("storing file content: %w", err)
	}

	ref, err := RefFromHeader(setup, f.Header, contentCID)
	if err != nil {
		return Ref{}, err
	}

	revName, err := f.Header.RevisionName()
	if err != nil {
		return Ref{}, err
	}
	if err := fo.Put(ctx, store, revName, contentCID); err != nil {
		return Ref{}, fmt.Errorf("inserting file revision into forest: %w", err)
	}

	log.Debugw("File.Store", "contentCid", contentCID, "headerCid", headerCID, "size", len(f.Content))
	return ref, nil
}

// LoadFile looks ref's revision label up in the forest, decrypts every
// candidate CID found there with ref.SnapshotKey, and — when name is
// known — verifies each candidate's embedded header actually belongs
// to it. The header key is itself derived from name, so a load with
// the zero Name (nameaccumulator.Name{}) decrypts no candidate's header
// and fails with ErrNoCandidateMatched. A CIDNotFound is fatal; a decryption or name-mismatch failure on one
// candidate is not — the remaining candidates are still tried (spec.md
// section 4.4's failure semantics). The result may hold more than one
// File when concurrent writers raced to the same revision label.
func LoadFile(ctx context.Context, setup nameaccumulator.Setup, name nameaccumulator.Name, ref Ref, fo *forest.Forest, store blockstore.BlockStore) ([]*File, error) {
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

	var matches []*File
	for _, contentCID := range candidates {
		f, err := tryDecodeFile(ctx, setup, name, expectedLabel, ref, contentCID, store)
		if err != nil {
			if errors.Is(err, base.ErrCIDNotFound) {
				return nil, err
			}
			log.Debugw("LoadFile candidate rejected", "cid", contentCID, "err", err)
			continue // non-fatal: try the next candidate
		}
		matches = append(matches, f)
	}

	log.Debugw("LoadFile", "revisionNameHash", fmt.Sprintf("%x", ref.RevisionNameHash), "candidates", len(candidates), "matches", len(matches))
	if len(matches) == 0 {
		return nil, ErrNoCandidateMatched
	}
	return matches, nil
}

func tryDecodeFile(ctx context.Context, setup nameaccumulator.Setup, name nameaccumulator.Name, expectedLabel []byte, ref Ref, contentCID cid.Cid, store blockstore.BlockStore) (*File, error) {
	sealed, err := store.GetBlock(ctx, contentCID)
	if err != nil {
		return nil, err
	}

	plaintext, err := open(ref.SnapshotKey, sealed)
	if err != nil {
		return nil, err
	}

	var fc fileContent
	if err := cbor.Unmarshal(plaintext, &fc); err != nil {
		return nil, fmt.Errorf("%w: %v", base.ErrUndecodableCBOR, err)
	}

	h, err := getHeader(ctx, store, setup, name, fc.HeaderCID)
	if err != nil {
		return nil, err
	}

	if expectedLabel != nil && string(h.Name.Flatten(setup).Bytes()) != string(expectedLabel) {
		return nil, base.ErrHeaderCIDMismatch
	}

	return &File{
		Header:    h,
		Metadata:  fc.Metadata,
		Previous:  fc.Previous,
		Content:   fc.Content,
		headerCID: fc.HeaderCID,
	}, nil
}
