package private

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"

	"github.com/wnfs-wg/go-wnfs/base"
	"github.com/wnfs-wg/go-wnfs/blockstore"
	"github.com/wnfs-wg/go-wnfs/forest"
	"github.com/wnfs-wg/go-wnfs/nameaccumulator"
)

// Node is the PrivateNode union: exactly one of File or Directory is
// non-nil.
type Node struct {
	File      *File
	Directory *Directory
}

// LoadNode resolves ref without knowing in advance whether it names a
// file or a directory: it peeks the content block's type discriminant
// before fully decoding, then dispatches to LoadFile or LoadDirectory.
// Every returned Node shares that same File/Directory duality, one per
// ambiguous candidate CID.
func LoadNode(ctx context.Context, setup nameaccumulator.Setup, name nameaccumulator.Name, ref Ref, fo *forest.Forest, store blockstore.BlockStore) ([]Node, error) {
	candidates, err := fo.GetByLabelHash(ctx, store, ref.RevisionNameHash)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: %w", ref.ContentCID, base.ErrCIDNotFound)
	}

	nt, err := peekContentType(ctx, ref, candidates[0], store)
	if err != nil {
		return nil, err
	}
	log.Debugw("LoadNode", "revisionNameHash", fmt.Sprintf("%x", ref.RevisionNameHash), "candidates", len(candidates), "type", nt)

	switch nt {
	case base.NTFile:
		files, err := LoadFile(ctx, setup, name, ref, fo, store)
		if err != nil {
			return nil, err
		}
		out := make([]Node, len(files))
		for i, f := range files {
			out[i] = Node{File: f}
		}
		return out, nil
	case base.NTDir:
		dirs, err := LoadDirectory(ctx, setup, name, ref, fo, store)
		if err != nil {
			return nil, err
		}
		out := make([]Node, len(dirs))
		for i, d := range dirs {
			out[i] = Node{Directory: d}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unrecognized private node type %q", nt)
	}
}

// peekContentType decrypts one candidate's content block and reads
// just its leading Type field.
func peekContentType(ctx context.Context, ref Ref, contentCID cid.Cid, store blockstore.BlockStore) (base.NodeType, error) {
	sealed, err := store.GetBlock(ctx, contentCID)
	if err != nil {
		return "", err
	}

	plaintext, err := open(ref.SnapshotKey, sealed)
	if err != nil {
		return "", err
	}

	var items []cbor.RawMessage
	if err := cbor.Unmarshal(plaintext, &items); err != nil {
		return "", fmt.Errorf("%w: %v", base.ErrUndecodableCBOR, err)
	}
	if len(items) == 0 {
		return "", base.ErrUndecodableCBOR
	}

	var nt base.NodeType
	if err := cbor.Unmarshal(items[0], &nt); err != nil {
		return "", fmt.Errorf("%w: %v", base.ErrUndecodableCBOR, err)
	}
	return nt, nil
}
