package private

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"

	"github.com/wnfs-wg/go-wnfs/base"
	"github.com/wnfs-wg/go-wnfs/blockstore"
	"github.com/wnfs-wg/go-wnfs/nameaccumulator"
	"github.com/wnfs-wg/go-wnfs/ratchet"
)

// headerInfo is the plaintext sealed inside a header block: everything
// needed to reconstruct a Header (minus the name accumulator, which is
// implied by the path used to reach this header and re-derived by the
// caller rather than stored, keeping the block smaller).
type headerInfo struct {
	_       struct{} `cbor:",toarray"`
	INumber []byte
	Ratchet string
}

func (h Header) encode() headerInfo {
	return headerInfo{INumber: h.INumber.Bytes(), Ratchet: h.Ratchet.Encode()}
}

// putHeader encrypts and stores a header block, returning its CID.
// Header blocks are content-addressed like any other, but their key is
// derived from the accumulator rather than the ratchet, so the CID
// alone never leaks revision history.
func putHeader(ctx context.Context, store blockstore.BlockStore, setup nameaccumulator.Setup, h Header) (cid.Cid, error) {
	plaintext, err := cbor.Marshal(h.encode())
	if err != nil {
		return cid.Undef, err
	}
	sealed, err := seal(h.HeaderKey(setup), plaintext)
	if err != nil {
		return cid.Undef, err
	}
	return store.PutBlock(ctx, sealed, base.CodecRaw)
}

// getHeader fetches and decrypts a header block. name is supplied by
// the caller (known from the path or a prior PrivateRef), since the
// header block itself doesn't carry the accumulator state; the inumber
// and ratchet are read from the block.
func getHeader(ctx context.Context, store blockstore.BlockStore, setup nameaccumulator.Setup, name nameaccumulator.Name, id cid.Cid) (Header, error) {
	if name.IsZero() {
		return Header{}, fmt.Errorf("%w: no name to derive the header key from", ErrDecryptionFailed)
	}

	sealed, err := store.GetBlock(ctx, id)
	if err != nil {
		return Header{}, fmt.Errorf("fetching header block %s: %w", id, err)
	}

	probe := Header{Name: name}
	plaintext, err := open(probe.HeaderKey(setup), sealed)
	if err != nil {
		return Header{}, err
	}

	var hi headerInfo
	if err := cbor.Unmarshal(plaintext, &hi); err != nil {
		return Header{}, fmt.Errorf("%w: %v", base.ErrUndecodableCBOR, err)
	}

	r, err := ratchet.Decode(hi.Ratchet)
	if err != nil {
		return Header{}, err
	}

	return Header{
		INumber: nameaccumulator.SegmentFromBytes(hi.INumber),
		Ratchet: r,
		Name:    name,
	}, nil
}
