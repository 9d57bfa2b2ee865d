// Package base holds the ambient types shared by every WNFS package:
// node kinds, the WNFS version stamp, filesystem metadata, the block
// size limit, and the canonical DAG-CBOR codec constants.
package base

import (
	"bytes"
	"time"

	"github.com/Masterminds/semver/v3"
	cbor "github.com/fxamacker/cbor/v2"
	mh "github.com/multiformats/go-multihash"
)

// NodeType discriminates the kinds of node persisted in WNFS blocks.
type NodeType string

const (
	NTFile     NodeType = "wnfs/priv/file"
	NTDir      NodeType = "wnfs/priv/dir"
	NTDataFile NodeType = "wnfs/priv/datafile"
)

// DefaultMultihashType is the multihash function used to address every
// WNFS block: SHA2-256, multihash code 0x12.
const DefaultMultihashType = mh.SHA2_256

// Codec enumerates the IPLD codecs the core ever writes blocks under.
type Codec uint64

const (
	CodecDagCbor Codec = 0x71
	CodecRaw     Codec = 0x55
)

// MaxBlockSize is the largest block the blockstore will accept, 256 KiB.
const MaxBlockSize = 1 << 18

// LatestVersion is the WNFS version embedded in every persisted
// structural root. Readers reject an incompatible major version.
var LatestVersion = semver.MustParse("0.2.0")

// CompatibleVersion reports whether a version read off a block can be
// read by this implementation: same major version.
func CompatibleVersion(v *semver.Version) bool {
	return v != nil && v.Major() == LatestVersion.Major()
}

// Metadata carries POSIX-ish file attributes persisted alongside every
// private node's header.
type Metadata struct {
	Mode  uint32
	Ctime int64
	Mtime int64
}

func NewMetadata(now time.Time) Metadata {
	sec := now.Unix()
	return Metadata{Mode: 0644, Ctime: sec, Mtime: sec}
}

// Timestamp returns the current time; factored out so tests can observe
// or (in the future) stub it.
func Timestamp() time.Time { return time.Now() }

// EncodeCBOR canonically encodes v using the deterministic core CBOR
// options (sorted map keys, shortest-form integers), matching the
// canonical DAG-CBOR requirement of spec.md section 6.
func EncodeCBOR(v interface{}) (*bytes.Buffer, error) {
	opts := cbor.CanonicalEncOptions()
	em, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	data, err := em.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewBuffer(data), nil
}

func DecodeCBOR(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}
