package private

import (
	"github.com/ipfs/go-cid"

	"github.com/wnfs-wg/go-wnfs/base"
)

// maxSkipDistance bounds how far back a single previous-revision entry
// claims to skip, per spec.md section 4.4's prepare_next_revision:
// "skip = min(previous.len, 63)".
const maxSkipDistance = 63

// PreviousLink is one entry of a node's previous-revision list: how
// many ratchet steps back, and the CID of that revision's (encrypted)
// header block.
type PreviousLink struct {
	Skip int
	CID  cid.Cid
}

func nextSkip(previousLen int) int {
	if previousLen > maxSkipDistance {
		return maxSkipDistance
	}
	return previousLen
}

// fileContent is the CBOR shape persisted inside a PrivateFile's
// content block — PrivateFileContentSerializable in spec.md section 3.
type fileContent struct {
	_         struct{} `cbor:",toarray"`
	Type      base.NodeType
	Version   string
	HeaderCID cid.Cid
	Previous  []PreviousLink
	Metadata  base.Metadata
	Content   []byte
}

// directoryContent is the CBOR shape persisted inside a
// PrivateDirectory's content block — PrivateDirectoryContentSerializable.
type directoryContent struct {
	_         struct{} `cbor:",toarray"`
	Type      base.NodeType
	Version   string
	HeaderCID cid.Cid
	Previous  []PreviousLink
	Metadata  base.Metadata
	Entries   []namedRef
}

// namedRef is one (childName, encryptedRef) pair — Go's cbor encoder
// doesn't canonically order map[string]V keys the way a BTreeMap does,
// so entries are kept sorted and encoded as pairs rather than a map.
type namedRef struct {
	_    struct{} `cbor:",toarray"`
	Name string
	Ref  Serializable
}
