// Package ratchet implements the skip ratchet (C3 of spec.md): a
// forward-secure key schedule with three nested chains (large/medium/
// small) that can be advanced by 1, by 256 (one medium epoch), or by
// 65536 (one large epoch), and whose Previous operation walks backward
// by at most a caller-supplied budget.
package ratchet

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrUnknownEpoch  = errors.New("previous: unknown epoch")
	ErrBudgetExceeded = errors.New("previous: budget exceeded")
)

const (
	mediumEpochSize = 256
	largeEpochSize  = mediumEpochSize * 256 // 65536
)

// Spiral is the skip ratchet state: three 32-byte chain seeds plus two
// counters, one for medium-steps within the current large epoch and one
// for small-steps since the medium seed was last re-rolled.
type Spiral struct {
	large   [32]byte
	medium  [32]byte
	// mediumCounter counts how many times medium has advanced within the
	// current large epoch (0..255).
	mediumCounter uint8
	small   [32]byte
	// smallCounter counts how many times small has advanced within the
	// current medium epoch (0..255).
	smallCounter uint8
}

// NewSpiral creates a fresh ratchet seeded from the CSPRNG.
func NewSpiral() (*Spiral, error) {
	var large [32]byte
	if _, err := rand.Read(large[:]); err != nil {
		return nil, err
	}
	medium := hashOnce("wnfs/ratchet/medium", large[:])
	small := hashOnce("wnfs/ratchet/small", medium[:])
	return &Spiral{large: large, medium: medium, small: small}, nil
}

func hashOnce(domain string, seed []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write(seed)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Advance moves the ratchet forward by exactly one step, cascading into
// the medium chain every 256 small-steps and into the large chain every
// 256 medium-steps (65536 small-steps total). Advancing is one-way: there
// is no public operation that derives a ratchet's predecessor from its
// state alone.
func (s *Spiral) Advance() {
	if s.smallCounter == 255 {
		s.advanceMedium()
		return
	}
	s.small = hashOnce("wnfs/ratchet/small", s.small[:])
	s.smallCounter++
}

func (s *Spiral) advanceMedium() {
	if s.mediumCounter == 255 {
		s.advanceLarge()
		return
	}
	s.medium = hashOnce("wnfs/ratchet/medium", s.medium[:])
	s.mediumCounter++
	s.small = hashOnce("wnfs/ratchet/small", s.medium[:])
	s.smallCounter = 0
}

func (s *Spiral) advanceLarge() {
	s.large = hashOnce("wnfs/ratchet/large", s.large[:])
	s.medium = hashOnce("wnfs/ratchet/medium", s.large[:])
	s.mediumCounter = 0
	s.small = hashOnce("wnfs/ratchet/small", s.medium[:])
	s.smallCounter = 0
}

// AdvanceBy256 advances one medium epoch at a time.
func (s *Spiral) AdvanceBy256() { s.advanceMedium() }

// AdvanceBy65536 advances one large epoch at a time.
func (s *Spiral) AdvanceBy65536() { s.advanceLarge() }

// combinedState is a stable 98-byte encoding of the full ratchet state:
// large || medium || mediumCounter || small || smallCounter. Used both
// for equality/serialization and as HKDF input material.
func (s *Spiral) combinedState() []byte {
	out := make([]byte, 0, 32+32+1+1)
	out = append(out, s.large[:]...)
	out = append(out, s.medium[:]...)
	out = append(out, s.mediumCounter)
	out = append(out, s.small[:]...)
	out = append(out, s.smallCounter)
	return out
}

// Key derives this revision's 32-byte key via HKDF over the combined
// ratchet state, labeled "temporal" per spec.md section 4.3.
func (s *Spiral) Key() [32]byte {
	return deriveKey("temporal", s.combinedState())
}

// RevisionKey derives this revision's label material via HKDF over the
// combined ratchet state, labeled "revision" per spec.md section 4.3 —
// folded into a node's name accumulator to produce a per-revision
// forest label distinct from its stable identity.
func (s *Spiral) RevisionKey() [32]byte {
	return deriveKey("revision", s.combinedState())
}

// SnapshotKeyFromTemporal derives the snapshot key from the temporal key:
// snapshot_key = H("snapshot", temporal_key).
func SnapshotKeyFromTemporal(temporal [32]byte) [32]byte {
	return deriveKey("snapshot", temporal[:])
}

func deriveKey(label string, ikm []byte) [32]byte {
	r := hkdf.New(sha256.New, ikm, nil, []byte(label))
	var out [32]byte
	if _, err := r.Read(out[:]); err != nil {
		// hkdf.Read only fails if asked for more output than the
		// expand step can produce; 32 bytes from a SHA-256 HKDF is
		// always within bounds.
		panic(err)
	}
	return out
}

// Equal reports whether two ratchets are in the same state.
func (s *Spiral) Equal(o *Spiral) bool {
	return s.large == o.large && s.medium == o.medium && s.mediumCounter == o.mediumCounter &&
		s.small == o.small && s.smallCounter == o.smallCounter
}

// Encode serializes the ratchet to a stable, canonical string form.
func (s *Spiral) Encode() string {
	return base64.URLEncoding.EncodeToString(s.combinedState())
}

// combinedStateSize is len(large) + len(medium) + 1 + len(small) + 1.
const combinedStateSize = 32 + 32 + 1 + 32 + 1

// Decode parses the Encode representation back into a Spiral.
func Decode(encoded string) (*Spiral, error) {
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(data) != combinedStateSize {
		return nil, errors.New("ratchet: malformed encoding length")
	}
	s := &Spiral{}
	copy(s.large[:], data[0:32])
	copy(s.medium[:], data[32:64])
	s.mediumCounter = data[64]
	copy(s.small[:], data[65:97])
	s.smallCounter = data[97]
	return s, nil
}
