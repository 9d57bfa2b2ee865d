// Package blockstore defines the content-addressed block store interface
// the WNFS core consumes — spec.md section 6 — and a simple in-memory
// implementation for tests and single-process use. Durability, GC, and
// transport are explicitly out of the core's scope; this package only
// furnishes a reference collaborator.
package blockstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	golog "github.com/ipfs/go-log/v2"
	mh "github.com/multiformats/go-multihash"

	"github.com/wnfs-wg/go-wnfs/base"
)

var log = golog.Logger("wnfs")

// BlockStore is the external collaborator every WNFS package is
// parameterized over: an async content-addressed key-value store.
type BlockStore interface {
	GetBlock(ctx context.Context, id cid.Cid) ([]byte, error)
	PutBlock(ctx context.Context, data []byte, codec base.Codec) (cid.Cid, error)
	HasBlock(ctx context.Context, id cid.Cid) (bool, error)
}

// Memory is an in-memory BlockStore, the Go analogue of
// wnfs-common's MemoryBlockStore: a glorified map guarded by a mutex so
// concurrent readers are safe while writes are sequenced by the caller.
type Memory struct {
	mu     sync.RWMutex
	blocks map[cid.Cid][]byte
}

var _ BlockStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{blocks: map[cid.Cid][]byte{}}
}

func (m *Memory) GetBlock(ctx context.Context, id cid.Cid) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blocks[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, base.ErrCIDNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) PutBlock(ctx context.Context, data []byte, codec base.Codec) (cid.Cid, error) {
	if len(data) > base.MaxBlockSize {
		return cid.Undef, fmt.Errorf("%d bytes: %w", len(data), base.ErrMaximumBlockSizeExceeded)
	}

	hash, err := mh.Sum(data, base.DefaultMultihashType, -1)
	if err != nil {
		return cid.Undef, err
	}
	id := cid.NewCidV1(uint64(codec), hash)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[id] = data
	return id, nil
}

func (m *Memory) HasBlock(ctx context.Context, id cid.Cid) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[id]
	return ok, nil
}

// PutRawBlock wraps data as a raw (codec 0x55) block, the representation
// used for encrypted content/header bytes that aren't themselves DAG-CBOR.
func PutRawBlock(ctx context.Context, store BlockStore, data []byte) (cid.Cid, error) {
	return store.PutBlock(ctx, data, base.CodecRaw)
}

// block wraps a raw byte slice with a CID it claims to hash to,
// verifying the claim via go-block-format's constructor — the integrity
// check Disk relies on for every block it reads back off the
// filesystem, where bytes can be corrupted or replaced out of band.
func block(data []byte, id cid.Cid) (blocks.Block, error) {
	return blocks.NewBlockWithCid(data, id)
}

// Disk is a single-directory, one-file-per-block BlockStore: the
// persistence a long-running CLI needs across invocations, where Memory
// would lose everything on exit. Each block is named by its CID's
// string form and read back through block(), so silent on-disk
// corruption surfaces as a hash-mismatch error rather than a decode
// failure many layers up.
type Disk struct {
	dir string
}

var _ BlockStore = (*Disk)(nil)

// NewDisk opens (creating if necessary) a Disk store rooted at dir.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("opening disk blockstore: %w", err)
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) path(id cid.Cid) string {
	return filepath.Join(d.dir, id.String())
}

func (d *Disk) GetBlock(ctx context.Context, id cid.Cid) ([]byte, error) {
	data, err := os.ReadFile(d.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			log.Debugw("Disk.GetBlock miss", "cid", id)
			return nil, fmt.Errorf("%s: %w", id, base.ErrCIDNotFound)
		}
		return nil, err
	}

	b, err := block(data, id)
	if err != nil {
		log.Debugw("Disk.GetBlock corrupted", "cid", id, "err", err)
		return nil, fmt.Errorf("%s: corrupted on disk: %w", id, err)
	}
	return b.RawData(), nil
}

func (d *Disk) PutBlock(ctx context.Context, data []byte, codec base.Codec) (cid.Cid, error) {
	if len(data) > base.MaxBlockSize {
		return cid.Undef, fmt.Errorf("%d bytes: %w", len(data), base.ErrMaximumBlockSizeExceeded)
	}

	hash, err := mh.Sum(data, base.DefaultMultihashType, -1)
	if err != nil {
		return cid.Undef, err
	}
	id := cid.NewCidV1(uint64(codec), hash)

	b, err := block(data, id)
	if err != nil {
		return cid.Undef, err
	}
	if err := os.WriteFile(d.path(id), b.RawData(), 0644); err != nil {
		return cid.Undef, fmt.Errorf("writing block %s: %w", id, err)
	}
	log.Debugw("Disk.PutBlock", "cid", id, "bytes", len(data))
	return id, nil
}

func (d *Disk) HasBlock(ctx context.Context, id cid.Cid) (bool, error) {
	_, err := os.Stat(d.path(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
