package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"
	golog "github.com/ipfs/go-log/v2"
	cli "github.com/urfave/cli/v2"

	"github.com/wnfs-wg/go-wnfs/blockstore"
	"github.com/wnfs-wg/go-wnfs/forest"
	"github.com/wnfs-wg/go-wnfs/nameaccumulator"
	"github.com/wnfs-wg/go-wnfs/private"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := openSession(ctx)
	if err != nil {
		errExit("error: opening wnfs session: %s\n", err)
	}

	app := &cli.App{
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "print verbose output",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				golog.SetLogLevel("wnfs", "debug")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "mkdir",
				Usage: "create a directory",
				Action: func(c *cli.Context) error {
					if err := sess.mkdir(c.Args().Get(0)); err != nil {
						return err
					}
					return sess.commit()
				},
			},
			{
				Name:  "cat",
				Usage: "print a file's contents",
				Action: func(c *cli.Context) error {
					data, err := sess.cat(c.Args().Get(0))
					if err != nil {
						return err
					}
					_, err = os.Stdout.Write(data)
					return err
				},
			},
			{
				Name:    "write",
				Aliases: []string{"add"},
				Usage:   "add a file to wnfs",
				Action: func(c *cli.Context) error {
					path := c.Args().Get(0)
					srcPath := c.Args().Get(1)
					data, err := os.ReadFile(srcPath)
					if err != nil {
						return err
					}
					if err := sess.write(path, data); err != nil {
						return err
					}
					return sess.commit()
				},
			},
			{
				Name:  "ls",
				Usage: "list the contents of a directory",
				Action: func(c *cli.Context) error {
					entries, err := sess.ls(c.Args().Get(0))
					if err != nil {
						return err
					}
					for _, e := range entries {
						fmt.Println(e)
					}
					return nil
				},
			},
			{
				Name:  "rm",
				Usage: "remove a file or directory",
				Action: func(c *cli.Context) error {
					if err := sess.rm(c.Args().Get(0)); err != nil {
						return err
					}
					return sess.commit()
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		errExit("%s\n", err.Error())
	}
}

func errExit(format string, v ...interface{}) {
	fmt.Printf(format, v...)
	os.Exit(1)
}

// externalState is everything the CLI needs to reopen the same private
// tree on its next invocation — analogous to the teacher's ExternalState,
// but pointing at a PrivateForest root and a PrivateRef instead of a
// bare public-tree CID.
type externalState struct {
	ForestRootCID string `json:"forestRootCid"`
	Salt          string `json:"salt"`
	RootRef       refJSON `json:"rootRef"`
}

type refJSON struct {
	RevisionNameHash string `json:"revisionNameHash"`
	TemporalKey      string `json:"temporalKey"`
	SnapshotKey      string `json:"snapshotKey"`
	ContentCID       string `json:"contentCid"`
	INumber          string `json:"inumber"`
}

func refToJSON(r private.Ref) refJSON {
	return refJSON{
		RevisionNameHash: hex.EncodeToString(r.RevisionNameHash[:]),
		TemporalKey:      hex.EncodeToString(r.TemporalKey[:]),
		SnapshotKey:      hex.EncodeToString(r.SnapshotKey[:]),
		ContentCID:       r.ContentCID.String(),
		INumber:          hex.EncodeToString(r.INumber.Bytes()),
	}
}

func (j refJSON) toRef() (private.Ref, error) {
	var ref private.Ref
	for _, pair := range []struct {
		s   string
		out *[32]byte
	}{
		{j.RevisionNameHash, &ref.RevisionNameHash},
		{j.TemporalKey, &ref.TemporalKey},
		{j.SnapshotKey, &ref.SnapshotKey},
	} {
		b, err := hex.DecodeString(pair.s)
		if err != nil {
			return ref, err
		}
		if len(b) != 32 {
			return ref, fmt.Errorf("expected 32 bytes, got %d", len(b))
		}
		copy(pair.out[:], b)
	}

	c, err := cid.Decode(j.ContentCID)
	if err != nil {
		return ref, err
	}
	ref.ContentCID = c

	inum, err := hex.DecodeString(j.INumber)
	if err != nil {
		return ref, err
	}
	ref.INumber = nameaccumulator.SegmentFromBytes(inum)

	return ref, nil
}

func stateDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "wnfs-cli"), nil
}

func statePath() (string, error) {
	dir, err := stateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.json"), nil
}

// session bundles everything a single CLI command needs to read and
// rewrite the tree rooted at the private forest's single known
// directory.
type session struct {
	ctx    context.Context
	setup  nameaccumulator.Setup
	store  *blockstore.Disk
	forest *forest.Forest
	root   *private.Directory
}

func openSession(ctx context.Context) (*session, error) {
	setup := nameaccumulator.DefaultSetup()

	dir, err := stateDir()
	if err != nil {
		return nil, err
	}
	store, err := blockstore.NewDisk(filepath.Join(dir, "blocks"))
	if err != nil {
		return nil, err
	}

	sp, err := statePath()
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(sp)
	if os.IsNotExist(err) {
		return bootstrap(ctx, setup, store, sp)
	} else if err != nil {
		return nil, err
	}

	var es externalState
	if err := json.Unmarshal(raw, &es); err != nil {
		return nil, fmt.Errorf("decoding state file %s: %w", sp, err)
	}

	salt, err := base64.StdEncoding.DecodeString(es.Salt)
	if err != nil {
		return nil, err
	}

	forestRootCID, err := cid.Decode(es.ForestRootCID)
	if err != nil {
		return nil, err
	}
	fo, err := forest.Load(ctx, store, setup, salt, forestRootCID)
	if err != nil {
		return nil, err
	}

	ref, err := es.RootRef.toRef()
	if err != nil {
		return nil, err
	}

	// the root directory's own Name isn't persisted directly; it is
	// recovered the same way any child's name would be, as a child of
	// the fixed genesis name this CLI always mints roots under.
	genesis := genesisName(setup)
	rootName := ref.ChildName(genesis)

	dirs, err := private.LoadDirectory(ctx, setup, rootName, ref, fo, store)
	if err != nil {
		return nil, err
	}
	if len(dirs) != 1 {
		return nil, fmt.Errorf("ambiguous root: %d concurrent candidates", len(dirs))
	}

	return &session{ctx: ctx, setup: setup, store: store, forest: fo, root: dirs[0]}, nil
}

func genesisName(setup nameaccumulator.Setup) nameaccumulator.Name {
	return nameaccumulator.NameFromAccumulator(nameaccumulator.Empty(setup))
}

func bootstrap(ctx context.Context, setup nameaccumulator.Setup, store *blockstore.Disk, sp string) (*session, error) {
	fmt.Println("creating new wnfs filesystem...")

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	root, err := private.NewDirectory(genesisName(setup))
	if err != nil {
		return nil, err
	}

	s := &session{
		ctx:    ctx,
		setup:  setup,
		store:  store,
		forest: forest.New(setup, salt),
		root:   root,
	}
	if err := s.commitTo(sp, salt); err != nil {
		return nil, err
	}
	fmt.Println("done")
	return s, nil
}

// commit persists the session's current root and forest to the default
// state path.
func (s *session) commit() error {
	sp, err := statePath()
	if err != nil {
		return err
	}

	salt, err := saltFromStatePath(sp)
	if err != nil {
		return err
	}
	return s.commitTo(sp, salt)
}

// saltFromStatePath recovers the salt already on disk (it never
// changes after bootstrap) so ordinary commits don't need to thread it
// through every call site.
func saltFromStatePath(sp string) ([]byte, error) {
	raw, err := os.ReadFile(sp)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("commit called before bootstrap")
	} else if err != nil {
		return nil, err
	}
	var es externalState
	if err := json.Unmarshal(raw, &es); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(es.Salt)
}

func (s *session) commitTo(sp string, salt []byte) error {
	rootRef, err := s.root.Store(s.ctx, s.setup, s.forest, s.store)
	if err != nil {
		return fmt.Errorf("storing root directory: %w", err)
	}

	forestRootCID, err := s.forest.Write(s.ctx, s.store)
	if err != nil {
		return fmt.Errorf("writing forest: %w", err)
	}

	es := externalState{
		ForestRootCID: forestRootCID.String(),
		Salt:          base64.StdEncoding.EncodeToString(salt),
		RootRef:       refToJSON(rootRef),
	}
	data, err := json.MarshalIndent(es, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(sp), 0755); err != nil {
		return err
	}
	fmt.Printf("writing root cid: %s...", forestRootCID)
	if err := os.WriteFile(sp, data, 0644); err != nil {
		return err
	}
	fmt.Println("done")
	return nil
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// dirChain is the path from the root directory (index 0) down to the
// deepest resolved directory, paired with the entry name under which
// each non-root element is filed in its parent — exactly what's needed
// to re-Store bottom-up after a mutation without any reverse lookup.
type dirChain struct {
	dirs []*private.Directory
	segs []string // segs[i] is the entry name of dirs[i+1] inside dirs[i]
}

func (c dirChain) leaf() *private.Directory { return c.dirs[len(c.dirs)-1] }

// resolveDir walks segs from s.root, creating missing intermediate
// directories (mkdir -p semantics) when create is true.
func (s *session) resolveDir(segs []string, create bool) (dirChain, error) {
	chain := dirChain{dirs: []*private.Directory{s.root}}
	cur := s.root

	for _, name := range segs {
		sealed, ok := cur.Entries[name]
		if ok {
			childRef, err := sealed.Decrypt(cur.Header.SnapshotKey())
			if err != nil {
				return dirChain{}, fmt.Errorf("decrypting %q: %w", name, err)
			}
			childName := childRef.ChildName(cur.Header.Name)
			nodes, err := private.LoadNode(s.ctx, s.setup, childName, childRef, s.forest, s.store)
			if err != nil {
				return dirChain{}, fmt.Errorf("loading %q: %w", name, err)
			}
			if len(nodes) == 0 {
				return dirChain{}, fmt.Errorf("%q: %w", name, private.ErrNoCandidateMatched)
			}
			if nodes[0].Directory == nil {
				return dirChain{}, fmt.Errorf("%q: %w", name, private.ErrNotADirectory)
			}
			cur = nodes[0].Directory
			chain.dirs = append(chain.dirs, cur)
			chain.segs = append(chain.segs, name)
			continue
		}

		if !create {
			return dirChain{}, fmt.Errorf("%q: %w", name, private.ErrNoCandidateMatched)
		}

		// Left unstored here: restoreChain's bottom-up sweep Stores
		// every non-root element of the chain exactly once and wires
		// the resulting Ref into its parent, whether that element was
		// just created or already existed. Storing it here too would
		// advance its ratchet a second, unobservable time before the
		// command even returns.
		child, err := private.NewDirectory(cur.Header.Name)
		if err != nil {
			return dirChain{}, err
		}
		cur = child
		chain.dirs = append(chain.dirs, cur)
		chain.segs = append(chain.segs, name)
	}

	return chain, nil
}

// restoreChain re-Stores every directory in chain from the leaf back up
// to the root, threading each freshly-minted child Ref into its
// parent's entry (by the entry name resolveDir already recorded), so a
// mutation made deep in the tree is visible from the root's own next
// Store.
func (s *session) restoreChain(chain dirChain) error {
	for i := len(chain.dirs) - 1; i > 0; i-- {
		child := chain.dirs[i]
		parent := chain.dirs[i-1]
		name := chain.segs[i-1]

		ref, err := child.Store(s.ctx, s.setup, s.forest, s.store)
		if err != nil {
			return err
		}
		if err := parent.SetChild(name, ref); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) mkdir(path string) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("mkdir: empty path")
	}
	chain, err := s.resolveDir(segs, true)
	if err != nil {
		return err
	}
	return s.restoreChain(chain)
}

func (s *session) write(path string, data []byte) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("write: empty path")
	}
	dirSegs, fileName := segs[:len(segs)-1], segs[len(segs)-1]

	chain, err := s.resolveDir(dirSegs, true)
	if err != nil {
		return err
	}
	parent := chain.leaf()

	f, err := private.NewFile(parent.Header.Name, data)
	if err != nil {
		return err
	}
	ref, err := f.Store(s.ctx, s.setup, s.forest, s.store)
	if err != nil {
		return err
	}
	if err := parent.SetChild(fileName, ref); err != nil {
		return err
	}

	return s.restoreChain(chain)
}

func (s *session) cat(path string) ([]byte, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, fmt.Errorf("cat: empty path")
	}
	dirSegs, fileName := segs[:len(segs)-1], segs[len(segs)-1]

	chain, err := s.resolveDir(dirSegs, false)
	if err != nil {
		return nil, err
	}
	parent := chain.leaf()

	sealed, ok := parent.Entries[fileName]
	if !ok {
		return nil, fmt.Errorf("%q: %w", fileName, private.ErrNoCandidateMatched)
	}
	ref, err := sealed.Decrypt(parent.Header.SnapshotKey())
	if err != nil {
		return nil, err
	}
	childName := ref.ChildName(parent.Header.Name)

	files, err := private.LoadFile(s.ctx, s.setup, childName, ref, s.forest, s.store)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, private.ErrNoCandidateMatched
	}
	return files[0].Content, nil
}

func (s *session) ls(path string) ([]string, error) {
	segs := splitPath(path)
	chain, err := s.resolveDir(segs, false)
	if err != nil {
		return nil, err
	}
	dir := chain.leaf()

	names := make([]string, 0, len(dir.Entries))
	for name := range dir.Entries {
		names = append(names, name)
	}
	return names, nil
}

func (s *session) rm(path string) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("rm: empty path")
	}
	dirSegs, name := segs[:len(segs)-1], segs[len(segs)-1]

	chain, err := s.resolveDir(dirSegs, false)
	if err != nil {
		return err
	}
	parent := chain.leaf()
	if !parent.RemoveChild(name) {
		return fmt.Errorf("%q: %w", name, private.ErrNoCandidateMatched)
	}

	return s.restoreChain(chain)
}
