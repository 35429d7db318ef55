// Package treebuilder resolves an endpoint — a commit hash, a symbolic ref
// name, or a live working-directory path — down to a root tree object.
// It is the one place in the system that turns "HEAD", "heads/main", or a
// directory on disk into the hash-addressed tree the diff engine and
// checkout applier actually operate on.
package treebuilder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kdriss/caf/internal/hash"
	"github.com/kdriss/caf/internal/ignore"
	"github.com/kdriss/caf/internal/objectstore"
	"github.com/kdriss/caf/internal/refstore"
)

// maxRefDepth bounds symbolic-ref resolution so a misconfigured or cyclic
// chain of refs fails fast instead of looping forever.
const maxRefDepth = 32

// Cache memoizes tree hash -> decoded Tree lookups, so repeated descents
// into an unchanged subtree (the common case when only a few files differ)
// hit memory instead of the object store. Entries are never evicted: a
// repo.Repo keeps one Cache for its whole lifetime and shares it across
// every diff, status and checkout it runs.
type Cache struct {
	byHash map[hash.Hash]objectstore.Tree
}

// NewCache returns an empty tree cache.
func NewCache() *Cache {
	return &Cache{byHash: make(map[hash.Hash]objectstore.Tree)}
}

// Get returns the decoded Tree for h, loading it from store and memoizing
// the result on a cache miss.
func (c *Cache) Get(store objectstore.Store, h hash.Hash) (objectstore.Tree, error) {
	if t, ok := c.byHash[h]; ok {
		return t, nil
	}
	t, err := objectstore.GetTree(store, h)
	if err != nil {
		return objectstore.Tree{}, err
	}
	c.byHash[h] = t
	return t, nil
}

// Put memoizes a Tree the caller already has in hand (e.g. one it just
// built), so later lookups by hash avoid re-reading the object store.
func (c *Cache) Put(h hash.Hash, t objectstore.Tree) {
	c.byHash[h] = t
}

// ErrRefCycle reports that symbolic ref resolution exceeded maxRefDepth.
type ErrRefCycle struct {
	Start string
}

func (e *ErrRefCycle) Error() string {
	return fmt.Sprintf("treebuilder: ref cycle detected resolving %q", e.Start)
}

// Resolve resolves a hash or symbolic-name endpoint (NOT a live directory —
// use ResolveDir for that) to a root tree and its hash. name may be "HEAD"
// or any ref path accepted by refstore (e.g. "heads/main", "tags/v1").
func Resolve(store objectstore.Store, refs *refstore.Store, name string, cache *Cache) (objectstore.Tree, hash.Hash, error) {
	commitHash, err := resolveToCommitHash(store, refs, name)
	if err != nil {
		return objectstore.Tree{}, "", err
	}
	return treeForCommit(store, cache, commitHash)
}

// ResolveHash resolves an explicit commit hash endpoint directly, with no
// ref indirection.
func ResolveHash(store objectstore.Store, h hash.Hash, cache *Cache) (objectstore.Tree, hash.Hash, error) {
	return treeForCommit(store, cache, h)
}

// ResolveCommitHash resolves a symbolic-name endpoint down to a commit
// hash, without also loading its tree. Exposed for callers (internal/repo)
// that need the commit hash itself — HEAD inspection, log traversal,
// update-ref targets — rather than the tree it points at.
func ResolveCommitHash(store objectstore.Store, refs *refstore.Store, name string) (hash.Hash, error) {
	return resolveToCommitHash(store, refs, name)
}

func treeForCommit(store objectstore.Store, cache *Cache, commitHash hash.Hash) (objectstore.Tree, hash.Hash, error) {
	commit, err := objectstore.GetCommit(store, commitHash)
	if err != nil {
		return objectstore.Tree{}, "", fmt.Errorf("treebuilder: load commit %s: %w", commitHash, err)
	}
	tree, err := cache.Get(store, commit.Tree)
	if err != nil {
		return objectstore.Tree{}, "", fmt.Errorf("treebuilder: load tree %s: %w", commit.Tree, err)
	}
	return tree, commit.Tree, nil
}

// resolveToCommitHash follows HEAD / symbolic refs / tag objects until it
// lands on a commit hash, per §4.C: HEAD -> (symbolic -> follow) | (direct
// hash), ref under tags/ -> peel the Tag object to its Commit field.
func resolveToCommitHash(store objectstore.Store, refs *refstore.Store, name string) (hash.Hash, error) {
	start := name
	cur := name
	for depth := 0; ; depth++ {
		if depth > maxRefDepth {
			return "", &ErrRefCycle{Start: start}
		}

		var ref refstore.Ref
		var err error
		if cur == "HEAD" {
			ref, err = refs.ReadHead()
		} else {
			ref, err = refs.ReadRef(cur)
		}
		if err != nil {
			return "", fmt.Errorf("treebuilder: resolve %q: %w", cur, err)
		}

		if ref.IsSymbolic() {
			cur = ref.Sym
			continue
		}

		if isTagNamespace(cur) {
			tag, err := objectstore.GetTag(store, ref.Hash)
			if err != nil {
				return "", fmt.Errorf("treebuilder: load tag object for %q: %w", cur, err)
			}
			return tag.Commit, nil
		}
		return ref.Hash, nil
	}
}

func isTagNamespace(refPath string) bool {
	return len(refPath) > 5 && refPath[:5] == "tags/"
}

// DefaultMetaDirName is the repository metadata directory name excluded
// from every live-directory traversal unless the caller overrides it.
const DefaultMetaDirName = ".caf"

// ResolveDir traverses the live directory rooted at dir, builds a tree
// bottom-up, stores every blob and tree it encounters, and returns the root
// tree and its hash. metaDirName (e.g. ".caf") and any path matched by a
// .cafignore loaded at dir's root are skipped.
func ResolveDir(ctx context.Context, store objectstore.Store, dir, metaDirName string, cache *Cache) (objectstore.Tree, hash.Hash, error) {
	matcher := ignore.New()
	if err := matcher.Load(dir, ""); err != nil {
		return objectstore.Tree{}, "", fmt.Errorf("treebuilder: load .cafignore: %w", err)
	}

	b := &builder{store: store, cache: cache, root: dir, meta: metaDirName, ignore: matcher}
	tree, h, err := b.buildDir(ctx, "")
	if err != nil {
		return objectstore.Tree{}, "", err
	}
	return tree, h, nil
}

type builder struct {
	store  objectstore.Store
	cache  *Cache
	root   string
	meta   string
	ignore *ignore.Matcher
}

// buildDir recursively hashes relPath (relative to b.root, "" for the root
// itself), hashing sibling entries concurrently via a bounded errgroup, and
// returns the resulting Tree and its hash.
func (b *builder) buildDir(ctx context.Context, relPath string) (objectstore.Tree, hash.Hash, error) {
	absPath := filepath.Join(b.root, filepath.FromSlash(relPath))
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return objectstore.Tree{}, "", fmt.Errorf("treebuilder: read dir %s: %w", absPath, err)
	}

	type built struct {
		name string
		rec  objectstore.TreeRecord
	}
	results := make([]built, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrencyLimit())

	for i, e := range entries {
		i, e := i, e
		childRel := e.Name()
		if relPath != "" {
			childRel = relPath + "/" + e.Name()
		}

		if relPath == "" && e.IsDir() && e.Name() == b.meta {
			continue
		}
		if b.ignore.Match(childRel, e.IsDir()) {
			continue
		}

		g.Go(func() error {
			if e.IsDir() {
				subTree, subHash, err := b.buildDir(gctx, childRel)
				if err != nil {
					return err
				}
				_ = subTree
				results[i] = built{name: e.Name(), rec: objectstore.TreeRecord{
					Name: e.Name(), Type: objectstore.RecordTree, Hash: subHash,
				}}
				return nil
			}

			content, err := os.ReadFile(filepath.Join(b.root, filepath.FromSlash(childRel))) //nolint:gosec // path built from a traversed repository working directory
			if err != nil {
				return fmt.Errorf("treebuilder: read file %s: %w", childRel, err)
			}
			blobHash, err := objectstore.PutBlob(b.store, content)
			if err != nil {
				return fmt.Errorf("treebuilder: store blob %s: %w", childRel, err)
			}
			results[i] = built{name: e.Name(), rec: objectstore.TreeRecord{
				Name: e.Name(), Type: objectstore.RecordBlob, Hash: blobHash,
			}}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return objectstore.Tree{}, "", err
	}

	records := make([]objectstore.TreeRecord, 0, len(results))
	for _, r := range results {
		if r.name == "" {
			continue // skipped entry (metadata dir / ignored path)
		}
		records = append(records, r.rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })

	tree := objectstore.Tree{Entries: records}
	treeHash, err := objectstore.PutTree(b.store, tree)
	if err != nil {
		return objectstore.Tree{}, "", fmt.Errorf("treebuilder: store tree at %q: %w", relPath, err)
	}
	b.cache.Put(treeHash, tree)
	return tree, treeHash, nil
}

// concurrencyLimit bounds sibling hashing fan-out. A fixed modest cap is
// enough to keep a wide directory's disk I/O from serializing without
// spawning unbounded goroutines for pathological directory widths.
func concurrencyLimit() int {
	return 8
}

// Lookup resolves a path relative to tree's root into a leaf record
// (blob or subtree), descending through the cache as needed. It returns
// ok=false if the path does not exist in the tree.
func Lookup(store objectstore.Store, cache *Cache, root objectstore.Tree, path string) (objectstore.TreeRecord, bool, error) {
	if path == "" {
		return objectstore.TreeRecord{}, false, fmt.Errorf("treebuilder: empty lookup path")
	}
	segments := splitPath(path)
	cur := root
	for i, seg := range segments {
		rec, ok := cur.Lookup(seg)
		if !ok {
			return objectstore.TreeRecord{}, false, nil
		}
		if i == len(segments)-1 {
			return rec, true, nil
		}
		if rec.Type != objectstore.RecordTree {
			return objectstore.TreeRecord{}, false, nil
		}
		next, err := cache.Get(store, rec.Hash)
		if err != nil {
			return objectstore.TreeRecord{}, false, fmt.Errorf("treebuilder: descend into %s: %w", rec.Hash, err)
		}
		cur = next
	}
	return objectstore.TreeRecord{}, false, nil
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				out = append(out, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		out = append(out, path[start:])
	}
	return out
}
