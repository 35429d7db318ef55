// Package repo is the facade that ties the object store, ref store, tree
// builder, diff engine, and checkout applier into the operations a caller
// actually wants: init, commit, log, diff, status, checkout, branches, and
// tags. It plays the role the teacher's gitcore.Repository plays — the one
// type application code constructs and holds — but where the teacher eagerly
// loads every pack and commit at open time, this facade resolves endpoints
// lazily through internal/treebuilder, since the object store has no pack
// format to walk up front.
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kdriss/caf/internal/checkout"
	"github.com/kdriss/caf/internal/diffengine"
	"github.com/kdriss/caf/internal/hash"
	"github.com/kdriss/caf/internal/objectstore"
	"github.com/kdriss/caf/internal/refstore"
	"github.com/kdriss/caf/internal/treebuilder"
	"github.com/kdriss/caf/internal/watch"
)

const defaultBranchName = "main"

// Repo is the open handle on a repository: its working directory plus the
// metadata directory (object store + refs) beneath it.
type Repo struct {
	workDir     string
	metaDirName string
	metaDir     string

	store objectstore.Store
	refs  *refstore.Store
	cache *treebuilder.Cache

	mu          sync.Mutex
	statusValid bool
	statusForm  []*diffengine.Node
	subscribers []chan struct{}

	watcher  *watch.Watcher
	stopOnce sync.Once
	stop     chan struct{}
}

// Init lays out a new repository at workDir/metaDirName: the object store
// subdirectory, the refs namespace with heads/ and tags/, and HEAD as a
// symbolic ref to the default branch (left unwritten — an empty branch).
func Init(workDir, metaDirName string) (*Repo, error) {
	if metaDirName == "" {
		metaDirName = treebuilder.DefaultMetaDirName
	}
	metaDir := filepath.Join(workDir, metaDirName)

	if _, err := os.Stat(metaDir); err == nil {
		return nil, newErr("init", KindAlreadyExists, fmt.Errorf("%s already exists", metaDir))
	} else if !os.IsNotExist(err) {
		return nil, newErr("init", KindIO, err)
	}

	if err := os.MkdirAll(filepath.Join(metaDir, "objects"), 0o755); err != nil {
		return nil, newErr("init", KindIO, err)
	}
	store, err := objectstore.NewFileStore(filepath.Join(metaDir, "objects"))
	if err != nil {
		return nil, newErr("init", KindIO, err)
	}
	refs := refstore.New(metaDir)
	if err := refs.Init(defaultBranchName); err != nil {
		return nil, newErr("init", KindIO, err)
	}

	return newRepo(workDir, metaDirName, metaDir, store, refs), nil
}

// Open opens an existing repository at workDir/metaDirName.
func Open(workDir, metaDirName string) (*Repo, error) {
	if metaDirName == "" {
		metaDirName = treebuilder.DefaultMetaDirName
	}
	metaDir := filepath.Join(workDir, metaDirName)

	if _, err := os.Stat(metaDir); err != nil {
		return nil, newErr("open", KindNotFound, err)
	}
	store, err := objectstore.NewFileStore(filepath.Join(metaDir, "objects"))
	if err != nil {
		return nil, newErr("open", KindIO, err)
	}
	refs := refstore.New(metaDir)

	return newRepo(workDir, metaDirName, metaDir, store, refs), nil
}

func newRepo(workDir, metaDirName, metaDir string, store objectstore.Store, refs *refstore.Store) *Repo {
	return &Repo{
		workDir:     workDir,
		metaDirName: metaDirName,
		metaDir:     metaDir,
		store:       store,
		refs:        refs,
		cache:       treebuilder.NewCache(),
		stop:        make(chan struct{}),
	}
}

// WorkDir returns the repository's working directory.
func (r *Repo) WorkDir() string { return r.workDir }

// Store exposes the underlying object store, for callers (the CLI's diff
// and show commands) that need direct object access beyond the facade's
// named operations.
func (r *Repo) Store() objectstore.Store { return r.store }

// Watch starts an fsnotify watcher over the working directory and wires its
// invalidation signal to the facade's status cache. Supplemental: a Repo
// never needs a watcher to function correctly, only to avoid recomputing
// status against a stale snapshot between external changes.
func (r *Repo) Watch() error {
	w, err := watch.New(r.workDir, r.metaDirName, nil)
	if err != nil {
		return newErr("watch", KindIO, err)
	}
	if err := w.Start(); err != nil {
		return newErr("watch", KindIO, err)
	}
	r.watcher = w
	go r.drainInvalidations()
	return nil
}

func (r *Repo) drainInvalidations() {
	for {
		select {
		case <-r.stop:
			return
		case _, ok := <-r.watcher.Invalidated():
			if !ok {
				return
			}
			r.mu.Lock()
			r.statusValid = false
			subs := r.subscribers
			r.mu.Unlock()
			for _, ch := range subs {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}
}

// Invalidated returns a channel that receives a signal every time the
// working directory changes underneath a running Watch, e.g. for a server
// that wants to push a fresh status summary to connected clients rather
// than poll. The channel is buffered by one and never closed; it is simply
// abandoned once the Repo is closed. Calling Invalidated without a prior
// Watch yields a channel that never fires.
func (r *Repo) Invalidated() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{}, 1)
	r.subscribers = append(r.subscribers, ch)
	return ch
}

// Close releases the watcher, if any. It does not touch the object store or
// refs on disk.
func (r *Repo) Close() error {
	var err error
	r.stopOnce.Do(func() {
		close(r.stop)
		if r.watcher != nil {
			err = r.watcher.Close()
		}
	})
	return err
}

func (r *Repo) invalidateStatus() {
	r.mu.Lock()
	r.statusValid = false
	r.mu.Unlock()
}

// AddBranch creates a new branch ref pointing directly at target. Fails if
// the branch already exists.
func (r *Repo) AddBranch(name string, target hash.Hash) error {
	if name == "" {
		return newErr("add_branch", KindValidation, fmt.Errorf("branch name must not be empty"))
	}
	if r.refs.Exists("heads/" + name) {
		return newErr("add_branch", KindAlreadyExists, fmt.Errorf("branch %q already exists", name))
	}
	if err := r.refs.WriteRef("heads/"+name, refstore.Ref{Hash: target}); err != nil {
		return newErr("add_branch", KindIO, err)
	}
	return nil
}

// DeleteBranch removes a branch ref.
func (r *Repo) DeleteBranch(name string) error {
	if !r.refs.Exists("heads/" + name) {
		return newErr("delete_branch", KindNotFound, fmt.Errorf("branch %q not found", name))
	}
	if err := r.refs.DeleteRef("heads/" + name); err != nil {
		return newErr("delete_branch", KindIO, err)
	}
	return nil
}

// Branches returns every branch name mapped to its target commit hash.
func (r *Repo) Branches() (map[string]hash.Hash, error) {
	branches, err := r.refs.ListBranches()
	if err != nil {
		return nil, newErr("branches", KindIO, err)
	}
	return branches, nil
}

// Tags returns every tag name mapped to its tag *object* hash (not the
// commit it annotates — callers that need the commit should follow through
// objectstore.GetTag).
func (r *Repo) Tags() (map[string]hash.Hash, error) {
	tags, err := r.refs.ListTags()
	if err != nil {
		return nil, newErr("tags", KindIO, err)
	}
	return tags, nil
}

// Refs returns every ref in both namespaces, keyed by its full path
// ("heads/main", "tags/v1").
func (r *Repo) Refs() (map[string]hash.Hash, error) {
	branches, err := r.Branches()
	if err != nil {
		return nil, err
	}
	tags, err := r.Tags()
	if err != nil {
		return nil, err
	}
	out := make(map[string]hash.Hash, len(branches)+len(tags))
	for name, h := range branches {
		out["heads/"+name] = h
	}
	for name, h := range tags {
		out["tags/"+name] = h
	}
	return out, nil
}

// HeadRef returns HEAD's immediate content (symbolic or direct).
func (r *Repo) HeadRef() (refstore.Ref, error) {
	ref, err := r.refs.ReadHead()
	if err != nil {
		return refstore.Ref{}, newErr("head_ref", KindIO, err)
	}
	return ref, nil
}

// HeadCommit resolves HEAD down to a commit hash. A HEAD pointing at a
// branch with no commits yet resolves to hash.Zero, not an error.
func (r *Repo) HeadCommit() (hash.Hash, error) {
	h, err := treebuilder.ResolveCommitHash(r.store, r.refs, "HEAD")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return hash.Zero, nil
		}
		return hash.Zero, newErr("head_commit", KindRefResolution, err)
	}
	return h, nil
}

// ResolveRef resolves target (a raw hash, or a name under the refs
// namespace) down to a commit hash, per the precedence order checkout uses:
// hash format, then explicit refs-path, then branch, then tag.
func (r *Repo) ResolveRef(target string) (hash.Hash, error) {
	res, err := r.resolveCheckoutTarget(target)
	if err != nil {
		return hash.Zero, err
	}
	return res.commit, nil
}

// UpdateRef repoints an existing or new ref at target directly (no
// symbolic indirection). Used to move a branch programmatically.
func (r *Repo) UpdateRef(name string, target hash.Hash) error {
	if err := r.refs.WriteRef(name, refstore.Ref{Hash: target}); err != nil {
		return newErr("update_ref", KindIO, err)
	}
	return nil
}

// SaveFile writes content to relPath within the working directory and
// stores it as a blob, returning the blob's hash. It is the single-file
// counterpart to SaveDir.
func (r *Repo) SaveFile(relPath string, content []byte) (hash.Hash, error) {
	abs := filepath.Join(r.workDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return hash.Zero, newErr("save_file", KindIO, err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil { //nolint:gosec // path is workDir-relative, caller-supplied
		return hash.Zero, newErr("save_file", KindIO, err)
	}
	blobHash, err := objectstore.PutBlob(r.store, content)
	if err != nil {
		return hash.Zero, newErr("save_file", KindIO, err)
	}
	r.invalidateStatus()
	return blobHash, nil
}

// SaveDir snapshots the working directory bottom-up into the object store
// and returns the root tree hash.
func (r *Repo) SaveDir() (hash.Hash, error) {
	_, treeHash, err := treebuilder.ResolveDir(context.Background(), r.store, r.workDir, r.metaDirName, r.cache)
	if err != nil {
		return hash.Zero, newErr("save_dir", KindIO, err)
	}
	return treeHash, nil
}

// Commit snapshots the working directory and writes a commit object whose
// parent is the current HEAD commit (or hash.Zero for a root commit).
// If HEAD is symbolic, its target branch ref is advanced to the new commit;
// if HEAD is detached, the new commit is written but HEAD does not move.
func (r *Repo) Commit(author, message string) (hash.Hash, error) {
	treeHash, err := r.SaveDir()
	if err != nil {
		return hash.Zero, err
	}
	parentHash, err := r.HeadCommit()
	if err != nil {
		return hash.Zero, err
	}

	commit := objectstore.Commit{
		Tree:      treeHash,
		Parent:    parentHash,
		Author:    author,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
	commitHash, err := objectstore.PutCommit(r.store, commit)
	if err != nil {
		return hash.Zero, newErr("commit", KindIO, err)
	}

	headRef, err := r.refs.ReadHead()
	if err != nil {
		return hash.Zero, newErr("commit", KindIO, err)
	}
	if headRef.IsSymbolic() {
		if err := r.refs.WriteRef(headRef.Sym, refstore.Ref{Hash: commitHash}); err != nil {
			return hash.Zero, newErr("commit", KindIO, err)
		}
	}

	r.invalidateStatus()
	return commitHash, nil
}

// LogEntry is a single commit yielded by Log.
type LogEntry struct {
	Hash   hash.Hash
	Commit objectstore.Commit
}

// Log follows parent links from tip until it reaches a root commit.
func (r *Repo) Log(tip hash.Hash) ([]LogEntry, error) {
	var entries []LogEntry
	cur := tip
	for !cur.IsZero() {
		c, err := objectstore.GetCommit(r.store, cur)
		if err != nil {
			return nil, newErr("log", KindIntegrity, err)
		}
		entries = append(entries, LogEntry{Hash: cur, Commit: c})
		cur = c.Parent
	}
	return entries, nil
}

// Lookup resolves path within the tree of the commit target points at,
// returning its tree record. Used by the CLI's diff renderer, which needs a
// single blob's content at an endpoint rather than the whole diff forest.
func (r *Repo) Lookup(target, path string) (objectstore.TreeRecord, bool, error) {
	commitHash, err := r.ResolveRef(target)
	if err != nil {
		return objectstore.TreeRecord{}, false, err
	}
	tree, _, err := treebuilder.ResolveHash(r.store, commitHash, r.cache)
	if err != nil {
		return objectstore.TreeRecord{}, false, newErr("lookup", KindIntegrity, err)
	}
	rec, ok, err := treebuilder.Lookup(r.store, r.cache, tree, path)
	if err != nil {
		return objectstore.TreeRecord{}, false, newErr("lookup", KindIntegrity, err)
	}
	return rec, ok, nil
}

// Diff computes the diff forest between two resolvable endpoints (a raw
// hash or a ref name). hash.Zero's empty string form ("") is also accepted
// on either side, meaning "no commit" (the empty tree) — the counterpart
// to a root commit's unset Parent, so a caller can diff a root commit
// against its non-existent parent the same way Status diffs an empty HEAD.
// For a diff against the live working directory, use Status instead.
func (r *Repo) Diff(fromTarget, toTarget string) ([]*diffengine.Node, error) {
	fromCommit, err := r.resolveDiffEndpoint(fromTarget)
	if err != nil {
		return nil, err
	}
	toCommit, err := r.resolveDiffEndpoint(toTarget)
	if err != nil {
		return nil, err
	}

	fromTree, fromTreeHash, err := r.resolveDiffTree(fromCommit)
	if err != nil {
		return nil, newErr("diff", KindIntegrity, err)
	}
	toTree, toTreeHash, err := r.resolveDiffTree(toCommit)
	if err != nil {
		return nil, newErr("diff", KindIntegrity, err)
	}

	forest, err := diffengine.Diff(r.store, r.cache, fromTree, fromTreeHash, toTree, toTreeHash)
	if err != nil {
		return nil, newErr("diff", KindIntegrity, err)
	}
	return forest, nil
}

func (r *Repo) resolveDiffEndpoint(target string) (hash.Hash, error) {
	if target == "" {
		return hash.Zero, nil
	}
	return r.ResolveRef(target)
}

func (r *Repo) resolveDiffTree(commitHash hash.Hash) (objectstore.Tree, hash.Hash, error) {
	if commitHash.IsZero() {
		return objectstore.Tree{}, hash.Zero, nil
	}
	return treebuilder.ResolveHash(r.store, commitHash, r.cache)
}

// Status reports the diff between HEAD and the live working directory. The
// result is cached until invalidated by a watcher signal or a mutating
// operation (SaveFile, Commit, Checkout).
func (r *Repo) Status() ([]*diffengine.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.statusValid {
		return r.statusForm, nil
	}

	headCommit, err := r.HeadCommit()
	if err != nil {
		return nil, err
	}
	var headTree objectstore.Tree
	var headTreeHash hash.Hash
	if !headCommit.IsZero() {
		headTree, headTreeHash, err = treebuilder.ResolveHash(r.store, headCommit, r.cache)
		if err != nil {
			return nil, newErr("status", KindIntegrity, err)
		}
	}

	workTree, workTreeHash, err := treebuilder.ResolveDir(context.Background(), r.store, r.workDir, r.metaDirName, r.cache)
	if err != nil {
		return nil, newErr("status", KindIO, err)
	}

	forest, err := diffengine.Diff(r.store, r.cache, headTree, headTreeHash, workTree, workTreeHash)
	if err != nil {
		return nil, newErr("status", KindIntegrity, err)
	}

	r.statusForm = forest
	r.statusValid = true
	return forest, nil
}

// checkoutTarget is the resolved form of a checkout precedence lookup:
// the commit it lands on, and — if it came from a branch — the branch ref
// path HEAD should become symbolic to.
type checkoutTarget struct {
	commit    hash.Hash
	branchRef string // non-empty: HEAD should become symbolic to this path
}

func (r *Repo) resolveCheckoutTarget(target string) (checkoutTarget, error) {
	if h, err := hash.Parse(target); err == nil {
		return checkoutTarget{commit: h}, nil
	}

	if target == "HEAD" {
		h, err := treebuilder.ResolveCommitHash(r.store, r.refs, "HEAD")
		if err != nil {
			return checkoutTarget{}, newErr("resolve_ref", KindRefResolution, err)
		}
		headRef, err := r.refs.ReadHead()
		if err != nil {
			return checkoutTarget{}, newErr("resolve_ref", KindIO, err)
		}
		if headRef.IsSymbolic() {
			return checkoutTarget{commit: h, branchRef: headRef.Sym}, nil
		}
		return checkoutTarget{commit: h}, nil
	}

	if r.refs.Exists(target) {
		h, err := treebuilder.ResolveCommitHash(r.store, r.refs, target)
		if err != nil {
			return checkoutTarget{}, newErr("resolve_ref", KindRefResolution, err)
		}
		if strings.HasPrefix(target, "heads/") {
			return checkoutTarget{commit: h, branchRef: target}, nil
		}
		return checkoutTarget{commit: h}, nil
	}

	if r.refs.Exists("heads/" + target) {
		h, err := treebuilder.ResolveCommitHash(r.store, r.refs, "heads/"+target)
		if err != nil {
			return checkoutTarget{}, newErr("resolve_ref", KindRefResolution, err)
		}
		return checkoutTarget{commit: h, branchRef: "heads/" + target}, nil
	}

	if r.refs.Exists("tags/" + target) {
		h, err := treebuilder.ResolveCommitHash(r.store, r.refs, "tags/"+target)
		if err != nil {
			return checkoutTarget{}, newErr("resolve_ref", KindRefResolution, err)
		}
		return checkoutTarget{commit: h}, nil
	}

	return checkoutTarget{}, newErr("resolve_ref", KindNotFound, fmt.Errorf("no hash, branch, or tag matches %q", target))
}

// Checkout resolves target via the precedence order documented in §4.F,
// requires a clean working directory, applies the diff from HEAD to target,
// and rewrites HEAD: symbolic to the branch if target was a branch, a direct
// (detached) hash otherwise. onProgress is optional and forwarded to the
// checkout applier, which reports its move, remove, and write phases.
func (r *Repo) Checkout(target string, onProgress checkout.Progress) error {
	dirty, err := r.Status()
	if err != nil {
		return err
	}
	if len(dirty) != 0 {
		return newErr("checkout", KindValidation, fmt.Errorf("working directory is not clean"))
	}

	res, err := r.resolveCheckoutTarget(target)
	if err != nil {
		return err
	}

	headCommit, err := r.HeadCommit()
	if err != nil {
		return err
	}
	var headTree objectstore.Tree
	var headTreeHash hash.Hash
	if !headCommit.IsZero() {
		headTree, headTreeHash, err = treebuilder.ResolveHash(r.store, headCommit, r.cache)
		if err != nil {
			return newErr("checkout", KindIntegrity, err)
		}
	}

	targetTree, targetTreeHash, err := treebuilder.ResolveHash(r.store, res.commit, r.cache)
	if err != nil {
		return newErr("checkout", KindIntegrity, err)
	}

	forest, err := diffengine.Diff(r.store, r.cache, headTree, headTreeHash, targetTree, targetTreeHash)
	if err != nil {
		return newErr("checkout", KindIntegrity, err)
	}

	if err := checkout.Apply(r.store, r.cache, forest, r.workDir, targetTree, onProgress); err != nil {
		return newErr("checkout", KindIO, err)
	}

	if res.branchRef != "" {
		err = r.refs.WriteHead(refstore.Ref{Sym: res.branchRef})
	} else {
		err = r.refs.WriteHead(refstore.Ref{Hash: res.commit})
	}
	if err != nil {
		return newErr("checkout", KindIO, err)
	}

	r.invalidateStatus()
	return nil
}

// CreateTag writes an annotated Tag object pointing at commitHash and a
// hash ref under tags/name. Refuses to overwrite an existing tag.
func (r *Repo) CreateTag(name, author, message string, commitHash hash.Hash) (hash.Hash, error) {
	if name == "" {
		return hash.Zero, newErr("create_tag", KindValidation, fmt.Errorf("tag name must not be empty"))
	}
	if author == "" || message == "" {
		return hash.Zero, newErr("create_tag", KindValidation, fmt.Errorf("tag requires both author and message"))
	}
	if !hash.Looks(string(commitHash)) {
		return hash.Zero, newErr("create_tag", KindValidation, fmt.Errorf("malformed commit hash %q", commitHash))
	}
	if r.refs.Exists("tags/" + name) {
		return hash.Zero, newErr("create_tag", KindAlreadyExists, fmt.Errorf("tag %q already exists", name))
	}

	kind, _, err := r.store.Get(commitHash)
	if err != nil {
		return hash.Zero, newErr("create_tag", KindNotFound, err)
	}
	if kind != objectstore.KindCommit {
		return hash.Zero, newErr("create_tag", KindValidation, fmt.Errorf("%s is a %s, not a commit", commitHash, kind))
	}

	tag := objectstore.Tag{
		Name:      name,
		Commit:    commitHash,
		Author:    author,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
	tagHash, err := objectstore.PutTag(r.store, tag)
	if err != nil {
		return hash.Zero, newErr("create_tag", KindIO, err)
	}
	if err := r.refs.WriteRef("tags/"+name, refstore.Ref{Hash: tagHash}); err != nil {
		return hash.Zero, newErr("create_tag", KindIO, err)
	}
	return tagHash, nil
}

// DeleteTag removes a tag ref.
func (r *Repo) DeleteTag(name string) error {
	if !r.refs.Exists("tags/" + name) {
		return newErr("delete_tag", KindNotFound, fmt.Errorf("tag %q not found", name))
	}
	if err := r.refs.DeleteRef("tags/" + name); err != nil {
		return newErr("delete_tag", KindIO, err)
	}
	return nil
}
