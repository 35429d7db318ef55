// Package checkout mutates a working directory to match a target tree,
// given the diff forest that describes how to get there. It is the mutating
// counterpart to internal/diffengine's read-only comparison, grounded in
// the teacher's worktree-rewrite style (status.go's tree flattening) and in
// odvcencio-got's Checkout (clean-check, resolve, remove-then-write shape),
// generalized here into the three safely-ordered phases the spec requires:
// moves, then removals, then writes.
package checkout

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kdriss/caf/internal/diffengine"
	"github.com/kdriss/caf/internal/hash"
	"github.com/kdriss/caf/internal/objectstore"
	"github.com/kdriss/caf/internal/treebuilder"
)

// Progress reports checkout phase progress. phase is one of "move",
// "remove", "write". done/total are 1-based/total counts within that
// phase. A nil Progress is a no-op; the pterm progress bar in
// internal/progress, wired in by `caf checkout`, is the only one supplied.
type Progress func(phase string, done, total int)

// ErrMissingMoveSource reports that a MovedFrom node's paired source path
// is absent from the working directory at apply time.
type ErrMissingMoveSource struct {
	Path string
}

func (e *ErrMissingMoveSource) Error() string {
	return fmt.Sprintf("checkout: move source %q is missing", e.Path)
}

// Apply mutates workDir so that it matches targetRoot, following forest
// (the diff from the working directory's current state to targetRoot).
// The caller is responsible for the clean-working-directory precondition
// (§4.E); Apply does not check it.
func Apply(store objectstore.Store, cache *treebuilder.Cache, forest []*diffengine.Node, workDir string, targetRoot objectstore.Tree, onProgress Progress) error {
	var moves, removals, writes, emptyDirs []*diffengine.Node
	collectMoves(forest, &moves)
	collectRemovalsWritesAndDirs(forest, &removals, &writes, &emptyDirs)

	if err := applyMoves(moves, workDir, onProgress); err != nil {
		return err
	}
	if err := applyRemovals(removals, workDir, onProgress); err != nil {
		return err
	}
	if err := applyDirs(emptyDirs, workDir); err != nil {
		return err
	}
	if err := applyWrites(store, cache, writes, workDir, targetRoot, onProgress); err != nil {
		return err
	}
	return nil
}

func depth(path string) int {
	return strings.Count(path, "/") + 1
}

// collectMoves walks the entire forest (including inside Removed subtrees,
// where a file can be moved out just before its containing directory is
// deleted) and gathers every MovedFrom node. MovedTo's position is read
// off its Pair when the move is applied.
func collectMoves(nodes []*diffengine.Node, out *[]*diffengine.Node) {
	for _, n := range nodes {
		if n.Kind == diffengine.MovedFrom {
			*out = append(*out, n)
		}
		if len(n.Children) > 0 {
			collectMoves(n.Children, out)
		}
	}
}

// collectRemovalsWritesAndDirs walks the forest once, gathering: Removed
// nodes (without descending further into them — a single recursive delete
// covers their whole subtree, so nested descendants are never collected as
// separate removal actions); Added/Modified leaves as writes; and empty
// Added directories, which need an explicit mkdir since they contribute no
// leaf writes of their own.
func collectRemovalsWritesAndDirs(nodes []*diffengine.Node, removals, writes, emptyDirs *[]*diffengine.Node) {
	for _, n := range nodes {
		switch n.Kind {
		case diffengine.Removed:
			*removals = append(*removals, n)
		case diffengine.Added:
			if n.Type == objectstore.RecordTree {
				if len(n.Children) == 0 {
					*emptyDirs = append(*emptyDirs, n)
				} else {
					collectRemovalsWritesAndDirs(n.Children, removals, writes, emptyDirs)
				}
			} else {
				*writes = append(*writes, n)
			}
		case diffengine.Modified:
			if len(n.Children) > 0 {
				collectRemovalsWritesAndDirs(n.Children, removals, writes, emptyDirs)
			} else {
				*writes = append(*writes, n)
			}
		case diffengine.MovedFrom, diffengine.MovedTo:
			// handled by collectMoves
		}
	}
}

func applyMoves(moves []*diffengine.Node, workDir string, onProgress Progress) error {
	sort.Slice(moves, func(i, j int) bool { return depth(moves[i].Path) < depth(moves[j].Path) })

	for i, n := range moves {
		if onProgress != nil {
			onProgress("move", i+1, len(moves))
		}
		srcPath := n.Pair.Path
		destPath := n.Path
		srcAbs := filepath.Join(workDir, filepath.FromSlash(srcPath))
		destAbs := filepath.Join(workDir, filepath.FromSlash(destPath))

		if _, err := os.Lstat(srcAbs); err != nil {
			return &ErrMissingMoveSource{Path: srcPath}
		}
		if err := os.MkdirAll(filepath.Dir(destAbs), 0o755); err != nil {
			return fmt.Errorf("checkout: mkdir for move destination %q: %w", destPath, err)
		}
		if err := os.Rename(srcAbs, destAbs); err != nil {
			return fmt.Errorf("checkout: move %q -> %q: %w", srcPath, destPath, err)
		}
	}
	return nil
}

func applyRemovals(removals []*diffengine.Node, workDir string, onProgress Progress) error {
	sort.Slice(removals, func(i, j int) bool { return depth(removals[i].Path) > depth(removals[j].Path) })

	for i, n := range removals {
		if onProgress != nil {
			onProgress("remove", i+1, len(removals))
		}
		abs := filepath.Join(workDir, filepath.FromSlash(n.Path))
		if _, err := os.Lstat(abs); err != nil {
			if os.IsNotExist(err) {
				continue // moved out earlier, or already gone
			}
			return fmt.Errorf("checkout: stat %q: %w", n.Path, err)
		}
		if err := os.RemoveAll(abs); err != nil {
			return fmt.Errorf("checkout: remove %q: %w", n.Path, err)
		}
	}
	return nil
}

func applyDirs(dirs []*diffengine.Node, workDir string) error {
	for _, n := range dirs {
		abs := filepath.Join(workDir, filepath.FromSlash(n.Path))
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fmt.Errorf("checkout: mkdir %q: %w", n.Path, err)
		}
	}
	return nil
}

func applyWrites(store objectstore.Store, cache *treebuilder.Cache, writes []*diffengine.Node, workDir string, targetRoot objectstore.Tree, onProgress Progress) error {
	sort.Slice(writes, func(i, j int) bool { return depth(writes[i].Path) < depth(writes[j].Path) })

	for i, n := range writes {
		if onProgress != nil {
			onProgress("write", i+1, len(writes))
		}

		abs := filepath.Join(workDir, filepath.FromSlash(n.Path))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("checkout: mkdir parent of %q: %w", n.Path, err)
		}

		targetHash := n.Hash
		targetType := n.Type
		if n.Kind == diffengine.Modified {
			rec, ok, err := treebuilder.Lookup(store, cache, targetRoot, n.Path)
			if err != nil {
				return fmt.Errorf("checkout: resolve target for %q: %w", n.Path, err)
			}
			if !ok {
				return fmt.Errorf("checkout: %q modified but absent from target tree", n.Path)
			}
			targetHash = rec.Hash
			targetType = rec.Type

			if err := clearConflictingObject(abs, n, targetType); err != nil {
				return err
			}
		}

		if targetType == objectstore.RecordTree {
			if err := materializeTree(store, abs, targetHash); err != nil {
				return fmt.Errorf("checkout: materialize %q: %w", n.Path, err)
			}
			continue
		}

		if err := writeBlob(store, abs, targetHash); err != nil {
			return fmt.Errorf("checkout: write %q: %w", n.Path, err)
		}
	}
	return nil
}

// materializeTree recursively writes the full contents of the tree stored
// at treeHash into abs. A Modified node only ever carries its own path and
// its old hash (the target hash is looked up in targetRoot) — unlike Added, whose subtree already
// appears as child nodes in the forest — so a BLOB->TREE type swap (S2) has
// no Added descendants to walk; this is the only way its new directory's
// contents ever reach disk.
func materializeTree(store objectstore.Store, abs string, treeHash hash.Hash) error {
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("mkdir %q: %w", abs, err)
	}
	tree, err := objectstore.GetTree(store, treeHash)
	if err != nil {
		return fmt.Errorf("load tree %s: %w", treeHash, err)
	}
	for _, rec := range tree.Entries {
		childAbs := filepath.Join(abs, rec.Name)
		if rec.Type == objectstore.RecordTree {
			if err := materializeTree(store, childAbs, rec.Hash); err != nil {
				return err
			}
			continue
		}
		if err := writeBlob(store, childAbs, rec.Hash); err != nil {
			return fmt.Errorf("write %q: %w", childAbs, err)
		}
	}
	return nil
}

// clearConflictingObject removes whatever currently occupies path when a
// Modified node's old type differs from its new type (a type swap, S2) —
// the applier must remove the conflicting object before writing the new one.
func clearConflictingObject(abs string, n *diffengine.Node, newType objectstore.RecordType) error {
	oldType := n.Type
	if n.OldType != "" {
		oldType = n.OldType
	}
	if oldType == newType {
		return nil
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("checkout: clear conflicting object at %q: %w", n.Path, err)
	}
	return nil
}

// writeBlob copies the blob's content from the reader store.Open returns
// into the destination file with io.Copy. With FileStore and S3Store that
// reader is over a payload already held fully in memory, so a blob must fit
// in memory during checkout.
func writeBlob(store objectstore.Store, abs string, h hash.Hash) error {
	rc, err := store.Open(h)
	if err != nil {
		return fmt.Errorf("open object %s: %w", h, err)
	}
	defer rc.Close()

	f, err := os.Create(abs) //nolint:gosec // destination path is derived from a validated tree-relative checkout path
	if err != nil {
		return fmt.Errorf("create %q: %w", abs, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("copy object %s to %q: %w", h, abs, err)
	}
	return nil
}
