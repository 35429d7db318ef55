// Package diffengine computes the hierarchical diff forest between two
// resolved trees: the structural counterpart of the teacher's flat
// TreeDiff, generalized to detect whole-subtree and single-file moves by
// content hash instead of reporting every move as a delete-then-add pair.
package diffengine

import (
	"fmt"

	"github.com/kdriss/caf/internal/hash"
	"github.com/kdriss/caf/internal/objectstore"
	"github.com/kdriss/caf/internal/treebuilder"
)

// Kind identifies what a Node represents.
type Kind string

const (
	Added     Kind = "added"
	Removed   Kind = "removed"
	Modified  Kind = "modified"
	MovedFrom Kind = "moved_from"
	MovedTo   Kind = "moved_to"
)

// Node is a single entry in the diff forest. Trees are built in-place: a
// tree-level Added, Removed, or Modified node carries its descendants in
// Children. A MovedFrom/MovedTo node's hash alone identifies its full
// content, so a subtree whose Added/Removed node has collapsed into a move
// is not walked. The one exception: if that subtree was already walked
// before the matching counterpart was found, the moved node keeps the
// descendants recorded during that walk.
type Node struct {
	Kind Kind
	Name string
	Path string // slash-separated, relative to the forest root
	Type objectstore.RecordType

	// Hash is the object's hash for Added/Removed/MovedFrom/MovedTo. For
	// Modified it is the OLD hash; the new hash must be resolved by
	// walking the target tree (§4.D invariant 5) since Modified carries
	// only the old record.
	Hash hash.Hash

	// OldType is set only for Modified leaves where the type itself
	// changed (a type swap): the type the path used to have.
	OldType objectstore.RecordType

	Children []*Node
	Pair     *Node // the reciprocal MovedFrom/MovedTo node, nil otherwise
}

// engine holds the walk-global state shared across every frame of the
// lockstep traversal: the two hash->node maps that let a disappearance at
// one position and an appearance at another collapse into a single move,
// regardless of how far apart in the forest they are.
type engine struct {
	store     objectstore.Store
	cache     *treebuilder.Cache
	potAdded  map[hash.Hash]*Node // hash -> tentative Added node, keyed by content hash
	potRemove map[hash.Hash]*Node // hash -> tentative Removed node
}

type frame struct {
	treeA, treeB *objectstore.Tree // nil means the empty tree (∅)
	path         string
	appendTo     *[]*Node
	owner        *Node // Added/Removed tree node whose subtree this frame walks, else nil
}

// Diff computes the forest of changes needed to turn treeA into treeB.
// Equal root hashes short-circuit to an empty forest.
func Diff(store objectstore.Store, cache *treebuilder.Cache, treeA objectstore.Tree, hashA hash.Hash, treeB objectstore.Tree, hashB hash.Hash) ([]*Node, error) {
	if hashA == hashB {
		return nil, nil
	}

	e := &engine{
		store:     store,
		cache:     cache,
		potAdded:  make(map[hash.Hash]*Node),
		potRemove: make(map[hash.Hash]*Node),
	}

	var forest []*Node
	work := []frame{{treeA: &treeA, treeB: &treeB, path: "", appendTo: &forest}}

	for len(work) > 0 {
		f := work[len(work)-1]
		work = work[:len(work)-1]
		more, err := e.processFrame(f)
		if err != nil {
			return nil, err
		}
		work = append(work, more...)
	}

	return forest, nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// processFrame runs steps 1 and 2 of §4.D's algorithm over a single level
// and returns any child frames it needs recursed into.
func (e *engine) processFrame(f frame) ([]frame, error) {
	if f.owner != nil && f.owner.Pair != nil {
		return nil, nil // owner collapsed into a move; its subtree is not walked
	}

	var entriesA, entriesB []objectstore.TreeRecord
	if f.treeA != nil {
		entriesA = f.treeA.Entries
	}
	if f.treeB != nil {
		entriesB = f.treeB.Entries
	}

	byNameB := make(map[string]objectstore.TreeRecord, len(entriesB))
	for _, r := range entriesB {
		byNameB[r.Name] = r
	}
	inA := make(map[string]bool, len(entriesA))

	var next []frame

	// Step 1: every name in tree_a.
	for _, recA := range entriesA {
		inA[recA.Name] = true
		path := joinPath(f.path, recA.Name)
		recB, presentInB := byNameB[recA.Name]

		if !presentInB {
			if moved, err := e.tryCollapseIntoMove(e.potAdded, recA, path, f.appendTo, true); err != nil {
				return nil, err
			} else if moved {
				continue
			}

			node := &Node{Kind: Removed, Name: recA.Name, Path: path, Type: recA.Type, Hash: recA.Hash}
			*f.appendTo = append(*f.appendTo, node)
			e.potRemove[recA.Hash] = node

			if recA.Type == objectstore.RecordTree {
				sub, err := e.cache.Get(e.store, recA.Hash)
				if err != nil {
					return nil, fmt.Errorf("diffengine: load removed subtree %s at %q: %w", recA.Hash, path, err)
				}
				next = append(next, frame{treeA: &sub, treeB: nil, path: path, appendTo: &node.Children, owner: node})
			}
			continue
		}

		// Present in both.
		if recA.Hash == recB.Hash && recA.Type == recB.Type {
			continue // identical, skip
		}

		if recA.Type == objectstore.RecordTree && recB.Type == objectstore.RecordTree {
			node := &Node{Kind: Modified, Name: recA.Name, Path: path, Type: objectstore.RecordTree, Hash: recA.Hash}
			*f.appendTo = append(*f.appendTo, node)
			subA, err := e.cache.Get(e.store, recA.Hash)
			if err != nil {
				return nil, fmt.Errorf("diffengine: load old subtree %s at %q: %w", recA.Hash, path, err)
			}
			subB, err := e.cache.Get(e.store, recB.Hash)
			if err != nil {
				return nil, fmt.Errorf("diffengine: load new subtree %s at %q: %w", recB.Hash, path, err)
			}
			next = append(next, frame{treeA: &subA, treeB: &subB, path: path, appendTo: &node.Children})
			continue
		}

		// Either a type swap, or both BLOB with different content.
		node := &Node{Kind: Modified, Name: recA.Name, Path: path, Type: recA.Type, Hash: recA.Hash}
		if recA.Type != recB.Type {
			node.OldType = recA.Type
		}
		*f.appendTo = append(*f.appendTo, node)
	}

	// Step 2: every name in tree_b not in tree_a.
	for _, recB := range entriesB {
		if inA[recB.Name] {
			continue
		}
		path := joinPath(f.path, recB.Name)

		if moved, err := e.tryCollapseIntoMove(e.potRemove, recB, path, f.appendTo, false); err != nil {
			return nil, err
		} else if moved {
			continue
		}

		node := &Node{Kind: Added, Name: recB.Name, Path: path, Type: recB.Type, Hash: recB.Hash}
		*f.appendTo = append(*f.appendTo, node)
		e.potAdded[recB.Hash] = node

		if recB.Type == objectstore.RecordTree {
			sub, err := e.cache.Get(e.store, recB.Hash)
			if err != nil {
				return nil, fmt.Errorf("diffengine: load added subtree %s at %q: %w", recB.Hash, path, err)
			}
			next = append(next, frame{treeA: nil, treeB: &sub, path: path, appendTo: &node.Children, owner: node})
		}
	}

	return next, nil
}

// tryCollapseIntoMove checks whether rec's hash has a pending counterpart
// in the other side's map. If so, it converts the counterpart node in
// place (it is still referenced from its original parent's Children slice,
// so mutating it through the pointer is visible there too) and appends the
// reciprocal node at the current position.
//
// counterpartWasAdded is true when rec is a tree_a-only disappearance
// consulting potAdded (a match was recorded as Added and becomes
// MovedFrom); false when rec is a tree_b-only addition consulting
// potRemove (a match was recorded as Removed and becomes MovedTo).
func (e *engine) tryCollapseIntoMove(pending map[hash.Hash]*Node, rec objectstore.TreeRecord, path string, appendTo *[]*Node, counterpartWasAdded bool) (bool, error) {
	counterpart, ok := pending[rec.Hash]
	if !ok {
		return false, nil
	}
	delete(pending, rec.Hash)

	here := &Node{Name: rec.Name, Path: path, Type: rec.Type, Hash: rec.Hash}

	if counterpartWasAdded {
		// counterpart was Added (new location, already correct); it
		// becomes MovedFrom. here is the old location: MovedTo.
		counterpart.Kind = MovedFrom
		here.Kind = MovedTo
	} else {
		// counterpart was Removed (old location, already correct); it
		// becomes MovedTo. here is the new location: MovedFrom.
		counterpart.Kind = MovedTo
		here.Kind = MovedFrom
	}

	counterpart.Pair = here
	here.Pair = counterpart
	*appendTo = append(*appendTo, here)
	return true, nil
}
