package server

import (
	"github.com/kdriss/caf/internal/diffengine"
	"github.com/kdriss/caf/internal/objectstore"
)

// FileStatus reports a single changed path in the working tree.
type FileStatus struct {
	Path string `json:"path"`
	Kind string `json:"kind"` // "added", "removed", "modified", "moved"
	From string `json:"from,omitempty"` // moved: the path it moved from
}

// WorkingTreeStatus is the flattened, leaf-level view of a diff forest, the
// shape the dashboard's status panel and /api/status actually want — one row
// per changed file rather than the nested tree-of-Added/Removed/Modified
// nodes the diff engine produces.
type WorkingTreeStatus struct {
	Files []FileStatus `json:"files"`
}

// flattenStatus walks a diff forest and lists every changed leaf (blob)
// path, plus each type-swapped path as one "modified" entry, pairing
// MovedFrom/MovedTo nodes into a single "moved" entry keyed by the node's
// own pointer identity so each pair is reported once regardless of which
// half the walk reaches first. A moved directory is one "moved" entry at
// its own path.
func flattenStatus(forest []*diffengine.Node) *WorkingTreeStatus {
	result := &WorkingTreeStatus{Files: []FileStatus{}}
	seen := make(map[*diffengine.Node]bool)

	var walk func(n *diffengine.Node)
	walk = func(n *diffengine.Node) {
		if seen[n] {
			return
		}

		switch n.Kind {
		case diffengine.MovedFrom, diffengine.MovedTo:
			seen[n] = true
			if n.Pair != nil {
				seen[n.Pair] = true
			}
			from, to := n.Path, n.Path
			if n.Kind == diffengine.MovedFrom {
				if n.Pair != nil {
					from = n.Pair.Path
				}
			} else if n.Pair != nil {
				to = n.Pair.Path
			}
			result.Files = append(result.Files, FileStatus{Path: to, From: from, Kind: "moved"})

		case diffengine.Added, diffengine.Removed, diffengine.Modified:
			if n.Type == objectstore.RecordBlob || n.OldType != "" {
				result.Files = append(result.Files, FileStatus{Path: n.Path, Kind: string(n.Kind)})
				return
			}
			for _, c := range n.Children {
				walk(c)
			}
		}
	}

	for _, n := range forest {
		walk(n)
	}
	return result
}
