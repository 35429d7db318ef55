package server

import (
	"path"
	"testing"

	"github.com/kdriss/caf/internal/diffengine"
	"github.com/kdriss/caf/internal/objectstore"
)

func blobNode(kind diffengine.Kind, p string) *diffengine.Node {
	return &diffengine.Node{Kind: kind, Name: path.Base(p), Path: p, Type: objectstore.RecordBlob}
}

func TestFlattenStatusLeafNodes(t *testing.T) {
	forest := []*diffengine.Node{
		blobNode(diffengine.Added, "new.txt"),
		blobNode(diffengine.Removed, "gone.txt"),
		blobNode(diffengine.Modified, "changed.txt"),
	}

	got := flattenStatus(forest)
	if len(got.Files) != 3 {
		t.Fatalf("Files = %+v, want 3 entries", got.Files)
	}
	want := map[string]string{"new.txt": "added", "gone.txt": "removed", "changed.txt": "modified"}
	for _, f := range got.Files {
		if want[f.Path] != f.Kind {
			t.Errorf("%s kind = %s, want %s", f.Path, f.Kind, want[f.Path])
		}
	}
}

func TestFlattenStatusRecursesIntoAddedDirectory(t *testing.T) {
	child := blobNode(diffengine.Added, "dir/a.txt")
	dir := &diffengine.Node{Kind: diffengine.Added, Name: "dir", Path: "dir", Type: objectstore.RecordTree, Children: []*diffengine.Node{child}}

	got := flattenStatus([]*diffengine.Node{dir})
	if len(got.Files) != 1 || got.Files[0].Path != "dir/a.txt" {
		t.Fatalf("Files = %+v, want one entry at dir/a.txt", got.Files)
	}
}

func TestFlattenStatusPairsMoveIntoOneEntry(t *testing.T) {
	to := &diffengine.Node{Kind: diffengine.MovedFrom, Name: "new.txt", Path: "moved/new.txt", Type: objectstore.RecordBlob}
	from := &diffengine.Node{Kind: diffengine.MovedTo, Name: "old.txt", Path: "old.txt", Type: objectstore.RecordBlob}
	to.Pair = from
	from.Pair = to

	got := flattenStatus([]*diffengine.Node{to, from})
	if len(got.Files) != 1 {
		t.Fatalf("Files = %+v, want a single moved entry", got.Files)
	}
	f := got.Files[0]
	if f.Kind != "moved" || f.Path != "moved/new.txt" || f.From != "old.txt" {
		t.Fatalf("got %+v, want {Path: moved/new.txt, From: old.txt, Kind: moved}", f)
	}
}
