package treebuilder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kdriss/caf/internal/objectstore"
	"github.com/kdriss/caf/internal/refstore"
)

func newStore(t *testing.T) *objectstore.FileStore {
	t.Helper()
	s, err := objectstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestResolveDirIsOrderIndependent(t *testing.T) {
	store := newStore(t)
	dirA := writeTree(t, map[string]string{"b.txt": "b", "a.txt": "a", "sub/c.txt": "c"})

	_, h1, err := ResolveDir(context.Background(), store, dirA, ".caf", NewCache())
	if err != nil {
		t.Fatalf("ResolveDir: %v", err)
	}

	dirB := writeTree(t, map[string]string{"a.txt": "a", "sub/c.txt": "c", "b.txt": "b"})
	_, h2, err := ResolveDir(context.Background(), store, dirB, ".caf", NewCache())
	if err != nil {
		t.Fatalf("ResolveDir: %v", err)
	}

	if h1 != h2 {
		t.Fatalf("hashes differ for identical content in different creation order: %q vs %q", h1, h2)
	}
}

func TestResolveDirSkipsMetaDir(t *testing.T) {
	store := newStore(t)
	dir := writeTree(t, map[string]string{"a.txt": "a", ".caf/objects/x": "internal"})

	tree, _, err := ResolveDir(context.Background(), store, dir, ".caf", NewCache())
	if err != nil {
		t.Fatalf("ResolveDir: %v", err)
	}
	if _, ok := tree.Lookup(".caf"); ok {
		t.Fatal("metadata directory leaked into root tree")
	}
	if _, ok := tree.Lookup("a.txt"); !ok {
		t.Fatal("a.txt missing from tree")
	}
}

func TestResolveDirHonorsCafignore(t *testing.T) {
	store := newStore(t)
	dir := writeTree(t, map[string]string{
		"keep.txt":     "k",
		"build/out.o":  "binary",
		".cafignore":   "build/\n",
	})

	tree, _, err := ResolveDir(context.Background(), store, dir, ".caf", NewCache())
	if err != nil {
		t.Fatalf("ResolveDir: %v", err)
	}
	if _, ok := tree.Lookup("build"); ok {
		t.Fatal("build/ should have been excluded by .cafignore")
	}
	if _, ok := tree.Lookup("keep.txt"); !ok {
		t.Fatal("keep.txt missing from tree")
	}
}

func TestResolveFollowsSymbolicHeadToBranchToCommit(t *testing.T) {
	store := newStore(t)
	refsDir := t.TempDir()
	refs := refstore.New(refsDir)
	if err := refs.Init("main"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	treeHash, err := objectstore.PutTree(store, objectstore.Tree{})
	if err != nil {
		t.Fatalf("PutTree: %v", err)
	}
	commitHash, err := objectstore.PutCommit(store, objectstore.Commit{Tree: treeHash, Author: "a", Message: "m", Timestamp: 1})
	if err != nil {
		t.Fatalf("PutCommit: %v", err)
	}
	if err := refs.WriteRef("heads/main", refstore.Ref{Hash: commitHash}); err != nil {
		t.Fatalf("WriteRef: %v", err)
	}

	_, gotTreeHash, err := Resolve(store, refs, "HEAD", NewCache())
	if err != nil {
		t.Fatalf("Resolve(HEAD): %v", err)
	}
	if gotTreeHash != treeHash {
		t.Fatalf("Resolve(HEAD) tree = %q, want %q", gotTreeHash, treeHash)
	}
}

func TestResolvePeelsAnnotatedTag(t *testing.T) {
	store := newStore(t)
	refs := refstore.New(t.TempDir())
	if err := refs.Init("main"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	treeHash, _ := objectstore.PutTree(store, objectstore.Tree{})
	commitHash, _ := objectstore.PutCommit(store, objectstore.Commit{Tree: treeHash, Author: "a", Message: "m", Timestamp: 1})
	tagHash, err := objectstore.PutTag(store, objectstore.Tag{Name: "v1", Commit: commitHash, Author: "a", Message: "release", Timestamp: 2})
	if err != nil {
		t.Fatalf("PutTag: %v", err)
	}
	if err := refs.WriteRef("tags/v1", refstore.Ref{Hash: tagHash}); err != nil {
		t.Fatalf("WriteRef: %v", err)
	}

	_, gotTreeHash, err := Resolve(store, refs, "tags/v1", NewCache())
	if err != nil {
		t.Fatalf("Resolve(tags/v1): %v", err)
	}
	if gotTreeHash != treeHash {
		t.Fatalf("Resolve(tags/v1) tree = %q, want %q", gotTreeHash, treeHash)
	}
}

func TestResolveDetectsRefCycle(t *testing.T) {
	refs := refstore.New(t.TempDir())
	if err := refs.Init("main"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := refs.WriteRef("heads/a", refstore.Ref{Sym: "heads/b"}); err != nil {
		t.Fatal(err)
	}
	if err := refs.WriteRef("heads/b", refstore.Ref{Sym: "heads/a"}); err != nil {
		t.Fatal(err)
	}

	store := newStore(t)
	_, _, err := Resolve(store, refs, "heads/a", NewCache())
	if err == nil {
		t.Fatal("Resolve on cyclic refs: want error, got nil")
	}
}

func TestLookupDescendsNestedPath(t *testing.T) {
	store := newStore(t)
	cache := NewCache()
	dir := writeTree(t, map[string]string{"sub/deep/file.txt": "content"})

	tree, _, err := ResolveDir(context.Background(), store, dir, ".caf", cache)
	if err != nil {
		t.Fatalf("ResolveDir: %v", err)
	}

	rec, ok, err := Lookup(store, cache, tree, "sub/deep/file.txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("Lookup did not find sub/deep/file.txt")
	}
	if rec.Type != objectstore.RecordBlob {
		t.Fatalf("Lookup record type = %v, want blob", rec.Type)
	}
}

func TestLookupMissingPathReturnsNotOk(t *testing.T) {
	store := newStore(t)
	cache := NewCache()
	dir := writeTree(t, map[string]string{"a.txt": "a"})
	tree, _, err := ResolveDir(context.Background(), store, dir, ".caf", cache)
	if err != nil {
		t.Fatalf("ResolveDir: %v", err)
	}
	_, ok, err := Lookup(store, cache, tree, "missing.txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatal("Lookup(missing.txt) = ok, want not found")
	}
}
