package objectstore

import (
	"testing"

	"github.com/kdriss/caf/internal/hash"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func TestPutGetBlobRoundTrip(t *testing.T) {
	s := newTestStore(t)
	h, err := PutBlob(s, []byte("precious"))
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	got, err := GetBlob(s, h)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if string(got) != "precious" {
		t.Fatalf("GetBlob = %q, want %q", got, "precious")
	}
}

func TestPutIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	h1, err := PutBlob(s, []byte("same"))
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	h2, err := PutBlob(s, []byte("same"))
	if err != nil {
		t.Fatalf("PutBlob (second): %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ across idempotent Put: %q vs %q", h1, h2)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Get(hash.New([]byte("never stored")))
	if err == nil {
		t.Fatal("Get on missing hash: want error, got nil")
	}
	var nf *ErrNotFound
	if !asErrNotFound(err, &nf) {
		t.Fatalf("Get error = %v, want *ErrNotFound", err)
	}
}

func asErrNotFound(err error, target **ErrNotFound) bool {
	if e, ok := err.(*ErrNotFound); ok {
		*target = e
		return true
	}
	return false
}

func TestGetWrongKind(t *testing.T) {
	s := newTestStore(t)
	h, err := PutBlob(s, []byte("x"))
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	if _, err := GetTree(s, h); err == nil {
		t.Fatal("GetTree on a blob hash: want error, got nil")
	}
}

func TestTreeRoundTripIsOrderIndependent(t *testing.T) {
	s := newTestStore(t)
	a := Tree{Entries: []TreeRecord{
		{Name: "b", Type: RecordBlob, Hash: hash.New([]byte("b"))},
		{Name: "a", Type: RecordBlob, Hash: hash.New([]byte("a"))},
	}}
	b := Tree{Entries: []TreeRecord{
		{Name: "a", Type: RecordBlob, Hash: hash.New([]byte("a"))},
		{Name: "b", Type: RecordBlob, Hash: hash.New([]byte("b"))},
	}}
	ha, err := PutTree(s, a)
	if err != nil {
		t.Fatalf("PutTree(a): %v", err)
	}
	hb, err := PutTree(s, b)
	if err != nil {
		t.Fatalf("PutTree(b): %v", err)
	}
	if ha != hb {
		t.Fatalf("tree hash depends on insertion order: %q vs %q", ha, hb)
	}

	got, err := GetTree(s, ha)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("GetTree returned %d entries, want 2", len(got.Entries))
	}
}

func TestCommitRoundTrip(t *testing.T) {
	s := newTestStore(t)
	treeHash, err := PutTree(s, Tree{})
	if err != nil {
		t.Fatalf("PutTree: %v", err)
	}
	c := Commit{Tree: treeHash, Author: "a@example.com", Message: "hello\nworld", Timestamp: 1234}
	h, err := PutCommit(s, c)
	if err != nil {
		t.Fatalf("PutCommit: %v", err)
	}
	got, err := GetCommit(s, h)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if got.Tree != treeHash || got.Author != c.Author || got.Message != c.Message || got.Timestamp != c.Timestamp {
		t.Fatalf("GetCommit round-trip mismatch: got %+v, want %+v", got, c)
	}
	if !got.Parent.IsZero() {
		t.Fatalf("root commit parent = %q, want zero", got.Parent)
	}
}

func TestCommitWithParentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	treeHash, _ := PutTree(s, Tree{})
	parent := hash.New([]byte("parent-commit"))
	h, err := PutCommit(s, Commit{Tree: treeHash, Parent: parent, Author: "a", Message: "m", Timestamp: 1})
	if err != nil {
		t.Fatalf("PutCommit: %v", err)
	}
	got, err := GetCommit(s, h)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if got.Parent != parent {
		t.Fatalf("Parent = %q, want %q", got.Parent, parent)
	}
}

func TestTagRoundTrip(t *testing.T) {
	s := newTestStore(t)
	commitHash := hash.New([]byte("some-commit"))
	tag := Tag{Name: "v1.0", Commit: commitHash, Author: "a", Message: "release", Timestamp: 99}
	h, err := PutTag(s, tag)
	if err != nil {
		t.Fatalf("PutTag: %v", err)
	}
	got, err := GetTag(s, h)
	if err != nil {
		t.Fatalf("GetTag: %v", err)
	}
	if got != tag {
		t.Fatalf("GetTag round-trip = %+v, want %+v", got, tag)
	}
}

func TestOpenStreamsBlob(t *testing.T) {
	s := newTestStore(t)
	h, err := PutBlob(s, []byte("streamed content"))
	if err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	rc, err := s.Open(h)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	buf := make([]byte, 64)
	n, _ := rc.Read(buf)
	if string(buf[:n]) != "streamed content" {
		t.Fatalf("Open stream content = %q", buf[:n])
	}
}

func TestHas(t *testing.T) {
	s := newTestStore(t)
	h, _ := PutBlob(s, []byte("exists"))
	if !s.Has(h) {
		t.Fatal("Has(stored hash) = false, want true")
	}
	if s.Has(hash.New([]byte("never stored"))) {
		t.Fatal("Has(unstored hash) = true, want false")
	}
}
