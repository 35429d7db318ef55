package refstore

import (
	"testing"

	"github.com/kdriss/caf/internal/hash"
)

func TestInitLaysOutHeadSymbolicToDefaultBranch(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Init("main"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	head, err := s.ReadHead()
	if err != nil {
		t.Fatalf("ReadHead: %v", err)
	}
	if !head.IsSymbolic() || head.Sym != "heads/main" {
		t.Fatalf("HEAD = %+v, want symbolic heads/main", head)
	}
}

func TestWriteReadRefRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Init("main"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	h := hash.New([]byte("commit-1"))
	if err := s.WriteRef("heads/main", Ref{Hash: h}); err != nil {
		t.Fatalf("WriteRef: %v", err)
	}
	got, err := s.ReadRef("heads/main")
	if err != nil {
		t.Fatalf("ReadRef: %v", err)
	}
	if got.IsSymbolic() || got.Hash != h {
		t.Fatalf("ReadRef = %+v, want direct %q", got, h)
	}
}

func TestReadMissingRefIsNotExist(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Init("main"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := s.ReadRef("heads/nonexistent"); err == nil {
		t.Fatal("ReadRef(missing): want error, got nil")
	}
}

func TestListBranchesReturnsDirectHashes(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Init("main"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	h1 := hash.New([]byte("c1"))
	h2 := hash.New([]byte("c2"))
	if err := s.WriteRef("heads/zeta", Ref{Hash: h1}); err != nil {
		t.Fatalf("WriteRef zeta: %v", err)
	}
	if err := s.WriteRef("heads/alpha", Ref{Hash: h2}); err != nil {
		t.Fatalf("WriteRef alpha: %v", err)
	}
	branches, err := s.ListBranches()
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if len(branches) != 2 || branches["zeta"] != h1 || branches["alpha"] != h2 {
		t.Fatalf("ListBranches = %v", branches)
	}
}

func TestDeleteRefMissingIsNotAnError(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Init("main"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.DeleteRef("tags/nonexistent"); err != nil {
		t.Fatalf("DeleteRef(missing): %v", err)
	}
}

func TestExists(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Init("main"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if s.Exists("heads/main") {
		t.Fatal("Exists(heads/main) = true before any commit; branch ref file shouldn't exist yet")
	}
	if err := s.WriteRef("heads/main", Ref{Hash: hash.New([]byte("x"))}); err != nil {
		t.Fatalf("WriteRef: %v", err)
	}
	if !s.Exists("heads/main") {
		t.Fatal("Exists(heads/main) = false after WriteRef")
	}
}

func TestListTagsEmptyWhenNamespaceMissing(t *testing.T) {
	s := New(t.TempDir())
	tags, err := s.ListTags()
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 0 {
		t.Fatalf("ListTags on uninitialized store = %v, want empty", tags)
	}
}
