package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kdriss/caf/internal/diffengine"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Init(t.TempDir(), ".caf")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

func write(t *testing.T, r *Repo, relPath, content string) {
	t.Helper()
	if _, err := r.SaveFile(relPath, []byte(content)); err != nil {
		t.Fatalf("SaveFile %q: %v", relPath, err)
	}
}

func remove(t *testing.T, r *Repo, relPath string) {
	t.Helper()
	if err := os.Remove(filepath.Join(r.WorkDir(), relPath)); err != nil {
		t.Fatalf("remove %q: %v", relPath, err)
	}
}

func read(t *testing.T, r *Repo, relPath string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.WorkDir(), relPath))
	if err != nil {
		t.Fatalf("read %q: %v", relPath, err)
	}
	return string(data)
}

func mustNotExist(t *testing.T, r *Repo, relPath string) {
	t.Helper()
	if _, err := os.Lstat(filepath.Join(r.WorkDir(), relPath)); !os.IsNotExist(err) {
		t.Fatalf("want %q absent", relPath)
	}
}

func TestInitLaysOutSymbolicHeadToMainWithNoCommits(t *testing.T) {
	r := newTestRepo(t)
	ref, err := r.HeadRef()
	if err != nil {
		t.Fatalf("HeadRef: %v", err)
	}
	if !ref.IsSymbolic() || ref.Sym != "heads/main" {
		t.Fatalf("HEAD = %+v, want symbolic heads/main", ref)
	}
	h, err := r.HeadCommit()
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}
	if !h.IsZero() {
		t.Fatalf("HeadCommit = %s, want zero for a fresh repo", h)
	}
}

func TestCommitAdvancesSymbolicHead(t *testing.T) {
	r := newTestRepo(t)
	write(t, r, "a.txt", "v1")

	c1, err := r.Commit("alice", "first")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	head, err := r.HeadCommit()
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}
	if head != c1 {
		t.Fatalf("HeadCommit = %s, want %s", head, c1)
	}

	write(t, r, "a.txt", "v2")
	c2, err := r.Commit("alice", "second")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	log, err := r.Log(c2)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(log) != 2 || log[0].Hash != c2 || log[1].Hash != c1 {
		t.Fatalf("Log = %+v, want [c2, c1]", log)
	}
}

func TestStatusReflectsUncommittedChanges(t *testing.T) {
	r := newTestRepo(t)
	write(t, r, "a.txt", "v1")
	if _, err := r.Commit("alice", "first"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	status, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status) != 0 {
		t.Fatalf("Status after commit = %+v, want clean", status)
	}

	write(t, r, "b.txt", "new")
	status, err = r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status) != 1 || status[0].Kind != diffengine.Added {
		t.Fatalf("Status = %+v, want one Added node", status)
	}
}

// TestCheckoutRoundTripMixedOperations mirrors scenario S1.
func TestCheckoutRoundTripMixedOperations(t *testing.T) {
	r := newTestRepo(t)
	write(t, r, "modify_me", "v1")
	write(t, r, "delete_me", "gone")
	write(t, r, "move_me", "m")
	c1, err := r.Commit("alice", "c1")
	if err != nil {
		t.Fatalf("Commit c1: %v", err)
	}

	write(t, r, "modify_me", "v2")
	remove(t, r, "delete_me")
	moveTo := filepath.Join(r.WorkDir(), "moved")
	if err := os.Rename(filepath.Join(r.WorkDir(), "move_me"), moveTo); err != nil {
		t.Fatalf("rename: %v", err)
	}
	write(t, r, "add_me", "new")
	c2, err := r.Commit("alice", "c2")
	if err != nil {
		t.Fatalf("Commit c2: %v", err)
	}

	if err := r.Checkout(c1.String(), nil); err != nil {
		t.Fatalf("Checkout(c1): %v", err)
	}
	if got := read(t, r, "modify_me"); got != "v1" {
		t.Fatalf("modify_me = %q, want v1", got)
	}
	if got := read(t, r, "delete_me"); got != "gone" {
		t.Fatalf("delete_me = %q, want gone", got)
	}
	if got := read(t, r, "move_me"); got != "m" {
		t.Fatalf("move_me = %q, want m", got)
	}
	mustNotExist(t, r, "add_me")

	if err := r.Checkout(c2.String(), nil); err != nil {
		t.Fatalf("Checkout(c2): %v", err)
	}
	if got := read(t, r, "modify_me"); got != "v2" {
		t.Fatalf("modify_me = %q, want v2", got)
	}
	mustNotExist(t, r, "delete_me")
	mustNotExist(t, r, "move_me")
	if got := read(t, r, "moved"); got != "m" {
		t.Fatalf("moved = %q, want m", got)
	}
	if got := read(t, r, "add_me"); got != "new" {
		t.Fatalf("add_me = %q, want new", got)
	}
}

// TestCheckoutDirtyWorkingDirectoryIsRejected covers invariant 6.
func TestCheckoutDirtyWorkingDirectoryIsRejected(t *testing.T) {
	r := newTestRepo(t)
	write(t, r, "a.txt", "v1")
	c1, err := r.Commit("alice", "c1")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	write(t, r, "a.txt", "v1-dirty-but-uncommitted")

	err = r.Checkout(c1.String(), nil)
	if err == nil {
		t.Fatal("want error checking out with a dirty working directory")
	}
}

// TestCheckoutBranchTakesPrecedenceOverTag mirrors scenario S5.
func TestCheckoutBranchTakesPrecedenceOverTag(t *testing.T) {
	r := newTestRepo(t)
	write(t, r, "a.txt", "v1")
	c1, err := r.Commit("alice", "c1")
	if err != nil {
		t.Fatalf("Commit c1: %v", err)
	}
	if err := r.AddBranch("release", c1); err != nil {
		t.Fatalf("AddBranch: %v", err)
	}

	write(t, r, "a.txt", "v2")
	c2, err := r.Commit("alice", "c2")
	if err != nil {
		t.Fatalf("Commit c2: %v", err)
	}
	if _, err := r.CreateTag("release", "alice", "tag msg", c2); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	if err := r.Checkout("release", nil); err != nil {
		t.Fatalf("Checkout(release): %v", err)
	}
	if got := read(t, r, "a.txt"); got != "v1" {
		t.Fatalf("a.txt = %q, want v1 (the branch, not the tag)", got)
	}
	ref, err := r.HeadRef()
	if err != nil {
		t.Fatalf("HeadRef: %v", err)
	}
	if !ref.IsSymbolic() || ref.Sym != "heads/release" {
		t.Fatalf("HEAD = %+v, want symbolic heads/release", ref)
	}
}

func TestCreateTagRefusesToOverwrite(t *testing.T) {
	r := newTestRepo(t)
	write(t, r, "a.txt", "v1")
	c1, err := r.Commit("alice", "c1")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := r.CreateTag("v1.0", "alice", "first release", c1); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if _, err := r.CreateTag("v1.0", "alice", "again", c1); err == nil {
		t.Fatal("want error creating a tag that already exists")
	}
}

func TestDeleteBranchNotFound(t *testing.T) {
	r := newTestRepo(t)
	if err := r.DeleteBranch("does-not-exist"); err == nil {
		t.Fatal("want error deleting a branch that does not exist")
	}
}
