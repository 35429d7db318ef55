package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/kdriss/caf/internal/repo"
)

func newTestServer(t *testing.T, r *repo.Repo) *Server {
	t.Helper()
	s := NewServer(r, "127.0.0.1:0", fstest.MapFS{})
	s.session.Start()
	t.Cleanup(s.session.Close)
	return s
}

func writeAndCommit(t *testing.T, r *repo.Repo, path, content string) {
	t.Helper()
	if _, err := r.SaveFile(path, []byte(content)); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if _, err := r.Commit("tester", "commit "+path); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestHandleStatusReportsCleanRepo(t *testing.T) {
	r := newTestRepo(t)
	writeAndCommit(t, r, "a.txt", "v1")
	s := newTestServer(t, r)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	s.handleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var msg UpdateMessage
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msg.Status.Files) != 0 {
		t.Fatalf("Files = %+v, want clean", msg.Status.Files)
	}
	if msg.Head == nil || msg.Head.CommitCount != 1 {
		t.Fatalf("Head = %+v, want CommitCount 1", msg.Head)
	}
}

func TestHandleStatusRejectsNonGet(t *testing.T) {
	r := newTestRepo(t)
	s := newTestServer(t, r)

	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	w := httptest.NewRecorder()
	s.handleStatus(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestHandleLogReturnsCommitsNewestFirst(t *testing.T) {
	r := newTestRepo(t)
	writeAndCommit(t, r, "a.txt", "v1")
	writeAndCommit(t, r, "a.txt", "v2")
	head, err := r.HeadCommit()
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}
	s := newTestServer(t, r)

	req := httptest.NewRequest(http.MethodGet, "/api/log?ref=HEAD", nil)
	w := httptest.NewRecorder()
	s.handleLog(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var entries []logEntryJSON
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want 2", entries)
	}
	if entries[0].Message != "commit a.txt" || entries[0].MessageHTML == "" {
		t.Fatalf("entries[0] = %+v, want rendered message", entries[0])
	}
	if entries[0].Hash != head.String() {
		t.Fatalf("entries[0].Hash = %s, want newest commit %s", entries[0].Hash, head)
	}
}

func TestHandleDiffRequiresFromAndTo(t *testing.T) {
	r := newTestRepo(t)
	s := newTestServer(t, r)

	req := httptest.NewRequest(http.MethodGet, "/api/diff", nil)
	w := httptest.NewRecorder()
	s.handleDiff(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleDiffBetweenTwoCommits(t *testing.T) {
	r := newTestRepo(t)
	writeAndCommit(t, r, "a.txt", "v1")
	c1, err := r.HeadCommit()
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}
	writeAndCommit(t, r, "b.txt", "v2")
	c2, err := r.HeadCommit()
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}
	s := newTestServer(t, r)

	req := httptest.NewRequest(http.MethodGet, "/api/diff?from="+c1.String()+"&to="+c2.String(), nil)
	w := httptest.NewRecorder()
	s.handleDiff(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var status WorkingTreeStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(status.Files) != 1 || status.Files[0].Path != "b.txt" || status.Files[0].Kind != "added" {
		t.Fatalf("Files = %+v, want one added b.txt", status.Files)
	}
}
