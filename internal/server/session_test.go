package server

import (
	"testing"

	"github.com/kdriss/caf/internal/repo"
)

func newTestRepo(t *testing.T) *repo.Repo {
	t.Helper()
	r, err := repo.Init(t.TempDir(), ".caf")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

func newTestSession(t *testing.T, r *repo.Repo) *RepoSession {
	t.Helper()
	return NewRepoSession(SessionConfig{ID: "test", Repo: r})
}

func TestNewRepoSessionDefaultsCacheSize(t *testing.T) {
	s := newTestSession(t, newTestRepo(t))
	if s.diffCache == nil {
		t.Fatal("diffCache not initialized")
	}
	if s.diffCache.maxSize != defaultCacheSize {
		t.Fatalf("diffCache maxSize = %d, want %d", s.diffCache.maxSize, defaultCacheSize)
	}
}

func TestBroadcastUpdateDropsWhenChannelFull(t *testing.T) {
	s := newTestSession(t, newTestRepo(t))
	for i := 0; i < broadcastChannelSize; i++ {
		s.broadcastUpdate(UpdateMessage{})
	}
	// One more must not block.
	done := make(chan struct{})
	go func() {
		s.broadcastUpdate(UpdateMessage{})
		close(done)
	}()
	<-done
}

func TestNewRepoSessionStartsWithNoClients(t *testing.T) {
	s := newTestSession(t, newTestRepo(t))
	s.clientsMu.RLock()
	initial := len(s.clients)
	s.clientsMu.RUnlock()
	if initial != 0 {
		t.Fatalf("initial client count = %d, want 0", initial)
	}
}
