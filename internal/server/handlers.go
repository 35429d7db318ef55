package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/kdriss/caf/internal/repo"
)

// buildHeadInfo summarizes HEAD's current state: the commit it resolves to,
// whether it's symbolic or detached, and repository-wide counts the
// dashboard's header bar displays.
func buildHeadInfo(r *repo.Repo) (*HeadInfo, error) {
	ref, err := r.HeadRef()
	if err != nil {
		return nil, err
	}
	commit, err := r.HeadCommit()
	if err != nil {
		return nil, err
	}
	branches, err := r.Branches()
	if err != nil {
		return nil, err
	}
	tags, err := r.Tags()
	if err != nil {
		return nil, err
	}

	info := &HeadInfo{
		Hash:        commit.String(),
		IsDetached:  !ref.IsSymbolic(),
		BranchCount: len(branches),
		TagCount:    len(tags),
	}
	if ref.IsSymbolic() {
		info.Ref = ref.Sym
		info.BranchName = strings.TrimPrefix(ref.Sym, "heads/")
	}
	if !commit.IsZero() {
		log, err := r.Log(commit)
		if err != nil {
			return nil, err
		}
		info.CommitCount = len(log)
	}
	return info, nil
}

// writeJSON encodes v as the response body, logging (not erroring twice to
// the client — headers may already be sent) if encoding fails.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

// handleConfig serves small dashboard configuration: nothing secret, just
// enough for the frontend to know what it's talking to.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"workDir": s.session.Repo().WorkDir(),
	})
}

// handleStatus serves the current status summary: the diff between HEAD and
// the live working directory, plus HEAD info, per §6's /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := s.session.Repo().Status()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	head, err := buildHeadInfo(s.session.Repo())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, UpdateMessage{Status: flattenStatus(status), Head: head})
}

// logEntryJSON is the wire shape of a single commit in /api/log's response.
type logEntryJSON struct {
	Hash      string `json:"hash"`
	Parent    string `json:"parent"`
	Author    string `json:"author"`
	Message   string `json:"message"`
	MessageHTML string `json:"messageHtml"`
	Timestamp int64  `json:"timestamp"`
}

// handleLog serves commit history starting from ?ref= (default "HEAD"),
// capped at ?limit= entries (default 50), per §6's /api/log. Commit messages
// are rendered to HTML via goldmark for the dashboard's log view.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ref := r.URL.Query().Get("ref")
	if ref == "" {
		ref = "HEAD"
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	repository := s.session.Repo()
	tip, err := repository.ResolveRef(ref)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	entries, err := repository.Log(tip)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]logEntryJSON, len(entries))
	for i, e := range entries {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(e.Commit.Message), &buf); err != nil {
			buf.Reset()
			buf.WriteString(e.Commit.Message)
		}
		out[i] = logEntryJSON{
			Hash:        e.Hash.String(),
			Parent:      e.Commit.Parent.String(),
			Author:      e.Commit.Author,
			Message:     e.Commit.Message,
			MessageHTML: buf.String(),
			Timestamp:   e.Commit.Timestamp,
		}
	}

	s.writeJSON(w, out)
}

// handleDiff serves the structural diff between two endpoints (?from=,
// ?to=), per §6's /api/diff. Results are cached by "from:to" since the
// dashboard commonly re-requests the same pair while a user studies it.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		http.Error(w, "missing 'from' or 'to' query parameter", http.StatusBadRequest)
		return
	}

	cacheKey := from + ":" + to
	if cached, ok := s.session.diffCache.Get(cacheKey); ok {
		s.writeJSON(w, flattenStatus(cached))
		return
	}

	forest, err := s.session.Repo().Diff(from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.session.diffCache.Put(cacheKey, forest)
	s.writeJSON(w, flattenStatus(forest))
}
