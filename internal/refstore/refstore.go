// Package refstore reads and writes the small ref files that name branches,
// tags, and HEAD. It only understands the file format (§6 of the spec); it
// has no notion of commits, tags-as-objects, or cycle detection — that
// transitive resolution lives one layer up, in internal/treebuilder and
// internal/repo, which are the only callers with enough context (the object
// store, to peel an annotated tag) to finish the walk.
package refstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kdriss/caf/internal/hash"
)

const (
	headsNamespace = "heads"
	tagsNamespace  = "tags"
	symPrefix      = "ref: "
)

// Ref is a single ref file's content: either a direct hash, or a symbolic
// pointer to another path within the refs namespace.
type Ref struct {
	// Sym, when non-empty, is the path (relative to the refs namespace
	// root, e.g. "heads/main") this ref points at.
	Sym string
	// Hash is the direct target hash; meaningful only when Sym == "".
	Hash hash.Hash
}

// IsSymbolic reports whether r is a symbolic ref.
func (r Ref) IsSymbolic() bool { return r.Sym != "" }

// Store is a file-backed ref namespace rooted at dir (the repository's
// metadata directory, e.g. ".caf").
type Store struct {
	dir string
}

// New opens a ref Store rooted at dir. It does not require dir to already
// contain a refs/ subdirectory; Init creates the layout.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Init lays out refs/heads, refs/tags, and HEAD as a symbolic ref to
// heads/<defaultBranch>. The branch itself is left unwritten (an empty
// branch — the facade treats "ref file does not exist" as "no commits yet").
func (s *Store) Init(defaultBranch string) error {
	for _, sub := range []string{headsNamespace, tagsNamespace} {
		if err := os.MkdirAll(filepath.Join(s.dir, "refs", sub), 0o755); err != nil {
			return fmt.Errorf("refstore: init refs/%s: %w", sub, err)
		}
	}
	return s.WriteHead(Ref{Sym: headsNamespace + "/" + defaultBranch})
}

// ReadHead reads HEAD's immediate content.
func (s *Store) ReadHead() (Ref, error) {
	return s.readRefFile(filepath.Join(s.dir, "HEAD"))
}

// WriteHead rewrites HEAD atomically.
func (s *Store) WriteHead(r Ref) error {
	return s.writeRefFile(filepath.Join(s.dir, "HEAD"), r)
}

// ReadRef reads the immediate content of the ref at name (e.g.
// "heads/main", "tags/v1.0"). Returns os.ErrNotExist (wrapped) if absent.
func (s *Store) ReadRef(name string) (Ref, error) {
	return s.readRefFile(s.refPath(name))
}

// WriteRef writes (or overwrites) the ref at name.
func (s *Store) WriteRef(name string, r Ref) error {
	path := s.refPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("refstore: mkdir for %s: %w", name, err)
	}
	return s.writeRefFile(path, r)
}

// DeleteRef removes the ref file at name. Missing is not an error.
func (s *Store) DeleteRef(name string) error {
	if err := os.Remove(s.refPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("refstore: delete %s: %w", name, err)
	}
	return nil
}

// Exists reports whether a ref file exists at name.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.refPath(name))
	return err == nil
}

// ListBranches returns every ref under refs/heads with its direct target
// hash. A symbolic ref under refs/heads makes it return an error instead;
// the repo facade never writes one, since branches are always direct.
func (s *Store) ListBranches() (map[string]hash.Hash, error) {
	return s.listNamespace(headsNamespace)
}

// ListTags returns every ref under refs/tags (these point at Tag objects,
// not commits directly — the repo facade peels them).
func (s *Store) ListTags() (map[string]hash.Hash, error) {
	return s.listNamespace(tagsNamespace)
}

func (s *Store) listNamespace(namespace string) (map[string]hash.Hash, error) {
	dir := filepath.Join(s.dir, "refs", namespace)
	result := make(map[string]hash.Hash)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("refstore: list refs/%s: %w", namespace, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		ref, err := s.readRefFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("refstore: read refs/%s/%s: %w", namespace, name, err)
		}
		if ref.IsSymbolic() {
			return nil, fmt.Errorf("refstore: refs/%s/%s is symbolic, want a direct hash", namespace, name)
		}
		result[name] = ref.Hash
	}
	return result, nil
}

func (s *Store) refPath(name string) string {
	return filepath.Join(s.dir, "refs", filepath.FromSlash(name))
}

func (s *Store) readRefFile(path string) (Ref, error) {
	//nolint:gosec // G304: path is built from repository-controlled ref namespace segments
	content, err := os.ReadFile(path)
	if err != nil {
		return Ref{}, err
	}
	line := strings.TrimSpace(string(content))
	if strings.HasPrefix(line, symPrefix) {
		return Ref{Sym: strings.TrimPrefix(line, symPrefix)}, nil
	}
	h, err := hash.Parse(line)
	if err != nil {
		return Ref{}, fmt.Errorf("refstore: invalid ref content in %s: %w", path, err)
	}
	return Ref{Hash: h}, nil
}

// writeRefFile writes r atomically: write to a uniquely-named temp file in
// the same directory, then rename over the target. The UUID suffix avoids
// two racing writers to the *same new ref name* colliding on one temp path;
// it does not make concurrent ref mutation itself safe — the refs namespace
// still requires external serialization per the spec's concurrency model.
func (s *Store) writeRefFile(path string, r Ref) error {
	var line string
	if r.IsSymbolic() {
		line = symPrefix + r.Sym + "\n"
	} else {
		line = string(r.Hash) + "\n"
	}

	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, []byte(line), 0o644); err != nil {
		return fmt.Errorf("refstore: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("refstore: finalize %s: %w", path, err)
	}
	return nil
}
