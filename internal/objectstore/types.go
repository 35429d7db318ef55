// Package objectstore is the content-addressed persistence layer: it encodes
// and decodes blob, tree, commit, and tag records and stores them by hash.
// This is the "plumbing" the spec treats as an external contract; the core
// diff and checkout engines only ever see the types defined here, never the
// on-disk framing.
package objectstore

import (
	"fmt"

	"github.com/kdriss/caf/internal/hash"
)

// Kind identifies the record type stored under a given hash.
type Kind string

const (
	KindBlob   Kind = "blob"
	KindTree   Kind = "tree"
	KindCommit Kind = "commit"
	KindTag    Kind = "tag"
)

// RecordType distinguishes a TreeRecord's target: another tree, or a blob.
type RecordType string

const (
	RecordBlob RecordType = "blob"
	RecordTree RecordType = "tree"
)

// TreeRecord is a single named entry within a Tree.
type TreeRecord struct {
	Name string
	Type RecordType
	Hash hash.Hash
}

// Tree is an immutable directory snapshot: a set of uniquely-named records.
// Entries may be in any order when a caller builds a Tree; the encoder sorts
// a copy by Name so hashing is deterministic, and trees read back from the
// store come out sorted.
type Tree struct {
	Entries []TreeRecord
}

// Lookup returns the record named name, if any.
func (t *Tree) Lookup(name string) (TreeRecord, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeRecord{}, false
}

// Commit links a root tree, metadata, and an optional parent.
type Commit struct {
	Tree      hash.Hash
	Parent    hash.Hash // Zero if this is a root commit
	Author    string
	Message   string
	Timestamp int64 // unix seconds
}

// Tag is an annotated pointer to a commit.
type Tag struct {
	Name      string
	Commit    hash.Hash
	Author    string
	Message   string
	Timestamp int64
}

// ErrNotFound is returned by Get/GetBlob/GetTree/... when no object with the
// requested hash exists in the store.
type ErrNotFound struct {
	Hash hash.Hash
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("objectstore: object not found: %s", e.Hash)
}

// ErrWrongKind is returned when an object exists but is not the kind the
// caller asked for (e.g. GetTree on a hash that names a blob).
type ErrWrongKind struct {
	Hash hash.Hash
	Want Kind
	Got  Kind
}

func (e *ErrWrongKind) Error() string {
	return fmt.Sprintf("objectstore: object %s is a %s, not a %s", e.Hash, e.Got, e.Want)
}

// Store is the content-addressed persistence contract. Implementations must
// make Put idempotent: storing identical content twice is a no-op after the
// first successful write, since content defines the hash.
type Store interface {
	// Put stores data under its content hash and returns that hash.
	Put(kind Kind, data []byte) (hash.Hash, error)
	// Get retrieves the raw payload and kind for h.
	Get(h hash.Hash) (kind Kind, data []byte, err error)
	// Has reports whether an object with hash h is present.
	Has(h hash.Hash) bool
	// Open returns a reader over the payload of h; used by the checkout
	// engine's blob writer. FileStore and S3Store both read the whole
	// payload into memory before returning the reader.
	Open(h hash.Hash) (ReadCloser, error)
}

// ReadCloser is the minimal streaming contract Open returns.
type ReadCloser interface {
	Read(p []byte) (int, error)
	Close() error
}
