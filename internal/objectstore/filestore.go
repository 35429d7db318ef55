package objectstore

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zlib"

	"github.com/kdriss/caf/internal/hash"
)

// FileStore is the default Store: loose objects laid out under objectsDir,
// sharded objects/<hash[:2]>/<hash[2:]>, each file a zlib-compressed
// "<kind> <length>\0<payload>" record — the framing the teacher's
// readLooseObjectRaw expects, adapted to this spec's four record kinds.
//
// klauspost/compress/zlib is used in place of the standard library's
// compress/zlib for the same API with a faster implementation.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore opens (and, if necessary, creates) a loose-object store
// rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: slog.Default()}, nil
}

func (fs *FileStore) path(h hash.Hash) string {
	d, f := h.ShardPath()
	return filepath.Join(fs.dir, d, f)
}

// Put stores data under its content hash. Idempotent: if an object with the
// same hash already exists, Put is a no-op (content equality implies byte
// equality, so there is nothing to reconcile).
func (fs *FileStore) Put(kind Kind, data []byte) (hash.Hash, error) {
	h := hash.New(framedPayload(kind, data))
	path := fs.path(h)
	if _, err := os.Stat(path); err == nil {
		return h, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: mkdir for %s: %w", h, err)
	}

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write(framedPayload(kind, data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("objectstore: compress %s: %w", h, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("objectstore: compress %s: %w", h, err)
	}

	// Write-to-temp-then-rename: the temp name is suffixed with a UUID so
	// two callers racing to write the same new hash never collide on the
	// same temp file (the final rename target is identical either way,
	// and content equality makes the race harmless).
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, compressed.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("objectstore: write %s: %w", h, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("objectstore: finalize %s: %w", h, err)
	}
	return h, nil
}

// Has reports whether an object with hash h is present on disk.
func (fs *FileStore) Has(h hash.Hash) bool {
	_, err := os.Stat(fs.path(h))
	return err == nil
}

// Get reads and decompresses the object named h, returning its kind and raw
// payload (without the framing header).
func (fs *FileStore) Get(h hash.Hash) (Kind, []byte, error) {
	raw, err := fs.readRaw(h)
	if err != nil {
		return "", nil, err
	}
	kind, payload, err := unframe(raw)
	if err != nil {
		return "", nil, fmt.Errorf("objectstore: corrupt object %s: %w", h, err)
	}
	return kind, payload, nil
}

// Open returns a reader over the object's payload, for the checkout
// engine's blob writer. It reads and decompresses the whole object through
// Get first, so the payload is held fully in memory; the reader does not
// stream from disk.
func (fs *FileStore) Open(h hash.Hash) (ReadCloser, error) {
	kind, payload, err := fs.Get(h)
	if err != nil {
		return nil, err
	}
	_ = kind
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (fs *FileStore) readRaw(h hash.Hash) ([]byte, error) {
	path := fs.path(h)
	//nolint:gosec // G304: path is derived from a validated content hash
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ErrNotFound{Hash: h}
		}
		return nil, fmt.Errorf("objectstore: open %s: %w", h, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			fs.logger.Warn("failed to close object file", "hash", h, "error", cerr)
		}
	}()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("objectstore: decompress %s: %w", h, err)
	}
	defer func() {
		if cerr := zr.Close(); cerr != nil {
			fs.logger.Warn("failed to close zlib reader", "hash", h, "error", cerr)
		}
	}()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %s: %w", h, err)
	}
	return data, nil
}

// framedPayload prepends the "<kind> <length>\0" header the rest of this
// package relies on to recover the kind of an object without a side table.
func framedPayload(kind Kind, data []byte) []byte {
	header := fmt.Sprintf("%s %d\x00", kind, len(data))
	out := make([]byte, 0, len(header)+len(data))
	out = append(out, header...)
	out = append(out, data...)
	return out
}

func unframe(raw []byte) (Kind, []byte, error) {
	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return "", nil, fmt.Errorf("missing header separator")
	}
	header := string(raw[:nul])
	payload := raw[nul+1:]

	sp := strings.IndexByte(header, ' ')
	if sp < 0 {
		return "", nil, fmt.Errorf("malformed header %q", header)
	}
	kind := Kind(header[:sp])
	length, err := strconv.Atoi(header[sp+1:])
	if err != nil {
		return "", nil, fmt.Errorf("malformed length in header %q: %w", header, err)
	}
	if length != len(payload) {
		return "", nil, fmt.Errorf("length mismatch: header says %d, got %d", length, len(payload))
	}
	switch kind {
	case KindBlob, KindTree, KindCommit, KindTag:
	default:
		return "", nil, fmt.Errorf("unrecognized object kind %q", kind)
	}
	return kind, payload, nil
}

var _ Store = (*FileStore)(nil)
