package objectstore

import "github.com/kdriss/caf/internal/hash"

// PutBlob stores raw file content and returns its hash.
func PutBlob(s Store, data []byte) (hash.Hash, error) {
	return s.Put(KindBlob, data)
}

// GetBlob retrieves raw file content by hash.
func GetBlob(s Store, h hash.Hash) ([]byte, error) {
	kind, data, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	if kind != KindBlob {
		return nil, &ErrWrongKind{Hash: h, Want: KindBlob, Got: kind}
	}
	return data, nil
}

// PutTree encodes and stores a Tree, returning its hash.
func PutTree(s Store, t Tree) (hash.Hash, error) {
	return s.Put(KindTree, encodeTree(t))
}

// GetTree retrieves and decodes a Tree by hash.
func GetTree(s Store, h hash.Hash) (Tree, error) {
	kind, data, err := s.Get(h)
	if err != nil {
		return Tree{}, err
	}
	if kind != KindTree {
		return Tree{}, &ErrWrongKind{Hash: h, Want: KindTree, Got: kind}
	}
	return decodeTree(data)
}

// PutCommit encodes and stores a Commit, returning its hash.
func PutCommit(s Store, c Commit) (hash.Hash, error) {
	return s.Put(KindCommit, encodeCommit(c))
}

// GetCommit retrieves and decodes a Commit by hash.
func GetCommit(s Store, h hash.Hash) (Commit, error) {
	kind, data, err := s.Get(h)
	if err != nil {
		return Commit{}, err
	}
	if kind != KindCommit {
		return Commit{}, &ErrWrongKind{Hash: h, Want: KindCommit, Got: kind}
	}
	return decodeCommit(data)
}

// PutTag encodes and stores a Tag, returning its hash.
func PutTag(s Store, t Tag) (hash.Hash, error) {
	return s.Put(KindTag, encodeTag(t))
}

// GetTag retrieves and decodes a Tag by hash.
func GetTag(s Store, h hash.Hash) (Tag, error) {
	kind, data, err := s.Get(h)
	if err != nil {
		return Tag{}, err
	}
	if kind != KindTag {
		return Tag{}, &ErrWrongKind{Hash: h, Want: KindTag, Got: kind}
	}
	return decodeTag(data)
}
