package objectstore

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kdriss/caf/internal/hash"
)

// encodeTree renders a Tree as sorted "<type> <name>\0<hash>\n" records, so
// the encoded bytes (and therefore the tree's hash) depend only on the set
// of (name, type, hash) triples, never on insertion order.
func encodeTree(t Tree) []byte {
	entries := make([]TreeRecord, len(t.Entries))
	copy(entries, t.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(string(e.Type))
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.WriteString(string(e.Hash))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func decodeTree(data []byte) (Tree, error) {
	var t Tree
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return Tree{}, fmt.Errorf("objectstore: malformed tree record: %q", line)
		}
		typ := RecordType(line[:sp])
		rest := line[sp+1:]
		nul := strings.IndexByte(rest, 0)
		if nul < 0 {
			return Tree{}, fmt.Errorf("objectstore: malformed tree record: missing NUL: %q", line)
		}
		name := rest[:nul]
		h := hash.Hash(rest[nul+1:])
		if typ != RecordBlob && typ != RecordTree {
			return Tree{}, fmt.Errorf("objectstore: malformed tree record: unknown type %q", typ)
		}
		t.Entries = append(t.Entries, TreeRecord{Name: name, Type: typ, Hash: h})
	}
	if err := scanner.Err(); err != nil {
		return Tree{}, fmt.Errorf("objectstore: decode tree: %w", err)
	}
	return t, nil
}

// encodeCommit and encodeTag use a small header-block format: "key: value"
// lines, a blank line, then the free-form message — the same shape the
// teacher's Signature parsing expects from a commit's author line.
func encodeCommit(c Commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree: %s\n", c.Tree)
	if !c.Parent.IsZero() {
		fmt.Fprintf(&buf, "parent: %s\n", c.Parent)
	}
	fmt.Fprintf(&buf, "author: %s\n", c.Author)
	fmt.Fprintf(&buf, "timestamp: %d\n", c.Timestamp)
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

func decodeCommit(data []byte) (Commit, error) {
	headers, message, err := splitHeaderBlock(data)
	if err != nil {
		return Commit{}, err
	}
	var c Commit
	c.Message = message
	for k, v := range headers {
		switch k {
		case "tree":
			c.Tree = hash.Hash(v)
		case "parent":
			c.Parent = hash.Hash(v)
		case "author":
			c.Author = v
		case "timestamp":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Commit{}, fmt.Errorf("objectstore: decode commit: bad timestamp %q: %w", v, err)
			}
			c.Timestamp = ts
		}
	}
	if c.Tree == "" {
		return Commit{}, fmt.Errorf("objectstore: decode commit: missing tree header")
	}
	return c, nil
}

func encodeTag(t Tag) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "name: %s\n", t.Name)
	fmt.Fprintf(&buf, "commit: %s\n", t.Commit)
	fmt.Fprintf(&buf, "author: %s\n", t.Author)
	fmt.Fprintf(&buf, "timestamp: %d\n", t.Timestamp)
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

func decodeTag(data []byte) (Tag, error) {
	headers, message, err := splitHeaderBlock(data)
	if err != nil {
		return Tag{}, err
	}
	var t Tag
	t.Message = message
	for k, v := range headers {
		switch k {
		case "name":
			t.Name = v
		case "commit":
			t.Commit = hash.Hash(v)
		case "author":
			t.Author = v
		case "timestamp":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Tag{}, fmt.Errorf("objectstore: decode tag: bad timestamp %q: %w", v, err)
			}
			t.Timestamp = ts
		}
	}
	if t.Commit == "" {
		return Tag{}, fmt.Errorf("objectstore: decode tag: missing commit header")
	}
	return t, nil
}

// splitHeaderBlock parses the "key: value" lines up to the first blank line,
// returning the remainder as the message.
func splitHeaderBlock(data []byte) (headers map[string]string, message string, err error) {
	headers = make(map[string]string)
	text := string(data)
	idx := strings.Index(text, "\n\n")
	var headerPart string
	if idx < 0 {
		headerPart = text
	} else {
		headerPart = text[:idx]
		message = text[idx+2:]
	}
	for _, line := range strings.Split(headerPart, "\n") {
		if line == "" {
			continue
		}
		sep := strings.Index(line, ": ")
		if sep < 0 {
			return nil, "", fmt.Errorf("objectstore: malformed header line: %q", line)
		}
		headers[line[:sep]] = line[sep+2:]
	}
	return headers, message, nil
}
