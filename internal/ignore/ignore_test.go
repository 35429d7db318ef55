package ignore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMatchBasenameUnanchored(t *testing.T) {
	m := New()
	m.rules = []rule{{pat: pattern{text: "*.log"}}}
	if !m.Match("deep/nested/debug.log", false) {
		t.Fatal("want *.log to match nested debug.log")
	}
	if m.Match("deep/nested/debug.txt", false) {
		t.Fatal("want *.log to not match debug.txt")
	}
}

func TestMatchAnchoredOnlyAtBase(t *testing.T) {
	m := New()
	m.rules = []rule{{pat: pattern{text: "build", anchored: true}}}
	if !m.Match("build", true) {
		t.Fatal("anchored pattern should match at base")
	}
	if m.Match("sub/build", true) {
		t.Fatal("anchored pattern should not match nested occurrence")
	}
}

func TestMatchDirOnly(t *testing.T) {
	m := New()
	m.rules = []rule{{pat: pattern{text: "tmp", dirOnly: true}}}
	if !m.Match("tmp", true) {
		t.Fatal("dirOnly pattern should match a directory named tmp")
	}
	if m.Match("tmp", false) {
		t.Fatal("dirOnly pattern should not match a file named tmp")
	}
}

func TestNegationReincludes(t *testing.T) {
	m := New()
	m.rules = []rule{
		{pat: pattern{text: "*.log"}},
		{pat: pattern{text: "keep.log", negated: true}},
	}
	if m.Match("keep.log", false) {
		t.Fatal("negated later rule should re-include keep.log")
	}
	if !m.Match("other.log", false) {
		t.Fatal("other.log should still be ignored")
	}
}

func TestDoubleStarMiddle(t *testing.T) {
	m := New()
	m.rules = []rule{{pat: pattern{text: "a/**/z", anchored: true}}}
	if !m.Match("a/z", false) {
		t.Fatal("a/**/z should match a/z (zero components)")
	}
	if !m.Match("a/b/c/z", false) {
		t.Fatal("a/**/z should match a/b/c/z")
	}
	if m.Match("a/b/c/y", false) {
		t.Fatal("a/**/z should not match a/b/c/y")
	}
}

func TestLoadScopesAnchoredPatternsToBaseDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src", ".cafignore"), []byte("/generated\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New()
	if err := m.Load(dir, "src/"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !m.Match("src/generated", true) {
		t.Fatal("want src/generated ignored via src/.cafignore's /generated")
	}
	if m.Match("generated", true) {
		t.Fatal("root-level generated should not match a rule scoped to src/")
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	m := New()
	if err := m.Load(t.TempDir(), ""); err != nil {
		t.Fatalf("Load on missing .cafignore: %v", err)
	}
}

func TestParseLineSkipsCommentsAndBlank(t *testing.T) {
	cases := []string{"", "   ", "# comment"}
	for _, c := range cases {
		if _, ok := parseLine(c); ok {
			t.Fatalf("parseLine(%q) should be skipped", c)
		}
	}
}

func TestParseLineLeadingDoubleStarNotAnchored(t *testing.T) {
	pat, ok := parseLine("**/foo")
	if !ok {
		t.Fatal("expected valid pattern")
	}
	if pat.anchored {
		t.Fatal("**/foo should not be anchored")
	}
}
