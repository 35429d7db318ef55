package main

import (
	"fmt"
	"os"

	"github.com/kdriss/caf/internal/diffengine"
	"github.com/kdriss/caf/internal/filediff"
	"github.com/kdriss/caf/internal/objectstore"
	"github.com/kdriss/caf/internal/repo"
	"github.com/kdriss/caf/internal/termcolor"
)

func runDiff(r *repo.Repo, args []string, cw *termcolor.Writer) int {
	stat := false
	var revs []string

	for _, arg := range args {
		if arg == "--stat" {
			stat = true
		} else {
			revs = append(revs, arg)
		}
	}

	if len(revs) != 2 {
		fmt.Fprintln(os.Stderr, "usage: caf diff [--stat] <commit1> <commit2>")
		return 1
	}

	forest, err := r.Diff(revs[0], revs[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	if stat {
		return printDiffStat(forest)
	}
	return printUnifiedDiff(r, revs[1], forest, cw)
}

func printUnifiedDiff(r *repo.Repo, toTarget string, forest []*diffengine.Node, cw *termcolor.Writer) int {
	var walk func(n *diffengine.Node)
	seen := make(map[*diffengine.Node]bool)
	walk = func(n *diffengine.Node) {
		if seen[n] {
			return
		}
		seen[n] = true

		switch n.Kind {
		case diffengine.Added, diffengine.Removed, diffengine.Modified:
			if len(n.Children) > 0 {
				for _, c := range n.Children {
					walk(c)
				}
				return
			}
			printLeafDiff(r, toTarget, n, cw)
		case diffengine.MovedFrom:
			seen[n.Pair] = true
			fmt.Println(cw.Bold(fmt.Sprintf("diff --git a/%s b/%s", n.Pair.Path, n.Path)))
			fmt.Println(cw.Bold("similarity index 100%"))
			fmt.Println(cw.Bold(fmt.Sprintf("rename from %s", n.Pair.Path)))
			fmt.Println(cw.Bold(fmt.Sprintf("rename to %s", n.Path)))
		case diffengine.MovedTo:
			seen[n.Pair] = true
			fmt.Println(cw.Bold(fmt.Sprintf("diff --git a/%s b/%s", n.Path, n.Pair.Path)))
			fmt.Println(cw.Bold("similarity index 100%"))
			fmt.Println(cw.Bold(fmt.Sprintf("rename from %s", n.Path)))
			fmt.Println(cw.Bold(fmt.Sprintf("rename to %s", n.Pair.Path)))
		}
	}
	for _, n := range forest {
		walk(n)
	}
	return 0
}

func printLeafDiff(r *repo.Repo, toTarget string, n *diffengine.Node, cw *termcolor.Writer) {
	fmt.Println(cw.Bold(fmt.Sprintf("diff --git a/%s b/%s", n.Path, n.Path)))

	if n.Type != objectstore.RecordBlob {
		fmt.Printf("(tree %s, no content diff)\n", n.Path)
		return
	}

	var oldContent, newContent []byte
	if n.Kind != diffengine.Added {
		data, err := objectstore.GetBlob(r.Store(), n.Hash)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			return
		}
		oldContent = data
	}
	if n.Kind != diffengine.Removed {
		rec, ok, err := r.Lookup(toTarget, n.Path)
		if err != nil || !ok {
			fmt.Fprintf(os.Stderr, "warning: could not resolve %s at %s\n", n.Path, toTarget)
			return
		}
		data, err := objectstore.GetBlob(r.Store(), rec.Hash)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			return
		}
		newContent = data
	}

	switch n.Kind {
	case diffengine.Added:
		fmt.Println(cw.Bold("--- /dev/null"))
		fmt.Println(cw.Bold(fmt.Sprintf("+++ b/%s", n.Path)))
	case diffengine.Removed:
		fmt.Println(cw.Bold(fmt.Sprintf("--- a/%s", n.Path)))
		fmt.Println(cw.Bold("+++ /dev/null"))
	default:
		fmt.Println(cw.Bold(fmt.Sprintf("--- a/%s", n.Path)))
		fmt.Println(cw.Bold(fmt.Sprintf("+++ b/%s", n.Path)))
	}

	fd := filediff.Compute(n.Path, oldContent, newContent, filediff.DefaultContextLines)
	if fd.IsBinary {
		fmt.Println("Binary files differ")
		return
	}
	if fd.Truncated {
		fmt.Println("(diff omitted: file too large)")
		return
	}
	for _, hunk := range fd.Hunks {
		fmt.Println(cw.Cyan(fmt.Sprintf("@@ -%d,%d +%d,%d @@", hunk.OldStart, hunk.OldLines, hunk.NewStart, hunk.NewLines)))
		for _, line := range hunk.Lines {
			switch line.Type {
			case "context":
				fmt.Printf(" %s\n", line.Content)
			case "addition":
				fmt.Println(cw.Green(fmt.Sprintf("+%s", line.Content)))
			case "deletion":
				fmt.Println(cw.Red(fmt.Sprintf("-%s", line.Content)))
			}
		}
	}
}

func printDiffStat(forest []*diffengine.Node) int {
	var names []string
	seen := make(map[*diffengine.Node]bool)
	var walk func(n *diffengine.Node)
	walk = func(n *diffengine.Node) {
		if seen[n] {
			return
		}
		seen[n] = true
		switch n.Kind {
		case diffengine.Added, diffengine.Removed, diffengine.Modified:
			if len(n.Children) > 0 {
				for _, c := range n.Children {
					walk(c)
				}
				return
			}
			names = append(names, n.Path)
		case diffengine.MovedFrom:
			seen[n.Pair] = true
			names = append(names, n.Pair.Path+" => "+n.Path)
		case diffengine.MovedTo:
			seen[n.Pair] = true
			names = append(names, n.Path+" => "+n.Pair.Path)
		}
	}
	for _, n := range forest {
		walk(n)
	}

	if len(names) == 0 {
		return 0
	}
	maxLen := 0
	for _, name := range names {
		if len(name) > maxLen {
			maxLen = len(name)
		}
	}
	for _, name := range names {
		fmt.Printf(" %-*s | changed\n", maxLen, name)
	}
	fmt.Printf(" %d file(s) changed\n", len(names))
	return 0
}
