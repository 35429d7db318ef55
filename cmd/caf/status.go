package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/kdriss/caf/internal/diffengine"
	"github.com/kdriss/caf/internal/repo"
	"github.com/kdriss/caf/internal/termcolor"
)

// statusLine is one flattened leaf change, the CLI's counterpart to the
// dashboard's FileStatus. There is no index here to split into staged and
// unstaged halves — a commit snapshots the whole working directory
// directly — so status is always a single flat list against HEAD.
type statusLine struct {
	path string
	code byte // 'A', 'D', 'M', 'R' (renamed/moved)
	from string
}

func runStatus(r *repo.Repo, args []string, cw *termcolor.Writer) int {
	porcelain := false
	for _, arg := range args {
		if arg == "-s" || arg == "--porcelain" {
			porcelain = true
		}
	}

	forest, err := r.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	lines := flattenStatusLines(forest)
	sort.Slice(lines, func(i, j int) bool { return lines[i].path < lines[j].path })

	if porcelain {
		return printPorcelain(lines)
	}
	return printLongStatus(r, lines, cw)
}

func flattenStatusLines(forest []*diffengine.Node) []statusLine {
	var out []statusLine
	seen := make(map[*diffengine.Node]bool)
	var walk func(n *diffengine.Node)
	walk = func(n *diffengine.Node) {
		if seen[n] {
			return
		}
		seen[n] = true
		switch n.Kind {
		case diffengine.Added:
			if len(n.Children) == 0 {
				out = append(out, statusLine{path: n.Path, code: 'A'})
				return
			}
			for _, c := range n.Children {
				walk(c)
			}
		case diffengine.Removed:
			if len(n.Children) == 0 {
				out = append(out, statusLine{path: n.Path, code: 'D'})
				return
			}
			for _, c := range n.Children {
				walk(c)
			}
		case diffengine.Modified:
			out = append(out, statusLine{path: n.Path, code: 'M'})
		case diffengine.MovedFrom:
			seen[n.Pair] = true
			out = append(out, statusLine{path: n.Path, code: 'R', from: n.Pair.Path})
		case diffengine.MovedTo:
			seen[n.Pair] = true
			out = append(out, statusLine{path: n.Pair.Path, code: 'R', from: n.Path})
		}
	}
	for _, n := range forest {
		walk(n)
	}
	return out
}

func printPorcelain(lines []statusLine) int {
	for _, l := range lines {
		if l.code == 'R' {
			fmt.Printf("R  %s -> %s\n", l.from, l.path)
			continue
		}
		fmt.Printf("%c  %s\n", l.code, l.path)
	}
	return 0
}

func printLongStatus(r *repo.Repo, lines []statusLine, cw *termcolor.Writer) int {
	headRef, err := r.HeadRef()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	if headRef.IsSymbolic() {
		fmt.Printf("On branch %s\n", branchDisplayName(headRef.Sym))
	} else if headRef.Hash.IsZero() {
		fmt.Println("On branch main\n\nNo commits yet")
	} else {
		fmt.Printf("HEAD detached at %s\n", headRef.Hash.Short())
	}

	if len(lines) == 0 {
		fmt.Println("nothing to commit, working tree clean")
		return 0
	}

	fmt.Println("Changes since HEAD:")
	for _, l := range lines {
		switch l.code {
		case 'A':
			fmt.Printf("\t%s %s\n", cw.Green("new file:"), l.path)
		case 'D':
			fmt.Printf("\t%s  %s\n", cw.Red("deleted:"), l.path)
		case 'M':
			fmt.Printf("\t%s %s\n", cw.Yellow("modified:"), l.path)
		case 'R':
			fmt.Printf("\t%s    %s -> %s\n", cw.Cyan("moved:"), l.from, l.path)
		}
	}
	return 0
}
