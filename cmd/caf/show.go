package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/kdriss/caf/internal/objectstore"
	"github.com/kdriss/caf/internal/repo"
	"github.com/kdriss/caf/internal/termcolor"
)

func runShow(r *repo.Repo, args []string, cw *termcolor.Writer) int {
	stat := false
	rev := "HEAD"

	for _, arg := range args {
		if arg == "--stat" {
			stat = true
		} else {
			rev = arg
		}
	}

	commitHash, err := r.ResolveRef(rev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	commit, err := objectstore.GetCommit(r.Store(), commitHash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	decorations, err := buildDecorations(r, cw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	decor := ""
	if d, ok := decorations[commitHash]; ok {
		decor = " " + cw.Yellow("(") + d + cw.Yellow(")")
	}

	fmt.Printf("%s %s%s\n", cw.Yellow("commit"), cw.Yellow(string(commitHash)), decor)
	fmt.Printf("Author: %s\n", commit.Author)
	fmt.Printf("Date:   %s\n", dateFormat(commit.Timestamp))
	fmt.Println()
	for _, line := range strings.Split(commit.Message, "\n") {
		fmt.Printf("    %s\n", line)
	}

	forest, err := r.Diff(string(commit.Parent), string(commitHash))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	fmt.Println()
	if stat {
		return printDiffStat(forest)
	}
	return printUnifiedDiff(r, string(commitHash), forest, cw)
}
