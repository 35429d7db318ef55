package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/kdriss/caf/internal/repo"
	"github.com/kdriss/caf/internal/termcolor"
)

func runBranch(r *repo.Repo, args []string, cw *termcolor.Writer) int {
	if len(args) == 0 {
		return listBranches(r, cw)
	}

	switch args[0] {
	case "add":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: caf branch add <name> <target>")
			return 1
		}
		target, err := r.ResolveRef(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		if err := r.AddBranch(args[1], target); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		return 0
	case "delete", "rm":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: caf branch delete <name>")
			return 1
		}
		if err := r.DeleteBranch(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "error: unknown branch subcommand: %q\n", args[0])
		return 1
	}
}

func listBranches(r *repo.Repo, cw *termcolor.Writer) int {
	branches, err := r.Branches()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	names := make([]string, 0, len(branches))
	for name := range branches {
		names = append(names, name)
	}
	sort.Strings(names)

	current := ""
	headRef, err := r.HeadRef()
	if err == nil && headRef.IsSymbolic() {
		current = branchDisplayName(headRef.Sym)
	}

	for _, name := range names {
		if name == current {
			fmt.Printf("* %s\n", cw.Green(name))
		} else {
			fmt.Printf("  %s\n", name)
		}
	}
	return 0
}
