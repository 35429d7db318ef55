package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/kdriss/caf/internal/repo"
	"github.com/kdriss/caf/internal/termcolor"
)

func runTag(r *repo.Repo, args []string, _ *termcolor.Writer) int {
	if len(args) == 0 {
		return listTags(r)
	}

	switch args[0] {
	case "add":
		if len(args) != 4 {
			fmt.Fprintln(os.Stderr, "usage: caf tag add <name> <target> <message>")
			return 1
		}
		target, err := r.ResolveRef(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		author := os.Getenv("CAF_AUTHOR")
		if author == "" {
			author = "unknown"
		}
		if _, err := r.CreateTag(args[1], author, args[3], target); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		return 0
	case "delete", "rm":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: caf tag delete <name>")
			return 1
		}
		if err := r.DeleteTag(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 128
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "error: unknown tag subcommand: %q\n", args[0])
		return 1
	}
}

func listTags(r *repo.Repo) int {
	tags, err := r.Tags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Println(name)
	}
	return 0
}
