package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/kdriss/caf/internal/repo"
)

func runCommit(r *repo.Repo, args []string) int {
	author := os.Getenv("CAF_AUTHOR")
	if author == "" {
		author = "unknown"
	}

	var messageParts []string
	for i := 0; i < len(args); i++ {
		if args[i] == "-m" && i+1 < len(args) {
			i++
			messageParts = append(messageParts, args[i])
			continue
		}
		if val, ok := strings.CutPrefix(args[i], "--author="); ok {
			author = val
			continue
		}
		messageParts = append(messageParts, args[i])
	}

	message := strings.Join(messageParts, " ")
	if message == "" {
		fmt.Fprintln(os.Stderr, "usage: caf commit -m <message>")
		return 1
	}

	commitHash, err := r.Commit(author, message)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	fmt.Println(commitHash)
	return 0
}
