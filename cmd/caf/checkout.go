package main

import (
	"fmt"
	"os"

	"github.com/kdriss/caf/internal/progress"
	"github.com/kdriss/caf/internal/repo"
)

func runCheckout(r *repo.Repo, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: caf checkout <commit|branch|tag>")
		return 1
	}

	bar := progress.NewBar()
	defer bar.Done()

	if err := r.Checkout(args[0], bar.Reporter()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	return 0
}
