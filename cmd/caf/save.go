package main

import (
	"fmt"
	"os"

	"github.com/kdriss/caf/internal/progress"
	"github.com/kdriss/caf/internal/repo"
)

func runSaveFile(r *repo.Repo, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: caf save-file <path>")
		return 1
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	blobHash, err := r.SaveFile(args[0], content)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	fmt.Println(blobHash)
	return 0
}

func runSaveDir(r *repo.Repo, _ []string) int {
	spin := progress.New("scanning working directory")
	spin.Start()
	treeHash, err := r.SaveDir()
	spin.Stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	fmt.Println(treeHash)
	return 0
}
