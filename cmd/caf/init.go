package main

import (
	"fmt"
	"os"

	"github.com/kdriss/caf/internal/repo"
	"github.com/kdriss/caf/internal/treebuilder"
)

func runInit(args []string) int {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	} else if len(args) > 1 {
		fmt.Fprintln(os.Stderr, "usage: caf init [dir]")
		return 1
	}

	metaDirName := os.Getenv("CAF_DIR")
	if metaDirName == "" {
		metaDirName = treebuilder.DefaultMetaDirName
	}

	if _, err := repo.Init(dir, metaDirName); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	fmt.Printf("initialized empty repository in %s/%s\n", dir, metaDirName)
	return 0
}
