package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kdriss/caf/internal/repo"
	"github.com/kdriss/caf/internal/server"
)

// runWatch starts the live dashboard: a watcher over the working directory
// feeding Repo.Invalidated, and an HTTP+WebSocket server pushing status
// summaries to connected browsers until interrupted.
func runWatch(r *repo.Repo, args []string) int {
	addr := "127.0.0.1:4717"
	if len(args) == 1 {
		addr = args[0]
	} else if len(args) > 1 {
		fmt.Fprintln(os.Stderr, "usage: caf watch [addr]")
		return 1
	}

	if err := r.Watch(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	defer r.Close()

	webFS, err := server.WebFS()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	srv := server.NewServer(r, addr, webFS)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	fmt.Printf("dashboard listening on http://%s\n", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	srv.Shutdown()
	return 0
}
