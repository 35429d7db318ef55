package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/kdriss/caf/internal/cli"
	"github.com/kdriss/caf/internal/repo"
	"github.com/kdriss/caf/internal/termcolor"
	"github.com/kdriss/caf/internal/treebuilder"
)

// Build-time variables set via -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	gf, args := parseGlobalFlags(os.Args[1:])

	// --version is handled before app.Run because "--" prefixed args
	// would be treated as unknown commands by the dispatcher.
	for _, a := range args {
		if a == "--version" {
			printVersion()
			os.Exit(0)
		}
	}

	cw := termcolor.NewWriter(os.Stdout, gf.colorMode)

	app := cli.NewApp("caf", version)
	app.Stderr = os.Stderr

	// r is declared here and assigned after dispatch determines that the
	// matched command needs it (NeedsRepo). Closures capture the pointer
	// variable, which is populated before they execute.
	var r *repo.Repo

	app.Register(&cli.Command{
		Name:    "init",
		Summary: "Create a new repository",
		Usage:   "caf init [dir]",
		Run:     func(args []string) int { return runInit(args) },
	})

	app.Register(&cli.Command{
		Name:      "commit",
		Summary:   "Snapshot the working directory",
		Usage:     "caf commit -m <message>",
		Examples:  []string{"caf commit -m \"first snapshot\""},
		NeedsRepo: true,
		Run:       func(args []string) int { return runCommit(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "status",
		Summary:   "Show working tree status against HEAD",
		Usage:     "caf status [-s|--porcelain]",
		Examples:  []string{"caf status", "caf status --porcelain"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runStatus(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "log",
		Summary:   "Show commit log",
		Usage:     "caf log [--oneline] [-n <count>]",
		Examples:  []string{"caf log", "caf log --oneline -n5"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runLog(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "diff",
		Summary:   "Show diff between two endpoints",
		Usage:     "caf diff [--stat] <from> <to>",
		Examples:  []string{"caf diff HEAD main", "caf diff --stat v1 v2"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runDiff(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "show",
		Summary:   "Show a commit and its diff against its parent",
		Usage:     "caf show [--stat] [<commit>]",
		Examples:  []string{"caf show", "caf show --stat HEAD"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runShow(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "checkout",
		Summary:   "Check out a commit, branch, or tag",
		Usage:     "caf checkout <commit|branch|tag>",
		Examples:  []string{"caf checkout main", "caf checkout HEAD"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runCheckout(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "branch",
		Summary:   "List, add, or delete branches",
		Usage:     "caf branch [add <name> <target>|delete <name>]",
		Examples:  []string{"caf branch", "caf branch add dev HEAD"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runBranch(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "tag",
		Summary:   "List, add, or delete tags",
		Usage:     "caf tag [add <name> <target> <message>|delete <name>]",
		Examples:  []string{"caf tag", "caf tag add v1 HEAD \"first release\""},
		NeedsRepo: true,
		Run:       func(args []string) int { return runTag(r, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "save-file",
		Summary:   "Store a single file as a blob",
		Usage:     "caf save-file <path>",
		NeedsRepo: true,
		Run:       func(args []string) int { return runSaveFile(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "save-dir",
		Summary:   "Snapshot the working directory as a tree",
		Usage:     "caf save-dir",
		NeedsRepo: true,
		Run:       func(args []string) int { return runSaveDir(r, args) },
	})

	app.Register(&cli.Command{
		Name:      "watch",
		Summary:   "Run the live status dashboard",
		Usage:     "caf watch [addr]",
		Examples:  []string{"caf watch", "caf watch 127.0.0.1:8080"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runWatch(r, args) },
	})

	app.Register(&cli.Command{
		Name:    "version",
		Summary: "Show version information",
		Usage:   "caf version",
		Run:     func([]string) int { printVersion(); return 0 },
	})

	// Determine which command will run so we can load the repo only when needed.
	if len(args) > 0 {
		cmd := app.Lookup(args[0])
		if cmd != nil && cmd.NeedsRepo {
			workDir := "."
			metaDirName := os.Getenv("CAF_DIR")
			if metaDirName == "" {
				metaDirName = treebuilder.DefaultMetaDirName
			}
			var err error
			r, err = repo.Open(workDir, metaDirName)
			if err != nil {
				fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
				os.Exit(128)
			}
		}
	}

	os.Exit(app.Run(args, cw))
}

func printVersion() {
	fmt.Printf("caf %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
	fmt.Printf("  go version: %s\n", runtime.Version())
	fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
