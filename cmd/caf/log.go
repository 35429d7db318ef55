package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kdriss/caf/internal/hash"
	"github.com/kdriss/caf/internal/repo"
	"github.com/kdriss/caf/internal/termcolor"
)

func runLog(r *repo.Repo, args []string, cw *termcolor.Writer) int {
	maxCount := 0
	oneline := false

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--oneline":
			oneline = true
		case args[i] == "-n" && i+1 < len(args):
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: invalid -n value: %q\n", args[i])
				return 1
			}
			maxCount = n
		case strings.HasPrefix(args[i], "-n"):
			n, err := strconv.Atoi(args[i][2:])
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: invalid -n value: %q\n", args[i][2:])
				return 1
			}
			maxCount = n
		default:
			fmt.Fprintf(os.Stderr, "error: unknown option: %q\n", args[i])
			return 1
		}
	}

	tip, err := r.HeadCommit()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	if tip.IsZero() {
		return 0
	}

	entries, err := r.Log(tip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	if maxCount > 0 && len(entries) > maxCount {
		entries = entries[:maxCount]
	}

	decorations, err := buildDecorations(r, cw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	for i, e := range entries {
		decor := ""
		if d, ok := decorations[e.Hash]; ok {
			decor = " " + cw.Yellow("(") + d + cw.Yellow(")")
		}

		if oneline {
			fmt.Printf("%s%s %s\n", cw.Yellow(e.Hash.Short()), decor, firstLine(e.Commit.Message))
			continue
		}

		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("%s %s%s\n", cw.Yellow("commit"), cw.Yellow(string(e.Hash)), decor)
		fmt.Printf("Author: %s\n", e.Commit.Author)
		fmt.Printf("Date:   %s\n", dateFormat(e.Commit.Timestamp))
		fmt.Println()
		for _, line := range strings.Split(e.Commit.Message, "\n") {
			fmt.Printf("    %s\n", line)
		}
	}

	return 0
}

// buildDecorations groups branch/tag names and the HEAD arrow by the commit
// hash they point at, the way git log --decorate does.
func buildDecorations(r *repo.Repo, cw *termcolor.Writer) (map[hash.Hash]string, error) {
	branches, err := r.Branches()
	if err != nil {
		return nil, err
	}
	tags, err := r.Tags()
	if err != nil {
		return nil, err
	}
	headRef, err := r.HeadRef()
	if err != nil {
		return nil, err
	}
	headCommit, err := r.HeadCommit()
	if err != nil {
		return nil, err
	}

	headBranch := ""
	if headRef.IsSymbolic() {
		headBranch = branchDisplayName(headRef.Sym)
	}

	type decoInfo struct {
		headArrow string
		branches  []string
		tags      []string
	}
	byHash := make(map[hash.Hash]*decoInfo)
	getInfo := func(h hash.Hash) *decoInfo {
		if info, ok := byHash[h]; ok {
			return info
		}
		info := &decoInfo{}
		byHash[h] = info
		return info
	}

	for name, h := range branches {
		info := getInfo(h)
		if name == headBranch {
			info.headArrow = cw.BoldCyan("HEAD -> ") + cw.Green(name)
		} else {
			info.branches = append(info.branches, cw.Green(name))
		}
	}
	for name := range tags {
		h, err := r.ResolveRef(name)
		if err != nil {
			continue
		}
		info := getInfo(h)
		info.tags = append(info.tags, cw.Yellow("tag: "+name))
	}
	if !headRef.IsSymbolic() && !headCommit.IsZero() {
		info := getInfo(headCommit)
		info.headArrow = cw.BoldCyan("HEAD")
	}

	result := make(map[hash.Hash]string)
	for h, info := range byHash {
		var parts []string
		if info.headArrow != "" {
			parts = append(parts, info.headArrow)
		}
		parts = append(parts, info.branches...)
		parts = append(parts, info.tags...)
		if len(parts) > 0 {
			result[h] = strings.Join(parts, cw.Yellow(", "))
		}
	}
	return result, nil
}
