package main

import (
	"strings"
	"time"
)

// branchDisplayName strips the "heads/" namespace prefix HEAD's symbolic
// target carries internally, for display purposes only.
func branchDisplayName(symRef string) string {
	return strings.TrimPrefix(symRef, "heads/")
}

// dateFormat formats a commit's unix timestamp the same way git log does.
// Layout: "Mon Jan 2 15:04:05 2006 -0700".
func dateFormat(unix int64) string {
	return time.Unix(unix, 0).Format("Mon Jan 2 15:04:05 2006 -0700")
}

func firstLine(msg string) string {
	for i, r := range msg {
		if r == '\n' {
			return msg[:i]
		}
	}
	return msg
}
