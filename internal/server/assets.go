package server

import (
	"embed"
	"io/fs"
)

//go:embed all:web
var embeddedFS embed.FS

// WebFS returns the embedded static dashboard: a single page that polls
// /api/status once and then follows /api/ws for live updates.
func WebFS() (fs.FS, error) {
	webFS, err := fs.Sub(embeddedFS, "web")
	if err != nil {
		return nil, err
	}
	return webFS, nil
}
