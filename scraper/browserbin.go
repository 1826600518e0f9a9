package scraper

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"

	"github.com/go-rod/rod/lib/launcher"
)

var (
	browserNames = []string{
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
		"chrome",
	}
	browserPaths = []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
	}
)

// ErrNoBrowser is returned when no Chrome or Chromium binary can be found.
var ErrNoBrowser = errors.New("scraper: no Chrome or Chromium binary found")

// resolveBrowserBin finds the browser to launch: the configured path, then
// well-known names on PATH, then common install locations, then rod's own
// search list. Nothing is downloaded.
func resolveBrowserBin(configured string) (string, error) {
	if configured != "" {
		if fileExists(configured) {
			return configured, nil
		}
		slog.Warn("configured browser binary not found, searching", "path", configured)
	}
	for _, name := range browserNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	for _, p := range browserPaths {
		if fileExists(p) {
			return p, nil
		}
	}
	if p, ok := launcher.LookPath(); ok {
		return p, nil
	}
	return "", ErrNoBrowser
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
