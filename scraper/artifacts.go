package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/models"
)

// artifacts writes debugging aids. Every write is best effort: a failure is
// logged and never replaces the error being reported.
type artifacts struct {
	dir      string
	keepHTML bool
}

func newArtifacts(cfg config.ScraperConfig) *artifacts {
	return &artifacts{dir: cfg.ArtifactDir, keepHTML: cfg.SaveDebugHTML}
}

func (a *artifacts) name(target models.ScrapeTarget, suffix string) string {
	return fmt.Sprintf("%s-%s%s", target.Profile(), target.Key()[:12], suffix)
}

// saveHTML writes the final page HTML when debug HTML is enabled.
func (a *artifacts) saveHTML(target models.ScrapeTarget, html string) {
	if !a.keepHTML {
		return
	}
	dir := a.dir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, a.name(target, ".html"))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		slog.Warn("could not save debug html", "path", path, "error", err)
		return
	}
	slog.Info("debug html saved", "path", path)
}

// screenshot captures the page after a failed attempt. A request that is
// already done gets no screenshot so its session is released at once.
func (a *artifacts) screenshot(ctx context.Context, sess Session, target models.ScrapeTarget, attempt int) {
	if a.dir == "" || ctx.Err() != nil {
		return
	}
	shotCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	png, err := sess.Screenshot(shotCtx)
	if err != nil {
		slog.Debug("failure screenshot unavailable", "target", target.ID(), "error", err)
		return
	}
	path := filepath.Join(a.dir, a.name(target, fmt.Sprintf("-attempt%d.png", attempt)))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		slog.Warn("could not save failure screenshot", "path", path, "error", err)
		return
	}
	slog.Info("failure screenshot saved", "path", path)
}
