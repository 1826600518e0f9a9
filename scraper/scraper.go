package scraper

import (
	"context"
	"log/slog"
	"os"

	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/models"
	"github.com/use-agent/tcees/pool"
)

// Scraper fetches pages through a bounded pool of browser sessions and
// retries transient failures. It is safe for concurrent use.
type Scraper struct {
	cfg   config.ScraperConfig
	pool  *pool.Pool[Session]
	debug *artifacts
}

// New creates a Scraper whose sessions come from driver. At most
// poolCfg.Capacity sessions exist at any time.
func New(driver Driver, cfg config.ScraperConfig, poolCfg pool.Config) *Scraper {
	p := pool.New(poolCfg,
		func(ctx context.Context) (Session, error) {
			return driver.NewSession(ctx)
		},
		func(sess Session) {
			if err := sess.Close(); err != nil {
				slog.Warn("scraper: closing session failed", "error", err)
			}
		},
	)
	return &Scraper{
		cfg:   cfg,
		pool:  p,
		debug: newArtifacts(cfg),
	}
}

// Fetch retrieves the raw fields of target from the page described by
// schema. Transient failures are retried with a fresh session after an
// exponential backoff; the error is always a *models.ScrapeError carrying
// the number of attempts made.
func (s *Scraper) Fetch(ctx context.Context, target models.ScrapeTarget, schema *models.Schema) (*models.RawExtraction, error) {
	if err := schema.CheckTarget(target); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err)
	}
	url, err := schema.ResolveURL(target)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "cannot build target url", err)
	}
	if schema.UploadSelector != "" {
		if _, err := os.Stat(target.FilePath()); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeTargetNotFound, "file to upload not found", err)
		}
	}

	attempts := 1 + max(0, s.cfg.Retries)
	delays := newBackoff(s.cfg.InitialBackoff, s.cfg.MaxBackoff, s.cfg.Jitter)
	mismatches := 0

	var last *models.ScrapeError
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, se := s.attempt(ctx, target, schema, url, attempt)
		if se == nil {
			raw.Attempts = attempt
			return raw, nil
		}
		se.Attempts = attempt
		last = se

		retry := se.Transient()
		if se.Code == models.ErrCodeStructuralMismatch {
			// A second mismatch confirms the page really changed.
			mismatches++
			retry = mismatches < 2
		}

		slog.Warn("scrape attempt failed",
			"target", target.ID(),
			"profile", schema.Name,
			"attempt", attempt,
			"of", attempts,
			"code", se.Code,
			"hint", se.Hint,
			"retry", retry && attempt < attempts,
			"error", se.Err,
		)

		if !retry || attempt == attempts || ctx.Err() != nil {
			break
		}
		if err := sleep(ctx, delays.Next()); err != nil {
			break
		}
	}
	return nil, last
}

// Stats reports the session pool usage.
func (s *Scraper) Stats() models.PoolStats {
	return s.pool.Stats()
}

// Close kills idle sessions. Sessions in use die when their fetch ends.
func (s *Scraper) Close() {
	slog.Info("scraper shutting down: closing idle sessions")
	s.pool.Close()
}
