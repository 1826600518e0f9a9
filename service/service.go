// Package service runs one request through fetch, validation and, for the
// conformity profile, the TCE-ES summary.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/tcees/cache"
	"github.com/use-agent/tcees/models"
	"github.com/use-agent/tcees/tcees"
	"github.com/use-agent/tcees/validator"
)

// Fetcher retrieves the raw fields of a target. *scraper.Scraper
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, target models.ScrapeTarget, schema *models.Schema) (*models.RawExtraction, error)
}

// Outcome is the terminal result of one request.
type Outcome struct {
	State   models.State
	History []models.State

	Record *models.ValidatedRecord
	Report *models.ValidationReport
	Err    *models.ScrapeError

	// Conformity is set for the conformity profile once the portal answered.
	Conformity *models.Conformity

	Attempts    int
	Timing      models.TimingInfo
	CacheStatus string
}

// OK reports whether the record was scraped and validated.
func (o *Outcome) OK() bool { return o.State == models.StateValidated }

// ConformityResult returns the body of a conformity check for the given
// file, stamped with its identity and the time of the check.
func (o *Outcome) ConformityResult(fileName string, size int64, at time.Time) *models.Conformity {
	var c *models.Conformity
	switch {
	case o.Conformity != nil:
		cp := *o.Conformity
		c = &cp
	case o.State == models.StateValidationFailed:
		c = tcees.Unreadable(fileName, size)
	case o.Err != nil:
		c = tcees.Failed(fileName, o.Err)
	default:
		c = tcees.Unreadable(fileName, size)
	}
	tcees.Stamp(c, fileName, size, at)
	return c
}

// Service is safe for concurrent use.
type Service struct {
	fetcher    Fetcher
	schemas    map[string]*models.Schema
	validators map[string]*validator.Validator
	cache      *cache.Cache[*Outcome]
	timeout    time.Duration
}

// New builds a validator for every schema. c may be nil to disable
// caching; timeout bounds a whole request, retries included.
func New(f Fetcher, schemas map[string]*models.Schema, c *cache.Cache[*Outcome], timeout time.Duration) (*Service, error) {
	validators := make(map[string]*validator.Validator, len(schemas))
	for name, schema := range schemas {
		v, err := validator.New(schema)
		if err != nil {
			return nil, fmt.Errorf("service: profile %s: %w", name, err)
		}
		validators[name] = v
	}
	return &Service{
		fetcher:    f,
		schemas:    schemas,
		validators: validators,
		cache:      c,
		timeout:    timeout,
	}, nil
}

// Schema returns the schema of a profile.
func (s *Service) Schema(profile string) (*models.Schema, bool) {
	schema, ok := s.schemas[profile]
	return schema, ok
}

// Process fetches and validates target. A validated outcome younger than
// maxAge is served from the cache; maxAge <= 0 always scrapes. Process
// never returns nil.
func (s *Service) Process(ctx context.Context, target models.ScrapeTarget, maxAge time.Duration) *Outcome {
	start := time.Now()
	key := target.Key()

	cacheStatus := ""
	if s.cache != nil && maxAge > 0 {
		if hit, ok := s.cache.Get(key, maxAge); ok {
			out := *hit
			out.Attempts = 0
			out.CacheStatus = "hit"
			out.Timing = models.TimingInfo{TotalMs: time.Since(start).Milliseconds()}
			return &out
		}
		cacheStatus = "miss"
	}

	out := s.run(ctx, target)
	out.CacheStatus = cacheStatus
	out.Timing.TotalMs = time.Since(start).Milliseconds()

	if s.cache != nil && out.OK() {
		s.cache.Set(key, out)
	}

	slog.Info("request processed",
		"target", target.ID(),
		"profile", target.Profile(),
		"state", out.State,
		"attempts", out.Attempts,
		"cache", cacheStatus,
		"total_ms", out.Timing.TotalMs,
	)
	return out
}

func (s *Service) run(ctx context.Context, target models.ScrapeTarget) *Outcome {
	lc := models.NewLifecycle()
	out := &Outcome{}
	finish := func(to models.State) *Outcome {
		if err := lc.Advance(to); err != nil {
			slog.Error("lifecycle violation", "target", target.ID(), "error", err)
		}
		out.State = lc.State()
		out.History = lc.History()
		return out
	}

	// A request that cannot even start still passes through SCRAPING so
	// every failure ends in a terminal state.
	_ = lc.Advance(models.StateScraping)

	schema, ok := s.schemas[target.Profile()]
	if !ok {
		out.Err = models.NewScrapeError(models.ErrCodeInvalidInput, "unknown profile "+target.Profile(), nil)
		return finish(models.StateScrapeFailed)
	}
	if err := schema.CheckTarget(target); err != nil {
		out.Err = models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err)
		return finish(models.StateScrapeFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	scrapeStart := time.Now()
	raw, err := s.fetcher.Fetch(ctx, target, schema)
	out.Timing.ScrapeMs = time.Since(scrapeStart).Milliseconds()
	if err != nil {
		out.Err = asScrapeError(err)
		out.Attempts = out.Err.Attempts
		return finish(models.StateScrapeFailed)
	}
	out.Attempts = raw.Attempts
	_ = lc.Advance(models.StateExtracted)

	validateStart := time.Now()
	rec, err := s.validators[schema.Name].Validate(raw)
	out.Timing.ValidateMs = time.Since(validateStart).Milliseconds()

	var report *models.ValidationReport
	switch {
	case errors.As(err, &report):
		out.Report = report
		out.Err = models.NewScrapeError(models.ErrCodeValidation, report.Error(), report)
		return finish(models.StateValidationFailed)
	case err != nil:
		out.Err = models.AsScrapeError(err)
		return finish(models.StateValidationFailed)
	}
	out.Record = rec

	if schema.Name == models.ProfileConformity {
		if c, ok := tcees.Summarize(rec, raw.PageText); ok {
			out.Conformity = c
		}
	}
	return finish(models.StateValidated)
}

// asScrapeError types an error returned by a Fetcher. A fetcher that gives
// up on an expired context is reported as a timeout.
func asScrapeError(err error) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.NewScrapeError(models.ErrCodeTimeout, "request deadline exceeded", err)
	}
	return models.AsScrapeError(err)
}
