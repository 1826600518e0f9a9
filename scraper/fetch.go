package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/tcees/extract"
	"github.com/use-agent/tcees/models"
)

var errTargetNotFound = errors.New("page reports the target does not exist")

// ambiguityError is a single-node field whose selector matched several
// nodes.
type ambiguityError struct {
	field    string
	selector string
	count    int
}

func (e *ambiguityError) Error() string {
	return fmt.Sprintf("field %s: selector %q matched %d nodes, want 1", e.field, e.selector, e.count)
}

// attempt runs one full fetch on a freshly leased session. The lease is
// released exactly once on every path, panics included.
func (s *Scraper) attempt(ctx context.Context, target models.ScrapeTarget, schema *models.Schema, url string, n int) (raw *models.RawExtraction, se *models.ScrapeError) {
	lease, err := s.pool.Get(ctx)
	if err != nil {
		return nil, categorizeError(err, models.ErrCodeBrowserCrash, "failed to acquire browser session")
	}

	healthy := false
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scrape attempt panicked", "target", target.ID(), "panic", r)
			raw, se = nil, models.NewScrapeError(models.ErrCodeBrowserCrash, fmt.Sprintf("browser session panicked: %v", r), nil)
			healthy = false
		}
		lease.Release(healthy)
	}()

	sess := lease.Value()
	start := time.Now()

	raw, se = s.run(ctx, sess, target, schema, url)
	if se != nil {
		s.debug.screenshot(ctx, sess, target, n)
		return nil, se
	}
	healthy = true

	slog.Debug("scrape attempt succeeded",
		"target", target.ID(),
		"session", lease.ID(),
		"fields", len(raw.Fields),
		"elapsed", time.Since(start),
	)
	return raw, nil
}

func (s *Scraper) run(ctx context.Context, sess Session, target models.ScrapeTarget, schema *models.Schema, url string) (*models.RawExtraction, *models.ScrapeError) {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	err := sess.Navigate(navCtx, url)
	cancel()
	if err != nil {
		return nil, categorizeError(err, models.ErrCodeNavigation, "navigation to "+url+" failed")
	}

	if se := s.waitReady(ctx, sess, schema); se != nil {
		return nil, se
	}

	if schema.UploadSelector != "" {
		upCtx, cancel := context.WithTimeout(ctx, s.cfg.ElementWait)
		err := sess.Upload(upCtx, schema.UploadSelector, target.FilePath())
		cancel()
		if err != nil {
			return nil, categorizeError(err, models.ErrCodeBrowserCrash, "file upload failed")
		}
	}

	fields, se := s.readFields(ctx, sess, target, schema)
	if se != nil {
		return nil, se
	}

	html, htmlErr := sess.HTML(ctx)
	if htmlErr == nil {
		s.fillFromSnapshot(ctx, html, schema, fields)
		s.debug.saveHTML(target, html)
	}
	text, err := sess.Text(ctx)
	if err != nil {
		slog.Debug("page text unavailable", "target", target.ID(), "error", err)
	}

	return &models.RawExtraction{
		TargetID:    target.ID(),
		Profile:     schema.Name,
		Fields:      fields,
		PageText:    text,
		ExtractedAt: time.Now().UTC(),
	}, nil
}

// waitReady polls until the ready selector shows up. A not-found marker
// seen meanwhile ends the wait with TARGET_NOT_FOUND.
func (s *Scraper) waitReady(ctx context.Context, sess Session, schema *models.Schema) *models.ScrapeError {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ElementWait)
	defer cancel()

	err := poll(waitCtx, s.cfg.PollInterval, func() (bool, error) {
		missing, err := s.targetMissing(waitCtx, sess, schema)
		if err != nil {
			return false, err
		}
		if missing {
			return false, errTargetNotFound
		}
		return sess.Has(waitCtx, schema.ReadySelector)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errTargetNotFound):
		return models.NewScrapeError(models.ErrCodeTargetNotFound, "the portal has no such record", err)
	case ctx.Err() != nil:
		return categorizeError(ctx.Err(), models.ErrCodeTimeout, "waiting for the page")
	case errors.Is(err, context.DeadlineExceeded):
		msg := fmt.Sprintf("element %q not found after %s", schema.ReadySelector, s.cfg.ElementWait)
		return models.NewScrapeError(models.ErrCodeElementNotFound, msg, err)
	default:
		return categorizeError(err, models.ErrCodeBrowserCrash, "waiting for the page")
	}
}

func (s *Scraper) targetMissing(ctx context.Context, sess Session, schema *models.Schema) (bool, error) {
	for _, sel := range schema.NotFoundSelectors {
		found, err := sess.Has(ctx, sel)
		if err != nil || found {
			return found, err
		}
	}
	if len(schema.NotFoundTexts) == 0 {
		return false, nil
	}
	text, err := sess.Text(ctx)
	if err != nil {
		return false, err
	}
	text = strings.ToLower(text)
	for _, marker := range schema.NotFoundTexts {
		if strings.Contains(text, strings.ToLower(marker)) {
			return true, nil
		}
	}
	return false, nil
}

// reading is one pass over the schema fields.
type reading struct {
	values map[string]string
	// short holds list fields whose selectors matched too few nodes, with
	// the largest count seen.
	short map[string]int
}

// readFields polls the fields until the reading is complete. Without a
// settle rule it stops once every required field has a value; with one it
// stops when enough fields are resolved and two consecutive readings agree.
// When the budget runs out the last reading is returned as is.
func (s *Scraper) readFields(ctx context.Context, sess Session, target models.ScrapeTarget, schema *models.Schema) (map[string]string, *models.ScrapeError) {
	budget := s.cfg.ElementWait
	if schema.Settle != nil {
		budget = s.cfg.SettleTimeout
		if target.Quick() {
			budget = s.cfg.QuickSettleTimeout
		}
	}
	readCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	names := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		names[i] = f.Name
	}

	last := reading{values: map[string]string{}}
	prev := ""
	err := poll(readCtx, s.cfg.PollInterval, func() (bool, error) {
		r, err := read(readCtx, sess, schema)
		if err != nil {
			return false, err
		}
		last = r

		sig, resolved := extract.Signature(names, r.values)
		if schema.Settle != nil {
			stable := resolved >= schema.Settle.MinResolved && sig == prev
			prev = sig
			return stable, nil
		}
		return requiredResolved(schema, r.values), nil
	})

	var ambiguous *ambiguityError
	switch {
	case err == nil:
	case errors.As(err, &ambiguous):
		return nil, models.NewScrapeError(models.ErrCodeStructuralMismatch, ambiguous.Error(), err)
	case ctx.Err() != nil:
		return nil, categorizeError(ctx.Err(), models.ErrCodeTimeout, "reading fields")
	case errors.Is(err, context.DeadlineExceeded):
		slog.Debug("field budget exhausted, keeping last reading",
			"target", target.ID(), "resolved", len(last.values), "budget", budget)
	default:
		return nil, categorizeError(err, models.ErrCodeBrowserCrash, "reading fields")
	}

	for _, f := range schema.Fields {
		if count, ok := last.short[f.Name]; ok {
			msg := fmt.Sprintf("field %s: list matched %d nodes, want at least %d", f.Name, count, f.Nth)
			return nil, models.NewScrapeError(models.ErrCodeStructuralMismatch, msg, nil)
		}
	}
	return last.values, nil
}

// read performs one pass over every field. Missing fields are left out.
func read(ctx context.Context, q querier, schema *models.Schema) (reading, error) {
	r := reading{values: make(map[string]string), short: make(map[string]int)}
	if err := readList(ctx, q, schema, &r); err != nil {
		return reading{}, err
	}
	for _, f := range schema.Fields {
		if schema.ListField(f) {
			continue
		}
		var (
			node   extract.Node
			status = extract.Missing
		)
		for _, sel := range f.Selectors {
			nodes, err := q.Query(ctx, sel)
			if err != nil {
				return reading{}, err
			}
			n, st := extract.Pick(nodes, f.Nth)
			if st == extract.Ambiguous {
				return reading{}, &ambiguityError{field: f.Name, selector: sel, count: len(nodes)}
			}
			if st == extract.Found {
				node, status = n, st
				break
			}
			if st == extract.Short {
				status = st
				r.short[f.Name] = max(r.short[f.Name], len(nodes))
			}
		}

		if status != extract.Found {
			continue
		}
		delete(r.short, f.Name)
		if v := fieldValue(f, node); v != "" {
			r.values[f.Name] = v
		}
	}
	return r, nil
}

// readList fills the list fields from a single node list. A selector
// counts only when it has a node for every list field; the first one
// resolving the settle minimum wins, otherwise the one resolving most.
func readList(ctx context.Context, q querier, schema *models.Schema, r *reading) error {
	need, minResolved := 0, 0
	for _, f := range schema.Fields {
		if schema.ListField(f) {
			need = max(need, f.Nth)
			minResolved++
		}
	}
	if need == 0 {
		return nil
	}
	if schema.Settle != nil {
		minResolved = min(minResolved, schema.Settle.MinResolved)
	}

	var best map[string]string
	longest := 0
	for _, sel := range schema.ListSelectors {
		nodes, err := q.Query(ctx, sel)
		if err != nil {
			return err
		}
		if len(nodes) < need {
			longest = max(longest, len(nodes))
			continue
		}
		values := make(map[string]string)
		for _, f := range schema.Fields {
			if !schema.ListField(f) {
				continue
			}
			if v := fieldValue(f, nodes[f.Nth-1]); v != "" {
				values[f.Name] = v
			}
		}
		if best == nil || len(values) > len(best) {
			best = values
		}
		if len(values) >= minResolved {
			break
		}
	}

	for _, f := range schema.Fields {
		if !schema.ListField(f) {
			continue
		}
		switch {
		case best != nil:
			if v, ok := best[f.Name]; ok {
				r.values[f.Name] = v
			}
		case longest > 0:
			r.short[f.Name] = longest
		}
	}
	return nil
}

func fieldValue(f models.FieldSpec, n extract.Node) string {
	v := n.Value(f.Source)
	if f.Classify != nil {
		return f.Classify(v)
	}
	return strings.TrimSpace(v)
}

func requiredResolved(schema *models.Schema, values map[string]string) bool {
	for _, f := range schema.Fields {
		if f.Required && values[f.Name] == "" {
			return false
		}
	}
	return true
}

// fillFromSnapshot reads fields the live page did not yield from a saved
// copy of its HTML. Values already present are never replaced.
func (s *Scraper) fillFromSnapshot(ctx context.Context, html string, schema *models.Schema, values map[string]string) {
	if len(values) == len(schema.Fields) {
		return
	}
	doc, err := extract.Parse(html)
	if err != nil {
		return
	}
	r, err := read(ctx, snapshot{doc}, schema)
	if err != nil {
		slog.Debug("snapshot read failed", "error", err)
		return
	}
	// List fields come either all live or all from the snapshot.
	live := false
	for _, f := range schema.Fields {
		if _, ok := values[f.Name]; ok && schema.ListField(f) {
			live = true
			break
		}
	}
	for _, f := range schema.Fields {
		v, ok := r.values[f.Name]
		if !ok || (live && schema.ListField(f)) {
			continue
		}
		if _, ok := values[f.Name]; !ok {
			values[f.Name] = v
		}
	}
}
