package scraper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/use-agent/tcees/extract"
)

// stubSession is a scripted page.
type stubSession struct {
	navigate func(ctx context.Context) error
	present  map[string]bool
	query    func(sel string) ([]extract.Node, error)
	html     string
	text     string

	uploads atomic.Int32
	shots   atomic.Int32
	closes  atomic.Int32
}

func (s *stubSession) Navigate(ctx context.Context, _ string) error {
	if s.navigate != nil {
		return s.navigate(ctx)
	}
	return nil
}

func (s *stubSession) Has(ctx context.Context, sel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.present[sel], nil
}

func (s *stubSession) Query(ctx context.Context, sel string) ([]extract.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.query == nil {
		return nil, nil
	}
	return s.query(sel)
}

func (s *stubSession) Upload(context.Context, string, string) error {
	s.uploads.Add(1)
	return nil
}

func (s *stubSession) HTML(context.Context) (string, error) {
	if s.html == "" {
		return "", errors.New("no html")
	}
	return s.html, nil
}

func (s *stubSession) Text(context.Context) (string, error) { return s.text, nil }

func (s *stubSession) Screenshot(context.Context) ([]byte, error) {
	s.shots.Add(1)
	return nil, errors.New("no screenshots")
}

func (s *stubSession) Close() error {
	s.closes.Add(1)
	return nil
}

// stubDriver hands out sessions built by script, numbered from 1.
type stubDriver struct {
	script func(n int) *stubSession

	mu       sync.Mutex
	sessions []*stubSession
}

func (d *stubDriver) NewSession(context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.script(len(d.sessions) + 1)
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *stubDriver) created() []*stubSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*stubSession(nil), d.sessions...)
}

// staticQuery answers from a fixed selector table.
func staticQuery(table map[string][]extract.Node) func(string) ([]extract.Node, error) {
	return func(sel string) ([]extract.Node, error) {
		return table[sel], nil
	}
}

func text(values ...string) []extract.Node {
	nodes := make([]extract.Node, len(values))
	for i, v := range values {
		nodes[i] = extract.Node{Text: v, HTML: v}
	}
	return nodes
}
