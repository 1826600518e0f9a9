package scraper

import (
	"context"
	"errors"

	"github.com/use-agent/tcees/extract"
)

// ErrSessionLost is returned by a Session whose browser went away.
var ErrSessionLost = errors.New("scraper: browser session lost")

// Driver starts browser sessions. Implementations decide whether a session
// is a whole browser process or a context inside a shared one.
type Driver interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is one exclusively owned browser page. Every blocking call honours
// ctx. Close releases the underlying browser resources and must be safe to
// call on a session that already failed.
type Session interface {
	Navigate(ctx context.Context, url string) error

	// Has reports whether selector currently matches. It does not wait.
	Has(ctx context.Context, selector string) (bool, error)

	// Query returns every node currently matching selector. It does not wait.
	Query(ctx context.Context, selector string) ([]extract.Node, error)

	// Upload sets the file input at selector to the local file at path.
	Upload(ctx context.Context, selector, path string) error

	HTML(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)

	Close() error
}

// querier is the read side shared by live sessions and saved snapshots.
type querier interface {
	Query(ctx context.Context, selector string) ([]extract.Node, error)
}

// snapshot adapts a parsed HTML document to querier.
type snapshot struct {
	doc *extract.Document
}

func (s snapshot) Query(_ context.Context, selector string) ([]extract.Node, error) {
	return s.doc.Query(selector)
}
