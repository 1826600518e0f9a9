package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Document is a parsed HTML snapshot that can be queried like a live page.
type Document struct {
	doc  *goquery.Document
	sels map[string]cascadia.Selector
}

// Parse reads an HTML snapshot.
func Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &Document{doc: doc, sels: make(map[string]cascadia.Selector)}, nil
}

// Query returns every node matching sel, in document order.
func (d *Document) Query(sel string) ([]Node, error) {
	m, ok := d.sels[sel]
	if !ok {
		var err error
		if m, err = Compile(sel); err != nil {
			return nil, err
		}
		d.sels[sel] = m
	}

	var nodes []Node
	d.doc.FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
		inner, _ := s.Html()
		nodes = append(nodes, Node{Text: NormalizeSpace(s.Text()), HTML: inner})
	})
	return nodes, nil
}

// Has reports whether sel matches at least one node.
func (d *Document) Has(sel string) bool {
	nodes, err := d.Query(sel)
	return err == nil && len(nodes) > 0
}

// Text returns the visible text of the body.
func (d *Document) Text() string {
	body := d.doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	return NormalizeSpace(body.Text())
}
