// Package extract turns matched page nodes into field values. It works the
// same on a live browser page and on a saved HTML snapshot.
package extract

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/use-agent/tcees/models"
)

// Node is one element matched by a selector.
type Node struct {
	// Text is the rendered text with whitespace collapsed.
	Text string
	// HTML is the inner HTML.
	HTML string
}

// Value returns the part of the node named by source.
func (n Node) Value(source string) string {
	if source == models.SourceHTML {
		return n.HTML
	}
	return n.Text
}

// Status is the outcome of picking a node for a field.
type Status int

const (
	Missing Status = iota
	Found
	// Short means a list selector matched fewer nodes than the index asked for.
	Short
	// Ambiguous means a single-node selector matched several nodes.
	Ambiguous
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Short:
		return "short"
	case Ambiguous:
		return "ambiguous"
	default:
		return "missing"
	}
}

// Pick selects the node for a field. nth is 1-based; 0 requires exactly one
// node.
func Pick(nodes []Node, nth int) (Node, Status) {
	switch {
	case len(nodes) == 0:
		return Node{}, Missing
	case nth == 0 && len(nodes) > 1:
		return Node{}, Ambiguous
	case nth == 0:
		return nodes[0], Found
	case len(nodes) < nth:
		return Node{}, Short
	default:
		return nodes[nth-1], Found
	}
}

// Compile parses a CSS selector.
func Compile(sel string) (cascadia.Selector, error) {
	s, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("extract: invalid selector %q: %w", sel, err)
	}
	return s, nil
}

// CompileSelectors checks that every selector parses.
func CompileSelectors(sels []string) error {
	for _, sel := range sels {
		if _, err := Compile(sel); err != nil {
			return err
		}
	}
	return nil
}

// MustCompileSelectors is like CompileSelectors but panics on error. It
// returns its arguments so schemas can declare selectors inline.
func MustCompileSelectors(sels ...string) []string {
	if err := CompileSelectors(sels); err != nil {
		panic(err)
	}
	return sels
}

// NormalizeSpace collapses runs of whitespace into single spaces.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Signature summarises which fields are resolved: '1' for a value, '0' for a
// failed status and '?' for a missing field. It also returns the number of
// resolved fields.
func Signature(fields []string, values map[string]string) (string, int) {
	var b strings.Builder
	resolved := 0
	for _, name := range fields {
		v, ok := values[name]
		switch {
		case !ok || v == "":
			b.WriteByte('?')
			continue
		case v == models.StatusFailed:
			b.WriteByte('0')
		default:
			b.WriteByte('1')
		}
		resolved++
	}
	return b.String(), resolved
}
