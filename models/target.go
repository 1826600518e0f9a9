package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
)

// ErrEmptyTargetID is returned when a target has no identifier.
var ErrEmptyTargetID = errors.New("target id is required")

// ScrapeTarget identifies the resource to retrieve and carries what is
// needed to reach it. It is immutable once constructed.
type ScrapeTarget struct {
	id       string
	profile  string
	params   map[string]string
	filePath string
	fileName string
	digest   string
	quick    bool
}

// TargetOption customises a ScrapeTarget at construction.
type TargetOption func(*ScrapeTarget)

// WithParams sets the navigation parameters.
func WithParams(params map[string]string) TargetOption {
	return func(t *ScrapeTarget) {
		for k, v := range params {
			t.params[k] = v
		}
	}
}

// WithFile attaches a local file to upload. digest identifies its content.
func WithFile(path, name, digest string) TargetOption {
	return func(t *ScrapeTarget) {
		t.filePath = path
		t.fileName = name
		t.digest = digest
	}
}

// WithQuick shortens the settle budget.
func WithQuick(quick bool) TargetOption {
	return func(t *ScrapeTarget) { t.quick = quick }
}

// NewScrapeTarget builds a target for the given profile.
func NewScrapeTarget(id, profile string, opts ...TargetOption) (ScrapeTarget, error) {
	t := ScrapeTarget{
		id:      strings.TrimSpace(id),
		profile: profile,
		params:  make(map[string]string),
	}
	if t.id == "" {
		return ScrapeTarget{}, ErrEmptyTargetID
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t, nil
}

func (t ScrapeTarget) ID() string       { return t.id }
func (t ScrapeTarget) Profile() string  { return t.profile }
func (t ScrapeTarget) FilePath() string { return t.filePath }
func (t ScrapeTarget) FileName() string { return t.fileName }
func (t ScrapeTarget) Quick() bool      { return t.quick }

// Param returns a navigation parameter.
func (t ScrapeTarget) Param(name string) (string, bool) {
	v, ok := t.params[name]
	return v, ok
}

// Params returns a copy of the navigation parameters.
func (t ScrapeTarget) Params() map[string]string {
	out := make(map[string]string, len(t.params))
	for k, v := range t.params {
		out[k] = v
	}
	return out
}

// Key is a stable identity of the target, used for caching.
func (t ScrapeTarget) Key() string {
	h := sha256.New()
	h.Write([]byte(t.profile))
	h.Write([]byte("|"))
	h.Write([]byte(t.id))
	keys := make([]string, 0, len(t.params))
	for k := range t.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte("|" + k + "=" + t.params[k]))
	}
	if t.digest != "" {
		h.Write([]byte("|file=" + t.digest))
	}
	return hex.EncodeToString(h.Sum(nil))
}
