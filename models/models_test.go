package models

import (
	"errors"
	"regexp"
	"testing"
)

func TestNewScrapeTarget_EmptyID(t *testing.T) {
	if _, err := NewScrapeTarget("  ", ProfileRecord); !errors.Is(err, ErrEmptyTargetID) {
		t.Fatalf("expected ErrEmptyTargetID, got %v", err)
	}
}

func TestScrapeTarget_ParamsAreCopied(t *testing.T) {
	params := map[string]string{"ano": "2024"}
	target, err := NewScrapeTarget("proc-1", ProfileRecord, WithParams(params))
	if err != nil {
		t.Fatal(err)
	}
	params["ano"] = "1999"
	if v, _ := target.Param("ano"); v != "2024" {
		t.Errorf("target changed through the caller's map: ano=%q", v)
	}
	got := target.Params()
	got["ano"] = "2000"
	if v, _ := target.Param("ano"); v != "2024" {
		t.Errorf("target changed through Params(): ano=%q", v)
	}
}

func TestScrapeTarget_Key(t *testing.T) {
	a, _ := NewScrapeTarget("proc-1", ProfileRecord, WithParams(map[string]string{"a": "1", "b": "2"}))
	b, _ := NewScrapeTarget("proc-1", ProfileRecord, WithParams(map[string]string{"b": "2", "a": "1"}))
	c, _ := NewScrapeTarget("proc-2", ProfileRecord)
	d, _ := NewScrapeTarget("doc.pdf", ProfileConformity, WithFile("/tmp/x.pdf", "doc.pdf", "abc"))
	e, _ := NewScrapeTarget("doc.pdf", ProfileConformity, WithFile("/tmp/y.pdf", "doc.pdf", "def"))

	if a.Key() != b.Key() {
		t.Error("param order changed the key")
	}
	if a.Key() == c.Key() {
		t.Error("different ids share a key")
	}
	if d.Key() == e.Key() {
		t.Error("different file contents share a key")
	}
}

func TestSchema_ResolveURL(t *testing.T) {
	s := &Schema{Name: ProfileRecord, URL: "https://portal.example/processo/{id}?ano={ano}"}

	target, _ := NewScrapeTarget("proc 1", ProfileRecord, WithParams(map[string]string{"ano": "2024"}))
	got, err := s.ResolveURL(target)
	if err != nil {
		t.Fatal(err)
	}
	if want := "https://portal.example/processo/proc%201?ano=2024"; got != want {
		t.Errorf("ResolveURL = %q, want %q", got, want)
	}

	missing, _ := NewScrapeTarget("proc-1", ProfileRecord)
	if _, err := s.ResolveURL(missing); err == nil {
		t.Error("expected an error for an unresolved placeholder")
	}
}

func TestSchema_CheckTarget(t *testing.T) {
	s := &Schema{Name: ProfileRecord, IDPattern: regexp.MustCompile(`^proc-\d+$`)}
	ok, _ := NewScrapeTarget("proc-12345", ProfileRecord)
	bad, _ := NewScrapeTarget("12345", ProfileRecord)
	if err := s.CheckTarget(ok); err != nil {
		t.Errorf("valid target rejected: %v", err)
	}
	if err := s.CheckTarget(bad); err == nil {
		t.Error("invalid target accepted")
	}

	upload := &Schema{Name: ProfileConformity, UploadSelector: `input[type="file"]`}
	if err := upload.CheckTarget(ok); err == nil {
		t.Error("upload schema accepted a target without a file")
	}
}

func TestLifecycle(t *testing.T) {
	l := NewLifecycle()
	for _, s := range []State{StateScraping, StateExtracted, StateValidated} {
		if err := l.Advance(s); err != nil {
			t.Fatalf("Advance(%s): %v", s, err)
		}
	}
	if !l.State().Terminal() {
		t.Errorf("%s should be terminal", l.State())
	}
	if err := l.Advance(StateScraping); err == nil {
		t.Error("left a terminal state")
	}
	if got := len(l.History()); got != 4 {
		t.Errorf("history has %d states, want 4", got)
	}
}

func TestLifecycle_IllegalTransitions(t *testing.T) {
	tests := []struct {
		path []State
	}{
		{[]State{StateExtracted}},
		{[]State{StateScraping, StateScraping}},
		{[]State{StateScraping, StateScrapeFailed, StateExtracted}},
		{[]State{StateScraping, StateValidated}},
	}
	for _, tt := range tests {
		l := NewLifecycle()
		var err error
		for _, s := range tt.path {
			if err = l.Advance(s); err != nil {
				break
			}
		}
		if err == nil {
			t.Errorf("path %v was accepted", tt.path)
			continue
		}
		history := l.History()
		if last := history[len(history)-1]; l.State() != last {
			t.Errorf("path %v: state %s after refusal, history ends at %s", tt.path, l.State(), last)
		}
		if len(history) > len(tt.path) {
			t.Errorf("path %v: refused state recorded in history %v", tt.path, history)
		}
	}
}

func TestValidationReport(t *testing.T) {
	r := NewValidationReport("proc-1", ProfileRecord)
	r.Pass("status")
	r.Fail(NewValidationError("date", "", "required", ErrMissingField))
	r.Fail(NewValidationError("amount", "abc", "not a number", ErrTypeMismatch))

	if r.OK() {
		t.Fatal("report with failures is OK")
	}
	if got := r.Failures(); len(got) != 2 || got[0] != "amount" || got[1] != "date" {
		t.Errorf("Failures() = %v", got)
	}
	if got := r.FailuresOf(ValidationTypeMismatch); len(got) != 1 || got[0] != "amount" {
		t.Errorf("FailuresOf(TYPE_MISMATCH) = %v", got)
	}
	if !errors.Is(r, ErrMissingField) {
		t.Error("report does not unwrap to ErrMissingField")
	}
	var ve *ValidationError
	if !errors.As(r, &ve) {
		t.Error("report does not unwrap to *ValidationError")
	}
}

func TestScrapeError(t *testing.T) {
	cause := errors.New("boom")
	se := NewScrapeError(ErrCodeNavigation, "navigate", cause).WithHint(HintDNS)
	if !errors.Is(se, cause) {
		t.Error("ScrapeError does not unwrap its cause")
	}
	if !se.Transient() {
		t.Error("NAVIGATION_FAILED should be transient")
	}
	if NewScrapeError(ErrCodeElementNotFound, "x", nil).Transient() {
		t.Error("ELEMENT_NOT_FOUND should be permanent")
	}
	if d := se.ToDetail(); d.Hint != HintDNS || d.Code != ErrCodeNavigation {
		t.Errorf("ToDetail() = %+v", d)
	}
	if got := AsScrapeError(cause).Code; got != ErrCodeInternal {
		t.Errorf("AsScrapeError(plain) code = %s", got)
	}
}

func TestConformity_Score(t *testing.T) {
	c := &Conformity{ExtensaoValida: true, SemSenha: true, TamanhoArquivoOK: true, AutenticidadeOK: true, IntegridadeOK: true}
	c.Score()
	if c.Pontuacao != 57 {
		t.Errorf("Pontuacao = %d, want 57", c.Pontuacao)
	}
	all := &Conformity{ExtensaoValida: true, SemSenha: true, TamanhoArquivoOK: true, TamanhoPaginaOK: true, Assinado: true, AutenticidadeOK: true, Pesquisavel: true}
	all.Score()
	if all.Pontuacao != 100 {
		t.Errorf("Pontuacao = %d, want 100", all.Pontuacao)
	}
}

func TestValidatedRecord_Immutable(t *testing.T) {
	in := map[string]any{"amount": 1500.0}
	rec := NewValidatedRecord("proc-1", ProfileRecord, in)
	in["amount"] = 1.0
	rec.Fields()["amount"] = 2.0
	if v, _ := rec.Get("amount"); v != 1500.0 {
		t.Errorf("record changed: amount=%v", v)
	}
}
