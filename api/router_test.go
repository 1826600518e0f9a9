package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/tcees/cache"
	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/models"
	"github.com/use-agent/tcees/service"
	"github.com/use-agent/tcees/tcees"
	"github.com/use-agent/tcees/webhook"
)

const testKey = "s3cret"

type stubFetcher struct {
	calls atomic.Int32
	fetch func(models.ScrapeTarget) (map[string]string, error)
}

func (f *stubFetcher) Fetch(_ context.Context, t models.ScrapeTarget, _ *models.Schema) (*models.RawExtraction, error) {
	f.calls.Add(1)
	fields, err := f.fetch(t)
	if err != nil {
		return nil, err
	}
	return &models.RawExtraction{TargetID: t.ID(), Profile: t.Profile(), Fields: fields, Attempts: 1}, nil
}

type stubPool struct{ stats models.PoolStats }

func (p stubPool) Stats() models.PoolStats { return p.stats }

func allOK() map[string]string {
	fields := map[string]string{}
	for _, name := range tcees.ConformityFields {
		fields[name] = models.StatusOK
	}
	return fields
}

// defaultFetch answers the record profile by ID and the conformity
// profile with every check passing.
func defaultFetch(t models.ScrapeTarget) (map[string]string, error) {
	if t.Profile() == models.ProfileConformity {
		if _, err := os.Stat(t.FilePath()); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeTargetNotFound, "upload missing", err)
		}
		return allOK(), nil
	}
	switch t.ID() {
	case "proc-12345":
		return map[string]string{"amount": "1500.00", "date": "2024-03-15", "status": "aprovado"}, nil
	case "proc-bad":
		return map[string]string{"amount": "abc", "date": "2024-03-15", "status": "aprovado"}, nil
	case "proc-slow":
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "navigation", context.DeadlineExceeded)
	case "proc-crash":
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "session lost", nil)
	default:
		return nil, models.NewScrapeError(models.ErrCodeTargetNotFound, "no such record", nil)
	}
}

type testServer struct {
	router  *gin.Engine
	fetcher *stubFetcher
	cfg     *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		Portal:    config.PortalConfig{ConformityURL: "https://portal.test/", RecordURL: "https://portal.test/processo/{id}"},
		Auth:      config.AuthConfig{Enabled: true, Secret: testKey},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		Upload:    config.UploadConfig{MaxFileMB: 1, TempDir: t.TempDir(), MaxBatchFiles: 3},
		Webhook:   config.WebhookConfig{Secret: "hook"},
	}
	schemas, err := tcees.Profiles(cfg.Portal)
	if err != nil {
		t.Fatal(err)
	}
	c := cache.New[*service.Outcome](10)
	t.Cleanup(c.Close)
	f := &stubFetcher{fetch: defaultFetch}
	svc, err := service.New(f, schemas, c, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	r := NewRouter(Deps{
		Service:   svc,
		Pool:      stubPool{models.PoolStats{Capacity: 2, InUse: 1}},
		StartTime: time.Now(),
		Stop:      stop,
	}, cfg)
	return &testServer{router: r, fetcher: f, cfg: cfg}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func scrapeRequest(body string, authed bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", testKey)
	}
	return req
}

type part struct {
	field, name string
	content     []byte
}

func multipartRequest(t *testing.T, path string, parts []part, values map[string]string, secret string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(p.content)
	}
	for k, v := range values {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if secret != "" {
		req.Header.Set("X-API-Secret", secret)
	}
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := s.do(httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, w.Code)
		}
		var resp models.HealthResponse
		decode(t, w, &resp)
		if resp.Status != "ok" || resp.Service != "tcees-validator" || resp.PoolStats.Capacity != 2 {
			t.Errorf("%s: %+v", path, resp)
		}
	}
}

func TestScrapeRecord(t *testing.T) {
	s := newTestServer(t)
	w := s.do(scrapeRequest(`{"id":"proc-12345"}`, true))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var resp struct {
		Success bool         `json:"success"`
		State   models.State `json:"state"`
		Record  struct {
			TargetID string         `json:"target_id"`
			Fields   map[string]any `json:"fields"`
		} `json:"record"`
	}
	decode(t, w, &resp)
	if !resp.Success || resp.State != models.StateValidated || resp.Record.TargetID != "proc-12345" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Record.Fields["amount"] != 1500.0 || resp.Record.Fields["date"] != "2024-03-15" || resp.Record.Fields["status"] != "aprovado" {
		t.Errorf("fields = %v", resp.Record.Fields)
	}
}

func TestScrapeStatusMapping(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		body   string
		authed bool
		status int
		code   string
	}{
		{"unauthenticated", `{"id":"proc-12345"}`, false, http.StatusUnauthorized, models.ErrCodeUnauthorized},
		{"missing id", `{}`, true, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"conformity over json", `{"id":"x","profile":"conformidade"}`, true, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"bad id", `{"id":"../etc passwd"}`, true, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"validation", `{"id":"proc-bad"}`, true, http.StatusUnprocessableEntity, models.ErrCodeValidation},
		{"not found", `{"id":"proc-404"}`, true, http.StatusNotFound, models.ErrCodeTargetNotFound},
		{"timeout", `{"id":"proc-slow"}`, true, http.StatusGatewayTimeout, models.ErrCodeTimeout},
		{"crash", `{"id":"proc-crash"}`, true, http.StatusServiceUnavailable, models.ErrCodeBrowserCrash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(scrapeRequest(tt.body, tt.authed))
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body)
			}
			var resp models.ScrapeResponse
			decode(t, w, &resp)
			if resp.Success || resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("resp = %s", w.Body)
			}
		})
	}
}

func TestScrapeValidationReport(t *testing.T) {
	s := newTestServer(t)
	w := s.do(scrapeRequest(`{"id":"proc-bad"}`, true))
	var resp struct {
		State  models.State             `json:"state"`
		Report *models.ValidationReport `json:"report"`
	}
	decode(t, w, &resp)
	if resp.State != models.StateValidationFailed || resp.Report == nil {
		t.Fatalf("body = %s", w.Body)
	}
	if got := resp.Report.Fields["amount"]; got.Passed || got.Kind != models.ValidationTypeMismatch {
		t.Errorf("amount check = %+v", got)
	}
	if !resp.Report.Fields["date"].Passed {
		t.Error("date should pass")
	}
}

func TestScrapeCache(t *testing.T) {
	s := newTestServer(t)
	for range 2 {
		s.do(scrapeRequest(`{"id":"proc-12345","max_age":60000}`, true))
	}
	if n := s.fetcher.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
	w := s.do(scrapeRequest(`{"id":"proc-12345","max_age":60000}`, true))
	var resp models.ScrapeResponse
	decode(t, w, &resp)
	if resp.CacheStatus != "hit" {
		t.Errorf("cache status = %q", resp.CacheStatus)
	}
}

func TestValidateUpload(t *testing.T) {
	s := newTestServer(t)
	req := multipartRequest(t, "/validate", []part{{"file", "relatorio.pdf", []byte("%PDF-1.7 test")}}, nil, testKey)
	w := s.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var c models.Conformity
	decode(t, w, &c)
	if c.NomeArquivo != "relatorio.pdf" || c.ResultadoFinal != models.VerdictValidated || c.Pontuacao != 100 {
		t.Errorf("result = %+v", c)
	}
	if c.TamanhoBytes != int64(len("%PDF-1.7 test")) || c.DataValidacao == "" {
		t.Errorf("stamp = %d %q", c.TamanhoBytes, c.DataValidacao)
	}

	left, err := os.ReadDir(s.cfg.Upload.TempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("temp files left behind: %d", len(left))
	}
}

func TestValidateRejections(t *testing.T) {
	s := newTestServer(t)
	big := bytes.Repeat([]byte("x"), 2<<20)
	tests := []struct {
		name   string
		parts  []part
		secret string
		status int
		code   string
	}{
		{"no secret", []part{{"file", "a.pdf", []byte("x")}}, "", http.StatusUnauthorized, "AUTH_ERROR"},
		{"wrong secret", []part{{"file", "a.pdf", []byte("x")}}, "nope", http.StatusUnauthorized, "AUTH_ERROR"},
		{"no file", nil, testKey, http.StatusBadRequest, models.ErrCodeNoFile},
		{"not pdf", []part{{"file", "a.docx", []byte("x")}}, testKey, http.StatusBadRequest, models.ErrCodeNotPDF},
		{"too large", []part{{"file", "a.PDF", big}}, testKey, http.StatusRequestEntityTooLarge, models.ErrCodeFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(multipartRequest(t, "/validate", tt.parts, nil, tt.secret))
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body)
			}
			var body map[string]any
			decode(t, w, &body)
			if body["resultado_final"] != models.VerdictError || body["erro_codigo"] != tt.code || body["erro"] == "" {
				t.Errorf("body = %v", body)
			}
		})
	}
	if n := s.fetcher.calls.Load(); n != 0 {
		t.Errorf("rejected uploads reached the fetcher %d times", n)
	}
}

func TestBatchTooManyFiles(t *testing.T) {
	s := newTestServer(t)
	parts := make([]part, 4)
	for i := range parts {
		parts[i] = part{"files", "f.pdf", []byte("%PDF")}
	}
	w := s.do(multipartRequest(t, "/api/v1/batch/validate", parts, nil, testKey))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestBatchUnknownJob(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/batch/batch-nope", nil)
	req.Header.Set("X-API-Key", testKey)
	if w := s.do(req); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestBatchValidate(t *testing.T) {
	s := newTestServer(t)

	hooks := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- b
		hooks <- r
	}))
	defer hook.Close()

	parts := []part{
		{"files", "a.pdf", []byte("%PDF-a")},
		{"files", "b.txt", []byte("not a pdf")},
	}
	w := s.do(multipartRequest(t, "/api/v1/batch/validate", parts, map[string]string{"webhook_url": hook.URL}, testKey))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var accepted models.BatchResponse
	decode(t, w, &accepted)
	if !strings.HasPrefix(accepted.ID, "batch-") || accepted.Total != 2 {
		t.Fatalf("accepted = %+v", accepted)
	}

	var st models.BatchStatusResponse
	deadline := time.Now().Add(5 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/batch/"+accepted.ID, nil)
		req.Header.Set("X-API-Key", testKey)
		decode(t, s.do(req), &st)
		if st.Status != models.BatchProcessing || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st.Status != models.BatchPartial || st.Completed != 2 || len(st.Results) != 2 {
		t.Fatalf("status = %+v", st)
	}
	if st.Results[0].ResultadoFinal != models.VerdictValidated || st.Results[1].ErroCodigo != models.ErrCodeNotPDF {
		t.Errorf("results = %+v, %+v", st.Results[0], st.Results[1])
	}

	select {
	case r := <-hooks:
		body := <-bodies
		if !webhook.Verify("hook", body, r.Header.Get(webhook.SignatureHeader)) {
			t.Error("webhook signature mismatch")
		}
		var ev webhook.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type != "batch.partial" || ev.JobID != accepted.ID {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never called")
	}
}
