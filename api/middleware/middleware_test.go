package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/models"
)

func init() { gin.SetMode(gin.TestMode) }

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("api_key"))
	})
	r.GET("/", handlers...)
	return r
}

func do(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth([]string{"k1", "k2"}, nil))

	tests := []struct {
		name   string
		header map[string]string
		status int
	}{
		{"api key", map[string]string{"X-API-Key": "k1"}, http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer k2"}, http.StatusOK},
		{"secret", map[string]string{"X-API-Secret": "k1"}, http.StatusOK},
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"basic scheme", map[string]string{"Authorization": "Basic k1"}, http.StatusUnauthorized},
		{"stale key with valid secret", map[string]string{"X-API-Key": "old", "X-API-Secret": "k2"}, http.StatusOK},
		{"stale bearer with valid key", map[string]string{"Authorization": "Bearer old", "X-API-Key": "k1"}, http.StatusOK},
		{"every key wrong", map[string]string{"X-API-Key": "old", "X-API-Secret": "older"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(r, tt.header); w.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.status, w.Body)
			}
		})
	}
}

func TestAuthOpenWithoutKeys(t *testing.T) {
	r := newEngine(Auth([]string{""}, nil))
	if w := do(r, nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthCustomReject(t *testing.T) {
	var gotCode string
	reject := func(c *gin.Context, status int, code, _ string) {
		gotCode = code
		c.AbortWithStatus(status)
	}
	r := newEngine(Auth([]string{"k"}, reject))
	if w := do(r, nil); w.Code != http.StatusUnauthorized || gotCode != models.ErrCodeUnauthorized {
		t.Errorf("status = %d, code = %q", w.Code, gotCode)
	}
}

func TestRateLimitPerIdentity(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)
	l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}, stop)
	r := newEngine(Auth([]string{"a", "b"}, nil), RateLimit(l, nil))

	for i := range 2 {
		if w := do(r, map[string]string{"X-API-Key": "a"}); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, w.Code)
		}
	}
	if w := do(r, map[string]string{"X-API-Key": "a"}); w.Code != http.StatusTooManyRequests {
		t.Errorf("third request: status = %d, want 429", w.Code)
	}
	if w := do(r, map[string]string{"X-API-Key": "b"}); w.Code != http.StatusOK {
		t.Errorf("other key: status = %d, want 200", w.Code)
	}
}
