package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/use-agent/tcees/models"
)

func TestCheckReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept-Language"); got == "" {
			t.Error("no Accept-Language header")
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "<html><head><title> Validador de Conformidade </title></head></html>")
	}))
	defer srv.Close()

	st := New(time.Second).Check(context.Background(), srv.URL)
	if !st.Reachable || st.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %+v", st)
	}
	if st.Title != "Validador de Conformidade" {
		t.Errorf("title = %q", st.Title)
	}
}

func TestCheckRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	st := New(time.Second).Check(context.Background(), url)
	if st.Reachable {
		t.Fatal("closed server reported reachable")
	}
	if st.Hint != models.HintConnectionRefused || st.Error == "" {
		t.Errorf("hint = %q, error = %q", st.Hint, st.Error)
	}
}

func TestHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"dns", &net.DNSError{Err: "no such host", Name: "portal.test"}, models.HintDNS},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), models.HintTimeout},
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, models.HintConnectionRefused},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, models.HintConnectionClosed},
		{"eof", fmt.Errorf("get: %w", io.EOF), models.HintConnectionClosed},
		{"proxy", errors.New("proxyconnect tcp: dial tcp 10.0.0.1:3128: i/o error"), models.HintNetworkBlocked},
		{"other", errors.New("tls: bad certificate"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Hint(tt.err); got != tt.want {
				t.Errorf("Hint(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestExtractTitle(t *testing.T) {
	if got := extractTitle("<p>no title</p>"); got != "" {
		t.Errorf("got %q", got)
	}
	if got := extractTitle("<title>TCE-ES</title><title>second</title>"); got != "TCE-ES" {
		t.Errorf("got %q", got)
	}
}
