package handler

import (
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/models"
)

func TestMapErrorToStatus(t *testing.T) {
	tests := map[string]int{
		models.ErrCodeInvalidInput:       http.StatusBadRequest,
		models.ErrCodeUnauthorized:       http.StatusUnauthorized,
		models.ErrCodeTargetNotFound:     http.StatusNotFound,
		models.ErrCodeFileTooLarge:       http.StatusRequestEntityTooLarge,
		models.ErrCodeValidation:         http.StatusUnprocessableEntity,
		models.ErrCodeRateLimited:        http.StatusTooManyRequests,
		models.ErrCodeNavigation:         http.StatusBadGateway,
		models.ErrCodeStructuralMismatch: http.StatusBadGateway,
		models.ErrCodeElementNotFound:    http.StatusBadGateway,
		models.ErrCodeBrowserCrash:       http.StatusServiceUnavailable,
		models.ErrCodeTimeout:            http.StatusGatewayTimeout,
		models.ErrCodeInternal:           http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := mapErrorToStatus(models.NewScrapeError(code, "", nil)); got != want {
			t.Errorf("%s: status = %d, want %d", code, got, want)
		}
	}
}

func TestCheckUpload(t *testing.T) {
	cfg := config.UploadConfig{MaxFileMB: 20}
	tests := []struct {
		name string
		size int64
		code string
	}{
		{"relatorio.pdf", 1 << 20, ""},
		{"RELATORIO.PDF", 20 << 20, ""},
		{"relatorio.pdf", 20<<20 + 1, models.ErrCodeFileTooLarge},
		{"relatorio.pdf.exe", 10, models.ErrCodeNotPDF},
		{"pdf", 10, models.ErrCodeNotPDF},
	}
	for _, tt := range tests {
		ue := checkUpload(&multipart.FileHeader{Filename: tt.name, Size: tt.size}, cfg)
		got := ""
		if ue != nil {
			got = ue.code
		}
		if got != tt.code {
			t.Errorf("%s (%d bytes): code = %q, want %q", tt.name, tt.size, got, tt.code)
		}
	}
}
