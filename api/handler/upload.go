package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/models"
)

// upload is a PDF saved to the temp dir for the duration of a check.
type upload struct {
	name   string
	path   string
	size   int64
	digest string
}

func (u *upload) remove() {
	if err := os.Remove(u.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not remove upload", "path", u.path, "error", err)
	}
}

// uploadError is a rejected upload with its POST /validate code.
type uploadError struct {
	status  int
	code    string
	message string
}

func (e *uploadError) Error() string { return e.message }

// checkUpload applies the extension and size rules to one file.
func checkUpload(fh *multipart.FileHeader, cfg config.UploadConfig) *uploadError {
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		return &uploadError{http.StatusBadRequest, models.ErrCodeNotPDF, "Apenas arquivos PDF são aceitos."}
	}
	if fh.Size > int64(cfg.MaxFileMB)<<20 {
		return &uploadError{http.StatusRequestEntityTooLarge, models.ErrCodeFileTooLarge,
			fmt.Sprintf("Arquivo excede %d MB.", cfg.MaxFileMB)}
	}
	return nil
}

// saveUpload copies fh to a uniquely named file in cfg.TempDir and hashes
// it on the way.
func saveUpload(fh *multipart.FileHeader, cfg config.UploadConfig) (*upload, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	path := filepath.Join(cfg.TempDir, "tcees_"+uuid.NewString()+".pdf")
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("save upload: %w", err)
	}

	return &upload{
		name:   filepath.Base(fh.Filename),
		path:   path,
		size:   n,
		digest: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// target builds the conformity target of an upload.
func (u *upload) target(quick bool) (models.ScrapeTarget, error) {
	return models.NewScrapeTarget(u.name, models.ProfileConformity,
		models.WithFile(u.path, u.name, u.digest),
		models.WithQuick(quick),
	)
}
