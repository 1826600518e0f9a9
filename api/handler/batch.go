package handler

import (
	"context"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/models"
	"github.com/use-agent/tcees/service"
	"github.com/use-agent/tcees/webhook"
)

// BatchStore holds in-flight and completed batch jobs.
type BatchStore struct {
	mu   sync.Mutex
	jobs map[string]*models.BatchJob
}

// NewBatchStore creates a store whose jobs expire 1 hour after creation.
// Expired jobs are dropped every 5 minutes until stop is closed.
func NewBatchStore(stop <-chan struct{}) *BatchStore {
	s := &BatchStore{jobs: make(map[string]*models.BatchJob)}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.expire(time.Now().Add(-1 * time.Hour).Unix())
			}
		}
	}()
	return s
}

func (s *BatchStore) add(job *models.BatchJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// status returns a snapshot of a job.
func (s *BatchStore) status(id string) (models.BatchStatusResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.BatchStatusResponse{}, false
	}
	return models.BatchStatusResponse{
		ID:        job.ID,
		Status:    job.Status,
		Completed: job.Completed,
		Total:     job.Total,
		Results:   append([]*models.Conformity(nil), job.Results...),
	}, true
}

func (s *BatchStore) update(id string, fn func(*models.BatchJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		fn(job)
	}
}

func (s *BatchStore) expire(cutoff int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.CreatedAt < cutoff {
			delete(s.jobs, id)
		}
	}
}

// batchFiles returns the uploaded files of a batch: every "files" part,
// then every "file" part.
func batchFiles(c *gin.Context) []*multipart.FileHeader {
	form, err := c.MultipartForm()
	if err != nil {
		return nil
	}
	return append(append([]*multipart.FileHeader(nil), form.File["files"]...), form.File["file"]...)
}

// PostBatch returns a handler for POST /api/v1/batch/validate.
// The files are saved, a job is created and the checks run in the
// background. An optional webhook_url is called when the job ends.
func PostBatch(svc *service.Service, store *BatchStore, cfg config.UploadConfig, webhookSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		files := batchFiles(c)
		if len(files) == 0 {
			respondError(c, models.NewScrapeError(models.ErrCodeNoFile, "no files uploaded (field 'files')", nil), models.ScrapeResponse{})
			return
		}
		if len(files) > cfg.MaxBatchFiles {
			msg := "maximum " + strconv.Itoa(cfg.MaxBatchFiles) + " files per batch"
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, msg, nil), models.ScrapeResponse{})
			return
		}

		jobID := "batch-" + uuid.NewString()
		job := &models.BatchJob{
			ID:         jobID,
			Status:     models.BatchProcessing,
			Total:      len(files),
			Results:    make([]*models.Conformity, len(files)),
			WebhookURL: c.PostForm("webhook_url"),
			CreatedAt:  time.Now().Unix(),
		}

		// Rejected files are answered now; the rest must be saved before
		// the request body goes away.
		uploads := make([]*upload, len(files))
		for i, fh := range files {
			if ue := checkUpload(fh, cfg); ue != nil {
				job.Results[i] = models.ConformityError(fh.Filename, ue.message, ue.code, "")
				job.Completed++
				continue
			}
			up, err := saveUpload(fh, cfg)
			if err != nil {
				slog.Error("saving batch upload failed", "job", jobID, "file", fh.Filename, "error", err)
				job.Results[i] = models.ConformityError(fh.Filename, "Falha ao receber o arquivo.", models.ErrCodeInternal, err.Error())
				job.Completed++
				continue
			}
			uploads[i] = up
		}
		store.add(job)

		go runBatch(svc, store, jobID, uploads, c.PostForm("quick") == "1", webhookSecret)

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     jobID,
			Status: models.BatchProcessing,
			Total:  len(files),
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(store *BatchStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, ok := store.status(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ScrapeResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "batch job not found",
				},
			})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// runBatch checks every saved upload concurrently; the session pool
// bounds how many run at once.
func runBatch(svc *service.Service, store *BatchStore, jobID string, uploads []*upload, quick bool, webhookSecret string) {
	var wg sync.WaitGroup
	for i, up := range uploads {
		if up == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer up.remove()

			result := checkOne(svc, up, quick)
			store.update(jobID, func(job *models.BatchJob) {
				job.Results[i] = result
				job.Completed++
			})
		}()
	}
	wg.Wait()

	var webhookURL string
	store.update(jobID, func(job *models.BatchJob) {
		failed := 0
		for _, r := range job.Results {
			if r == nil || r.ResultadoFinal == models.VerdictError {
				failed++
			}
		}
		switch {
		case failed == job.Total:
			job.Status = models.BatchFailed
		case failed > 0:
			job.Status = models.BatchPartial
		default:
			job.Status = models.BatchCompleted
		}
		webhookURL = job.WebhookURL
	})
	st, _ := store.status(jobID)

	slog.Info("batch job finished",
		"id", jobID,
		"status", st.Status,
		"completed", st.Completed,
		"total", st.Total,
	)

	if webhookURL != "" {
		webhook.DeliverAsync(webhookURL, webhookSecret, &webhook.Event{
			Type:      "batch." + st.Status,
			JobID:     jobID,
			Timestamp: time.Now().Unix(),
			Data:      st,
		}, nil)
	}
}

func checkOne(svc *service.Service, up *upload, quick bool) *models.Conformity {
	target, err := up.target(quick)
	if err != nil {
		return models.ConformityError(up.name, err.Error(), models.ErrCodeInvalidInput, "")
	}
	out := svc.Process(context.Background(), target, 0)
	return out.ConformityResult(up.name, up.size, time.Now())
}
