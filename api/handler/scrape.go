package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/tcees/models"
	"github.com/use-agent/tcees/service"
)

// Scrape returns a handler for POST /api/v1/scrape.
//
//  1. Parse & validate request, apply defaults.
//  2. Service.Process → fetch, validate, cache.
//  3. 200 with the typed record, 422 with the report, or the status of
//     the scrape error.
func Scrape(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err), models.ScrapeResponse{})
			return
		}
		req.Defaults()

		target, err := models.NewScrapeTarget(req.ID, req.Profile, models.WithParams(req.Params))
		if err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err), models.ScrapeResponse{})
			return
		}

		out := svc.Process(c.Request.Context(), target, time.Duration(req.MaxAge)*time.Millisecond)
		resp := models.ScrapeResponse{
			Success:     out.OK(),
			State:       out.State,
			Record:      out.Record,
			Report:      out.Report,
			Attempts:    out.Attempts,
			Timing:      out.Timing,
			CacheStatus: out.CacheStatus,
		}
		if !out.OK() {
			respondError(c, out.Err, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
