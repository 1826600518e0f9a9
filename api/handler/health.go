package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/tcees/models"
	"github.com/use-agent/tcees/probe"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// PoolStatser reports session pool usage. *scraper.Scraper implements it.
type PoolStatser interface {
	Stats() models.PoolStats
}

// Health returns a handler for GET /health and GET /api/v1/health.
//
// The status degrades to "degraded" while every session is busy.
// ?upstream=1 also probes the portal over HTTPS.
func Health(pool PoolStatser, prober *probe.Prober, upstreamURL string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := pool.Stats()

		status := "ok"
		if stats.Capacity > 0 && stats.InUse >= stats.Capacity {
			status = "degraded"
		}

		resp := models.HealthResponse{
			Status:    status,
			Service:   "tcees-validator",
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: stats,
			Version:   Version,
		}
		if c.Query("upstream") == "1" && prober != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
			resp.Upstream = prober.Check(ctx, upstreamURL)
			cancel()
		}
		c.JSON(http.StatusOK, resp)
	}
}
