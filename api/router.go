package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/tcees/api/handler"
	"github.com/use-agent/tcees/api/middleware"
	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/probe"
	"github.com/use-agent/tcees/service"
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Service   *service.Service
	Pool      handler.PoolStatser
	Prober    *probe.Prober
	StartTime time.Time

	// Stop ends the background janitors of the router.
	Stop <-chan struct{}
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:    Recovery → Logger
//	Validate:  Auth (if enabled) → RateLimit, errors in the conformity shape
//	API:       Auth (if enabled) → RateLimit
//
// Health endpoints are outside auth so monitoring probes always work.
func NewRouter(d Deps, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.MaxMultipartMemory = int64(cfg.Upload.MaxFileMB) << 20

	health := handler.Health(d.Pool, d.Prober, cfg.Portal.ConformityURL, d.StartTime)
	r.GET("/health", health)

	limiter := middleware.NewLimiter(cfg.RateLimit, d.Stop)
	keys := cfg.Auth.Keys()

	validate := r.Group("")
	if cfg.Auth.Enabled {
		validate.Use(middleware.Auth(keys, handler.ConformityReject))
	}
	validate.Use(middleware.RateLimit(limiter, handler.ConformityReject))
	validate.POST("/validate", handler.Validate(d.Service, cfg.Upload))

	v1 := r.Group("/api/v1")
	v1.GET("/health", health)

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(keys, nil))
	}
	protected.Use(middleware.RateLimit(limiter, nil))

	protected.POST("/scrape", handler.Scrape(d.Service))

	batches := handler.NewBatchStore(d.Stop)
	protected.POST("/batch/validate", handler.PostBatch(d.Service, batches, cfg.Upload, cfg.Webhook.Secret))
	protected.GET("/batch/:id", handler.GetBatch(batches))

	return r
}
