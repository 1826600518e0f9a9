package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/tcees/api"
	"github.com/use-agent/tcees/cache"
	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/pool"
	"github.com/use-agent/tcees/probe"
	"github.com/use-agent/tcees/scraper"
	"github.com/use-agent/tcees/service"
	"github.com/use-agent/tcees/tcees"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("tcees-validator starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"workers", cfg.Server.Workers,
		"requestTimeout", cfg.Server.RequestTimeout,
		"portal", cfg.Portal.ConformityURL,
	)

	// ── 3. Browser driver and session pool ──────────────────────────
	driver, err := scraper.NewRodDriver(cfg.Browser)
	if err != nil {
		slog.Error("failed to initialise browser driver", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			slog.Warn("closing browser driver", "error", err)
		}
	}()

	sc := scraper.New(driver, cfg.Scraper, pool.Config{
		Capacity: cfg.Server.Workers,
		Reuse:    cfg.Browser.ReuseSessions,
		MaxUses:  cfg.Browser.MaxSessionUses,
	})
	defer sc.Close()

	// ── 4. Page profiles and service ────────────────────────────────
	schemas, err := tcees.Profiles(cfg.Portal)
	if err != nil {
		slog.Error("invalid portal configuration", "error", err)
		os.Exit(1)
	}

	cc := cache.New[*service.Outcome](cfg.Cache.MaxEntries)
	defer cc.Close()

	svc, err := service.New(sc, schemas, cc, cfg.Server.RequestTimeout)
	if err != nil {
		slog.Error("failed to initialise service", "error", err)
		os.Exit(1)
	}

	// ── 5. Setup router ─────────────────────────────────────────────
	stop := make(chan struct{})
	defer close(stop)
	router := api.NewRouter(api.Deps{
		Service:   svc,
		Pool:      sc,
		Prober:    probe.New(10 * time.Second),
		StartTime: time.Now(),
		Stop:      stop,
	}, cfg)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// In-flight checks may hold a browser for a whole request timeout.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Deferred closes kill idle browser sessions.
	slog.Info("tcees-validator stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
