package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"softphone-dialer/internal/auth"
	"softphone-dialer/internal/config"
	"softphone-dialer/internal/httpapi"
	"softphone-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	a, err := build(rootCtx, cfg, log)
	if err != nil {
		log.Error("dialer init failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.ctrl.RefreshQueue(rootCtx, true); err != nil {
		log.Warn("initial queue load failed", "err", err)
	}
	a.start(rootCtx, cfg)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:         authManager,
		Dialer:       a.ctrl,
		AgentID:      cfg.Dialer.AgentID,
		PasswordHash: cfg.Auth.AgentPasswordHash,
		Reports:      a.reports,
	}
	if a.demo != nil {
		h.Demo = a.demo
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager), a.hub.ServeWS, a.health)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "voip_mode", cfg.VoIP.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
