package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"softphone-dialer/internal/audit"
	"softphone-dialer/internal/config"
	"softphone-dialer/internal/dialer"
	"softphone-dialer/internal/directory"
	"softphone-dialer/internal/hub"
	"softphone-dialer/internal/reporting"
	"softphone-dialer/internal/telephony"
	"softphone-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

// activityStore is the audit trail, written by the dialer and read by reports.
type activityStore interface {
	audit.Repository
	reporting.Repository
}

// app holds the long-lived dependencies of one dialer process.
type app struct {
	log *slog.Logger

	db  *sql.DB
	rdb *redis.Client

	line  telephony.SignalingClient
	serve func(ctx context.Context) error
	demo  *telephony.DemoClient

	hub     *hub.Hub
	ctrl    *dialer.Controller
	reports *reporting.Service
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	dir, activity, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.openLine(cfg); err != nil {
		return nil, err
	}

	a.hub = hub.New(log, cfg.AllowOrigin)
	a.ctrl = dialer.New(dialer.Config{
		AgentID:        cfg.Dialer.AgentID,
		ExternalPhone:  cfg.VoIP.ExternalPhone,
		AlwaysTransfer: cfg.VoIP.AlwaysTransfer,
		AutoDialPause:  cfg.Dialer.AutoDialPause,
	}, dir, a.line, a.hub, log).WithAudit(audit.NewService(activity))
	a.reports = reporting.NewService(activity)
	a.hub.WithGreeting(func() hub.Message {
		return hub.Message{Type: "snapshot", Data: a.ctrl.Snapshot(), Timestamp: time.Now().UTC()}
	})

	if cfg.UseRedis() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.ctrl.WithLease(dialer.NewRedisLease(rdb, cfg.Dialer.AgentID, cfg.Dialer.LeaseTTL))
	}

	ok = true
	return a, nil
}

// openStore picks the Postgres directory when a database is configured and
// the seeded in-memory one otherwise.
func (a *app) openStore(ctx context.Context, cfg config.Config) (directory.Service, activityStore, error) {
	if !cfg.UsePostgres() {
		a.log.Warn("no database configured, using in-memory directory")
		repo := directory.NewMemoryRepo()
		seedDemo(repo)
		return repo, audit.NewMemoryRepo(), nil
	}

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	a.db = db
	if err := directory.Migrate(ctx, db); err != nil {
		return nil, nil, err
	}
	auditRepo := audit.NewPostgresRepo(db)
	if err := auditRepo.Migrate(ctx); err != nil {
		return nil, nil, err
	}
	return directory.NewPostgresRepo(db, cfg.Dialer.AgentID), auditRepo, nil
}

func (a *app) openLine(cfg config.Config) error {
	if cfg.VoIP.IsDemo() {
		a.demo = telephony.NewDemoClient(telephony.DemoConfig{}, a.log)
		a.line = a.demo
		return nil
	}
	sc, err := telephony.NewSIPClient(telephony.SIPConfig{
		PBXHost:       cfg.VoIP.SignalingHost(),
		Login:         cfg.VoIP.Login,
		Password:      cfg.VoIP.Password,
		ListenAddr:    cfg.VoIP.ListenAddr,
		Transport:     cfg.VoIP.Transport,
		AdvertiseHost: cfg.VoIP.AdvertiseHost,
		MediaPort:     cfg.VoIP.MediaPort,
		RingTimeout:   cfg.VoIP.RingTimeout(),
	}, a.log)
	if err != nil {
		return fmt.Errorf("sip: %w", err)
	}
	a.line = sc
	a.serve = sc.Serve
	return nil
}

// start launches the background loops. They stop with ctx.
func (a *app) start(ctx context.Context, cfg config.Config) {
	go a.hub.Run(ctx)
	go func() {
		if err := a.ctrl.Run(ctx, a.line.Events()); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("dialer stopped", "err", err)
		}
	}()
	go a.ctrl.Poll(ctx, cfg.Dialer.PollInterval)
	if a.rdb != nil {
		go a.ctrl.KeepLease(ctx, cfg.Dialer.LeaseTTL/3)
	}
	if a.serve != nil {
		go func() {
			if err := a.serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("sip server stopped", "err", err)
			}
		}()
	}
}

func (a *app) health(c *gin.Context) {
	if a.db != nil {
		if err := utils.HealthCheck(c.Request.Context(), a.db, 2*time.Second); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
			return
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "redis unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": a.hub.ClientCount()})
}

func (a *app) Close() {
	if a.line != nil {
		_ = a.line.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
