package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"freeswitch-bridge/internal/attempts"
	"freeswitch-bridge/internal/auth"
	"freeswitch-bridge/internal/config"
	"freeswitch-bridge/internal/dialer"
	"freeswitch-bridge/internal/httpapi"
	"freeswitch-bridge/internal/routing"
	"freeswitch-bridge/internal/telephony"
	"freeswitch-bridge/pkg/logger"
	"freeswitch-bridge/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/time/rate"
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

	ready := map[string]httpapi.ReadyCheck{}

	// Attempt store
	var (
		repo attempts.Repository
		db   *sql.DB
	)
	switch cfg.Store.Backend {
	case "postgres":
		db, err = utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		pg := attempts.NewPostgresRepo(db)
		if err := pg.EnsureSchema(rootCtx); err != nil {
			log.Error("attempt schema init failed", "err", err)
			os.Exit(1)
		}
		repo = pg
		ready["postgres"] = func(ctx context.Context) error { return utils.HealthCheck(ctx, db, time.Second) }
	default:
		log.Warn("attempt history kept in memory only")
		repo = attempts.NewMemoryRepo()
	}
	recorder := attempts.NewService(repo, log.With("component", "recorder"), attempts.Options{})

	// Concurrency cap
	var slots httpapi.Slots
	if cfg.Dialer.MaxConcurrent > 0 {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		// A slot outlives at most one full campaign attempt if the process dies.
		s, err := utils.NewSlots(rdb, "dialer:campaigns:active", cfg.Dialer.MaxConcurrent, dialTimeout(cfg)+time.Minute)
		if err != nil {
			log.Error("concurrency cap init failed", "err", err)
			os.Exit(1)
		}
		slots = s
		ready["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// FreeSWITCH session. It outlives the HTTP server so in-flight attempts
	// can finish and clean up during shutdown.
	eslCtx, stopESL := context.WithCancel(context.Background())
	defer stopESL()

	hub := telephony.NewHub(log.With("component", "hub"))
	esl := telephony.NewESLClient(telephony.ESLConfig{Addr: cfg.ESLAddr(), Password: cfg.ESL.Password}, hub, log.With("component", "esl"))
	eslDone := make(chan struct{})
	go func() {
		defer close(eslDone)
		esl.Run(eslCtx)
	}()
	ready["esl"] = func(context.Context) error {
		if !esl.Connected() {
			return telephony.ErrNotConnected
		}
		return nil
	}

	var limiter *rate.Limiter
	if cfg.Dialer.OriginateRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Dialer.OriginateRate), 1)
	}
	legs := telephony.NewController(esl, limiter, log.With("component", "legs"))

	orch := dialer.NewOrchestrator(legs, hub, recorder, dialer.Policy{
		MaxRounds:      cfg.Dialer.MaxRounds,
		AgentRing:      cfg.Dialer.AgentRing,
		LeadRing:       cfg.Dialer.LeadRing,
		CallerID:       cfg.Dialer.CallerID,
		MediaTimeout:   cfg.Dialer.MediaTimeout,
		ContinueOnFail: cfg.Dialer.ContinueOnFail,
	}, log.With("component", "dialer"))

	h := httpapi.Handlers{
		Dialer:      orch,
		Plan:        routing.DialPlan{AgentPrefix: cfg.Dialer.AgentPrefix, LeadPrefix: cfg.Dialer.GatewayPrefix, Endpoints: cfg.Dialer.Endpoints},
		History:     recorder,
		Slots:       slots,
		Ready:       ready,
		DialTimeout: dialTimeout(cfg),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// POST /v1/dial holds the connection for the whole attempt.
		WriteTimeout: dialTimeout(cfg) + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "esl", cfg.ESLAddr(), "max_rounds", cfg.Dialer.MaxRounds)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), dialTimeout(cfg)+20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	orch.Wait()
	if err := recorder.Close(shutdownCtx); err != nil {
		log.Error("recorder drain failed", "err", err)
	}

	stopESL()
	<-eslDone
	if err := esl.Close(); err != nil {
		log.Debug("esl close", "err", err)
	}
	log.Info("shutdown complete")
}

// dialTimeout is the worst case for one attempt with a generous agent list.
func dialTimeout(cfg config.Config) time.Duration {
	perAgent := cfg.Dialer.AgentRing + cfg.Dialer.LeadRing + 5*time.Second
	return time.Duration(cfg.Dialer.MaxRounds) * 10 * perAgent
}
