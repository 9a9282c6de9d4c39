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

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"callmarket/internal/audit"
	"callmarket/internal/auth"
	"callmarket/internal/availability"
	"callmarket/internal/calls"
	"callmarket/internal/config"
	"callmarket/internal/httpapi"
	"callmarket/internal/ledger"
	"callmarket/internal/preview"
	"callmarket/internal/rates"
	"callmarket/internal/receipts"
	"callmarket/internal/settlement"
	"callmarket/internal/users"
	"callmarket/internal/webhooks"
	"callmarket/internal/withdrawal"
	"callmarket/pkg/logger"
	"callmarket/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local development convenience; production injects real env.
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Persistence
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	ledgerSvc := ledger.NewService(ledger.NewPostgresStore(db), auditSvc)
	userSvc := users.NewService(users.NewPostgresRepo(db))
	rateSvc := rates.NewService(rates.NewPostgresRepo(db))
	previewSvc := preview.NewService(preview.NewPostgresRepo(db))
	callRepo := calls.NewPostgresRepo(db)

	// Domain services
	engine := settlement.NewEngine(callRepo, ledgerSvc, rateSvc, auditSvc, cfg.Billing.PreviewSeconds)
	callSvc := calls.NewService(callRepo, previewSvc, engine)

	h := httpapi.Handlers{
		Auth:     authManager,
		Users:    userSvc,
		Calls:    callSvc,
		Ledger:   ledgerSvc,
		Rates:    rateSvc,
		Receipts: receipts.NewProjector(callRepo, ledgerSvc, cfg.Billing.TokenPriceUSDCents, cfg.Billing.PreviewSeconds),
		Withdrawals: withdrawal.NewService(
			withdrawal.NewPostgresRepo(db), ledgerSvc, userSvc, auditSvc,
			withdrawal.Config{MinTokens: cfg.Billing.MinWithdrawalTokens, Disabled: cfg.Billing.PayoutsDisabled},
		),
		Availability: availability.NewService(
			availability.NewRedisClaimer(rdb), ledgerSvc,
			cfg.Billing.AvailabilityWindow, cfg.Billing.AvailabilityCreditTokens,
		),
		Settlement: engine,
		Webhooks:   webhooks.NewProcessor(webhooks.NewPostgresRepo(db), callSvc, ledgerSvc, []byte(cfg.Billing.WebhookSecret)),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, auth.RequireAccessToken(authManager), db)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
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
