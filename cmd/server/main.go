package main // entry point of the admission API

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iliyamo/ticket-admission/internal/admission"
	"github.com/iliyamo/ticket-admission/internal/config"
	"github.com/iliyamo/ticket-admission/internal/database"
	"github.com/iliyamo/ticket-admission/internal/handler"
	"github.com/iliyamo/ticket-admission/internal/issuance"
	"github.com/iliyamo/ticket-admission/internal/metrics"
	"github.com/iliyamo/ticket-admission/internal/middleware"
	"github.com/iliyamo/ticket-admission/internal/publisher"
	"github.com/iliyamo/ticket-admission/internal/queue"
	"github.com/iliyamo/ticket-admission/internal/repository"
	"github.com/iliyamo/ticket-admission/internal/router"
	"github.com/iliyamo/ticket-admission/internal/token"
)

// eventPublisher is what both services publish through.
type eventPublisher interface {
	admission.Publisher
	issuance.Publisher
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Error("database unavailable", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Error("schema migration failed", "err", err)
		os.Exit(1)
	}

	secret, previous := cfg.TokenSecrets()
	codec, err := token.NewCodec(token.Options{
		Namespace:       cfg.AdmissionNamespace,
		Secret:          secret,
		PreviousSecrets: previous,
	})
	if err != nil {
		logger.Error("token codec", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(reg)

	var events eventPublisher = publisher.Nop{}
	if cfg.EventsEnabled {
		events = publisher.NewAMQP(cfg.RabbitURL, logger)
		go func() {
			if err := queue.StartAdmissionConsumer(ctx, cfg.RabbitURL, cfg.AdmissionLog, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("admission consumer stopped", "err", err)
			}
		}()
	}

	tickets := repository.NewTicketRepo(db)
	scans := admission.NewService(codec, tickets,
		admission.WithPublisher(events),
		admission.WithRecorder(recorder),
		admission.WithLogger(logger),
	)
	issuer := issuance.NewService(db, codec, tickets, repository.NewTicketTypeRepo(db),
		issuance.WithTTL(cfg.TicketTTL),
		issuance.WithPublisher(events),
		issuance.WithRecorder(recorder),
		issuance.WithLogger(logger),
	)

	var scanLimit echo.MiddlewareFunc
	if rdb := config.NewRedisClient(); rdb != nil {
		defer rdb.Close()
		scanLimit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
	} else {
		logger.Warn("redis unavailable; scan rate limiting disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover(), middleware.RequestLogger(logger))
	router.RegisterRoutes(e, metrics.Handler(reg))
	router.RegisterGate(e,
		handler.NewGateAuthHandler(cfg, repository.NewGateDeviceRepo(db), logger),
		handler.NewScanHandler(scans, repository.NewScanEventRepo(db), cfg.StoreTimeout, logger),
		cfg.JWTSecret, scanLimit)
	router.RegisterCheckout(e, handler.NewIssuanceHandler(issuer, cfg.StoreTimeout, logger), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "namespace", codec.Namespace())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
