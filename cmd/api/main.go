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

	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/geocoder89/projecthub/internal/config"
	"github.com/geocoder89/projecthub/internal/db"
	httpx "github.com/geocoder89/projecthub/internal/http"
	"github.com/geocoder89/projecthub/internal/http/handlers"
	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/geocoder89/projecthub/internal/notifications"
	"github.com/geocoder89/projecthub/internal/observability"
	"github.com/geocoder89/projecthub/internal/queue"
	"github.com/geocoder89/projecthub/internal/queue/redisclient"
	"github.com/geocoder89/projecthub/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const devJWTSecret = "dev-only-insecure-secret"

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, using the development secret")
		cfg.JWTSecret = devJWTSecret
	}

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, "projecthub-api", cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, cfg.DBURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	if err := db.Migrate(ctx, pool); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	// built once for the life of the process
	users := postgres.NewUsersRepo(pool, prom)

	created, err := db.EnsureAdminUser(ctx, users, cfg)
	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}
	if created {
		log.Info("bootstrap admin created", "email", cfg.AdminEmail)
	}

	// outbound mail goes through the breaker
	notifier := notifications.NewProtectedNotifier(notifications.NewLogNotifier(log), notifications.ProtectedNotifierConfig{})

	ready := map[string]handlers.Pinger{"postgres": users}

	var (
		dispatcher notifications.Dispatcher
		closeQueue func(context.Context) error
	)

	switch cfg.NotifyMode {
	case "redis":
		rdb := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx); err != nil {
			log.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		rd := queue.NewRedisDispatcher(rdb, queue.RedisDispatcherConfig{
			Queue:   cfg.NotifyQueue,
			Workers: cfg.NotifyWorkers,
		}, log, prom)
		dispatcher = rd
		ready["redis"] = rdb
		closeQueue = func(ctx context.Context) error {
			err := rd.Close(ctx)
			if cerr := rdb.Close(); err == nil {
				err = cerr
			}
			return err
		}
	default:
		pd := notifications.NewPoolDispatcher(notifier, notifications.PoolConfig{Workers: cfg.NotifyWorkers}, log, prom)
		dispatcher = pd
		closeQueue = pd.Close
	}

	tokens := auth.NewManager(cfg.JWTSecret, cfg.SessionTTL)

	svc := identity.NewService(identity.Deps{
		Repo:              users,
		Tokens:            tokens,
		OTP:               auth.NewOTPService(cfg.OTPTTL),
		Reset:             auth.NewResetTokenService(cfg.ResetTTL),
		Dispatcher:        dispatcher,
		Invitations:       notifier,
		MinPasswordLength: cfg.MinPasswordLength,
		Log:               log,
		Metrics:           prom,
	})

	router := httpx.NewRouter(httpx.RouterDeps{
		Cfg:      cfg,
		Service:  svc,
		Tokens:   tokens,
		Prom:     prom,
		Gatherer: reg,
		Ready:    ready,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "notify_mode", cfg.NotifyMode)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		// pending notifications drain before their backends go away
		if err := closeQueue(ctx); err != nil {
			log.Error("notification dispatcher close failed", "err", err)
		}

		pool.Close()

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
