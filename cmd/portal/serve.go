package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/portal-api/internal/backend"
	"github.com/jwalitptl/portal-api/internal/config"
	"github.com/jwalitptl/portal-api/internal/handler"
	appointmentHandler "github.com/jwalitptl/portal-api/internal/handler/appointment"
	sessionHandler "github.com/jwalitptl/portal-api/internal/handler/session"
	"github.com/jwalitptl/portal-api/internal/middleware"
	"github.com/jwalitptl/portal-api/internal/repository/postgres"
	"github.com/jwalitptl/portal-api/internal/router"
	"github.com/jwalitptl/portal-api/internal/service/appointment"
	"github.com/jwalitptl/portal-api/internal/service/audit"
	"github.com/jwalitptl/portal-api/internal/service/notification"
	"github.com/jwalitptl/portal-api/internal/session"
	"github.com/jwalitptl/portal-api/internal/worker"
	"github.com/jwalitptl/portal-api/pkg/circuitbreaker"
	"github.com/jwalitptl/portal-api/pkg/logger"
	"github.com/jwalitptl/portal-api/pkg/messaging"
	redisbroker "github.com/jwalitptl/portal-api/pkg/messaging/redis"
	"github.com/jwalitptl/portal-api/pkg/metrics"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

func newLogger(cfg *config.Config) *logger.Logger {
	l := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})
	// access logs go through the global zerolog logger
	log.Logger = *l.Zerolog()
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.Log.Level))
	return l
}

func component(l *logger.Logger, name string) *logger.Logger {
	return l.WithFields(map[string]interface{}{"component": name})
}

func newBackendClient(cfg *config.Config, m *metrics.Metrics, l *logger.Logger) (*backend.Client, *circuitbreaker.CircuitBreaker, error) {
	settings := backend.BreakerSettings("appointment-backend", m)
	settings.FailureThreshold = cfg.Backend.FailureThreshold
	if cfg.Backend.BreakerTimeout > 0 {
		settings.Timeout = cfg.Backend.BreakerTimeout
	}
	breaker := circuitbreaker.NewCircuitBreaker(settings)

	client, err := backend.NewClient(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithBreaker(breaker),
		backend.WithMetrics(m),
		backend.WithLogger(component(l, "backend")),
	)
	if err != nil {
		return nil, nil, err
	}
	return client, breaker, nil
}

func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.RetryBackoff

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func runServer(cfg *config.Config) error {
	l := newLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(cfg.Metrics.Namespace, reg)

	client, breaker, err := newBackendClient(cfg, m, l)
	if err != nil {
		return err
	}

	checks := map[string]handler.Checker{
		"backend": func(context.Context) error {
			if breaker.State() == circuitbreaker.StateOpen {
				return circuitbreaker.ErrOpen
			}
			return nil
		},
	}

	var rdb *goredis.Client
	if cfg.UsesRedis() {
		rdb, err = newRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Sessions
	var store session.Store = session.NewMemoryStore(0)
	if cfg.Session.Store == "redis" {
		store = session.NewRedisStore(rdb)
	}
	sessions := session.NewService(store, cfg.Session.TTL, m, component(l, "session"))

	// Notifications
	var broker messaging.Broker = messaging.NewMemoryBroker(0)
	if cfg.Notifications.Broker == "redis" {
		broker = redisbroker.NewFromClient(rdb, l.Zerolog())
	}
	adapter := messaging.NewBrokerAdapter(broker, component(l, "broker"))
	defer adapter.Close()
	notifier := notification.NewService(adapter, component(l, "notifications"))

	// Transition audit
	var (
		auditor appointment.Auditor
		history appointmentHandler.History
		db      *sqlx.DB
	)
	if cfg.Audit.DSN != "" {
		db, err = postgres.NewDB(postgres.DBConfig{DSN: cfg.Audit.DSN, MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour})
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
		repo := postgres.NewAuditRepository(db)
		auditSvc := audit.NewService(repo, component(l, "audit"))
		auditor, history = auditSvc, auditSvc
		checks["database"] = func(ctx context.Context) error { return db.PingContext(ctx) }

		cleanup := worker.NewAuditCleanupWorker(repo, cfg.Audit.RetentionDays, cfg.Audit.CleanupInterval, component(l, "audit_cleanup"))
		go cleanup.Start(ctx)
	}

	mode, err := appointment.ParseUnknownStatusMode(cfg.Appointments.UnknownStatus)
	if err != nil {
		return err
	}
	appointments, err := appointment.NewService(appointment.Config{
		Locale:            cfg.Appointments.Locale,
		Timezone:          cfg.Appointments.Timezone,
		UnknownStatusMode: mode,
		ViewTTL:           cfg.Appointments.ViewTTL,
	}, client, auditor, notifier, m, component(l, "appointments"))
	if err != nil {
		return err
	}
	defer appointments.Shutdown()

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
	}

	var gatherer prometheus.Gatherer = reg
	if !cfg.Metrics.Enabled {
		gatherer = prometheus.NewRegistry()
	}

	r := router.NewRouter(
		sessions,
		handler.NewHandler(gatherer, checks),
		sessionHandler.NewHandler(sessions, appointments, sessionHandler.CookieConfig{
			Secure: cfg.Session.CookieSecure,
			Domain: cfg.Session.CookieDomain,
		}),
		appointmentHandler.NewHandler(appointments, notifier, history),
		router.RouterConfig{
			Mode:           cfg.Server.Mode,
			RateLimit:      rate.Limit(cfg.RateLimit.RPS),
			RateBurst:      cfg.RateLimit.Burst,
			RequestTimeout: cfg.Server.RequestTimeout,
			CORSConfig:     corsConfig,
			MetricsPrefix:  cfg.Metrics.Namespace,
			Registerer:     reg,
		},
	)

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("portal API listening", "addr", srv.Addr, "backend", cfg.Backend.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	l.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	l.Info("server exited properly")
	return nil
}
