package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/clinical"
	"github.com/clinic/clinic/internal/domain/person"
	"github.com/clinic/clinic/internal/domain/reports"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/domain/softdelete"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/lock"
	"github.com/clinic/clinic/internal/platform/metrics"
	"github.com/clinic/clinic/internal/platform/middleware"
)

const version = "0.1.0"

// app is the wired HTTP surface plus the pieces serve needs to run
// alongside it.
type app struct {
	echo       *echo.Echo
	scheduling *scheduling.Service
	hub        *events.Hub
	registry   *prometheus.Registry
}

// newApp wires every repository, service and handler on conn. A nil
// registry gets a fresh one with the Go and process collectors.
func newApp(cfg *config.Config, logger zerolog.Logger, conn db.DB, reg *prometheus.Registry) *app {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	loc := cfg.Location()
	httpMetrics := metrics.NewHTTPMetrics(reg)

	hub := events.NewHub(logger)
	hub.OnDrop(httpMetrics.EventDropped)

	tx := db.NewTxManager(conn)
	users := person.NewUserRepo(conn)
	patients := person.NewPatientRepo(conn)
	doctors := person.NewDoctorRepo(conn)
	admins := person.NewAdminRepo(conn)

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		SigningKey: []byte(cfg.JWTSigningKey),
		TTL:        cfg.TokenTTL,
		Skipper:    auth.AuthSkipper,
	}

	personSvc := person.NewService(tx, users, patients, doctors, admins, nil)

	billingSvc := billing.NewService(tx, billing.NewRepo(conn), patients)
	billingSvc.SetMetrics(metrics.NewBillingMetrics(reg))
	billingSvc.SetPublisher(hub)
	billingSvc.SetClock(time.Now, loc)

	schedSvc := scheduling.NewService(tx, scheduling.NewRepo(conn), doctors, patients, billingSvc)
	schedSvc.SetMetrics(metrics.NewSchedulingMetrics(reg))
	schedSvc.SetPublisher(hub)
	schedSvc.SetConsultationFee(cfg.ConsultationFeeCents)
	schedSvc.SetClock(time.Now, loc)

	clinicalSvc := clinical.NewService(tx, clinical.NewPrescriptionRepo(conn), clinical.NewRecordRepo(conn), doctors, patients)
	clinicalSvc.SetPublisher(hub)
	clinicalSvc.SetClock(time.Now, loc)

	records := softdelete.NewManager(tx, softdelete.NewStore(conn))
	records.SetMetrics(metrics.NewRecordMetrics(reg))
	records.SetPublisher(hub)

	reportsSvc := reports.NewService(reports.NewRepo(conn))
	reportsSvc.SetClock(time.Now, loc)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(httpMetrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		logger.Warn().Msg("development auth is active: every request is treated as admin")
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	events.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e)

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1 := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))

	person.NewHandler(personSvc, jwtCfg).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)
	clinical.NewHandler(clinicalSvc).RegisterRoutes(apiV1)
	softdelete.NewHandler(records).RegisterRoutes(apiV1)
	reports.NewHandler(reportsSvc).RegisterRoutes(apiV1)

	return &app{echo: e, scheduling: schedSvc, hub: hub, registry: reg}
}

func runServer(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a := newApp(cfg, logger, pool, nil)

	var checks []db.Check
	sweeper := scheduling.NewNoShowSweeper(a.scheduling, logger).WithInterval(cfg.NoShowSweepInterval)
	if cfg.RedisURL != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sweeper.WithLocker(lock.NewRedisLocker(rdb, ""))
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info().Msg("no-show sweep lease backed by redis")
	}
	a.echo.GET("/health/db", db.HealthHandler(pool, checks...))

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	go sweeper.Run(workerCtx)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	stopWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
