package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/caselane/caselane/pkg/accounts"
	"github.com/caselane/caselane/pkg/audit"
	"github.com/caselane/caselane/pkg/auth"
	"github.com/caselane/caselane/pkg/authz"
	"github.com/caselane/caselane/pkg/config"
	"github.com/caselane/caselane/pkg/documents"
	"github.com/caselane/caselane/pkg/middleware"
	"github.com/caselane/caselane/pkg/modules"
	"github.com/caselane/caselane/pkg/observability"
	"github.com/caselane/caselane/pkg/ocr"
	"github.com/caselane/caselane/pkg/orgs"
	"github.com/caselane/caselane/pkg/sessions"
	"github.com/caselane/caselane/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	db, err := storage.OpenPostgres(cfg.PostgresConfig())
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := storage.OpenRedis(cfg.RedisOptions())
	if err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	defer redisClient.Close()

	if err := orgs.EnsureTables(db); err != nil {
		logger.WithError(err).Error("failed to migrate identity tables")
		os.Exit(1)
	}
	if err := authz.RunMigrations(context.Background(), db); err != nil {
		logger.WithError(err).Error("failed to migrate permission tables")
		os.Exit(1)
	}

	auditStore, err := audit.NewStore(db)
	if err != nil {
		logger.WithError(err).Error("failed to prepare audit store")
		os.Exit(1)
	}
	docStore, err := documents.NewStore(db)
	if err != nil {
		logger.WithError(err).Error("failed to prepare document store")
		os.Exit(1)
	}
	moduleStore, err := modules.NewStore(db)
	if err != nil {
		logger.WithError(err).Error("failed to prepare module store")
		os.Exit(1)
	}

	uploads, err := storage.NewUploads(cfg.Uploads.Dir)
	if err != nil {
		logger.WithError(err).Error("failed to prepare upload directory")
		os.Exit(1)
	}

	tokens := auth.NewTokenManager(auth.TokenConfig{
		PlatformSecret: []byte(cfg.Auth.PlatformSecret),
		OrgSecret:      []byte(cfg.Auth.OrgSecret),
		LegacySecret:   []byte(cfg.Auth.LegacySecret),
		TTL:            cfg.Auth.TokenTTL,
	})
	sessionStore := sessions.NewStore(redisClient, cfg.Auth.SessionTTL)
	lockout := auth.NewLockoutPolicy(redisClient)
	orgService := orgs.NewPostgresService(db)

	recorder := audit.NewRecorder(auditStore, logger, metrics)
	resolver := authz.NewResolver(docStore, authz.NewStore(db), metrics)
	perms := authz.NewPermissionMiddleware(resolver)
	gate := modules.NewGate(moduleStore, metrics)
	gateMW := modules.NewGateMiddleware(gate)

	engine := &ocr.TesseractEngine{Binary: cfg.OCR.TesseractBinary}
	ocrLog := logrus.New()
	ocrQueue := ocr.NewQueue(docStore, uploads, ocr.NewExtractor(engine), ocrLog, metrics)

	sweeper := ocr.NewSweeper(docStore, ocrQueue, ocrLog)
	if cfg.OCR.StuckThreshold > 0 {
		sweeper.Threshold = cfg.OCR.StuckThreshold
	}
	sweepCron := cron.New()
	if _, err := sweepCron.AddFunc(cfg.OCR.SweepInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		sweeper.Sweep(ctx)
	}); err != nil {
		logger.WithError(err).Error("invalid sweep schedule")
		os.Exit(1)
	}
	sweepCron.Start()

	docHandlers := documents.NewHandlers(docStore, uploads, ocrQueue, recorder, perms, logger)
	accountHandlers := accounts.NewHandlers(orgService, tokens, sessionStore, lockout, recorder, logger)
	auditHandlers := audit.NewHandlers(auditStore, metrics)
	moduleHandlers := modules.NewHandlers(moduleStore, gate, recorder)
	grantHandlers := authz.NewHandlers(authz.NewStore(db), perms, recorder, logger)

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(instrument(metrics))

	health := observability.NewHealthChecker(db, redisClient)
	router.HandleFunc("/healthz", health.Liveness).Methods("GET")
	router.HandleFunc("/readyz", health.Readiness).Methods("GET")
	router.Handle("/metrics", observability.Handler(registry)).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	accountHandlers.RegisterPublicRoutes(api)

	protected := api.NewRoute().Subrouter()
	authMW := middleware.NewAuthMiddleware(tokens, sessionStore, false)
	protected.Use(authMW.Handler)
	protected.Use(middleware.OrgContextMiddleware(orgService))

	accountHandlers.RegisterRoutes(protected)
	auditHandlers.RegisterRoutes(protected)
	moduleHandlers.RegisterRoutes(protected)
	grantHandlers.RegisterRoutes(protected)

	cases := protected.NewRoute().Subrouter()
	cases.Use(gateMW.RequireModule("cases"))
	docHandlers.RegisterCaseRoutes(cases)

	docs := protected.NewRoute().Subrouter()
	docs.Use(gateMW.RequireModule("documents"))
	docHandlers.RegisterRoutes(docs)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sm := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		stopCtx := sweepCron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
		ocrQueue.Close()
		return nil
	})

	poolCtx, cancelPool := context.WithCancel(context.Background())
	defer cancelPool()

	var group errgroup.Group
	group.Go(func() error {
		storage.ReportPoolStats(poolCtx, db, metrics, 15*time.Second)
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown failed")
	}
	cancelPool()
	if err := group.Wait(); err != nil {
		logger.WithError(err).Error("server error")
		os.Exit(1)
	}
}

// instrument labels request metrics with the matched route template rather
// than the raw path, keeping label cardinality bounded.
func instrument(metrics *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			metrics.InstrumentHandler(path, next).ServeHTTP(w, r)
		})
	}
}
