package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"governance-api/api"
	"governance-api/config"
	"governance-api/ingest"
	"governance-api/storage"
	"governance-api/workspace"
)

const (
	bodyLimit       = "25M"
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		logger.SetFormatter(&log.JSONFormatter{})
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceSampleRatio))),
	}
	if cfg.TraceExport {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(api.NewLogExporter(logger)))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	base, err := storage.New(cfg.StorageConnectionString, cfg.TasksTable, cfg.AuditQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	rc := redis.NewClient(cfg.RedisOptions())
	store := storage.NewCache(base, rc, cfg.TasksCacheTTL)

	workspaces := workspace.NewRedisStore(rc, cfg.WorkspaceTTL)
	committer := workspace.NewCommitter(
		workspaces,
		store,
		workspace.NewRedisLocker(rc, cfg.CommitLockTTL),
		logger,
	)

	var auth *api.Auth
	if cfg.TestMode() {
		logger.Warn("token verification uses the shared test secret")
		auth = api.NewAuth(nil, cfg.Auth0Audience, "", api.WithTestSecret(cfg.TestSecret()))
	} else {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/", api.WithKeyCacheTTL(cfg.JWKSCacheTTL))
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key", "If-Match"},
		ExposeHeaders: []string{"ETag", echo.HeaderLocation},
	}))
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, api.Deps{
		Tasks:      store,
		Workspaces: workspaces,
		Ingestor:   ingest.New(cfg.IngestionURL, cfg.IngestionTimeout),
		Committer:  committer,
		Auth:       auth,
		Deduper:    api.NewRedisDeduper(rc, cfg.DeduperTTL),
		Logger:     logger,
		Checks: map[string]api.HealthCheck{
			"redis": func(ctx context.Context) error { return rc.Ping(ctx).Err() },
		},
		Pprof: cfg.PprofEnabled,
	})

	go func() {
		if err := e.Start(cfg.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("http shutdown")
	}
	if err := tp.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("tracer shutdown")
	}
	if err := rc.Close(); err != nil {
		logger.WithError(err).Error("redis close")
	}
}
