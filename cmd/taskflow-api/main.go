package main

import (
	"context"
	"errors"
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

	"taskflow/api"
	"taskflow/config"
	"taskflow/storage"
)

func main() {
	conf, err := config.Parse()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if conf.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	store, err := storage.New(conf.Storage.ConnectionString, conf.Storage.TasksTable, conf.Storage.EventsQueue)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	if conf.Storage.Provision {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := store.Provision(ctx)
		cancel()
		if err != nil {
			logger.Fatalf("provision: %v", err)
		}
		logger.Info("storage provisioned")
	}

	deps := api.Deps{Store: store, Logger: logger}
	if conf.Redis.URL != "" {
		redisOpts, err := config.RedisOptions(conf.Redis.URL)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		deps.Store = storage.NewCache(store, rc, conf.Redis.CacheTTL)
		deps.Deduper = api.NewRedisDeduper(rc, conf.Redis.DedupTTL)
	} else {
		logger.Warn("redis not configured; task cache and idempotency checks disabled")
	}

	authOpts := api.AuthOptions{
		Audience:    conf.Auth.Audience,
		Issuer:      conf.Auth.Issuer(),
		TestSecret:  conf.Auth.TestSecret,
		KeyCacheTTL: conf.Auth.JWKSCacheTTL,
	}
	var jwks *keyfunc.JWKS
	if conf.Auth.TestSecret == "" {
		jwks, err = keyfunc.Get(conf.Auth.JWKSURL(), keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				logger.WithError(err).Error("jwks refresh failed")
			},
		})
		if err != nil {
			logger.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
	} else {
		logger.Warn("auth running in HS256 test mode")
	}
	deps.Auth = api.NewAuth(jwks, authOpts)

	if conf.Storage.EventsQueue != "" {
		deps.Events = api.NewEventSender(store, api.PoolConfig{
			Workers: conf.Events.Workers,
			Buffer:  conf.Events.Buffer,
			Timeout: conf.Events.Timeout,
			Handoff: conf.Events.Handoff,
		}, logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.HTTP.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(api.GzipRequestMiddleware())
	api.Register(e, deps)

	go func() {
		if err := e.Start(conf.HTTP.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	if deps.Events != nil {
		deps.Events.Close()
	}
}
