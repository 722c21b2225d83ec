package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/punchamoorthee/coinledger/internal/api"
	"github.com/punchamoorthee/coinledger/internal/config"
	"github.com/punchamoorthee/coinledger/internal/invalidation"
	"github.com/punchamoorthee/coinledger/internal/logging"
	"github.com/punchamoorthee/coinledger/internal/service"
	"github.com/punchamoorthee/coinledger/internal/store"
)

func main() {
	logger := logging.NewLogger("coinledger-api")

	cfg, err := config.LoadServer()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pointsStore, err := store.NewStore(ctx, cfg.DBSource)
	if err != nil {
		logger.WithError(err).Fatal("unable to connect to database")
	}
	defer pointsStore.Close()

	if err := pointsStore.Migrate(ctx); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	// Initialize layers
	var bus invalidation.Bus
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("invalid REDIS_URL")
		}
		rdb := goredis.NewClient(opts)
		defer rdb.Close()
		bus = invalidation.NewRedisBus(rdb, cfg.InvalidationChannel, "api", logger)
		logger.WithField("channel", cfg.InvalidationChannel).Info("publishing invalidations to redis")
	}

	redemptions := service.NewRedemptionService(pointsStore.Db, logger)
	handler := api.NewHandler(pointsStore, redemptions, bus, logger)
	router := api.NewRouter(handler, []byte(cfg.JWTSecret))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("graceful shutdown failed")
		}
	}()

	logger.WithFields(logging.Fields{"port": cfg.Port, "env": cfg.Env}).Info("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server failed")
	}
}
