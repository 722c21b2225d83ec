package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/coinledger/internal/checkout"
	"github.com/punchamoorthee/coinledger/internal/client"
	"github.com/punchamoorthee/coinledger/internal/config"
	"github.com/punchamoorthee/coinledger/internal/invalidation"
	"github.com/punchamoorthee/coinledger/internal/ledger"
	"github.com/punchamoorthee/coinledger/internal/logging"
	"github.com/punchamoorthee/coinledger/internal/redemption"
)

// session is one storefront process: a backend client, the invalidation bus
// and the caches and coordinator hanging off it.
type session struct {
	cfg         *config.Config
	client      *client.Client
	bus         invalidation.Bus
	points      *ledger.Reader
	carts       *checkout.CachedCarts
	coordinator *redemption.Coordinator
	logger      logging.Logger

	closers []func()
}

func openSession(ctx context.Context, g *globalFlags, stderr io.Writer) (*session, error) {
	cfg := config.Load()
	if g.backendURL != "" {
		cfg.BackendURL = g.backendURL
	}
	if g.token != "" {
		cfg.CustomerToken = g.token
	}

	logger := logging.NewLogger("coinsctl")
	logger.Logger.SetOutput(stderr)
	if !g.verbose {
		logger.Logger.SetLevel(logrus.ErrorLevel)
	}

	s := &session{cfg: cfg, logger: logger}
	s.client = client.New(client.Options{
		BaseURL:    cfg.BackendURL,
		Token:      cfg.CustomerToken,
		Timeout:    cfg.HTTPTimeout,
		MaxRetries: cfg.HTTPMaxRetries,
		Logger:     logger,
	})

	bus, err := s.openBus(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.bus = bus

	isUnauthenticated := func(err error) bool { return errors.Is(err, client.ErrUnauthenticated) }
	s.points = ledger.NewReader(s.client, bus, cfg.CustomerToken, isUnauthenticated, logger)
	s.carts = checkout.NewCachedCarts(s.client, bus)
	s.coordinator = redemption.NewCoordinator(s.client, bus, logger)
	s.closers = append(s.closers, s.points.Close, s.carts.Close)
	return s, nil
}

// openBus joins the shared Redis channel when REDIS_URL is set so that
// mutations from other processes reach this one.
func (s *session) openBus(ctx context.Context) (invalidation.Bus, error) {
	if s.cfg.RedisURL == "" {
		return invalidation.NewMemoryBus(), nil
	}
	opts, err := goredis.ParseURL(s.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := goredis.NewClient(opts)
	s.closers = append(s.closers, func() { _ = rdb.Close() })

	bus := invalidation.NewRedisBus(rdb, s.cfg.InvalidationChannel, "coinsctl", s.logger)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.closers = append(s.closers, cancel)

	ready := make(chan struct{})
	errc := make(chan error, 1)
	go func() { errc <- bus.Run(runCtx, ready) }()

	select {
	case <-ready:
		return bus, nil
	case err := <-errc:
		return nil, err
	case <-time.After(s.cfg.HTTPTimeout):
		return nil, errors.New("timed out subscribing to redis")
	}
}

func (s *session) checkoutDeps() checkout.Deps {
	return checkout.Deps{
		Carts:             s.carts,
		Policies:          s.client,
		Points:            s.points,
		Coordinator:       s.coordinator,
		Bus:               s.bus,
		LookupConcurrency: s.cfg.PolicyLookupConcurrency,
		Logger:            s.logger,
	}
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
