package policy

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/punchamoorthee/coinledger/internal/domain"
	"github.com/punchamoorthee/coinledger/internal/logging"
)

var lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "coinledger_policy_lookups_total",
	Help: "Variant point-config lookups, labeled by outcome",
}, []string{"outcome"})

// Source fetches the current payment policy of a variant.
type Source interface {
	VariantPointConfig(ctx context.Context, variantID string) (*domain.VariantPointConfig, error)
}

// Policies maps variant id to its policy; a missing or nil entry means currency-only.
type Policies map[string]*domain.VariantPointConfig

// For returns the variant's policy or nil.
func (p Policies) For(variantID string) *domain.VariantPointConfig {
	if p == nil {
		return nil
	}
	return p[variantID]
}

// Resolver memoises lookups for the lifetime of a single view.
// Build a new one per view; it is never a long-lived cache.
type Resolver struct {
	source      Source
	concurrency int
	logger      logging.Logger

	group singleflight.Group
	mu    sync.Mutex
	seen  map[string]*domain.VariantPointConfig
}

func NewResolver(source Source, concurrency int, logger logging.Logger) *Resolver {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Resolver{
		source:      source,
		concurrency: concurrency,
		logger:      logging.OrDiscard(logger),
		seen:        make(map[string]*domain.VariantPointConfig),
	}
}

// Lookup returns the variant's policy, or nil when it is unavailable for any reason.
func (r *Resolver) Lookup(ctx context.Context, variantID string) *domain.VariantPointConfig {
	if variantID == "" {
		return nil
	}

	r.mu.Lock()
	cfg, ok := r.seen[variantID]
	r.mu.Unlock()
	if ok {
		return cfg
	}

	v, _, _ := r.group.Do(variantID, func() (interface{}, error) {
		cfg := r.fetch(ctx, variantID)
		r.mu.Lock()
		r.seen[variantID] = cfg
		r.mu.Unlock()
		return cfg, nil
	})
	return v.(*domain.VariantPointConfig)
}

func (r *Resolver) fetch(ctx context.Context, variantID string) *domain.VariantPointConfig {
	cfg, err := r.source.VariantPointConfig(ctx, variantID)
	if err != nil {
		lookupsTotal.WithLabelValues("error").Inc()
		r.logger.WithError(err).WithField("variant_id", variantID).Warn("point config unavailable, pricing as currency")
		return nil
	}
	if cfg == nil {
		lookupsTotal.WithLabelValues("absent").Inc()
		return nil
	}
	if err := cfg.Validate(); err != nil {
		lookupsTotal.WithLabelValues("invalid").Inc()
		r.logger.WithError(err).WithField("variant_id", variantID).Warn("point config rejected, pricing as currency")
		return nil
	}
	lookupsTotal.WithLabelValues("ok").Inc()
	return cfg
}

// Resolve looks up every distinct variant concurrently and joins the results.
func (r *Resolver) Resolve(ctx context.Context, variantIDs []string) Policies {
	out := make(Policies, len(variantIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, id := range variantIDs {
		if id == "" {
			continue
		}
		mu.Lock()
		_, dup := out[id]
		out[id] = nil
		mu.Unlock()
		if dup {
			continue
		}
		id := id
		g.Go(func() error {
			cfg := r.Lookup(gctx, id)
			mu.Lock()
			out[id] = cfg
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
