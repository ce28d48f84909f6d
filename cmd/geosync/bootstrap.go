package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/geosync/modules/geo/infrastructure/persistence"
	"github.com/iota-uz/geosync/modules/geo/matching"
	"github.com/iota-uz/geosync/modules/geo/services"
	"github.com/iota-uz/geosync/pkg/composables"
	"github.com/iota-uz/geosync/pkg/configuration"
	"github.com/iota-uz/geosync/pkg/eventbus"
)

// runtime wires the repositories and services a command needs against one
// database pool.
type runtime struct {
	conf   *configuration.Configuration
	logger *logrus.Logger
	pool   *pgxpool.Pool
	bus    eventbus.EventBus

	tenants    *persistence.PgTenantSource
	candidates *services.CandidateService
	reviews    *services.ReviewService
	staging    *services.StagingService
	applier    *services.ApplyService
	rollbacks  *services.RollbackService
	geo        *services.GeoService
	runner     *services.SyncRunner
}

func newRuntime(ctx context.Context) (*runtime, error) {
	conf := configuration.Use()
	logger := conf.Logger()

	poolCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(poolCtx, conf.Database.Opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database pool")
	}

	aliases, err := matching.LoadAliasTable(conf.Matcher.AliasTablePath)
	if err != nil {
		logger.WithError(err).Warn("alias table not loaded, using defaults")
		aliases = matching.DefaultAliasTable()
	}
	normalizer := matching.NewNormalizer(aliases)

	units := persistence.NewUnitRepository()
	candidateRepo := persistence.NewCandidateRepository()
	batches := persistence.NewBatchRepository()
	tenants := persistence.NewTenantSource()

	matcher := matching.NewMatcher(units, matching.Config{
		HighConfidence:  conf.Matcher.HighConfidence,
		ReviewThreshold: conf.Matcher.ReviewThreshold,
		MaxResults:      conf.Matcher.MaxResults,
	})

	bus := eventbus.NewEventPublisher(logger)

	staging := services.NewStagingService(units, batches, tenants, bus)
	rt := &runtime{
		conf:       conf,
		logger:     logger,
		pool:       pool,
		bus:        bus,
		tenants:    tenants,
		candidates: services.NewCandidateService(candidateRepo, units, matcher, normalizer, bus),
		reviews:    services.NewReviewService(candidateRepo, units, batches, normalizer, persistence.NewDependentCounter(), bus),
		staging:    staging,
		applier:    services.NewApplyService(units, batches, bus),
		rollbacks:  services.NewRollbackService(units, batches, bus),
		geo:        services.NewGeoService(units),
		runner: services.NewSyncRunner(staging, tenants, services.SyncRunnerOptions{
			Workers:      conf.Sync.Workers,
			PollInterval: conf.Sync.PollInterval,
			MaxAttempts:  conf.Sync.MaxAttempts,
			MaxBackoff:   conf.Sync.MaxBackoff,
			Logger:       logger,
		}),
	}
	return rt, nil
}

// scoped returns a context carrying the pool and logger, the environment
// every repository call expects.
func (rt *runtime) scoped(ctx context.Context) context.Context {
	ctx = composables.WithPool(ctx, rt.pool)
	return composables.WithLogger(ctx, rt.logger.WithField("component", "cli"))
}

func (rt *runtime) Close() {
	rt.pool.Close()
	rt.conf.Unload()
}
