package services

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type SyncRunnerOptions struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	MaxBackoff   time.Duration
	Logger       *logrus.Logger
}

func (o *SyncRunnerOptions) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// SyncRunner executes staging passes per tenant across a bounded worker
// pool. Tenants run independently and unordered; within one tenant a pass
// is strictly sequential. Failed passes retry with bounded exponential
// backoff, which is safe because staging is checkpoint-idempotent.
//
// The runner never applies batches on its own: application requires a
// batch a human already APPROVED. Whether low-risk updates could ever
// bypass that gate is a product decision this code does not take.
type SyncRunner struct {
	staging *StagingService
	tenants TenantSource
	opts    SyncRunnerOptions
}

func NewSyncRunner(staging *StagingService, tenants TenantSource, opts SyncRunnerOptions) *SyncRunner {
	opts.setDefaults()
	return &SyncRunner{
		staging: staging,
		tenants: tenants,
		opts:    opts,
	}
}

// Run loops staging passes until ctx is done.
func (r *SyncRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil {
			r.opts.Logger.WithError(err).Warn("sync pass finished with failures")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce stages every tenant once, in parallel up to the worker limit.
// The first per-tenant error is returned after all tenants completed.
func (r *SyncRunner) RunOnce(ctx context.Context) error {
	tenantIDs, err := r.tenants.ListTenantIDs(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, tenantID := range tenantIDs {
		g.Go(func() error {
			return r.stageTenant(gctx, tenantID)
		})
	}
	return g.Wait()
}

func (r *SyncRunner) stageTenant(ctx context.Context, tenantID uuid.UUID) error {
	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if _, err := r.staging.Stage(ctx, tenantID, "sync-runner"); err == nil {
			return nil
		} else {
			lastErr = err
		}

		r.opts.Logger.WithError(lastErr).
			WithField("tenant_id", tenantID).
			WithField("attempt", attempt).
			Warn("staging pass failed")

		if attempt == r.opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}
	return lastErr
}

// backoff is 1s * 2^(attempt-1) capped at MaxBackoff, plus up to 10%
// jitter. Workers call it concurrently; the package-level rand source is
// the goroutine-safe one.
func (r *SyncRunner) backoff(attempt int) time.Duration {
	seconds := math.Pow(2, float64(attempt-1))
	d := time.Duration(seconds * float64(time.Second))
	if d > r.opts.MaxBackoff {
		d = r.opts.MaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(d)/10 + 1)) //nolint:gosec
	return d + jitter
}
