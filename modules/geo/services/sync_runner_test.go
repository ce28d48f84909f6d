package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/geosync/modules/geo/domain/syncbatch"
	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/modules/geo/infrastructure/persistence/inmem"
)

func TestSyncRunnerBackoff(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := NewSyncRunner(f.staging, f.registry, SyncRunnerOptions{MaxBackoff: 4 * time.Second})

	cases := []struct {
		attempt int
		base    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 4 * time.Second}, // capped
		{10, 4 * time.Second},
	}
	for _, tc := range cases {
		got := r.backoff(tc.attempt)
		if got < tc.base || got > tc.base+tc.base/10 {
			t.Fatalf("backoff(%d) = %v, want within [%v, %v]", tc.attempt, got, tc.base, tc.base+tc.base/10)
		}
	}
}

func TestSyncRunnerBackoffConcurrent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := NewSyncRunner(f.staging, f.registry, SyncRunnerOptions{MaxBackoff: 4 * time.Second})

	// Worker goroutines share the runner; jitter must be race-free.
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 1; attempt <= 5; attempt++ {
				if got := r.backoff(attempt); got < time.Second {
					t.Errorf("backoff(%d) = %v, want at least 1s", attempt, got)
				}
			}
		}()
	}
	wg.Wait()
}

func TestSyncRunnerRunOnceStagesEveryTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)

	otherTenant := uuid.New()
	registry := inmem.NewTenantRegistry(f.tenantID, otherTenant)
	r := NewSyncRunner(f.staging, registry, SyncRunnerOptions{Workers: 2})

	require.NoError(t, r.RunOnce(context.Background()))

	for _, tenantID := range []uuid.UUID{f.tenantID, otherTenant} {
		batches, err := f.batches.ListBatches(context.Background(), tenantID, syncbatch.StatusStaged)
		require.NoError(t, err)
		require.Len(t, batches, 1)
	}
}

func TestSyncRunnerStopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := NewSyncRunner(f.staging, f.registry, SyncRunnerOptions{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.Run(ctx), context.Canceled)
}
