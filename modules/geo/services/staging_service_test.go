package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/geosync/modules/geo/domain/syncbatch"
	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/modules/geo/infrastructure/persistence/inmem"
)

func TestStageEmptyDeltaSet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := f.tenantCtx()

	b, err := f.staging.Stage(ctx, f.tenantID, "scheduler")
	require.NoError(t, err)
	require.Equal(t, syncbatch.StatusStaged, b.Status)

	items, err := f.staging.ListItems(ctx, b.ID)
	require.NoError(t, err)
	require.Empty(t, items)

	// The checkpoint still advances so scheduled runs stay idempotent.
	checkpoint, err := f.batches.GetCheckpoint(ctx, f.tenantID)
	require.NoError(t, err)
	require.False(t, checkpoint.IsZero())
}

func TestStageCopiesCanonicalCreates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	province := f.seedCanonical(t, "Gandaki", unit.LevelProvince, country)

	ctx := f.tenantCtx()
	b, err := f.staging.Stage(ctx, f.tenantID, "scheduler")
	require.NoError(t, err)

	items, err := f.staging.ListItems(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Items preserve canonical commit order, parents first.
	require.Equal(t, country.ID, items[0].CanonicalID)
	require.Equal(t, province.ID, items[1].CanonicalID)
	for _, item := range items {
		require.Equal(t, unit.DeltaCreate, item.Kind)
		u, err := item.Unit()
		require.NoError(t, err)
		require.Equal(t, item.CanonicalID, u.ID)
	}
}

func TestStageUpdateCarriesDiffAgainstMirror(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	canonical := f.seedCanonical(t, "Lamjng", unit.LevelCountry, nil)

	ctx := f.tenantCtx()
	_, err := f.staging.Stage(ctx, f.tenantID, "scheduler")
	require.NoError(t, err)

	// Mirror the unit by hand, then correct the canonical name.
	f.seedMirror(t, canonical)

	canonical.Name = "Lamjung"
	canonical.NormalizedName = "lamjung"
	canonical.UpdatedAt = time.Now().UTC()
	_, err = f.units.Update(context.Background(), canonical)
	require.NoError(t, err)

	b, err := f.staging.Stage(ctx, f.tenantID, "scheduler")
	require.NoError(t, err)

	items, err := f.staging.ListItems(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, unit.DeltaUpdate, items[0].Kind)
	require.NotEmpty(t, items[0].Diff)
}

func TestStageWatermarkSkipsAlreadyStagedChanges(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)

	ctx := f.tenantCtx()
	first, err := f.staging.Stage(ctx, f.tenantID, "scheduler")
	require.NoError(t, err)
	items, err := f.staging.ListItems(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	second, err := f.staging.Stage(ctx, f.tenantID, "scheduler")
	require.NoError(t, err)
	items, err = f.staging.ListItems(ctx, second.ID)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestStageRequiresTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.staging.Stage(context.Background(), uuid.Nil, "scheduler")
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_BODY", svcErr.Code)
}

func TestStageAllIsolatesTenantFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)

	// The nil tenant fails its pass; the real tenant still stages.
	f.registry = inmem.NewTenantRegistry(uuid.Nil, f.tenantID)
	f.staging = NewStagingService(f.units, f.batches, f.registry, f.bus)

	staged, err := f.staging.StageAll(context.Background(), "scheduler")
	require.Error(t, err)
	require.Len(t, staged, 1)
	require.Equal(t, f.tenantID, staged[0].TenantID)
	require.Equal(t, syncbatch.StatusStaged, staged[0].Status)
}

func TestListItemsUnknownBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.staging.ListItems(context.Background(), uuid.New())
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_NOT_FOUND", svcErr.Code)
}
