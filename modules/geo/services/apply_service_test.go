package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/geosync/modules/geo/domain/syncbatch"
	"github.com/iota-uz/geosync/modules/geo/domain/unit"
)

func TestApplyCreatesMirrorHierarchy(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	province := f.seedCanonical(t, "Gandaki", unit.LevelProvince, country)
	district := f.seedCanonical(t, "Lamjung", unit.LevelDistrict, province)

	batchID := f.stageApproved(t)

	result, err := f.applier.Apply(context.Background(), f.tenantID, batchID)
	require.NoError(t, err)
	require.Equal(t, 3, result.AppliedCount)
	require.Equal(t, 0, result.FailedCount)
	require.False(t, result.NoOp)

	// Every canonical row is mirrored with store-local ids and a rebuilt
	// parent chain.
	mirror, err := f.units.GetByCanonicalID(context.Background(), f.tenantID, district.ID)
	require.NoError(t, err)
	require.NotEqual(t, district.ID, mirror.ID)
	require.Equal(t, district.Name, mirror.Name)
	require.Len(t, mirror.Path, 3)

	parentMirror, err := f.units.GetByCanonicalID(context.Background(), f.tenantID, province.ID)
	require.NoError(t, err)
	require.NotNil(t, mirror.ParentID)
	require.Equal(t, parentMirror.ID, *mirror.ParentID)

	b, err := f.batches.GetBatch(context.Background(), batchID)
	require.NoError(t, err)
	require.Equal(t, syncbatch.StatusApplied, b.Status)
	require.True(t, b.RollbackEligible)
	require.NotNil(t, b.AppliedAt)
}

func TestApplyRecordsItemFailuresInLedger(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)

	ctx := f.tenantCtx()
	b, err := f.staging.Stage(ctx, f.tenantID, "test")
	require.NoError(t, err)

	// Slip a malformed item into the staged batch: its snapshot parses but
	// the delta kind is unknown.
	bogus := &syncbatch.ChangeItem{
		ID:          uuid.New(),
		BatchID:     b.ID,
		CanonicalID: uuid.New(),
		Kind:        unit.DeltaKind("EXPLODE"),
		Snapshot:    json.RawMessage(`{}`),
	}
	require.NoError(t, f.batches.AddItems(ctx, []*syncbatch.ChangeItem{bogus}))

	_, err = f.reviews.SubmitBatchForReview(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.reviews.ApproveBatch(ctx, b.ID, "admin")
	require.NoError(t, err)

	result, err := f.applier.Apply(context.Background(), f.tenantID, b.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.AppliedCount)
	require.Equal(t, 1, result.FailedCount)

	items, err := f.batches.ListItems(ctx, b.ID)
	require.NoError(t, err)
	var failed *syncbatch.ChangeItem
	for _, item := range items {
		if item.ID == bogus.ID {
			failed = item
		}
	}
	require.NotNil(t, failed)
	require.False(t, failed.Applied)
	require.NotNil(t, failed.FailureReason)
}

func TestApplyOrphanCreateFailsValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	province := f.seedCanonical(t, "Gandaki", unit.LevelProvince, country)

	ctx := f.tenantCtx()
	b, err := f.staging.CreateBatch(ctx, f.tenantID, "test")
	require.NoError(t, err)

	// Only the province item: its parent is never mirrored.
	snapshot, err := json.Marshal(province)
	require.NoError(t, err)
	item := &syncbatch.ChangeItem{
		ID:          uuid.New(),
		BatchID:     b.ID,
		CanonicalID: province.ID,
		Kind:        unit.DeltaCreate,
		Snapshot:    snapshot,
	}
	require.NoError(t, f.batches.AddItems(ctx, []*syncbatch.ChangeItem{item}))

	ok, err := f.batches.TransitionStatus(ctx, b.ID, syncbatch.StatusCreated, syncbatch.StatusStaged, nil)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.reviews.SubmitBatchForReview(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.reviews.ApproveBatch(ctx, b.ID, "admin")
	require.NoError(t, err)

	result, err := f.applier.Apply(context.Background(), f.tenantID, b.ID)
	require.NoError(t, err)
	require.Equal(t, 0, result.AppliedCount)
	require.Equal(t, 1, result.FailedCount)

	_, err = f.units.GetByCanonicalID(context.Background(), f.tenantID, province.ID)
	require.ErrorIs(t, err, unit.ErrUnitNotFound)
}

func TestApplyDeleteSoftDeletesMirrorOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	canonical := f.seedCanonical(t, "Zone One", unit.LevelCountry, nil)
	mirror := f.seedMirror(t, canonical)

	// Consume the create delta first so the deletion stages alone.
	ctx := f.tenantCtx()
	_, err := f.staging.Stage(ctx, f.tenantID, "test")
	require.NoError(t, err)

	require.NoError(t, f.units.SoftDelete(context.Background(), canonical.Ref(), time.Now().UTC()))

	batchID := f.stageApproved(t)
	result, err := f.applier.Apply(context.Background(), f.tenantID, batchID)
	require.NoError(t, err)
	require.Equal(t, 1, result.AppliedCount)

	got, err := f.units.GetByID(context.Background(), mirror.Ref())
	require.NoError(t, err)
	require.True(t, got.IsDeleted())
	require.False(t, got.Active)
}

func TestApplyTwiceIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	batchID := f.stageApproved(t)

	first, err := f.applier.Apply(context.Background(), f.tenantID, batchID)
	require.NoError(t, err)
	require.False(t, first.NoOp)

	second, err := f.applier.Apply(context.Background(), f.tenantID, batchID)
	require.NoError(t, err)
	require.True(t, second.NoOp)
	require.Equal(t, first.AppliedCount, second.AppliedCount)
	require.Equal(t, first.FailedCount, second.FailedCount)
}

func TestApplyStateChecks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)

	ctx := f.tenantCtx()
	b, err := f.staging.Stage(ctx, f.tenantID, "test")
	require.NoError(t, err)

	// STAGED, not APPROVED.
	_, err = f.applier.Apply(context.Background(), f.tenantID, b.ID)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_STATE", svcErr.Code)

	// Another tenant's id.
	_, err = f.applier.Apply(context.Background(), uuid.New(), b.ID)
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_STATE", svcErr.Code)

	_, err = f.applier.Apply(context.Background(), f.tenantID, uuid.New())
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_NOT_FOUND", svcErr.Code)

	_, err = f.applier.Apply(context.Background(), uuid.Nil, b.ID)
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_BODY", svcErr.Code)
}

func TestApplyLeavesStagingCheckpointAtStageTime(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	batchID := f.stageApproved(t)

	// A canonical commit landing between staging and application must
	// surface in the next staging pass.
	late := f.seedCanonical(t, "India", unit.LevelCountry, nil)

	_, err := f.applier.Apply(context.Background(), f.tenantID, batchID)
	require.NoError(t, err)

	ctx := f.tenantCtx()
	next, err := f.staging.Stage(ctx, f.tenantID, "test")
	require.NoError(t, err)

	items, err := f.staging.ListItems(ctx, next.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, late.ID, items[0].CanonicalID)
	require.Equal(t, unit.DeltaCreate, items[0].Kind)
}
