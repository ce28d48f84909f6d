package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/geosync/modules/geo/domain/candidate"
	"github.com/iota-uz/geosync/modules/geo/domain/syncbatch"
	"github.com/iota-uz/geosync/modules/geo/domain/unit"
)

func submitQueued(t *testing.T, f *fixture, name string, level unit.Level, parentID *uuid.UUID) uuid.UUID {
	t.Helper()

	result, err := f.submissions.Submit(f.tenantCtx(), SubmitInput{
		Name:        name,
		Level:       level,
		ParentID:    parentID,
		Country:     "NP",
		SubmittedBy: "clerk",
	})
	require.NoError(t, err)
	require.NotNil(t, result.CandidateID)
	return *result.CandidateID
}

func TestOpenReview(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	id := submitQueued(t, f, "Besisahar", unit.LevelDistrict, &country.ID)

	c, err := f.reviews.OpenReview(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, candidate.StatusUnderReview, c.Status)

	// Not PENDING anymore.
	_, err = f.reviews.OpenReview(context.Background(), id)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_STATE", svcErr.Code)
}

func TestRejectCandidateRequiresReason(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	id := submitQueued(t, f, "Besisahar", unit.LevelDistrict, &country.ID)
	_, err := f.reviews.OpenReview(context.Background(), id)
	require.NoError(t, err)

	_, err = f.reviews.ReviewCandidate(context.Background(), id, ReviewDecision{Approve: false, Reason: "  "})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_BODY", svcErr.Code)

	c, err := f.reviews.ReviewCandidate(context.Background(), id, ReviewDecision{Approve: false, Reason: "not a real place"})
	require.NoError(t, err)
	require.Equal(t, candidate.StatusRejected, c.Status)
	require.NotNil(t, c.ReviewReason)
	require.Equal(t, "not a real place", *c.ReviewReason)
}

func TestApproveCandidateFoldsIntoCanonicalStore(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	province := f.seedCanonical(t, "Gandaki", unit.LevelProvince, country)
	id := submitQueued(t, f, "Besisahar", unit.LevelDistrict, &province.ID)
	_, err := f.reviews.OpenReview(context.Background(), id)
	require.NoError(t, err)

	c, err := f.reviews.ReviewCandidate(context.Background(), id, ReviewDecision{Approve: true})
	require.NoError(t, err)
	require.Equal(t, candidate.StatusMerged, c.Status)
	require.NotNil(t, c.MergedUnitID)

	created, err := f.units.GetByID(context.Background(), unit.Ref{Store: unit.CanonicalStore, ID: *c.MergedUnitID})
	require.NoError(t, err)
	require.Equal(t, "Besisahar", created.Name)
	require.Equal(t, unit.LevelDistrict, created.Level)
	require.True(t, created.Official)
	require.True(t, unit.ChildPath(province.Path, created.ID).Equal(created.Path))
}

func TestApproveCandidateMergeIntoExistingUnit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	target := f.seedCanonical(t, "Lamjng", unit.LevelDistrict, country)
	id := submitQueued(t, f, "Lamjung District", unit.LevelDistrict, &country.ID)
	_, err := f.reviews.OpenReview(context.Background(), id)
	require.NoError(t, err)

	c, err := f.reviews.ReviewCandidate(context.Background(), id, ReviewDecision{
		Approve:         true,
		MergeIntoUnitID: &target.ID,
	})
	require.NoError(t, err)
	require.Equal(t, candidate.StatusMerged, c.Status)
	require.NotNil(t, c.MergedUnitID)
	require.Equal(t, target.ID, *c.MergedUnitID)

	// Merge corrects the existing unit's name instead of creating a row.
	corrected, err := f.units.GetByID(context.Background(), unit.Ref{Store: unit.CanonicalStore, ID: target.ID})
	require.NoError(t, err)
	require.Equal(t, "Lamjung District", corrected.Name)
	require.Equal(t, "lamjung", corrected.NormalizedName)
}

func TestApproveTenantPrivateLevelRefused(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	id := submitQueued(t, f, "Ward 5", unit.LevelWard, &country.ID)
	_, err := f.reviews.OpenReview(context.Background(), id)
	require.NoError(t, err)

	_, err = f.reviews.ReviewCandidate(context.Background(), id, ReviewDecision{Approve: true})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_BODY", svcErr.Code)
}

func TestBatchReviewLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)

	ctx := f.tenantCtx()
	b, err := f.staging.Stage(ctx, f.tenantID, "scheduler")
	require.NoError(t, err)
	require.Equal(t, syncbatch.StatusStaged, b.Status)

	// Approving a batch nobody submitted for review is refused.
	_, err = f.reviews.ApproveBatch(ctx, b.ID, "admin")
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_STATE", svcErr.Code)

	b, err = f.reviews.SubmitBatchForReview(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, syncbatch.StatusUnderReview, b.Status)

	_, err = f.reviews.ApproveBatch(ctx, b.ID, "  ")
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_BODY", svcErr.Code)

	b, err = f.reviews.ApproveBatch(ctx, b.ID, "admin")
	require.NoError(t, err)
	require.Equal(t, syncbatch.StatusApproved, b.Status)
	require.NotNil(t, b.ApprovedBy)
	require.Equal(t, "admin", *b.ApprovedBy)

	// Terminal for review purposes: a second decision is refused.
	_, err = f.reviews.RejectBatch(ctx, b.ID)
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_STATE", svcErr.Code)
}

func TestRejectBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)

	ctx := f.tenantCtx()
	b, err := f.staging.Stage(ctx, f.tenantID, "scheduler")
	require.NoError(t, err)
	_, err = f.reviews.SubmitBatchForReview(ctx, b.ID)
	require.NoError(t, err)

	b, err = f.reviews.RejectBatch(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, syncbatch.StatusRejected, b.Status)
}

func TestReviewUnknownCandidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.reviews.ReviewCandidate(context.Background(), uuid.New(), ReviewDecision{Approve: true})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_NOT_FOUND", svcErr.Code)
}
