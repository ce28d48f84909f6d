package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/modules/geo/infrastructure/persistence/inmem"
	"github.com/iota-uz/geosync/modules/geo/matching"
	"github.com/iota-uz/geosync/pkg/composables"
	"github.com/iota-uz/geosync/pkg/eventbus"
)

// fixture wires every geo service against in-memory repositories. One
// tenant is pre-registered; tests needing more add them to the registry.
type fixture struct {
	tenantID   uuid.UUID
	units      *inmem.UnitRepository
	candidates *inmem.CandidateRepository
	batches    *inmem.BatchRepository
	registry   *inmem.TenantRegistry
	bus        eventbus.EventBus
	normalizer *matching.Normalizer

	submissions *CandidateService
	reviews     *ReviewService
	staging     *StagingService
	applier     *ApplyService
	rollbacks   *RollbackService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		tenantID:   uuid.New(),
		units:      inmem.NewUnitRepository(),
		candidates: inmem.NewCandidateRepository(),
		batches:    inmem.NewBatchRepository(),
		bus:        eventbus.NewEventPublisher(logger),
		normalizer: matching.NewNormalizer(nil),
	}
	f.registry = inmem.NewTenantRegistry(f.tenantID)

	matcher := matching.NewMatcher(f.units, matching.DefaultConfig())
	f.submissions = NewCandidateService(f.candidates, f.units, matcher, f.normalizer, f.bus)
	f.reviews = NewReviewService(f.candidates, f.units, f.batches, f.normalizer, nil, f.bus)
	f.staging = NewStagingService(f.units, f.batches, f.registry, f.bus)
	f.applier = NewApplyService(f.units, f.batches, f.bus)
	f.rollbacks = NewRollbackService(f.units, f.batches, f.bus)
	return f
}

func (f *fixture) tenantCtx() context.Context {
	return composables.WithTenantID(context.Background(), f.tenantID)
}

// seedCanonical inserts an active canonical unit the way an approved
// candidate fold would.
func (f *fixture) seedCanonical(t *testing.T, name string, level unit.Level, parent *unit.AdministrativeUnit) *unit.AdministrativeUnit {
	t.Helper()

	now := time.Now().UTC()
	u := &unit.AdministrativeUnit{
		ID:             uuid.New(),
		Store:          unit.CanonicalStore,
		Level:          level,
		Name:           name,
		NormalizedName: f.normalizer.Normalize(name),
		Country:        "NP",
		Official:       level.IsOfficial(),
		Active:         true,
		ValidFrom:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if parent != nil {
		pid := parent.ID
		u.ParentID = &pid
		u.Path = unit.ChildPath(parent.Path, u.ID)
	} else {
		u.Path = unit.Path{u.ID}
	}

	created, err := f.units.Create(context.Background(), u)
	require.NoError(t, err)
	return created
}

// seedMirror materializes a canonical unit in the fixture tenant's store
// the way an applied create item would. The parent link is resolved via
// the canonical origin id when the parent is already mirrored.
func (f *fixture) seedMirror(t *testing.T, canonical *unit.AdministrativeUnit) *unit.AdministrativeUnit {
	t.Helper()

	now := time.Now().UTC()
	canonicalID := canonical.ID
	m := &unit.AdministrativeUnit{
		ID:             uuid.New(),
		Store:          unit.TenantStore(f.tenantID),
		CanonicalID:    &canonicalID,
		Level:          canonical.Level,
		Name:           canonical.Name,
		NormalizedName: canonical.NormalizedName,
		Country:        canonical.Country,
		Official:       canonical.Official,
		Active:         canonical.Active,
		ValidFrom:      canonical.ValidFrom,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if canonical.ParentID != nil {
		parent, err := f.units.GetByCanonicalID(context.Background(), f.tenantID, *canonical.ParentID)
		require.NoError(t, err)
		m.ParentID = &parent.ID
		m.Path = unit.ChildPath(parent.Path, m.ID)
	} else {
		m.Path = unit.Path{m.ID}
	}

	created, err := f.units.Create(context.Background(), m)
	require.NoError(t, err)
	return created
}

// stageApproved runs the full staging and review pipeline, returning a
// batch ready for application.
func (f *fixture) stageApproved(t *testing.T) uuid.UUID {
	t.Helper()

	ctx := f.tenantCtx()
	b, err := f.staging.Stage(ctx, f.tenantID, "test")
	require.NoError(t, err)

	_, err = f.reviews.SubmitBatchForReview(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.reviews.ApproveBatch(ctx, b.ID, "admin")
	require.NoError(t, err)
	return b.ID
}
