package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"

	"github.com/iota-uz/geosync/modules/geo/domain/events"
	"github.com/iota-uz/geosync/modules/geo/domain/syncbatch"
	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/pkg/composables"
	"github.com/iota-uz/geosync/pkg/eventbus"
)

// TenantSource lists the tenants staging fans out to. Backed by the
// tenants table in production and by fixtures in tests.
type TenantSource interface {
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

type StagingService struct {
	units     unit.Repository
	batches   syncbatch.Repository
	tenants   TenantSource
	publisher eventbus.EventBus
}

func NewStagingService(
	units unit.Repository,
	batches syncbatch.Repository,
	tenants TenantSource,
	publisher eventbus.EventBus,
) *StagingService {
	return &StagingService{
		units:     units,
		batches:   batches,
		tenants:   tenants,
		publisher: publisher,
	}
}

// CreateBatch opens an empty CREATED batch for a tenant. Used when an
// admin assembles deltas manually instead of running a staging pass.
func (s *StagingService) CreateBatch(ctx context.Context, tenantID uuid.UUID, createdBy string) (*syncbatch.SyncBatch, error) {
	if tenantID == uuid.Nil {
		return nil, invalidBody("tenant is required")
	}
	b := &syncbatch.SyncBatch{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Status:    syncbatch.StatusCreated,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	created, err := s.batches.CreateBatch(ctx, b)
	if err != nil {
		return nil, mapPgError(err)
	}
	return created, nil
}

// Stage copies canonical deltas since the tenant's checkpoint into that
// tenant's staging area under a new batch. Production data is never
// touched. An empty delta set still produces an empty STAGED batch and
// advances the checkpoint, so scheduled runs are idempotent.
func (s *StagingService) Stage(ctx context.Context, tenantID uuid.UUID, createdBy string) (*syncbatch.SyncBatch, error) {
	if tenantID == uuid.Nil {
		return nil, invalidBody("tenant is required")
	}
	ctx = composables.WithTenantID(ctx, tenantID)

	batch, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*syncbatch.SyncBatch, error) {
		return s.stage(txCtx, tenantID, createdBy)
	})
	recordStagingRun(err)
	if err != nil {
		return nil, err
	}

	items, err := s.batches.ListItems(ctx, batch.ID)
	if err != nil {
		return nil, mapPgError(err)
	}
	s.publisher.Publish(events.BatchStaged{
		BatchID:   batch.ID,
		TenantID:  tenantID,
		ItemCount: len(items),
		StagedAt:  batch.CreatedAt,
	})
	return batch, nil
}

func (s *StagingService) stage(ctx context.Context, tenantID uuid.UUID, createdBy string) (*syncbatch.SyncBatch, error) {
	checkpoint, err := s.batches.GetCheckpoint(ctx, tenantID)
	if err != nil {
		return nil, mapPgError(err)
	}

	// Watermark is taken before reading deltas so a commit racing the
	// read lands in the next pass instead of being skipped.
	stagedAt := time.Now().UTC()

	deltas, err := s.units.ChangedSince(ctx, checkpoint)
	if err != nil {
		return nil, mapPgError(err)
	}

	b, err := s.CreateBatch(ctx, tenantID, createdBy)
	if err != nil {
		return nil, err
	}

	items := make([]*syncbatch.ChangeItem, 0, len(deltas))
	for _, d := range deltas {
		item, err := s.buildItem(ctx, tenantID, b.ID, d)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if len(items) > 0 {
		if err := s.batches.AddItems(ctx, items); err != nil {
			return nil, mapPgError(err)
		}
	}

	ok, err := s.batches.TransitionStatus(ctx, b.ID, syncbatch.StatusCreated, syncbatch.StatusStaged, nil)
	if err != nil {
		return nil, mapPgError(err)
	}
	if !ok {
		return nil, invalidState("batch left CREATED during staging")
	}

	if err := s.batches.AdvanceCheckpoint(ctx, tenantID, stagedAt); err != nil {
		return nil, mapPgError(err)
	}

	composables.UseLogger(ctx).
		WithField("tenant_id", tenantID).
		WithField("batch_id", b.ID).
		WithField("items", len(items)).
		Info("staged canonical deltas")

	return s.batches.GetBatch(ctx, b.ID)
}

func (s *StagingService) buildItem(ctx context.Context, tenantID, batchID uuid.UUID, d unit.Delta) (*syncbatch.ChangeItem, error) {
	snapshot, err := json.Marshal(d.Unit)
	if err != nil {
		return nil, err
	}

	item := &syncbatch.ChangeItem{
		ID:          uuid.New(),
		BatchID:     batchID,
		CanonicalID: d.Unit.ID,
		Kind:        d.Kind,
		Snapshot:    snapshot,
	}

	// For updates against an existing mirror row, render a field-level
	// patch so reviewers see exactly what application would change.
	if d.Kind == unit.DeltaUpdate {
		mirror, err := s.units.GetByCanonicalID(ctx, tenantID, d.Unit.ID)
		if err != nil && !errors.Is(err, unit.ErrUnitNotFound) {
			return nil, mapPgError(err)
		}
		if mirror != nil {
			patch, err := jsondiff.Compare(comparableFields(mirror), comparableFields(d.Unit))
			if err == nil && len(patch) > 0 {
				if raw, err := json.Marshal(patch); err == nil {
					item.Diff = raw
				}
			}
		}
	}

	return item, nil
}

// comparableFields projects a unit onto the fields shared between stores.
// Ids are store-local, diffing them would only produce noise.
type unitFields struct {
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Level          unit.Level `json:"level"`
	Country        string     `json:"country"`
	Active         bool       `json:"active"`
}

func comparableFields(u *unit.AdministrativeUnit) unitFields {
	return unitFields{
		Name:           u.Name,
		NormalizedName: u.NormalizedName,
		Level:          u.Level,
		Country:        u.Country,
		Active:         u.Active,
	}
}

func (s *StagingService) GetBatch(ctx context.Context, batchID uuid.UUID) (*syncbatch.SyncBatch, error) {
	b, err := s.batches.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, syncbatch.ErrBatchNotFound) {
			return nil, notFound("batch not found", err)
		}
		return nil, mapPgError(err)
	}
	return b, nil
}

func (s *StagingService) ListItems(ctx context.Context, batchID uuid.UUID) ([]*syncbatch.ChangeItem, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	items, err := s.batches.ListItems(ctx, batchID)
	if err != nil {
		return nil, mapPgError(err)
	}
	return items, nil
}

// StageAll runs one staging pass per tenant. A failure in one tenant's
// pass never affects the others; the first error is reported after all
// tenants ran.
func (s *StagingService) StageAll(ctx context.Context, createdBy string) ([]*syncbatch.SyncBatch, error) {
	tenantIDs, err := s.tenants.ListTenantIDs(ctx)
	if err != nil {
		return nil, mapPgError(err)
	}

	var (
		staged   []*syncbatch.SyncBatch
		firstErr error
	)
	for _, tenantID := range tenantIDs {
		b, err := s.Stage(ctx, tenantID, createdBy)
		if err != nil {
			composables.UseLogger(ctx).WithError(err).
				WithField("tenant_id", tenantID).
				Error("staging pass failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		staged = append(staged, b)
	}
	return staged, firstErr
}
