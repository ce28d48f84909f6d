package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/events"
	"github.com/iota-uz/geosync/modules/geo/domain/syncbatch"
	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/pkg/composables"
	"github.com/iota-uz/geosync/pkg/eventbus"
)

type ApplicationResult struct {
	BatchID      uuid.UUID `json:"batch_id"`
	AppliedCount int       `json:"applied_count"`
	FailedCount  int       `json:"failed_count"`
	// NoOp is set when the batch was already APPLIED; nothing was mutated.
	NoOp bool `json:"no_op"`
}

type ApplyService struct {
	units     unit.Repository
	batches   syncbatch.Repository
	publisher eventbus.EventBus
}

func NewApplyService(units unit.Repository, batches syncbatch.Repository, publisher eventbus.EventBus) *ApplyService {
	return &ApplyService{units: units, batches: batches, publisher: publisher}
}

// Apply runs an APPROVED batch against the tenant's production mirror.
// Every touched unit is backed up first. Items fail independently into the
// failure ledger; the batch itself applies as one transaction, so a crash
// mid-apply never leaves a half-applied batch visible. Applying an
// already-APPLIED batch is a no-op.
func (s *ApplyService) Apply(ctx context.Context, tenantID, batchID uuid.UUID) (*ApplicationResult, error) {
	if tenantID == uuid.Nil {
		return nil, invalidBody("tenant is required")
	}
	ctx = composables.WithTenantID(ctx, tenantID)

	b, err := s.batches.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, syncbatch.ErrBatchNotFound) {
			return nil, notFound("batch not found", err)
		}
		return nil, mapPgError(err)
	}
	if b.TenantID != tenantID {
		return nil, invalidState("batch belongs to a different tenant")
	}
	if b.Status == syncbatch.StatusApplied {
		return &ApplicationResult{
			BatchID:      b.ID,
			AppliedCount: b.AppliedCount,
			FailedCount:  b.FailedCount,
			NoOp:         true,
		}, nil
	}
	if b.Status != syncbatch.StatusApproved {
		return nil, invalidState(fmt.Sprintf("batch is %s, not APPROVED", b.Status))
	}

	result, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*ApplicationResult, error) {
		return s.apply(txCtx, tenantID, batchID)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(events.BatchApplied{
		BatchID:      batchID,
		TenantID:     tenantID,
		AppliedCount: result.AppliedCount,
		FailedCount:  result.FailedCount,
		AppliedAt:    time.Now().UTC(),
	})
	return result, nil
}

func (s *ApplyService) apply(ctx context.Context, tenantID, batchID uuid.UUID) (*ApplicationResult, error) {
	items, err := s.batches.ListItems(ctx, batchID)
	if err != nil {
		return nil, mapPgError(err)
	}

	appliedAt := time.Now().UTC()
	applied, failed := 0, 0

	for _, item := range items {
		if err := s.backupItem(ctx, tenantID, batchID, item); err != nil {
			return nil, err
		}

		if err := s.applyItem(ctx, tenantID, item, appliedAt); err != nil {
			var svcErr *ServiceError
			if !errors.As(err, &svcErr) {
				// Infrastructure failure: abort the batch as a whole
				// rather than record a ledger entry over a broken
				// transaction.
				return nil, err
			}
			failed++
			recordBatchItem(true)
			if err := s.batches.MarkItemFailed(ctx, item.ID, svcErr.Error()); err != nil {
				return nil, mapPgError(err)
			}
			composables.UseLogger(ctx).
				WithField("batch_id", batchID).
				WithField("canonical_id", item.CanonicalID).
				WithField("reason", svcErr.Code).
				Warn("batch item failed")
			continue
		}

		applied++
		recordBatchItem(false)
		if err := s.batches.MarkItemApplied(ctx, item.ID); err != nil {
			return nil, mapPgError(err)
		}
	}

	ok, err := s.batches.TransitionStatus(ctx, batchID, syncbatch.StatusApproved, syncbatch.StatusApplied, func(b *syncbatch.SyncBatch) {
		b.AppliedCount = applied
		b.FailedCount = failed
		b.AppliedAt = &appliedAt
		b.RollbackEligible = true
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	if !ok {
		return nil, invalidState("batch left APPROVED during application")
	}

	// The staging checkpoint stays where staging left it; canonical
	// commits made since then belong to the next staging pass.

	return &ApplicationResult{BatchID: batchID, AppliedCount: applied, FailedCount: failed}, nil
}

// backupItem snapshots the current mirror state of the item's target, or
// records that it did not exist.
func (s *ApplyService) backupItem(ctx context.Context, tenantID, batchID uuid.UUID, item *syncbatch.ChangeItem) error {
	backup := &syncbatch.Backup{
		ID:          uuid.New(),
		BatchID:     batchID,
		TenantID:    tenantID,
		CanonicalID: item.CanonicalID,
		CreatedAt:   time.Now().UTC(),
	}

	mirror, err := s.units.GetByCanonicalID(ctx, tenantID, item.CanonicalID)
	if err != nil && !errors.Is(err, unit.ErrUnitNotFound) {
		return mapPgError(err)
	}
	if mirror != nil {
		prior, err := json.Marshal(mirror)
		if err != nil {
			return err
		}
		backup.Existed = true
		backup.UnitID = &mirror.ID
		backup.Prior = prior
	}

	if err := s.batches.CreateBackup(ctx, backup); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *ApplyService) applyItem(ctx context.Context, tenantID uuid.UUID, item *syncbatch.ChangeItem, now time.Time) error {
	canonical, err := item.Unit()
	if err != nil {
		return invalidBody(fmt.Sprintf("malformed snapshot: %v", err))
	}

	mirror, err := s.units.GetByCanonicalID(ctx, tenantID, item.CanonicalID)
	if err != nil && !errors.Is(err, unit.ErrUnitNotFound) {
		return mapPgError(err)
	}

	switch item.Kind {
	case unit.DeltaCreate:
		if mirror != nil {
			// Convergent: a re-staged create over an existing mirror row
			// behaves like an update.
			return s.updateMirror(ctx, mirror, canonical, now)
		}
		return s.createMirror(ctx, tenantID, canonical, now)
	case unit.DeltaUpdate:
		if mirror == nil {
			// The unit was never mirrored (created before the tenant's
			// first sync); fall back to creating it.
			return s.createMirror(ctx, tenantID, canonical, now)
		}
		return s.updateMirror(ctx, mirror, canonical, now)
	case unit.DeltaDelete:
		if mirror == nil {
			return nil // nothing mirrored, nothing to delete
		}
		// Soft delete only: tenant-private subtrees beneath the unit stay
		// attached and untouched.
		if err := s.units.SoftDelete(ctx, mirror.Ref(), now); err != nil {
			return mapPgError(err)
		}
		return nil
	default:
		return invalidBody(fmt.Sprintf("unknown delta kind %q", item.Kind))
	}
}

// createMirror materializes a canonical unit in the tenant store. The
// parent reference is resolved through the canonical origin id; raw ids
// are never shared between stores.
func (s *ApplyService) createMirror(ctx context.Context, tenantID uuid.UUID, canonical *unit.AdministrativeUnit, now time.Time) error {
	var parent *unit.AdministrativeUnit
	if canonical.ParentID != nil {
		p, err := s.units.GetByCanonicalID(ctx, tenantID, *canonical.ParentID)
		if err != nil {
			if errors.Is(err, unit.ErrUnitNotFound) {
				return invalidHierarchy(fmt.Errorf("parent %s is not mirrored in tenant %s", *canonical.ParentID, tenantID))
			}
			return mapPgError(err)
		}
		parent = p
	}

	canonicalID := canonical.ID
	m := &unit.AdministrativeUnit{
		ID:             uuid.New(),
		Store:          unit.TenantStore(tenantID),
		CanonicalID:    &canonicalID,
		Level:          canonical.Level,
		Name:           canonical.Name,
		NormalizedName: canonical.NormalizedName,
		Country:        canonical.Country,
		Official:       canonical.Official,
		Active:         canonical.Active,
		ValidFrom:      canonical.ValidFrom,
		ValidTo:        canonical.ValidTo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if parent != nil {
		m.ParentID = &parent.ID
		m.Path = unit.ChildPath(parent.Path, m.ID)
	} else {
		m.Path = unit.Path{m.ID}
	}

	if err := unit.ValidateNode(m, parent); err != nil {
		return invalidHierarchy(err)
	}
	if _, err := s.units.Create(ctx, m); err != nil {
		return mapPgError(err)
	}
	return nil
}

// updateMirror propagates canonical field changes onto the mirror row.
// Reparenting never reaches here: canonical moves are staged as
// delete+create pairs.
func (s *ApplyService) updateMirror(ctx context.Context, mirror, canonical *unit.AdministrativeUnit, now time.Time) error {
	mirror.Name = canonical.Name
	mirror.NormalizedName = canonical.NormalizedName
	mirror.Country = canonical.Country
	mirror.Official = canonical.Official
	mirror.Active = canonical.Active
	mirror.ValidFrom = canonical.ValidFrom
	mirror.ValidTo = canonical.ValidTo
	mirror.DeletedAt = nil
	mirror.UpdatedAt = now

	if _, err := s.units.Update(ctx, mirror); err != nil {
		return mapPgError(err)
	}
	return nil
}
