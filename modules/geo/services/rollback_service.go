package services

import (
	"context"
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

type RollbackResult struct {
	BatchID      uuid.UUID `json:"batch_id"`
	RestoredRows int       `json:"restored_rows"`
}

type RollbackService struct {
	units     unit.Repository
	batches   syncbatch.Repository
	publisher eventbus.EventBus
}

func NewRollbackService(units unit.Repository, batches syncbatch.Repository, publisher eventbus.EventBus) *RollbackService {
	return &RollbackService{units: units, batches: batches, publisher: publisher}
}

// Rollback restores the tenant's production mirror to its pre-batch state
// from the backups the applier took. It is all-or-nothing: every
// unconsumed backup restores inside one transaction or none do. Only
// fields of touched units revert; tenant-private subtrees beneath them
// stay attached.
func (s *RollbackService) Rollback(ctx context.Context, tenantID, batchID uuid.UUID) (*RollbackResult, error) {
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
		return nil, cannotRollback("batch belongs to a different tenant")
	}
	if b.Status != syncbatch.StatusApplied || !b.RollbackEligible {
		return nil, cannotRollback(fmt.Sprintf("batch is %s (rollback eligible: %v)", b.Status, b.RollbackEligible))
	}

	result, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*RollbackResult, error) {
		return s.rollback(txCtx, tenantID, batchID)
	})
	if err != nil {
		return nil, err
	}

	geoRollbacks.Inc()
	s.publisher.Publish(events.BatchRolledBack{
		BatchID:      batchID,
		TenantID:     tenantID,
		RestoredRows: result.RestoredRows,
		RolledBackAt: time.Now().UTC(),
	})
	return result, nil
}

func (s *RollbackService) rollback(ctx context.Context, tenantID, batchID uuid.UUID) (*RollbackResult, error) {
	backups, err := s.batches.ListUnconsumedBackups(ctx, batchID)
	if err != nil {
		return nil, mapPgError(err)
	}

	restored := 0
	for _, b := range backups {
		if err := s.restore(ctx, tenantID, b); err != nil {
			return nil, err
		}
		restored++
	}

	if err := s.batches.MarkBackupsConsumed(ctx, batchID); err != nil {
		return nil, mapPgError(err)
	}

	ok, err := s.batches.TransitionStatus(ctx, batchID, syncbatch.StatusApplied, syncbatch.StatusRolledBack, func(b *syncbatch.SyncBatch) {
		b.RollbackEligible = false
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	if !ok {
		return nil, cannotRollback("batch left APPLIED during rollback")
	}

	composables.UseLogger(ctx).
		WithField("tenant_id", tenantID).
		WithField("batch_id", batchID).
		WithField("restored", restored).
		Info("batch rolled back")

	return &RollbackResult{BatchID: batchID, RestoredRows: restored}, nil
}

func (s *RollbackService) restore(ctx context.Context, tenantID uuid.UUID, b *syncbatch.Backup) error {
	if !b.Existed {
		// The batch created this row; restoring "did not exist" removes it.
		current, err := s.units.GetByCanonicalID(ctx, tenantID, b.CanonicalID)
		if err != nil {
			if errors.Is(err, unit.ErrUnitNotFound) {
				return nil
			}
			return mapPgError(err)
		}
		if err := s.units.HardDelete(ctx, current.Ref()); err != nil {
			return mapPgError(err)
		}
		return nil
	}

	if b.UnitID == nil {
		return fmt.Errorf("malformed backup %s: prior row id missing", b.ID)
	}
	prior, err := b.PriorUnit()
	if err != nil {
		return fmt.Errorf("malformed backup %s: %w", b.ID, err)
	}

	// Look the row up by its backed-up id: the batch may have soft-deleted
	// it, and canonical-id resolution only sees live mirrors.
	current, err := s.units.GetByID(ctx, unit.Ref{Store: unit.TenantStore(tenantID), ID: *b.UnitID})
	if err != nil {
		if !errors.Is(err, unit.ErrUnitNotFound) {
			return mapPgError(err)
		}
		// Row vanished after application; re-insert the prior state.
		if _, err := s.units.Create(ctx, prior); err != nil {
			return mapPgError(err)
		}
		return nil
	}

	// Overwrite fields to their prior values, keeping the row identity so
	// children (including private extensions) stay attached.
	prior.ID = current.ID
	if _, err := s.units.Update(ctx, prior); err != nil {
		return mapPgError(err)
	}
	return nil
}
