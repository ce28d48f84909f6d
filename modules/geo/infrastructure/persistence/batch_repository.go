package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/geosync/modules/geo/domain/syncbatch"
	"github.com/iota-uz/geosync/modules/geo/infrastructure/persistence/models"
	"github.com/iota-uz/geosync/pkg/composables"
	"github.com/iota-uz/geosync/pkg/mapping"
)

const (
	batchFindQuery = `
		SELECT id, tenant_id, status, applied_count, failed_count,
		       created_by, approved_by, created_at, applied_at, rollback_eligible
		FROM geo_sync_batches`

	batchItemFindQuery = `
		SELECT id, batch_id, canonical_id, kind, snapshot, diff,
		       dependent_count, applied, failure_reason, created_at
		FROM geo_sync_batch_items`

	backupFindQuery = `
		SELECT id, batch_id, tenant_id, canonical_id, unit_id,
		       existed, prior, consumed, created_at
		FROM geo_sync_backups`
)

type PgBatchRepository struct{}

func NewBatchRepository() syncbatch.Repository {
	return &PgBatchRepository{}
}

func (r *PgBatchRepository) GetBatch(ctx context.Context, id uuid.UUID) (*syncbatch.SyncBatch, error) {
	batches, err := r.queryBatches(ctx, batchFindQuery+" WHERE id = $1", id.String())
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, syncbatch.ErrBatchNotFound
	}
	return batches[0], nil
}

func (r *PgBatchRepository) ListBatches(ctx context.Context, tenantID uuid.UUID, statuses ...syncbatch.Status) ([]*syncbatch.SyncBatch, error) {
	var args []interface{}
	query := batchFindQuery + " WHERE 1=1"
	if tenantID != uuid.Nil {
		args = append(args, tenantID.String())
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	if len(statuses) > 0 {
		placeholders := ""
		for i, s := range statuses {
			if i > 0 {
				placeholders += ", "
			}
			args = append(args, string(s))
			placeholders += fmt.Sprintf("$%d", len(args))
		}
		query += " AND status IN (" + placeholders + ")"
	}
	query += " ORDER BY created_at"

	return r.queryBatches(ctx, query, args...)
}

func (r *PgBatchRepository) CreateBatch(ctx context.Context, b *syncbatch.SyncBatch) (*syncbatch.SyncBatch, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO geo_sync_batches (
			id, tenant_id, status, applied_count, failed_count,
			created_by, approved_by, created_at, applied_at, rollback_eligible
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.Exec(
		ctx,
		query,
		b.ID.String(),
		b.TenantID.String(),
		string(b.Status),
		b.AppliedCount,
		b.FailedCount,
		b.CreatedBy,
		mapping.PointerToSQLNullString(b.ApprovedBy),
		b.CreatedAt,
		mapping.PointerToSQLNullTime(b.AppliedAt),
		b.RollbackEligible,
	); err != nil {
		return nil, err
	}

	return r.GetBatch(ctx, b.ID)
}

// TransitionStatus locks the row, re-checks the status under the lock and
// writes back the mutated batch. Concurrent approvals of the same batch
// serialize here.
func (r *PgBatchRepository) TransitionStatus(ctx context.Context, id uuid.UUID, expected, next syncbatch.Status, mutate func(*syncbatch.SyncBatch)) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}

	row := tx.QueryRow(ctx, batchFindQuery+" WHERE id = $1 FOR UPDATE", id.String())
	var m models.SyncBatch
	if err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.Status,
		&m.AppliedCount,
		&m.FailedCount,
		&m.CreatedBy,
		&m.ApprovedBy,
		&m.CreatedAt,
		&m.AppliedAt,
		&m.RollbackEligible,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, syncbatch.ErrBatchNotFound
		}
		return false, errors.Wrap(err, "failed to lock batch row")
	}

	if syncbatch.Status(m.Status) != expected {
		return false, nil
	}

	b, err := toDomainBatch(&m)
	if err != nil {
		return false, err
	}
	b.Status = next
	if mutate != nil {
		mutate(b)
	}

	query := `
		UPDATE geo_sync_batches
		SET status = $1, applied_count = $2, failed_count = $3,
		    approved_by = $4, applied_at = $5, rollback_eligible = $6
		WHERE id = $7`
	if _, err := tx.Exec(
		ctx,
		query,
		string(b.Status),
		b.AppliedCount,
		b.FailedCount,
		mapping.PointerToSQLNullString(b.ApprovedBy),
		mapping.PointerToSQLNullTime(b.AppliedAt),
		b.RollbackEligible,
		b.ID.String(),
	); err != nil {
		return false, errors.Wrap(err, "failed to update batch row")
	}
	return true, nil
}

func (r *PgBatchRepository) AddItems(ctx context.Context, items []*syncbatch.ChangeItem) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO geo_sync_batch_items (
			id, batch_id, canonical_id, kind, snapshot, diff,
			dependent_count, applied, failure_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	// Staging order is application order: items list parents before their
	// children, and ListItems sorts on created_at. Spacing the timestamps
	// keeps the order stable across uuid values.
	now := time.Now()
	for i, item := range items {
		if _, err := tx.Exec(
			ctx,
			query,
			item.ID.String(),
			item.BatchID.String(),
			item.CanonicalID.String(),
			string(item.Kind),
			[]byte(item.Snapshot),
			[]byte(item.Diff),
			mapping.PointerToSQLNullInt32(item.DependentCount),
			item.Applied,
			mapping.PointerToSQLNullString(item.FailureReason),
			now.Add(time.Duration(i)*time.Microsecond),
		); err != nil {
			return errors.Wrap(err, "failed to insert batch item")
		}
	}
	return nil
}

func (r *PgBatchRepository) UpdateItem(ctx context.Context, item *syncbatch.ChangeItem) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE geo_sync_batch_items
		SET snapshot = $1, diff = $2, dependent_count = $3, applied = $4, failure_reason = $5
		WHERE id = $6`
	tag, err := tx.Exec(
		ctx,
		query,
		[]byte(item.Snapshot),
		[]byte(item.Diff),
		mapping.PointerToSQLNullInt32(item.DependentCount),
		item.Applied,
		mapping.PointerToSQLNullString(item.FailureReason),
		item.ID.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return syncbatch.ErrBatchNotFound
	}
	return nil
}

func (r *PgBatchRepository) ListItems(ctx context.Context, batchID uuid.UUID) ([]*syncbatch.ChangeItem, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, batchItemFindQuery+" WHERE batch_id = $1 ORDER BY created_at, id", batchID.String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var items []*syncbatch.ChangeItem
	for rows.Next() {
		var m models.SyncBatchItem
		if err := rows.Scan(
			&m.ID,
			&m.BatchID,
			&m.CanonicalID,
			&m.Kind,
			&m.Snapshot,
			&m.Diff,
			&m.DependentCount,
			&m.Applied,
			&m.FailureReason,
			&m.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan batch item row")
		}
		item, err := toDomainBatchItem(&m)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	return items, nil
}

func (r *PgBatchRepository) MarkItemApplied(ctx context.Context, itemID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE geo_sync_batch_items SET applied = true, failure_reason = NULL WHERE id = $1`
	tag, err := tx.Exec(ctx, query, itemID.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return syncbatch.ErrBatchNotFound
	}
	return nil
}

func (r *PgBatchRepository) MarkItemFailed(ctx context.Context, itemID uuid.UUID, reason string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE geo_sync_batch_items SET applied = false, failure_reason = $1 WHERE id = $2`
	tag, err := tx.Exec(ctx, query, reason, itemID.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return syncbatch.ErrBatchNotFound
	}
	return nil
}

func (r *PgBatchRepository) CreateBackup(ctx context.Context, b *syncbatch.Backup) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO geo_sync_backups (
			id, batch_id, tenant_id, canonical_id, unit_id,
			existed, prior, consumed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = tx.Exec(
		ctx,
		query,
		b.ID.String(),
		b.BatchID.String(),
		b.TenantID.String(),
		b.CanonicalID.String(),
		mapping.UUIDToNullString(b.UnitID),
		b.Existed,
		[]byte(b.Prior),
		b.Consumed,
		b.CreatedAt,
	)
	return err
}

func (r *PgBatchRepository) ListUnconsumedBackups(ctx context.Context, batchID uuid.UUID) ([]*syncbatch.Backup, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, backupFindQuery+" WHERE batch_id = $1 AND consumed = false ORDER BY created_at, id", batchID.String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var backups []*syncbatch.Backup
	for rows.Next() {
		var m models.SyncBackup
		if err := rows.Scan(
			&m.ID,
			&m.BatchID,
			&m.TenantID,
			&m.CanonicalID,
			&m.UnitID,
			&m.Existed,
			&m.Prior,
			&m.Consumed,
			&m.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan backup row")
		}
		b, err := toDomainBackup(&m)
		if err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	return backups, nil
}

func (r *PgBatchRepository) MarkBackupsConsumed(ctx context.Context, batchID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `UPDATE geo_sync_backups SET consumed = true WHERE batch_id = $1`, batchID.String())
	return err
}

func (r *PgBatchRepository) GetCheckpoint(ctx context.Context, tenantID uuid.UUID) (time.Time, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return time.Time{}, err
	}

	var ts time.Time
	row := tx.QueryRow(ctx, `SELECT last_synced_at FROM geo_sync_checkpoints WHERE tenant_id = $1`, tenantID.String())
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, errors.Wrap(err, "failed to read checkpoint")
	}
	return ts, nil
}

func (r *PgBatchRepository) AdvanceCheckpoint(ctx context.Context, tenantID uuid.UUID, ts time.Time) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO geo_sync_checkpoints (tenant_id, last_synced_at)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id)
		DO UPDATE SET last_synced_at = EXCLUDED.last_synced_at
		WHERE geo_sync_checkpoints.last_synced_at < EXCLUDED.last_synced_at`
	_, err = tx.Exec(ctx, query, tenantID.String(), ts)
	return err
}

func (r *PgBatchRepository) queryBatches(ctx context.Context, query string, args ...interface{}) ([]*syncbatch.SyncBatch, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var batches []*syncbatch.SyncBatch
	for rows.Next() {
		var m models.SyncBatch
		if err := rows.Scan(
			&m.ID,
			&m.TenantID,
			&m.Status,
			&m.AppliedCount,
			&m.FailedCount,
			&m.CreatedBy,
			&m.ApprovedBy,
			&m.CreatedAt,
			&m.AppliedAt,
			&m.RollbackEligible,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan batch row")
		}
		b, err := toDomainBatch(&m)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	return batches, nil
}
