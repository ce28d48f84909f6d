package syncbatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBatchNotFound  = errors.New("sync batch not found")
	ErrBackupNotFound = errors.New("no backups recorded for batch")
)

type Repository interface {
	GetBatch(ctx context.Context, id uuid.UUID) (*SyncBatch, error)
	ListBatches(ctx context.Context, tenantID uuid.UUID, statuses ...Status) ([]*SyncBatch, error)
	CreateBatch(ctx context.Context, b *SyncBatch) (*SyncBatch, error)
	// TransitionStatus moves the batch from expected to next and applies
	// mutate to the row under the same optimistic check. It reports false
	// without mutating when the stored status differs from expected.
	TransitionStatus(ctx context.Context, id uuid.UUID, expected, next Status, mutate func(*SyncBatch)) (bool, error)

	AddItems(ctx context.Context, items []*ChangeItem) error
	UpdateItem(ctx context.Context, item *ChangeItem) error
	ListItems(ctx context.Context, batchID uuid.UUID) ([]*ChangeItem, error)
	MarkItemApplied(ctx context.Context, itemID uuid.UUID) error
	MarkItemFailed(ctx context.Context, itemID uuid.UUID, reason string) error

	CreateBackup(ctx context.Context, b *Backup) error
	ListUnconsumedBackups(ctx context.Context, batchID uuid.UUID) ([]*Backup, error)
	MarkBackupsConsumed(ctx context.Context, batchID uuid.UUID) error

	// Checkpoint is the per-tenant staging watermark. Advancing is
	// monotonic: an older timestamp never overwrites a newer one.
	GetCheckpoint(ctx context.Context, tenantID uuid.UUID) (time.Time, error)
	AdvanceCheckpoint(ctx context.Context, tenantID uuid.UUID, ts time.Time) error
}
