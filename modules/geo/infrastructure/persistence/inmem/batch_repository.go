package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/syncbatch"
)

type BatchRepository struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*syncbatch.SyncBatch
	items   map[uuid.UUID]*syncbatch.ChangeItem
	// itemOrder preserves staging order; application must see parents
	// before their children.
	itemOrder   []uuid.UUID
	backups     map[uuid.UUID]*syncbatch.Backup
	checkpoints map[uuid.UUID]time.Time
}

func NewBatchRepository() *BatchRepository {
	return &BatchRepository{
		batches:     make(map[uuid.UUID]*syncbatch.SyncBatch),
		items:       make(map[uuid.UUID]*syncbatch.ChangeItem),
		backups:     make(map[uuid.UUID]*syncbatch.Backup),
		checkpoints: make(map[uuid.UUID]time.Time),
	}
}

func (r *BatchRepository) GetBatch(_ context.Context, id uuid.UUID) (*syncbatch.SyncBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, syncbatch.ErrBatchNotFound
	}
	return cloneBatch(b), nil
}

func (r *BatchRepository) ListBatches(_ context.Context, tenantID uuid.UUID, statuses ...syncbatch.Status) ([]*syncbatch.SyncBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*syncbatch.SyncBatch
	for _, b := range r.batches {
		if tenantID != uuid.Nil && b.TenantID != tenantID {
			continue
		}
		if len(statuses) > 0 {
			matched := false
			for _, s := range statuses {
				if b.Status == s {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *BatchRepository) CreateBatch(_ context.Context, b *syncbatch.SyncBatch) (*syncbatch.SyncBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := cloneBatch(b)
	r.batches[stored.ID] = stored
	return cloneBatch(stored), nil
}

func (r *BatchRepository) TransitionStatus(_ context.Context, id uuid.UUID, expected, next syncbatch.Status, mutate func(*syncbatch.SyncBatch)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return false, syncbatch.ErrBatchNotFound
	}
	if b.Status != expected {
		return false, nil
	}
	b.Status = next
	if mutate != nil {
		mutate(b)
	}
	return true, nil
}

func (r *BatchRepository) AddItems(_ context.Context, items []*syncbatch.ChangeItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		clone := *item
		r.items[item.ID] = &clone
		r.itemOrder = append(r.itemOrder, item.ID)
	}
	return nil
}

func (r *BatchRepository) UpdateItem(_ context.Context, item *syncbatch.ChangeItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		return syncbatch.ErrBatchNotFound
	}
	clone := *item
	r.items[item.ID] = &clone
	return nil
}

func (r *BatchRepository) ListItems(_ context.Context, batchID uuid.UUID) ([]*syncbatch.ChangeItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*syncbatch.ChangeItem
	for _, id := range r.itemOrder {
		item, ok := r.items[id]
		if !ok || item.BatchID != batchID {
			continue
		}
		clone := *item
		out = append(out, &clone)
	}
	return out, nil
}

func (r *BatchRepository) MarkItemApplied(_ context.Context, itemID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemID]
	if !ok {
		return syncbatch.ErrBatchNotFound
	}
	item.Applied = true
	item.FailureReason = nil
	return nil
}

func (r *BatchRepository) MarkItemFailed(_ context.Context, itemID uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[itemID]
	if !ok {
		return syncbatch.ErrBatchNotFound
	}
	item.Applied = false
	item.FailureReason = &reason
	return nil
}

func (r *BatchRepository) CreateBackup(_ context.Context, b *syncbatch.Backup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *b
	r.backups[b.ID] = &clone
	return nil
}

func (r *BatchRepository) ListUnconsumedBackups(_ context.Context, batchID uuid.UUID) ([]*syncbatch.Backup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*syncbatch.Backup
	for _, b := range r.backups {
		if b.BatchID == batchID && !b.Consumed {
			clone := *b
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *BatchRepository) MarkBackupsConsumed(_ context.Context, batchID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.backups {
		if b.BatchID == batchID {
			b.Consumed = true
		}
	}
	return nil
}

func (r *BatchRepository) GetCheckpoint(_ context.Context, tenantID uuid.UUID) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkpoints[tenantID], nil
}

func (r *BatchRepository) AdvanceCheckpoint(_ context.Context, tenantID uuid.UUID, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ts.After(r.checkpoints[tenantID]) {
		r.checkpoints[tenantID] = ts
	}
	return nil
}

func cloneBatch(b *syncbatch.SyncBatch) *syncbatch.SyncBatch {
	out := *b
	if b.ApprovedBy != nil {
		s := *b.ApprovedBy
		out.ApprovedBy = &s
	}
	if b.AppliedAt != nil {
		t := *b.AppliedAt
		out.AppliedAt = &t
	}
	return &out
}

// TenantRegistry is a fixture-backed TenantSource.
type TenantRegistry struct {
	mu      sync.Mutex
	tenants []uuid.UUID
}

func NewTenantRegistry(tenants ...uuid.UUID) *TenantRegistry {
	return &TenantRegistry{tenants: tenants}
}

func (r *TenantRegistry) ListTenantIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.tenants...), nil
}
