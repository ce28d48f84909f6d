// Package inmem provides in-memory repository implementations backing the
// service tests and CLI dry runs. Semantics mirror the postgres
// repositories, including duplicate detection and optimistic transitions.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/unit"
)

type UnitRepository struct {
	mu    sync.RWMutex
	units map[unit.Ref]*unit.AdministrativeUnit
	// seq preserves canonical commit order for ChangedSince.
	seq []unit.Ref
}

func NewUnitRepository() *UnitRepository {
	return &UnitRepository{units: make(map[unit.Ref]*unit.AdministrativeUnit)}
}

func (r *UnitRepository) GetByID(_ context.Context, ref unit.Ref) (*unit.AdministrativeUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[ref]
	if !ok {
		return nil, unit.ErrUnitNotFound
	}
	return u.Clone(), nil
}

func (r *UnitRepository) GetByCanonicalID(_ context.Context, tenantID, canonicalID uuid.UUID) (*unit.AdministrativeUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	store := unit.TenantStore(tenantID)
	for _, u := range r.units {
		if u.Store == store && !u.IsDeleted() && u.CanonicalID != nil && *u.CanonicalID == canonicalID {
			return u.Clone(), nil
		}
	}
	return nil, unit.ErrUnitNotFound
}

func (r *UnitRepository) FindByNormalizedName(_ context.Context, store unit.StoreID, country string, level unit.Level, parentID *uuid.UUID, normalized string) (*unit.AdministrativeUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.units {
		if u.Store != store || u.Country != country || u.Level != level || u.IsDeleted() || !u.Active {
			continue
		}
		if parentID != nil && !sameParent(u.ParentID, parentID) {
			continue
		}
		if u.NormalizedName == normalized {
			return u.Clone(), nil
		}
	}
	return nil, unit.ErrUnitNotFound
}

func (r *UnitRepository) List(_ context.Context, store unit.StoreID, f unit.Filter) ([]*unit.AdministrativeUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*unit.AdministrativeUnit
	for _, u := range r.units {
		if u.Store != store || u.IsDeleted() {
			continue
		}
		if !f.IncludeInactive && !u.Active {
			continue
		}
		if f.Country != "" && u.Country != f.Country {
			continue
		}
		if f.Level != 0 && u.Level != f.Level {
			continue
		}
		if f.ParentID != nil && !sameParent(u.ParentID, f.ParentID) {
			continue
		}
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *UnitRepository) Create(_ context.Context, u *unit.AdministrativeUnit) (*unit.AdministrativeUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[u.Ref()]; ok {
		return nil, unit.ErrDuplicateUnit
	}
	stored := u.Clone()
	r.units[stored.Ref()] = stored
	r.seq = append(r.seq, stored.Ref())
	return stored.Clone(), nil
}

func (r *UnitRepository) Update(_ context.Context, u *unit.AdministrativeUnit) (*unit.AdministrativeUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[u.Ref()]; !ok {
		return nil, unit.ErrUnitNotFound
	}
	stored := u.Clone()
	r.units[stored.Ref()] = stored
	return stored.Clone(), nil
}

func (r *UnitRepository) SoftDelete(_ context.Context, ref unit.Ref, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[ref]
	if !ok {
		return unit.ErrUnitNotFound
	}
	u.Active = false
	u.DeletedAt = &at
	u.UpdatedAt = at
	return nil
}

func (r *UnitRepository) HardDelete(_ context.Context, ref unit.Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[ref]; !ok {
		return unit.ErrUnitNotFound
	}
	delete(r.units, ref)
	return nil
}

func (r *UnitRepository) ChangedSince(_ context.Context, since time.Time) ([]unit.Delta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []unit.Delta
	for _, ref := range r.seq {
		u, ok := r.units[ref]
		if !ok || !u.Store.IsCanonical() {
			continue
		}
		d, changed := classifyDelta(u, since)
		if !changed {
			continue
		}
		out = append(out, unit.Delta{Unit: u.Clone(), Kind: d})
	}
	return out, nil
}

// Snapshot returns a deep copy of every unit in one store, keyed by id.
// Test helper for byte-for-byte state comparisons.
func (r *UnitRepository) Snapshot(store unit.StoreID) map[uuid.UUID]*unit.AdministrativeUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uuid.UUID]*unit.AdministrativeUnit)
	for ref, u := range r.units {
		if ref.Store == store {
			out[ref.ID] = u.Clone()
		}
	}
	return out
}

func classifyDelta(u *unit.AdministrativeUnit, since time.Time) (unit.DeltaKind, bool) {
	switch {
	case u.DeletedAt != nil && u.DeletedAt.After(since):
		return unit.DeltaDelete, true
	case u.CreatedAt.After(since):
		return unit.DeltaCreate, true
	case u.UpdatedAt.After(since):
		return unit.DeltaUpdate, true
	default:
		return "", false
	}
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
