package unit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnitNotFound = errors.New("administrative unit not found")
	// ErrDuplicateUnit is returned by Create when a row with the same id
	// already exists, soft-deleted rows included.
	ErrDuplicateUnit = errors.New("administrative unit id already exists")
)

// Filter narrows List to a sibling set. Level and Country are required for
// matching pools; ParentID nil means "all units at that level".
type Filter struct {
	Country         string
	Level           Level
	ParentID        *uuid.UUID
	IncludeInactive bool
}

// Delta is one canonical change observed since a staging checkpoint.
type Delta struct {
	Unit *AdministrativeUnit
	Kind DeltaKind
}

type DeltaKind string

const (
	DeltaCreate DeltaKind = "create"
	DeltaUpdate DeltaKind = "update"
	DeltaDelete DeltaKind = "delete"
)

type Repository interface {
	GetByID(ctx context.Context, ref Ref) (*AdministrativeUnit, error)
	// GetByCanonicalID resolves the live tenant-local mirror row of a
	// canonical unit; soft-deleted mirrors are not found. Sync application
	// resolves every parent reference through it; raw ids are never shared
	// between stores.
	GetByCanonicalID(ctx context.Context, tenantID uuid.UUID, canonicalID uuid.UUID) (*AdministrativeUnit, error)
	FindByNormalizedName(ctx context.Context, store StoreID, country string, level Level, parentID *uuid.UUID, normalized string) (*AdministrativeUnit, error)
	List(ctx context.Context, store StoreID, f Filter) ([]*AdministrativeUnit, error)
	Create(ctx context.Context, u *AdministrativeUnit) (*AdministrativeUnit, error)
	Update(ctx context.Context, u *AdministrativeUnit) (*AdministrativeUnit, error)
	SoftDelete(ctx context.Context, ref Ref, at time.Time) error
	// HardDelete removes a row entirely. Used only by rollback when
	// restoring a "did not exist" backup.
	HardDelete(ctx context.Context, ref Ref) error
	// ChangedSince returns canonical-store deltas in commit order.
	ChangedSince(ctx context.Context, since time.Time) ([]Delta, error)
}
