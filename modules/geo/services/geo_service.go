package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/modules/geo/matching"
)

// GeoService is the read surface consumed by cascading selection UIs and
// hierarchy checks.
type GeoService struct {
	units unit.Repository
}

func NewGeoService(units unit.Repository) *GeoService {
	return &GeoService{units: units}
}

// ResolveUnits lists a tenant's active units at one level beneath an
// optional parent. A non-empty query narrows the list by fuzzy name
// search.
func (s *GeoService) ResolveUnits(ctx context.Context, tenantID uuid.UUID, level unit.Level, parentID *uuid.UUID, query string) ([]*unit.AdministrativeUnit, error) {
	if !level.Valid() {
		return nil, invalidBody("level must lie in 1..8")
	}
	units, err := s.units.List(ctx, unit.TenantStore(tenantID), unit.Filter{
		Level:    level,
		ParentID: parentID,
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	return matching.SearchNames(query, units), nil
}

// ValidateHierarchy loads the given units from one store and verifies the
// full set of hierarchy invariants, returning each unit's path encoding.
func (s *GeoService) ValidateHierarchy(ctx context.Context, store unit.StoreID, unitIDs []uuid.UUID) (unit.PathEncoding, error) {
	if len(unitIDs) == 0 {
		return nil, invalidBody("at least one unit id is required")
	}

	units := make([]*unit.AdministrativeUnit, 0, len(unitIDs))
	for _, id := range unitIDs {
		u, err := s.units.GetByID(ctx, unit.Ref{Store: store, ID: id})
		if err != nil {
			if errors.Is(err, unit.ErrUnitNotFound) {
				return nil, notFound("unit "+id.String()+" not found", err)
			}
			return nil, mapPgError(err)
		}
		units = append(units, u)
	}

	encoding, err := unit.ValidateHierarchy(units)
	if err != nil {
		return nil, invalidHierarchy(err)
	}
	return encoding, nil
}
