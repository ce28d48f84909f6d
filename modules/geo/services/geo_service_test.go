package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/geosync/modules/geo/domain/unit"
)

func TestResolveUnits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	provinceA := f.seedCanonical(t, "Gandaki", unit.LevelProvince, country)
	provinceB := f.seedCanonical(t, "Bagmati", unit.LevelProvince, country)

	mc := f.seedMirror(t, country)
	f.seedMirror(t, provinceA)
	f.seedMirror(t, provinceB)

	geo := NewGeoService(f.units)

	units, err := geo.ResolveUnits(context.Background(), f.tenantID, unit.LevelProvince, &mc.ID, "")
	require.NoError(t, err)
	require.Len(t, units, 2)

	units, err = geo.ResolveUnits(context.Background(), f.tenantID, unit.LevelProvince, &mc.ID, "gan")
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.Equal(t, "Gandaki", units[0].Name)

	_, err = geo.ResolveUnits(context.Background(), f.tenantID, 0, nil, "")
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_BODY", svcErr.Code)
}

func TestValidateHierarchyService(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	province := f.seedCanonical(t, "Gandaki", unit.LevelProvince, country)

	geo := NewGeoService(f.units)

	encoding, err := geo.ValidateHierarchy(context.Background(), unit.CanonicalStore, []uuid.UUID{country.ID, province.ID})
	require.NoError(t, err)
	require.Len(t, encoding, 2)
	require.Equal(t, province.Path.Encode(), encoding[province.ID])

	// The set is closed: a child whose parent is not listed fails.
	_, err = geo.ValidateHierarchy(context.Background(), unit.CanonicalStore, []uuid.UUID{province.ID})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_HIERARCHY", svcErr.Code)

	_, err = geo.ValidateHierarchy(context.Background(), unit.CanonicalStore, []uuid.UUID{uuid.New()})
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_NOT_FOUND", svcErr.Code)

	_, err = geo.ValidateHierarchy(context.Background(), unit.CanonicalStore, nil)
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "GEO_INVALID_BODY", svcErr.Code)
}
