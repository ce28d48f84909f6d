package unit

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func buildUnit(id uuid.UUID, level Level, parent *AdministrativeUnit) *AdministrativeUnit {
	u := &AdministrativeUnit{
		ID:       id,
		Store:    CanonicalStore,
		Level:    level,
		Name:     "Unit " + id.String()[:8],
		Country:  "NP",
		Official: level.IsOfficial(),
		Active:   true,
	}
	if parent == nil {
		u.Path = Path{id}
		return u
	}
	pid := parent.ID
	u.ParentID = &pid
	u.Path = ChildPath(parent.Path, id)
	return u
}

func TestValidateNodeReasons(t *testing.T) {
	t.Parallel()

	root := buildUnit(uuid.New(), LevelCountry, nil)
	province := buildUnit(uuid.New(), LevelProvince, root)

	cases := []struct {
		name   string
		unit   func() (*AdministrativeUnit, *AdministrativeUnit)
		reason string
	}{
		{
			name: "level out of range",
			unit: func() (*AdministrativeUnit, *AdministrativeUnit) {
				u := province.Clone()
				u.Level = MaxLevel + 1
				return u, root
			},
			reason: ReasonInvalidLevel,
		},
		{
			name: "non-root without parent",
			unit: func() (*AdministrativeUnit, *AdministrativeUnit) {
				return province.Clone(), nil
			},
			reason: ReasonMissingParent,
		},
		{
			name: "root with forged path",
			unit: func() (*AdministrativeUnit, *AdministrativeUnit) {
				u := root.Clone()
				u.Path = Path{uuid.New(), u.ID}
				return u, nil
			},
			reason: ReasonPathMismatch,
		},
		{
			name: "level skips a tier",
			unit: func() (*AdministrativeUnit, *AdministrativeUnit) {
				u := province.Clone()
				u.Level = LevelDistrict
				return u, root
			},
			reason: ReasonLevelMismatch,
		},
		{
			name: "parent reference points elsewhere",
			unit: func() (*AdministrativeUnit, *AdministrativeUnit) {
				u := province.Clone()
				other := uuid.New()
				u.ParentID = &other
				return u, root
			},
			reason: ReasonMissingParent,
		},
		{
			name: "parent in a different store",
			unit: func() (*AdministrativeUnit, *AdministrativeUnit) {
				u := province.Clone()
				u.Store = TenantStore(uuid.New())
				return u, root
			},
			reason: ReasonForeignParent,
		},
		{
			name: "country differs from parent",
			unit: func() (*AdministrativeUnit, *AdministrativeUnit) {
				u := province.Clone()
				u.Country = "IN"
				return u, root
			},
			reason: ReasonCountryMismatch,
		},
		{
			name: "official unit under non-official parent",
			unit: func() (*AdministrativeUnit, *AdministrativeUnit) {
				p := root.Clone()
				p.Official = false
				u := buildUnit(uuid.New(), LevelProvince, p)
				u.Official = true
				return u, p
			},
			reason: ReasonOfficialAncestry,
		},
		{
			name: "unit appears as its own ancestor",
			unit: func() (*AdministrativeUnit, *AdministrativeUnit) {
				u := province.Clone()
				u.Path = Path{u.ID, root.ID}
				return u, root
			},
			reason: ReasonCyclicReference,
		},
		{
			name: "path does not extend parent path",
			unit: func() (*AdministrativeUnit, *AdministrativeUnit) {
				u := province.Clone()
				u.Path = Path{uuid.New(), u.ID}
				return u, root
			},
			reason: ReasonPathMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			u, parent := tc.unit()
			err := ValidateNode(u, parent)
			require.Error(t, err)

			var herr *InvalidHierarchyError
			require.ErrorAs(t, err, &herr)
			require.Equal(t, tc.reason, herr.Reason)
		})
	}
}

func TestValidateNodeAcceptsWellFormedChain(t *testing.T) {
	t.Parallel()

	root := buildUnit(uuid.New(), LevelCountry, nil)
	require.NoError(t, ValidateNode(root, nil))

	child := root
	for level := LevelProvince; level <= MaxLevel; level++ {
		next := buildUnit(uuid.New(), level, child)
		next.Official = level.IsOfficial()
		require.NoError(t, ValidateNode(next, child))
		child = next
	}
}

func TestValidateHierarchyClosedSet(t *testing.T) {
	t.Parallel()

	root := buildUnit(uuid.New(), LevelCountry, nil)
	province := buildUnit(uuid.New(), LevelProvince, root)
	district := buildUnit(uuid.New(), LevelDistrict, province)

	encoding, err := ValidateHierarchy([]*AdministrativeUnit{root, province, district})
	require.NoError(t, err)
	require.Len(t, encoding, 3)
	require.Equal(t, district.Path.Encode(), encoding[district.ID])

	_, err = ValidateHierarchy([]*AdministrativeUnit{province, district})
	var herr *InvalidHierarchyError
	require.ErrorAs(t, err, &herr)
	require.Equal(t, ReasonMissingParent, herr.Reason)
}

func TestValidateHierarchyRejectsForgedPath(t *testing.T) {
	t.Parallel()

	root := buildUnit(uuid.New(), LevelCountry, nil)
	province := buildUnit(uuid.New(), LevelProvince, root)
	district := buildUnit(uuid.New(), LevelDistrict, province)

	// Swap the province's ancestors around. Its own node check fails, and
	// the district under it can never validate either.
	province.Path = Path{province.ID, root.ID}
	district.Path = ChildPath(province.Path, district.ID)

	_, err := ValidateHierarchy([]*AdministrativeUnit{root, province, district})
	require.Error(t, err)
	var herr *InvalidHierarchyError
	require.True(t, errors.As(err, &herr))
	require.Equal(t, ReasonPathMismatch, herr.Reason)
}
