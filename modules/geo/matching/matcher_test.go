package matching

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/modules/geo/infrastructure/persistence/inmem"
)

func seedUnit(t *testing.T, repo *inmem.UnitRepository, store unit.StoreID, name string, level unit.Level, parent *unit.AdministrativeUnit) *unit.AdministrativeUnit {
	t.Helper()

	n := NewNormalizer(nil)
	u := &unit.AdministrativeUnit{
		ID:             uuid.New(),
		Store:          store,
		Level:          level,
		Name:           name,
		NormalizedName: n.Normalize(name),
		Country:        "NP",
		Official:       level.IsOfficial(),
		Active:         true,
		ValidFrom:      time.Now(),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if parent != nil {
		pid := parent.ID
		u.ParentID = &pid
		u.Path = unit.ChildPath(parent.Path, u.ID)
	} else {
		u.Path = unit.Path{u.ID}
	}
	created, err := repo.Create(context.Background(), u)
	require.NoError(t, err)
	return created
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, Similarity("kathmandu", "kathmandu"))
	require.Equal(t, 0.0, Similarity("", "kathmandu"))
	require.Equal(t, 0.0, Similarity("kathmandu", ""))

	// One substitution in a nine letter name stays well above review.
	near := Similarity("roshara", "rosyara")
	require.Greater(t, near, 0.70)
	require.Less(t, near, 1.0)

	far := Similarity("kathmandu", "biratnagar")
	require.Less(t, far, 0.50)

	// Symmetric.
	require.InDelta(t, Similarity("pokhara", "pokhra"), Similarity("pokhra", "pokhara"), 1e-9)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	m := NewMatcher(inmem.NewUnitRepository(), DefaultConfig())

	cases := []struct {
		score float64
		want  Confidence
	}{
		{1.0, ConfidenceHigh},
		{0.92, ConfidenceHigh},
		{0.9199, ConfidenceReview},
		{0.70, ConfidenceReview},
		{0.6999, ConfidenceNone},
		{0.0, ConfidenceNone},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, m.Classify(tc.score), "score %v", tc.score)
	}
}

func TestFindMatchesScopesToSiblings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := inmem.NewUnitRepository()

	country := seedUnit(t, repo, unit.CanonicalStore, "Nepal", unit.LevelCountry, nil)
	provinceA := seedUnit(t, repo, unit.CanonicalStore, "Gandaki", unit.LevelProvince, country)
	provinceB := seedUnit(t, repo, unit.CanonicalStore, "Bagmati", unit.LevelProvince, country)

	target := seedUnit(t, repo, unit.CanonicalStore, "Pokhara", unit.LevelDistrict, provinceA)
	seedUnit(t, repo, unit.CanonicalStore, "Pokhara", unit.LevelDistrict, provinceB)

	// Same name in a tenant mirror must never leak into canonical matching.
	tenant := unit.TenantStore(uuid.New())
	tcountry := seedUnit(t, repo, tenant, "Nepal", unit.LevelCountry, nil)
	tprov := seedUnit(t, repo, tenant, "Gandaki", unit.LevelProvince, tcountry)
	seedUnit(t, repo, tenant, "Pokhara", unit.LevelDistrict, tprov)

	m := NewMatcher(repo, DefaultConfig())

	matches, err := m.FindMatches(ctx, unit.CanonicalStore, "pokhara", "NP", unit.LevelDistrict, &provinceA.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, target.ID, matches[0].Unit.ID)
	require.Equal(t, 1.0, matches[0].Score)

	// Without a parent scope both canonical districts surface.
	matches, err = m.FindMatches(ctx, unit.CanonicalStore, "pokhara", "NP", unit.LevelDistrict, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
}

func TestFindMatchesRankingAndCap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := inmem.NewUnitRepository()

	country := seedUnit(t, repo, unit.CanonicalStore, "Nepal", unit.LevelCountry, nil)
	province := seedUnit(t, repo, unit.CanonicalStore, "Gandaki", unit.LevelProvince, country)

	exact := seedUnit(t, repo, unit.CanonicalStore, "Lamjung", unit.LevelDistrict, province)
	near := seedUnit(t, repo, unit.CanonicalStore, "Lamjang", unit.LevelDistrict, province)
	seedUnit(t, repo, unit.CanonicalStore, "Biratnagar", unit.LevelDistrict, province)

	m := NewMatcher(repo, Config{HighConfidence: 0.92, ReviewThreshold: 0.70, MaxResults: 1})

	matches, err := m.FindMatches(ctx, unit.CanonicalStore, "lamjung", "NP", unit.LevelDistrict, &province.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, exact.ID, matches[0].Unit.ID)

	m = NewMatcher(repo, DefaultConfig())
	matches, err = m.FindMatches(ctx, unit.CanonicalStore, "lamjung", "NP", unit.LevelDistrict, &province.ID)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, exact.ID, matches[0].Unit.ID)
	require.Equal(t, near.ID, matches[1].Unit.ID)
	require.Greater(t, matches[0].Score, matches[1].Score)
}

func TestFindMatchesEmptyPool(t *testing.T) {
	t.Parallel()

	m := NewMatcher(inmem.NewUnitRepository(), DefaultConfig())
	matches, err := m.FindMatches(context.Background(), unit.CanonicalStore, "anything", "NP", unit.LevelDistrict, nil)
	require.NoError(t, err)
	require.Empty(t, matches)
}
