package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/geosync/modules/geo/domain/candidate"
	"github.com/iota-uz/geosync/modules/geo/domain/unit"
)

func TestSubmitExactMatchCreatesNoCandidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	existing := f.seedCanonical(t, "Gandaki", unit.LevelProvince, country)

	result, err := f.submissions.Submit(f.tenantCtx(), SubmitInput{
		Name:        "Gandaki ",
		Level:       unit.LevelProvince,
		ParentID:    &country.ID,
		Country:     "np",
		SubmittedBy: "clerk",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeExact, result.Outcome)
	require.Nil(t, result.CandidateID)
	require.Len(t, result.Matches, 1)
	require.Equal(t, existing.ID, result.Matches[0].Unit.ID)
	require.Equal(t, 1.0, result.Matches[0].Score)

	open, err := f.submissions.ListOpen(context.Background())
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestSubmitCloseMatchSuggestsAndQueues(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)
	f.seedCanonical(t, "Lamjung", unit.LevelDistrict, country)

	result, err := f.submissions.Submit(f.tenantCtx(), SubmitInput{
		Name:        "Lamjang",
		Level:       unit.LevelDistrict,
		ParentID:    &country.ID,
		Country:     "NP",
		SubmittedBy: "clerk",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeSuggested, result.Outcome)
	require.NotNil(t, result.CandidateID)
	require.NotEmpty(t, result.Matches)

	c, err := f.submissions.GetByID(context.Background(), *result.CandidateID)
	require.NoError(t, err)
	require.Equal(t, candidate.StatusPending, c.Status)
	require.Equal(t, "lamjang", c.NormalizedName)
	require.NotEmpty(t, c.Matches)
}

func TestSubmitNoMatchQueues(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)

	result, err := f.submissions.Submit(f.tenantCtx(), SubmitInput{
		Name:        "Biratnagar",
		Level:       unit.LevelDistrict,
		ParentID:    &country.ID,
		Country:     "NP",
		SubmittedBy: "clerk",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)
	require.NotNil(t, result.CandidateID)
	require.Empty(t, result.Matches)
}

func TestSubmitDuplicateAbsorbedIntoOpenCandidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	country := f.seedCanonical(t, "Nepal", unit.LevelCountry, nil)

	in := SubmitInput{
		Name:        "Besisahar",
		Level:       unit.LevelDistrict,
		ParentID:    &country.ID,
		Country:     "NP",
		SubmittedBy: "clerk",
	}

	first, err := f.submissions.Submit(f.tenantCtx(), in)
	require.NoError(t, err)

	in.Name = "besisahar" // same normalized key
	second, err := f.submissions.Submit(f.tenantCtx(), in)
	require.NoError(t, err)
	require.Equal(t, *first.CandidateID, *second.CandidateID)

	open, err := f.submissions.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	cases := []struct {
		name string
		in   SubmitInput
	}{
		{"empty name", SubmitInput{Name: "  ", Level: unit.LevelDistrict, Country: "NP"}},
		{"level out of range", SubmitInput{Name: "Lamjung", Level: 9, Country: "NP"}},
		{"missing country", SubmitInput{Name: "Lamjung", Level: unit.LevelDistrict}},
		{"name normalizes to nothing", SubmitInput{Name: "!!!", Level: unit.LevelDistrict, Country: "NP"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := f.submissions.Submit(f.tenantCtx(), tc.in)
			var svcErr *ServiceError
			require.ErrorAs(t, err, &svcErr)
			require.Equal(t, "GEO_INVALID_BODY", svcErr.Code)
		})
	}
}

func TestSubmitRequiresTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.submissions.Submit(context.Background(), SubmitInput{
		Name: "Lamjung", Level: unit.LevelDistrict, Country: "NP",
	})
	require.Error(t, err)
}
