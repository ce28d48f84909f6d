package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/candidate"
	"github.com/iota-uz/geosync/modules/geo/domain/events"
	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/modules/geo/matching"
	"github.com/iota-uz/geosync/pkg/composables"
	"github.com/iota-uz/geosync/pkg/eventbus"
)

type SubmissionOutcome string

const (
	// OutcomeExact: an exact normalized-name collision exists in scope.
	// No candidate record is created.
	OutcomeExact SubmissionOutcome = "EXACT"
	// OutcomeSuggested: close matches exist above the review threshold. A
	// PENDING candidate is still recorded for admin confirmation.
	OutcomeSuggested SubmissionOutcome = "SUGGESTED"
	// OutcomeQueued: no usable match; the candidate waits for review.
	OutcomeQueued SubmissionOutcome = "QUEUED"
)

type SubmitInput struct {
	Name        string
	Level       unit.Level
	ParentID    *uuid.UUID
	Country     string
	SubmittedBy string
}

type SubmissionResult struct {
	Outcome     SubmissionOutcome
	CandidateID *uuid.UUID
	Matches     []matching.Match
}

type CandidateService struct {
	candidates candidate.Repository
	units      unit.Repository
	matcher    *matching.Matcher
	normalizer *matching.Normalizer
	publisher  eventbus.EventBus
}

func NewCandidateService(
	candidates candidate.Repository,
	units unit.Repository,
	matcher *matching.Matcher,
	normalizer *matching.Normalizer,
	publisher eventbus.EventBus,
) *CandidateService {
	return &CandidateService{
		candidates: candidates,
		units:      units,
		matcher:    matcher,
		normalizer: normalizer,
		publisher:  publisher,
	}
}

// Submit records a "missing geography" request. Matching runs against the
// canonical store scoped to (country, level, parent). Duplicate open
// submissions for the same key are absorbed into the existing candidate.
func (s *CandidateService) Submit(ctx context.Context, in SubmitInput) (*SubmissionResult, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, invalidBody("name is required")
	}
	if !in.Level.Valid() {
		return nil, invalidBody("level must lie in 1..8")
	}
	in.Country = strings.ToUpper(strings.TrimSpace(in.Country))
	if in.Country == "" {
		return nil, invalidBody("country is required")
	}

	normalized := s.normalizer.Normalize(in.Name)
	if normalized == "" {
		return nil, invalidBody("name normalizes to an empty string")
	}

	exact, err := s.units.FindByNormalizedName(ctx, unit.CanonicalStore, in.Country, in.Level, in.ParentID, normalized)
	if err != nil && !errors.Is(err, unit.ErrUnitNotFound) {
		return nil, mapPgError(err)
	}
	if exact != nil {
		recordSubmission(OutcomeExact)
		return &SubmissionResult{
			Outcome: OutcomeExact,
			Matches: []matching.Match{{Unit: exact, Score: 1.0}},
		}, nil
	}

	matches, err := s.matcher.FindMatches(ctx, unit.CanonicalStore, normalized, in.Country, in.Level, in.ParentID)
	if err != nil {
		return nil, mapPgError(err)
	}

	outcome := OutcomeQueued
	if len(matches) > 0 {
		outcome = OutcomeSuggested
	}

	c, err := s.recordCandidate(ctx, tenantID, in, normalized, matches)
	if err != nil {
		return nil, err
	}

	recordSubmission(outcome)
	s.publisher.Publish(events.CandidateSubmitted{
		CandidateID: c.ID,
		TenantID:    tenantID,
		Outcome:     string(outcome),
		SubmittedAt: c.CreatedAt,
	})

	return &SubmissionResult{
		Outcome:     outcome,
		CandidateID: &c.ID,
		Matches:     matches,
	}, nil
}

func (s *CandidateService) recordCandidate(ctx context.Context, tenantID uuid.UUID, in SubmitInput, normalized string, matches []matching.Match) (*candidate.Candidate, error) {
	// Fast path: absorb into an already open candidate for the same key.
	existing, err := s.candidates.FindOpen(ctx, tenantID, normalized, in.Level, in.ParentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, candidate.ErrCandidateNotFound) {
		return nil, mapPgError(err)
	}

	now := time.Now().UTC()
	c := &candidate.Candidate{
		ID:             uuid.New(),
		TenantID:       tenantID,
		SubmittedBy:    in.SubmittedBy,
		ProposedName:   in.Name,
		NormalizedName: normalized,
		Level:          in.Level,
		ParentID:       in.ParentID,
		Country:        in.Country,
		Matches:        toCandidateMatches(matches),
		Status:         candidate.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.candidates.Create(ctx, c)
	if err == nil {
		return created, nil
	}
	// A concurrent submitter won the check-and-insert race; the partial
	// unique index turns that into a duplicate we absorb.
	if errors.Is(err, candidate.ErrDuplicateOpen) || isUniqueViolation(err) {
		return s.candidates.FindOpen(ctx, tenantID, normalized, in.Level, in.ParentID)
	}
	return nil, mapPgError(err)
}

func (s *CandidateService) GetByID(ctx context.Context, id uuid.UUID) (*candidate.Candidate, error) {
	c, err := s.candidates.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, candidate.ErrCandidateNotFound) {
			return nil, notFound("candidate not found", err)
		}
		return nil, mapPgError(err)
	}
	return c, nil
}

func (s *CandidateService) ListOpen(ctx context.Context) ([]*candidate.Candidate, error) {
	return s.candidates.ListByStatus(ctx, candidate.StatusPending, candidate.StatusUnderReview)
}

func toCandidateMatches(matches []matching.Match) []candidate.Match {
	out := make([]candidate.Match, len(matches))
	for i, m := range matches {
		out[i] = candidate.Match{UnitID: m.Unit.ID, Score: m.Score}
	}
	return out
}
