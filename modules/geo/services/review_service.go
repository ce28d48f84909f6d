package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/candidate"
	"github.com/iota-uz/geosync/modules/geo/domain/events"
	"github.com/iota-uz/geosync/modules/geo/domain/syncbatch"
	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/modules/geo/matching"
	"github.com/iota-uz/geosync/pkg/composables"
	"github.com/iota-uz/geosync/pkg/eventbus"
)

// DependentCounter is implemented by the membership module. The core only
// uses it to attach impact counts to deletions before approval; it has no
// opinion on how dependents are counted.
type DependentCounter interface {
	CountDependents(ctx context.Context, tenantID uuid.UUID, unitID uuid.UUID) (int, error)
}

type ReviewDecision struct {
	Approve bool
	Reason  string
	// MergeIntoUnitID folds the candidate into an existing canonical unit
	// (name correction) instead of creating a new one.
	MergeIntoUnitID *uuid.UUID
}

type ReviewService struct {
	candidates candidate.Repository
	units      unit.Repository
	batches    syncbatch.Repository
	normalizer *matching.Normalizer
	dependents DependentCounter
	publisher  eventbus.EventBus
}

func NewReviewService(
	candidates candidate.Repository,
	units unit.Repository,
	batches syncbatch.Repository,
	normalizer *matching.Normalizer,
	dependents DependentCounter,
	publisher eventbus.EventBus,
) *ReviewService {
	return &ReviewService{
		candidates: candidates,
		units:      units,
		batches:    batches,
		normalizer: normalizer,
		dependents: dependents,
		publisher:  publisher,
	}
}

// OpenReview moves a candidate from PENDING to UNDER_REVIEW.
func (s *ReviewService) OpenReview(ctx context.Context, candidateID uuid.UUID) (*candidate.Candidate, error) {
	ok, err := s.candidates.TransitionStatus(ctx, candidateID, candidate.StatusPending, candidate.StatusUnderReview)
	if err != nil {
		return nil, mapPgError(err)
	}
	if !ok {
		return nil, invalidState("candidate is not PENDING")
	}
	return s.candidates.GetByID(ctx, candidateID)
}

// ReviewCandidate decides an UNDER_REVIEW candidate. Approval folds it
// into the canonical store and marks it MERGED; rejection is terminal and
// requires a reason.
func (s *ReviewService) ReviewCandidate(ctx context.Context, candidateID uuid.UUID, decision ReviewDecision) (*candidate.Candidate, error) {
	c, err := s.candidates.GetByID(ctx, candidateID)
	if err != nil {
		if errors.Is(err, candidate.ErrCandidateNotFound) {
			return nil, notFound("candidate not found", err)
		}
		return nil, mapPgError(err)
	}

	if !decision.Approve {
		reason := strings.TrimSpace(decision.Reason)
		if reason == "" {
			return nil, invalidBody("rejection requires a reason")
		}
		ok, err := s.candidates.TransitionStatus(ctx, candidateID, candidate.StatusUnderReview, candidate.StatusRejected)
		if err != nil {
			return nil, mapPgError(err)
		}
		if !ok {
			return nil, invalidState("candidate is not UNDER_REVIEW")
		}
		c.Status = candidate.StatusRejected
		c.ReviewReason = &reason
		if c, err = s.candidates.Update(ctx, c); err != nil {
			return nil, mapPgError(err)
		}
		s.publishReviewed(c)
		return c, nil
	}

	// The reviewer is a global admin; the transaction runs under the
	// submitting candidate's tenant.
	ctx = composables.WithTenantID(ctx, c.TenantID)
	merged, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*candidate.Candidate, error) {
		ok, err := s.candidates.TransitionStatus(txCtx, candidateID, candidate.StatusUnderReview, candidate.StatusApproved)
		if err != nil {
			return nil, mapPgError(err)
		}
		if !ok {
			return nil, invalidState("candidate is not UNDER_REVIEW")
		}

		unitID, err := s.fold(txCtx, c, decision.MergeIntoUnitID)
		if err != nil {
			return nil, err
		}

		ok, err = s.candidates.TransitionStatus(txCtx, candidateID, candidate.StatusApproved, candidate.StatusMerged)
		if err != nil {
			return nil, mapPgError(err)
		}
		if !ok {
			return nil, invalidState("candidate left APPROVED concurrently")
		}

		c.Status = candidate.StatusMerged
		c.MergedUnitID = &unitID
		return s.candidates.Update(txCtx, c)
	})
	if err != nil {
		return nil, err
	}
	s.publishReviewed(merged)
	return merged, nil
}

// fold applies the approved candidate to the canonical store and returns
// the canonical unit id it produced or corrected.
func (s *ReviewService) fold(ctx context.Context, c *candidate.Candidate, mergeInto *uuid.UUID) (uuid.UUID, error) {
	if mergeInto != nil {
		target, err := s.units.GetByID(ctx, unit.Ref{Store: unit.CanonicalStore, ID: *mergeInto})
		if err != nil {
			if errors.Is(err, unit.ErrUnitNotFound) {
				return uuid.Nil, notFound("merge target not found in canonical store", err)
			}
			return uuid.Nil, mapPgError(err)
		}
		target.Name = c.ProposedName
		target.NormalizedName = s.normalizer.Normalize(c.ProposedName)
		target.UpdatedAt = time.Now().UTC()
		if _, err := s.units.Update(ctx, target); err != nil {
			return uuid.Nil, mapPgError(err)
		}
		return target.ID, nil
	}

	if !c.Level.IsOfficial() {
		return uuid.Nil, invalidBody(fmt.Sprintf("level %d is tenant-private and cannot enter the canonical store", c.Level))
	}

	var parent *unit.AdministrativeUnit
	if c.ParentID != nil {
		p, err := s.units.GetByID(ctx, unit.Ref{Store: unit.CanonicalStore, ID: *c.ParentID})
		if err != nil {
			if errors.Is(err, unit.ErrUnitNotFound) {
				return uuid.Nil, notFound("proposed parent not found in canonical store", err)
			}
			return uuid.Nil, mapPgError(err)
		}
		parent = p
	}

	now := time.Now().UTC()
	u := &unit.AdministrativeUnit{
		ID:             uuid.New(),
		Store:          unit.CanonicalStore,
		Level:          c.Level,
		Name:           c.ProposedName,
		NormalizedName: c.NormalizedName,
		ParentID:       c.ParentID,
		Country:        c.Country,
		Official:       true,
		Active:         true,
		ValidFrom:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if parent != nil {
		u.Path = unit.ChildPath(parent.Path, u.ID)
	} else {
		u.Path = unit.Path{u.ID}
	}

	if err := unit.ValidateNode(u, parent); err != nil {
		return uuid.Nil, invalidHierarchy(err)
	}
	if _, err := s.units.Create(ctx, u); err != nil {
		return uuid.Nil, mapPgError(err)
	}
	return u.ID, nil
}

func (s *ReviewService) publishReviewed(c *candidate.Candidate) {
	s.publisher.Publish(events.CandidateReviewed{
		CandidateID: c.ID,
		TenantID:    c.TenantID,
		Decision:    c.Status,
		ReviewedAt:  c.UpdatedAt,
	})
}

// SubmitBatchForReview moves a staged batch into UNDER_REVIEW and attaches
// dependent counts to delete items so the approver sees the impact size.
func (s *ReviewService) SubmitBatchForReview(ctx context.Context, batchID uuid.UUID) (*syncbatch.SyncBatch, error) {
	b, err := s.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	ok, err := s.batches.TransitionStatus(ctx, batchID, syncbatch.StatusStaged, syncbatch.StatusUnderReview, nil)
	if err != nil {
		return nil, mapPgError(err)
	}
	if !ok {
		return nil, invalidState("batch is not STAGED")
	}

	if s.dependents != nil {
		items, err := s.batches.ListItems(ctx, batchID)
		if err != nil {
			return nil, mapPgError(err)
		}
		for _, item := range items {
			if item.Kind != unit.DeltaDelete {
				continue
			}
			mirror, err := s.units.GetByCanonicalID(ctx, b.TenantID, item.CanonicalID)
			if err != nil {
				continue // nothing mirrored yet, deletion has no dependents
			}
			count, err := s.dependents.CountDependents(ctx, b.TenantID, mirror.ID)
			if err != nil {
				composables.UseLogger(ctx).WithError(err).
					WithField("unit_id", mirror.ID).
					Warn("dependent count unavailable")
				continue
			}
			item.DependentCount = &count
			if err := s.batches.UpdateItem(ctx, item); err != nil {
				return nil, mapPgError(err)
			}
		}
	}

	return s.getBatch(ctx, batchID)
}

// ApproveBatch is the explicit human gate in front of every production
// mutation.
func (s *ReviewService) ApproveBatch(ctx context.Context, batchID uuid.UUID, approverID string) (*syncbatch.SyncBatch, error) {
	if strings.TrimSpace(approverID) == "" {
		return nil, invalidBody("approver is required")
	}
	ok, err := s.batches.TransitionStatus(ctx, batchID, syncbatch.StatusUnderReview, syncbatch.StatusApproved, func(b *syncbatch.SyncBatch) {
		b.ApprovedBy = &approverID
	})
	if err != nil {
		return nil, mapPgError(err)
	}
	if !ok {
		return nil, invalidState("batch is not UNDER_REVIEW")
	}
	return s.getBatch(ctx, batchID)
}

func (s *ReviewService) RejectBatch(ctx context.Context, batchID uuid.UUID) (*syncbatch.SyncBatch, error) {
	ok, err := s.batches.TransitionStatus(ctx, batchID, syncbatch.StatusUnderReview, syncbatch.StatusRejected, nil)
	if err != nil {
		return nil, mapPgError(err)
	}
	if !ok {
		return nil, invalidState("batch is not UNDER_REVIEW")
	}
	return s.getBatch(ctx, batchID)
}

func (s *ReviewService) getBatch(ctx context.Context, batchID uuid.UUID) (*syncbatch.SyncBatch, error) {
	b, err := s.batches.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, syncbatch.ErrBatchNotFound) {
			return nil, notFound("batch not found", err)
		}
		return nil, mapPgError(err)
	}
	return b, nil
}
