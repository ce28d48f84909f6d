package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/candidate"
	"github.com/iota-uz/geosync/modules/geo/domain/unit"
)

type CandidateRepository struct {
	mu         sync.Mutex
	candidates map[uuid.UUID]*candidate.Candidate
}

func NewCandidateRepository() *CandidateRepository {
	return &CandidateRepository{candidates: make(map[uuid.UUID]*candidate.Candidate)}
}

func (r *CandidateRepository) GetByID(_ context.Context, id uuid.UUID) (*candidate.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[id]
	if !ok {
		return nil, candidate.ErrCandidateNotFound
	}
	return cloneCandidate(c), nil
}

func (r *CandidateRepository) FindOpen(_ context.Context, tenantID uuid.UUID, normalized string, level unit.Level, parentID *uuid.UUID) (*candidate.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.findOpenLocked(tenantID, normalized, level, parentID); c != nil {
		return cloneCandidate(c), nil
	}
	return nil, candidate.ErrCandidateNotFound
}

func (r *CandidateRepository) findOpenLocked(tenantID uuid.UUID, normalized string, level unit.Level, parentID *uuid.UUID) *candidate.Candidate {
	for _, c := range r.candidates {
		if c.TenantID != tenantID || c.NormalizedName != normalized || c.Level != level {
			continue
		}
		if !sameParent(c.ParentID, parentID) {
			continue
		}
		if c.Status.Open() {
			return c
		}
	}
	return nil
}

func (r *CandidateRepository) ListByStatus(_ context.Context, statuses ...candidate.Status) ([]*candidate.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*candidate.Candidate
	for _, c := range r.candidates {
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, cloneCandidate(c))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Create enforces the open-candidate uniqueness the postgres partial index
// provides: at most one PENDING/UNDER_REVIEW candidate per submission key.
func (r *CandidateRepository) Create(_ context.Context, c *candidate.Candidate) (*candidate.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.findOpenLocked(c.TenantID, c.NormalizedName, c.Level, c.ParentID); existing != nil {
		return nil, candidate.ErrDuplicateOpen
	}
	stored := cloneCandidate(c)
	r.candidates[stored.ID] = stored
	return cloneCandidate(stored), nil
}

func (r *CandidateRepository) Update(_ context.Context, c *candidate.Candidate) (*candidate.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.candidates[c.ID]; !ok {
		return nil, candidate.ErrCandidateNotFound
	}
	stored := cloneCandidate(c)
	stored.UpdatedAt = time.Now().UTC()
	r.candidates[stored.ID] = stored
	return cloneCandidate(stored), nil
}

func (r *CandidateRepository) TransitionStatus(_ context.Context, id uuid.UUID, expected, next candidate.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[id]
	if !ok {
		return false, candidate.ErrCandidateNotFound
	}
	if c.Status != expected {
		return false, nil
	}
	c.Status = next
	c.UpdatedAt = time.Now().UTC()
	return true, nil
}

func cloneCandidate(c *candidate.Candidate) *candidate.Candidate {
	out := *c
	out.Matches = append([]candidate.Match(nil), c.Matches...)
	if c.ParentID != nil {
		id := *c.ParentID
		out.ParentID = &id
	}
	if c.ReviewReason != nil {
		s := *c.ReviewReason
		out.ReviewReason = &s
	}
	if c.MergedUnitID != nil {
		id := *c.MergedUnitID
		out.MergedUnitID = &id
	}
	return &out
}
