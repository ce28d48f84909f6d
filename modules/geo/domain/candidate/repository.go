package candidate

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/unit"
)

var (
	ErrCandidateNotFound = errors.New("candidate not found")
	// ErrDuplicateOpen is returned by Create when an open candidate with
	// the same (normalized name, level, parent, tenant) already exists.
	// Submission absorbs it; it is not a failure.
	ErrDuplicateOpen = errors.New("open candidate already exists for submission")
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Candidate, error)
	// FindOpen returns the PENDING/UNDER_REVIEW candidate for a submission
	// key, or ErrCandidateNotFound.
	FindOpen(ctx context.Context, tenantID uuid.UUID, normalized string, level unit.Level, parentID *uuid.UUID) (*Candidate, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Candidate, error)
	Create(ctx context.Context, c *Candidate) (*Candidate, error)
	Update(ctx context.Context, c *Candidate) (*Candidate, error)
	// TransitionStatus updates the status only when the stored status
	// matches expected, reporting whether it did.
	TransitionStatus(ctx context.Context, id uuid.UUID, expected, next Status) (bool, error)
}
