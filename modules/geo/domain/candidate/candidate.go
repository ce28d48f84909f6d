package candidate

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/unit"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusMerged      Status = "MERGED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusMerged:
		return true
	default:
		return false
	}
}

// Open reports whether the candidate still absorbs duplicate submissions.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusUnderReview
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusMerged
}

// CanTransitionTo encodes the review state machine. Terminal states are
// never left; APPROVED only moves on to MERGED once the canonical fold
// completes.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusUnderReview
	case StatusUnderReview:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusMerged
	default:
		return false
	}
}

// Match is one ranked canonical suggestion attached to a candidate.
type Match struct {
	UnitID uuid.UUID `json:"unit_id"`
	Score  float64   `json:"score"`
}

// Candidate is a user-submitted geography unit that found no exact
// canonical match. It is owned by the submitting tenant until MERGED.
type Candidate struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	SubmittedBy    string     `json:"submitted_by"`
	ProposedName   string     `json:"proposed_name"`
	NormalizedName string     `json:"normalized_name"`
	Level          unit.Level `json:"level"`
	ParentID       *uuid.UUID `json:"parent_id,omitempty"`
	Country        string     `json:"country"`
	Matches        []Match    `json:"matches,omitempty"`
	Status         Status     `json:"status"`
	ReviewReason   *string    `json:"review_reason,omitempty"`
	MergedUnitID   *uuid.UUID `json:"merged_unit_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
