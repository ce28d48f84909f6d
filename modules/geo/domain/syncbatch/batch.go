package syncbatch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/unit"
)

type Status string

const (
	StatusCreated     Status = "CREATED"
	StatusStaged      Status = "STAGED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusApplied     Status = "APPLIED"
	StatusRejected    Status = "REJECTED"
	StatusRolledBack  Status = "ROLLED_BACK"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusStaged, StatusUnderReview, StatusApproved,
		StatusApplied, StatusRejected, StatusRolledBack:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes the batch lifecycle. Every production mutation
// sits behind the UNDER_REVIEW -> APPROVED human gate; APPLIED is immutable
// except for the rollback transition.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusCreated:
		return next == StatusStaged
	case StatusStaged:
		return next == StatusUnderReview
	case StatusUnderReview:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusApplied
	case StatusApplied:
		return next == StatusRolledBack
	default:
		return false
	}
}

// SyncBatch is a named group of canonical deltas moving through staging
// into one tenant's production mirror as a single unit of work.
type SyncBatch struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         uuid.UUID  `json:"tenant_id"`
	Status           Status     `json:"status"`
	AppliedCount     int        `json:"applied_count"`
	FailedCount      int        `json:"failed_count"`
	CreatedBy        string     `json:"created_by"`
	ApprovedBy       *string    `json:"approved_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	AppliedAt        *time.Time `json:"applied_at,omitempty"`
	RollbackEligible bool       `json:"rollback_eligible"`
}

// ChangeItem is one staged canonical delta within a batch. Snapshot holds
// the full canonical unit state the delta carries; Diff is a JSON patch
// against the tenant's current mirror row, rendered for reviewers.
type ChangeItem struct {
	ID             uuid.UUID       `json:"id"`
	BatchID        uuid.UUID       `json:"batch_id"`
	CanonicalID    uuid.UUID       `json:"canonical_id"`
	Kind           unit.DeltaKind  `json:"kind"`
	Snapshot       json.RawMessage `json:"snapshot"`
	Diff           json.RawMessage `json:"diff,omitempty"`
	DependentCount *int            `json:"dependent_count,omitempty"`
	Applied        bool            `json:"applied"`
	FailureReason  *string         `json:"failure_reason,omitempty"`
}

func (i *ChangeItem) Unit() (*unit.AdministrativeUnit, error) {
	var u unit.AdministrativeUnit
	if err := json.Unmarshal(i.Snapshot, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Backup captures the tenant-production state of one unit before a batch
// touched it. Existed=false marks "did not exist"; rollback then removes
// the row the batch created.
type Backup struct {
	ID          uuid.UUID       `json:"id"`
	BatchID     uuid.UUID       `json:"batch_id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	CanonicalID uuid.UUID       `json:"canonical_id"`
	UnitID      *uuid.UUID      `json:"unit_id,omitempty"`
	Existed     bool            `json:"existed"`
	Prior       json.RawMessage `json:"prior,omitempty"`
	Consumed    bool            `json:"consumed"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (b *Backup) PriorUnit() (*unit.AdministrativeUnit, error) {
	if !b.Existed {
		return nil, nil
	}
	var u unit.AdministrativeUnit
	if err := json.Unmarshal(b.Prior, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
