// Package events defines the plain records the geo core publishes on its
// event bus. Delivery (push channel, log, queue) is a collaborator concern;
// the core only hands these to the publisher.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/candidate"
)

type CandidateSubmitted struct {
	CandidateID uuid.UUID
	TenantID    uuid.UUID
	Outcome     string
	SubmittedAt time.Time
}

type CandidateReviewed struct {
	CandidateID uuid.UUID
	TenantID    uuid.UUID
	Decision    candidate.Status
	ReviewedAt  time.Time
}

type BatchStaged struct {
	BatchID   uuid.UUID
	TenantID  uuid.UUID
	ItemCount int
	StagedAt  time.Time
}

type BatchApplied struct {
	BatchID      uuid.UUID
	TenantID     uuid.UUID
	AppliedCount int
	FailedCount  int
	AppliedAt    time.Time
}

type BatchRolledBack struct {
	BatchID      uuid.UUID
	TenantID     uuid.UUID
	RestoredRows int
	RolledBackAt time.Time
}
