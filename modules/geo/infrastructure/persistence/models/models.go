package models

import (
	"database/sql"
	"time"
)

type AdministrativeUnit struct {
	ID             string
	TenantID       sql.NullString
	CanonicalID    sql.NullString
	Level          int
	Name           string
	NormalizedName string
	ParentID       sql.NullString
	Path           string
	Country        string
	Official       bool
	Active         bool
	ValidFrom      time.Time
	ValidTo        sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      sql.NullTime
}

type Candidate struct {
	ID             string
	TenantID       string
	SubmittedBy    string
	ProposedName   string
	NormalizedName string
	Level          int
	ParentID       sql.NullString
	Country        string
	Matches        []byte
	Status         string
	ReviewReason   sql.NullString
	MergedUnitID   sql.NullString
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type SyncBatch struct {
	ID               string
	TenantID         string
	Status           string
	AppliedCount     int
	FailedCount      int
	CreatedBy        string
	ApprovedBy       sql.NullString
	CreatedAt        time.Time
	AppliedAt        sql.NullTime
	RollbackEligible bool
}

type SyncBatchItem struct {
	ID             string
	BatchID        string
	CanonicalID    string
	Kind           string
	Snapshot       []byte
	Diff           []byte
	DependentCount sql.NullInt32
	Applied        bool
	FailureReason  sql.NullString
	CreatedAt      time.Time
}

type SyncBackup struct {
	ID          string
	BatchID     string
	TenantID    string
	CanonicalID string
	UnitID      sql.NullString
	Existed     bool
	Prior       []byte
	Consumed    bool
	CreatedAt   time.Time
}

type Tenant struct {
	ID        string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
