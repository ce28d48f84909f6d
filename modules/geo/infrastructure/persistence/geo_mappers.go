package persistence

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/candidate"
	"github.com/iota-uz/geosync/modules/geo/domain/syncbatch"
	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/modules/geo/infrastructure/persistence/models"
	"github.com/iota-uz/geosync/pkg/mapping"
)

func toDomainUnit(m *models.AdministrativeUnit) (*unit.AdministrativeUnit, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse unit id")
	}
	tenantID, err := mapping.NullStringToUUID(m.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse tenant id")
	}
	canonicalID, err := mapping.NullStringToUUID(m.CanonicalID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse canonical id")
	}
	parentID, err := mapping.NullStringToUUID(m.ParentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse parent id")
	}
	path, err := unit.ParsePath(m.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse path")
	}

	store := unit.CanonicalStore
	if tenantID != nil {
		store = unit.TenantStore(*tenantID)
	}

	return &unit.AdministrativeUnit{
		ID:             id,
		Store:          store,
		CanonicalID:    canonicalID,
		Level:          unit.Level(m.Level),
		Name:           m.Name,
		NormalizedName: m.NormalizedName,
		ParentID:       parentID,
		Path:           path,
		Country:        m.Country,
		Official:       m.Official,
		Active:         m.Active,
		ValidFrom:      m.ValidFrom,
		ValidTo:        mapping.SQLNullTimeToPointer(m.ValidTo),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		DeletedAt:      mapping.SQLNullTimeToPointer(m.DeletedAt),
	}, nil
}

func toDBUnit(u *unit.AdministrativeUnit) *models.AdministrativeUnit {
	var tenantID *uuid.UUID
	if !u.Store.IsCanonical() {
		t := u.Store.Tenant
		tenantID = &t
	}
	return &models.AdministrativeUnit{
		ID:             u.ID.String(),
		TenantID:       mapping.UUIDToNullString(tenantID),
		CanonicalID:    mapping.UUIDToNullString(u.CanonicalID),
		Level:          int(u.Level),
		Name:           u.Name,
		NormalizedName: u.NormalizedName,
		ParentID:       mapping.UUIDToNullString(u.ParentID),
		Path:           u.Path.Encode(),
		Country:        u.Country,
		Official:       u.Official,
		Active:         u.Active,
		ValidFrom:      u.ValidFrom,
		ValidTo:        mapping.PointerToSQLNullTime(u.ValidTo),
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
		DeletedAt:      mapping.PointerToSQLNullTime(u.DeletedAt),
	}
}

func toDomainCandidate(m *models.Candidate) (*candidate.Candidate, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse candidate id")
	}
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse tenant id")
	}
	parentID, err := mapping.NullStringToUUID(m.ParentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse parent id")
	}
	mergedUnitID, err := mapping.NullStringToUUID(m.MergedUnitID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse merged unit id")
	}

	var matches []candidate.Match
	if len(m.Matches) > 0 {
		if err := json.Unmarshal(m.Matches, &matches); err != nil {
			return nil, errors.Wrap(err, "failed to decode matches")
		}
	}

	return &candidate.Candidate{
		ID:             id,
		TenantID:       tenantID,
		SubmittedBy:    m.SubmittedBy,
		ProposedName:   m.ProposedName,
		NormalizedName: m.NormalizedName,
		Level:          unit.Level(m.Level),
		ParentID:       parentID,
		Country:        m.Country,
		Matches:        matches,
		Status:         candidate.Status(m.Status),
		ReviewReason:   mapping.SQLNullStringToPointer(m.ReviewReason),
		MergedUnitID:   mergedUnitID,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}

func toDBCandidate(c *candidate.Candidate) (*models.Candidate, error) {
	matches, err := json.Marshal(c.Matches)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode matches")
	}
	return &models.Candidate{
		ID:             c.ID.String(),
		TenantID:       c.TenantID.String(),
		SubmittedBy:    c.SubmittedBy,
		ProposedName:   c.ProposedName,
		NormalizedName: c.NormalizedName,
		Level:          int(c.Level),
		ParentID:       mapping.UUIDToNullString(c.ParentID),
		Country:        c.Country,
		Matches:        matches,
		Status:         string(c.Status),
		ReviewReason:   mapping.PointerToSQLNullString(c.ReviewReason),
		MergedUnitID:   mapping.UUIDToNullString(c.MergedUnitID),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}, nil
}

func toDomainBatch(m *models.SyncBatch) (*syncbatch.SyncBatch, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse batch id")
	}
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse tenant id")
	}
	return &syncbatch.SyncBatch{
		ID:               id,
		TenantID:         tenantID,
		Status:           syncbatch.Status(m.Status),
		AppliedCount:     m.AppliedCount,
		FailedCount:      m.FailedCount,
		CreatedBy:        m.CreatedBy,
		ApprovedBy:       mapping.SQLNullStringToPointer(m.ApprovedBy),
		CreatedAt:        m.CreatedAt,
		AppliedAt:        mapping.SQLNullTimeToPointer(m.AppliedAt),
		RollbackEligible: m.RollbackEligible,
	}, nil
}

func toDomainBatchItem(m *models.SyncBatchItem) (*syncbatch.ChangeItem, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse item id")
	}
	batchID, err := uuid.Parse(m.BatchID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse batch id")
	}
	canonicalID, err := uuid.Parse(m.CanonicalID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse canonical id")
	}
	return &syncbatch.ChangeItem{
		ID:             id,
		BatchID:        batchID,
		CanonicalID:    canonicalID,
		Kind:           unit.DeltaKind(m.Kind),
		Snapshot:       json.RawMessage(m.Snapshot),
		Diff:           json.RawMessage(m.Diff),
		DependentCount: mapping.SQLNullInt32ToPointer(m.DependentCount),
		Applied:        m.Applied,
		FailureReason:  mapping.SQLNullStringToPointer(m.FailureReason),
	}, nil
}

func toDomainBackup(m *models.SyncBackup) (*syncbatch.Backup, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse backup id")
	}
	batchID, err := uuid.Parse(m.BatchID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse batch id")
	}
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse tenant id")
	}
	canonicalID, err := uuid.Parse(m.CanonicalID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse canonical id")
	}
	unitID, err := mapping.NullStringToUUID(m.UnitID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse unit id")
	}
	return &syncbatch.Backup{
		ID:          id,
		BatchID:     batchID,
		TenantID:    tenantID,
		CanonicalID: canonicalID,
		UnitID:      unitID,
		Existed:     m.Existed,
		Prior:       json.RawMessage(m.Prior),
		Consumed:    m.Consumed,
		CreatedAt:   m.CreatedAt,
	}, nil
}
