package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/modules/geo/infrastructure/persistence/models"
	"github.com/iota-uz/geosync/pkg/composables"
)

const (
	unitFindQuery = `
		SELECT id, tenant_id, canonical_id, level, name, normalized_name,
		       parent_id, path, country, official, active,
		       valid_from, valid_to, created_at, updated_at, deleted_at
		FROM geo_units`

	unitInsertQuery = `
		INSERT INTO geo_units (
			id, tenant_id, canonical_id, level, name, normalized_name,
			parent_id, path, country, official, active,
			valid_from, valid_to, created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	unitUpdateQuery = `
		UPDATE geo_units
		SET canonical_id = $1, level = $2, name = $3, normalized_name = $4,
		    parent_id = $5, path = $6, country = $7, official = $8,
		    active = $9, valid_from = $10, valid_to = $11, updated_at = $12,
		    deleted_at = $13
		WHERE id = $14`
)

type PgUnitRepository struct{}

func NewUnitRepository() unit.Repository {
	return &PgUnitRepository{}
}

// storePredicate appends the store scope to a WHERE clause. Canonical rows
// have a NULL tenant_id.
func storePredicate(store unit.StoreID, args []interface{}) (string, []interface{}) {
	if store.IsCanonical() {
		return "tenant_id IS NULL", args
	}
	args = append(args, store.Tenant.String())
	return fmt.Sprintf("tenant_id = $%d", len(args)), args
}

func (r *PgUnitRepository) GetByID(ctx context.Context, ref unit.Ref) (*unit.AdministrativeUnit, error) {
	args := []interface{}{ref.ID.String()}
	pred, args := storePredicate(ref.Store, args)
	units, err := r.queryUnits(ctx, unitFindQuery+" WHERE id = $1 AND "+pred, args...)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, unit.ErrUnitNotFound
	}
	return units[0], nil
}

func (r *PgUnitRepository) GetByCanonicalID(ctx context.Context, tenantID uuid.UUID, canonicalID uuid.UUID) (*unit.AdministrativeUnit, error) {
	query := unitFindQuery + " WHERE tenant_id = $1 AND canonical_id = $2 AND deleted_at IS NULL"
	units, err := r.queryUnits(ctx, query, tenantID.String(), canonicalID.String())
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, unit.ErrUnitNotFound
	}
	return units[0], nil
}

func (r *PgUnitRepository) FindByNormalizedName(ctx context.Context, store unit.StoreID, country string, level unit.Level, parentID *uuid.UUID, normalized string) (*unit.AdministrativeUnit, error) {
	args := []interface{}{country, int(level), normalized}
	pred, args := storePredicate(store, args)
	query := unitFindQuery + " WHERE country = $1 AND level = $2 AND normalized_name = $3 AND " + pred + " AND deleted_at IS NULL"
	if parentID != nil {
		args = append(args, parentID.String())
		query += fmt.Sprintf(" AND parent_id = $%d", len(args))
	}
	query += " LIMIT 1"

	units, err := r.queryUnits(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, unit.ErrUnitNotFound
	}
	return units[0], nil
}

func (r *PgUnitRepository) List(ctx context.Context, store unit.StoreID, f unit.Filter) ([]*unit.AdministrativeUnit, error) {
	var args []interface{}
	pred, args := storePredicate(store, args)
	query := unitFindQuery + " WHERE " + pred + " AND deleted_at IS NULL"
	if f.Country != "" {
		args = append(args, f.Country)
		query += fmt.Sprintf(" AND country = $%d", len(args))
	}
	if f.Level != 0 {
		args = append(args, int(f.Level))
		query += fmt.Sprintf(" AND level = $%d", len(args))
	}
	if f.ParentID != nil {
		args = append(args, f.ParentID.String())
		query += fmt.Sprintf(" AND parent_id = $%d", len(args))
	}
	if !f.IncludeInactive {
		query += " AND active = true"
	}
	query += " ORDER BY path"

	return r.queryUnits(ctx, query, args...)
}

func (r *PgUnitRepository) Create(ctx context.Context, u *unit.AdministrativeUnit) (*unit.AdministrativeUnit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	m := toDBUnit(u)
	if _, err := tx.Exec(
		ctx,
		unitInsertQuery,
		m.ID,
		m.TenantID,
		m.CanonicalID,
		m.Level,
		m.Name,
		m.NormalizedName,
		m.ParentID,
		m.Path,
		m.Country,
		m.Official,
		m.Active,
		m.ValidFrom,
		m.ValidTo,
		m.CreatedAt,
		m.UpdatedAt,
		m.DeletedAt,
	); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, u.Ref())
}

func (r *PgUnitRepository) Update(ctx context.Context, u *unit.AdministrativeUnit) (*unit.AdministrativeUnit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	m := toDBUnit(u)
	tag, err := tx.Exec(
		ctx,
		unitUpdateQuery,
		m.CanonicalID,
		m.Level,
		m.Name,
		m.NormalizedName,
		m.ParentID,
		m.Path,
		m.Country,
		m.Official,
		m.Active,
		m.ValidFrom,
		m.ValidTo,
		m.UpdatedAt,
		m.DeletedAt,
		m.ID,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, unit.ErrUnitNotFound
	}

	return r.GetByID(ctx, u.Ref())
}

func (r *PgUnitRepository) SoftDelete(ctx context.Context, ref unit.Ref, at time.Time) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	args := []interface{}{at, ref.ID.String()}
	pred, args := storePredicate(ref.Store, args)
	query := "UPDATE geo_units SET deleted_at = $1, active = false, updated_at = $1 WHERE id = $2 AND " + pred + " AND deleted_at IS NULL"

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return unit.ErrUnitNotFound
	}
	return nil
}

func (r *PgUnitRepository) HardDelete(ctx context.Context, ref unit.Ref) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	args := []interface{}{ref.ID.String()}
	pred, args := storePredicate(ref.Store, args)
	tag, err := tx.Exec(ctx, "DELETE FROM geo_units WHERE id = $1 AND "+pred, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return unit.ErrUnitNotFound
	}
	return nil
}

func (r *PgUnitRepository) ChangedSince(ctx context.Context, since time.Time) ([]unit.Delta, error) {
	query := unitFindQuery + `
		WHERE tenant_id IS NULL
		  AND GREATEST(updated_at, COALESCE(deleted_at, updated_at)) > $1
		ORDER BY updated_at, id`

	units, err := r.queryUnits(ctx, query, since)
	if err != nil {
		return nil, err
	}

	deltas := make([]unit.Delta, 0, len(units))
	for _, u := range units {
		deltas = append(deltas, unit.Delta{Unit: u, Kind: classifyDelta(u, since)})
	}
	return deltas, nil
}

func classifyDelta(u *unit.AdministrativeUnit, since time.Time) unit.DeltaKind {
	switch {
	case u.DeletedAt != nil && u.DeletedAt.After(since):
		return unit.DeltaDelete
	case u.CreatedAt.After(since):
		return unit.DeltaCreate
	default:
		return unit.DeltaUpdate
	}
}

func (r *PgUnitRepository) queryUnits(ctx context.Context, query string, args ...interface{}) ([]*unit.AdministrativeUnit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var units []*unit.AdministrativeUnit
	for rows.Next() {
		var m models.AdministrativeUnit
		if err := rows.Scan(
			&m.ID,
			&m.TenantID,
			&m.CanonicalID,
			&m.Level,
			&m.Name,
			&m.NormalizedName,
			&m.ParentID,
			&m.Path,
			&m.Country,
			&m.Official,
			&m.Active,
			&m.ValidFrom,
			&m.ValidTo,
			&m.CreatedAt,
			&m.UpdatedAt,
			&m.DeletedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan unit row")
		}
		u, err := toDomainUnit(&m)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	return units, nil
}
