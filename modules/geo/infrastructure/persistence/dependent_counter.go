package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/geosync/pkg/composables"
)

// PathDependentCounter counts live descendants of a tenant mirror unit by
// path prefix. Tenant-private extensions under an official unit count too,
// which is exactly the impact a deletion approver needs to see.
type PathDependentCounter struct{}

func NewDependentCounter() *PathDependentCounter {
	return &PathDependentCounter{}
}

func (c *PathDependentCounter) CountDependents(ctx context.Context, tenantID uuid.UUID, unitID uuid.UUID) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}

	query := `
		SELECT count(*)
		FROM geo_units
		WHERE tenant_id = $1
		  AND deleted_at IS NULL
		  AND id <> $2
		  AND path LIKE (
			SELECT path || '%' FROM geo_units WHERE tenant_id = $1 AND id = $2
		  )`
	var count int
	if err := tx.QueryRow(ctx, query, tenantID.String(), unitID.String()).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count dependents")
	}
	return count, nil
}
