package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/geosync/modules/geo/domain/candidate"
	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/modules/geo/infrastructure/persistence/models"
	"github.com/iota-uz/geosync/pkg/composables"
)

const (
	candidateFindQuery = `
		SELECT id, tenant_id, submitted_by, proposed_name, normalized_name,
		       level, parent_id, country, matches, status,
		       review_reason, merged_unit_id, created_at, updated_at
		FROM geo_candidates`

	candidateInsertQuery = `
		INSERT INTO geo_candidates (
			id, tenant_id, submitted_by, proposed_name, normalized_name,
			level, parent_id, country, matches, status,
			review_reason, merged_unit_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	candidateUpdateQuery = `
		UPDATE geo_candidates
		SET matches = $1, status = $2, review_reason = $3, merged_unit_id = $4, updated_at = $5
		WHERE id = $6`
)

type PgCandidateRepository struct{}

func NewCandidateRepository() candidate.Repository {
	return &PgCandidateRepository{}
}

func (r *PgCandidateRepository) GetByID(ctx context.Context, id uuid.UUID) (*candidate.Candidate, error) {
	candidates, err := r.queryCandidates(ctx, candidateFindQuery+" WHERE id = $1", id.String())
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, candidate.ErrCandidateNotFound
	}
	return candidates[0], nil
}

func (r *PgCandidateRepository) FindOpen(ctx context.Context, tenantID uuid.UUID, normalized string, level unit.Level, parentID *uuid.UUID) (*candidate.Candidate, error) {
	args := []interface{}{
		tenantID.String(),
		normalized,
		int(level),
		string(candidate.StatusPending),
		string(candidate.StatusUnderReview),
	}
	query := candidateFindQuery + " WHERE tenant_id = $1 AND normalized_name = $2 AND level = $3 AND status IN ($4, $5)"
	if parentID != nil {
		args = append(args, parentID.String())
		query += fmt.Sprintf(" AND parent_id = $%d", len(args))
	} else {
		query += " AND parent_id IS NULL"
	}
	query += " LIMIT 1"

	candidates, err := r.queryCandidates(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, candidate.ErrCandidateNotFound
	}
	return candidates[0], nil
}

func (r *PgCandidateRepository) ListByStatus(ctx context.Context, statuses ...candidate.Status) ([]*candidate.Candidate, error) {
	if len(statuses) == 0 {
		return r.queryCandidates(ctx, candidateFindQuery+" ORDER BY created_at")
	}

	args := make([]interface{}, 0, len(statuses))
	placeholders := ""
	for i, s := range statuses {
		if i > 0 {
			placeholders += ", "
		}
		args = append(args, string(s))
		placeholders += fmt.Sprintf("$%d", len(args))
	}
	query := candidateFindQuery + " WHERE status IN (" + placeholders + ") ORDER BY created_at"

	return r.queryCandidates(ctx, query, args...)
}

func (r *PgCandidateRepository) Create(ctx context.Context, c *candidate.Candidate) (*candidate.Candidate, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	m, err := toDBCandidate(c)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(
		ctx,
		candidateInsertQuery,
		m.ID,
		m.TenantID,
		m.SubmittedBy,
		m.ProposedName,
		m.NormalizedName,
		m.Level,
		m.ParentID,
		m.Country,
		m.Matches,
		m.Status,
		m.ReviewReason,
		m.MergedUnitID,
		m.CreatedAt,
		m.UpdatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, candidate.ErrDuplicateOpen
		}
		return nil, err
	}

	return r.GetByID(ctx, c.ID)
}

func (r *PgCandidateRepository) Update(ctx context.Context, c *candidate.Candidate) (*candidate.Candidate, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	m, err := toDBCandidate(c)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(
		ctx,
		candidateUpdateQuery,
		m.Matches,
		m.Status,
		m.ReviewReason,
		m.MergedUnitID,
		time.Now(),
		m.ID,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, candidate.ErrCandidateNotFound
	}

	return r.GetByID(ctx, c.ID)
}

func (r *PgCandidateRepository) TransitionStatus(ctx context.Context, id uuid.UUID, expected, next candidate.Status) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}

	query := `UPDATE geo_candidates SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	tag, err := tx.Exec(ctx, query, string(next), time.Now(), id.String(), string(expected))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgCandidateRepository) queryCandidates(ctx context.Context, query string, args ...interface{}) ([]*candidate.Candidate, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var candidates []*candidate.Candidate
	for rows.Next() {
		var m models.Candidate
		if err := rows.Scan(
			&m.ID,
			&m.TenantID,
			&m.SubmittedBy,
			&m.ProposedName,
			&m.NormalizedName,
			&m.Level,
			&m.ParentID,
			&m.Country,
			&m.Matches,
			&m.Status,
			&m.ReviewReason,
			&m.MergedUnitID,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan candidate row")
		}
		c, err := toDomainCandidate(&m)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	return candidates, nil
}
