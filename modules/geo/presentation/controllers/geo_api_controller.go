package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/geosync/modules/geo/domain/unit"
	"github.com/iota-uz/geosync/modules/geo/services"
	"github.com/iota-uz/geosync/pkg/composables"
)

type GeoAPIController struct {
	candidates *services.CandidateService
	reviews    *services.ReviewService
	staging    *services.StagingService
	applier    *services.ApplyService
	rollbacks  *services.RollbackService
	geo        *services.GeoService
	validate   *validator.Validate
	apiPrefix  string
}

func NewGeoAPIController(
	candidates *services.CandidateService,
	reviews *services.ReviewService,
	staging *services.StagingService,
	applier *services.ApplyService,
	rollbacks *services.RollbackService,
	geo *services.GeoService,
) *GeoAPIController {
	return &GeoAPIController{
		candidates: candidates,
		reviews:    reviews,
		staging:    staging,
		applier:    applier,
		rollbacks:  rollbacks,
		geo:        geo,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		apiPrefix:  "/geo",
	}
}

func (c *GeoAPIController) Key() string {
	return c.apiPrefix
}

func (c *GeoAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/candidates", c.SubmitCandidate).Methods(http.MethodPost)
	api.HandleFunc("/candidates", c.ListOpenCandidates).Methods(http.MethodGet)
	api.HandleFunc("/candidates/{id}", c.GetCandidate).Methods(http.MethodGet)
	api.HandleFunc("/candidates/{id}/open-review", c.OpenCandidateReview).Methods(http.MethodPost)
	api.HandleFunc("/candidates/{id}/review", c.ReviewCandidate).Methods(http.MethodPost)

	api.HandleFunc("/batches", c.CreateBatch).Methods(http.MethodPost)
	api.HandleFunc("/batches/{id}", c.GetBatch).Methods(http.MethodGet)
	api.HandleFunc("/batches/{id}/items", c.ListBatchItems).Methods(http.MethodGet)
	api.HandleFunc("/batches/{id}/submit-review", c.SubmitBatchForReview).Methods(http.MethodPost)
	api.HandleFunc("/batches/{id}/approve", c.ApproveBatch).Methods(http.MethodPost)
	api.HandleFunc("/batches/{id}/reject", c.RejectBatch).Methods(http.MethodPost)

	api.HandleFunc("/tenants/{tenant}/stage", c.StageTenant).Methods(http.MethodPost)
	api.HandleFunc("/tenants/{tenant}/batches/{id}/apply", c.ApplyBatch).Methods(http.MethodPost)
	api.HandleFunc("/tenants/{tenant}/batches/{id}/rollback", c.RollbackBatch).Methods(http.MethodPost)
	api.HandleFunc("/tenants/{tenant}/units", c.ResolveUnits).Methods(http.MethodGet)

	api.HandleFunc("/validate", c.ValidateHierarchy).Methods(http.MethodPost)
}

type submitCandidateRequest struct {
	TenantID    uuid.UUID  `json:"tenant_id" validate:"required"`
	Name        string     `json:"name" validate:"required"`
	Level       int        `json:"level" validate:"required,min=1,max=8"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Country     string     `json:"country" validate:"required"`
	SubmittedBy string     `json:"submitted_by" validate:"required"`
}

type submitCandidateResponse struct {
	Outcome     services.SubmissionOutcome `json:"outcome"`
	CandidateID *uuid.UUID                 `json:"candidate_id,omitempty"`
	Matches     []matchResponse            `json:"matches,omitempty"`
}

type matchResponse struct {
	UnitID uuid.UUID `json:"unit_id"`
	Name   string    `json:"name"`
	Score  float64   `json:"score"`
}

func (c *GeoAPIController) SubmitCandidate(w http.ResponseWriter, r *http.Request) {
	var req submitCandidateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_BODY", "invalid json body")
		return
	}
	if err := c.validate.Struct(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_BODY", err.Error())
		return
	}

	ctx := composables.WithTenantID(r.Context(), req.TenantID)
	result, err := c.candidates.Submit(ctx, services.SubmitInput{
		Name:        req.Name,
		Level:       unit.Level(req.Level),
		ParentID:    req.ParentID,
		Country:     req.Country,
		SubmittedBy: req.SubmittedBy,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := submitCandidateResponse{
		Outcome:     result.Outcome,
		CandidateID: result.CandidateID,
	}
	for _, m := range result.Matches {
		resp.Matches = append(resp.Matches, matchResponse{
			UnitID: m.Unit.ID,
			Name:   m.Unit.Name,
			Score:  m.Score,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *GeoAPIController) ListOpenCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := c.candidates.ListOpen(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (c *GeoAPIController) GetCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid candidate id")
		return
	}
	cand, err := c.candidates.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cand)
}

func (c *GeoAPIController) OpenCandidateReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid candidate id")
		return
	}
	cand, err := c.reviews.OpenReview(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cand)
}

type reviewCandidateRequest struct {
	Approve         bool       `json:"approve"`
	Reason          string     `json:"reason"`
	MergeIntoUnitID *uuid.UUID `json:"merge_into_unit_id"`
}

func (c *GeoAPIController) ReviewCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid candidate id")
		return
	}

	var req reviewCandidateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_BODY", "invalid json body")
		return
	}

	cand, err := c.reviews.ReviewCandidate(r.Context(), id, services.ReviewDecision{
		Approve:         req.Approve,
		Reason:          req.Reason,
		MergeIntoUnitID: req.MergeIntoUnitID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cand)
}

type createBatchRequest struct {
	TenantID  uuid.UUID `json:"tenant_id" validate:"required"`
	CreatedBy string    `json:"created_by" validate:"required"`
}

func (c *GeoAPIController) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_BODY", "invalid json body")
		return
	}
	if err := c.validate.Struct(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_BODY", err.Error())
		return
	}

	batch, err := c.staging.CreateBatch(r.Context(), req.TenantID, req.CreatedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (c *GeoAPIController) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid batch id")
		return
	}
	batch, err := c.staging.GetBatch(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (c *GeoAPIController) ListBatchItems(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid batch id")
		return
	}
	items, err := c.staging.ListItems(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (c *GeoAPIController) SubmitBatchForReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid batch id")
		return
	}
	batch, err := c.reviews.SubmitBatchForReview(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

type approveBatchRequest struct {
	ApprovedBy string `json:"approved_by" validate:"required"`
}

func (c *GeoAPIController) ApproveBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid batch id")
		return
	}

	var req approveBatchRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_BODY", "invalid json body")
		return
	}
	if err := c.validate.Struct(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_BODY", err.Error())
		return
	}

	batch, err := c.reviews.ApproveBatch(r.Context(), id, req.ApprovedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (c *GeoAPIController) RejectBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid batch id")
		return
	}
	batch, err := c.reviews.RejectBatch(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

type stageRequest struct {
	CreatedBy string `json:"created_by" validate:"required"`
}

func (c *GeoAPIController) StageTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathUUID(r, "tenant")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid tenant id")
		return
	}

	var req stageRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_BODY", "invalid json body")
		return
	}
	if err := c.validate.Struct(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_BODY", err.Error())
		return
	}

	ctx := composables.WithTenantID(r.Context(), tenantID)
	batch, err := c.staging.Stage(ctx, tenantID, req.CreatedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (c *GeoAPIController) ApplyBatch(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathUUID(r, "tenant")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid tenant id")
		return
	}
	batchID, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid batch id")
		return
	}

	ctx := composables.WithTenantID(r.Context(), tenantID)
	result, err := c.applier.Apply(ctx, tenantID, batchID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *GeoAPIController) RollbackBatch(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathUUID(r, "tenant")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid tenant id")
		return
	}
	batchID, err := pathUUID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid batch id")
		return
	}

	ctx := composables.WithTenantID(r.Context(), tenantID)
	result, err := c.rollbacks.Rollback(ctx, tenantID, batchID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *GeoAPIController) ResolveUnits(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathUUID(r, "tenant")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "invalid tenant id")
		return
	}

	q := r.URL.Query()
	level := 0
	if raw := q.Get("level"); raw != "" {
		if level, err = strconv.Atoi(raw); err != nil {
			writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "level is invalid")
			return
		}
	}
	var parentID *uuid.UUID
	if raw := q.Get("parent_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_QUERY", "parent_id is invalid")
			return
		}
		parentID = &id
	}

	units, err := c.geo.ResolveUnits(r.Context(), tenantID, unit.Level(level), parentID, q.Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

type validateHierarchyRequest struct {
	TenantID *uuid.UUID  `json:"tenant_id"`
	UnitIDs  []uuid.UUID `json:"unit_ids" validate:"required,min=1"`
}

type validateHierarchyResponse struct {
	Valid bool              `json:"valid"`
	Paths map[string]string `json:"paths,omitempty"`
}

func (c *GeoAPIController) ValidateHierarchy(w http.ResponseWriter, r *http.Request) {
	var req validateHierarchyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_BODY", "invalid json body")
		return
	}
	if err := c.validate.Struct(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "GEO_INVALID_BODY", err.Error())
		return
	}

	store := unit.CanonicalStore
	if req.TenantID != nil {
		store = unit.TenantStore(*req.TenantID)
	}

	paths, err := c.geo.ValidateHierarchy(r.Context(), store, req.UnitIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := validateHierarchyResponse{Valid: true, Paths: make(map[string]string, len(paths))}
	for id, encoded := range paths {
		resp.Paths[id.String()] = encoded
	}
	writeJSON(w, http.StatusOK, resp)
}
