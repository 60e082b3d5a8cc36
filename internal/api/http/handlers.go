package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apperrors "github.com/arkilian/partprune/internal/errors"
	"github.com/arkilian/partprune/internal/logging"
	"github.com/arkilian/partprune/internal/manifest"
	"github.com/arkilian/partprune/internal/observability"
	"github.com/arkilian/partprune/internal/query/planner"
	"github.com/arkilian/partprune/pkg/types"
)

// ExplainRequest is the body of POST /v1/explain.
type ExplainRequest struct {
	SQL    string `json:"sql" validate:"required"`
	Format string `json:"format,omitempty" validate:"omitempty,oneof=json text"`
}

// ExplainResponse carries the plan of the statement.
type ExplainResponse struct {
	Plan      planner.PlanView `json:"plan"`
	Text      string           `json:"text,omitempty"`
	RequestID string           `json:"request_id"`
}

// RelationResponse describes one relation.
type RelationResponse struct {
	ID          types.RelationID       `json:"id"`
	Name        string                 `json:"name"`
	Partitioned bool                   `json:"partitioned"`
	Scheme      *types.PartitionScheme `json:"scheme,omitempty"`
}

// RelationStatsView is one entry of GET /v1/stats.
type RelationStatsView struct {
	observability.RelationStats
	PruneRatio float64 `json:"prune_ratio"`
}

// Handler serves the partprune API.
type Handler struct {
	planner  *planner.Planner
	repo     manifest.SchemeRepository
	stats    *observability.PruneStats
	validate *validator.Validate
}

// NewHandler creates the API handler. stats may be nil.
func NewHandler(p *planner.Planner, repo manifest.SchemeRepository, stats *observability.PruneStats) *Handler {
	return &Handler{
		planner:  p,
		repo:     repo,
		stats:    stats,
		validate: validator.New(),
	}
}

// Router returns the API routes wrapped in the default middleware chain.
// extra middleware runs before the default chain.
func (h *Handler) Router(logger zerolog.Logger, extra ...func(http.Handler) http.Handler) http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/explain", h.Explain).Methods(http.MethodPost)
	api.HandleFunc("/relations/{name}", h.Relation).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	api.Use(DefaultMiddleware(logger))

	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return ChainMiddleware(extra...)(r)
}

// Explain handles POST /v1/explain.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	requestID := logging.RequestID(r.Context())

	var req ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", requestID)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), apperrors.CodeInvalidRequest, requestID)
		return
	}

	plan, err := h.planner.Plan(r.Context(), req.SQL)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	resp := ExplainResponse{Plan: plan.View(), RequestID: requestID}
	if req.Format == "text" {
		var buf bytes.Buffer
		if err := planner.Explain(&buf, plan, false); err != nil {
			h.writeAppError(w, r, err)
			return
		}
		resp.Text = buf.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Relation handles GET /v1/relations/{name}.
func (h *Handler) Relation(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ctx := r.Context()

	id, ok, err := h.repo.LookupRelation(ctx, name)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("relation %q not found", name),
			apperrors.CodeRelationNotFound, logging.RequestID(ctx))
		return
	}

	scheme, partitioned, err := manifest.Snapshot(ctx, h.repo, id)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	resp := RelationResponse{ID: id, Name: name, Partitioned: partitioned}
	if partitioned {
		resp.Name = scheme.Name
		resp.Scheme = scheme
	}
	writeJSON(w, http.StatusOK, resp)
}

// Stats handles GET /v1/stats?top=N.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := 10
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "top must be a positive integer", "", logging.RequestID(r.Context()))
			return
		}
		top = n
	}

	views := []RelationStatsView{}
	if h.stats != nil {
		for _, s := range h.stats.GetTopRelations(top) {
			views = append(views, RelationStatsView{RelationStats: s, PruneRatio: s.PruneRatio()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"relations": views})
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error(), apperrors.GetCode(err), logging.RequestID(r.Context()))
}

func statusFor(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.CodeRelationNotFound, apperrors.CodeObjectNotFound:
		return http.StatusNotFound
	case apperrors.CodeCatalogBusy:
		return http.StatusServiceUnavailable
	}
	switch apperrors.GetCategory(err) {
	case apperrors.ErrCategoryQuery, apperrors.ErrCategoryValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
