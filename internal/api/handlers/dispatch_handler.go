package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/shivam13669/CRMManagementt-sub003/internal/application/services"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	apperrors "github.com/shivam13669/CRMManagementt-sub003/pkg/errors"
)

// Sessions hands out the acting operator's coordinator
type Sessions interface {
	GetOrCreate(actor entities.ActorContext) *services.DispatchCoordinator
}

// DispatchHandler exposes the dispatch coordinator over HTTP
type DispatchHandler struct {
	sessions Sessions
	validate *validator.Validate
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(sessions Sessions) *DispatchHandler {
	return &DispatchHandler{
		sessions: sessions,
		validate: validator.New(),
	}
}

type pageRequest struct {
	Page int `json:"page" validate:"required,min=1"`
}

type forwardRequest struct {
	HospitalID int64 `json:"hospitalId" validate:"required,gt=0"`
}

func (h *DispatchHandler) coordinator(w http.ResponseWriter, r *http.Request) (*services.DispatchCoordinator, bool) {
	actor, ok := entities.ActorFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing session")
		return nil, false
	}
	return h.sessions.GetOrCreate(actor), true
}

func (h *DispatchHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid request id")
		return 0, false
	}
	return id, true
}

// GetView handles GET /api/dispatch/view
func (h *DispatchHandler) GetView(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, c.View(r.Context()))
}

// Refresh handles POST /api/dispatch/refresh. A failed load is reported in
// the view banner; only a refused session is an error.
func (h *DispatchHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	if err := c.Refresh(r.Context()); err != nil && apperrors.IsType(err, apperrors.ErrorTypeUnauthorized) {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c.View(r.Context()))
}

// SetCriteria handles PUT /api/dispatch/criteria
func (h *DispatchHandler) SetCriteria(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	var criteria services.Criteria
	if !h.decode(w, r, &criteria) {
		return
	}
	if err := c.SetCriteria(criteria); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c.View(r.Context()))
}

// SetPage handles PUT /api/dispatch/page
func (h *DispatchHandler) SetPage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	var body pageRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := c.SetPage(body.Page); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c.View(r.Context()))
}

// Select handles POST /api/dispatch/requests/{id}/select
func (h *DispatchHandler) Select(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	selected, err := c.Select(r.Context(), id)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, selected)
}

// ClearSelection handles DELETE /api/dispatch/selection
func (h *DispatchHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	c.ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

// Forward handles POST /api/dispatch/forward
func (h *DispatchHandler) Forward(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	var body forwardRequest
	if !h.decode(w, r, &body) {
		return
	}
	req, err := c.Forward(r.Context(), body.HospitalID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, req)
}

// ListHospitals handles GET /api/dispatch/hospitals
func (h *DispatchHandler) ListHospitals(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	hospitals, err := c.Hospitals(r.Context())
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"hospitals": hospitals,
		"count":     len(hospitals),
	})
}

// GetAddress handles GET /api/dispatch/requests/{id}/address
func (h *DispatchHandler) GetAddress(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	res, err := c.Address(r.Context(), id)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// RetryAddress handles POST /api/dispatch/requests/{id}/address/retry
func (h *DispatchHandler) RetryAddress(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	res, err := c.RetryAddress(r.Context(), id)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	status := http.StatusOK
	if res.State == services.ResolutionPending {
		status = http.StatusAccepted
	}
	respondWithJSON(w, status, res)
}

// GetAudit handles GET /api/dispatch/requests/{id}/audit
func (h *DispatchHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coordinator(w, r)
	if !ok {
		return
	}
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}
	entries, err := c.Audit(r.Context(), id, limit)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
