package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/diewo77/go-sheets/internal/auth"
	"github.com/diewo77/go-sheets/internal/gate"
	"github.com/diewo77/go-sheets/internal/httpx"
	"github.com/diewo77/go-sheets/internal/models"
	"github.com/diewo77/go-sheets/internal/services"
)

// ChangeRequestHandler serves the cell revision workflow endpoints.
type ChangeRequestHandler struct {
	Svc  *services.ChangeRequestService
	Gate *gate.Gate
}

func NewChangeRequestHandler(svc *services.ChangeRequestService, g *gate.Gate) *ChangeRequestHandler {
	return &ChangeRequestHandler{Svc: svc, Gate: g}
}

// Create: POST /change-requests - propose a new cell value.
// 201 when the document policy auto-accepted the request, 202 when it
// awaits review, 403 when the document is locked.
func (h *ChangeRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, nil)
		return
	}
	var req struct {
		TargetCellID uint   `json:"target_cell_id"`
		NewValue     string `json:"new_value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, httpx.CodeInvalidJSON, nil)
		return
	}
	if req.TargetCellID == 0 {
		httpx.ValidationError(w, map[string]string{"target_cell_id": "required"})
		return
	}
	created, err := h.Svc.Create(r.Context(), services.CreateParams{
		AuthorID:     userID,
		TargetCellID: req.TargetCellID,
		NewValue:     req.NewValue,
	})
	if err != nil {
		writeServiceError(w, err, "request_creation_failed")
		return
	}
	status := http.StatusAccepted
	if created.Status == models.RequestAccepted {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, created)
}

// Accept: POST /change-requests/{id}/accept - requires the review
// permission.
func (h *ChangeRequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.Svc.Accept)
}

// Decline: POST /change-requests/{id}/decline - requires the review
// permission.
func (h *ChangeRequestHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.Svc.Decline)
}

func (h *ChangeRequestHandler) review(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, id, reviewerID uint) (*models.ChangeRequest, error)) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, nil)
		return
	}
	if err := h.Gate.Authorize(r.Context(), userID, gate.ActionReview, services.ResourceChangeRequest); err != nil {
		httpx.JSONError(w, http.StatusForbidden, httpx.CodeForbidden, nil)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := apply(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, err, "review_failed")
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

// Revoke: POST /change-requests/{id}/revoke - authors withdraw their own
// requests; accepted ones only while still the latest acceptance on an
// open document.
func (h *ChangeRequestHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, nil)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := h.Svc.Revoke(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, err, "revoke_failed")
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

// ForCell: GET /cells/{id}/requests?status=pending - requests targeting
// one cell, for the review popover.
func (h *ChangeRequestHandler) ForCell(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	requests, err := h.Svc.ForCell(id, r.URL.Query().Get("status"))
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_requests", nil)
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":     requests,
		"is_editor": h.Gate.Can(r.Context(), userID, gate.ActionReview, services.ResourceChangeRequest),
	})
}
