package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/diewo77/go-sheets/internal/httpx"
	"github.com/diewo77/go-sheets/internal/models"
	"github.com/diewo77/go-sheets/internal/services"
	"github.com/diewo77/go-sheets/internal/xlsx"
)

const maxUploadBytes = 32 << 20

// DocumentHandler serves document upload, listing, grid view, revision
// and export.
type DocumentHandler struct {
	Svc *services.DocumentService
	Crs *services.ChangeRequestService
}

func NewDocumentHandler(svc *services.DocumentService, crs *services.ChangeRequestService) *DocumentHandler {
	return &DocumentHandler{Svc: svc, Crs: crs}
}

// List: GET /documents - current version of every lineage, paginated.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			offset = (n - 1) * limit
		}
	}
	docs, total, err := h.Svc.ListCurrent(limit, offset)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_documents", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": docs, "total": total, "limit": limit, "offset": offset,
	})
}

// Create: POST /documents - multipart upload of a new document.
// Fields: file (required), name (required), status, worksheet.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	file, name, status, worksheet, ok := parseUploadForm(w, r, true)
	if !ok {
		return
	}
	doc, err := h.Svc.Create(name, status, worksheet, file)
	if err != nil {
		writeServiceError(w, err, "ingestion_failed")
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

// Update: POST /documents/{id} - multipart re-upload creating a revision.
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	file, name, status, worksheet, ok := parseUploadForm(w, r, false)
	if !ok {
		return
	}
	doc, err := h.Svc.CreateRevision(id, name, status, worksheet, file)
	if err != nil {
		writeServiceError(w, err, "ingestion_failed")
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

// View: GET /documents/{id} - the live grid for any id in the lineage,
// with the palette and the cell ids carrying pending or accepted
// requests.
func (h *DocumentHandler) View(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.Svc.ResolveCurrent(id)
	if err != nil {
		writeServiceError(w, err, "document_lookup_failed")
		return
	}
	cells, err := h.Svc.Cells(doc.ID)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_cells", nil)
		return
	}
	colors, err := h.Svc.Colors(doc.ID)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_colors", nil)
		return
	}
	pending, err := h.Crs.ForDocument(doc.ID, models.RequestPending)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_requests", nil)
		return
	}
	accepted, err := h.Crs.ForDocument(doc.ID, models.RequestAccepted)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_requests", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"document":      doc,
		"cells":         cellViews(cells),
		"colors":        colors,
		"pending_cells": cellIDs(pending),
		"changed_cells": cellIDs(accepted),
	})
}

// cellView decorates a cell with its rendered class list so grid
// clients can style without reassembling color and alignment.
type cellView struct {
	models.Cell
	ClassTags string `json:"class_tags"`
}

func cellViews(cells []models.Cell) []cellView {
	views := make([]cellView, len(cells))
	for i, c := range cells {
		views[i] = cellView{Cell: c, ClassTags: c.ClassTags()}
	}
	return views
}

// Export: GET /documents/{id}/export - current values written back into
// the original workbook.
func (h *DocumentHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.Svc.ResolveCurrent(id)
	if err != nil {
		writeServiceError(w, err, "document_lookup_failed")
		return
	}
	data, filename, err := h.Svc.Export(doc)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "export_failed", nil)
		return
	}
	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Worksheets: POST /documents/worksheets - sheet names of an uploaded
// file, for the sheet picker before the actual upload.
func (h *DocumentHandler) Worksheets(w http.ResponseWriter, r *http.Request) {
	file, ok := readUpload(w, r)
	if !ok {
		return
	}
	sheets, err := services.Worksheets(file)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "unreadable_workbook", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"worksheets": sheets})
}

func cellIDs(requests []models.ChangeRequest) []uint {
	ids := make([]uint, 0, len(requests))
	seen := make(map[uint]bool)
	for _, req := range requests {
		if !seen[req.TargetCellID] {
			seen[req.TargetCellID] = true
			ids = append(ids, req.TargetCellID)
		}
	}
	return ids
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return 0, false
	}
	return uint(id), true
}

func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_multipart_form", nil)
		return nil, false
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.ValidationError(w, map[string]string{"file": "required"})
		return nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "unreadable_upload", nil)
		return nil, false
	}
	return data, true
}

// parseUploadForm reads the shared upload fields. name is required only
// for fresh uploads; revisions inherit the previous name when omitted.
func parseUploadForm(w http.ResponseWriter, r *http.Request, nameRequired bool) (file []byte, name string, status models.DocumentStatus, worksheet int, ok bool) {
	file, ok = readUpload(w, r)
	if !ok {
		return nil, "", "", 0, false
	}
	name = r.FormValue("name")
	if nameRequired && name == "" {
		httpx.ValidationError(w, map[string]string{"name": "required"})
		return nil, "", "", 0, false
	}
	status = models.DocumentOpen
	if v := r.FormValue("status"); v != "" {
		switch models.DocumentStatus(v) {
		case models.DocumentOpen, models.DocumentRequestOnly, models.DocumentLocked:
			status = models.DocumentStatus(v)
		default:
			httpx.ValidationError(w, map[string]string{"status": "unknown"})
			return nil, "", "", 0, false
		}
	}
	if v := r.FormValue("worksheet"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpx.ValidationError(w, map[string]string{"worksheet": "invalid"})
			return nil, "", "", 0, false
		}
		worksheet = n
	}
	return file, name, status, worksheet, true
}

// writeServiceError maps service sentinels onto the API's status codes:
// policy rejections are forbidden, lookups not found, the rest internal.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, httpx.CodeNotFound, nil)
	case errors.Is(err, services.ErrPolicyRejected):
		httpx.JSONError(w, http.StatusForbidden, httpx.CodeForbidden, nil)
	case errors.Is(err, xlsx.ErrInvalidCoordinate):
		httpx.JSONError(w, http.StatusBadRequest, "invalid_workbook", nil)
	default:
		httpx.JSONError(w, http.StatusInternalServerError, fallback, nil)
	}
}
