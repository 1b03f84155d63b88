package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/diewo77/go-sheets/internal/models"

	"gorm.io/gorm"
)

func seedCell(t *testing.T, db *gorm.DB, status models.DocumentStatus, value string) models.Cell {
	t.Helper()
	doc := models.Document{Name: "Doc", FilePath: "unused", Status: status, Current: true}
	if err := db.Create(&doc).Error; err != nil {
		t.Fatalf("doc: %v", err)
	}
	cell := models.Cell{Coordinate: "A1", Value: value, DocumentID: doc.ID}
	if err := db.Create(&cell).Error; err != nil {
		t.Fatalf("cell: %v", err)
	}
	return cell
}

func createRequestBody(cellID uint, newValue string) *strings.Reader {
	return strings.NewReader(fmt.Sprintf(`{"target_cell_id":%d,"new_value":%q}`, cellID, newValue))
}

func TestChangeRequestCreateAutoAccepted(t *testing.T) {
	_, ch, db := newHandlers(t)
	cell := seedCell(t, db, models.DocumentOpen, "x")

	req := asUser(httptest.NewRequest(http.MethodPost, "/change-requests", createRequestBody(cell.ID, "y")), 1)
	w := httptest.NewRecorder()
	ch.Create(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("auto-accepted request should answer 201, got %d body=%s", w.Code, w.Body.String())
	}
	var created models.ChangeRequest
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != models.RequestAccepted {
		t.Fatalf("expected accepted, got %s", created.Status)
	}
}

func TestChangeRequestCreatePending(t *testing.T) {
	_, ch, db := newHandlers(t)
	cell := seedCell(t, db, models.DocumentRequestOnly, "x")

	req := asUser(httptest.NewRequest(http.MethodPost, "/change-requests", createRequestBody(cell.ID, "y")), 1)
	w := httptest.NewRecorder()
	ch.Create(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("queued request should answer 202, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestChangeRequestCreateLocked(t *testing.T) {
	_, ch, db := newHandlers(t)
	cell := seedCell(t, db, models.DocumentLocked, "x")

	req := asUser(httptest.NewRequest(http.MethodPost, "/change-requests", createRequestBody(cell.ID, "y")), 1)
	w := httptest.NewRecorder()
	ch.Create(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("locked document should answer 403, got %d", w.Code)
	}
}

func TestChangeRequestCreateUnauthenticated(t *testing.T) {
	_, ch, db := newHandlers(t)
	cell := seedCell(t, db, models.DocumentOpen, "x")

	req := httptest.NewRequest(http.MethodPost, "/change-requests", createRequestBody(cell.ID, "y"))
	w := httptest.NewRecorder()
	ch.Create(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestChangeRequestCreateValidation(t *testing.T) {
	_, ch, _ := newHandlers(t)

	req := asUser(httptest.NewRequest(http.MethodPost, "/change-requests", strings.NewReader(`{"new_value":"y"}`)), 1)
	w := httptest.NewRecorder()
	ch.Create(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing target cell, got %d", w.Code)
	}
}

func TestChangeRequestAcceptRequiresReviewPermission(t *testing.T) {
	_, ch, db := newHandlers(t)
	cell := seedCell(t, db, models.DocumentRequestOnly, "x")

	cr := models.ChangeRequest{AuthorID: 1, TargetCellID: cell.ID, NewValue: "y", OldValue: "x", Status: models.RequestPending}
	if err := db.Create(&cr).Error; err != nil {
		t.Fatalf("request: %v", err)
	}
	idStr := strconv.Itoa(int(cr.ID))

	// User 1 has no review permission.
	req := asUser(httptest.NewRequest(http.MethodPost, "/change-requests/"+idStr+"/accept", nil), 1)
	req.SetPathValue("id", idStr)
	w := httptest.NewRecorder()
	ch.Accept(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	// User 2 is the reviewer.
	req2 := asUser(httptest.NewRequest(http.MethodPost, "/change-requests/"+idStr+"/accept", nil), 2)
	req2.SetPathValue("id", idStr)
	w2 := httptest.NewRecorder()
	ch.Accept(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w2.Code, w2.Body.String())
	}
	var cellAfter models.Cell
	db.First(&cellAfter, cell.ID)
	if cellAfter.Value != "y" {
		t.Fatalf("cell should carry accepted value, got %q", cellAfter.Value)
	}
}

func TestChangeRequestDecline(t *testing.T) {
	_, ch, db := newHandlers(t)
	cell := seedCell(t, db, models.DocumentRequestOnly, "x")
	cr := models.ChangeRequest{AuthorID: 1, TargetCellID: cell.ID, NewValue: "y", OldValue: "x", Status: models.RequestPending}
	db.Create(&cr)
	idStr := strconv.Itoa(int(cr.ID))

	req := asUser(httptest.NewRequest(http.MethodPost, "/change-requests/"+idStr+"/decline", nil), 2)
	req.SetPathValue("id", idStr)
	w := httptest.NewRecorder()
	ch.Decline(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var cellAfter models.Cell
	db.First(&cellAfter, cell.ID)
	if cellAfter.Value != "x" {
		t.Fatalf("declined edit must not touch the cell, got %q", cellAfter.Value)
	}
}

func TestChangeRequestRevoke(t *testing.T) {
	_, ch, db := newHandlers(t)
	cell := seedCell(t, db, models.DocumentRequestOnly, "x")
	cr := models.ChangeRequest{AuthorID: 1, TargetCellID: cell.ID, NewValue: "y", OldValue: "x", Status: models.RequestPending}
	db.Create(&cr)
	idStr := strconv.Itoa(int(cr.ID))

	// Another user cannot withdraw the author's request.
	req := asUser(httptest.NewRequest(http.MethodPost, "/change-requests/"+idStr+"/revoke", nil), 2)
	req.SetPathValue("id", idStr)
	w := httptest.NewRecorder()
	ch.Revoke(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-author, got %d", w.Code)
	}

	req2 := asUser(httptest.NewRequest(http.MethodPost, "/change-requests/"+idStr+"/revoke", nil), 1)
	req2.SetPathValue("id", idStr)
	w2 := httptest.NewRecorder()
	ch.Revoke(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w2.Code, w2.Body.String())
	}
	var after models.ChangeRequest
	db.First(&after, cr.ID)
	if after.Status != models.RequestRevoked {
		t.Fatalf("expected revoked, got %s", after.Status)
	}
}

func TestChangeRequestsForCell(t *testing.T) {
	_, ch, db := newHandlers(t)
	cell := seedCell(t, db, models.DocumentRequestOnly, "x")
	db.Create(&models.ChangeRequest{AuthorID: 1, TargetCellID: cell.ID, NewValue: "y", OldValue: "x", Status: models.RequestPending})
	db.Create(&models.ChangeRequest{AuthorID: 1, TargetCellID: cell.ID, NewValue: "z", OldValue: "x", Status: models.RequestDeclined})

	idStr := strconv.Itoa(int(cell.ID))
	req := asUser(httptest.NewRequest(http.MethodGet, "/cells/"+idStr+"/requests?status=pending", nil), 2)
	req.SetPathValue("id", idStr)
	w := httptest.NewRecorder()
	ch.ForCell(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload struct {
		Items    []models.ChangeRequest `json:"items"`
		IsEditor bool                   `json:"is_editor"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Items) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(payload.Items))
	}
	if !payload.IsEditor {
		t.Fatal("reviewer should be flagged as editor")
	}
}
