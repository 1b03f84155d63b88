package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diewo77/go-sheets/internal/gate"
	"github.com/diewo77/go-sheets/internal/models"
	"github.com/diewo77/go-sheets/internal/notify"
	"gorm.io/gorm"
)

// Notifier schedules a notification for delivery after the triggering
// transaction has committed.
type Notifier interface {
	Enqueue(msg notify.Message)
}

// ChangeRequestService runs the cell revision state machine:
// Pending -> Accepted | Declined | Revoked, Accepted -> Revoked.
// Cell mutation and the cascading decline of competing requests happen in
// one transaction; notifications go out only after commit.
type ChangeRequestService struct {
	db       *gorm.DB
	gate     *gate.Gate
	notifier Notifier
}

func NewChangeRequestService(db *gorm.DB, g *gate.Gate, notifier Notifier) *ChangeRequestService {
	return &ChangeRequestService{db: db, gate: g, notifier: notifier}
}

// CreateParams describes a proposed cell edit. OldValue is normally nil
// and captured from the cell at creation; suppliers of synthetic
// requests may pin it.
type CreateParams struct {
	AuthorID     uint
	TargetCellID uint
	NewValue     string
	OldValue     *string
}

// Create persists a new request under the owning document's policy.
// Locked documents refuse outright. Open documents auto-accept a cell's
// first-ever accepted edit; once any sibling has been accepted, later
// requests wait for review. RequestOnly documents queue everything
// unless the author holds the review permission.
func (s *ChangeRequestService) Create(ctx context.Context, p CreateParams) (*models.ChangeRequest, error) {
	var cell models.Cell
	if err := s.db.First(&cell, p.TargetCellID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cell %d: %w", p.TargetCellID, ErrNotFound)
		}
		return nil, err
	}
	var doc models.Document
	if err := s.db.First(&doc, cell.DocumentID).Error; err != nil {
		return nil, err
	}

	autoAccept := false
	switch doc.Status {
	case models.DocumentLocked:
		return nil, fmt.Errorf("document %d is locked: %w", doc.ID, ErrPolicyRejected)
	case models.DocumentOpen:
		var accepted int64
		err := s.db.Model(&models.ChangeRequest{}).
			Where("target_cell_id = ? AND status = ?", cell.ID, models.RequestAccepted).
			Count(&accepted).Error
		if err != nil {
			return nil, err
		}
		autoAccept = accepted == 0
	case models.DocumentRequestOnly:
		autoAccept = s.gate.Can(ctx, p.AuthorID, gate.ActionReview, ResourceChangeRequest)
	}

	req := &models.ChangeRequest{
		AuthorID:     p.AuthorID,
		TargetCellID: cell.ID,
		NewValue:     p.NewValue,
		OldValue:     cell.Value,
		Status:       models.RequestPending,
	}
	if p.OldValue != nil {
		req.OldValue = *p.OldValue
	}

	now := time.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return fmt.Errorf("create change request: %w", err)
		}
		if autoAccept {
			return applyAcceptance(tx, req, p.AuthorID, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !autoAccept {
		// Auto-accepted requests need no review, so the editor broadcast
		// only goes out for requests that actually wait for one.
		s.broadcastToReviewers(req)
	}
	return req, nil
}

// Accept applies a pending request: the target cell takes the new value
// and every other pending request on that cell is declined by the same
// reviewer in the same transaction.
func (s *ChangeRequestService) Accept(ctx context.Context, id, reviewerID uint) (*models.ChangeRequest, error) {
	req, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestPending {
		return nil, fmt.Errorf("request %d is %s: %w", req.ID, req.Status, ErrPolicyRejected)
	}
	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		return applyAcceptance(tx, req, reviewerID, now)
	})
	if err != nil {
		return nil, err
	}
	if req.AuthorID != reviewerID {
		s.notifyAuthor(req, "Your change request has been accepted")
	}
	return req, nil
}

// Decline rejects a pending request; the cell is untouched and the
// request becomes terminal.
func (s *ChangeRequestService) Decline(ctx context.Context, id, reviewerID uint) (*models.ChangeRequest, error) {
	req, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestPending {
		return nil, fmt.Errorf("request %d is %s: %w", req.ID, req.Status, ErrPolicyRejected)
	}
	now := time.Now()
	res := s.db.Model(&models.ChangeRequest{}).
		Where("id = ? AND status = ?", req.ID, models.RequestPending).
		Updates(map[string]any{
			"status": models.RequestDeclined, "reviewer_id": reviewerID, "reviewed_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Raced with a competing transition on the same request.
		return nil, fmt.Errorf("request %d already reviewed: %w", req.ID, ErrPolicyRejected)
	}
	req.Status = models.RequestDeclined
	req.ReviewerID = &reviewerID
	req.ReviewedAt = &now
	if req.AuthorID != reviewerID {
		s.notifyAuthor(req, "Your change request has been declined")
	}
	return req, nil
}

// Revoke withdraws the actor's own request. A pending request just
// becomes Revoked. An accepted request is revocable only while it is the
// cell's latest acceptance and the document is still Open; the cell then
// reverts to the request's old value.
func (s *ChangeRequestService) Revoke(ctx context.Context, id, actorID uint) (*models.ChangeRequest, error) {
	req, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if req.AuthorID != actorID {
		return nil, fmt.Errorf("request %d belongs to another author: %w", req.ID, ErrPolicyRejected)
	}
	now := time.Now()
	revoked := map[string]any{
		"status": models.RequestRevoked, "reviewer_id": actorID, "reviewed_at": now,
	}

	switch req.Status {
	case models.RequestPending:
		res := s.db.Model(&models.ChangeRequest{}).
			Where("id = ? AND status = ?", req.ID, models.RequestPending).
			Updates(revoked)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// Raced with a competing transition on the same request.
			return nil, fmt.Errorf("request %d already reviewed: %w", req.ID, ErrPolicyRejected)
		}
	case models.RequestAccepted:
		var doc models.Document
		if err := s.db.First(&doc, req.TargetCell.DocumentID).Error; err != nil {
			return nil, err
		}
		if doc.Status != models.DocumentOpen {
			return nil, fmt.Errorf("document %d is not open: %w", doc.ID, ErrPolicyRejected)
		}
		var latest models.ChangeRequest
		err = s.db.Where("target_cell_id = ? AND status = ?", req.TargetCellID, models.RequestAccepted).
			Order("reviewed_at desc, id desc").First(&latest).Error
		if err != nil {
			return nil, err
		}
		if latest.ID != req.ID {
			// A later acceptance overrode this one; reverting would
			// resurrect a stale value.
			return nil, fmt.Errorf("request %d was superseded: %w", req.ID, ErrPolicyRejected)
		}
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Cell{}).
				Where("id = ?", req.TargetCellID).
				Update("value", req.OldValue).Error; err != nil {
				return fmt.Errorf("revert cell value: %w", err)
			}
			res := tx.Model(&models.ChangeRequest{}).
				Where("id = ? AND status = ?", req.ID, models.RequestAccepted).
				Updates(revoked)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("request %d already transitioned: %w", req.ID, ErrPolicyRejected)
			}
			return nil
		})
	default:
		return nil, fmt.Errorf("request %d is %s: %w", req.ID, req.Status, ErrPolicyRejected)
	}
	if err != nil {
		return nil, err
	}
	req.Status = models.RequestRevoked
	req.ReviewerID = &actorID
	req.ReviewedAt = &now
	return req, nil
}

// ForDocument lists a document's requests, optionally filtered by status,
// oldest first.
func (s *ChangeRequestService) ForDocument(documentID uint, status string) ([]models.ChangeRequest, error) {
	q := s.db.Joins("JOIN cells ON cells.id = change_requests.target_cell_id").
		Where("cells.document_id = ?", documentID)
	if status != "" {
		q = q.Where("change_requests.status = ?", status)
	}
	var requests []models.ChangeRequest
	err := q.Order("change_requests.created_at").Find(&requests).Error
	return requests, err
}

// ForCell lists a cell's requests with the given status, oldest first.
func (s *ChangeRequestService) ForCell(cellID uint, status string) ([]models.ChangeRequest, error) {
	q := s.db.Where("target_cell_id = ?", cellID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var requests []models.ChangeRequest
	err := q.Order("created_at").Find(&requests).Error
	return requests, err
}

func (s *ChangeRequestService) get(id uint) (*models.ChangeRequest, error) {
	var req models.ChangeRequest
	err := s.db.Preload("TargetCell").First(&req, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("change request %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// applyAcceptance writes the accepted value to the cell, marks the
// request accepted and declines its pending siblings, all on tx.
// Declined siblings carry the same reviewer and timestamp as the
// acceptance that displaced them; their authors are not notified.
func applyAcceptance(tx *gorm.DB, req *models.ChangeRequest, reviewerID uint, now time.Time) error {
	if err := tx.Model(&models.Cell{}).
		Where("id = ?", req.TargetCellID).
		Update("value", req.NewValue).Error; err != nil {
		return fmt.Errorf("write cell value: %w", err)
	}
	res := tx.Model(&models.ChangeRequest{}).
		Where("id = ? AND status = ?", req.ID, models.RequestPending).
		Updates(map[string]any{
			"status": models.RequestAccepted, "reviewer_id": reviewerID, "reviewed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Raced with a competing transition on the same request.
		return fmt.Errorf("request %d already reviewed: %w", req.ID, ErrPolicyRejected)
	}
	err := tx.Model(&models.ChangeRequest{}).
		Where("target_cell_id = ? AND status = ? AND id <> ?",
			req.TargetCellID, models.RequestPending, req.ID).
		Updates(map[string]any{
			"status": models.RequestDeclined, "reviewer_id": reviewerID, "reviewed_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("decline siblings: %w", err)
	}
	req.Status = models.RequestAccepted
	req.ReviewerID = &reviewerID
	req.ReviewedAt = &now
	return nil
}

// broadcastToReviewers notifies every account whose profile grants the
// review permission that a request awaits review.
func (s *ChangeRequestService) broadcastToReviewers(req *models.ChangeRequest) {
	if s.notifier == nil {
		return
	}
	var users []models.User
	if err := s.db.Preload("Profile.Permissions").
		Where("profile_id IS NOT NULL").Find(&users).Error; err != nil {
		return
	}
	required := gate.NewPermission(ResourceChangeRequest, gate.ActionReview)
	var recipients []string
	for _, user := range users {
		if user.Profile == nil {
			continue
		}
		for _, p := range user.Profile.Permissions {
			if gate.NewPermission(p.ResourceType, gate.Action(p.Action)).Matches(required) {
				recipients = append(recipients, user.Email)
				break
			}
		}
	}
	s.notifier.Enqueue(notify.Message{
		Subject:    "New change request",
		Body:       fmt.Sprintf("Change request %d awaits review.", req.ID),
		Recipients: recipients,
	})
}

func (s *ChangeRequestService) notifyAuthor(req *models.ChangeRequest, subject string) {
	if s.notifier == nil {
		return
	}
	var author models.User
	if err := s.db.First(&author, req.AuthorID).Error; err != nil {
		return
	}
	s.notifier.Enqueue(notify.Message{
		Subject:    subject,
		Body:       fmt.Sprintf("Change request %d is now %s.", req.ID, req.Status),
		Recipients: []string{author.Email},
	})
}
