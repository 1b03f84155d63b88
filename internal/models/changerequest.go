package models

import "time"

// Change request statuses. Pending moves to Accepted, Declined or
// Revoked; Accepted can still be Revoked; Declined and Revoked are
// terminal. Requests are never deleted, revocation included.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestDeclined = "declined"
	RequestRevoked  = "revoked"
)

// ChangeRequest is a proposed value for a single cell. OldValue is
// captured once when the request is first persisted and never
// recomputed; it is what a revoked acceptance reverts the cell to.
type ChangeRequest struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	AuthorID uint `gorm:"not null;index" json:"author_id"`
	Author   User `gorm:"foreignKey:AuthorID" json:"-"`

	ReviewerID *uint `gorm:"index" json:"reviewer_id,omitempty"`
	Reviewer   *User `gorm:"foreignKey:ReviewerID" json:"-"`

	NewValue string `gorm:"size:255;not null" json:"new_value"`
	OldValue string `gorm:"size:255" json:"old_value"`

	TargetCellID uint `gorm:"not null;index" json:"target_cell_id"`
	TargetCell   Cell `gorm:"foreignKey:TargetCellID" json:"-"`

	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	Status     string     `gorm:"size:20;not null;default:pending;index" json:"status"`
}
