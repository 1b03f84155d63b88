package models

import "time"

// DocumentStatus is the edit policy of a document.
type DocumentStatus string

const (
	// DocumentOpen auto-accepts the first edit of a cell; later edits
	// need review.
	DocumentOpen DocumentStatus = "open"
	// DocumentRequestOnly queues every edit for review.
	DocumentRequestOnly DocumentStatus = "request_only"
	// DocumentLocked refuses edits outright.
	DocumentLocked DocumentStatus = "locked"
)

// Document is one uploaded workbook version. Re-uploading creates a new
// row pointing back at the lineage root via ReplacesID; exactly one row
// per lineage has Current set. Superseded rows are kept for history.
type Document struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Name      string         `gorm:"size:100;not null" json:"name"`
	FilePath  string         `gorm:"size:255;not null" json:"-"`
	Worksheet int            `gorm:"not null;default:0" json:"worksheet"`
	Status    DocumentStatus `gorm:"size:20;not null;default:open" json:"status"`
	Current   bool           `gorm:"not null;default:true;index" json:"current"`

	ReplacesID *uint     `gorm:"index" json:"replaces_id,omitempty"`
	Replaces   *Document `gorm:"foreignKey:ReplacesID" json:"-"`

	Cells  []Cell          `gorm:"constraint:OnDelete:CASCADE" json:"cells,omitempty"`
	Colors []DocumentColor `gorm:"constraint:OnDelete:CASCADE" json:"colors,omitempty"`
}

// LineageRoot returns the id that keys this document's lineage: the row
// it replaces, or itself for a fresh upload.
func (d *Document) LineageRoot() uint {
	if d.ReplacesID != nil {
		return *d.ReplacesID
	}
	return d.ID
}

// DocumentColor is one resolved palette entry of a document, named
// "color_<hex>". The (name, document) pair is unique.
type DocumentColor struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"size:20;not null;uniqueIndex:idx_color_name_document" json:"name"`
	Color      string `gorm:"size:8;not null" json:"color"`
	DocumentID uint   `gorm:"not null;uniqueIndex:idx_color_name_document;index" json:"document_id"`
}
