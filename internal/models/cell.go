package models

// Cell is one addressable grid cell produced by ingestion. Only the
// top-left coordinate of a merged region is materialized; its spans are
// set and the covered coordinates have no row at all. Exactly one cell
// per document has FirstCell and one LastCell, used as rendering
// sentinels.
type Cell struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Coordinate string `gorm:"size:15;not null" json:"coordinate"`
	Value      string `gorm:"size:255;not null;default:''" json:"value"`
	ColorName  string `gorm:"size:20" json:"color_name,omitempty"`
	// Spans are nil unless the cell starts a merged region on that axis;
	// stored values are always >= 1.
	RowSpan             *int   `gorm:"" json:"row_span,omitempty"`
	ColumnSpan          *int   `gorm:"" json:"column_span,omitempty"`
	HorizontalAlignment string `gorm:"size:20" json:"horizontal_alignment,omitempty"`
	FirstCell           bool   `gorm:"not null;default:false" json:"first_cell"`
	LastCell            bool   `gorm:"not null;default:false" json:"last_cell"`

	DocumentID uint `gorm:"not null;index" json:"document_id"`
}

// ClassTags renders the CSS class list for the cell: its palette color
// name plus the alignment when set.
func (c Cell) ClassTags() string {
	if c.HorizontalAlignment == "" {
		return c.ColorName
	}
	if c.ColorName == "" {
		return c.HorizontalAlignment
	}
	return c.ColorName + " " + c.HorizontalAlignment
}
