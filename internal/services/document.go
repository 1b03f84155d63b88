package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/diewo77/go-sheets/internal/models"
	"github.com/diewo77/go-sheets/internal/xlsx"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentService manages document lifecycle: upload, versioning,
// ingestion and export. Ingestion runs synchronously inside the creating
// transaction, so a document is visible to others only with its full
// cell grid or not at all.
type DocumentService struct {
	db      *gorm.DB
	dataDir string
}

func NewDocumentService(db *gorm.DB, dataDir string) *DocumentService {
	return &DocumentService{db: db, dataDir: dataDir}
}

// WorksheetInfo names one worksheet of an uploaded file, for sheet
// selection on the upload form.
type WorksheetInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Worksheets lists the worksheets of a workbook file.
func Worksheets(file []byte) ([]WorksheetInfo, error) {
	wb, err := xlsx.Open(file, log.Printf)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	names := wb.SheetNames()
	sheets := make([]WorksheetInfo, len(names))
	for i, name := range names {
		sheets[i] = WorksheetInfo{Index: i, Name: name}
	}
	return sheets, nil
}

// Create stores the uploaded file and inserts a fresh-lineage document,
// ingesting the selected worksheet in the same transaction. An ingestion
// failure aborts the whole creation.
func (s *DocumentService) Create(name string, status models.DocumentStatus, worksheet int, file []byte) (*models.Document, error) {
	path, err := s.storeFile(file)
	if err != nil {
		return nil, err
	}
	doc := &models.Document{
		Name:      name,
		FilePath:  path,
		Worksheet: worksheet,
		Status:    status,
		Current:   true,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return ingestInto(tx, doc, file)
	})
	if err != nil {
		s.removeFile(path)
		return nil, err
	}
	return doc, nil
}

// CreateRevision supersedes the current version of a lineage with a new
// upload. One transaction clears the lineage's current flag, inserts the
// new row pointing at the lineage root, ingests the new grid and
// re-targets pending change requests onto it by coordinate. Requests
// whose coordinate vanished stay Pending on the old grid and are logged.
func (s *DocumentService) CreateRevision(staleID uint, name string, status models.DocumentStatus, worksheet int, file []byte) (*models.Document, error) {
	previous, err := s.ResolveCurrent(staleID)
	if err != nil {
		return nil, err
	}
	path, err := s.storeFile(file)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = previous.Name
	}
	root := previous.LineageRoot()
	doc := &models.Document{
		Name:       name,
		FilePath:   path,
		Worksheet:  worksheet,
		Status:     status,
		Current:    true,
		ReplacesID: &root,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		clear := tx.Model(&models.Document{}).
			Where("replaces_id = ? OR id = ?", root, root).
			Update("current", false)
		if clear.Error != nil {
			return fmt.Errorf("clear current flag: %w", clear.Error)
		}
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("create revision: %w", err)
		}
		if err := ingestInto(tx, doc, file); err != nil {
			return err
		}
		return retargetPending(tx, previous.ID, doc.ID)
	})
	if err != nil {
		s.removeFile(path)
		return nil, err
	}
	return doc, nil
}

// ResolveCurrent maps a possibly-stale document id to the live version of
// its lineage: the id itself when it is a current fresh upload, or the
// current row replacing it.
func (s *DocumentService) ResolveCurrent(id uint) (*models.Document, error) {
	var doc models.Document
	err := s.db.
		Where("(id = ? AND current = ? AND replaces_id IS NULL) OR (replaces_id = ? AND current = ?)",
			id, true, id, true).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListCurrent returns the current version of every lineage, newest first.
func (s *DocumentService) ListCurrent(limit, offset int) ([]models.Document, int64, error) {
	q := s.db.Model(&models.Document{}).Where("current = ?", true)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var docs []models.Document
	if err := q.Order("id desc").Limit(limit).Offset(offset).Find(&docs).Error; err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// Cells returns a document's grid in emission order.
func (s *DocumentService) Cells(documentID uint) ([]models.Cell, error) {
	var cells []models.Cell
	err := s.db.Where("document_id = ?", documentID).Order("id").Find(&cells).Error
	return cells, err
}

// Colors returns a document's resolved palette.
func (s *DocumentService) Colors(documentID uint) ([]models.DocumentColor, error) {
	var colors []models.DocumentColor
	err := s.db.Where("document_id = ?", documentID).Order("id").Find(&colors).Error
	return colors, err
}

// Export re-opens the document's original file, overwrites every
// ingested coordinate with its current value and returns the serialized
// workbook plus the download filename.
func (s *DocumentService) Export(doc *models.Document) ([]byte, string, error) {
	file, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("read stored file: %w", err)
	}
	wb, err := xlsx.Open(file, log.Printf)
	if err != nil {
		return nil, "", err
	}
	defer wb.Close()
	sheet, err := wb.SheetName(doc.Worksheet)
	if err != nil {
		return nil, "", err
	}
	cells, err := s.Cells(doc.ID)
	if err != nil {
		return nil, "", err
	}
	for _, cell := range cells {
		if err := wb.SetCellValue(sheet, cell.Coordinate, cell.Value); err != nil {
			return nil, "", fmt.Errorf("write cell %s: %w", cell.Coordinate, err)
		}
	}
	out, err := wb.Bytes()
	if err != nil {
		return nil, "", err
	}
	return out, doc.Name + ".xlsx", nil
}

// ingestInto parses the workbook and bulk-persists the document's cells,
// then its color palette.
func ingestInto(tx *gorm.DB, doc *models.Document, file []byte) error {
	wb, err := xlsx.Open(file, log.Printf)
	if err != nil {
		return err
	}
	defer wb.Close()
	result, err := xlsx.Ingest(wb, doc.Worksheet, log.Printf)
	if err != nil {
		return fmt.Errorf("ingest document %d: %w", doc.ID, err)
	}

	cells := make([]models.Cell, len(result.Cells))
	for i, rec := range result.Cells {
		cells[i] = models.Cell{
			Coordinate:          rec.Coordinate,
			Value:               rec.Value,
			ColorName:           rec.ColorName,
			HorizontalAlignment: rec.Alignment,
			FirstCell:           rec.First,
			LastCell:            rec.Last,
			DocumentID:          doc.ID,
		}
		if rec.RowSpan > 0 {
			span := rec.RowSpan
			cells[i].RowSpan = &span
		}
		if rec.ColumnSpan > 0 {
			span := rec.ColumnSpan
			cells[i].ColumnSpan = &span
		}
	}
	if len(cells) > 0 {
		if err := tx.CreateInBatches(cells, 500).Error; err != nil {
			return fmt.Errorf("persist cells: %w", err)
		}
	}
	for _, entry := range result.Colors {
		color := models.DocumentColor{Name: entry.Name, Color: entry.Hex, DocumentID: doc.ID}
		if err := tx.Where("name = ? AND document_id = ?", entry.Name, doc.ID).
			FirstOrCreate(&color).Error; err != nil {
			return fmt.Errorf("persist color %s: %w", entry.Name, err)
		}
	}
	return nil
}

// retargetPending moves the superseded document's pending requests onto
// the coordinate-matching cells of the new grid.
func retargetPending(tx *gorm.DB, oldDocID, newDocID uint) error {
	var pending []models.ChangeRequest
	err := tx.Preload("TargetCell").
		Joins("JOIN cells ON cells.id = change_requests.target_cell_id").
		Where("cells.document_id = ? AND change_requests.status = ?", oldDocID, models.RequestPending).
		Find(&pending).Error
	if err != nil {
		return fmt.Errorf("load pending requests: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}
	var newCells []models.Cell
	if err := tx.Where("document_id = ?", newDocID).Find(&newCells).Error; err != nil {
		return err
	}
	byCoordinate := make(map[string]uint, len(newCells))
	for _, cell := range newCells {
		byCoordinate[cell.Coordinate] = cell.ID
	}
	for _, req := range pending {
		newCellID, ok := byCoordinate[req.TargetCell.Coordinate]
		if !ok {
			// Coordinate gone from the new grid: keep the request pending
			// against the old cell as an orphan rather than failing the
			// revision.
			log.Printf("document %d: change request %d orphaned, coordinate %s missing after re-upload",
				newDocID, req.ID, req.TargetCell.Coordinate)
			continue
		}
		if err := tx.Model(&models.ChangeRequest{}).
			Where("id = ?", req.ID).
			Update("target_cell_id", newCellID).Error; err != nil {
			return fmt.Errorf("retarget request %d: %w", req.ID, err)
		}
	}
	return nil
}

func (s *DocumentService) storeFile(file []byte) (string, error) {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(s.dataDir, uuid.NewString()+".xlsx")
	if err := os.WriteFile(path, file, 0o644); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return path, nil
}

func (s *DocumentService) removeFile(path string) {
	if err := os.Remove(path); err != nil {
		log.Printf("cleanup of %s failed: %v", path, err)
	}
}
