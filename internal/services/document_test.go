package services

import (
	"os"
	"strings"
	"testing"

	"github.com/diewo77/go-sheets/internal/models"
	"github.com/xuri/excelize/v2"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid cross-test collisions.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(&models.Permission{}, &models.Profile{}, &models.User{},
		&models.Document{}, &models.Cell{}, &models.DocumentColor{}, &models.ChangeRequest{})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// workbookBytes builds an xlsx with the given cell values and an
// optional merged range.
func workbookBytes(t *testing.T, values map[string]string, merge string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for coord, v := range values {
		if err := f.SetCellStr(sheet, coord, v); err != nil {
			t.Fatalf("set %s: %v", coord, err)
		}
	}
	if merge != "" {
		corners := strings.Split(merge, ":")
		if err := f.MergeCell(sheet, corners[0], corners[1]); err != nil {
			t.Fatalf("merge %s: %v", merge, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("serialize workbook: %v", err)
	}
	return buf.Bytes()
}

func TestDocumentCreateIngestsGrid(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDocumentService(db, t.TempDir())

	file := workbookBytes(t, map[string]string{"A1": "head", "B1": "x", "B2": "y"}, "A1:A2")
	doc, err := svc.Create("Budget", models.DocumentOpen, 0, file)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !doc.Current || doc.ReplacesID != nil {
		t.Fatalf("fresh document should be current with no lineage parent: %+v", doc)
	}
	if _, err := os.Stat(doc.FilePath); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}

	cells, err := svc.Cells(doc.ID)
	if err != nil {
		t.Fatalf("cells: %v", err)
	}
	// A2 is covered by the merge and must not exist as a row.
	if len(cells) != 3 {
		t.Fatalf("expected 3 cells got %d", len(cells))
	}
	byCoord := make(map[string]models.Cell)
	for _, c := range cells {
		byCoord[c.Coordinate] = c
	}
	if _, ok := byCoord["A2"]; ok {
		t.Fatal("covered coordinate A2 was materialized")
	}
	a1 := byCoord["A1"]
	if a1.RowSpan == nil || *a1.RowSpan != 2 {
		t.Fatalf("A1 row span: %+v", a1.RowSpan)
	}
	if a1.ColumnSpan != nil {
		t.Fatalf("A1 column span should be unset, got %d", *a1.ColumnSpan)
	}
}

func TestDocumentCreateRejectsBadWorksheet(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()
	svc := NewDocumentService(db, dir)

	file := workbookBytes(t, map[string]string{"A1": "x"}, "")
	if _, err := svc.Create("Broken", models.DocumentOpen, 7, file); err == nil {
		t.Fatal("expected worksheet index error")
	}
	// The aborted creation must leave neither rows nor the stored file.
	var count int64
	db.Model(&models.Document{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no documents, got %d", count)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("upload not cleaned up: %d files left", len(entries))
	}
}

func TestResolveCurrent(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDocumentService(db, t.TempDir())

	doc, err := svc.Create("Doc", models.DocumentOpen, 0, workbookBytes(t, map[string]string{"A1": "x"}, ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.ResolveCurrent(doc.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != doc.ID {
		t.Fatalf("expected id %d got %d", doc.ID, got.ID)
	}

	if _, err := svc.ResolveCurrent(9999); err == nil {
		t.Fatal("expected not-found for unknown id")
	}
}

func TestCreateRevisionLineage(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDocumentService(db, t.TempDir())

	v1, err := svc.Create("Doc", models.DocumentOpen, 0, workbookBytes(t, map[string]string{"A1": "one"}, ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	v2, err := svc.CreateRevision(v1.ID, "", models.DocumentOpen, 0, workbookBytes(t, map[string]string{"A1": "two"}, ""))
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if v2.ReplacesID == nil || *v2.ReplacesID != v1.ID {
		t.Fatalf("revision should point at lineage root %d: %+v", v1.ID, v2.ReplacesID)
	}
	if v2.Name != "Doc" {
		t.Fatalf("revision should inherit the name, got %q", v2.Name)
	}

	// Resolving through the stale id lands on the revision.
	got, err := svc.ResolveCurrent(v1.ID)
	if err != nil {
		t.Fatalf("resolve stale: %v", err)
	}
	if got.ID != v2.ID {
		t.Fatalf("expected current %d got %d", v2.ID, got.ID)
	}

	// A second revision through the same stale id keeps the root pointer
	// flat instead of building a chain.
	v3, err := svc.CreateRevision(v1.ID, "", models.DocumentOpen, 0, workbookBytes(t, map[string]string{"A1": "three"}, ""))
	if err != nil {
		t.Fatalf("second revision: %v", err)
	}
	if v3.ReplacesID == nil || *v3.ReplacesID != v1.ID {
		t.Fatalf("second revision should still point at root %d: %+v", v1.ID, v3.ReplacesID)
	}

	var current int64
	db.Model(&models.Document{}).Where("current = ?", true).Count(&current)
	if current != 1 {
		t.Fatalf("lineage must have exactly one current row, got %d", current)
	}
}

func TestCreateRevisionRetargetsPending(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDocumentService(db, t.TempDir())

	v1, err := svc.Create("Doc", models.DocumentRequestOnly, 0, workbookBytes(t, map[string]string{"A1": "x", "B1": "y"}, ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cells, _ := svc.Cells(v1.ID)
	var b1 models.Cell
	for _, c := range cells {
		if c.Coordinate == "B1" {
			b1 = c
		}
	}
	author := models.User{Email: "author@test", Password: "x"}
	if err := db.Create(&author).Error; err != nil {
		t.Fatalf("user: %v", err)
	}
	req := models.ChangeRequest{AuthorID: author.ID, TargetCellID: b1.ID, NewValue: "z", OldValue: "y", Status: models.RequestPending}
	if err := db.Create(&req).Error; err != nil {
		t.Fatalf("request: %v", err)
	}

	v2, err := svc.CreateRevision(v1.ID, "", models.DocumentRequestOnly, 0, workbookBytes(t, map[string]string{"A1": "x2", "B1": "y2"}, ""))
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	newCells, _ := svc.Cells(v2.ID)
	var newB1 models.Cell
	for _, c := range newCells {
		if c.Coordinate == "B1" {
			newB1 = c
		}
	}
	var moved models.ChangeRequest
	if err := db.First(&moved, req.ID).Error; err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if moved.TargetCellID != newB1.ID {
		t.Fatalf("request should target new B1 cell %d, got %d", newB1.ID, moved.TargetCellID)
	}
	if moved.Status != models.RequestPending {
		t.Fatalf("retargeted request should stay pending, got %s", moved.Status)
	}
}

func TestCreateRevisionOrphansVanishedCoordinate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDocumentService(db, t.TempDir())

	v1, err := svc.Create("Doc", models.DocumentRequestOnly, 0, workbookBytes(t, map[string]string{"A1": "x", "B1": "y"}, ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cells, _ := svc.Cells(v1.ID)
	var b1 models.Cell
	for _, c := range cells {
		if c.Coordinate == "B1" {
			b1 = c
		}
	}
	author := models.User{Email: "author@test", Password: "x"}
	db.Create(&author)
	req := models.ChangeRequest{AuthorID: author.ID, TargetCellID: b1.ID, NewValue: "z", OldValue: "y", Status: models.RequestPending}
	db.Create(&req)

	// New grid has no B1; the request stays pending against the old cell.
	_, err = svc.CreateRevision(v1.ID, "", models.DocumentRequestOnly, 0, workbookBytes(t, map[string]string{"A1": "only"}, ""))
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	var orphan models.ChangeRequest
	db.First(&orphan, req.ID)
	if orphan.TargetCellID != b1.ID {
		t.Fatalf("orphaned request should keep its old target, got %d", orphan.TargetCellID)
	}
	if orphan.Status != models.RequestPending {
		t.Fatalf("orphaned request should stay pending, got %s", orphan.Status)
	}
}

func TestExportWritesCurrentValues(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDocumentService(db, t.TempDir())

	doc, err := svc.Create("Report", models.DocumentOpen, 0, workbookBytes(t, map[string]string{"A1": "old"}, ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Model(&models.Cell{}).Where("document_id = ? AND coordinate = ?", doc.ID, "A1").
		Update("value", "new").Error; err != nil {
		t.Fatalf("update cell: %v", err)
	}

	data, filename, err := svc.Export(doc)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filename != "Report.xlsx" {
		t.Fatalf("unexpected filename %q", filename)
	}
	f, err := excelize.OpenReader(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("reopen export: %v", err)
	}
	defer f.Close()
	value, err := f.GetCellValue(f.GetSheetName(0), "A1")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if value != "new" {
		t.Fatalf("expected exported A1 = %q, got %q", "new", value)
	}
}

func TestListCurrent(t *testing.T) {
	db := setupTestDB(t)
	svc := NewDocumentService(db, t.TempDir())

	a, _ := svc.Create("A", models.DocumentOpen, 0, workbookBytes(t, map[string]string{"A1": "a"}, ""))
	if _, err := svc.Create("B", models.DocumentOpen, 0, workbookBytes(t, map[string]string{"A1": "b"}, "")); err != nil {
		t.Fatalf("create B: %v", err)
	}
	if _, err := svc.CreateRevision(a.ID, "", models.DocumentOpen, 0, workbookBytes(t, map[string]string{"A1": "a2"}, "")); err != nil {
		t.Fatalf("revise A: %v", err)
	}

	docs, total, err := svc.ListCurrent(10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(docs) != 2 {
		t.Fatalf("expected 2 current documents, got total=%d len=%d", total, len(docs))
	}
	for _, d := range docs {
		if !d.Current {
			t.Fatalf("non-current document listed: %+v", d)
		}
	}
}

func TestWorksheets(t *testing.T) {
	sheets, err := Worksheets(workbookBytes(t, map[string]string{"A1": "x"}, ""))
	if err != nil {
		t.Fatalf("worksheets: %v", err)
	}
	if len(sheets) != 1 || sheets[0].Index != 0 || sheets[0].Name == "" {
		t.Fatalf("unexpected worksheets: %+v", sheets)
	}
}
