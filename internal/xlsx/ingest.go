package xlsx

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// CellRecord is one emitted grid cell. Span values of 0 mean the cell is
// not merged on that axis and must not be persisted as a span.
type CellRecord struct {
	Coordinate string
	Value      string
	ColorName  string
	RowSpan    int
	ColumnSpan int
	Alignment  string
	First      bool
	Last       bool
}

// Result is the output of one ingestion run: the ordered cell list and
// the document's deduplicated color palette.
type Result struct {
	Cells  []CellRecord
	Colors []ColorEntry
}

type span struct {
	cols, rows int
}

// Ingest walks the worksheet at the given zero-based index and produces
// the normalized cell grid. The walk is rectangular over the sheet's
// full extent: blank rows and trailing blank cells still emit
// empty-value cells. Merged regions emit only their top-left
// coordinate, carrying the region's spans; every covered coordinate is
// omitted. Exactly one cell is marked First and one Last.
func Ingest(wb *Workbook, worksheet int, logf func(format string, args ...any)) (*Result, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	sheet, err := wb.SheetName(worksheet)
	if err != nil {
		return nil, err
	}

	refs, err := wb.MergedRanges(sheet)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]bool)
	startCells := make(map[string]span)
	// The row data alone undersells the grid: fully blank rows come back
	// as empty slices and trailing blank rows not at all, and a merged
	// range may sit past the last value. The extent is the max of the
	// dimension ref, the row data and the merge corners.
	maxCol, maxRow := wb.Dimension(sheet)
	for _, ref := range refs {
		start, end, err := splitRange(ref)
		if err != nil {
			return nil, err
		}
		colSpan, rowSpan, err := Span(start, end)
		if err != nil {
			return nil, err
		}
		startCells[start] = span{cols: colSpan, rows: rowSpan}
		if err := coverRange(start, end, skip); err != nil {
			return nil, err
		}
		endCol, endRow, err := SplitCoordinate(end)
		if err != nil {
			return nil, err
		}
		endIdx, err := ColumnIndex(endCol)
		if err != nil {
			return nil, err
		}
		if endIdx > maxCol {
			maxCol = endIdx
		}
		if endRow > maxRow {
			maxRow = endRow
		}
	}

	resolver := NewColorResolver(wb.ThemeColors, logf)

	rows, err := wb.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) > maxRow {
		maxRow = len(rows)
	}
	for _, row := range rows {
		if len(row) > maxCol {
			maxCol = len(row)
		}
	}

	var cells []CellRecord
	for rowIdx := 0; rowIdx < maxRow; rowIdx++ {
		for colIdx := 0; colIdx < maxCol; colIdx++ {
			coord, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d col %d", ErrInvalidCoordinate, rowIdx+1, colIdx+1)
			}
			if skip[coord] {
				continue
			}
			value := ""
			if rowIdx < len(rows) && colIdx < len(rows[rowIdx]) {
				value = rows[rowIdx][colIdx]
			}
			rec := CellRecord{
				Coordinate: coord,
				Value:      value,
				ColorName:  resolver.Resolve(wb.CellFill(sheet, coord)),
				Alignment:  wb.CellAlignment(sheet, coord),
			}
			if sp, ok := startCells[coord]; ok {
				rec.ColumnSpan = sp.cols
				rec.RowSpan = sp.rows
			}
			cells = append(cells, rec)
		}
	}
	if len(cells) > 0 {
		cells[0].First = true
		cells[len(cells)-1].Last = true
	}
	return &Result{Cells: cells, Colors: resolver.Entries()}, nil
}

// coverRange adds every coordinate of a merged range except its start to
// the skip set.
func coverRange(start, end string, skip map[string]bool) error {
	startCol, startRow, err := SplitCoordinate(start)
	if err != nil {
		return err
	}
	endCol, endRow, err := SplitCoordinate(end)
	if err != nil {
		return err
	}
	startIdx, err := ColumnIndex(startCol)
	if err != nil {
		return err
	}
	endIdx, err := ColumnIndex(endCol)
	if err != nil {
		return err
	}
	for r := startRow; r <= endRow; r++ {
		for c := startIdx; c <= endIdx; c++ {
			if r == startRow && c == startIdx {
				continue
			}
			coord, err := excelize.CoordinatesToCellName(c, r)
			if err != nil {
				return fmt.Errorf("%w: range %s:%s", ErrInvalidCoordinate, start, end)
			}
			skip[coord] = true
		}
	}
	return nil
}
