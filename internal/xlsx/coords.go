// Package xlsx turns an uploaded workbook into the flat cell grid the rest
// of the application works on: coordinates, merge spans, resolved fill
// colors and cell values.
package xlsx

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCoordinate is returned for malformed cell references such as
// "1A", "A" or "A1B". It aborts the ingestion of the whole workbook.
var ErrInvalidCoordinate = errors.New("invalid cell coordinate")

// ColumnIndex converts a column letter run to its 1-based index.
// A=1 … Z=26, AA=27. The letters form a base-26 number with no zero digit.
func ColumnIndex(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("%w: empty column letters", ErrInvalidCoordinate)
	}
	idx := 0
	for _, r := range letters {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("%w: column %q", ErrInvalidCoordinate, letters)
		}
		idx = idx*26 + int(r-'A') + 1
	}
	return idx, nil
}

// SplitCoordinate splits "B12" into its column letters and row number.
// The coordinate must be exactly one letter run followed by one digit run.
func SplitCoordinate(coord string) (string, int, error) {
	i := 0
	for i < len(coord) && coord[i] >= 'A' && coord[i] <= 'Z' {
		i++
	}
	letters := coord[:i]
	digits := coord[i:]
	if letters == "" || digits == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, coord)
	}
	row := 0
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, coord)
		}
		row = row*10 + int(r-'0')
	}
	if row == 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, coord)
	}
	return letters, row, nil
}

// Span computes the column and row span of a merged range from its corner
// coordinates. A zero component means the range does not extend on that
// axis; nonzero components are already incremented to count-of-cells, so
// callers persist them as-is and must drop zero values.
func Span(start, end string) (colSpan, rowSpan int, err error) {
	startCol, startRow, err := SplitCoordinate(start)
	if err != nil {
		return 0, 0, err
	}
	endCol, endRow, err := SplitCoordinate(end)
	if err != nil {
		return 0, 0, err
	}
	startIdx, err := ColumnIndex(startCol)
	if err != nil {
		return 0, 0, err
	}
	endIdx, err := ColumnIndex(endCol)
	if err != nil {
		return 0, 0, err
	}
	colSpan = endIdx - startIdx
	rowSpan = endRow - startRow
	if colSpan != 0 {
		colSpan++
	}
	if rowSpan != 0 {
		rowSpan++
	}
	return colSpan, rowSpan, nil
}

// splitRange splits a merged range reference "A1:B2" into its corners.
func splitRange(ref string) (string, string, error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: range %q", ErrInvalidCoordinate, ref)
	}
	return parts[0], parts[1], nil
}
