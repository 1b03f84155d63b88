package xlsx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook wraps an open xlsx file. It combines excelize for values,
// merged ranges, alignment and write-back with a direct read of the
// styles part: excelize resolves fill colors to flat hex on its public
// API, but the color tiers need the raw rgb/indexed/theme discriminator.
//
// A Workbook is owned by a single ingestion or export run.
type Workbook struct {
	file *excelize.File
	data []byte

	xfFills []Fill // cellXf index -> fill reference

	themeLoaded bool
	theme       []string
	logf        func(format string, args ...any)
}

// Open reads a workbook from raw xlsx bytes.
func Open(data []byte, logf func(format string, args ...any)) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	wb := &Workbook{file: f, data: data, logf: logf}
	if wb.logf == nil {
		wb.logf = func(string, ...any) {}
	}
	if err := wb.loadStyles(); err != nil {
		// A workbook without a readable styles part still has values;
		// fills degrade to none.
		wb.logf("xlsx: styles unavailable: %v", err)
	}
	return wb, nil
}

// Close releases the underlying file resources.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// SheetNames returns the worksheet names in file order.
func (w *Workbook) SheetNames() []string {
	return w.file.GetSheetList()
}

// SheetName resolves a zero-based worksheet index.
func (w *Workbook) SheetName(index int) (string, error) {
	sheets := w.file.GetSheetList()
	if index < 0 || index >= len(sheets) {
		return "", fmt.Errorf("worksheet index %d out of range (%d sheets)", index, len(sheets))
	}
	return sheets[index], nil
}

// Rows returns all cell values of a sheet in row order. Rows may have
// unequal lengths; trailing empty cells are not padded.
func (w *Workbook) Rows(sheet string) ([][]string, error) {
	return w.file.GetRows(sheet)
}

// Dimension returns the sheet's used-range extent as column and row
// counts, from the dimension ref. A missing or unparseable ref yields
// zero; callers combine it with the row data and merged ranges.
func (w *Workbook) Dimension(sheet string) (cols, rows int) {
	ref, err := w.file.GetSheetDimension(sheet)
	if err != nil || ref == "" {
		return 0, 0
	}
	corner := ref
	if i := strings.Index(ref, ":"); i >= 0 {
		corner = ref[i+1:]
	}
	col, row, err := SplitCoordinate(corner)
	if err != nil {
		return 0, 0
	}
	idx, err := ColumnIndex(col)
	if err != nil {
		return 0, 0
	}
	return idx, row
}

// MergedRanges returns the sheet's merged ranges as "START:END" references.
func (w *Workbook) MergedRanges(sheet string) ([]string, error) {
	merged, err := w.file.GetMergeCells(sheet)
	if err != nil {
		return nil, fmt.Errorf("merged ranges: %w", err)
	}
	refs := make([]string, 0, len(merged))
	for _, m := range merged {
		refs = append(refs, m.GetStartAxis()+":"+m.GetEndAxis())
	}
	return refs, nil
}

// CellFill returns the raw fill reference of a cell. Unstyled cells and
// style lookup failures yield FillNone.
func (w *Workbook) CellFill(sheet, coord string) Fill {
	styleID, err := w.file.GetCellStyle(sheet, coord)
	if err != nil || styleID < 0 || styleID >= len(w.xfFills) {
		return Fill{}
	}
	return w.xfFills[styleID]
}

// CellAlignment returns the cell's horizontal alignment, or "" when unset.
func (w *Workbook) CellAlignment(sheet, coord string) string {
	styleID, err := w.file.GetCellStyle(sheet, coord)
	if err != nil {
		return ""
	}
	style, err := w.file.GetStyle(styleID)
	if err != nil || style == nil || style.Alignment == nil {
		return ""
	}
	return style.Alignment.Horizontal
}

// ThemeColors returns the workbook's scheme color table, parsing the theme
// part on first use. A missing or malformed theme yields nil without
// error; ingestion carries on without theme colors.
func (w *Workbook) ThemeColors() []string {
	if w.themeLoaded {
		return w.theme
	}
	w.themeLoaded = true
	data, err := w.part("xl/theme/")
	if err != nil {
		w.logf("xlsx: no theme part: %v", err)
		return nil
	}
	colors, err := ParseThemeColors(data)
	if err != nil {
		w.logf("xlsx: %v", err)
		return nil
	}
	w.theme = colors
	return w.theme
}

// SetCellValue overwrites a cell's value, for export write-back.
func (w *Workbook) SetCellValue(sheet, coord, value string) error {
	return w.file.SetCellStr(sheet, coord, value)
}

// Bytes serializes the workbook back to xlsx.
func (w *Workbook) Bytes() ([]byte, error) {
	buf, err := w.file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// part reads the first zip entry whose name starts with the given prefix.
func (w *Workbook) part(prefix string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(w.data), int64(len(w.data)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, prefix) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("no part %q in package", prefix)
}

// stylesXML matches the subset of xl/styles.xml needed to map a cell's
// style index to its raw fill color reference.
type stylesXML struct {
	Fills struct {
		Fill []struct {
			Pattern *struct {
				Type string `xml:"patternType,attr"`
				Fg   *struct {
					RGB     string   `xml:"rgb,attr"`
					Indexed *int     `xml:"indexed,attr"`
					Theme   *int     `xml:"theme,attr"`
					Tint    *float64 `xml:"tint,attr"`
				} `xml:"fgColor"`
			} `xml:"patternFill"`
		} `xml:"fill"`
	} `xml:"fills"`
	CellXfs struct {
		Xf []struct {
			FillID *int `xml:"fillId,attr"`
		} `xml:"xf"`
	} `xml:"cellXfs"`
}

func (w *Workbook) loadStyles() error {
	data, err := w.part("xl/styles.xml")
	if err != nil {
		return err
	}
	var doc stylesXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse styles xml: %w", err)
	}

	fills := make([]Fill, len(doc.Fills.Fill))
	for i, f := range doc.Fills.Fill {
		if f.Pattern == nil || f.Pattern.Type == "none" || f.Pattern.Fg == nil {
			continue
		}
		fg := f.Pattern.Fg
		switch {
		case fg.RGB != "":
			fills[i] = Fill{Kind: FillRGB, Hex: fg.RGB}
		case fg.Indexed != nil:
			fills[i] = Fill{Kind: FillIndexed, Index: *fg.Indexed}
		case fg.Theme != nil:
			tint := 0.0
			if fg.Tint != nil {
				tint = *fg.Tint
			}
			fills[i] = Fill{Kind: FillTheme, Index: *fg.Theme, Tint: tint}
		}
	}

	w.xfFills = make([]Fill, len(doc.CellXfs.Xf))
	for i, xf := range doc.CellXfs.Xf {
		if xf.FillID == nil || *xf.FillID < 0 || *xf.FillID >= len(fills) {
			continue
		}
		w.xfFills[i] = fills[*xf.FillID]
	}
	return nil
}
