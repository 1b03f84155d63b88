package xlsx

import (
	"encoding/xml"
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"
)

// FillKind discriminates how a cell fill references its color: a
// literal ARGB hex value, an index into the standard 64-entry palette,
// or a workbook theme scheme slot carrying a tint.
type FillKind int

const (
	FillNone FillKind = iota
	FillRGB
	FillIndexed
	FillTheme
)

// Fill is a cell's fill color before resolution.
type Fill struct {
	Kind  FillKind
	Hex   string
	Index int
	Tint  float64
}

// noFillSentinel is the bogus all-zero value some producers write for
// unfilled cells. Treated as "no fill".
const noFillSentinel = "00000000"

// ColorEntry is one resolved palette entry for a document.
type ColorEntry struct {
	Name string
	Hex  string
}

// ColorResolver resolves cell fills against the three source tiers and
// deduplicates the results for one ingestion run. Not safe for concurrent
// use; each run owns its own resolver.
type ColorResolver struct {
	themeFn func() []string // lazily fetched; nil means no theme source
	theme   []string
	themed  bool
	names   map[string]string
	order   []string
	logf    func(format string, args ...any)
}

// NewColorResolver creates a resolver. themeFn supplies the scheme color
// table on first theme-indexed fill; it may be nil, or return nil when
// theme metadata is absent or unparseable.
func NewColorResolver(themeFn func() []string, logf func(format string, args ...any)) *ColorResolver {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &ColorResolver{themeFn: themeFn, names: make(map[string]string), logf: logf}
}

func (r *ColorResolver) themeColors() []string {
	if !r.themed {
		r.themed = true
		if r.themeFn != nil {
			r.theme = r.themeFn()
		}
	}
	return r.theme
}

// Resolve returns the palette name for a fill, registering it on first
// sight. Returns "" for unfilled cells and for unresolvable references;
// it never fails, so a broken style cannot abort an ingestion run.
func (r *ColorResolver) Resolve(fill Fill) string {
	var hex string
	switch fill.Kind {
	case FillNone:
		return ""
	case FillRGB:
		if fill.Hex == "" || fill.Hex == noFillSentinel {
			return ""
		}
		hex = fill.Hex
	case FillIndexed:
		if fill.Index < 0 || fill.Index >= len(excelize.IndexedColorMapping) {
			r.logf("xlsx: indexed color %d out of range, skipping", fill.Index)
			return ""
		}
		hex = "FF" + excelize.IndexedColorMapping[fill.Index]
	case FillTheme:
		theme := r.themeColors()
		if fill.Index < 0 || fill.Index >= len(theme) || theme[fill.Index] == "" {
			r.logf("xlsx: theme color %d unavailable, skipping", fill.Index)
			return ""
		}
		hex = tintByte(fill.Tint) + theme[fill.Index]
	default:
		return ""
	}
	name, ok := r.names[hex]
	if !ok {
		name = "color_" + hex
		r.names[hex] = name
		r.order = append(r.order, hex)
	}
	return name
}

// Entries returns the registered colors in first-seen order.
func (r *ColorResolver) Entries() []ColorEntry {
	entries := make([]ColorEntry, 0, len(r.order))
	for _, hex := range r.order {
		entries = append(entries, ColorEntry{Name: r.names[hex], Hex: hex})
	}
	return entries
}

// tintByte encodes a theme tint as the 2-digit hex prefix byte.
// Values outside [0,1] are clamped rather than rejected.
func tintByte(tint float64) string {
	v := int(math.Round(tint * 255))
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return fmt.Sprintf("%02X", v)
}

// themeXML matches the clrScheme block of xl/theme/theme1.xml. Namespace
// prefixes are ignored by encoding/xml, which matches local names only.
type themeXML struct {
	Scheme struct {
		Dark1   schemeColor `xml:"dk1"`
		Light1  schemeColor `xml:"lt1"`
		Dark2   schemeColor `xml:"dk2"`
		Light2  schemeColor `xml:"lt2"`
		Accent1 schemeColor `xml:"accent1"`
		Accent2 schemeColor `xml:"accent2"`
		Accent3 schemeColor `xml:"accent3"`
		Accent4 schemeColor `xml:"accent4"`
		Accent5 schemeColor `xml:"accent5"`
		Accent6 schemeColor `xml:"accent6"`
	} `xml:"themeElements>clrScheme"`
}

type schemeColor struct {
	Srgb *struct {
		Val string `xml:"val,attr"`
	} `xml:"srgbClr"`
	Sys *struct {
		LastClr string `xml:"lastClr,attr"`
	} `xml:"sysClr"`
}

func (c schemeColor) hex() string {
	// System colors carry the resolved value in lastClr.
	if c.Sys != nil {
		return c.Sys.LastClr
	}
	if c.Srgb != nil {
		return c.Srgb.Val
	}
	return ""
}

// ParseThemeColors extracts the ordered scheme color table from a theme
// part: dark1, light1, dark2, light2, accent1-6.
func ParseThemeColors(data []byte) ([]string, error) {
	var doc themeXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse theme xml: %w", err)
	}
	s := doc.Scheme
	ordered := []schemeColor{
		s.Dark1, s.Light1, s.Dark2, s.Light2,
		s.Accent1, s.Accent2, s.Accent3, s.Accent4, s.Accent5, s.Accent6,
	}
	colors := make([]string, len(ordered))
	for i, c := range ordered {
		colors[i] = c.hex()
	}
	return colors, nil
}
