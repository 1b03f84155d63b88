package xlsx

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestResolveRGB(t *testing.T) {
	r := NewColorResolver(nil, t.Logf)
	name := r.Resolve(Fill{Kind: FillRGB, Hex: "FFFF0000"})
	require.Equal(t, "color_FFFF0000", name)
	require.Equal(t, []ColorEntry{{Name: "color_FFFF0000", Hex: "FFFF0000"}}, r.Entries())
}

func TestResolveNoFill(t *testing.T) {
	r := NewColorResolver(nil, t.Logf)
	require.Equal(t, "", r.Resolve(Fill{}))
	require.Equal(t, "", r.Resolve(Fill{Kind: FillRGB}))
	// Some producers write an all-zero fill for unfilled cells.
	require.Equal(t, "", r.Resolve(Fill{Kind: FillRGB, Hex: "00000000"}))
	require.Empty(t, r.Entries())
}

func TestResolveDeduplicates(t *testing.T) {
	r := NewColorResolver(nil, t.Logf)
	first := r.Resolve(Fill{Kind: FillRGB, Hex: "FF00FF00"})
	second := r.Resolve(Fill{Kind: FillRGB, Hex: "FF00FF00"})
	require.Equal(t, first, second)
	require.Len(t, r.Entries(), 1)
}

func TestResolveEntryOrder(t *testing.T) {
	r := NewColorResolver(nil, t.Logf)
	r.Resolve(Fill{Kind: FillRGB, Hex: "FF111111"})
	r.Resolve(Fill{Kind: FillRGB, Hex: "FF222222"})
	r.Resolve(Fill{Kind: FillRGB, Hex: "FF111111"})
	entries := r.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "FF111111", entries[0].Hex)
	require.Equal(t, "FF222222", entries[1].Hex)
}

func TestResolveIndexed(t *testing.T) {
	r := NewColorResolver(nil, t.Logf)
	name := r.Resolve(Fill{Kind: FillIndexed, Index: 2})
	require.Equal(t, "color_FF"+excelize.IndexedColorMapping[2], name)

	// Out-of-range indexes degrade to unfilled instead of failing the run.
	require.Equal(t, "", r.Resolve(Fill{Kind: FillIndexed, Index: -1}))
	require.Equal(t, "", r.Resolve(Fill{Kind: FillIndexed, Index: 9999}))
}

func TestResolveTheme(t *testing.T) {
	theme := []string{"000000", "FFFFFF", "1F497D", "EEECE1", "4F81BD", "C0504D", "9BBB59", "8064A2", "4BACC6", "F79646"}
	r := NewColorResolver(func() []string { return theme }, t.Logf)

	require.Equal(t, "color_004F81BD", r.Resolve(Fill{Kind: FillTheme, Index: 4}))
	// tint 0.5 -> round(0.5*255) = 0x80 prefix byte
	require.Equal(t, "color_804F81BD", r.Resolve(Fill{Kind: FillTheme, Index: 4, Tint: 0.5}))
	require.Equal(t, "", r.Resolve(Fill{Kind: FillTheme, Index: 42}))
}

func TestResolveThemeWithoutThemePart(t *testing.T) {
	r := NewColorResolver(func() []string { return nil }, t.Logf)
	require.Equal(t, "", r.Resolve(Fill{Kind: FillTheme, Index: 0}))
}

func TestTintByteClamps(t *testing.T) {
	require.Equal(t, "00", tintByte(0))
	require.Equal(t, "FF", tintByte(1))
	require.Equal(t, "00", tintByte(-0.3))
	require.Equal(t, "FF", tintByte(2.5))
	require.Equal(t, "80", tintByte(0.5))
}

const themeFixture = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<a:theme xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" name="Office">
  <a:themeElements>
    <a:clrScheme name="Office">
      <a:dk1><a:sysClr val="windowText" lastClr="000000"/></a:dk1>
      <a:lt1><a:sysClr val="window" lastClr="FFFFFF"/></a:lt1>
      <a:dk2><a:srgbClr val="1F497D"/></a:dk2>
      <a:lt2><a:srgbClr val="EEECE1"/></a:lt2>
      <a:accent1><a:srgbClr val="4F81BD"/></a:accent1>
      <a:accent2><a:srgbClr val="C0504D"/></a:accent2>
      <a:accent3><a:srgbClr val="9BBB59"/></a:accent3>
      <a:accent4><a:srgbClr val="8064A2"/></a:accent4>
      <a:accent5><a:srgbClr val="4BACC6"/></a:accent5>
      <a:accent6><a:srgbClr val="F79646"/></a:accent6>
      <a:hlink><a:srgbClr val="0000FF"/></a:hlink>
      <a:folHlink><a:srgbClr val="800080"/></a:folHlink>
    </a:clrScheme>
  </a:themeElements>
</a:theme>`

func TestParseThemeColors(t *testing.T) {
	colors, err := ParseThemeColors([]byte(themeFixture))
	require.NoError(t, err)
	require.Equal(t, []string{
		"000000", "FFFFFF", "1F497D", "EEECE1",
		"4F81BD", "C0504D", "9BBB59", "8064A2", "4BACC6", "F79646",
	}, colors)
}

func TestParseThemeColorsMalformed(t *testing.T) {
	_, err := ParseThemeColors([]byte("not xml"))
	require.Error(t, err)
}
