package dataset

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWorkbook = `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Notes" sheetId="1" r:id="rId1"/><sheet name="Sales" sheetId="2" r:id="rId2"/></sheets>
</workbook>`
	testRels = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="worksheet" Target="worksheets/sheet1.xml"/>
<Relationship Id="rId2" Type="worksheet" Target="/xl/worksheets/sheet2.xml"/>
</Relationships>`
	testShared = `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<si><t>region</t></si><si><t>units</t></si><si><r><t>Nor</t></r><r><t>th</t></r></si><si><t>South</t><rPh><t>x</t></rPh></si>
</sst>`
	testNotes = `<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="inlineStr"><is><t>memo</t></is></c></row>
<row r="2"><c r="A2" t="inlineStr"><is><t>hello</t></is></c></row>
</sheetData></worksheet>`
	testSales = `<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="2"><c r="A2" t="s"><v>0</v></c><c r="B2" t="s"><v>1</v></c><c r="C2" t="inlineStr"><is><t>ok</t></is></c><c r="D2" t="inlineStr"><is><t>total</t></is></c></row>
<row r="3"><c r="A3" t="s"><v>2</v></c><c r="B3"><v>10</v></c><c r="C3" t="b"><v>1</v></c><c r="D3"><f>B3*2</f><v>20</v></c></row>
<row r="4"><c r="A4" t="s"><v>3</v></c><c r="C4" t="b"><v>0</v></c><c r="D4" t="e"><v>#DIV/0!</v></c></row>
</sheetData></worksheet>`
)

func workbook(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func salesWorkbook(t *testing.T) []byte {
	return workbook(t, map[string]string{
		"xl/workbook.xml":            testWorkbook,
		"xl/_rels/workbook.xml.rels": testRels,
		"xl/sharedStrings.xml":       testShared,
		"xl/worksheets/sheet1.xml":   testNotes,
		"xl/worksheets/sheet2.xml":   testSales,
	})
}

func TestLoadXLSXNamedSheet(t *testing.T) {
	opt := DefaultOptions()
	opt.Sheet = "sales"
	d, err := Load("report.xlsx", bytes.NewReader(salesWorkbook(t)), opt)
	require.NoError(t, err)

	assert.Equal(t, "report.xlsx", d.Name)
	assert.Equal(t, []string{"region", "units", "ok", "total"}, d.ColumnNames())
	require.Equal(t, 2, d.NumRows())
	assert.Equal(t, []string{"North", "10", "TRUE", "20"}, d.Row(0))
	assert.Equal(t, []string{"South", "", "FALSE", ""}, d.Row(1))

	units, _ := d.Column("units")
	assert.Equal(t, KindInt, units.Kind)
	assert.Equal(t, 1, units.NonNull())
	ok, _ := d.Column("ok")
	assert.Equal(t, KindBool, ok.Kind)
}

func TestLoadXLSXFirstSheetByDefault(t *testing.T) {
	d, err := Load("report.XLSX", bytes.NewReader(salesWorkbook(t)), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"memo"}, d.ColumnNames())
	assert.Equal(t, [][]string{{"hello"}}, d.Head(5))
}

func TestLoadXLSXErrors(t *testing.T) {
	opt := DefaultOptions()
	opt.Sheet = "Missing"
	_, err := Load("report.xlsx", bytes.NewReader(salesWorkbook(t)), opt)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, err.Error(), `sheet "Missing" not found (available: Notes, Sales)`)

	_, err = Load("broken.xlsx", bytes.NewReader([]byte("not a zip")), DefaultOptions())
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "broken.xlsx", perr.Name)

	empty := workbook(t, map[string]string{
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData></sheetData></worksheet>`,
	})
	_, err = Load("empty.xlsx", bytes.NewReader(empty), DefaultOptions())
	assert.ErrorIs(t, err, ErrNoHeader)

	noLetters := workbook(t, map[string]string{
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData><row r="1"><c r="1" t="inlineStr"><is><t>a</t></is></c></row></sheetData></worksheet>`,
	})
	_, err = Load("bad.xlsx", bytes.NewReader(noLetters), DefaultOptions())
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, err.Error(), `invalid cell reference "1"`)

	pastXFD := workbook(t, map[string]string{
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData><row r="1"><c r="XFE1"><v>1</v></c></row></sheetData></worksheet>`,
	})
	_, err = Load("wide.xlsx", bytes.NewReader(pastXFD), DefaultOptions())
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, ErrSheetTooLarge)
}

func TestLoadXLSXSparseSheetStaysBounded(t *testing.T) {
	sparse := workbook(t, map[string]string{
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData>
<row r="1"><c r="A1" t="inlineStr"><is><t>id</t></is></c></row>
<row r="3"><c r="A3"><v>7</v></c><c r="ZZ3"><v>9</v></c></row>
<row r="1048576"><c r="XFD1048576"><v>1</v></c></row>
</sheetData></worksheet>`,
	})
	opt := DefaultOptions()
	opt.MaxRows = 10
	d, err := Load("sparse.xlsx", bytes.NewReader(sparse), opt)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, d.ColumnNames())
	assert.Equal(t, 10, d.NumRows())
	assert.True(t, d.Truncated)
	assert.Equal(t, []string{""}, d.Row(0))
	assert.Equal(t, []string{"7"}, d.Row(1))

	wide := workbook(t, map[string]string{
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData>
<row r="1"><c r="A1" t="inlineStr"><is><t>id</t></is></c><c r="XFD1" t="inlineStr"><is><t>last</t></is></c></row>
<row r="1048576"><c r="A1048576"><v>1</v></c></row>
</sheetData></worksheet>`,
	})
	_, err = Load("wide.xlsx", bytes.NewReader(wide), DefaultOptions())
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, ErrSheetTooLarge)
}

func TestLoadXLSXDecompressedSizeIsCapped(t *testing.T) {
	old := maxPartBytes
	maxPartBytes = 1 << 10
	t.Cleanup(func() { maxPartBytes = old })

	big := workbook(t, map[string]string{
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData>` + strings.Repeat(" ", 4<<10) + `</sheetData></worksheet>`,
	})
	_, err := Load("bomb.xlsx", bytes.NewReader(big), DefaultOptions())
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, ErrSheetTooLarge)
}

func TestLoadXLSXMaxRows(t *testing.T) {
	opt := DefaultOptions()
	opt.Sheet = "Sales"
	opt.MaxRows = 1
	d, err := Load("report.xlsx", bytes.NewReader(salesWorkbook(t)), opt)
	require.NoError(t, err)
	assert.Equal(t, 1, d.NumRows())
	assert.True(t, d.Truncated)
}

func TestColumnIndex(t *testing.T) {
	for ref, want := range map[string]int{"A1": 0, "C12": 2, "Z3": 25, "AA1": 26, "ab7": 27, "XFD1": 16383, "12": -1, "ZZZZZZZZZZZZZZ1": maxColumns} {
		assert.Equal(t, want, columnIndex(ref), ref)
	}
}
