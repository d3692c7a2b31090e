package dataset

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

// ErrNoSheet is returned when a workbook has no sheet to read.
var ErrNoSheet = errors.New("workbook has no readable sheet")

// ErrSheetTooLarge is returned for a workbook whose parts or grid exceed the
// limits below.
var ErrSheetTooLarge = errors.New("sheet is too large to load")

const (
	// maxColumns is the widest sheet the format allows (column XFD).
	maxColumns = 16384
	// maxSheetRows is the tallest sheet the format allows.
	maxSheetRows = 1 << 20
	// maxCells bounds the header width times the rows kept.
	maxCells = 1 << 22
)

// maxPartBytes bounds one decompressed archive entry.
var maxPartBytes = 64 << 20

// isWorkbook reports whether name looks like an Office Open XML workbook.
func isWorkbook(name string) bool {
	return strings.EqualFold(path.Ext(name), ".xlsx")
}

// loadXLSX reads the sheet selected by opt.Sheet (the first sheet when
// empty). The first non-empty row is the header. Cells keep the text Excel
// stores: numbers as written, dates as serial numbers, booleans as
// TRUE/FALSE.
func loadXLSX(name string, data []byte, opt Options) (*Dataset, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ParseError{Name: name, Err: fmt.Errorf("open workbook: %w", err)}
	}
	target, err := sheetPath(zr, opt.Sheet)
	if err != nil {
		return nil, &ParseError{Name: name, Err: err}
	}
	sheetXML, err := zipEntry(zr, target)
	if err != nil {
		return nil, &ParseError{Name: name, Err: err}
	}
	if sheetXML == nil {
		return nil, &ParseError{Name: name, Err: ErrNoSheet}
	}
	sharedXML, err := zipEntry(zr, "xl/sharedStrings.xml")
	if err != nil {
		return nil, &ParseError{Name: name, Err: err}
	}

	maxBody := opt.MaxRows
	if maxBody <= 0 || maxBody > maxSheetRows {
		maxBody = maxSheetRows
	}
	sr := &sheetReader{shared: sharedStrings(sharedXML), maxBody: maxBody}
	if err := sr.read(sheetXML); err != nil {
		return nil, &ParseError{Name: name, Err: fmt.Errorf("read sheet: %w", err)}
	}
	if sr.header == nil {
		return nil, &ParseError{Name: name, Err: ErrNoHeader}
	}
	d := New(name, sr.header, sr.body, opt)
	d.Truncated = sr.truncated
	return d, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// zipEntry returns the decompressed entry, or nil when the archive has no
// entry by that name.
func zipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(io.LimitReader(rc, int64(maxPartBytes)+1))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if len(b) > maxPartBytes {
			return nil, fmt.Errorf("%s expands past %d bytes: %w", name, maxPartBytes, ErrSheetTooLarge)
		}
		return b, nil
	}
	return nil, nil
}

type workbookSheet struct {
	Name string `xml:"name,attr"`
	RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
}

// sheetPath resolves a sheet name to its part inside the archive through
// the workbook relationships.
func sheetPath(zr *zip.Reader, want string) (string, error) {
	wbXML, err := zipEntry(zr, "xl/workbook.xml")
	if err != nil {
		return "", err
	}
	relsXML, err := zipEntry(zr, "xl/_rels/workbook.xml.rels")
	if err != nil {
		return "", err
	}
	var wb struct {
		Sheets []workbookSheet `xml:"sheets>sheet"`
	}
	if len(wbXML) > 0 {
		if err := xml.Unmarshal(wbXML, &wb); err != nil {
			return "", fmt.Errorf("parse workbook: %w", err)
		}
	}
	var rels struct {
		Items []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if len(relsXML) > 0 {
		if err := xml.Unmarshal(relsXML, &rels); err != nil {
			return "", fmt.Errorf("parse workbook relationships: %w", err)
		}
	}
	targets := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		targets[r.ID] = r.Target
	}

	if len(wb.Sheets) == 0 {
		if want != "" {
			return "", fmt.Errorf("sheet %q not found", want)
		}
		// Workbooks written by minimal tools may skip the index.
		return "xl/worksheets/sheet1.xml", nil
	}
	pick := wb.Sheets[0]
	if want != "" {
		found := false
		names := make([]string, len(wb.Sheets))
		for i, s := range wb.Sheets {
			names[i] = s.Name
			if !found && strings.EqualFold(s.Name, want) {
				pick, found = s, true
			}
		}
		if !found {
			return "", fmt.Errorf("sheet %q not found (available: %s)", want, strings.Join(names, ", "))
		}
	}
	target, ok := targets[pick.RID]
	if !ok {
		return "", fmt.Errorf("sheet %q has no part in the workbook", pick.Name)
	}
	return partPath(target), nil
}

// partPath turns a relationship target into an archive entry name. Targets
// are relative to xl/ unless they start with a slash.
func partPath(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join("xl", target)
}

// sharedStrings decodes the string table. Rich text runs of one entry are
// concatenated; phonetic runs are skipped.
func sharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		out      []string
		buf      strings.Builder
		inT      bool
		phonetic int
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inT = true
			case "rPh":
				phonetic++
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inT = false
			case "rPh":
				phonetic--
			case "si":
				out = append(out, buf.String())
			}
		case xml.CharData:
			if inT && phonetic == 0 {
				buf.Write(se)
			}
		}
	}
}

// sheetReader collects the header and body rows of one worksheet. Blank
// rows before the header are dropped; rows skipped inside the body become
// empty rows so positions match the sheet. Body cells right of the header
// are ignored.
type sheetReader struct {
	shared  []string
	maxBody int

	header    []string
	body      [][]string
	truncated bool
	// next is the 1-based number of the row expected next.
	next int
}

// errSheetDone stops the token loop once the row budget is spent.
var errSheetDone = errors.New("sheet done")

func (sr *sheetReader) read(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	sr.next = 1
	var (
		cur []string
		num int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "row":
				num = sr.next
				if n, err := strconv.Atoi(attr(se, "r")); err == nil && n > sr.next {
					num = n
				}
				cur = nil
			case "c":
				if cur, err = sr.cell(dec, se, cur); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if se.Name.Local != "row" {
				continue
			}
			if err := sr.endRow(num, cur); err != nil {
				if errors.Is(err, errSheetDone) {
					return nil
				}
				return err
			}
		}
	}
}

// cell decodes one <c> into its column of cur.
func (sr *sheetReader) cell(dec *xml.Decoder, se xml.StartElement, cur []string) ([]string, error) {
	col := len(cur)
	if ref := attr(se, "r"); ref != "" {
		if col = columnIndex(ref); col < 0 {
			return nil, fmt.Errorf("invalid cell reference %q", ref)
		}
	}
	val, err := cellValue(dec, attr(se, "t"), sr.shared)
	if err != nil {
		return nil, err
	}
	if col >= maxColumns {
		return nil, fmt.Errorf("column %d is past the last column: %w", col+1, ErrSheetTooLarge)
	}
	if sr.header != nil && col >= len(sr.header) {
		return cur, nil
	}
	for len(cur) <= col {
		cur = append(cur, "")
	}
	cur[col] = val
	return cur, nil
}

func (sr *sheetReader) endRow(num int, cur []string) error {
	gap := num - sr.next
	sr.next = num + 1
	if sr.header == nil {
		if blank(cur) {
			return nil
		}
		for i := range cur {
			cur[i] = strings.TrimSpace(cur[i])
		}
		sr.header = cur
		return nil
	}
	for i := 0; i <= gap; i++ {
		if len(sr.body) >= sr.maxBody {
			sr.truncated = true
			return errSheetDone
		}
		if (len(sr.body)+1)*len(sr.header) > maxCells {
			return fmt.Errorf("more than %d cells: %w", maxCells, ErrSheetTooLarge)
		}
		var row []string
		if i == gap {
			row = cur
		}
		sr.body = append(sr.body, row)
	}
	return nil
}

// cellValue consumes a <c> element and returns its text.
func cellValue(dec *xml.Decoder, kind string, shared []string) (string, error) {
	var (
		val     strings.Builder
		capture bool
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch se := tok.(type) {
		case xml.StartElement:
			// <v> holds the value; <is><t> an inline string. <f> is skipped.
			capture = se.Name.Local == "v" || se.Name.Local == "t"
		case xml.EndElement:
			switch se.Name.Local {
			case "v", "t":
				capture = false
			case "c":
				return decodeCell(val.String(), kind, shared), nil
			}
		case xml.CharData:
			if capture {
				val.Write(se)
			}
		}
	}
}

func decodeCell(raw, kind string, shared []string) string {
	switch kind {
	case "s":
		i, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || i < 0 || i >= len(shared) {
			return ""
		}
		return shared[i]
	case "b":
		if strings.TrimSpace(raw) == "1" {
			return "TRUE"
		}
		return "FALSE"
	case "e":
		// Formula errors such as #DIV/0! count as missing.
		return ""
	}
	return raw
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// columnIndex maps a cell reference like "AB12" to its zero-based column.
// It returns -1 when the reference has no column letters and saturates at
// maxColumns for references past the last column.
func columnIndex(ref string) int {
	idx := 0
	for _, c := range strings.ToUpper(ref) {
		if c < 'A' || c > 'Z' {
			break
		}
		idx = idx*26 + int(c-'A'+1)
		if idx > maxColumns {
			return maxColumns
		}
	}
	return idx - 1
}
