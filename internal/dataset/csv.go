package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Options controls table loading.
type Options struct {
	// MaxRows limits rows kept; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, picked from the file name (.tsv is tab) or sniffed
	// from the header line among ',', ';', '\t'.
	Delimiter rune
	// DecimalSeparator defaults to '.'.
	DecimalSeparator rune
	// ThousandsSeparator is removed before parsing numbers when set.
	ThousandsSeparator rune
	// Sheet selects a worksheet of an .xlsx upload by name; empty reads the
	// first sheet.
	Sheet string
}

// DefaultOptions returns reasonable defaults for uploads.
func DefaultOptions() Options {
	return Options{MaxRows: 200000}
}

// ParseError reports an upload that could not be read as a table.
type ParseError struct {
	Name string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("parse %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("parse upload: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrNoHeader is returned for an input without a header row.
var ErrNoHeader = errors.New("file is empty or has no header row")

// LoadFile reads a CSV, TSV or XLSX file from disk.
func LoadFile(path string, opt Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Name: filepath.Base(path), Err: err}
	}
	defer f.Close()
	return Load(filepath.Base(path), f, opt)
}

// Load reads a table from r. The first record is the header. A name ending
// in .xlsx is read as a workbook; anything else as delimited text.
func Load(name string, r io.Reader, opt Options) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Name: name, Err: fmt.Errorf("read: %w", err)}
	}
	if isWorkbook(name) {
		return loadXLSX(name, data, opt)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(name, text)
	}
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Name: name, Err: ErrNoHeader}
		}
		return nil, &ParseError{Name: name, Err: fmt.Errorf("read header: %w", err)}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) == 0 || (len(header) == 1 && header[0] == "") {
		return nil, &ParseError{Name: name, Err: ErrNoHeader}
	}

	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	var rows [][]string
	truncated := false
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &ParseError{Name: name, Err: fmt.Errorf("read row %d: %w", len(rows)+1, err)}
		}
		if len(rows) >= maxRows {
			truncated = true
			break
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}
	d := New(name, header, rows, opt)
	d.Truncated = truncated
	return d, nil
}

func sniffDelimiter(name, text string) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumeric parses a cell honoring the configured separators. isInt is set
// when the cell has no fractional part or exponent in its text.
func parseNumeric(s string, opt Options) (x float64, isInt bool, ok bool) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if raw == "" {
		return 0, false, false
	}
	if thou := opt.ThousandsSeparator; thou != 0 {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec := opt.DecimalSeparator; dec != 0 && dec != '.' {
		if strings.Contains(raw, ".") {
			return 0, false, false
		}
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return float64(i), true, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false, false
	}
	// "nan"/"inf" spellings are handled as nulls or text, never as numbers here.
	if math.IsNaN(f) {
		return 0, false, false
	}
	return f, false, true
}
