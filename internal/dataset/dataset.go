// Package dataset holds an uploaded table in memory with inferred column kinds.
package dataset

import (
	"math"
	"slices"
	"strconv"
)

// Kind is the inferred type of a column. Names follow the dtype labels
// analysts expect to see in a profile.
type Kind string

const (
	KindInt      Kind = "int64"
	KindFloat    Kind = "float64"
	KindBool     Kind = "bool"
	KindDatetime Kind = "datetime"
	KindObject   Kind = "object"
)

// Numeric reports whether values of this kind have a float representation.
func (k Kind) Numeric() bool { return k == KindInt || k == KindFloat }

// Column is a named column with its raw cells and, for numeric kinds, parsed values.
type Column struct {
	Name string
	Kind Kind
	// Raw holds the trimmed cell text, one entry per row.
	Raw []string
	// Null marks missing cells.
	Null []bool
	// Num holds parsed values for numeric columns; NaN where the cell is null.
	Num []float64
}

// NonNull returns the number of non-missing cells.
func (c *Column) NonNull() int {
	n := 0
	for _, null := range c.Null {
		if !null {
			n++
		}
	}
	return n
}

// Floats returns the non-missing numeric values in row order.
func (c *Column) Floats() []float64 {
	if !c.Kind.Numeric() {
		return nil
	}
	out := make([]float64, 0, len(c.Num))
	for _, v := range c.Num {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Dataset is an immutable in-memory table. Nothing in this module mutates a
// Dataset after Load returns it.
type Dataset struct {
	Name    string
	Columns []*Column
	rows    int
	// Truncated is set when MaxRows cut the input short.
	Truncated bool
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int { return d.rows }

// NumCols returns the column count.
func (d *Dataset) NumCols() int { return len(d.Columns) }

// ColumnNames returns column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks a column up by exact name.
func (d *Dataset) Column(name string) (*Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Row returns the raw cells of row i.
func (d *Dataset) Row(i int) []string {
	row := make([]string, len(d.Columns))
	for j, c := range d.Columns {
		row[j] = c.Raw[i]
	}
	return row
}

// Head returns up to n leading rows.
func (d *Dataset) Head(n int) [][]string {
	if n > d.rows {
		n = d.rows
	}
	if n < 0 {
		n = 0
	}
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		out[i] = d.Row(i)
	}
	return out
}

// New builds a Dataset from a header and rows of cells, inferring column kinds.
// Short rows are padded with nulls and long rows are cut to the header width.
func New(name string, header []string, rows [][]string, opt Options) *Dataset {
	d := &Dataset{Name: name, rows: len(rows)}
	d.Columns = make([]*Column, len(header))
	for j, h := range header {
		c := &Column{
			Name: columnName(h, j),
			Raw:  make([]string, len(rows)),
			Null: make([]bool, len(rows)),
		}
		for i, rec := range rows {
			v := ""
			if j < len(rec) {
				v = rec[j]
			}
			c.Raw[i] = v
			c.Null[i] = isNull(v)
		}
		inferKind(c, opt)
		d.Columns[j] = c
	}
	return d
}

func columnName(h string, idx int) string {
	if h == "" {
		return "Unnamed: " + strconv.Itoa(idx)
	}
	return h
}

// nullMarkers are the cell texts read as missing values.
var nullMarkers = []string{"", "NA", "N/A", "n/a", "NaN", "nan", "null", "NULL", "None", "-"}

func isNull(v string) bool { return slices.Contains(nullMarkers, v) }

// inferKind picks the narrowest kind that every non-null cell satisfies.
func inferKind(c *Column, opt Options) {
	ints, floats, bools, times, seen := true, true, true, true, 0
	nums := make([]float64, len(c.Raw))
	for i, v := range c.Raw {
		if c.Null[i] {
			nums[i] = math.NaN()
			continue
		}
		seen++
		x, isInt, ok := parseNumeric(v, opt)
		if ok {
			nums[i] = x
			if !isInt {
				ints = false
			}
		} else {
			ints, floats = false, false
		}
		if !isBool(v) {
			bools = false
		}
		if times {
			if _, ok := parseTimeMaybe(v); !ok {
				times = false
			}
		}
	}
	switch {
	case seen == 0:
		c.Kind = KindObject
	case ints:
		c.Kind = KindInt
	case floats:
		c.Kind = KindFloat
	case bools:
		c.Kind = KindBool
	case times:
		c.Kind = KindDatetime
	default:
		c.Kind = KindObject
	}
	if c.Kind.Numeric() {
		c.Num = nums
	}
}

func isBool(v string) bool {
	switch v {
	case "true", "false", "True", "False", "TRUE", "FALSE":
		return true
	}
	return false
}
