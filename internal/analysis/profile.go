// Package analysis renders a compact textual profile of a dataset for
// embedding in LLM prompts.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/KaramelBytes/storyteller/internal/dataset"
)

// Options controls profile rendering.
type Options struct {
	// HeadRows is how many leading rows to include.
	HeadRows int
	// MaxCellWidth truncates long cell values in the head block; 0 disables.
	MaxCellWidth int
}

// DefaultOptions returns the profile settings used by the prompts.
func DefaultOptions() Options {
	return Options{HeadRows: 5, MaxCellWidth: 40}
}

// Profile is a read-only digest of a dataset's shape, types and statistics.
type Profile struct {
	Name    string
	Rows    int
	Columns []string
	// HeadRows is the number of rows actually shown in Head.
	HeadRows int
	Head     string
	Info     string
	Describe string
}

// String joins the three blocks in the order head, info, describe.
func (p Profile) String() string {
	var b strings.Builder
	b.WriteString(p.Head)
	b.WriteString("\n")
	b.WriteString(p.Info)
	b.WriteString("\n")
	b.WriteString(p.Describe)
	return b.String()
}

// Build profiles d. It is a pure function of the dataset contents: profiling
// the same dataset twice yields identical output.
func Build(d *dataset.Dataset, opt Options) Profile {
	if opt.HeadRows <= 0 {
		opt.HeadRows = 5
	}
	return Profile{
		Name:     d.Name,
		Rows:     d.NumRows(),
		Columns:  d.ColumnNames(),
		HeadRows: min(opt.HeadRows, d.NumRows()),
		Head:     HeadText(d, opt.HeadRows, opt.MaxCellWidth),
		Info:     InfoText(d),
		Describe: DescribeText(d),
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleDefault)
	t.Style().Options = table.OptionsNoBordersAndSeparators
	t.Style().Format.Header = text.FormatDefault
	return t
}

func toRow(cells ...string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

// HeadText renders the first n rows with a leading row index.
func HeadText(d *dataset.Dataset, n, maxWidth int) string {
	if d.NumCols() == 0 {
		return "Empty dataset\n"
	}
	t := newTable()
	t.AppendHeader(toRow(append([]string{""}, d.ColumnNames()...)...))
	if n > d.NumRows() {
		n = d.NumRows()
	}
	for i := 0; i < n; i++ {
		cells := make([]string, 0, d.NumCols()+1)
		cells = append(cells, strconv.Itoa(i))
		for _, c := range d.Columns {
			if c.Null[i] {
				cells = append(cells, "NaN")
				continue
			}
			cells = append(cells, clip(safeVal(c.Raw[i]), maxWidth))
		}
		t.AppendRow(toRow(cells...))
	}
	return t.Render() + "\n"
}

// InfoText lists each column's kind and non-null count.
func InfoText(d *dataset.Dataset) string {
	var b strings.Builder
	if d.Name != "" {
		fmt.Fprintf(&b, "Dataset: %s\n", d.Name)
	}
	if d.NumRows() == 0 {
		b.WriteString("RangeIndex: 0 entries\n")
	} else {
		fmt.Fprintf(&b, "RangeIndex: %d entries, 0 to %d\n", d.NumRows(), d.NumRows()-1)
	}
	fmt.Fprintf(&b, "Data columns (total %d columns):\n", d.NumCols())
	if d.NumCols() > 0 {
		t := newTable()
		t.AppendHeader(toRow("#", "Column", "Non-Null Count", "Dtype"))
		for i, c := range d.Columns {
			t.AppendRow(toRow(strconv.Itoa(i), safeName(c.Name), fmt.Sprintf("%d non-null", c.NonNull()), string(c.Kind)))
		}
		b.WriteString(t.Render())
		b.WriteString("\n")
	}
	kinds := map[dataset.Kind]int{}
	for _, c := range d.Columns {
		kinds[c.Kind]++
	}
	names := make([]string, 0, len(kinds))
	for k, n := range kinds {
		names = append(names, fmt.Sprintf("%s(%d)", k, n))
	}
	sort.Strings(names)
	fmt.Fprintf(&b, "dtypes: %s\n", strings.Join(names, ", "))
	if d.Truncated {
		b.WriteString("note: input was truncated to the row limit\n")
	}
	return b.String()
}

// DescribeText renders count/mean/std/min/quartiles/max for numeric columns.
// Without numeric columns it summarizes the remaining columns by
// count/unique/top/freq instead.
func DescribeText(d *dataset.Dataset) string {
	var numeric []*dataset.Column
	for _, c := range d.Columns {
		if c.Kind.Numeric() {
			numeric = append(numeric, c)
		}
	}
	if len(numeric) == 0 {
		return describeCategorical(d)
	}
	stats := make([]NumSummary, len(numeric))
	header := []string{""}
	for i, c := range numeric {
		stats[i] = summarize(c.Floats())
		header = append(header, safeName(c.Name))
	}
	t := newTable()
	t.AppendHeader(toRow(header...))
	rows := []struct {
		label string
		get   func(NumSummary) float64
	}{
		{"count", func(s NumSummary) float64 { return float64(s.Count) }},
		{"mean", func(s NumSummary) float64 { return s.Mean }},
		{"std", func(s NumSummary) float64 { return s.Std }},
		{"min", func(s NumSummary) float64 { return s.Min }},
		{"25%", func(s NumSummary) float64 { return s.Q1 }},
		{"50%", func(s NumSummary) float64 { return s.Q2 }},
		{"75%", func(s NumSummary) float64 { return s.Q3 }},
		{"max", func(s NumSummary) float64 { return s.Max }},
	}
	for _, r := range rows {
		cells := []string{r.label}
		for _, s := range stats {
			cells = append(cells, formatStat(r.get(s)))
		}
		t.AppendRow(toRow(cells...))
	}
	return t.Render() + "\n"
}

func describeCategorical(d *dataset.Dataset) string {
	if d.NumCols() == 0 {
		return "No columns to describe\n"
	}
	header := []string{""}
	sums := make([]CategorySummary, len(d.Columns))
	for i, c := range d.Columns {
		header = append(header, safeName(c.Name))
		sums[i] = summarizeCategories(c.Raw, c.Null)
	}
	t := newTable()
	t.AppendHeader(toRow(header...))
	count, unique, top, freq := []string{"count"}, []string{"unique"}, []string{"top"}, []string{"freq"}
	for _, s := range sums {
		count = append(count, strconv.Itoa(s.Count))
		unique = append(unique, strconv.Itoa(s.Unique))
		if s.Count == 0 {
			top = append(top, "NaN")
			freq = append(freq, "NaN")
			continue
		}
		top = append(top, clip(safeVal(s.Top), 40))
		freq = append(freq, strconv.Itoa(s.Freq))
	}
	t.AppendRows([]table.Row{toRow(count...), toRow(unique...), toRow(top...), toRow(freq...)})
	return t.Render() + "\n"
}

func formatStat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func clip(s string, maxWidth int) string {
	r := []rune(s)
	if maxWidth <= 3 || len(r) <= maxWidth {
		return s
	}
	return string(r[:maxWidth-3]) + "..."
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\r", " "), "\n", " ") }
