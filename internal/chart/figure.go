// Package chart holds a small matplotlib-shaped figure model and renders it
// to PNG or SVG with gonum/plot.
package chart

import (
	"fmt"
	"strings"
)

// SeriesKind names the mark used to draw a series.
type SeriesKind string

const (
	Bar     SeriesKind = "bar"
	BarH    SeriesKind = "barh"
	Scatter SeriesKind = "scatter"
	Line    SeriesKind = "line"
	Hist    SeriesKind = "hist"
	Box     SeriesKind = "box"
)

// Series is one drawn data set.
//
// Bar and BarH use Categories with Y as heights. Scatter and Line use X and Y;
// when Categories is set the X values are category positions. Hist bins Y.
// Box draws one box per entry of Groups, labeled by Categories.
type Series struct {
	Kind       SeriesKind
	Label      string
	Color      string
	Categories []string
	X          []float64
	Y          []float64
	Groups     [][]float64
	Bins       int
}

// Len returns the number of data points in the series.
func (s *Series) Len() int {
	switch s.Kind {
	case Box:
		n := 0
		for _, g := range s.Groups {
			n += len(g)
		}
		return n
	default:
		return len(s.Y)
	}
}

// Axes is a single plotting area.
type Axes struct {
	Title  string
	XLabel string
	YLabel string
	Legend bool
	Grid   bool
	Series []*Series
}

// Add appends s and returns it for further styling.
func (a *Axes) Add(s *Series) *Series {
	a.Series = append(a.Series, s)
	return s
}

// Figure is a grid of axes, row-major.
type Figure struct {
	Title string
	Rows  int
	Cols  int
	// Width and Height are in inches; zero falls back to the render options.
	Width  float64
	Height float64
	Axes   []*Axes
}

// NewFigure creates a figure with rows*cols empty axes. Non-positive
// dimensions become 1.
func NewFigure(rows, cols int) *Figure {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	f := &Figure{Rows: rows, Cols: cols, Axes: make([]*Axes, rows*cols)}
	for i := range f.Axes {
		f.Axes[i] = &Axes{}
	}
	return f
}

// Ax returns the axes at position i in row-major order.
func (f *Figure) Ax(i int) (*Axes, error) {
	if i < 0 || i >= len(f.Axes) {
		return nil, fmt.Errorf("axes index %d out of range [0,%d)", i, len(f.Axes))
	}
	return f.Axes[i], nil
}

// Empty reports whether no series has been drawn on any axes.
func (f *Figure) Empty() bool {
	for _, a := range f.Axes {
		if len(a.Series) > 0 {
			return false
		}
	}
	return true
}

// String summarizes the figure layout for logs.
func (f *Figure) String() string {
	kinds := make([]string, 0)
	for _, a := range f.Axes {
		for _, s := range a.Series {
			kinds = append(kinds, string(s.Kind))
		}
	}
	if len(kinds) == 0 {
		return fmt.Sprintf("figure %dx%d (empty)", f.Rows, f.Cols)
	}
	return fmt.Sprintf("figure %dx%d [%s]", f.Rows, f.Cols, strings.Join(kinds, ","))
}
