package sandbox

import (
	"fmt"
	"math"
	"sort"

	"go.starlark.net/starlark"

	"github.com/KaramelBytes/storyteller/internal/chart"
)

// pyplotState tracks the current figure the way matplotlib's state machine
// does. plt, sns and .plot accessors of one execution share a single state.
type pyplotState struct {
	figures []*Figure
	current *Figure
}

func (st *pyplotState) newFigure(rows, cols int) *Figure {
	f := &Figure{model: chart.NewFigure(rows, cols), state: st}
	f.wrapAxes()
	st.figures = append(st.figures, f)
	st.current = f
	return f
}

func (st *pyplotState) gcf() *Figure {
	if st.current == nil {
		return st.newFigure(1, 1)
	}
	return st.current
}

func (st *pyplotState) gca() *Axes { return st.gcf().gca() }

// target picks the axes named by an ax= keyword, defaulting to the current axes.
func (st *pyplotState) target(p params) (*Axes, error) {
	switch ax := p.get(-1, "ax").(type) {
	case nil:
		return st.gca(), nil
	case *Axes:
		ax.fig.activate(ax)
		return ax, nil
	default:
		return nil, fmt.Errorf("%s: ax must be an Axes, got %s", p.fn, ax.Type())
	}
}

// Figure is the script-side handle of a chart.Figure.
type Figure struct {
	model   *chart.Figure
	axes    []*Axes
	state   *pyplotState
	current int
}

var _ starlark.HasAttrs = (*Figure)(nil)

// Model returns the figure being drawn.
func (f *Figure) Model() *chart.Figure { return f.model }

func (f *Figure) wrapAxes() {
	f.axes = make([]*Axes, len(f.model.Axes))
	for i, a := range f.model.Axes {
		f.axes[i] = &Axes{model: a, fig: f}
	}
}

func (f *Figure) gca() *Axes {
	if f.current >= len(f.axes) {
		f.current = 0
	}
	return f.axes[f.current]
}

func (f *Figure) activate(a *Axes) {
	f.state.current = f
	for i, x := range f.axes {
		if x == a {
			f.current = i
		}
	}
}

// subplot returns axes number index (1-based) of a rows x cols layout,
// reshaping the figure if its layout differs. The first existing axes is
// kept in place so handles bound before the reshape still draw.
func (f *Figure) subplot(rows, cols, index int) (*Axes, error) {
	if rows < 1 || cols < 1 || index < 1 || index > rows*cols {
		return nil, fmt.Errorf("subplot: invalid position %d of %dx%d", index, rows, cols)
	}
	if f.model.Rows != rows || f.model.Cols != cols {
		first := f.axes[0]
		next := chart.NewFigure(rows, cols)
		f.model.Rows, f.model.Cols = rows, cols
		f.model.Axes = next.Axes
		f.model.Axes[0] = first.model
		old := f.axes
		f.wrapAxes()
		f.axes[0] = old[0]
	}
	f.current = index - 1
	f.state.current = f
	return f.axes[index-1], nil
}

func (f *Figure) String() string        { return fmt.Sprintf("<Figure %s>", f.model) }
func (f *Figure) Type() string          { return "Figure" }
func (f *Figure) Freeze()               {}
func (f *Figure) Truth() starlark.Bool  { return true }
func (f *Figure) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Figure") }

func (f *Figure) Attr(name string) (starlark.Value, error) {
	switch name {
	case "axes":
		out := make([]starlark.Value, len(f.axes))
		for i, a := range f.axes {
			out[i] = a
		}
		return starlark.NewList(out), nil
	case "patch", "canvas":
		return &noop{name: name}, nil
	}
	if fn, ok := figureMethods[name]; ok {
		return bind(f, name, fn), nil
	}
	if figureNoops[name] {
		return noopMethod(name), nil
	}
	return nil, nil
}

func (f *Figure) AttrNames() []string {
	return methodNames(figureMethods, append(setNames(figureNoops), "axes", "patch", "canvas")...)
}

var figureMethods = map[string]method[*Figure]{
	"add_subplot": func(f *Figure, p params) (starlark.Value, error) {
		rows, cols, index, err := subplotSpec(p)
		if err != nil {
			return nil, err
		}
		return f.subplot(rows, cols, index)
	},
	"gca": func(f *Figure, _ params) (starlark.Value, error) { return f.gca(), nil },
	"get_axes": func(f *Figure, _ params) (starlark.Value, error) {
		out := make([]starlark.Value, len(f.axes))
		for i, a := range f.axes {
			out[i] = a
		}
		return starlark.NewList(out), nil
	},
	"suptitle": func(f *Figure, p params) (starlark.Value, error) {
		t, err := p.str(0, "t", "")
		if err != nil {
			return nil, err
		}
		f.model.Title = t
		return starlark.None, nil
	},
	"set_size_inches": func(f *Figure, p params) (starlark.Value, error) {
		if p.has(1, "") {
			w, err := p.float(0, "w", 0)
			if err != nil {
				return nil, err
			}
			h, err := p.float(1, "h", 0)
			if err != nil {
				return nil, err
			}
			f.model.Width, f.model.Height = w, h
			return starlark.None, nil
		}
		vals, err := elements(p.get(0, "w"))
		if err != nil || len(vals) != 2 {
			return nil, fmt.Errorf("set_size_inches: expected (width, height)")
		}
		fl, err := floats(vals)
		if err != nil {
			return nil, err
		}
		f.model.Width, f.model.Height = fl[0], fl[1]
		return starlark.None, nil
	},
	"clf": func(f *Figure, _ params) (starlark.Value, error) {
		for _, a := range f.model.Axes {
			*a = chart.Axes{}
		}
		f.model.Title = ""
		return starlark.None, nil
	},
}

var figureNoops = setOf("tight_layout", "savefig", "set_figwidth", "set_figheight", "subplots_adjust",
	"show", "colorbar", "legend", "text", "set_facecolor", "autofmt_xdate", "align_labels", "set_dpi",
	"supxlabel", "supylabel", "set_tight_layout", "set_constrained_layout")

// subplotSpec parses add_subplot(111), add_subplot(1, 2, 1) and add_subplot().
func subplotSpec(p params) (rows, cols, index int, err error) {
	switch len(p.args) {
	case 0:
		return 1, 1, 1, nil
	case 1:
		n, err := p.int(0, "", 111)
		if err != nil {
			return 0, 0, 0, err
		}
		return n / 100, (n / 10) % 10, n % 10, nil
	}
	if rows, err = p.int(0, "nrows", 1); err != nil {
		return 0, 0, 0, err
	}
	if cols, err = p.int(1, "ncols", 1); err != nil {
		return 0, 0, 0, err
	}
	if index, err = p.int(2, "index", 1); err != nil {
		return 0, 0, 0, err
	}
	return rows, cols, index, nil
}

// Axes is the script-side handle of one plotting area.
type Axes struct {
	model *chart.Axes
	fig   *Figure
}

var _ starlark.HasAttrs = (*Axes)(nil)

func (a *Axes) String() string        { return fmt.Sprintf("<Axes title=%q>", a.model.Title) }
func (a *Axes) Type() string          { return "Axes" }
func (a *Axes) Freeze()               {}
func (a *Axes) Truth() starlark.Bool  { return true }
func (a *Axes) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Axes") }

func (a *Axes) Attr(name string) (starlark.Value, error) {
	switch name {
	case "figure":
		return a.fig, nil
	case "spines", "xaxis", "yaxis", "patch", "title":
		return &noop{name: name}, nil
	}
	if fn, ok := axesMethods[name]; ok {
		return bind(a, name, fn), nil
	}
	if axesNoops[name] {
		return noopMethod(name), nil
	}
	return nil, nil
}

func (a *Axes) AttrNames() []string {
	return methodNames(axesMethods, append(setNames(axesNoops), "figure", "spines", "xaxis", "yaxis", "patch", "title")...)
}

var axesMethods map[string]method[*Axes]

func init() {
	axesMethods = map[string]method[*Axes]{
		"bar":     func(a *Axes, p params) (starlark.Value, error) { return a.bar(p, false) },
		"barh":    func(a *Axes, p params) (starlark.Value, error) { return a.bar(p, true) },
		"scatter": func(a *Axes, p params) (starlark.Value, error) { return a.scatter(p) },
		"plot":    func(a *Axes, p params) (starlark.Value, error) { return a.line(p) },
		"hist":    func(a *Axes, p params) (starlark.Value, error) { return a.hist(p) },
		"boxplot": func(a *Axes, p params) (starlark.Value, error) { return a.boxplot(p) },
		"pie":     func(a *Axes, p params) (starlark.Value, error) { return a.pie(p) },
		"set_title": func(a *Axes, p params) (starlark.Value, error) {
			return setText(p, "label", &a.model.Title)
		},
		"set_xlabel": func(a *Axes, p params) (starlark.Value, error) {
			return setText(p, "xlabel", &a.model.XLabel)
		},
		"set_ylabel": func(a *Axes, p params) (starlark.Value, error) {
			return setText(p, "ylabel", &a.model.YLabel)
		},
		"set": func(a *Axes, p params) (starlark.Value, error) {
			for kw, dst := range map[string]*string{"title": &a.model.Title, "xlabel": &a.model.XLabel, "ylabel": &a.model.YLabel} {
				if v, err := p.str(-1, kw, *dst); err == nil {
					*dst = v
				}
			}
			return starlark.None, nil
		},
		"get_title":  func(a *Axes, _ params) (starlark.Value, error) { return starlark.String(a.model.Title), nil },
		"get_xlabel": func(a *Axes, _ params) (starlark.Value, error) { return starlark.String(a.model.XLabel), nil },
		"get_ylabel": func(a *Axes, _ params) (starlark.Value, error) { return starlark.String(a.model.YLabel), nil },
		"legend": func(a *Axes, _ params) (starlark.Value, error) {
			a.model.Legend = true
			return &noop{name: "legend"}, nil
		},
		"grid": func(a *Axes, p params) (starlark.Value, error) {
			a.model.Grid = p.bool(0, "visible", true)
			return starlark.None, nil
		},
		"get_figure": func(a *Axes, _ params) (starlark.Value, error) { return a.fig, nil },
	}
}

var axesNoops = setOf("tick_params", "set_xticks", "set_yticks", "set_xticklabels", "set_yticklabels",
	"set_xlim", "set_ylim", "axhline", "axvline", "text", "annotate", "invert_yaxis", "invert_xaxis",
	"set_facecolor", "margins", "bar_label", "set_aspect", "set_axisbelow", "label_outer", "autoscale",
	"set_xscale", "set_yscale", "locator_params", "axis", "minorticks_on", "ticklabel_format", "fill_between",
	"axhspan", "axvspan", "get_legend_handles_labels", "set_frame_on", "relim", "autoscale_view")

func setText(p params, kw string, dst *string) (starlark.Value, error) {
	v := p.get(0, kw)
	if v == nil {
		v = p.get(-1, "label")
	}
	if v == nil {
		return nil, fmt.Errorf("%s: missing text", p.fn)
	}
	if s, ok := starlark.AsString(v); ok {
		*dst = s
	} else {
		*dst = label(v)
	}
	return starlark.None, nil
}

// colorOf reads color= leniently: a string, or the first string of a list.
func colorOf(p params) string {
	for _, kw := range []string{"color", "c", "facecolor"} {
		switch v := p.get(-1, kw).(type) {
		case starlark.String:
			return string(v)
		case *starlark.List:
			if v.Len() > 0 {
				if s, ok := starlark.AsString(v.Index(0)); ok {
					return s
				}
			}
		}
	}
	return ""
}

func seriesLabel(p params) string {
	if s, err := p.str(-1, "label", ""); err == nil {
		return s
	}
	return ""
}

func (a *Axes) bar(p params, horizontal bool) (starlark.Value, error) {
	catName, valName, kind := "x", "height", chart.Bar
	if horizontal {
		catName, valName, kind = "y", "width", chart.BarH
	}
	xv, hv := p.get(0, catName), p.get(1, valName)
	if xv == nil || hv == nil {
		return nil, fmt.Errorf("%s: requires %s and %s", p.fn, catName, valName)
	}
	cats, err := elements(xv)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", p.fn, catName, err)
	}
	heights, err := broadcast(hv, len(cats))
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", p.fn, valName, err)
	}
	a.model.Add(&chart.Series{Kind: kind, Label: seriesLabel(p), Color: colorOf(p), Categories: labels(cats), Y: heights})
	return &noop{name: "BarContainer"}, nil
}

// broadcast reads numeric values, repeating a scalar n times.
func broadcast(v starlark.Value, n int) ([]float64, error) {
	if f, ok := number(v); ok {
		out := make([]float64, n)
		for i := range out {
			out[i] = f
		}
		return out, nil
	}
	vals, err := elements(v)
	if err != nil {
		return nil, err
	}
	if len(vals) != n {
		return nil, fmt.Errorf("shape mismatch: %d values for %d positions", len(vals), n)
	}
	return floats(vals)
}

// xySeries builds a scatter or line series. Non-numeric x values become
// evenly spaced categories.
func xySeries(kind chart.SeriesKind, xv, yv starlark.Value) (*chart.Series, error) {
	ys, err := elements(yv)
	if err != nil {
		return nil, fmt.Errorf("y: %w", err)
	}
	yf, err := floats(ys)
	if err != nil {
		return nil, fmt.Errorf("y: %w", err)
	}
	s := &chart.Series{Kind: kind, Y: yf}
	if xv == nil {
		s.X = positions(len(yf))
		return s, nil
	}
	xs, err := elements(xv)
	if err != nil {
		return nil, fmt.Errorf("x: %w", err)
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("x and y must be the same size, got %d and %d", len(xs), len(ys))
	}
	if allQuantities(xs) {
		if s.X, err = floats(xs); err != nil {
			return nil, fmt.Errorf("x: %w", err)
		}
		return s, nil
	}
	s.Categories = labels(xs)
	s.X = positions(len(xs))
	return s, nil
}

func positions(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func (a *Axes) scatter(p params) (starlark.Value, error) {
	xv, yv := p.get(0, "x"), p.get(1, "y")
	if xv == nil || yv == nil {
		return nil, fmt.Errorf("scatter: requires x and y")
	}
	s, err := xySeries(chart.Scatter, xv, yv)
	if err != nil {
		return nil, fmt.Errorf("scatter: %w", err)
	}
	s.Label, s.Color = seriesLabel(p), colorOf(p)
	a.model.Add(s)
	return &noop{name: "PathCollection"}, nil
}

// line handles plot(y), plot(x, y) and a trailing format string.
func (a *Axes) line(p params) (starlark.Value, error) {
	args := p.args
	if n := len(args); n > 0 {
		if _, isFmt := args[n-1].(starlark.String); isFmt {
			args = args[:n-1]
		}
	}
	var xv, yv starlark.Value
	switch len(args) {
	case 0:
		xv, yv = p.get(-1, "x"), p.get(-1, "y")
		if yv == nil {
			return nil, fmt.Errorf("plot: requires data")
		}
	case 1:
		yv = args[0]
		if s, ok := yv.(*Series); ok && !isDefaultIndex(s.index) {
			xv = newSeries(s.indexName, nil, s.index)
		}
	default:
		xv, yv = args[0], args[1]
	}
	s, err := xySeries(chart.Line, xv, yv)
	if err != nil {
		return nil, fmt.Errorf("plot: %w", err)
	}
	s.Label, s.Color = seriesLabel(p), colorOf(p)
	a.model.Add(s)
	return starlark.NewList([]starlark.Value{&noop{name: "Line2D"}}), nil
}

func isDefaultIndex(index []starlark.Value) bool {
	for i, v := range index {
		n, err := starlark.AsInt32(v)
		if err != nil || n != i {
			return false
		}
	}
	return true
}

func (a *Axes) hist(p params) (starlark.Value, error) {
	xv := p.get(0, "x")
	if xv == nil {
		return nil, fmt.Errorf("hist: requires x")
	}
	vals, err := elements(xv)
	if err != nil {
		return nil, fmt.Errorf("hist: %w", err)
	}
	f, err := floats(vals)
	if err != nil {
		return nil, fmt.Errorf("hist: %w", err)
	}
	bins := 10
	if _, isInt := p.get(1, "bins").(starlark.Int); isInt {
		if bins, err = p.int(1, "bins", 10); err != nil {
			return nil, err
		}
	}
	a.model.Add(&chart.Series{Kind: chart.Hist, Label: seriesLabel(p), Color: colorOf(p), Y: f, Bins: bins})
	return &noop{name: "hist"}, nil
}

func (a *Axes) boxplot(p params) (starlark.Value, error) {
	xv := p.get(0, "x")
	if xv == nil {
		return nil, fmt.Errorf("boxplot: requires data")
	}
	groups, err := boxGroups(xv)
	if err != nil {
		return nil, fmt.Errorf("boxplot: %w", err)
	}
	var cats []string
	for _, kw := range []string{"labels", "tick_labels"} {
		if v := p.get(-1, kw); v != nil {
			lv, err := elements(v)
			if err != nil {
				return nil, fmt.Errorf("boxplot: %s: %w", kw, err)
			}
			cats = labels(lv)
		}
	}
	if cats == nil && len(groups) > 1 {
		cats = make([]string, len(groups))
		for i := range cats {
			cats[i] = fmt.Sprint(i + 1)
		}
	}
	a.model.Add(&chart.Series{Kind: chart.Box, Color: colorOf(p), Categories: cats, Groups: groups})
	return &noop{name: "boxplot"}, nil
}

// boxGroups accepts one sequence of numbers or a sequence of sequences.
func boxGroups(v starlark.Value) ([][]float64, error) {
	if f, ok := v.(*Frame); ok {
		var out [][]float64
		for _, c := range f.numericColumns() {
			vals, err := floats(f.data[c])
			if err != nil {
				return nil, err
			}
			out = append(out, vals)
		}
		return out, nil
	}
	vals, err := elements(v)
	if err != nil {
		return nil, err
	}
	if len(vals) > 0 {
		if _, nested := number(vals[0]); !nested {
			out := make([][]float64, len(vals))
			for i, g := range vals {
				gv, err := elements(g)
				if err != nil {
					return nil, err
				}
				if out[i], err = floats(gv); err != nil {
					return nil, err
				}
			}
			return out, nil
		}
	}
	f, err := floats(vals)
	if err != nil {
		return nil, err
	}
	return [][]float64{f}, nil
}

// pie has no circular mark in the chart model; slices are drawn as bars.
func (a *Axes) pie(p params) (starlark.Value, error) {
	xv := p.get(0, "x")
	if xv == nil {
		return nil, fmt.Errorf("pie: requires x")
	}
	vals, err := elements(xv)
	if err != nil {
		return nil, fmt.Errorf("pie: %w", err)
	}
	f, err := floats(vals)
	if err != nil {
		return nil, fmt.Errorf("pie: %w", err)
	}
	var cats []string
	if lv := p.get(-1, "labels"); lv != nil {
		lvals, err := elements(lv)
		if err != nil {
			return nil, fmt.Errorf("pie: labels: %w", err)
		}
		cats = labels(lvals)
	} else if s, ok := xv.(*Series); ok {
		cats = labels(s.index)
	} else {
		cats = labels(rangeIndex(len(f)))
	}
	if len(cats) != len(f) {
		return nil, fmt.Errorf("pie: %d labels for %d values", len(cats), len(f))
	}
	a.model.Add(&chart.Series{Kind: chart.Bar, Color: colorOf(p), Categories: cats, Y: f})
	return starlark.Tuple{&noop{name: "wedges"}, &noop{name: "texts"}}, nil
}

// axesGrid is the array returned by subplots for more than one axes.
type axesGrid struct {
	items []starlark.Value
	rows  int
	cols  int
}

var (
	_ starlark.Indexable = (*axesGrid)(nil)
	_ starlark.Mapping   = (*axesGrid)(nil)
	_ starlark.HasAttrs  = (*axesGrid)(nil)
)

func newAxesGrid(axes []*Axes, rows, cols int) *axesGrid {
	flat := make([]starlark.Value, len(axes))
	for i, a := range axes {
		flat[i] = a
	}
	if rows == 1 || cols == 1 {
		return &axesGrid{items: flat, rows: len(flat), cols: 1}
	}
	g := &axesGrid{rows: rows, cols: cols}
	for r := 0; r < rows; r++ {
		g.items = append(g.items, &axesGrid{items: flat[r*cols : (r+1)*cols], rows: cols, cols: 1})
	}
	return g
}

func (g *axesGrid) String() string             { return fmt.Sprintf("<axes array %dx%d>", g.rows, g.cols) }
func (g *axesGrid) Type() string               { return "ndarray" }
func (g *axesGrid) Freeze()                    {}
func (g *axesGrid) Truth() starlark.Bool       { return len(g.items) > 0 }
func (g *axesGrid) Hash() (uint32, error)      { return 0, fmt.Errorf("unhashable type: ndarray") }
func (g *axesGrid) Len() int                   { return len(g.items) }
func (g *axesGrid) Index(i int) starlark.Value { return g.items[i] }
func (g *axesGrid) Iterate() starlark.Iterator { return &valuesIter{vals: g.items} }
func (g *axesGrid) AttrNames() []string {
	return []string{"flatten", "ravel", "flat", "tolist", "shape"}
}

// Get supports axes[i] and axes[r, c].
func (g *axesGrid) Get(k starlark.Value) (starlark.Value, bool, error) {
	if t, ok := k.(starlark.Tuple); ok {
		var cur starlark.Value = g
		for _, part := range t {
			sub, ok := cur.(*axesGrid)
			if !ok {
				return nil, false, fmt.Errorf("too many indices for axes array")
			}
			v, _, err := sub.Get(part)
			if err != nil {
				return nil, false, err
			}
			cur = v
		}
		return cur, true, nil
	}
	i, err := starlark.AsInt32(k)
	if err != nil {
		return nil, false, fmt.Errorf("axes index must be an int, got %s", k.Type())
	}
	if i < 0 {
		i += len(g.items)
	}
	if i < 0 || i >= len(g.items) {
		return nil, false, fmt.Errorf("index %d is out of bounds for axes array of size %d", i, len(g.items))
	}
	return g.items[i], true, nil
}

func (g *axesGrid) flatten() *axesGrid {
	var flat []starlark.Value
	for _, it := range g.items {
		if sub, ok := it.(*axesGrid); ok {
			flat = append(flat, sub.flatten().items...)
		} else {
			flat = append(flat, it)
		}
	}
	return &axesGrid{items: flat, rows: len(flat), cols: 1}
}

func (g *axesGrid) Attr(name string) (starlark.Value, error) {
	switch name {
	case "flat":
		return g.flatten(), nil
	case "shape":
		if g.cols > 1 {
			return starlark.Tuple{starlark.MakeInt(g.rows), starlark.MakeInt(g.cols)}, nil
		}
		return starlark.Tuple{starlark.MakeInt(g.rows)}, nil
	case "flatten", "ravel":
		return starlark.NewBuiltin(name, func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return g.flatten(), nil
		}), nil
	case "tolist":
		return starlark.NewBuiltin(name, func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return starlark.NewList(append([]starlark.Value(nil), g.items...)), nil
		}), nil
	}
	return nil, nil
}

// noop stands in for matplotlib objects whose effects the chart model does
// not represent: artists, spines, rcParams, style. Every attribute is a
// callable returning another noop.
type noop struct{ name string }

var (
	_ starlark.HasAttrs  = (*noop)(nil)
	_ starlark.HasSetKey = (*noop)(nil)
	_ starlark.Callable  = (*noop)(nil)
	_ starlark.Iterable  = (*noop)(nil)
)

func (n *noop) String() string                   { return "<" + n.name + ">" }
func (n *noop) Type() string                     { return "object" }
func (n *noop) Freeze()                          {}
func (n *noop) Truth() starlark.Bool             { return true }
func (n *noop) Hash() (uint32, error)            { return starlark.String(n.name).Hash() }
func (n *noop) Name() string                     { return n.name }
func (n *noop) AttrNames() []string              { return nil }
func (n *noop) Iterate() starlark.Iterator       { return &valuesIter{} }
func (n *noop) SetKey(_, _ starlark.Value) error { return nil }
func (n *noop) Get(starlark.Value) (starlark.Value, bool, error) {
	return &noop{name: n.name}, true, nil
}
func (n *noop) Attr(name string) (starlark.Value, error) { return noopMethod(name), nil }
func (n *noop) CallInternal(*starlark.Thread, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return &noop{name: n.name}, nil
}

func noopMethod(name string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		return &noop{name: name}, nil
	})
}

func setOf(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func setNames(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Pyplot is the plt module.
type Pyplot struct{ state *pyplotState }

var _ starlark.HasAttrs = (*Pyplot)(nil)

func (m *Pyplot) String() string        { return "<module 'matplotlib.pyplot'>" }
func (m *Pyplot) Type() string          { return "module" }
func (m *Pyplot) Freeze()               {}
func (m *Pyplot) Truth() starlark.Bool  { return true }
func (m *Pyplot) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: module") }

func (m *Pyplot) Attr(name string) (starlark.Value, error) {
	switch name {
	case "style", "rcParams", "cm", "colors":
		return &noop{name: name}, nil
	}
	if fn, ok := pyplotMethods[name]; ok {
		return bind(m, name, fn), nil
	}
	// Drawing functions delegate to the current axes.
	if fn, ok := axesMethods[name]; ok && pyplotAxesDelegates[name] {
		return bind(m, name, func(m *Pyplot, p params) (starlark.Value, error) {
			return fn(m.state.gca(), p)
		}), nil
	}
	if pyplotNoops[name] {
		return noopMethod(name), nil
	}
	return nil, nil
}

func (m *Pyplot) AttrNames() []string {
	extra := append(setNames(pyplotNoops), setNames(pyplotAxesDelegates)...)
	return methodNames(pyplotMethods, append(extra, "style", "rcParams", "cm", "colors")...)
}

var pyplotAxesDelegates = setOf("bar", "barh", "scatter", "plot", "hist", "boxplot", "pie", "legend", "grid")

var pyplotNoops = setOf("show", "close", "tight_layout", "savefig", "xticks", "yticks", "xlim", "ylim",
	"subplots_adjust", "axhline", "axvline", "text", "annotate", "margins", "colorbar", "cla", "ion",
	"ioff", "draw", "pause", "locator_params", "minorticks_on", "tick_params", "autoscale", "get_cmap",
	"axis", "fill_between", "ticklabel_format", "rc", "box")

var pyplotMethods map[string]method[*Pyplot]

func init() {
	pyplotMethods = map[string]method[*Pyplot]{
		"subplots": pltSubplots,
		"figure": func(m *Pyplot, p params) (starlark.Value, error) {
			f := m.state.newFigure(1, 1)
			if err := applyFigsize(f, p); err != nil {
				return nil, err
			}
			return f, nil
		},
		"gcf": func(m *Pyplot, _ params) (starlark.Value, error) { return m.state.gcf(), nil },
		"gca": func(m *Pyplot, _ params) (starlark.Value, error) { return m.state.gca(), nil },
		"subplot": func(m *Pyplot, p params) (starlark.Value, error) {
			rows, cols, index, err := subplotSpec(p)
			if err != nil {
				return nil, err
			}
			return m.state.gcf().subplot(rows, cols, index)
		},
		"title": func(m *Pyplot, p params) (starlark.Value, error) {
			return setText(p, "label", &m.state.gca().model.Title)
		},
		"xlabel": func(m *Pyplot, p params) (starlark.Value, error) {
			return setText(p, "xlabel", &m.state.gca().model.XLabel)
		},
		"ylabel": func(m *Pyplot, p params) (starlark.Value, error) {
			return setText(p, "ylabel", &m.state.gca().model.YLabel)
		},
		"suptitle": func(m *Pyplot, p params) (starlark.Value, error) {
			return setText(p, "t", &m.state.gcf().model.Title)
		},
		"clf": func(m *Pyplot, p params) (starlark.Value, error) {
			return figureMethods["clf"](m.state.gcf(), p)
		},
	}
}

func applyFigsize(f *Figure, p params) error {
	w, h, ok, err := p.size("figsize")
	if err != nil {
		return err
	}
	if ok {
		f.model.Width, f.model.Height = w, h
	}
	return nil
}

// pltSubplots returns (fig, ax) where ax is a single Axes for a 1x1 layout
// and an axes array otherwise.
func pltSubplots(m *Pyplot, p params) (starlark.Value, error) {
	rows, err := p.int(0, "nrows", 1)
	if err != nil {
		return nil, err
	}
	cols, err := p.int(1, "ncols", 1)
	if err != nil {
		return nil, err
	}
	if rows < 1 || cols < 1 || rows*cols > 64 {
		return nil, fmt.Errorf("subplots: invalid layout %dx%d", rows, cols)
	}
	f := m.state.newFigure(rows, cols)
	if err := applyFigsize(f, p); err != nil {
		return nil, err
	}
	if rows == 1 && cols == 1 {
		return starlark.Tuple{f, f.axes[0]}, nil
	}
	return starlark.Tuple{f, newAxesGrid(f.axes, rows, cols)}, nil
}

// plotAccessor is the .plot attribute of a Frame or Series. It is callable
// as df.plot(kind="bar") and exposes df.plot.bar() style methods.
type plotAccessor struct {
	target starlark.Value
	state  *pyplotState
}

var (
	_ starlark.Callable = (*plotAccessor)(nil)
	_ starlark.HasAttrs = (*plotAccessor)(nil)
)

var plotKinds = []string{"line", "bar", "barh", "scatter", "hist", "box", "pie", "area"}

func (pa *plotAccessor) String() string        { return "<plot accessor>" }
func (pa *plotAccessor) Type() string          { return "PlotAccessor" }
func (pa *plotAccessor) Freeze()               {}
func (pa *plotAccessor) Truth() starlark.Bool  { return true }
func (pa *plotAccessor) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: PlotAccessor") }
func (pa *plotAccessor) Name() string          { return "plot" }
func (pa *plotAccessor) AttrNames() []string   { return plotKinds }

func (pa *plotAccessor) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	p := newParams(thread, starlark.NewBuiltin("plot", nil), args, kwargs)
	kind, err := p.str(-1, "kind", "line")
	if err != nil {
		return nil, err
	}
	return pa.draw(thread, kind, p)
}

func (pa *plotAccessor) Attr(name string) (starlark.Value, error) {
	for _, k := range plotKinds {
		if k == name {
			return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				return pa.draw(thread, name, newParams(thread, b, args, kwargs))
			}), nil
		}
	}
	return nil, nil
}

func (pa *plotAccessor) draw(thread *starlark.Thread, kind string, p params) (starlark.Value, error) {
	st := pa.state
	if st == nil {
		st = stateOf(thread)
	}
	if st == nil {
		return nil, fmt.Errorf("plot: no plotting state")
	}
	if p.get(-1, "ax") == nil && p.has(-1, "figsize") {
		f := st.newFigure(1, 1)
		if err := applyFigsize(f, p); err != nil {
			return nil, err
		}
	}
	ax, err := st.target(p)
	if err != nil {
		return nil, err
	}
	var series []*chart.Series
	switch t := pa.target.(type) {
	case *Series:
		series, err = seriesPlot(t, kind)
	case *Frame:
		series, err = framePlot(t, kind, p, ax)
	default:
		err = fmt.Errorf("plot: unsupported target %s", pa.target.Type())
	}
	if err != nil {
		return nil, fmt.Errorf("plot(kind=%q): %w", kind, err)
	}
	color := colorOf(p)
	for _, s := range series {
		if s.Color == "" {
			s.Color = color
		}
		ax.model.Add(s)
	}
	if len(series) > 1 || p.bool(-1, "legend", false) {
		ax.model.Legend = true
	}
	for kw, dst := range map[string]*string{"title": &ax.model.Title, "xlabel": &ax.model.XLabel, "ylabel": &ax.model.YLabel} {
		if v, err := p.str(-1, kw, ""); err == nil && v != "" {
			*dst = v
		}
	}
	return ax, nil
}

func seriesPlot(s *Series, kind string) ([]*chart.Series, error) {
	var x starlark.Value
	if !isDefaultIndex(s.index) {
		x = newSeries(s.indexName, nil, s.index)
	}
	switch kind {
	case "line", "area":
		cs, err := xySeries(chart.Line, x, s)
		if err != nil {
			return nil, err
		}
		cs.Label = s.name
		return []*chart.Series{cs}, nil
	case "scatter":
		cs, err := xySeries(chart.Scatter, x, s)
		if err != nil {
			return nil, err
		}
		return []*chart.Series{cs}, nil
	case "bar", "barh", "pie":
		y, err := floats(s.values)
		if err != nil {
			return nil, err
		}
		k := chart.Bar
		if kind == "barh" {
			k = chart.BarH
		}
		return []*chart.Series{{Kind: k, Label: s.name, Categories: labels(s.index), Y: y}}, nil
	case "hist":
		return []*chart.Series{{Kind: chart.Hist, Label: s.name, Y: s.present(), Bins: 10}}, nil
	case "box":
		return []*chart.Series{{Kind: chart.Box, Categories: []string{s.name}, Groups: [][]float64{s.present()}}}, nil
	}
	return nil, fmt.Errorf("unsupported kind")
}

func framePlot(f *Frame, kind string, p params, ax *Axes) ([]*chart.Series, error) {
	xName, err := p.str(-1, "x", "")
	if err != nil {
		return nil, err
	}
	yNames, err := p.strs(-1, "y")
	if err != nil {
		return nil, err
	}
	if len(yNames) == 0 {
		for _, c := range f.numericColumns() {
			if c != xName {
				yNames = append(yNames, c)
			}
		}
	}
	if len(yNames) == 0 {
		return nil, fmt.Errorf("no numeric data to plot")
	}
	var x *Series
	if xName != "" {
		if x, err = f.column(xName); err != nil {
			return nil, err
		}
		if ax.model.XLabel == "" {
			ax.model.XLabel = xName
		}
	} else if !isDefaultIndex(f.index) {
		x = newSeries(f.indexName, nil, f.index)
		if ax.model.XLabel == "" {
			ax.model.XLabel = f.indexName
		}
	}
	if kind == "box" {
		s := &chart.Series{Kind: chart.Box, Categories: yNames}
		for _, y := range yNames {
			col, err := f.column(y)
			if err != nil {
				return nil, err
			}
			s.Groups = append(s.Groups, col.present())
		}
		return []*chart.Series{s}, nil
	}
	if kind == "scatter" && (x == nil || len(yNames) != 1) {
		return nil, fmt.Errorf("scatter requires x and a single y column")
	}
	var out []*chart.Series
	for _, y := range yNames {
		col, err := f.column(y)
		if err != nil {
			return nil, err
		}
		col.index = f.index
		if x != nil {
			col = &Series{name: col.name, indexName: x.name, index: x.values, values: col.values}
		}
		ss, err := seriesPlot(col, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, ss...)
	}
	if len(out) == 1 && ax.model.YLabel == "" && kind != "hist" {
		ax.model.YLabel = yNames[0]
	}
	return out, nil
}

const stateKey = "storyteller.pyplot"

// stateOf returns the plotting state attached to a thread by Execute.
func stateOf(thread *starlark.Thread) *pyplotState {
	if thread == nil {
		return nil
	}
	st, _ := thread.Local(stateKey).(*pyplotState)
	return st
}

// regression returns the least-squares line through the points, used by
// sns.regplot.
func regression(xs, ys []float64) (slope, intercept float64, ok bool) {
	var n, sx, sy, sxx, sxy float64
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		n++
		sx += xs[i]
		sy += ys[i]
		sxx += xs[i] * xs[i]
		sxy += xs[i] * ys[i]
	}
	den := n*sxx - sx*sx
	if n < 2 || den == 0 {
		return 0, 0, false
	}
	slope = (n*sxy - sx*sy) / den
	return slope, (sy - slope*sx) / n, true
}
