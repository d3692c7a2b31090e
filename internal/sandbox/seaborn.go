package sandbox

import (
	"fmt"
	"math"
	"sort"

	"go.starlark.net/starlark"

	"github.com/KaramelBytes/storyteller/internal/chart"
)

// Seaborn is the sns module. Every plotting function draws on the axes given
// by ax= or the current axes, and returns that axes.
type Seaborn struct{ state *pyplotState }

var _ starlark.HasAttrs = (*Seaborn)(nil)

func (m *Seaborn) String() string        { return "<module 'seaborn'>" }
func (m *Seaborn) Type() string          { return "module" }
func (m *Seaborn) Freeze()               {}
func (m *Seaborn) Truth() starlark.Bool  { return true }
func (m *Seaborn) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: module") }

func (m *Seaborn) Attr(name string) (starlark.Value, error) {
	if fn, ok := seabornPlots[name]; ok {
		return bind(m, name, func(m *Seaborn, p params) (starlark.Value, error) {
			ax, err := m.state.target(p)
			if err != nil {
				return nil, err
			}
			data, err := frameArg(p)
			if err != nil {
				return nil, err
			}
			if err := fn(ax, data, p); err != nil {
				return nil, fmt.Errorf("sns.%s: %w", name, err)
			}
			return ax, nil
		}), nil
	}
	if seabornUnsupported[name] {
		return starlark.NewBuiltin(name, func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return nil, fmt.Errorf("sns.%s is not supported; draw a bar, line, scatter, hist or box chart instead", name)
		}), nil
	}
	switch name {
	case "color_palette":
		return bind(m, name, seabornPalette), nil
	case "axes_style", "plotting_context":
		return noopMethod(name), nil
	}
	if seabornNoops[name] {
		return noopMethod(name), nil
	}
	return nil, nil
}

func (m *Seaborn) AttrNames() []string {
	var names []string
	for k := range seabornPlots {
		names = append(names, k)
	}
	names = append(names, setNames(seabornNoops)...)
	names = append(names, setNames(seabornUnsupported)...)
	return append(names, "color_palette", "axes_style", "plotting_context")
}

var seabornNoops = setOf("set_theme", "set_style", "set", "set_palette", "set_context", "despine", "reset_defaults")

var seabornUnsupported = setOf("heatmap", "clustermap", "pairplot", "jointplot", "catplot", "relplot",
	"lmplot", "displot", "FacetGrid", "PairGrid", "JointGrid", "kdeplot", "swarmplot", "stripplot")

type seabornPlot func(ax *Axes, data *Frame, p params) error

var seabornPlots map[string]seabornPlot

func init() {
	seabornPlots = map[string]seabornPlot{
		"barplot":     snsBarplot,
		"countplot":   snsCountplot,
		"scatterplot": snsScatterplot,
		"lineplot":    snsLineplot,
		"histplot":    snsHistplot,
		"boxplot":     snsBoxplot,
		"violinplot":  snsBoxplot,
		"regplot":     snsRegplot,
	}
}

// frameArg returns data= or the first positional argument as a frame. A
// series or plain sequence becomes a one-column frame, as seaborn accepts
// sns.histplot(df["price"]).
func frameArg(p params) (*Frame, error) {
	v := p.get(-1, "data")
	if v == nil && len(p.args) > 0 {
		v = p.args[0]
	}
	switch v := v.(type) {
	case nil:
		return nil, nil
	case *Frame:
		return v, nil
	case *Series:
		name := v.name
		if name == "" {
			name = "0"
		}
		f := newFrame(v.index)
		f.addColumn(name, v.values)
		return f, nil
	case *starlark.List, starlark.Tuple:
		vals, err := elements(v)
		if err != nil {
			return nil, err
		}
		f := newFrame(nil)
		f.addColumn("0", append([]starlark.Value(nil), vals...))
		return f, nil
	default:
		return nil, fmt.Errorf("data must be a DataFrame, got %s", v.Type())
	}
}

// vector resolves x=, y= or hue= against data. Strings name columns; anything
// else is taken as the values themselves.
func vector(data *Frame, p params, name string) ([]starlark.Value, string, error) {
	v := p.get(-1, name)
	if v == nil {
		return nil, "", nil
	}
	if s, ok := starlark.AsString(v); ok {
		if data == nil {
			return nil, "", fmt.Errorf("%s=%q needs data=", name, s)
		}
		vals, ok := data.data[s]
		if !ok {
			return nil, "", fmt.Errorf("KeyError: column %q not found", s)
		}
		return vals, s, nil
	}
	vals, err := elements(v)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", name, err)
	}
	if sr, ok := v.(*Series); ok {
		return vals, sr.name, nil
	}
	return vals, "", nil
}

func setLabels(ax *Axes, x, y string) {
	if ax.model.XLabel == "" {
		ax.model.XLabel = x
	}
	if ax.model.YLabel == "" {
		ax.model.YLabel = y
	}
}

// categoryOrder lists distinct non-missing categories in first-appearance
// order, or numerically sorted when they are all numbers, unless order= names
// them explicitly.
func categoryOrder(vals []starlark.Value, p params) ([]starlark.Value, error) {
	if ov := p.get(-1, "order"); ov != nil {
		return elements(ov)
	}
	var cats []starlark.Value
	for _, v := range distinct(vals) {
		if !isMissing(v) {
			cats = append(cats, v)
		}
	}
	if allQuantities(cats) {
		sort.SliceStable(cats, func(i, j int) bool { return less(cats[i], cats[j]) })
	}
	return cats, nil
}

func bucket(keys []starlark.Value) map[string][]int {
	out := map[string][]int{}
	for i, k := range keys {
		id := valueKey(k)
		out[id] = append(out[id], i)
	}
	return out
}

func estimatorOf(p params) string {
	switch e := p.get(-1, "estimator").(type) {
	case starlark.String:
		return string(e)
	case *starlark.Builtin:
		return e.Name()
	}
	return "mean"
}

// orient decides whether the categorical axis is y: a numeric x with a
// categorical y draws horizontally.
func orient(xs, ys []starlark.Value, p params) bool {
	if o, err := p.str(-1, "orient", ""); err == nil && o != "" {
		return o == "h" || o == "y"
	}
	return xs != nil && ys != nil && allQuantities(xs) && !allQuantities(ys)
}

func snsBarplot(ax *Axes, data *Frame, p params) error {
	xs, xName, err := vector(data, p, "x")
	if err != nil {
		return err
	}
	ys, yName, err := vector(data, p, "y")
	if err != nil {
		return err
	}
	if xs == nil || ys == nil {
		return fmt.Errorf("requires x and y")
	}
	if len(xs) != len(ys) {
		return fmt.Errorf("x and y must be the same length")
	}
	horizontal := orient(xs, ys, p)
	catVals, numVals, kind := xs, ys, chart.Bar
	if horizontal {
		catVals, numVals, kind = ys, xs, chart.BarH
	}
	nums, err := floats(numVals)
	if err != nil {
		return err
	}
	cats, err := categoryOrder(catVals, p)
	if err != nil {
		return err
	}
	est := estimatorOf(p)
	rows := bucket(catVals)
	heights := make([]float64, len(cats))
	for i, c := range cats {
		var group []float64
		for _, r := range rows[valueKey(c)] {
			if !math.IsNaN(nums[r]) {
				group = append(group, nums[r])
			}
		}
		heights[i] = aggregate(est, group)
	}
	ax.model.Add(&chart.Series{Kind: kind, Color: colorOf(p), Categories: labels(cats), Y: heights})
	setLabels(ax, xName, yName)
	return nil
}

func snsCountplot(ax *Axes, data *Frame, p params) error {
	vals, name, err := vector(data, p, "x")
	if err != nil {
		return err
	}
	kind := chart.Bar
	if vals == nil {
		if vals, name, err = vector(data, p, "y"); err != nil {
			return err
		}
		kind = chart.BarH
	}
	if vals == nil {
		return fmt.Errorf("requires x or y")
	}
	cats, err := categoryOrder(vals, p)
	if err != nil {
		return err
	}
	rows := bucket(vals)
	counts := make([]float64, len(cats))
	for i, c := range cats {
		counts[i] = float64(len(rows[valueKey(c)]))
	}
	ax.model.Add(&chart.Series{Kind: kind, Color: colorOf(p), Categories: labels(cats), Y: counts})
	if kind == chart.Bar {
		setLabels(ax, name, "count")
	} else {
		setLabels(ax, "count", name)
	}
	return nil
}

func xyVectors(data *Frame, p params) (xs, ys []starlark.Value, xName, yName string, err error) {
	if xs, xName, err = vector(data, p, "x"); err != nil {
		return
	}
	if ys, yName, err = vector(data, p, "y"); err != nil {
		return
	}
	if xs == nil || ys == nil {
		err = fmt.Errorf("requires x and y")
	}
	return
}

func snsScatterplot(ax *Axes, data *Frame, p params) error {
	xs, ys, xName, yName, err := xyVectors(data, p)
	if err != nil {
		return err
	}
	s, err := xySeries(chart.Scatter, starlark.NewList(xs), starlark.NewList(ys))
	if err != nil {
		return err
	}
	s.Color, s.Label = colorOf(p), seriesLabel(p)
	ax.model.Add(s)
	setLabels(ax, xName, yName)
	return nil
}

// snsLineplot draws the mean of y at each distinct x, sorted by x.
func snsLineplot(ax *Axes, data *Frame, p params) error {
	xs, ys, xName, yName, err := xyVectors(data, p)
	if err != nil {
		return err
	}
	nums, err := floats(ys)
	if err != nil {
		return err
	}
	var keys []starlark.Value
	for _, v := range distinct(xs) {
		if !isMissing(v) {
			keys = append(keys, v)
		}
	}
	sort.SliceStable(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	rows := bucket(xs)
	means := make([]starlark.Value, len(keys))
	for i, k := range keys {
		var group []float64
		for _, r := range rows[valueKey(k)] {
			if !math.IsNaN(nums[r]) {
				group = append(group, nums[r])
			}
		}
		means[i] = starlark.Float(aggregate(estimatorOf(p), group))
	}
	s, err := xySeries(chart.Line, starlark.NewList(keys), starlark.NewList(means))
	if err != nil {
		return err
	}
	s.Color, s.Label = colorOf(p), seriesLabel(p)
	ax.model.Add(s)
	setLabels(ax, xName, yName)
	return nil
}

func snsHistplot(ax *Axes, data *Frame, p params) error {
	vals, name, err := vector(data, p, "x")
	if err != nil {
		return err
	}
	if vals == nil {
		if vals, name, err = vector(data, p, "y"); err != nil {
			return err
		}
	}
	if vals == nil && data != nil && len(data.columns) == 1 {
		name = data.columns[0]
		vals = data.data[name]
	}
	if vals == nil {
		return fmt.Errorf("requires x")
	}
	s := (&Series{values: vals}).present()
	bins, err := p.int(-1, "bins", 10)
	if err != nil {
		bins = 10
	}
	ax.model.Add(&chart.Series{Kind: chart.Hist, Color: colorOf(p), Label: seriesLabel(p), Y: s, Bins: bins})
	setLabels(ax, name, "Count")
	return nil
}

// snsBoxplot draws one box per category of the categorical axis, one box for
// a single numeric vector, or one per numeric column of data.
func snsBoxplot(ax *Axes, data *Frame, p params) error {
	xs, xName, err := vector(data, p, "x")
	if err != nil {
		return err
	}
	ys, yName, err := vector(data, p, "y")
	if err != nil {
		return err
	}
	s := &chart.Series{Kind: chart.Box, Color: colorOf(p)}
	switch {
	case xs != nil && ys != nil:
		catVals, numVals := xs, ys
		if orient(xs, ys, p) {
			catVals, numVals = ys, xs
		}
		nums, err := floats(numVals)
		if err != nil {
			return err
		}
		cats, err := categoryOrder(catVals, p)
		if err != nil {
			return err
		}
		rows := bucket(catVals)
		for _, c := range cats {
			var group []float64
			for _, r := range rows[valueKey(c)] {
				if !math.IsNaN(nums[r]) {
					group = append(group, nums[r])
				}
			}
			s.Groups = append(s.Groups, group)
		}
		s.Categories = labels(cats)
	case xs != nil || ys != nil:
		vals, name := xs, xName
		if vals == nil {
			vals, name = ys, yName
		}
		s.Groups = [][]float64{(&Series{values: vals}).present()}
		if name != "" {
			s.Categories = []string{name}
		}
	case data != nil:
		for _, c := range data.numericColumns() {
			s.Groups = append(s.Groups, (&Series{values: data.data[c]}).present())
			s.Categories = append(s.Categories, c)
		}
	default:
		return fmt.Errorf("requires data, x or y")
	}
	if len(s.Groups) == 0 {
		return fmt.Errorf("no numeric data to plot")
	}
	ax.model.Add(s)
	setLabels(ax, xName, yName)
	return nil
}

// snsRegplot draws the points and their least-squares line.
func snsRegplot(ax *Axes, data *Frame, p params) error {
	if err := snsScatterplot(ax, data, p); err != nil {
		return err
	}
	pts := ax.model.Series[len(ax.model.Series)-1]
	slope, intercept, ok := regression(pts.X, pts.Y)
	if !ok || len(pts.Categories) > 0 {
		return nil
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range pts.X {
		if !math.IsNaN(x) {
			lo, hi = math.Min(lo, x), math.Max(hi, x)
		}
	}
	ax.model.Add(&chart.Series{
		Kind:  chart.Line,
		Color: pts.Color,
		X:     []float64{lo, hi},
		Y:     []float64{slope*lo + intercept, slope*hi + intercept},
	})
	return nil
}

var tab10 = []string{"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd", "#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf"}

// seabornPalette returns n hex colors from the default categorical palette.
func seabornPalette(_ *Seaborn, p params) (starlark.Value, error) {
	n, err := p.int(1, "n_colors", len(tab10))
	if err != nil {
		return nil, err
	}
	out := make([]starlark.Value, n)
	for i := range out {
		out[i] = starlark.String(tab10[i%len(tab10)])
	}
	return starlark.NewList(out), nil
}
