package sandbox

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"
)

// GroupBy is the result of df.groupby(keys), optionally narrowed to columns.
type GroupBy struct {
	frame   *Frame
	keys    []string
	cols    []string
	series  bool
	asIndex bool
	sorted  bool
}

var (
	_ starlark.HasAttrs = (*GroupBy)(nil)
	_ starlark.Mapping  = (*GroupBy)(nil)
)

func frameGroupBy(f *Frame, p params) (starlark.Value, error) {
	keys, err := p.strs(0, "by")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("groupby: missing by")
	}
	for _, k := range keys {
		if _, ok := f.data[k]; !ok {
			return nil, fmt.Errorf("KeyError: column %q not found", k)
		}
	}
	return &GroupBy{
		frame:   f,
		keys:    keys,
		asIndex: p.bool(-1, "as_index", true),
		sorted:  p.bool(-1, "sort", true),
	}, nil
}

func (g *GroupBy) String() string {
	return fmt.Sprintf("<DataFrameGroupBy by %s>", strings.Join(g.keys, ", "))
}
func (g *GroupBy) Type() string          { return "DataFrameGroupBy" }
func (g *GroupBy) Freeze()               {}
func (g *GroupBy) Truth() starlark.Bool  { return true }
func (g *GroupBy) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: DataFrameGroupBy") }

// Get narrows the grouping: g["col"] aggregates to a Series, g[["a","b"]] to a Frame.
func (g *GroupBy) Get(k starlark.Value) (starlark.Value, bool, error) {
	var cols []string
	series := false
	if s, ok := starlark.AsString(k); ok {
		cols, series = []string{s}, true
	} else {
		vals, err := elements(k)
		if err != nil {
			return nil, false, err
		}
		if cols, err = stringValues(vals); err != nil {
			return nil, false, err
		}
	}
	for _, c := range cols {
		if _, ok := g.frame.data[c]; !ok {
			return nil, false, fmt.Errorf("KeyError: column %q not found", c)
		}
	}
	return &GroupBy{frame: g.frame, keys: g.keys, cols: cols, series: series, asIndex: g.asIndex, sorted: g.sorted}, true, nil
}

func (g *GroupBy) Attr(name string) (starlark.Value, error) {
	switch name {
	case "sum", "mean", "median", "min", "max", "std", "var", "count", "first", "last", "nunique":
		return bind(g, name, func(g *GroupBy, _ params) (starlark.Value, error) {
			return g.apply(func(string) string { return name })
		}), nil
	case "size":
		return bind(g, name, func(g *GroupBy, _ params) (starlark.Value, error) { return g.size() }), nil
	case "agg", "aggregate":
		return bind(g, name, groupAgg), nil
	}
	if _, ok := g.frame.data[name]; ok && len(g.cols) == 0 {
		v, _, err := g.Get(starlark.String(name))
		return v, err
	}
	return nil, nil
}

func (g *GroupBy) AttrNames() []string {
	return []string{"sum", "mean", "median", "min", "max", "std", "var", "count", "first", "last", "nunique", "size", "agg", "aggregate"}
}

type group struct {
	key  starlark.Value
	rows []int
}

// groups partitions rows by key. Keys are sorted unless sort=False was given,
// in which case they keep first-appearance order. Rows with a missing key are
// dropped as pandas does.
func (g *GroupBy) groups() []group {
	f := g.frame
	byKey := map[string]int{}
	var out []group
	for i := 0; i < f.rows(); i++ {
		var key starlark.Value
		missing := false
		if len(g.keys) == 1 {
			key = f.data[g.keys[0]][i]
			missing = isMissing(key)
		} else {
			t := make(starlark.Tuple, len(g.keys))
			for k, name := range g.keys {
				t[k] = f.data[name][i]
				missing = missing || isMissing(t[k])
			}
			key = t
		}
		if missing {
			continue
		}
		id := valueKey(key)
		if len(g.keys) > 1 {
			id = tupleKey(key.(starlark.Tuple))
		}
		if j, ok := byKey[id]; ok {
			out[j].rows = append(out[j].rows, i)
			continue
		}
		byKey[id] = len(out)
		out = append(out, group{key: key, rows: []int{i}})
	}
	if g.sorted {
		sort.SliceStable(out, func(i, j int) bool { return keyLess(out[i].key, out[j].key) })
	}
	return out
}

func tupleKey(t starlark.Tuple) string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = valueKey(v)
	}
	return strings.Join(parts, "\x00")
}

func keyLess(a, b starlark.Value) bool {
	ta, aok := a.(starlark.Tuple)
	tb, bok := b.(starlark.Tuple)
	if !aok || !bok {
		return less(a, b)
	}
	for i := range ta {
		if less(ta[i], tb[i]) {
			return true
		}
		if less(tb[i], ta[i]) {
			return false
		}
	}
	return false
}

// valueColumns are the columns aggregated when none were selected.
func (g *GroupBy) valueColumns() []string {
	if len(g.cols) > 0 {
		return g.cols
	}
	isKey := map[string]bool{}
	for _, k := range g.keys {
		isKey[k] = true
	}
	var out []string
	for _, c := range g.frame.columns {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	return out
}

// apply aggregates each value column with the function named by fn(column).
// Numeric reductions skip non-numeric columns unless they were selected.
func (g *GroupBy) apply(fn func(col string) string) (starlark.Value, error) {
	groups := g.groups()
	f := g.frame
	var cols []string
	for _, c := range g.valueColumns() {
		switch fn(c) {
		case "count", "size", "nunique", "first", "last", "min", "max":
			cols = append(cols, c)
		default:
			if len(g.cols) > 0 || allQuantities(f.data[c]) {
				cols = append(cols, c)
			}
		}
	}
	results := make(map[string][]starlark.Value, len(cols))
	for _, c := range cols {
		vals := make([]starlark.Value, len(groups))
		for i, gr := range groups {
			v, err := reduceGroup(fn(c), c, pick(f.data[c], gr.rows))
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		results[c] = vals
	}
	return g.assemble(groups, cols, results)
}

func reduceGroup(kind, col string, vals []starlark.Value) (starlark.Value, error) {
	switch kind {
	case "nunique":
		n := 0
		for _, v := range distinct(vals) {
			if !isMissing(v) {
				n++
			}
		}
		return starlark.MakeInt(n), nil
	case "first", "last":
		present := make([]starlark.Value, 0, len(vals))
		for _, v := range vals {
			if !isMissing(v) {
				present = append(present, v)
			}
		}
		if len(present) == 0 {
			return starlark.None, nil
		}
		if kind == "first" {
			return present[0], nil
		}
		return present[len(present)-1], nil
	case "sum", "mean", "median", "min", "max", "std", "var", "count":
		return reducer(kind)(&Series{name: col, values: vals}, params{fn: kind})
	}
	return nil, fmt.Errorf("agg: unsupported function %q", kind)
}

func (g *GroupBy) size() (starlark.Value, error) {
	groups := g.groups()
	counts := make([]starlark.Value, len(groups))
	for i, gr := range groups {
		counts[i] = starlark.MakeInt(len(gr.rows))
	}
	keys := make([]starlark.Value, len(groups))
	for i, gr := range groups {
		keys[i] = gr.key
	}
	s := &Series{name: "size", indexName: strings.Join(g.keys, ","), index: keys, values: counts}
	if !g.asIndex {
		return seriesResetIndex(s, params{fn: "size"})
	}
	return s, nil
}

// assemble builds the grouped result: a Series for a single selected column,
// otherwise a Frame indexed by group key (or with key columns when
// as_index=False).
func (g *GroupBy) assemble(groups []group, cols []string, results map[string][]starlark.Value) (starlark.Value, error) {
	keys := make([]starlark.Value, len(groups))
	for i, gr := range groups {
		keys[i] = gr.key
	}
	indexName := strings.Join(g.keys, ",")
	if g.series && len(cols) == 1 && g.asIndex {
		return &Series{name: cols[0], indexName: indexName, index: keys, values: results[cols[0]]}, nil
	}
	out := newFrame(keys)
	out.indexName = indexName
	for _, c := range cols {
		out.addColumn(c, results[c])
	}
	if !g.asIndex {
		v, err := frameResetIndex(out, params{fn: "reset_index"})
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return out, nil
}

// groupAgg handles agg("sum"), agg({"col": "sum"}) and named aggregation
// agg(total=("col", "sum")).
func groupAgg(g *GroupBy, p params) (starlark.Value, error) {
	spec := p.get(0, "func")
	switch s := spec.(type) {
	case starlark.String:
		kind := string(s)
		return g.apply(func(string) string { return kind })
	case *starlark.Builtin:
		kind := s.Name()
		return g.apply(func(string) string { return kind })
	case *starlark.Dict:
		funcs := map[string]string{}
		var cols []string
		for _, item := range s.Items() {
			col, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("agg: column names must be strings")
			}
			fn, ok := starlark.AsString(item[1])
			if !ok {
				return nil, fmt.Errorf("agg: function for %q must be a name like \"sum\"", col)
			}
			funcs[col] = fn
			cols = append(cols, col)
		}
		sub := &GroupBy{frame: g.frame, keys: g.keys, cols: cols, asIndex: g.asIndex, sorted: g.sorted}
		return sub.apply(func(c string) string { return funcs[c] })
	case nil:
		return g.namedAgg(p)
	}
	return nil, fmt.Errorf("agg: unsupported argument %s", spec.Type())
}

func (g *GroupBy) namedAgg(p params) (starlark.Value, error) {
	if len(p.kw) == 0 {
		return nil, fmt.Errorf("agg: missing aggregation")
	}
	names := p.order
	groups := g.groups()
	results := map[string][]starlark.Value{}
	for _, out := range names {
		pair, ok := p.kw[out].(starlark.Tuple)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("agg: %s must be a (column, function) tuple", out)
		}
		col, cok := starlark.AsString(pair[0])
		fn, fok := starlark.AsString(pair[1])
		if !cok || !fok {
			return nil, fmt.Errorf("agg: %s must name a column and a function", out)
		}
		vals, ok := g.frame.data[col]
		if !ok {
			return nil, fmt.Errorf("KeyError: column %q not found", col)
		}
		res := make([]starlark.Value, len(groups))
		for i, gr := range groups {
			v, err := reduceGroup(fn, col, pick(vals, gr.rows))
			if err != nil {
				return nil, err
			}
			res[i] = v
		}
		results[out] = res
	}
	return (&GroupBy{frame: g.frame, keys: g.keys, asIndex: g.asIndex, sorted: g.sorted}).assemble(groups, names, results)
}
