package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Series is a labeled one-dimensional column, the value behind df["col"].
type Series struct {
	name      string
	indexName string
	index     []starlark.Value
	values    []starlark.Value
	frozen    bool
}

var (
	_ starlark.HasAttrs  = (*Series)(nil)
	_ starlark.Mapping   = (*Series)(nil)
	_ starlark.Sliceable = (*Series)(nil)
	_ starlark.HasBinary = (*Series)(nil)
)

func newSeries(name string, index, values []starlark.Value) *Series {
	if index == nil {
		index = rangeIndex(len(values))
	}
	return &Series{name: name, index: index, values: values}
}

func (s *Series) String() string {
	var b strings.Builder
	n := min(len(s.values), 10)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%-12s %s\n", label(s.index[i]), label(s.values[i]))
	}
	if len(s.values) > n {
		b.WriteString("...\n")
	}
	fmt.Fprintf(&b, "Name: %s, Length: %d", s.name, len(s.values))
	return b.String()
}

func (s *Series) Type() string          { return "Series" }
func (s *Series) Freeze()               { s.frozen = true }
func (s *Series) Truth() starlark.Bool  { return len(s.values) > 0 }
func (s *Series) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Series") }
func (s *Series) Len() int              { return len(s.values) }
func (s *Series) Index(i int) starlark.Value {
	return s.values[i]
}
func (s *Series) Iterate() starlark.Iterator { return &valuesIter{vals: s.values} }

func (s *Series) Slice(start, end, step int) starlark.Value {
	pos := sliceIndices(start, end, step)
	return &Series{name: s.name, indexName: s.indexName, index: pick(s.index, pos), values: pick(s.values, pos)}
}

// Get looks a value up by index label, falling back to position for an
// integer key on a default index. A boolean Series selects matching rows.
func (s *Series) Get(k starlark.Value) (starlark.Value, bool, error) {
	if mask, ok := k.(*Series); ok {
		pos, err := maskPositions(mask, len(s.values))
		if err != nil {
			return nil, false, err
		}
		return &Series{name: s.name, indexName: s.indexName, index: pick(s.index, pos), values: pick(s.values, pos)}, true, nil
	}
	key := valueKey(k)
	for i, idx := range s.index {
		if valueKey(idx) == key {
			return s.values[i], true, nil
		}
	}
	if i, err := starlark.AsInt32(k); err == nil {
		if i < 0 {
			i += len(s.values)
		}
		if i >= 0 && i < len(s.values) {
			return s.values[i], true, nil
		}
	}
	return nil, false, fmt.Errorf("KeyError: %s", k.String())
}

func maskPositions(mask *Series, n int) ([]int, error) {
	if len(mask.values) != n {
		return nil, fmt.Errorf("boolean mask has length %d, want %d", len(mask.values), n)
	}
	var pos []int
	for i, v := range mask.values {
		b, ok := v.(starlark.Bool)
		if !ok {
			return nil, fmt.Errorf("mask must contain booleans, got %s", v.Type())
		}
		if b {
			pos = append(pos, i)
		}
	}
	return pos, nil
}

// Binary supports element-wise arithmetic with a scalar or a same-length Series.
func (s *Series) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	switch op {
	case syntax.PLUS, syntax.MINUS, syntax.STAR, syntax.SLASH, syntax.SLASHSLASH, syntax.PERCENT:
	default:
		return nil, nil
	}
	other := func(i int) (float64, bool) {
		if o, ok := y.(*Series); ok {
			if i >= len(o.values) {
				return math.NaN(), true
			}
			return number(o.values[i])
		}
		return number(y)
	}
	if o, ok := y.(*Series); ok && len(o.values) != len(s.values) {
		return nil, fmt.Errorf("series lengths differ: %d and %d", len(s.values), len(o.values))
	}
	out := make([]starlark.Value, len(s.values))
	for i, v := range s.values {
		a, aok := number(v)
		b, bok := other(i)
		if !aok || !bok {
			if op == syntax.PLUS && !aok {
				if bs, ok := y.(starlark.String); ok {
					if side == starlark.Left {
						out[i] = starlark.String(label(v) + string(bs))
					} else {
						out[i] = starlark.String(string(bs) + label(v))
					}
					continue
				}
			}
			return nil, fmt.Errorf("unsupported operand for %s: %s", op, v.Type())
		}
		if r, ok := intArith(op, v, y, i, side); ok {
			out[i] = r
			continue
		}
		if side == starlark.Right {
			a, b = b, a
		}
		out[i] = starlark.Float(arith(op, a, b))
	}
	return &Series{name: s.name, indexName: s.indexName, index: s.index, values: out}, nil
}

// intArith keeps Int + - * // % Int integral, as pandas int64 columns do.
func intArith(op syntax.Token, v, y starlark.Value, i int, side starlark.Side) (starlark.Value, bool) {
	if op == syntax.SLASH {
		return nil, false
	}
	if o, ok := y.(*Series); ok {
		y = o.values[i]
	}
	lhs, lok := v.(starlark.Int)
	rhs, rok := y.(starlark.Int)
	if !lok || !rok {
		return nil, false
	}
	if side == starlark.Right {
		lhs, rhs = rhs, lhs
	}
	r, err := starlark.Binary(op, lhs, rhs)
	if err != nil {
		return nil, false
	}
	return r, true
}

func arith(op syntax.Token, a, b float64) float64 {
	switch op {
	case syntax.PLUS:
		return a + b
	case syntax.MINUS:
		return a - b
	case syntax.STAR:
		return a * b
	case syntax.SLASH:
		return a / b
	case syntax.SLASHSLASH:
		return math.Floor(a / b)
	case syntax.PERCENT:
		return math.Mod(a, b)
	}
	return math.NaN()
}

func (s *Series) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		if s.name == "" {
			return starlark.None, nil
		}
		return starlark.String(s.name), nil
	case "values", "array":
		return &Series{name: s.name, index: rangeIndex(len(s.values)), values: s.values}, nil
	case "index":
		return &Series{name: s.indexName, index: rangeIndex(len(s.index)), values: s.index}, nil
	case "size":
		return starlark.MakeInt(len(s.values)), nil
	case "shape":
		return starlark.Tuple{starlark.MakeInt(len(s.values))}, nil
	case "empty":
		return starlark.Bool(len(s.values) == 0), nil
	case "dtype":
		return starlark.String(s.dtype()), nil
	case "plot":
		return &plotAccessor{target: s}, nil
	case "str", "dt", "cat":
		// Accessors return the series itself so chained conversions pass through.
		return s, nil
	}
	if fn, ok := seriesMethods[name]; ok {
		return bind(s, name, fn), nil
	}
	return nil, nil
}

func (s *Series) AttrNames() []string {
	return methodNames(seriesMethods, "name", "values", "array", "index", "size", "shape", "empty", "dtype", "plot", "str", "dt", "cat")
}

func (s *Series) dtype() string {
	if allQuantities(s.values) {
		for _, v := range s.values {
			if _, ok := v.(starlark.Float); ok {
				return "float64"
			}
		}
		return "int64"
	}
	return "object"
}

// present returns the non-missing numeric values.
func (s *Series) present() []float64 {
	out := make([]float64, 0, len(s.values))
	for _, v := range s.values {
		if f, ok := number(v); ok && !math.IsNaN(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s *Series) with(index, values []starlark.Value) *Series {
	return &Series{name: s.name, indexName: s.indexName, index: index, values: values}
}

var seriesMethods map[string]method[*Series]

func init() {
	seriesMethods = map[string]method[*Series]{
		"tolist":  seriesToList,
		"to_list": seriesToList,
		"sum":     reducer("sum"),
		"mean":    reducer("mean"),
		"median":  reducer("median"),
		"min":     reducer("min"),
		"max":     reducer("max"),
		"std":     reducer("std"),
		"var":     reducer("var"),
		"count":   reducer("count"),
		"nunique": func(s *Series, _ params) (starlark.Value, error) {
			n := 0
			for _, v := range distinct(s.values) {
				if !isMissing(v) {
					n++
				}
			}
			return starlark.MakeInt(n), nil
		},
		"unique": func(s *Series, _ params) (starlark.Value, error) {
			u := distinct(s.values)
			return newSeries(s.name, nil, u), nil
		},
		"value_counts": seriesValueCounts,
		"head":         seriesHead,
		"tail":         seriesTail,
		"nlargest": func(s *Series, p params) (starlark.Value, error) {
			return seriesTop(s, p, false)
		},
		"nsmallest": func(s *Series, p params) (starlark.Value, error) {
			return seriesTop(s, p, true)
		},
		"sort_values": seriesSortValues,
		"sort_index":  seriesSortIndex,
		"reset_index": seriesResetIndex,
		"to_frame":    seriesToFrame,
		"dropna":      seriesDropna,
		"fillna":      seriesFillna,
		"astype":      seriesAstype,
		"copy":        func(s *Series, _ params) (starlark.Value, error) { return s.with(s.index, s.values), nil },
		"round":       seriesRound,
		"abs":         elementwise(math.Abs),
		"cumsum":      seriesCumsum,
		"idxmax":      func(s *Series, _ params) (starlark.Value, error) { return seriesArg(s, false) },
		"idxmin":      func(s *Series, _ params) (starlark.Value, error) { return seriesArg(s, true) },
		"isna":        func(s *Series, _ params) (starlark.Value, error) { return s.test(isMissing), nil },
		"isnull":      func(s *Series, _ params) (starlark.Value, error) { return s.test(isMissing), nil },
		"notna":       func(s *Series, _ params) (starlark.Value, error) { return s.test(notMissing), nil },
		"notnull":     func(s *Series, _ params) (starlark.Value, error) { return s.test(notMissing), nil },
		"isin":        seriesIsin,
		"gt":          comparer(func(a, b float64) bool { return a > b }),
		"ge":          comparer(func(a, b float64) bool { return a >= b }),
		"lt":          comparer(func(a, b float64) bool { return a < b }),
		"le":          comparer(func(a, b float64) bool { return a <= b }),
		"eq":          seriesEq(false),
		"ne":          seriesEq(true),
		"to_numeric":  seriesToNumeric,
		"items":       seriesItems,
		"apply":       seriesApply,
		"map":         seriesApply,
		"rename":      seriesRename,
	}
}

func notMissing(v starlark.Value) bool { return !isMissing(v) }

func seriesToList(s *Series, _ params) (starlark.Value, error) {
	out := make([]starlark.Value, len(s.values))
	copy(out, s.values)
	return starlark.NewList(out), nil
}

func reducer(kind string) method[*Series] {
	return func(s *Series, _ params) (starlark.Value, error) {
		if kind == "count" {
			n := 0
			for _, v := range s.values {
				if !isMissing(v) {
					n++
				}
			}
			return starlark.MakeInt(n), nil
		}
		if !numericCells(s.values) {
			if kind == "min" || kind == "max" {
				return extremeLabel(s.values, kind == "min"), nil
			}
			return nil, fmt.Errorf("%s: series %q is not numeric", kind, s.name)
		}
		v := aggregate(kind, s.present())
		switch kind {
		case "sum", "min", "max":
			if allInts(s.values) && !math.IsNaN(v) {
				return starlark.MakeInt64(int64(v)), nil
			}
		}
		return starlark.Float(v), nil
	}
}

func numericCells(vals []starlark.Value) bool {
	for _, v := range vals {
		if _, ok := number(v); !ok {
			return false
		}
	}
	return true
}

func allInts(vals []starlark.Value) bool {
	for _, v := range vals {
		if _, ok := v.(starlark.Int); !ok {
			return false
		}
	}
	return true
}

func extremeLabel(vals []starlark.Value, smallest bool) starlark.Value {
	var best starlark.Value = starlark.None
	for _, v := range vals {
		if isMissing(v) {
			continue
		}
		if best == starlark.None || (smallest && less(v, best)) || (!smallest && less(best, v)) {
			best = v
		}
	}
	return best
}

// aggregate applies a named reduction to values with missing entries removed.
func aggregate(kind string, vals []float64) float64 {
	switch kind {
	case "count", "size":
		return float64(len(vals))
	case "sum":
		t := 0.0
		for _, v := range vals {
			t += v
		}
		return t
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	switch kind {
	case "mean":
		return aggregate("sum", vals) / float64(len(vals))
	case "median":
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		m := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[m]
		}
		return (sorted[m-1] + sorted[m]) / 2
	case "min":
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Min(m, v)
		}
		return m
	case "max":
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Max(m, v)
		}
		return m
	case "std", "var":
		if len(vals) < 2 {
			return math.NaN()
		}
		mean := aggregate("mean", vals)
		ss := 0.0
		for _, v := range vals {
			ss += (v - mean) * (v - mean)
		}
		variance := ss / float64(len(vals)-1)
		if kind == "var" {
			return variance
		}
		return math.Sqrt(variance)
	case "first":
		return vals[0]
	case "last":
		return vals[len(vals)-1]
	}
	return math.NaN()
}

func distinct(vals []starlark.Value) []starlark.Value {
	seen := map[string]bool{}
	var out []starlark.Value
	for _, v := range vals {
		k := valueKey(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func seriesValueCounts(s *Series, p params) (starlark.Value, error) {
	counts := map[string]int{}
	var order []starlark.Value
	total := 0
	for _, v := range s.values {
		if isMissing(v) {
			continue
		}
		k := valueKey(v)
		if counts[k] == 0 {
			order = append(order, v)
		}
		counts[k]++
		total++
	}
	ascending := p.bool(-1, "ascending", false)
	sort.SliceStable(order, func(i, j int) bool {
		ci, cj := counts[valueKey(order[i])], counts[valueKey(order[j])]
		if ascending {
			return ci < cj
		}
		return ci > cj
	})
	normalize := p.bool(-1, "normalize", false)
	vals := make([]starlark.Value, len(order))
	for i, v := range order {
		c := counts[valueKey(v)]
		if normalize {
			vals[i] = starlark.Float(float64(c) / float64(total))
		} else {
			vals[i] = starlark.MakeInt(c)
		}
	}
	name := "count"
	if normalize {
		name = "proportion"
	}
	return &Series{name: name, indexName: s.name, index: order, values: vals}, nil
}

func seriesHead(s *Series, p params) (starlark.Value, error) {
	n, err := p.int(0, "n", 5)
	if err != nil {
		return nil, err
	}
	n = clampCount(n, len(s.values))
	return s.with(s.index[:n], s.values[:n]), nil
}

func seriesTail(s *Series, p params) (starlark.Value, error) {
	n, err := p.int(0, "n", 5)
	if err != nil {
		return nil, err
	}
	n = clampCount(n, len(s.values))
	k := len(s.values) - n
	return s.with(s.index[k:], s.values[k:]), nil
}

// clampCount maps pandas head/tail counts, including negatives, into [0, total].
func clampCount(n, total int) int {
	if n < 0 {
		n = total + n
	}
	return max(0, min(n, total))
}

func seriesTop(s *Series, p params, smallest bool) (starlark.Value, error) {
	n, err := p.int(0, "n", 5)
	if err != nil {
		return nil, err
	}
	pos := order(s.values, smallest)
	pos = pos[:clampCount(n, len(pos))]
	return s.with(pick(s.index, pos), pick(s.values, pos)), nil
}

// order returns a stable row permutation sorting vals; missing values stay last.
func order(vals []starlark.Value, ascending bool) []int {
	pos := make([]int, len(vals))
	for i := range pos {
		pos[i] = i
	}
	sort.SliceStable(pos, func(i, j int) bool {
		a, b := vals[pos[i]], vals[pos[j]]
		if ascending || isMissing(a) || isMissing(b) {
			return less(a, b)
		}
		return less(b, a)
	})
	return pos
}

func seriesSortValues(s *Series, p params) (starlark.Value, error) {
	pos := order(s.values, p.bool(-1, "ascending", true))
	return s.with(pick(s.index, pos), pick(s.values, pos)), nil
}

func seriesSortIndex(s *Series, p params) (starlark.Value, error) {
	pos := order(s.index, p.bool(-1, "ascending", true))
	return s.with(pick(s.index, pos), pick(s.values, pos)), nil
}

func seriesResetIndex(s *Series, p params) (starlark.Value, error) {
	valueName, err := p.str(-1, "name", s.name)
	if err != nil {
		return nil, err
	}
	if valueName == "" {
		valueName = "0"
	}
	if p.bool(-1, "drop", false) {
		return s.with(rangeIndex(len(s.values)), s.values), nil
	}
	f := newFrame(rangeIndex(len(s.values)))
	addIndexColumns(f, s.indexName, s.index)
	f.addColumn(valueName, s.values)
	return f, nil
}

func seriesToFrame(s *Series, p params) (starlark.Value, error) {
	name, err := p.str(0, "name", s.name)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "0"
	}
	f := newFrame(s.index)
	f.indexName = s.indexName
	f.addColumn(name, s.values)
	return f, nil
}

func seriesDropna(s *Series, _ params) (starlark.Value, error) {
	var pos []int
	for i, v := range s.values {
		if !isMissing(v) {
			pos = append(pos, i)
		}
	}
	return s.with(pick(s.index, pos), pick(s.values, pos)), nil
}

func seriesFillna(s *Series, p params) (starlark.Value, error) {
	fill := p.get(0, "value")
	if fill == nil {
		return nil, fmt.Errorf("fillna: missing value")
	}
	out := make([]starlark.Value, len(s.values))
	for i, v := range s.values {
		if isMissing(v) {
			out[i] = fill
		} else {
			out[i] = v
		}
	}
	return s.with(s.index, out), nil
}

func seriesAstype(s *Series, p params) (starlark.Value, error) {
	var target string
	switch t := p.get(0, "dtype").(type) {
	case starlark.String:
		target = string(t)
	case *starlark.Builtin:
		target = t.Name()
	case nil:
		return nil, fmt.Errorf("astype: missing dtype")
	default:
		target = t.String()
	}
	out := make([]starlark.Value, len(s.values))
	for i, v := range s.values {
		switch {
		case target == "str" || target == "string" || target == "object" || target == "category":
			if isMissing(v) && target != "str" {
				out[i] = v
			} else {
				out[i] = starlark.String(label(v))
			}
		case strings.HasPrefix(target, "int"):
			f, ok := number(v)
			if !ok || math.IsNaN(f) {
				return nil, fmt.Errorf("astype(%s): cannot convert %s", target, v.String())
			}
			out[i] = starlark.MakeInt64(int64(f))
		case strings.HasPrefix(target, "float"):
			f, ok := toNumber(v)
			if !ok {
				return nil, fmt.Errorf("astype(%s): cannot convert %s", target, v.String())
			}
			out[i] = starlark.Float(f)
		default:
			out[i] = v
		}
	}
	return s.with(s.index, out), nil
}

// toNumber parses numeric strings as well as numeric cells.
func toNumber(v starlark.Value) (float64, bool) {
	if f, ok := number(v); ok {
		return f, true
	}
	if str, ok := v.(starlark.String); ok {
		var f float64
		if _, err := fmt.Sscan(strings.ReplaceAll(string(str), ",", ""), &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func seriesToNumeric(s *Series, _ params) (starlark.Value, error) {
	out := make([]starlark.Value, len(s.values))
	for i, v := range s.values {
		if f, ok := toNumber(v); ok {
			out[i] = starlark.Float(f)
		} else {
			out[i] = starlark.Float(math.NaN())
		}
	}
	return s.with(s.index, out), nil
}

func seriesRound(s *Series, p params) (starlark.Value, error) {
	digits, err := p.int(0, "decimals", 0)
	if err != nil {
		return nil, err
	}
	scale := math.Pow(10, float64(digits))
	return elementwise(func(f float64) float64 { return math.Round(f*scale) / scale })(s, p)
}

func elementwise(fn func(float64) float64) method[*Series] {
	return func(s *Series, _ params) (starlark.Value, error) {
		out := make([]starlark.Value, len(s.values))
		for i, v := range s.values {
			f, ok := number(v)
			if !ok {
				return nil, fmt.Errorf("series %q is not numeric", s.name)
			}
			out[i] = starlark.Float(fn(f))
		}
		return s.with(s.index, out), nil
	}
}

func seriesCumsum(s *Series, _ params) (starlark.Value, error) {
	out := make([]starlark.Value, len(s.values))
	total := 0.0
	for i, v := range s.values {
		f, ok := number(v)
		if !ok {
			return nil, fmt.Errorf("cumsum: series %q is not numeric", s.name)
		}
		if isMissing(v) {
			out[i] = starlark.Float(math.NaN())
			continue
		}
		total += f
		out[i] = starlark.Float(total)
	}
	return s.with(s.index, out), nil
}

func seriesArg(s *Series, smallest bool) (starlark.Value, error) {
	pos := order(s.values, smallest)
	if len(pos) == 0 || isMissing(s.values[pos[0]]) {
		return nil, fmt.Errorf("argmax of an empty sequence")
	}
	return s.index[pos[0]], nil
}

func (s *Series) test(fn func(starlark.Value) bool) *Series {
	out := make([]starlark.Value, len(s.values))
	for i, v := range s.values {
		out[i] = starlark.Bool(fn(v))
	}
	return s.with(s.index, out)
}

func seriesIsin(s *Series, p params) (starlark.Value, error) {
	v := p.get(0, "values")
	if v == nil {
		return nil, fmt.Errorf("isin: missing values")
	}
	vals, err := elements(v)
	if err != nil {
		return nil, fmt.Errorf("isin: %w", err)
	}
	set := map[string]bool{}
	for _, e := range vals {
		set[valueKey(e)] = true
	}
	return s.test(func(e starlark.Value) bool { return set[valueKey(e)] }), nil
}

func comparer(cmp func(a, b float64) bool) method[*Series] {
	return func(s *Series, p params) (starlark.Value, error) {
		other, err := p.float(0, "other", math.NaN())
		if err != nil {
			return nil, err
		}
		return s.test(func(v starlark.Value) bool {
			f, ok := number(v)
			return ok && !math.IsNaN(f) && cmp(f, other)
		}), nil
	}
}

func seriesEq(negate bool) method[*Series] {
	return func(s *Series, p params) (starlark.Value, error) {
		other := p.get(0, "other")
		if other == nil {
			return nil, fmt.Errorf("eq: missing other")
		}
		key := valueKey(other)
		return s.test(func(v starlark.Value) bool { return (valueKey(v) == key) != negate }), nil
	}
}

func seriesItems(s *Series, _ params) (starlark.Value, error) {
	out := make([]starlark.Value, len(s.values))
	for i := range s.values {
		out[i] = starlark.Tuple{s.index[i], s.values[i]}
	}
	return starlark.NewList(out), nil
}

func seriesRename(s *Series, p params) (starlark.Value, error) {
	name, err := p.str(0, "index", s.name)
	if err != nil {
		return nil, err
	}
	return &Series{name: name, indexName: s.indexName, index: s.index, values: s.values}, nil
}

// seriesApply maps a callable or dict over the values.
func seriesApply(s *Series, p params) (starlark.Value, error) {
	fn := p.get(0, "func")
	if fn == nil {
		fn = p.get(0, "arg")
	}
	switch f := fn.(type) {
	case *starlark.Dict:
		out := make([]starlark.Value, len(s.values))
		for i, v := range s.values {
			m, found, err := f.Get(v)
			if err != nil {
				return nil, err
			}
			if !found {
				m = starlark.None
			}
			out[i] = m
		}
		return s.with(s.index, out), nil
	case starlark.Callable:
		if p.thread == nil {
			return nil, fmt.Errorf("apply: no thread")
		}
		out := make([]starlark.Value, len(s.values))
		for i, v := range s.values {
			r, err := starlark.Call(p.thread, f, starlark.Tuple{v}, nil)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return s.with(s.index, out), nil
	}
	return nil, fmt.Errorf("apply: expected a function or dict")
}
