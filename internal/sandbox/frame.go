package sandbox

import (
	"fmt"
	"math"
	"strings"

	"go.starlark.net/starlark"

	"github.com/KaramelBytes/storyteller/internal/dataset"
)

// Frame is the DataFrame stand-in bound to df. It is a copy of the dataset,
// so column assignment inside a script never reaches the loaded Dataset.
type Frame struct {
	columns   []string
	data      map[string][]starlark.Value
	index     []starlark.Value
	indexName string
	frozen    bool
}

var (
	_ starlark.HasAttrs  = (*Frame)(nil)
	_ starlark.HasSetKey = (*Frame)(nil)
	_ starlark.Sequence  = (*Frame)(nil)
)

func newFrame(index []starlark.Value) *Frame {
	return &Frame{data: map[string][]starlark.Value{}, index: index}
}

// FrameFromDataset copies d into a Frame. Integer columns become Int cells,
// float columns Float cells with NaN for missing, bools Bool, and everything
// else String with None for missing.
func FrameFromDataset(d *dataset.Dataset) *Frame {
	f := newFrame(rangeIndex(d.NumRows()))
	for _, c := range d.Columns {
		vals := make([]starlark.Value, len(c.Raw))
		for i, raw := range c.Raw {
			vals[i] = cell(c, i, raw)
		}
		f.addColumn(c.Name, vals)
	}
	return f
}

func cell(c *dataset.Column, i int, raw string) starlark.Value {
	if c.Null[i] {
		if c.Kind.Numeric() {
			return starlark.Float(math.NaN())
		}
		return starlark.None
	}
	switch c.Kind {
	case dataset.KindInt:
		return starlark.MakeInt64(int64(c.Num[i]))
	case dataset.KindFloat:
		return starlark.Float(c.Num[i])
	case dataset.KindBool:
		return starlark.Bool(strings.EqualFold(raw, "true"))
	}
	return starlark.String(raw)
}

func (f *Frame) rows() int {
	if f.index != nil {
		return len(f.index)
	}
	if len(f.columns) > 0 {
		return len(f.data[f.columns[0]])
	}
	return 0
}

func (f *Frame) addColumn(name string, vals []starlark.Value) {
	if f.index == nil {
		f.index = rangeIndex(len(vals))
	}
	if _, ok := f.data[name]; !ok {
		f.columns = append(f.columns, name)
	}
	f.data[name] = vals
}

func (f *Frame) column(name string) (*Series, error) {
	vals, ok := f.data[name]
	if !ok {
		return nil, fmt.Errorf("KeyError: column %q not found (columns: %s)", name, strings.Join(f.columns, ", "))
	}
	return &Series{name: name, indexName: f.indexName, index: f.index, values: vals}, nil
}

// take builds a frame from the given row positions.
func (f *Frame) take(pos []int) *Frame {
	out := newFrame(pick(f.index, pos))
	out.indexName = f.indexName
	for _, c := range f.columns {
		out.addColumn(c, pick(f.data[c], pos))
	}
	return out
}

func (f *Frame) selectColumns(names []string) (*Frame, error) {
	out := newFrame(f.index)
	out.indexName = f.indexName
	for _, n := range names {
		vals, ok := f.data[n]
		if !ok {
			return nil, fmt.Errorf("KeyError: column %q not found", n)
		}
		out.addColumn(n, vals)
	}
	return out, nil
}

func (f *Frame) numericColumns() []string {
	var out []string
	for _, c := range f.columns {
		if allQuantities(f.data[c]) {
			out = append(out, c)
		}
	}
	return out
}

func (f *Frame) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(append([]string{""}, f.columns...), "\t"))
	b.WriteByte('\n')
	n := min(f.rows(), 10)
	for i := 0; i < n; i++ {
		b.WriteString(label(f.index[i]))
		for _, c := range f.columns {
			b.WriteByte('\t')
			b.WriteString(label(f.data[c][i]))
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "[%d rows x %d columns]", f.rows(), len(f.columns))
	return b.String()
}

func (f *Frame) Type() string          { return "DataFrame" }
func (f *Frame) Freeze()               { f.frozen = true }
func (f *Frame) Truth() starlark.Bool  { return f.rows() > 0 }
func (f *Frame) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: DataFrame") }

// Len is the row count, matching len(df).
func (f *Frame) Len() int { return f.rows() }

// Iterate yields column names, matching `for col in df`.
func (f *Frame) Iterate() starlark.Iterator {
	names := make([]starlark.Value, len(f.columns))
	for i, c := range f.columns {
		names[i] = starlark.String(c)
	}
	return &valuesIter{vals: names}
}

// Get selects a column by name, a sub-frame by a list of names, or rows by a
// boolean Series.
func (f *Frame) Get(k starlark.Value) (starlark.Value, bool, error) {
	switch key := k.(type) {
	case starlark.String:
		s, err := f.column(string(key))
		if err != nil {
			return nil, false, err
		}
		return s, true, nil
	case *Series:
		if key.dtype() == "object" {
			if _, isBool := firstValue(key.values).(starlark.Bool); isBool {
				pos, err := maskPositions(key, f.rows())
				if err != nil {
					return nil, false, err
				}
				return f.take(pos), true, nil
			}
		}
		names, err := stringValues(key.values)
		if err != nil {
			return nil, false, err
		}
		sub, err := f.selectColumns(names)
		return sub, err == nil, err
	case *starlark.List, starlark.Tuple:
		vals, err := elements(key)
		if err != nil {
			return nil, false, err
		}
		names, err := stringValues(vals)
		if err != nil {
			return nil, false, err
		}
		sub, err := f.selectColumns(names)
		return sub, err == nil, err
	}
	return nil, false, fmt.Errorf("DataFrame indices must be column names, got %s", k.Type())
}

func firstValue(vals []starlark.Value) starlark.Value {
	if len(vals) == 0 {
		return starlark.None
	}
	return vals[0]
}

func stringValues(vals []starlark.Value) ([]string, error) {
	out := make([]string, len(vals))
	for i, v := range vals {
		s, ok := starlark.AsString(v)
		if !ok {
			return nil, fmt.Errorf("column names must be strings, got %s", v.Type())
		}
		out[i] = s
	}
	return out, nil
}

// SetKey assigns a column: df["total"] = df["a"] * df["b"], a list, or a scalar.
func (f *Frame) SetKey(k, v starlark.Value) error {
	if f.frozen {
		return fmt.Errorf("cannot assign to a frozen DataFrame")
	}
	name, ok := starlark.AsString(k)
	if !ok {
		return fmt.Errorf("column name must be a string, got %s", k.Type())
	}
	n := f.rows()
	switch x := v.(type) {
	case *Series, *starlark.List, starlark.Tuple:
		vals, err := elements(x)
		if err != nil {
			return err
		}
		if len(f.columns) > 0 && len(vals) != n {
			return fmt.Errorf("length of values (%d) does not match length of index (%d)", len(vals), n)
		}
		f.addColumn(name, append([]starlark.Value(nil), vals...))
	default:
		vals := make([]starlark.Value, n)
		for i := range vals {
			vals[i] = v
		}
		f.addColumn(name, vals)
	}
	return nil
}

func (f *Frame) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		names := make([]starlark.Value, len(f.columns))
		for i, c := range f.columns {
			names[i] = starlark.String(c)
		}
		return newSeries("", nil, names), nil
	case "shape":
		return starlark.Tuple{starlark.MakeInt(f.rows()), starlark.MakeInt(len(f.columns))}, nil
	case "index":
		return newSeries(f.indexName, nil, f.index), nil
	case "size":
		return starlark.MakeInt(f.rows() * len(f.columns)), nil
	case "empty":
		return starlark.Bool(f.rows() == 0 || len(f.columns) == 0), nil
	case "dtypes":
		types := make([]starlark.Value, len(f.columns))
		idx := make([]starlark.Value, len(f.columns))
		for i, c := range f.columns {
			s, _ := f.column(c)
			types[i] = starlark.String(s.dtype())
			idx[i] = starlark.String(c)
		}
		return newSeries("", idx, types), nil
	case "iloc":
		return &rowIndexer{frame: f}, nil
	case "plot":
		return &plotAccessor{target: f}, nil
	}
	if fn, ok := frameMethods[name]; ok {
		return bind(f, name, fn), nil
	}
	if vals, ok := f.data[name]; ok {
		return &Series{name: name, indexName: f.indexName, index: f.index, values: vals}, nil
	}
	return nil, nil
}

func (f *Frame) AttrNames() []string {
	return methodNames(frameMethods, "columns", "shape", "index", "size", "empty", "dtypes", "iloc", "plot")
}

var frameMethods map[string]method[*Frame]

func init() {
	frameMethods = map[string]method[*Frame]{
		"head":          frameHead,
		"tail":          frameTail,
		"copy":          func(f *Frame, _ params) (starlark.Value, error) { return f.take(allRows(f.rows())), nil },
		"groupby":       frameGroupBy,
		"sort_values":   frameSortValues,
		"sort_index":    frameSortIndex,
		"nlargest":      func(f *Frame, p params) (starlark.Value, error) { return frameTop(f, p, false) },
		"nsmallest":     func(f *Frame, p params) (starlark.Value, error) { return frameTop(f, p, true) },
		"dropna":        frameDropna,
		"fillna":        frameFillna,
		"reset_index":   frameResetIndex,
		"set_index":     frameSetIndex,
		"rename":        frameRename,
		"drop":          frameDrop,
		"select_dtypes": frameSelectDtypes,
		"value_counts":  frameValueCounts,
		"sum":           frameReduce("sum"),
		"mean":          frameReduce("mean"),
		"median":        frameReduce("median"),
		"min":           frameReduce("min"),
		"max":           frameReduce("max"),
		"std":           frameReduce("std"),
		"count":         frameReduce("count"),
		"nunique":       frameNunique,
	}
}

func allRows(n int) []int {
	pos := make([]int, n)
	for i := range pos {
		pos[i] = i
	}
	return pos
}

func frameHead(f *Frame, p params) (starlark.Value, error) {
	n, err := p.int(0, "n", 5)
	if err != nil {
		return nil, err
	}
	return f.take(allRows(clampCount(n, f.rows()))), nil
}

func frameTail(f *Frame, p params) (starlark.Value, error) {
	n, err := p.int(0, "n", 5)
	if err != nil {
		return nil, err
	}
	n = clampCount(n, f.rows())
	pos := allRows(f.rows())[f.rows()-n:]
	return f.take(pos), nil
}

// sortRows returns the stable permutation ordering rows by the given keys.
func (f *Frame) sortRows(keys []string, ascending []bool) ([]int, error) {
	pos := allRows(f.rows())
	// Sorting by the last key first with a stable sort yields lexicographic order.
	for k := len(keys) - 1; k >= 0; k-- {
		vals, ok := f.data[keys[k]]
		if !ok {
			return nil, fmt.Errorf("KeyError: column %q not found", keys[k])
		}
		sub := pick(vals, pos)
		perm := order(sub, ascending[k])
		next := make([]int, len(pos))
		for i, p := range perm {
			next[i] = pos[p]
		}
		pos = next
	}
	return pos, nil
}

func ascendingFlags(p params, n int) []bool {
	flags := make([]bool, n)
	v := p.get(-1, "ascending")
	list, isSeq := v.(*starlark.List)
	for i := range flags {
		flags[i] = true
		switch {
		case isSeq && i < list.Len():
			flags[i] = bool(list.Index(i).Truth())
		case v != nil && !isSeq:
			flags[i] = bool(v.Truth())
		}
	}
	return flags
}

func frameSortValues(f *Frame, p params) (starlark.Value, error) {
	keys, err := p.strs(0, "by")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("sort_values: missing by")
	}
	pos, err := f.sortRows(keys, ascendingFlags(p, len(keys)))
	if err != nil {
		return nil, err
	}
	return f.take(pos), nil
}

func frameSortIndex(f *Frame, p params) (starlark.Value, error) {
	return f.take(order(f.index, p.bool(-1, "ascending", true))), nil
}

func frameTop(f *Frame, p params, smallest bool) (starlark.Value, error) {
	n, err := p.int(0, "n", 5)
	if err != nil {
		return nil, err
	}
	keys, err := p.strs(1, "columns")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: missing columns", p.fn)
	}
	flags := make([]bool, len(keys))
	for i := range flags {
		flags[i] = smallest
	}
	pos, err := f.sortRows(keys, flags)
	if err != nil {
		return nil, err
	}
	return f.take(pos[:clampCount(n, len(pos))]), nil
}

func frameDropna(f *Frame, p params) (starlark.Value, error) {
	subset, err := p.strs(-1, "subset")
	if err != nil {
		return nil, err
	}
	if len(subset) == 0 {
		subset = f.columns
	}
	var pos []int
rows:
	for i := 0; i < f.rows(); i++ {
		for _, c := range subset {
			vals, ok := f.data[c]
			if !ok {
				return nil, fmt.Errorf("KeyError: column %q not found", c)
			}
			if isMissing(vals[i]) {
				continue rows
			}
		}
		pos = append(pos, i)
	}
	return f.take(pos), nil
}

func frameFillna(f *Frame, p params) (starlark.Value, error) {
	fill := p.get(0, "value")
	if fill == nil {
		return nil, fmt.Errorf("fillna: missing value")
	}
	out := newFrame(f.index)
	out.indexName = f.indexName
	for _, c := range f.columns {
		vals := make([]starlark.Value, len(f.data[c]))
		for i, v := range f.data[c] {
			if isMissing(v) {
				vals[i] = fill
			} else {
				vals[i] = v
			}
		}
		out.addColumn(c, vals)
	}
	return out, nil
}

func frameResetIndex(f *Frame, p params) (starlark.Value, error) {
	out := newFrame(rangeIndex(f.rows()))
	if !p.bool(-1, "drop", false) {
		addIndexColumns(out, f.indexName, f.index)
	}
	for _, c := range f.columns {
		out.addColumn(c, f.data[c])
	}
	return out, nil
}

// addIndexColumns turns an index back into columns. A multi-key index named
// "a,b" becomes the two columns a and b.
func addIndexColumns(out *Frame, name string, index []starlark.Value) {
	if name == "" {
		name = "index"
	}
	if keys, ok := tupleIndex(index); ok {
		if names := strings.Split(name, ","); len(names) == len(keys) {
			for k, n := range names {
				out.addColumn(n, keys[k])
			}
			return
		}
	}
	out.addColumn(name, index)
}

// tupleIndex splits a multi-key index into one value slice per key.
func tupleIndex(index []starlark.Value) ([][]starlark.Value, bool) {
	if len(index) == 0 {
		return nil, false
	}
	first, ok := index[0].(starlark.Tuple)
	if !ok {
		return nil, false
	}
	keys := make([][]starlark.Value, len(first))
	for _, v := range index {
		t, ok := v.(starlark.Tuple)
		if !ok || len(t) != len(first) {
			return nil, false
		}
		for k := range t {
			keys[k] = append(keys[k], t[k])
		}
	}
	return keys, true
}

func frameSetIndex(f *Frame, p params) (starlark.Value, error) {
	key, err := p.str(0, "keys", "")
	if err != nil {
		return nil, err
	}
	vals, ok := f.data[key]
	if !ok {
		return nil, fmt.Errorf("KeyError: column %q not found", key)
	}
	out := newFrame(vals)
	out.indexName = key
	for _, c := range f.columns {
		if c != key {
			out.addColumn(c, f.data[c])
		}
	}
	return out, nil
}

func frameRename(f *Frame, p params) (starlark.Value, error) {
	mapping, _ := p.get(-1, "columns").(*starlark.Dict)
	out := newFrame(f.index)
	out.indexName = f.indexName
	for _, c := range f.columns {
		name := c
		if mapping != nil {
			if v, found, _ := mapping.Get(starlark.String(c)); found {
				if s, ok := starlark.AsString(v); ok {
					name = s
				}
			}
		}
		out.addColumn(name, f.data[c])
	}
	return out, nil
}

func frameDrop(f *Frame, p params) (starlark.Value, error) {
	cols, err := p.strs(-1, "columns")
	if err != nil {
		return nil, err
	}
	if cols == nil {
		if cols, err = p.strs(0, "labels"); err != nil {
			return nil, err
		}
	}
	drop := map[string]bool{}
	for _, c := range cols {
		if _, ok := f.data[c]; !ok {
			return nil, fmt.Errorf("KeyError: column %q not found", c)
		}
		drop[c] = true
	}
	var keep []string
	for _, c := range f.columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	return f.selectColumns(keep)
}

func frameSelectDtypes(f *Frame, p params) (starlark.Value, error) {
	include, err := p.strs(0, "include")
	if err != nil {
		return nil, err
	}
	exclude, err := p.strs(1, "exclude")
	if err != nil {
		return nil, err
	}
	matches := func(c string, kinds []string) bool {
		s, _ := f.column(c)
		dt := s.dtype()
		for _, k := range kinds {
			switch k {
			case "number", "numeric":
				if dt != "object" {
					return true
				}
			case "object", "category", "string":
				if dt == "object" {
					return true
				}
			default:
				if strings.HasPrefix(dt, k) {
					return true
				}
			}
		}
		return false
	}
	var keep []string
	for _, c := range f.columns {
		if len(include) > 0 && !matches(c, include) {
			continue
		}
		if len(exclude) > 0 && matches(c, exclude) {
			continue
		}
		keep = append(keep, c)
	}
	return f.selectColumns(keep)
}

func frameValueCounts(f *Frame, p params) (starlark.Value, error) {
	if len(f.columns) != 1 {
		return nil, fmt.Errorf("value_counts: select a single column first")
	}
	s, _ := f.column(f.columns[0])
	return seriesValueCounts(s, p)
}

// frameReduce reduces every numeric column to one value, returning a Series
// indexed by column name. count applies to all columns.
func frameReduce(kind string) method[*Frame] {
	return func(f *Frame, p params) (starlark.Value, error) {
		cols := f.numericColumns()
		if kind == "count" {
			cols = f.columns
		}
		idx := make([]starlark.Value, len(cols))
		vals := make([]starlark.Value, len(cols))
		red := reducer(kind)
		for i, c := range cols {
			s, _ := f.column(c)
			v, err := red(s, p)
			if err != nil {
				return nil, err
			}
			idx[i] = starlark.String(c)
			vals[i] = v
		}
		return newSeries("", idx, vals), nil
	}
}

func frameNunique(f *Frame, _ params) (starlark.Value, error) {
	idx := make([]starlark.Value, len(f.columns))
	vals := make([]starlark.Value, len(f.columns))
	for i, c := range f.columns {
		idx[i] = starlark.String(c)
		vals[i] = starlark.MakeInt(len(distinct(f.data[c])))
	}
	return newSeries("", idx, vals), nil
}

// rowIndexer implements df.iloc for integer positions and slices.
type rowIndexer struct{ frame *Frame }

var _ starlark.Sliceable = (*rowIndexer)(nil)

func (r *rowIndexer) String() string        { return "<iloc>" }
func (r *rowIndexer) Type() string          { return "iLocIndexer" }
func (r *rowIndexer) Freeze()               {}
func (r *rowIndexer) Truth() starlark.Bool  { return true }
func (r *rowIndexer) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: iLocIndexer") }
func (r *rowIndexer) Len() int              { return r.frame.rows() }

// Index returns row i as a Series indexed by column name.
func (r *rowIndexer) Index(i int) starlark.Value {
	f := r.frame
	idx := make([]starlark.Value, len(f.columns))
	vals := make([]starlark.Value, len(f.columns))
	for j, c := range f.columns {
		idx[j] = starlark.String(c)
		vals[j] = f.data[c][i]
	}
	return newSeries(label(f.index[i]), idx, vals)
}

func (r *rowIndexer) Slice(start, end, step int) starlark.Value {
	return r.frame.take(sliceIndices(start, end, step))
}
