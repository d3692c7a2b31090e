package sandbox

import (
	"fmt"
	"math"
	"strconv"

	"go.starlark.net/starlark"
)

// GoToStarlark converts a Go value to a Starlark value.
// Supported types: string, int, int64, float64, bool, []string, []float64, []any, map[string]any
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case starlark.Value:
		return val, nil

	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []float64:
		list := make([]starlark.Value, len(val))
		for i, f := range val {
			list[i] = starlark.Float(f)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			sv, err := GoToStarlark(v)
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Starlark value back to a Go value.
// Returns: string, int64, float64, bool, []any, map[string]any, or nil.
// Frames, series and plot handles come back as their string form.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *starlark.List:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case starlark.Tuple:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("tuple index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	default:
		return val.String(), nil
	}
}

// number reports the float value of a numeric cell. None is NaN. Bools count
// as 0 and 1 the way pandas sums them.
func number(v starlark.Value) (float64, bool) {
	switch x := v.(type) {
	case starlark.Int:
		return float64(x.Float()), true
	case starlark.Float:
		return float64(x), true
	case starlark.Bool:
		if x {
			return 1, true
		}
		return 0, true
	case starlark.NoneType:
		return math.NaN(), true
	}
	return 0, false
}

func isMissing(v starlark.Value) bool {
	switch x := v.(type) {
	case starlark.NoneType:
		return true
	case starlark.Float:
		return math.IsNaN(float64(x))
	}
	return false
}

// isQuantity is true for Int and Float cells; bools and strings are categories.
func isQuantity(v starlark.Value) bool {
	switch v.(type) {
	case starlark.Int, starlark.Float:
		return true
	}
	return false
}

// allQuantities reports whether every non-missing value is an Int or Float.
func allQuantities(vals []starlark.Value) bool {
	seen := false
	for _, v := range vals {
		if isMissing(v) {
			continue
		}
		if !isQuantity(v) {
			return false
		}
		seen = true
	}
	return seen
}

// label renders a value as a tick or category label.
func label(v starlark.Value) string {
	switch x := v.(type) {
	case starlark.String:
		return string(x)
	case starlark.Float:
		f := float64(x)
		if math.IsNaN(f) {
			return "NaN"
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	case starlark.NoneType:
		return "NaN"
	case starlark.Bool:
		if x {
			return "True"
		}
		return "False"
	case starlark.Tuple:
		s := ""
		for i, e := range x {
			if i > 0 {
				s += ", "
			}
			s += label(e)
		}
		return s
	}
	return v.String()
}

// elements flattens a series, list, tuple or other iterable into values.
func elements(v starlark.Value) ([]starlark.Value, error) {
	switch x := v.(type) {
	case *Series:
		return x.values, nil
	case *Frame:
		if len(x.columns) == 1 {
			return x.data[x.columns[0]], nil
		}
		return nil, fmt.Errorf("expected one column, got a DataFrame with %d columns", len(x.columns))
	case starlark.Iterable:
		it := x.Iterate()
		defer it.Done()
		var out []starlark.Value
		var e starlark.Value
		for it.Next(&e) {
			out = append(out, e)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a sequence, got %s", v.Type())
}

func floats(vals []starlark.Value) ([]float64, error) {
	out := make([]float64, len(vals))
	for i, v := range vals {
		f, ok := number(v)
		if !ok {
			return nil, fmt.Errorf("value %s is not numeric", v.String())
		}
		out[i] = f
	}
	return out, nil
}

func labels(vals []starlark.Value) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = label(v)
	}
	return out
}

// less orders cells for sorting: missing values last, quantities before
// strings, then natural order within a kind.
func less(a, b starlark.Value) bool {
	am, bm := isMissing(a), isMissing(b)
	if am || bm {
		return !am && bm
	}
	af, aok := number(a)
	bf, bok := number(b)
	switch {
	case aok && bok:
		return af < bf
	case aok != bok:
		return aok
	}
	return label(a) < label(b)
}

func valueKey(v starlark.Value) string {
	if s, ok := v.(starlark.String); ok {
		return "s:" + string(s)
	}
	if f, ok := number(v); ok {
		if math.IsNaN(f) {
			return "nan"
		}
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return "v:" + v.String()
}

type valuesIter struct {
	vals []starlark.Value
	i    int
}

func (it *valuesIter) Next(p *starlark.Value) bool {
	if it.i >= len(it.vals) {
		return false
	}
	*p = it.vals[it.i]
	it.i++
	return true
}

func (it *valuesIter) Done() {}

func rangeIndex(n int) []starlark.Value {
	idx := make([]starlark.Value, n)
	for i := range idx {
		idx[i] = starlark.MakeInt(i)
	}
	return idx
}

// sliceIndices expands a Starlark slice triple into positions.
func sliceIndices(start, end, step int) []int {
	var out []int
	if step > 0 {
		for i := start; i < end; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > end; i += step {
			out = append(out, i)
		}
	}
	return out
}

func pick(vals []starlark.Value, pos []int) []starlark.Value {
	out := make([]starlark.Value, len(pos))
	for i, p := range pos {
		out[i] = vals[p]
	}
	return out
}
