package sandbox

import (
	"fmt"
	"math"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// numpyModule is the small part of numpy that chart scripts lean on: ranges,
// reductions and elementwise math over lists and series.
func numpyModule() *starlarkstruct.Module {
	members := starlark.StringDict{
		"nan": starlark.Float(math.NaN()),
		"pi":  starlark.Float(math.Pi),
		"e":   starlark.Float(math.E),
	}
	builtins := map[string]method[*starlarkstruct.Module]{
		"arange":     npArange,
		"linspace":   npLinspace,
		"array":      npArray,
		"asarray":    npArray,
		"unique":     npUnique,
		"percentile": npPercentile,
		"cumsum": func(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
			s, err := asSeries(p.get(0, "a"))
			if err != nil {
				return nil, err
			}
			return seriesCumsum(s, p)
		},
		"isnan": func(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
			return mapValues(p.get(0, "x"), func(v starlark.Value) (starlark.Value, error) {
				return starlark.Bool(isMissing(v)), nil
			})
		},
		"round": func(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
			digits, err := p.int(1, "decimals", 0)
			if err != nil {
				return nil, err
			}
			scale := math.Pow(10, float64(digits))
			return mathValues(p.get(0, "a"), func(f float64) float64 { return math.Round(f*scale) / scale })
		},
	}
	for name, kind := range map[string]string{"sum": "sum", "mean": "mean", "median": "median", "min": "min",
		"max": "max", "std": "std", "var": "var", "nansum": "sum", "nanmean": "mean", "nanmedian": "median"} {
		builtins[name] = npReduce(kind)
	}
	for name, fn := range map[string]func(float64) float64{"sqrt": math.Sqrt, "log": math.Log, "log10": math.Log10,
		"exp": math.Exp, "abs": math.Abs, "floor": math.Floor, "ceil": math.Ceil} {
		builtins[name] = npMath(fn)
	}
	m := &starlarkstruct.Module{Name: "numpy", Members: members}
	for name, fn := range builtins {
		members[name] = bind(m, name, fn)
	}
	return m
}

func asSeries(v starlark.Value) (*Series, error) {
	if s, ok := v.(*Series); ok {
		return s, nil
	}
	if v == nil {
		return nil, fmt.Errorf("missing array argument")
	}
	vals, err := elements(v)
	if err != nil {
		return nil, err
	}
	return newSeries("", nil, vals), nil
}

// mapValues applies fn to a scalar, to every element of a series keeping its
// index, or to every element of a sequence returning a list.
func mapValues(v starlark.Value, fn func(starlark.Value) (starlark.Value, error)) (starlark.Value, error) {
	if v == nil {
		return nil, fmt.Errorf("missing argument")
	}
	if _, ok := number(v); ok {
		return fn(v)
	}
	if _, ok := v.(starlark.String); ok {
		return fn(v)
	}
	vals, err := elements(v)
	if err != nil {
		return nil, err
	}
	out := make([]starlark.Value, len(vals))
	for i, e := range vals {
		if out[i], err = fn(e); err != nil {
			return nil, err
		}
	}
	if s, ok := v.(*Series); ok {
		return s.with(s.index, out), nil
	}
	return starlark.NewList(out), nil
}

func mathValues(v starlark.Value, fn func(float64) float64) (starlark.Value, error) {
	return mapValues(v, func(e starlark.Value) (starlark.Value, error) {
		f, ok := number(e)
		if !ok {
			return nil, fmt.Errorf("value %s is not numeric", e.String())
		}
		return starlark.Float(fn(f)), nil
	})
}

func npMath(fn func(float64) float64) method[*starlarkstruct.Module] {
	return func(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
		return mathValues(p.get(0, "x"), fn)
	}
}

func npReduce(kind string) method[*starlarkstruct.Module] {
	return func(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
		s, err := asSeries(p.get(0, "a"))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.fn, err)
		}
		if !numericCells(s.values) {
			return nil, fmt.Errorf("%s: values are not numeric", p.fn)
		}
		return starlark.Float(aggregate(kind, s.present())), nil
	}
}

func npArange(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
	start, stop, step := 0.0, 0.0, 1.0
	var err error
	switch len(p.args) {
	case 0:
		return nil, fmt.Errorf("arange: missing stop")
	case 1:
		stop, err = p.float(0, "stop", 0)
	default:
		if start, err = p.float(0, "start", 0); err == nil {
			if stop, err = p.float(1, "stop", 0); err == nil {
				step, err = p.float(2, "step", 1)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, fmt.Errorf("arange: step must not be zero")
	}
	n := int(math.Ceil((stop - start) / step))
	if n < 0 {
		n = 0
	}
	if n > 1_000_000 {
		return nil, fmt.Errorf("arange: %d elements is too many", n)
	}
	integral := start == math.Trunc(start) && step == math.Trunc(step)
	out := make([]starlark.Value, n)
	for i := range out {
		v := start + float64(i)*step
		if integral {
			out[i] = starlark.MakeInt64(int64(v))
		} else {
			out[i] = starlark.Float(v)
		}
	}
	return starlark.NewList(out), nil
}

func npLinspace(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
	start, err := p.float(0, "start", 0)
	if err != nil {
		return nil, err
	}
	stop, err := p.float(1, "stop", 0)
	if err != nil {
		return nil, err
	}
	n, err := p.int(2, "num", 50)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > 1_000_000 {
		return nil, fmt.Errorf("linspace: invalid num %d", n)
	}
	out := make([]starlark.Value, n)
	for i := range out {
		if n == 1 {
			out[i] = starlark.Float(start)
			continue
		}
		out[i] = starlark.Float(start + (stop-start)*float64(i)/float64(n-1))
	}
	return starlark.NewList(out), nil
}

func npArray(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
	v := p.get(0, "object")
	if s, ok := v.(*Series); ok {
		return s.with(rangeIndex(len(s.values)), s.values), nil
	}
	vals, err := elements(v)
	if err != nil {
		return nil, fmt.Errorf("array: %w", err)
	}
	return starlark.NewList(vals), nil
}

func npUnique(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
	s, err := asSeries(p.get(0, "ar"))
	if err != nil {
		return nil, err
	}
	vals := distinct(s.values)
	sort.SliceStable(vals, func(i, j int) bool { return less(vals[i], vals[j]) })
	return starlark.NewList(vals), nil
}

// npPercentile interpolates linearly between closest ranks.
func npPercentile(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
	s, err := asSeries(p.get(0, "a"))
	if err != nil {
		return nil, err
	}
	q, err := p.float(1, "q", 50)
	if err != nil {
		return nil, err
	}
	vals := s.present()
	if len(vals) == 0 {
		return starlark.Float(math.NaN()), nil
	}
	sort.Float64s(vals)
	pos := q / 100 * float64(len(vals)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return starlark.Float(vals[lo] + (vals[hi]-vals[lo])*(pos-float64(lo))), nil
}

// pandasModule covers constructors and conversions scripts call on pd.
func pandasModule() *starlarkstruct.Module {
	m := &starlarkstruct.Module{Name: "pandas", Members: starlark.StringDict{
		"NA":  starlark.None,
		"NaT": starlark.None,
	}}
	for name, fn := range map[string]method[*starlarkstruct.Module]{
		"DataFrame":   pdDataFrame,
		"Series":      pdSeries,
		"to_numeric":  pdToNumeric,
		"to_datetime": pdToDatetime,
		"isna": func(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
			return mapValues(p.get(0, "obj"), func(v starlark.Value) (starlark.Value, error) {
				return starlark.Bool(isMissing(v)), nil
			})
		},
		"notna": func(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
			return mapValues(p.get(0, "obj"), func(v starlark.Value) (starlark.Value, error) {
				return starlark.Bool(!isMissing(v)), nil
			})
		},
	} {
		m.Members[name] = bind(m, name, fn)
	}
	return m
}

func pdDataFrame(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
	data, ok := p.get(0, "data").(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("DataFrame: data must be a dict of columns")
	}
	var index []starlark.Value
	if iv := p.get(-1, "index"); iv != nil {
		var err error
		if index, err = elements(iv); err != nil {
			return nil, fmt.Errorf("DataFrame: index: %w", err)
		}
	}
	f := newFrame(index)
	for _, item := range data.Items() {
		name, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("DataFrame: column names must be strings")
		}
		vals, err := elements(item[1])
		if err != nil {
			return nil, fmt.Errorf("DataFrame: column %q: %w", name, err)
		}
		if f.index != nil && len(vals) != len(f.index) {
			return nil, fmt.Errorf("DataFrame: column %q has %d values, expected %d", name, len(vals), len(f.index))
		}
		f.addColumn(name, append([]starlark.Value(nil), vals...))
	}
	return f, nil
}

func pdSeries(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
	vals, err := elements(p.get(0, "data"))
	if err != nil {
		return nil, fmt.Errorf("Series: %w", err)
	}
	var index []starlark.Value
	if iv := p.get(1, "index"); iv != nil {
		if index, err = elements(iv); err != nil {
			return nil, fmt.Errorf("Series: index: %w", err)
		}
		if len(index) != len(vals) {
			return nil, fmt.Errorf("Series: %d index labels for %d values", len(index), len(vals))
		}
	}
	name, err := p.str(-1, "name", "")
	if err != nil {
		return nil, err
	}
	return newSeries(name, index, append([]starlark.Value(nil), vals...)), nil
}

func pdToNumeric(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
	v := p.get(0, "arg")
	if s, ok := v.(*Series); ok {
		return seriesToNumeric(s, p)
	}
	return mapValues(v, func(e starlark.Value) (starlark.Value, error) {
		if f, ok := toNumber(e); ok {
			return starlark.Float(f), nil
		}
		return starlark.Float(math.NaN()), nil
	})
}

// pdToDatetime returns its argument: ISO dates already sort and label
// correctly as strings.
func pdToDatetime(_ *starlarkstruct.Module, p params) (starlark.Value, error) {
	v := p.get(0, "arg")
	if v == nil {
		return nil, fmt.Errorf("to_datetime: missing argument")
	}
	return v, nil
}
