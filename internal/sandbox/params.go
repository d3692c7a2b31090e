package sandbox

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
)

// params is a lenient view of call arguments. Plotting scripts pass many
// styling keywords that have no effect on the chart model, so unknown keywords
// are accepted and ignored instead of failing the call.
type params struct {
	fn     string
	thread *starlark.Thread
	args   starlark.Tuple
	kw     map[string]starlark.Value
	// order lists keyword names as written in the call.
	order []string
}

func newParams(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) params {
	p := params{fn: b.Name(), thread: thread, args: args, kw: make(map[string]starlark.Value, len(kwargs))}
	for _, kv := range kwargs {
		if k, ok := kv[0].(starlark.String); ok {
			p.kw[string(k)] = kv[1]
			p.order = append(p.order, string(k))
		}
	}
	return p
}

// get returns positional argument i if present, otherwise keyword name.
// None and absent arguments both yield nil.
func (p params) get(i int, name string) starlark.Value {
	var v starlark.Value
	if i >= 0 && i < len(p.args) {
		v = p.args[i]
	} else if name != "" {
		v = p.kw[name]
	}
	if v == starlark.None {
		return nil
	}
	return v
}

func (p params) has(i int, name string) bool { return p.get(i, name) != nil }

func (p params) str(i int, name, def string) (string, error) {
	v := p.get(i, name)
	if v == nil {
		return def, nil
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("%s: %s must be a string, got %s", p.fn, p.argName(i, name), v.Type())
	}
	return s, nil
}

func (p params) int(i int, name string, def int) (int, error) {
	v := p.get(i, name)
	if v == nil {
		return def, nil
	}
	if f, ok := v.(starlark.Float); ok && float64(f) == math.Trunc(float64(f)) {
		return int(f), nil
	}
	n, err := starlark.AsInt32(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", p.fn, p.argName(i, name), err)
	}
	return n, nil
}

func (p params) float(i int, name string, def float64) (float64, error) {
	v := p.get(i, name)
	if v == nil {
		return def, nil
	}
	f, ok := number(v)
	if !ok {
		return 0, fmt.Errorf("%s: %s must be a number, got %s", p.fn, p.argName(i, name), v.Type())
	}
	return f, nil
}

func (p params) bool(i int, name string, def bool) bool {
	v := p.get(i, name)
	if v == nil {
		return def
	}
	return bool(v.Truth())
}

// strs accepts a single string or a sequence of strings.
func (p params) strs(i int, name string) ([]string, error) {
	v := p.get(i, name)
	if v == nil {
		return nil, nil
	}
	if s, ok := starlark.AsString(v); ok {
		return []string{s}, nil
	}
	vals, err := elements(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", p.fn, p.argName(i, name), err)
	}
	out := make([]string, len(vals))
	for j, e := range vals {
		s, ok := starlark.AsString(e)
		if !ok {
			return nil, fmt.Errorf("%s: %s must contain strings, got %s", p.fn, p.argName(i, name), e.Type())
		}
		out[j] = s
	}
	return out, nil
}

// size reads a (width, height) pair such as figsize.
func (p params) size(name string) (w, h float64, ok bool, err error) {
	v := p.get(-1, name)
	if v == nil {
		return 0, 0, false, nil
	}
	vals, err := elements(v)
	if err != nil || len(vals) != 2 {
		return 0, 0, false, fmt.Errorf("%s: %s must be a (width, height) pair", p.fn, name)
	}
	w, wok := number(vals[0])
	h, hok := number(vals[1])
	if !wok || !hok {
		return 0, 0, false, fmt.Errorf("%s: %s must be numeric", p.fn, name)
	}
	return w, h, true, nil
}

func (p params) argName(i int, name string) string {
	if i >= 0 && i < len(p.args) || name == "" {
		return fmt.Sprintf("argument %d", i+1)
	}
	return name
}

// method binds a Go implementation to a receiver as a Starlark builtin.
type method[T starlark.Value] func(recv T, p params) (starlark.Value, error)

func bind[T starlark.Value](recv T, name string, fn method[T]) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return fn(recv, newParams(thread, b, args, kwargs))
	})
}

func methodNames[T starlark.Value](table map[string]method[T], extra ...string) []string {
	names := make([]string, 0, len(table)+len(extra))
	for k := range table {
		names = append(names, k)
	}
	return append(names, extra...)
}
