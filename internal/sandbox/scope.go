package sandbox

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/KaramelBytes/storyteller/internal/dataset"
)

// Names bound in every execution scope.
const (
	NameDataFrame = "df"
	NamePyplot    = "plt"
	NameSeaborn   = "sns"
	NameFigure    = "fig"
	NameAxes      = "ax"
	NameNumpy     = "np"
	NamePandas    = "pd"
)

// Scope is the whole namespace a chart script can see. The script reaches
// nothing outside it: Starlark has no file, network or process access.
type Scope struct {
	DataFrame *Frame
	Pyplot    *Pyplot
	Seaborn   *Seaborn
	// Figure and Axes are created before the script runs so code that only
	// draws on ax still yields a chart.
	Figure *Figure
	Axes   *Axes
	// Extra holds every other global the script bound, converted to Go values.
	Extra map[string]any

	state *pyplotState
}

// NewScope builds a fresh scope over a copy of the dataset's cells. Scripts
// may add or overwrite columns of df without touching d.
func NewScope(d *dataset.Dataset) *Scope {
	st := &pyplotState{}
	fig := st.newFigure(1, 1)
	df := newFrame(nil)
	if d != nil {
		df = FrameFromDataset(d)
	}
	return &Scope{
		DataFrame: df,
		Pyplot:    &Pyplot{state: st},
		Seaborn:   &Seaborn{state: st},
		Figure:    fig,
		Axes:      fig.gca(),
		Extra:     map[string]any{},
		state:     st,
	}
}

// Predeclared returns the scope as Starlark predeclared names.
func (s *Scope) Predeclared() starlark.StringDict {
	return starlark.StringDict{
		NameDataFrame: s.DataFrame,
		NamePyplot:    s.Pyplot,
		NameSeaborn:   s.Seaborn,
		NameFigure:    s.Figure,
		NameAxes:      s.Axes,
		NameNumpy:     numpyModule(),
		NamePandas:    pandasModule(),
		"sum":         starlark.NewBuiltin("sum", builtinSum),
		"round":       starlark.NewBuiltin("round", builtinRound),
		"abs":         starlark.NewBuiltin("abs", builtinAbs),
	}
}

// bind records the script's globals: fig goes to Figure when it holds a
// figure, everything else to Extra.
func (s *Scope) bind(globals starlark.StringDict) {
	for name, v := range globals {
		switch name {
		case NameFigure:
			if f, ok := v.(*Figure); ok {
				s.Figure = f
			}
			continue
		case NameAxes:
			if a, ok := v.(*Axes); ok {
				s.Axes = a
				continue
			}
		}
		if _, isFn := v.(*starlark.Function); isFn {
			continue
		}
		gv, err := ToGo(v)
		if err != nil {
			gv = v.String()
		}
		s.Extra[name] = gv
	}
}

func builtinSum(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seq starlark.Value
	var start starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &seq, "start?", &start); err != nil {
		return nil, err
	}
	vals, err := elements(seq)
	if err != nil {
		return nil, fmt.Errorf("sum: %w", err)
	}
	total := start
	for _, v := range vals {
		if total, err = starlark.Binary(syntax.PLUS, total, v); err != nil {
			return nil, fmt.Errorf("sum: %w", err)
		}
	}
	return total, nil
}

func builtinRound(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var digits starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "number", &x, "ndigits?", &digits); err != nil {
		return nil, err
	}
	f, ok := number(x)
	if !ok {
		return nil, fmt.Errorf("round: expected a number, got %s", x.Type())
	}
	if digits == starlark.None {
		return starlark.MakeInt64(int64(math.RoundToEven(f))), nil
	}
	n, err := starlark.AsInt32(digits)
	if err != nil {
		return nil, fmt.Errorf("round: ndigits: %w", err)
	}
	scale := math.Pow(10, float64(n))
	return starlark.Float(math.Round(f*scale) / scale), nil
}

func builtinAbs(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case starlark.Int:
		if v.Sign() < 0 {
			return starlark.Binary(syntax.MINUS, starlark.MakeInt(0), v)
		}
		return v, nil
	case starlark.Float:
		return starlark.Float(math.Abs(float64(v))), nil
	case *Series:
		return elementwise(math.Abs)(v, params{fn: "abs"})
	}
	return nil, fmt.Errorf("abs: expected a number, got %s", x.Type())
}
