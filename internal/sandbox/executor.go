package sandbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/KaramelBytes/storyteller/internal/chart"
	"github.com/KaramelBytes/storyteller/internal/dataset"
)

// DefaultMaxSteps bounds the interpreter so a runaway loop in generated code
// fails instead of pinning a CPU.
const DefaultMaxSteps = 50_000_000

// Stage names the phase in which an execution failed.
type Stage string

const (
	StageParse  Stage = "parse"
	StageRun    Stage = "run"
	StageResult Stage = "result"
)

// ExecutionError reports generated code that could not produce a chart.
type ExecutionError struct {
	Stage Stage
	Err   error
	// Trace is the interpreter backtrace for run stage failures.
	Trace string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("chart code failed (%s): %v", e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Result is what a successful execution leaves behind.
type Result struct {
	Figure *chart.Figure
	Scope  *Scope
	// Output collects everything the script printed.
	Output string
}

// Executor runs chart scripts. The zero value uses DefaultMaxSteps.
type Executor struct {
	MaxSteps uint64
}

// Execute runs code against d with a default Executor and returns the figure
// bound to fig.
func Execute(ctx context.Context, code string, d *dataset.Dataset) (*chart.Figure, error) {
	res, err := Executor{}.Run(ctx, code, d)
	if err != nil {
		return nil, err
	}
	return res.Figure, nil
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Run executes code with the scope built from d as its only namespace. The
// chart is read back from the global fig; a script that never assigns fig
// yields the current figure, which is the pre-created one unless the script
// made another.
func (e Executor) Run(ctx context.Context, code string, d *dataset.Dataset) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ExecutionError{Stage: StageRun, Err: err}
	}
	scope := NewScope(d)
	predeclared := scope.Predeclared()

	_, prog, err := starlark.SourceProgramOptions(fileOptions, "chart.star", stripImports(code), predeclared.Has)
	if err != nil {
		return nil, &ExecutionError{Stage: StageParse, Err: err}
	}

	var out strings.Builder
	thread := &starlark.Thread{
		Name: "chart",
		Print: func(_ *starlark.Thread, msg string) {
			out.WriteString(msg)
			out.WriteByte('\n')
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load(%q): modules are not available", module)
		},
	}
	thread.SetLocal(stateKey, scope.state)
	steps := e.MaxSteps
	if steps == 0 {
		steps = DefaultMaxSteps
	}
	thread.SetMaxExecutionSteps(steps)

	stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })
	defer stop()

	globals, err := prog.Init(thread, predeclared)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ExecutionError{Stage: StageRun, Err: ctxErr}
		}
		xerr := &ExecutionError{Stage: StageRun, Err: err}
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			xerr.Trace = evalErr.Backtrace()
		}
		return nil, xerr
	}

	fig := scope.state.gcf()
	if v, ok := globals[NameFigure]; ok {
		f, isFig := v.(*Figure)
		if !isFig {
			return nil, &ExecutionError{Stage: StageResult, Err: fmt.Errorf("fig is a %s, not a figure", v.Type())}
		}
		fig = f
	}
	scope.bind(globals)
	scope.Figure = fig
	return &Result{Figure: fig.model, Scope: scope, Output: out.String()}, nil
}

var (
	importLine = regexp.MustCompile(`^\s*(import\s+\S|from\s+\S+\s+import\s)`)
	magicLine  = regexp.MustCompile(`^\s*[%!]`)
)

// stripImports blanks import statements and notebook magics. Every module a
// script would import is already bound, and blanking keeps line numbers in
// error messages aligned with the code shown to the user. Parenthesized and
// backslash-continued imports are blanked through their last line.
func stripImports(code string) string {
	lines := strings.Split(code, "\n")
	var paren, cont bool
	for i, l := range lines {
		switch {
		case paren:
			paren = !strings.Contains(l, ")")
		case cont:
		case importLine.MatchString(l):
			paren = strings.Contains(l, "(") && !strings.Contains(l, ")")
		case magicLine.MatchString(l):
		default:
			continue
		}
		cont = strings.HasSuffix(strings.TrimSpace(l), "\\")
		lines[i] = ""
	}
	return strings.Join(lines, "\n")
}
