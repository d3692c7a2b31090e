package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/storyteller/internal/chart"
	"github.com/KaramelBytes/storyteller/internal/dataset"
)

const salesCSV = `region,units,price
North,10,2.5
South,7,3.25
North,5,4.0
West,12,1.5
`

func sales(t *testing.T) *dataset.Dataset {
	t.Helper()
	d, err := dataset.Load("sales.csv", strings.NewReader(salesCSV), dataset.DefaultOptions())
	require.NoError(t, err)
	return d
}

func run(t *testing.T, code string) *Result {
	t.Helper()
	res, err := Executor{}.Run(context.Background(), code, sales(t))
	require.NoError(t, err)
	require.NotNil(t, res.Figure)
	return res
}

func executionError(t *testing.T, err error) *ExecutionError {
	t.Helper()
	require.Error(t, err)
	var xerr *ExecutionError
	require.True(t, errors.As(err, &xerr), "want *ExecutionError, got %T: %v", err, err)
	return xerr
}

func TestExecuteDrawsOnPredeclaredAxes(t *testing.T) {
	fig, err := Execute(context.Background(), `
totals = df.groupby("region")["units"].sum()
ax.bar(totals.index, totals.values, color="tab:blue")
ax.set_title("Units by region")
ax.set_xlabel("Region")
`, sales(t))
	require.NoError(t, err)
	require.NotNil(t, fig)

	ax, err := fig.Ax(0)
	require.NoError(t, err)
	assert.Equal(t, "Units by region", ax.Title)
	assert.Equal(t, "Region", ax.XLabel)
	require.Len(t, ax.Series, 1)
	s := ax.Series[0]
	assert.Equal(t, chart.Bar, s.Kind)
	assert.Equal(t, []string{"North", "South", "West"}, s.Categories)
	assert.Equal(t, []float64{15, 7, 12}, s.Y)
	assert.Equal(t, "tab:blue", s.Color)
}

func TestExecuteReadsReassignedFig(t *testing.T) {
	res := run(t, `
import matplotlib.pyplot as plt
import seaborn as sns
fig, axes = plt.subplots(1, 2, figsize=(10, 4))
sns.barplot(data=df, x="region", y="price", ax=axes[0])
sns.scatterplot(data=df, x="units", y="price", ax=axes[1])
fig.suptitle("Overview")
`)
	fig := res.Figure
	assert.Equal(t, 1, fig.Rows)
	assert.Equal(t, 2, fig.Cols)
	assert.Equal(t, 10.0, fig.Width)
	assert.Equal(t, 4.0, fig.Height)
	assert.Equal(t, "Overview", fig.Title)

	bars := fig.Axes[0]
	require.Len(t, bars.Series, 1)
	assert.Equal(t, []string{"North", "South", "West"}, bars.Series[0].Categories)
	assert.Equal(t, []float64{3.25, 3.25, 1.5}, bars.Series[0].Y)
	assert.Equal(t, "region", bars.XLabel)
	assert.Equal(t, "price", bars.YLabel)

	pts := fig.Axes[1]
	require.Len(t, pts.Series, 1)
	assert.Equal(t, chart.Scatter, pts.Series[0].Kind)
	assert.Equal(t, []float64{10, 7, 5, 12}, pts.Series[0].X)

	assert.Same(t, fig, res.Scope.Figure.Model())
}

func TestExecuteParseError(t *testing.T) {
	_, err := Execute(context.Background(), "ax.bar(df['region'], ", sales(t))
	xerr := executionError(t, err)
	assert.Equal(t, StageParse, xerr.Stage)
}

func TestExecuteUndefinedNameIsParseError(t *testing.T) {
	_, err := Execute(context.Background(), "chart = make_chart(df)", sales(t))
	xerr := executionError(t, err)
	assert.Equal(t, StageParse, xerr.Stage)
	assert.Contains(t, xerr.Error(), "make_chart")
}

func TestExecuteRuntimeError(t *testing.T) {
	_, err := Execute(context.Background(), "\nax.bar(df['region'], df['revenue'])\n", sales(t))
	xerr := executionError(t, err)
	assert.Equal(t, StageRun, xerr.Stage)
	assert.Contains(t, xerr.Error(), "revenue")
	assert.Contains(t, xerr.Trace, "chart.star:2")
}

func TestExecuteFigMustBeFigure(t *testing.T) {
	for _, code := range []string{"fig = 1", "fig = ax", "fig = None"} {
		t.Run(code, func(t *testing.T) {
			_, err := Execute(context.Background(), code, sales(t))
			xerr := executionError(t, err)
			assert.Equal(t, StageResult, xerr.Stage)
		})
	}
}

func TestExecuteWithoutDrawingReturnsEmptyFigure(t *testing.T) {
	res := run(t, "n = len(df)")
	assert.True(t, res.Figure.Empty())
	assert.Equal(t, int64(4), res.Scope.Extra["n"])
}

func TestExecuteCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Execute(ctx, "ax.bar(['a'], [1])", sales(t))
	xerr := executionError(t, err)
	assert.Equal(t, StageRun, xerr.Stage)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteDeadlineAbortsLoop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Executor{MaxSteps: 1 << 62}.Run(ctx, "x = 0\nwhile True:\n    x += 1\n", sales(t))
	xerr := executionError(t, err)
	assert.Equal(t, StageRun, xerr.Stage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecuteStepLimit(t *testing.T) {
	_, err := Executor{MaxSteps: 1000}.Run(context.Background(), "x = 0\nwhile True:\n    x += 1\n", sales(t))
	xerr := executionError(t, err)
	assert.Equal(t, StageRun, xerr.Stage)
}

func TestExecuteDoesNotMutateDataset(t *testing.T) {
	d := sales(t)
	code := `
df["total"] = df["units"] * df["price"]
df["units"] = 0
ax.bar(df["region"], df["total"])
`
	for i := 0; i < 2; i++ {
		fig, err := Execute(context.Background(), code, d)
		require.NoError(t, err)
		assert.Equal(t, []float64{25, 22.75, 20, 18}, fig.Axes[0].Series[0].Y)
	}
	_, ok := d.Column("total")
	assert.False(t, ok)
	units, _ := d.Column("units")
	assert.Equal(t, []float64{10, 7, 5, 12}, units.Floats())
	assert.Equal(t, []string{"region", "units", "price"}, d.ColumnNames())
}

func TestExecuteCapturesPrintAndExtra(t *testing.T) {
	res := run(t, `
print(df.shape)
top = df["units"].max()
names = df.columns.tolist()
xs = np.arange(3)
`)
	assert.Equal(t, "(4, 3)\n", res.Output)
	assert.Equal(t, int64(12), res.Scope.Extra["top"])
	assert.Equal(t, []any{"region", "units", "price"}, res.Scope.Extra["names"])
	assert.Equal(t, []any{int64(0), int64(1), int64(2)}, res.Scope.Extra["xs"])
	assert.NotContains(t, res.Scope.Extra, NameFigure)
}

func TestExecuteValueCountsBarh(t *testing.T) {
	res := run(t, `
counts = df["region"].value_counts()
ax.barh(counts.index, counts.values)
`)
	s := res.Figure.Axes[0].Series[0]
	assert.Equal(t, chart.BarH, s.Kind)
	assert.Equal(t, []string{"North", "South", "West"}, s.Categories)
	assert.Equal(t, []float64{2, 1, 1}, s.Y)
}

func TestExecuteFramePlotAccessor(t *testing.T) {
	res := run(t, `
summary = df.groupby("region", as_index=False).agg(total=("units", "sum"), avg_price=("price", "mean"))
summary.plot(kind="bar", x="region", y="total", ax=ax, title="Totals", legend=False)
`)
	ax := res.Figure.Axes[0]
	assert.Equal(t, "Totals", ax.Title)
	require.Len(t, ax.Series, 1)
	assert.Equal(t, []string{"North", "South", "West"}, ax.Series[0].Categories)
	assert.Equal(t, []float64{15, 7, 12}, ax.Series[0].Y)
	assert.Equal(t, "region", ax.XLabel)
}

func TestExecutePyplotStateMachine(t *testing.T) {
	res := run(t, `
plt.figure(figsize=(8, 3))
plt.subplot(1, 2, 1)
plt.hist(df["units"], bins=5)
plt.title("Units")
plt.subplot(1, 2, 2)
plt.pie(df["price"], labels=df["region"])
plt.tight_layout()
plt.show()
fig = plt.gcf()
`)
	fig := res.Figure
	assert.Equal(t, 8.0, fig.Width)
	require.Len(t, fig.Axes, 2)
	assert.Equal(t, "Units", fig.Axes[0].Title)
	assert.Equal(t, chart.Hist, fig.Axes[0].Series[0].Kind)
	assert.Equal(t, 5, fig.Axes[0].Series[0].Bins)
	assert.Equal(t, chart.Bar, fig.Axes[1].Series[0].Kind)
	assert.Equal(t, []string{"North", "South", "North", "West"}, fig.Axes[1].Series[0].Categories)
}

func TestExecuteStylingCallsAreAccepted(t *testing.T) {
	res := run(t, `
sns.set_theme(style="whitegrid")
plt.style.use("ggplot")
plt.rcParams["figure.dpi"] = 120
bars = ax.bar(df["region"], df["units"], edgecolor="black", alpha=0.7)
ax.spines["top"].set_visible(False)
ax.tick_params(axis="x", rotation=45)
ax.grid(True)
ax.legend()
`)
	ax := res.Figure.Axes[0]
	assert.True(t, ax.Grid)
	assert.True(t, ax.Legend)
	assert.Len(t, ax.Series, 1)
}

func TestExecuteUnsupportedSeabornFunction(t *testing.T) {
	_, err := Execute(context.Background(), "sns.heatmap(df)", sales(t))
	xerr := executionError(t, err)
	assert.Equal(t, StageRun, xerr.Stage)
	assert.Contains(t, xerr.Error(), "sns.heatmap is not supported")
}

func TestExecuteSeabornPositionalVector(t *testing.T) {
	res := run(t, `
sns.histplot(df["units"], bins=4, ax=ax)
`)
	ax := res.Figure.Axes[0]
	require.Len(t, ax.Series, 1)
	s := ax.Series[0]
	assert.Equal(t, chart.Hist, s.Kind)
	assert.Equal(t, []float64{10, 7, 5, 12}, s.Y)
	assert.Equal(t, 4, s.Bins)
	assert.Equal(t, "units", ax.XLabel)

	res = run(t, "sns.histplot([1, 2, 2, 3])")
	assert.Equal(t, []float64{1, 2, 2, 3}, res.Figure.Axes[0].Series[0].Y)
}

func TestExecuteBooleanMask(t *testing.T) {
	res := run(t, `
big = df[df["units"].gt(6)]
ax.scatter(big["units"], big["price"])
`)
	s := res.Figure.Axes[0].Series[0]
	assert.Equal(t, []float64{10, 7, 12}, s.X)
	assert.Equal(t, []float64{2.5, 3.25, 1.5}, s.Y)
}

func TestExecuteRendersResult(t *testing.T) {
	res := run(t, "sns.countplot(data=df, x='region')\nsns.lineplot(data=df, x='units', y='price', ax=ax)")
	img, err := res.Figure.Render(chart.DefaultRenderOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, img.Data)
}

func TestStripImports(t *testing.T) {
	in := strings.Join([]string{
		"import pandas as pd",
		"from matplotlib import pyplot as plt",
		"  import numpy as np",
		"%matplotlib inline",
		"important = 1",
		"x = 'from a import b'",
	}, "\n")
	want := strings.Join([]string{"", "", "", "", "important = 1", "x = 'from a import b'"}, "\n")
	assert.Equal(t, want, stripImports(in))

	multi := strings.Join([]string{
		"from matplotlib import (",
		"    pyplot as plt,",
		"    ticker,",
		")",
		"from pandas import DataFrame, \\",
		"    Series",
		"n = len(df)",
	}, "\n")
	assert.Equal(t, "\n\n\n\n\n\nn = len(df)", stripImports(multi))
}

func TestExecuteParenthesizedImport(t *testing.T) {
	res := run(t, `
from matplotlib import (
    pyplot as plt,
)
ax.bar(df["region"], df["units"])
`)
	assert.Len(t, res.Figure.Axes[0].Series, 1)
}
