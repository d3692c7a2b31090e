package sandbox

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameOperations(t *testing.T) {
	tests := []struct {
		name string
		code string
		want any
	}{
		{"sort and head", `v = df.sort_values("units", ascending=False).head(2)["region"].tolist()`, []any{"West", "North"}},
		{"nlargest", `v = df.nlargest(1, "price")["region"].tolist()`, []any{"North"}},
		{"mean", `v = df["price"].mean()`, 2.8125},
		{"int sum stays int", `v = df["units"].sum()`, int64(34)},
		{"nunique", `v = df["region"].nunique()`, int64(3)},
		{"unique order", `v = df["region"].unique().tolist()`, []any{"North", "South", "West"}},
		{"filter with isin", `v = len(df[df["region"].isin(["North", "West"])])`, int64(3)},
		{"series arithmetic", `v = (df["units"] * 2).tolist()`, []any{int64(20), int64(14), int64(10), int64(24)}},
		{"shape", `v = df[["region", "units"]].shape`, []any{int64(4), int64(2)}},
		{"groupby mean", `v = df.groupby("region")["price"].mean().tolist()`, []any{3.25, 3.25, 1.5}},
		{"groupby size", `v = df.groupby("region").size().tolist()`, []any{int64(2), int64(1), int64(1)}},
		{"agg dict", `v = df.groupby("region").agg({"units": "max"})["units"].tolist()`, []any{int64(10), int64(7), int64(12)}},
		{"reset index columns", `v = df.groupby("region")["units"].sum().reset_index().columns.tolist()`, []any{"region", "units"}},
		{"multi key reset", `v = df.groupby(["region", "units"]).size().reset_index().columns.tolist()`, []any{"region", "units", "size"}},
		{"iloc row slice", `v = df.iloc[1:3]["units"].tolist()`, []any{int64(7), int64(5)}},
		{"apply lambda", `v = df["units"].apply(lambda u: u + 1).tolist()`, []any{int64(11), int64(8), int64(6), int64(13)}},
		{"value_counts names", `v = [df["region"].value_counts().name, df["region"].value_counts(normalize=True).name]`, []any{"count", "proportion"}},
		{"numpy mean", `v = np.mean(df["units"])`, 8.5},
		{"numpy linspace", `v = np.linspace(0, 1, 3)`, []any{0.0, 0.5, 1.0}},
		{"pandas constructor", `v = pd.DataFrame({"a": [1, 2], "b": ["x", "y"]}).shape`, []any{int64(2), int64(2)}},
		{"builtin round", `v = round(3.14159, 2)`, 3.14},
		{"builtin sum", `v = sum([1, 2, 3])`, int64(6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.code)
			assert.Equal(t, tt.want, res.Scope.Extra["v"])
		})
	}
}

func TestFrameMissingValuesBecomeNaN(t *testing.T) {
	d := sales(t)
	f := FrameFromDataset(d)
	require.Equal(t, 4, f.rows())
	s, err := f.column("units")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 7, 5, 12}, s.present())

	res := run(t, `
sub = pd.DataFrame({"x": [1.0, np.nan, 3.0]})
v = sub["x"].dropna().tolist()
m = sub["x"].isna().tolist()
`)
	assert.Equal(t, []any{1.0, 3.0}, res.Scope.Extra["v"])
	assert.Equal(t, []any{false, true, false}, res.Scope.Extra["m"])
}

func TestRegression(t *testing.T) {
	slope, intercept, ok := regression([]float64{1, 2, 3, math.NaN()}, []float64{3, 5, 7, 100})
	require.True(t, ok)
	assert.InDelta(t, 2.0, slope, 1e-9)
	assert.InDelta(t, 1.0, intercept, 1e-9)

	_, _, ok = regression([]float64{1}, []float64{1})
	assert.False(t, ok)
}
