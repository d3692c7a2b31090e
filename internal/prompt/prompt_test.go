package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/storyteller/internal/analysis"
	"github.com/KaramelBytes/storyteller/internal/dataset"
)

func fixture(t *testing.T) (*dataset.Dataset, analysis.Profile) {
	t.Helper()
	d, err := dataset.Load("orders.csv", strings.NewReader("product,qty,price\nTea,3,2.5\nCoffee,5,3.0\nCocoa,1,4.25\n"), dataset.DefaultOptions())
	require.NoError(t, err)
	return d, analysis.Build(d, analysis.DefaultOptions())
}

func TestInsightsEmbedsProfile(t *testing.T) {
	_, p := fixture(t)
	out := Insights(p)

	assert.Contains(t, out, "expert data analyst")
	assert.Contains(t, out, p.Head)
	assert.Contains(t, out, p.Info)
	assert.Contains(t, out, p.Describe)
	assert.Contains(t, out, "**High-Level Summary:**")
	assert.Contains(t, out, "**Three Actionable Business Insights:**")
	assert.Contains(t, out, "First 3 Rows")
	assert.Contains(t, out, "Markdown")
}

func TestVisualizationRequirements(t *testing.T) {
	d, p := fixture(t)
	out := Visualization(d, p)

	assert.Contains(t, out, "visualization specialist")
	assert.Contains(t, out, "Number of rows: 3")
	assert.Contains(t, out, "Columns: ['product', 'qty', 'price']")
	assert.Contains(t, out, "under 50 rows")
	assert.Contains(t, out, "`fig`")
	assert.Contains(t, out, "`df`")
	assert.Contains(t, out, "DO NOT")
	assert.Contains(t, out, "no import statements")
	assert.Contains(t, out, p.Head)
}

func TestPromptsAreDeterministic(t *testing.T) {
	d, p := fixture(t)
	assert.Equal(t, Insights(p), Insights(p))
	assert.Equal(t, Visualization(d, p), Visualization(d, p))
}

func TestPyListEscapesQuotes(t *testing.T) {
	assert.Equal(t, "['a', 'it\\'s']", pyList([]string{"a", "it's"}))
	assert.Equal(t, "[]", pyList(nil))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcdefgh"))
}
