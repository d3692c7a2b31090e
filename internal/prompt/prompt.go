// Package prompt assembles the two instruction prompts sent to the model.
package prompt

import (
	"strconv"
	"strings"

	"github.com/KaramelBytes/storyteller/internal/analysis"
	"github.com/KaramelBytes/storyteller/internal/dataset"
)

// SmallDatasetRows is the row count below which the model is steered toward
// simple bar or scatter charts.
const SmallDatasetRows = 50

// Insights asks for a high-level summary plus three business insights in
// Markdown, grounded on the head, info and describe blocks of p.
func Insights(p analysis.Profile) string {
	var sb strings.Builder
	sb.WriteString("You are an expert data analyst. Based on the following summary of a CSV file, ")
	sb.WriteString("provide a high-level summary and three actionable business insights.\n\n")

	sb.WriteString("**Dataframe Head (First ")
	sb.WriteString(strconv.Itoa(p.HeadRows))
	sb.WriteString(" Rows):**\n")
	sb.WriteString(p.Head)
	sb.WriteString("\n**Dataframe Info:**\n")
	sb.WriteString(p.Info)
	sb.WriteString("\n**Dataframe Description:**\n")
	sb.WriteString(p.Describe)
	sb.WriteString("\n---\n")

	sb.WriteString("Please provide the following in Markdown format:\n")
	sb.WriteString("1.  **High-Level Summary:** Describe the dataset's structure, quality, and potential purpose.\n")
	sb.WriteString("2.  **Three Actionable Business Insights:** Provide three distinct, creative insights a business user could act upon.\n")
	return sb.String()
}

// Visualization asks for one self-contained plotting script. The script runs
// in a Starlark interpreter with df, plt, sns, fig and ax already bound, so the
// prompt spells out the dialect limits alongside the chart-choice rules.
func Visualization(d *dataset.Dataset, p analysis.Profile) string {
	var sb strings.Builder
	sb.WriteString("You are an expert data visualization specialist. Your task is to generate a single block of ")
	sb.WriteString("Python code to create the most insightful chart possible for the given dataset.\n\n")

	sb.WriteString("**CRITICAL INSTRUCTIONS:**\n")
	sb.WriteString("1.  **Analyze the Data First:** Look at the number of rows and data types.\n")
	sb.WriteString("2.  **Choose the RIGHT Chart Type:** For small datasets (under ")
	sb.WriteString(strconv.Itoa(SmallDatasetRows))
	sb.WriteString(" rows), strongly prefer simple charts like bar plots or scatter plots. ")
	sb.WriteString("Avoid complex or time-series plots unless the data clearly supports it.\n")
	sb.WriteString("3.  **Code Requirements:** The dataset is in a pandas DataFrame named `df`. Use Matplotlib (`plt`) ")
	sb.WriteString("or Seaborn (`sns`). The final plot object must be assigned to a variable named `fig`. ")
	sb.WriteString("The code must be a single, self-contained block, ready to execute. ")
	sb.WriteString("**DO NOT** include any explanation or markdown backticks.\n")
	sb.WriteString("4.  **Runtime Limits:** `df`, `plt`, `sns`, `fig` and `ax` already exist (`fig, ax = plt.subplots()` has been run). ")
	sb.WriteString("The interpreter is a restricted Python dialect: no import statements, no try/except, no classes, ")
	sb.WriteString("no f-strings, no `with` blocks, no lambda-heavy pandas chains. ")
	sb.WriteString("Stick to column selection, `groupby(...).agg/sum/mean/count`, `value_counts()`, `sort_values`, `head`, ")
	sb.WriteString("`tolist()` and the plotting calls `bar`, `barh`, `scatter`, `plot`, `hist`, `boxplot`, ")
	sb.WriteString("`set_title`, `set_xlabel`, `set_ylabel`.\n\n")

	sb.WriteString("Here is the data summary:\n")
	sb.WriteString("- Number of rows: ")
	sb.WriteString(strconv.Itoa(d.NumRows()))
	sb.WriteString("\n- Columns: ")
	sb.WriteString(pyList(d.ColumnNames()))
	sb.WriteString("\n- First ")
	sb.WriteString(strconv.Itoa(p.HeadRows))
	sb.WriteString(" rows:\n")
	sb.WriteString(p.Head)
	return sb.String()
}

// pyList formats names the way an analyst would see a column list printed.
func pyList(names []string) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, n := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('\'')
		sb.WriteString(strings.ReplaceAll(n, "'", "\\'"))
		sb.WriteByte('\'')
	}
	sb.WriteByte(']')
	return sb.String()
}
