package analysis

import (
	"math"
	"sort"
)

// NumSummary holds the descriptive statistics of one numeric column.
type NumSummary struct {
	Count                int
	Mean, Std            float64
	Min, Q1, Q2, Q3, Max float64
}

// summarize computes count/mean/sample std via Welford and linear-interpolated
// quartiles. NaN inputs must be filtered out by the caller.
func summarize(vals []float64) NumSummary {
	s := NumSummary{Count: len(vals)}
	if len(vals) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.Q1, s.Q2, s.Q3, s.Max = nan, nan, nan, nan, nan, nan, nan
		return s
	}
	var mean, m2 float64
	for i, x := range vals {
		delta := x - mean
		mean += delta / float64(i+1)
		m2 += delta * (x - mean)
	}
	s.Mean = mean
	if len(vals) > 1 {
		s.Std = math.Sqrt(m2 / float64(len(vals)-1))
	} else {
		s.Std = math.NaN()
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Q1 = quantile(sorted, 0.25)
	s.Q2 = quantile(sorted, 0.5)
	s.Q3 = quantile(sorted, 0.75)
	return s
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// CategorySummary describes a non-numeric column: distinct count and the most
// frequent value. Ties on frequency pick the value seen first.
type CategorySummary struct {
	Count  int
	Unique int
	Top    string
	Freq   int
}

func summarizeCategories(raw []string, null []bool) CategorySummary {
	counts := map[string]int{}
	var order []string
	var s CategorySummary
	for i, v := range raw {
		if null[i] {
			continue
		}
		s.Count++
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	s.Unique = len(order)
	for _, v := range order {
		if counts[v] > s.Freq {
			s.Top, s.Freq = v, counts[v]
		}
	}
	return s
}
