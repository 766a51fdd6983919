package discovery

import (
	"fmt"
	"math"
	"slices"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
)

// Correlations returns the Pearson correlation of every pair of columns in
// t, strongest first. Pairs are oriented in column order. Only rows where
// both cells are numeric or boolean count; pairs with fewer than two such
// rows or a constant column are left out. maxSampleSize > 0 caps the rows
// considered, taking every k-th row so repeated calls agree.
func Correlations(t Table, maxSampleSize int) []causal.Relationship {
	if t == nil {
		return []causal.Relationship{}
	}
	columns := t.ColumnNames()
	out := []causal.Relationship{}
	for i := range columns {
		for j := i + 1; j < len(columns); j++ {
			if r, ok := Correlation(t, columns[i], columns[j], maxSampleSize); ok {
				out = append(out, r)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b causal.Relationship) int {
		return compareAbs(*b.Weight, *a.Weight)
	})
	return out
}

// Correlation returns the undirected correlation relationship between two
// columns of t.
func Correlation(t Table, source, target string, maxSampleSize int) (causal.Relationship, bool) {
	xs, ok := t.Column(source)
	if !ok {
		return causal.Relationship{}, false
	}
	ys, ok := t.Column(target)
	if !ok {
		return causal.Relationship{}, false
	}

	step := 1
	if maxSampleSize > 0 && len(xs) > maxSampleSize {
		step = int(math.Ceil(float64(len(xs)) / float64(maxSampleSize)))
	}
	var x, y []float64
	for i := 0; i < len(xs) && i < len(ys); i += step {
		a, okA := numeric(xs[i])
		b, okB := numeric(ys[i])
		if okA && okB {
			x = append(x, a)
			y = append(y, b)
		}
	}
	corr, ok := pearson(x, y)
	if !ok {
		return causal.Relationship{}, false
	}

	n := len(x)
	return causal.Relationship{
		Source:     causal.VariableReference{ColumnName: source},
		Target:     causal.VariableReference{ColumnName: target},
		Weight:     causal.Float(corr),
		Confidence: causal.Float(1),
		SampleSize: &n,
		Name:       fmt.Sprintf("Correlation of %g between %s and %s", corr, source, target),
		Directed:   false,
		Key:        source + "-" + target,
	}, true
}

// CorrelationForColumnNames finds the correlation between source and
// target, inverting a stored pair that runs the other way.
func CorrelationForColumnNames(correlations []causal.Relationship, source, target string) (causal.Relationship, bool) {
	for _, c := range correlations {
		if causal.HasSameSourceAndTargetColumns(c, source, target) {
			return c, true
		}
	}
	for _, c := range correlations {
		if causal.HasInvertedSourceAndTargetColumns(c, source, target) {
			return causal.InvertRelationship(c), true
		}
	}
	return causal.Relationship{}, false
}

// CorrelationsForVariable returns the correlations involving v.
func CorrelationsForVariable(correlations []causal.Relationship, v causal.VariableReference) []causal.Relationship {
	out := []causal.Relationship{}
	for _, c := range correlations {
		if causal.InvolvesVariable(c, v) {
			out = append(out, c)
		}
	}
	return out
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func pearson(x, y []float64) (float64, bool) {
	n := float64(len(x))
	if len(x) < 2 {
		return 0, false
	}
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
		sumY2 += y[i] * y[i]
	}
	den := math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))
	if den == 0 || math.IsNaN(den) {
		return 0, false
	}
	r := (n*sumXY - sumX*sumY) / den
	return math.Max(-1, math.Min(1, r)), true
}

func compareAbs(a, b float64) int {
	switch a, b = math.Abs(a), math.Abs(b); {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
