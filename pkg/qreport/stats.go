package qreport

import (
	"math"
	"sort"

	"github.com/quatton/qfold/pkg/qerr"
)

// Axis selects what a summary groups by.
type Axis string

const (
	AxisRow    Axis = "row"
	AxisColumn Axis = "column"
)

func ParseAxis(s string) (Axis, error) {
	switch a := Axis(s); a {
	case AxisRow, AxisColumn:
		return a, nil
	case "":
		return AxisRow, nil
	}
	return "", qerr.Newf(qerr.CodeConfigError, "unknown axis %q (want row or column)", s)
}

// Stats summarize a group of scores. StdDev is the sample standard deviation
// and is 0 for fewer than two values.
type Stats struct {
	N      int     `json:"n"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
}

// Describe computes Stats over values. values is not modified.
func Describe(values []float64) Stats {
	n := len(values)
	if n == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s := Stats{N: n}
	if n%2 == 1 {
		s.Median = sorted[n/2]
	} else {
		s.Median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	if n < 2 {
		return s
	}
	var mean float64
	for _, v := range sorted {
		mean += v
	}
	mean /= float64(n)
	var ss float64
	for _, v := range sorted {
		ss += (v - mean) * (v - mean)
	}
	s.StdDev = math.Sqrt(ss / float64(n-1))
	return s
}

// GroupStats are the Stats of one row or column.
type GroupStats struct {
	Key string `json:"key"`
	Stats
}

// Summary reduces a table along one axis.
type Summary struct {
	Axis   Axis         `json:"axis"`
	Groups []GroupStats `json:"groups"`
}

// Summarize returns the median and standard deviation of each row or column,
// in table order. Empty cells are ignored.
func (t *Table) Summarize(axis Axis) Summary {
	s := Summary{Axis: axis}
	switch axis {
	case AxisColumn:
		for c, col := range t.Columns {
			var values []float64
			for r := range t.Rows {
				if v, ok := t.Value(r, c); ok {
					values = append(values, v)
				}
			}
			s.Groups = append(s.Groups, GroupStats{Key: col.Label, Stats: Describe(values)})
		}
	default:
		s.Axis = AxisRow
		for r, row := range t.Rows {
			var values []float64
			for c := range t.Columns {
				if v, ok := t.Value(r, c); ok {
					values = append(values, v)
				}
			}
			s.Groups = append(s.Groups, GroupStats{Key: row, Stats: Describe(values)})
		}
	}
	return s
}

// BatchScores are the scores of one batch, e.g. one padding width.
type BatchScores struct {
	Batch  string
	Scores map[string]float64
}

// CompareBatches summarizes every batch over all of its scores, in the
// given order.
func CompareBatches(batches []BatchScores) []GroupStats {
	out := make([]GroupStats, 0, len(batches))
	for _, b := range batches {
		values := make([]float64, 0, len(b.Scores))
		for _, k := range sortedKeys(b.Scores) {
			values = append(values, b.Scores[k])
		}
		out = append(out, GroupStats{Key: b.Batch, Stats: Describe(values)})
	}
	return out
}
