package ribca

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
)

// ColumnSummary describes one column of a Table. Numeric columns get
// descriptive statistics; other columns get per-label counts.
type ColumnSummary struct {
	Name    string
	Count   int
	Missing int
	Numeric bool

	Mean   float64
	Median float64
	StdDev float64
	Min    float64
	Max    float64

	Labels map[string]int
}

// Summarize describes every column of t.
func Summarize(t *Table) ([]ColumnSummary, error) {
	out := make([]ColumnSummary, len(t.Columns))
	for j, name := range t.Columns {
		sum := ColumnSummary{Name: name, Numeric: true}

		var data stats.Float64Data
		labels := make(map[string]int)
		for _, row := range t.Cells {
			cell := row[j]
			if !cell.Valid {
				sum.Missing++
				continue
			}
			sum.Count++
			labels[cell.String]++

			if !sum.Numeric {
				continue
			}
			x, err := strconv.ParseFloat(strings.TrimSpace(cell.String), 64)
			if err != nil || math.IsNaN(x) {
				sum.Numeric = false
				continue
			}
			data = append(data, x)
		}

		if sum.Numeric && name != CellTypeColumn && data.Len() > 0 {
			if err := describe(&sum, data); err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
		} else {
			sum.Numeric = false
			sum.Labels = labels
		}

		out[j] = sum
	}

	return out, nil
}

func describe(sum *ColumnSummary, data stats.Float64Data) error {
	var err error
	if sum.Mean, err = data.Mean(); err != nil {
		return err
	}
	if sum.Median, err = data.Median(); err != nil {
		return err
	}
	if sum.StdDev, err = data.StandardDeviation(); err != nil {
		return err
	}
	if sum.Min, err = data.Min(); err != nil {
		return err
	}
	if sum.Max, err = data.Max(); err != nil {
		return err
	}
	return nil
}

// WriteSummaries writes one tab-separated line per column, followed by one
// line per label for categorical columns.
func WriteSummaries(w io.Writer, sums []ColumnSummary) error {
	for _, sum := range sums {
		if sum.Numeric {
			if _, err := fmt.Fprintf(w, "%s\tn=%d\tmissing=%d\tmean=%.3f\tmedian=%.3f\tsd=%.3f\tmin=%.3f\tmax=%.3f\n",
				sum.Name, sum.Count, sum.Missing, sum.Mean, sum.Median, sum.StdDev, sum.Min, sum.Max); err != nil {
				return err
			}
			continue
		}

		if _, err := fmt.Fprintf(w, "%s\tn=%d\tmissing=%d\tlabels=%d\n", sum.Name, sum.Count, sum.Missing, len(sum.Labels)); err != nil {
			return err
		}

		labels := make([]string, 0, len(sum.Labels))
		for label := range sum.Labels {
			labels = append(labels, label)
		}
		sort.Slice(labels, func(i, j int) bool {
			a, b := sum.Labels[labels[i]], sum.Labels[labels[j]]
			if a != b {
				return a > b
			}
			return labels[i] < labels[j]
		})
		for _, label := range labels {
			if _, err := fmt.Fprintf(w, "\t%s\t%d\n", label, sum.Labels[label]); err != nil {
				return err
			}
		}
	}

	return nil
}
