package metrics

import "math"

// Mean computes the arithmetic mean of a float64 slice.
// Returns 0 for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance computes the population variance of a float64 slice.
// Returns 0 for empty input.
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := Mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return sumSq / float64(len(values))
}

// StdDev computes the population standard deviation.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// ConfidenceInterval95 returns the 95% confidence interval (low, high)
// using the normal approximation (z=1.96). Returns (mean, mean) when
// fewer than 2 data points are available.
func ConfidenceInterval95(values []float64) (float64, float64) {
	n := len(values)
	if n < 2 {
		m := Mean(values)
		return m, m
	}
	m := Mean(values)
	// sample standard deviation (Bessel's correction)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	sampleSD := math.Sqrt(sumSq / float64(n-1))
	margin := 1.96 * sampleSD / math.Sqrt(float64(n))
	return m - margin, m + margin
}

// ColumnStats holds per-column statistics over a set of equal-length rows.
type ColumnStats struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
	Min  []float64 `json:"min"`
	Max  []float64 `json:"max"`
}

// Columns computes column-wise mean, population std, min and max of rows.
// Every row must have width columns; shorter rows are read as zero-padded.
// With no rows, every column is zero.
func Columns(rows [][]float64, width int) ColumnStats {
	cs := ColumnStats{
		Mean: make([]float64, width),
		Std:  make([]float64, width),
		Min:  make([]float64, width),
		Max:  make([]float64, width),
	}
	if len(rows) == 0 {
		return cs
	}

	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, r := range rows {
			if j < len(r) {
				col[i] = r[j]
			} else {
				col[i] = 0
			}
		}
		cs.Mean[j] = Mean(col)
		cs.Std[j] = StdDev(col)
		lo, hi := col[0], col[0]
		for _, v := range col[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		cs.Min[j] = lo
		cs.Max[j] = hi
	}
	return cs
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
