package series

import (
	"github.com/gonum/stat"
	"github.com/inhies/go-bytesize"
)

// Latest returns the last present value of a series, or 0 when the series is
// empty or entirely absent. The zero sentinel only exists at this display
// boundary; stored data keeps absence explicit.
func Latest(values []Value) float64 {
	for i := len(values) - 1; i >= 0; i-- {
		if values[i].Present {
			return values[i].Float64
		}
	}
	return 0
}

// LatestFloat is Latest for series without absent values.
func LatestFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// EvenIndices returns num evenly spaced indices across [start, end]. With
// num <= 1 only start is returned. Indices are clamped to end.
func EvenIndices(start, end, num int) []int {
	if num <= 1 {
		return []int{start}
	}
	indices := make([]int, 0, num)
	step := float64(end-start) / float64(num-1)
	for i := 0; i < num; i++ {
		index := start + int(float64(i)*step)
		if index > end {
			index = end
		}
		indices = append(indices, index)
	}
	return indices
}

// Downsample reduces a series of length len(values) to at most points
// entries by picking evenly spaced indices. Series shorter than points are
// returned as is.
func Downsample(values []Value, points int) []Value {
	if points <= 0 || len(values) <= points {
		return values
	}
	out := make([]Value, 0, points)
	for _, i := range EvenIndices(0, len(values)-1, points) {
		out = append(out, values[i])
	}
	return out
}

// MovingAverage computes a simple moving average with the given window.
// Absent values are skipped within a window; a window with no present values
// yields 0. The result has len(values)-window+1 entries, or none when the
// window does not fit.
func MovingAverage(values []Value, window int) []float64 {
	if window <= 0 || window > len(values) {
		return nil
	}
	out := make([]float64, 0, len(values)-window+1)
	present := make([]float64, 0, window)
	for i := 0; i+window <= len(values); i++ {
		present = present[:0]
		for _, v := range values[i : i+window] {
			if v.Present {
				present = append(present, v.Float64)
			}
		}
		if len(present) == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, stat.Mean(present, nil))
	}
	return out
}

// FormatBytes renders a byte count with two decimals in the largest unit the
// value stays below 1024 of. An absent value renders as "0 B".
func FormatBytes(v Value) string {
	if !v.Present {
		return "0 B"
	}
	return bytesize.New(v.Float64).Format("%.2f ", "", false)
}

// FormatByteCount is FormatBytes for raw counters.
func FormatByteCount(b uint64) string {
	return FormatBytes(Some(float64(b)))
}
