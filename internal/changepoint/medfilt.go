package changepoint

import (
	"fmt"
	"sort"
)

// MedianFilter replaces each value with the median of the kernelSize values
// centred on it. The window is clipped at the ends of data.
func MedianFilter(data []float64, kernelSize int) ([]float64, error) {
	if kernelSize < 1 || kernelSize%2 == 0 {
		return nil, fmt.Errorf("median filter kernel must be a positive odd integer, got %d", kernelSize)
	}

	half := kernelSize / 2
	out := make([]float64, len(data))
	window := make([]float64, 0, kernelSize)
	for i := range data {
		lo, hi := max(0, i-half), min(len(data), i+half+1)
		window = append(window[:0], data[lo:hi]...)
		sort.Float64s(window)

		if m := len(window); m%2 == 1 {
			out[i] = window[m/2]
		} else {
			out[i] = (window[m/2-1] + window[m/2]) / 2
		}
	}
	return out, nil
}
