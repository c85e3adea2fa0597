package changepoint

import "math"

// pelt returns the optimal change points of signal under the RBF cost with
// a fixed penalty per added segment. Each returned index is the first
// sample of a new segment; segments are at least minSize samples long.
func pelt(signal []float64, penalty float64, minSize int) []int {
	n := len(signal)
	if minSize < 1 {
		minSize = 1
	}
	if n < 2*minSize {
		return nil
	}
	cost := newRBFCost(signal)

	// best[t] is the minimum penalised cost of signal[0:t]
	best := make([]float64, n+1)
	last := make([]int, n+1)
	for i := range best {
		best[i] = math.Inf(1)
	}
	best[0] = -penalty

	candidates := []int{0}
	for t := minSize; t <= n; t++ {
		if s := t - minSize; s >= minSize {
			candidates = append(candidates, s)
		}

		arg := -1
		for _, s := range candidates {
			if math.IsInf(best[s], 1) {
				continue
			}
			if v := best[s] + cost.cost(s, t) + penalty; v < best[t] {
				best[t], arg = v, s
			}
		}
		last[t] = arg

		// Prune start points that can never be optimal again
		kept := candidates[:0]
		for _, s := range candidates {
			if best[s]+cost.cost(s, t) <= best[t] {
				kept = append(kept, s)
			}
		}
		candidates = kept
	}

	var points []int
	for t := n; t > 0 && last[t] > 0; t = last[t] {
		points = append(points, last[t])
	}
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points
}
