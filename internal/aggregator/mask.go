package aggregator

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// rank returns the ranking magnitude of v and whether v competes at all
func rank(v float64, keep KeepMode) (float64, bool) {
	if math.IsNaN(v) {
		return 0, false
	}
	switch keep {
	case KeepPos:
		return v, v > 0
	case KeepNeg:
		return -v, v < 0
	default:
		return math.Abs(v), true
	}
}

// topFraction keeps the floor(s*n) largest of the selected magnitudes, at
// least one. Ties with the threshold are kept.
func topFraction(magn []float64, sel []bool, sparsity float64) []bool {
	var cand []float64
	for k, ok := range sel {
		if ok {
			cand = append(cand, magn[k])
		}
	}
	keep := make([]bool, len(magn))
	if len(cand) == 0 {
		return keep
	}
	k := max(1, int(math.Floor(sparsity*float64(len(cand)))))
	sort.Sort(sort.Reverse(sort.Float64Slice(cand)))
	thr := cand[k-1]
	for i, ok := range sel {
		keep[i] = ok && magn[i] >= thr
	}
	return keep
}

// GlobalMask builds one edge mask shared by all subjects from the
// across-subject mean magnitude of each edge (subjects x edges input).
// Under pos/neg ranking the opposite sign counts as zero in the mean.
func GlobalMask(edges *mat.Dense, sparsity float64, keep KeepMode) []bool {
	n, e := edges.Dims()
	magn := make([]float64, e)
	sel := make([]bool, e)
	for k := 0; k < e; k++ {
		sum := 0.0
		for s := 0; s < n; s++ {
			v := edges.At(s, k)
			if m, ok := rank(v, keep); ok {
				sum += m
			} else if math.IsNaN(v) {
				sum = math.NaN()
			}
		}
		magn[k] = sum / float64(n)
		sel[k] = !math.IsNaN(magn[k])
	}
	return topFraction(magn, sel, sparsity)
}

// SubjectMask builds the mask of one subject's edge vector. Under pos/neg
// ranking only edges of that sign compete.
func SubjectMask(vec []float64, sparsity float64, keep KeepMode) []bool {
	magn := make([]float64, len(vec))
	sel := make([]bool, len(vec))
	for k, v := range vec {
		magn[k], sel[k] = rank(v, keep)
	}
	return topFraction(magn, sel, sparsity)
}

// applyMask sets dropped edges to NaN in place
func applyMask(row []float64, keep []bool) {
	for k, ok := range keep {
		if !ok {
			row[k] = math.NaN()
		}
	}
}

func countTrue(b []bool) int {
	n := 0
	for _, v := range b {
		if v {
			n++
		}
	}
	return n
}
