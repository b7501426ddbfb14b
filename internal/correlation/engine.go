// Package correlation turns one subject's ROI time series into a
// degeneracy-aware Pearson correlation matrix.
//
// The engine never fails on numerical grounds. Missing samples are imputed,
// near-constant ROIs are flagged and given a sentinel row/column, and the
// result is always symmetric with a unit diagonal and entries in [-1, 1].
package correlation

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultDegenerateEps is the standard deviation below which an ROI is
// considered constant.
const DefaultDegenerateEps = 1e-8

// Report is the per-subject QC produced alongside the matrix
type Report struct {
	NBad       int   `json:"n_bad"`
	NImputed   int   `json:"n_imputed"`
	BadROIs    []int `json:"bad_rois,omitempty"`
	Timepoints int   `json:"timepoints"`
}

// BadRatio is the fraction of degenerate ROIs
func (r Report) BadRatio(nROIs int) float64 {
	if nROIs == 0 {
		return 0
	}
	return float64(r.NBad) / float64(nROIs)
}

// Engine computes correlation matrices
type Engine struct {
	eps float64
}

// NewEngine creates an engine; eps <= 0 selects DefaultDegenerateEps
func NewEngine(eps float64) *Engine {
	if eps <= 0 {
		eps = DefaultDegenerateEps
	}
	return &Engine{eps: eps}
}

// Correlate computes the N x N correlation of a (T x N) time series.
// ts is not modified.
func (e *Engine) Correlate(ts mat.Matrix) (*mat.SymDense, Report) {
	t, n := ts.Dims()
	rep := Report{Timepoints: t}
	if n == 0 {
		return mat.NewSymDense(0, nil), rep
	}

	x := mat.NewDense(t, n, nil)
	x.Copy(ts)
	bad := make([]bool, n)

	for j := 0; j < n; j++ {
		// column mean over finite samples; all-missing columns become 0
		var sum float64
		var valid int
		for i := 0; i < t; i++ {
			if v := x.At(i, j); isFinite(v) {
				sum += v
				valid++
			}
		}
		mean := 0.0
		if valid > 0 {
			mean = sum / float64(valid)
		}
		for i := 0; i < t; i++ {
			if !isFinite(x.At(i, j)) {
				x.Set(i, j, mean)
				rep.NImputed++
			}
		}

		// mean of the imputed column equals the finite-sample mean
		var ss float64
		for i := 0; i < t; i++ {
			d := x.At(i, j) - mean
			x.Set(i, j, d)
			ss += d * d
		}
		sd := 0.0
		if t > 1 {
			sd = math.Sqrt(ss / float64(t-1))
		}
		if sd < e.eps || math.IsNaN(sd) {
			bad[j] = true
			rep.NBad++
			rep.BadROIs = append(rep.BadROIs, j)
			sd = 1
		}
		for i := 0; i < t; i++ {
			x.Set(i, j, x.At(i, j)/sd)
		}
	}

	denom := float64(t - 1)
	if denom < 1 {
		denom = 1
	}
	c := mat.NewSymDense(n, nil)
	c.SymRankK(c, 1/denom, x.T())

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			switch {
			case i == j:
				c.SetSym(i, j, 1)
			case bad[i] || bad[j]:
				c.SetSym(i, j, 0)
			default:
				c.SetSym(i, j, clip(c.At(i, j), -1, 1))
			}
		}
	}
	return c, rep
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
