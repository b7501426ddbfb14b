package stattest

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// TwoSidedP returns the two-sided p-value of t under Student's t with df
// degrees of freedom. Infinite |t| gives 0; NaN t or df <= 0 gives NaN.
func TwoSidedP(t, df float64) float64 {
	if math.IsNaN(t) || math.IsNaN(df) || df <= 0 {
		return math.NaN()
	}
	if math.IsInf(t, 0) {
		return 0
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return math.Min(1, 2*dist.Survival(math.Abs(t)))
}

// ChiSquareP returns the upper-tail p-value of a chi-square statistic
func ChiSquareP(chi2 float64, df int) float64 {
	if df <= 0 || math.IsNaN(chi2) {
		return math.NaN()
	}
	return distuv.ChiSquared{K: float64(df)}.Survival(chi2)
}
