package stattest

import (
	"fmt"
	"math"

	"abidenet/domain/core"

	"github.com/montanaflynn/stats"
)

// TTestResult is a two-sample comparison of A minus B
type TTestResult struct {
	T     float64
	DF    float64
	P     float64
	NA    int
	NB    int
	MeanA float64
	MeanB float64
	SDA   float64
	SDB   float64
}

// Finite drops NaN and Inf values
func Finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

// Describe returns n, mean and sample SD of the finite values
func Describe(xs []float64) (n int, mean, sd float64) {
	f := Finite(xs)
	n = len(f)
	if n == 0 {
		return 0, math.NaN(), math.NaN()
	}
	mean, _ = stats.Mean(f)
	if n < 2 {
		return n, mean, math.NaN()
	}
	v, _ := stats.SampleVariance(f)
	return n, mean, math.Sqrt(v)
}

// TTest compares a against b (positive t means a is larger) after dropping
// non-finite values. Welch's unequal-variance form is used unless equalVar.
//
// When both groups have zero spread the statistic is undefined; TTest
// returns t = 0, p = 1 for equal means and t = ±Inf, p = 0 otherwise.
func TTest(a, b []float64, equalVar bool) (TTestResult, error) {
	na, ma, sa := Describe(a)
	nb, mb, sb := Describe(b)
	res := TTestResult{NA: na, NB: nb, MeanA: ma, MeanB: mb, SDA: sa, SDB: sb}
	if na < 2 || nb < 2 {
		return res, fmt.Errorf("%w: t-test needs 2 finite values per group, got %d and %d",
			core.ErrInsufficientData, na, nb)
	}

	va, vb := sa*sa, sb*sb
	fa, fb := float64(na), float64(nb)
	var se float64
	if equalVar {
		res.DF = fa + fb - 2
		pooled := ((fa-1)*va + (fb-1)*vb) / res.DF
		se = math.Sqrt(pooled * (1/fa + 1/fb))
	} else {
		qa, qb := va/fa, vb/fb
		se = math.Sqrt(qa + qb)
		res.DF = (qa + qb) * (qa + qb) / (qa*qa/(fa-1) + qb*qb/(fb-1))
	}

	diff := ma - mb
	if se == 0 {
		res.DF = fa + fb - 2
		if diff == 0 {
			res.T, res.P = 0, 1
		} else {
			res.T, res.P = math.Inf(sign(diff)), 0
		}
		return res, nil
	}

	res.T = diff / se
	res.P = TwoSidedP(res.T, res.DF)
	return res, nil
}

func sign(x float64) int {
	if x < 0 {
		return -1
	}
	return 1
}

func errShape(what string, got, want int) error {
	return core.NewShapeError(what, got, want)
}
