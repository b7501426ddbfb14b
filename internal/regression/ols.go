package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Fit solves min ||Y_v - X_v·B|| over the valid rows for every column of Y
// at once, using an SVD with the same relative singular value cut-off as a
// standard least-squares solver (machine epsilon times the larger dimension).
// Rank-deficient designs get the minimum-norm solution.
func Fit(x, y *mat.Dense, valid []bool) (*mat.Dense, int, error) {
	n, p := x.Dims()
	_, e := y.Dims()
	if n == 0 || e == 0 || p == 0 {
		return &mat.Dense{}, 0, nil
	}

	rows := make([]int, 0, n)
	for i, ok := range valid {
		if ok {
			rows = append(rows, i)
		}
	}
	beta := mat.NewDense(p, e, nil)
	if len(rows) == 0 {
		return beta, 0, nil
	}

	xv, yv := x, y
	if len(rows) < n {
		xv = selectRows(x, rows)
		yv = selectRows(y, rows)
	}

	var svd mat.SVD
	if ok := svd.Factorize(xv, mat.SVDThin); !ok {
		return nil, 0, fmt.Errorf("SVD of the %dx%d design did not converge", len(rows), p)
	}
	rcond := epsilon * float64(max(len(rows), p))
	rank := svd.Rank(rcond)
	if rank == 0 {
		return beta, 0, nil
	}
	svd.SolveTo(beta, yv, rank)
	return beta, rank, nil
}

// Residualize returns Y - X·B for valid rows and NaN rows elsewhere
func Residualize(x, y, beta *mat.Dense, valid []bool) *mat.Dense {
	n, e := y.Dims()
	if n == 0 || e == 0 {
		return &mat.Dense{}
	}
	resid := mat.NewDense(n, e, nil)
	fit := mat.NewVecDense(e, nil)
	for i := 0; i < n; i++ {
		out := resid.RawRowView(i)
		if !valid[i] {
			for k := range out {
				out[k] = math.NaN()
			}
			continue
		}
		fit.MulVec(beta.T(), x.RowView(i))
		obs := y.RawRowView(i)
		for k := range out {
			out[k] = obs[k] - fit.AtVec(k)
		}
	}
	return resid
}

const epsilon = 2.220446049250313e-16

func selectRows(m *mat.Dense, rows []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for dst, src := range rows {
		copy(out.RawRowView(dst), m.RawRowView(src))
	}
	return out
}
