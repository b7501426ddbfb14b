package correlation

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultFisherEps keeps |r| strictly below 1 so z stays finite
const DefaultFisherEps = 1e-6

// FisherZ maps r to 0.5*ln((1+r)/(1-r)) after clipping to [-1+eps, 1-eps]
func FisherZ(r, eps float64) float64 {
	r = clip(r, -1+eps, 1-eps)
	return 0.5 * math.Log((1+r)/(1-r))
}

// FisherZMatrix transforms every entry, diagonal included. The unit diagonal
// becomes the finite value FisherZ(1-eps).
func FisherZMatrix(c mat.Symmetric, eps float64) *mat.SymDense {
	n := c.SymmetricDim()
	z := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			z.SetSym(i, j, FisherZ(c.At(i, j), eps))
		}
	}
	return z
}
