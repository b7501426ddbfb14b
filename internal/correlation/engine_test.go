package correlation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func randomSeries(t, n int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(t, n, nil)
	for i := 0; i < t; i++ {
		shared := rng.NormFloat64()
		for j := 0; j < n; j++ {
			x.Set(i, j, 0.5*shared+rng.NormFloat64())
		}
	}
	return x
}

func assertValidCorrelation(t *testing.T, c mat.Symmetric) {
	t.Helper()
	n := c.SymmetricDim()
	for i := 0; i < n; i++ {
		assert.Equal(t, 1.0, c.At(i, i), "diagonal %d", i)
		for j := 0; j < n; j++ {
			v := c.At(i, j)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "finite (%d,%d)", i, j)
			assert.LessOrEqual(t, v, 1.0)
			assert.GreaterOrEqual(t, v, -1.0)
			assert.InDelta(t, v, c.At(j, i), 1e-12)
		}
	}
}

func TestCorrelateMatchesPearson(t *testing.T) {
	x := randomSeries(60, 5, 1)
	c, rep := NewEngine(0).Correlate(x)

	assert.Equal(t, 0, rep.NBad)
	assert.Equal(t, 0, rep.NImputed)
	assertValidCorrelation(t, c)

	for i := 0; i < 5; i++ {
		for j := i + 1; j < 5; j++ {
			want := stat.Correlation(mat.Col(nil, i, x), mat.Col(nil, j, x), nil)
			assert.InDelta(t, want, c.At(i, j), 1e-10)
		}
	}
}

func TestCorrelateDegenerateROI(t *testing.T) {
	x := randomSeries(40, 4, 2)
	for i := 0; i < 40; i++ {
		x.Set(i, 2, 3.5)
	}
	c, rep := NewEngine(0).Correlate(x)

	require.Equal(t, 1, rep.NBad)
	assert.Equal(t, []int{2}, rep.BadROIs)
	assert.Equal(t, 0.25, rep.BadRatio(4))
	assertValidCorrelation(t, c)
	for k := 0; k < 4; k++ {
		if k == 2 {
			continue
		}
		assert.Equal(t, 0.0, c.At(2, k))
		assert.Equal(t, 0.0, c.At(k, 2))
	}
	assert.Equal(t, 1.0, c.At(2, 2))
}

func TestCorrelateImputesMissing(t *testing.T) {
	x := randomSeries(30, 3, 3)
	x.Set(4, 0, math.NaN())
	x.Set(9, 1, math.Inf(1))
	for i := 0; i < 30; i++ {
		x.Set(i, 2, math.NaN())
	}
	c, rep := NewEngine(0).Correlate(x)

	assert.Equal(t, 32, rep.NImputed)
	assert.Equal(t, 1, rep.NBad, "all-missing column imputes to a constant")
	assertValidCorrelation(t, c)
	assert.True(t, math.IsNaN(x.At(4, 0)), "input left untouched")
}

func TestCorrelateShortSeries(t *testing.T) {
	x := mat.NewDense(1, 3, []float64{1, 2, 3})
	c, rep := NewEngine(0).Correlate(x)
	assert.Equal(t, 3, rep.NBad)
	assertValidCorrelation(t, c)
}

func TestFisherZRoundTrip(t *testing.T) {
	for _, r := range []float64{-0.999, -0.7, -0.1, 0, 0.05, 0.5, 0.9, 0.99999} {
		assert.InDelta(t, r, math.Tanh(FisherZ(r, DefaultFisherEps)), 1e-12, "r=%v", r)
	}
}

func TestFisherZClipsBounds(t *testing.T) {
	hi := FisherZ(1, DefaultFisherEps)
	lo := FisherZ(-1, DefaultFisherEps)
	assert.False(t, math.IsInf(hi, 0))
	assert.InDelta(t, -hi, lo, 1e-12)
	assert.InDelta(t, 0.5*math.Log((2-1e-6)/1e-6), hi, 1e-9)

	c := mat.NewSymDense(2, []float64{1, 0.3, 0.3, 1})
	z := FisherZMatrix(c, DefaultFisherEps)
	assert.InDelta(t, math.Atanh(0.3), z.At(0, 1), 1e-12)
	assert.Equal(t, hi, z.At(0, 0))
}
