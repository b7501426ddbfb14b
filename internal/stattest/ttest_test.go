package stattest

import (
	"errors"
	"math"
	"testing"

	"abidenet/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTestWelchAndStudent(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{2, 4, 6, 8, 10}

	welch, err := TTest(a, b, false)
	require.NoError(t, err)
	assert.InDelta(t, -3/math.Sqrt(2.5), welch.T, 1e-12)
	assert.InDelta(t, 6.25/1.0625, welch.DF, 1e-12)
	assert.Greater(t, welch.P, 0.10)
	assert.Less(t, welch.P, 0.12)

	student, err := TTest(a, b, true)
	require.NoError(t, err)
	assert.InDelta(t, welch.T, student.T, 1e-12, "equal n gives the same statistic")
	assert.Equal(t, 8.0, student.DF)
	assert.Greater(t, student.P, 0.085)
	assert.Less(t, student.P, 0.10)

	assert.Equal(t, 3.0, welch.MeanA)
	assert.Equal(t, 6.0, welch.MeanB)
	assert.InDelta(t, math.Sqrt(10), welch.SDB, 1e-12)
}

func TestTTestDirectionAndSymmetry(t *testing.T) {
	a := []float64{5.1, 4.8, 5.5, 6.0, 5.2, 4.9}
	b := []float64{4.0, 4.4, 3.9, 4.2, 4.6, 4.1}
	ab, err := TTest(a, b, false)
	require.NoError(t, err)
	ba, err := TTest(b, a, false)
	require.NoError(t, err)

	assert.Greater(t, ab.T, 0.0, "positive t means the first group is larger")
	assert.InDelta(t, -ab.T, ba.T, 1e-12)
	assert.InDelta(t, ab.P, ba.P, 1e-12)
	assert.Less(t, ab.P, 0.01)
}

func TestTTestDropsNonFinite(t *testing.T) {
	a := []float64{1, 2, math.NaN(), 3, math.Inf(1)}
	b := []float64{1, 2, 3}
	res, err := TTest(a, b, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.NA)
	assert.Equal(t, 0.0, res.T)
	assert.InDelta(t, 1.0, res.P, 1e-12)
}

func TestTTestZeroSpread(t *testing.T) {
	same, err := TTest([]float64{2, 2, 2}, []float64{2, 2}, false)
	require.NoError(t, err)
	assert.Equal(t, 0.0, same.T)
	assert.Equal(t, 1.0, same.P)

	diff, err := TTest([]float64{3, 3, 3}, []float64{2, 2, 2}, false)
	require.NoError(t, err)
	assert.True(t, math.IsInf(diff.T, 1))
	assert.Equal(t, 0.0, diff.P)
}

func TestTTestInsufficientData(t *testing.T) {
	_, err := TTest([]float64{1}, []float64{1, 2, 3}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInsufficientData))
}

func TestTwoSidedP(t *testing.T) {
	assert.InDelta(t, 1.0, TwoSidedP(0, 10), 1e-12)
	assert.Equal(t, 0.0, TwoSidedP(math.Inf(-1), 10))
	assert.True(t, math.IsNaN(TwoSidedP(1, 0)))
	// large df approaches the normal: |t| = 1.96 gives about 0.05
	assert.InDelta(t, 0.05, TwoSidedP(1.959964, 1e6), 1e-4)
}

func TestChiSquareP(t *testing.T) {
	// 3.841 is the 95th percentile of chi2(1)
	assert.InDelta(t, 0.05, ChiSquareP(3.841459, 1), 1e-5)
	assert.True(t, math.IsNaN(ChiSquareP(1, 0)))
}
