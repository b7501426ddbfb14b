package connectivity

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomSymmetric(n int, rng *rand.Rand) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
		for j := i + 1; j < n; j++ {
			v := rng.Float64()*2 - 1
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
	return m
}

func TestUpperTriangleOrder(t *testing.T) {
	idx := UpperTriangle(4)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 2}, idx.I)
	assert.Equal(t, []int{1, 2, 3, 2, 3, 3}, idx.J)
	assert.Equal(t, 6, idx.Len())
	require.NoError(t, idx.Validate())

	assert.Equal(t, 0, UpperTriangle(1).Len())
	assert.Equal(t, 0, UpperTriangle(0).Len())
}

func TestPositionMatchesIndex(t *testing.T) {
	idx := UpperTriangle(7)
	for k := range idx.I {
		got, ok := idx.Position(idx.I[k], idx.J[k])
		require.True(t, ok)
		assert.Equal(t, k, got)
		swapped, ok := idx.Position(idx.J[k], idx.I[k])
		require.True(t, ok)
		assert.Equal(t, k, swapped)
	}
	_, ok := idx.Position(3, 3)
	assert.False(t, ok)
}

func TestValidateRejectsReorderedIndex(t *testing.T) {
	idx := UpperTriangle(4)
	idx.J[0], idx.J[1] = idx.J[1], idx.J[0]
	assert.Error(t, idx.Validate(), "same pairs in a different order renumber the edges")

	short := UpperTriangle(4)
	short.I = short.I[:5]
	short.J = short.J[:5]
	assert.Error(t, short.Validate())
}

func TestVectorizeSymmetricRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 9
	m := randomSymmetric(n, rng)
	idx := UpperTriangle(n)

	back := idx.Symmetric(idx.Vectorize(m, nil))
	for i := 0; i < n; i++ {
		assert.Equal(t, 0.0, back.At(i, i), "diagonal zeroed")
		for j := 0; j < n; j++ {
			if i != j {
				assert.Equal(t, m.At(i, j), back.At(i, j), "off-diagonal (%d,%d)", i, j)
			}
		}
	}
}

func TestCubeEdgesAndFromEdges(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	n := 5
	cube := NewCube(3, n)
	for s := 0; s < 3; s++ {
		require.NoError(t, cube.SetMatrix(s, randomSymmetric(n, rng)))
	}
	require.NoError(t, cube.Validate())

	idx := UpperTriangle(n)
	edges, err := cube.Edges(idx)
	require.NoError(t, err)
	r, c := edges.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, idx.Len(), c)

	back, err := FromEdges(idx, edges, []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, n, n}, back.Shape())
	for i := 0; i < n; i++ {
		assert.Equal(t, float32(0), back.At(0, i, i))
		for j := 0; j < n; j++ {
			if i != j {
				assert.Equal(t, cube.At(2, i, j), back.At(0, i, j))
				assert.Equal(t, cube.At(0, i, j), back.At(1, i, j))
			}
		}
	}
}

func TestCubeSelectKeepsOrder(t *testing.T) {
	cube := NewCube(4, 2)
	for s := 0; s < 4; s++ {
		cube.Slab(s)[1] = float32(s)
	}
	sel := cube.Select([]int{3, 1})
	assert.Equal(t, float32(3), sel.At(0, 0, 1))
	assert.Equal(t, float32(1), sel.At(1, 0, 1))
}

func TestSetMatrixRejectsWrongShape(t *testing.T) {
	cube := NewCube(1, 3)
	err := cube.SetMatrix(0, mat.NewDense(2, 2, nil))
	assert.Error(t, err)
}
