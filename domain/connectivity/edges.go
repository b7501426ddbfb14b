package connectivity

import (
	"abidenet/domain/core"

	"gonum.org/v1/gonum/mat"
)

// EdgeIndex is the (row, col) pair for every upper-triangle edge, diagonal
// excluded, in row-major order. Edge k means the same ROI pair in every stage.
type EdgeIndex struct {
	N int   `json:"n_rois"`
	I []int `json:"triu_i"`
	J []int `json:"triu_j"`
}

// UpperTriangle builds the canonical index for an n x n matrix
func UpperTriangle(n int) EdgeIndex {
	m := n * (n - 1) / 2
	if n < 2 {
		m = 0
	}
	idx := EdgeIndex{N: n, I: make([]int, 0, m), J: make([]int, 0, m)}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			idx.I = append(idx.I, i)
			idx.J = append(idx.J, j)
		}
	}
	return idx
}

// Len returns the number of edges
func (e EdgeIndex) Len() int {
	return len(e.I)
}

// Validate checks that a recorded index is the canonical one for its size;
// anything else would silently remap edges between stages.
func (e EdgeIndex) Validate() error {
	if len(e.I) != len(e.J) {
		return core.NewShapeError("edge index", len(e.J), len(e.I))
	}
	want := UpperTriangle(e.N)
	if len(e.I) != want.Len() {
		return core.NewShapeError("edge index length", len(e.I), want.Len())
	}
	for k := range e.I {
		if e.I[k] != want.I[k] || e.J[k] != want.J[k] {
			return core.NewShapeError("edge index entry", [2]int{e.I[k], e.J[k]}, [2]int{want.I[k], want.J[k]})
		}
	}
	return nil
}

// Position returns the edge number of ROI pair (i, j) in either order
func (e EdgeIndex) Position(i, j int) (int, bool) {
	if i == j || i < 0 || j < 0 || i >= e.N || j >= e.N {
		return 0, false
	}
	if i > j {
		i, j = j, i
	}
	return i*e.N - i*(i+1)/2 + (j - i - 1), true
}

// Vectorize copies the upper triangle of m into dst (allocated when nil)
func (e EdgeIndex) Vectorize(m mat.Matrix, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, e.Len())
	}
	for k := range e.I {
		dst[k] = m.At(e.I[k], e.J[k])
	}
	return dst
}

// Symmetric re-expands an edge vector into a full matrix: mirrored across the
// diagonal, diagonal set to zero.
func (e EdgeIndex) Symmetric(vec []float64) *mat.Dense {
	if e.N == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(e.N, e.N, nil)
	for k := range e.I {
		m.Set(e.I[k], e.J[k], vec[k])
		m.Set(e.J[k], e.I[k], vec[k])
	}
	return m
}

// FromEdges re-expands selected rows of an edge matrix into a cube
func FromEdges(idx EdgeIndex, edges *mat.Dense, rows []int) (*Cube, error) {
	if len(rows) > 0 {
		if _, c := edges.Dims(); c != idx.Len() {
			return nil, core.NewShapeError("edge matrix columns", c, idx.Len())
		}
	}
	cube := NewCube(len(rows), idx.N)
	if idx.Len() == 0 {
		return cube, nil
	}
	for dst, src := range rows {
		vec := edges.RawRowView(src)
		slab := cube.Slab(dst)
		for k := range idx.I {
			v := float32(vec[k])
			slab[idx.I[k]*idx.N+idx.J[k]] = v
			slab[idx.J[k]*idx.N+idx.I[k]] = v
		}
	}
	return cube, nil
}
