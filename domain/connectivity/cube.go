// Package connectivity holds the stacked subject connectivity matrices and the
// upper-triangle edge indexing shared by every stage after assembly.
package connectivity

import (
	"fmt"

	"abidenet/domain/core"

	"gonum.org/v1/gonum/mat"
)

// Cube is a row-major float32 stack of square matrices, one per subject.
// Index s in Data always refers to the subject at position s in the
// parallel subject-ID and label arrays that travel with the cube.
type Cube struct {
	Subjects int
	ROIs     int
	Data     []float32
}

// NewCube allocates a zeroed cube
func NewCube(subjects, rois int) *Cube {
	return &Cube{
		Subjects: subjects,
		ROIs:     rois,
		Data:     make([]float32, subjects*rois*rois),
	}
}

// Shape returns (subjects, rois, rois)
func (c *Cube) Shape() [3]int {
	return [3]int{c.Subjects, c.ROIs, c.ROIs}
}

// Validate checks that the backing slice matches the declared shape
func (c *Cube) Validate() error {
	if c.Subjects < 0 || c.ROIs < 0 {
		return core.NewShapeError("cube", c.Shape(), "non-negative dims")
	}
	if want := c.Subjects * c.ROIs * c.ROIs; len(c.Data) != want {
		return core.NewShapeError("cube data length", len(c.Data), want)
	}
	return nil
}

func (c *Cube) offset(s int) int {
	return s * c.ROIs * c.ROIs
}

// At returns entry (i, j) of subject s
func (c *Cube) At(s, i, j int) float32 {
	return c.Data[c.offset(s)+i*c.ROIs+j]
}

// Slab returns the backing slice for subject s. Writes go straight into the cube.
func (c *Cube) Slab(s int) []float32 {
	off := c.offset(s)
	return c.Data[off : off+c.ROIs*c.ROIs]
}

// SetMatrix stores m (ROIs x ROIs) as subject s
func (c *Cube) SetMatrix(s int, m mat.Matrix) error {
	r, cols := m.Dims()
	if r != c.ROIs || cols != c.ROIs {
		return core.NewShapeError(fmt.Sprintf("matrix for subject %d", s), [2]int{r, cols}, [2]int{c.ROIs, c.ROIs})
	}
	slab := c.Slab(s)
	for i := 0; i < r; i++ {
		for j := 0; j < cols; j++ {
			slab[i*c.ROIs+j] = float32(m.At(i, j))
		}
	}
	return nil
}

// Matrix returns a float64 copy of subject s
func (c *Cube) Matrix(s int) *mat.Dense {
	slab := c.Slab(s)
	data := make([]float64, len(slab))
	for k, v := range slab {
		data[k] = float64(v)
	}
	return mat.NewDense(c.ROIs, c.ROIs, data)
}

// Select returns a new cube holding only the listed subject positions, in order
func (c *Cube) Select(positions []int) *Cube {
	out := NewCube(len(positions), c.ROIs)
	for dst, src := range positions {
		copy(out.Slab(dst), c.Slab(src))
	}
	return out
}

// Edges vectorizes every subject into a (subjects x edges) matrix using idx
func (c *Cube) Edges(idx EdgeIndex) (*mat.Dense, error) {
	if idx.N != c.ROIs {
		return nil, core.NewShapeError("edge index", idx.N, c.ROIs)
	}
	n := idx.Len()
	if c.Subjects == 0 || n == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(c.Subjects, n, nil)
	for s := 0; s < c.Subjects; s++ {
		slab := c.Slab(s)
		row := out.RawRowView(s)
		for k := 0; k < n; k++ {
			row[k] = float64(slab[idx.I[k]*c.ROIs+idx.J[k]])
		}
	}
	return out, nil
}
