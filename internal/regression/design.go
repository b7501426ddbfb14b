package regression

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"abidenet/domain/core"

	"gonum.org/v1/gonum/mat"
)

// InterceptColumn names the constant column of every design matrix
const InterceptColumn = "const"

// Covariate is one confound and how it enters the design
type Covariate struct {
	Name        string
	Categorical bool
}

// Design is the subject x covariate matrix, rows in cube order.
// Missing or unparseable cells are NaN, which invalidates the row.
type Design struct {
	Columns []string
	X       *mat.Dense
}

// Rows returns the number of subjects
func (d *Design) Rows() int {
	r, _ := d.X.Dims()
	return r
}

// RowValid reports whether every cell of row i is finite
func (d *Design) RowValid(i int) bool {
	for _, v := range d.X.RawRowView(i) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// BuildDesign aligns covariates to subjectIDs by ID, not position: row i
// describes subjectIDs[i] whatever order the table came in. Numeric columns
// pass through; categorical columns are one-hot encoded over their sorted
// levels with the first level dropped; an intercept leads.
//
// A covariate that no subject in table carries is a fatal input error.
func BuildDesign(subjectIDs []string, table map[string]map[string]string, covs []Covariate) (*Design, error) {
	for _, cv := range covs {
		if !hasColumn(table, cv.Name) {
			return nil, core.NewMissingColumnError("phenotype", cv.Name)
		}
	}

	cell := func(id, col string) (string, bool) {
		row, ok := table[id]
		if !ok {
			return "", false
		}
		v, ok := row[col]
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	type block struct {
		names  []string
		values func(id string) []float64
	}
	var blocks []block
	for _, cv := range covs {
		cv := cv
		if !cv.Categorical {
			blocks = append(blocks, block{
				names: []string{cv.Name},
				values: func(id string) []float64 {
					raw, ok := cell(id, cv.Name)
					if !ok {
						return []float64{math.NaN()}
					}
					f, err := strconv.ParseFloat(raw, 64)
					if err != nil {
						return []float64{math.NaN()}
					}
					return []float64{f}
				},
			})
			continue
		}

		levelSet := make(map[string]bool)
		for _, id := range subjectIDs {
			if raw, ok := cell(id, cv.Name); ok {
				levelSet[raw] = true
			}
		}
		levels := make([]string, 0, len(levelSet))
		for l := range levelSet {
			levels = append(levels, l)
		}
		sort.Strings(levels)
		var kept []string
		if len(levels) > 1 {
			kept = levels[1:]
		}
		names := make([]string, len(kept))
		for i, l := range kept {
			names[i] = fmt.Sprintf("%s_%s", cv.Name, l)
		}
		blocks = append(blocks, block{
			names: names,
			values: func(id string) []float64 {
				out := make([]float64, len(kept))
				raw, ok := cell(id, cv.Name)
				for i, l := range kept {
					switch {
					case !ok:
						out[i] = math.NaN()
					case raw == l:
						out[i] = 1
					}
				}
				return out
			},
		})
	}

	columns := []string{InterceptColumn}
	for _, b := range blocks {
		columns = append(columns, b.names...)
	}
	if len(subjectIDs) == 0 {
		return &Design{Columns: columns, X: &mat.Dense{}}, nil
	}

	x := mat.NewDense(len(subjectIDs), len(columns), nil)
	for i, id := range subjectIDs {
		row := x.RawRowView(i)
		row[0] = 1
		c := 1
		for _, b := range blocks {
			for _, v := range b.values(id) {
				row[c] = v
				c++
			}
		}
	}
	return &Design{Columns: columns, X: x}, nil
}

func hasColumn(table map[string]map[string]string, col string) bool {
	for _, row := range table {
		if _, ok := row[col]; ok {
			return true
		}
	}
	return false
}
