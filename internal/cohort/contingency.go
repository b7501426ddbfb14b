package cohort

import (
	"math"
	"sort"

	"abidenet/internal/stattest"
)

// Contingency is a diagnosis (rows ASD, TDC) by category table
type Contingency struct {
	Rows   []string `json:"rows"`
	Cols   []string `json:"cols"`
	Counts [][]int  `json:"counts"`
}

// ChiTest is a Pearson chi-square test of independence
type ChiTest struct {
	Chi2 float64 `json:"chi2"`
	DF   int     `json:"dof"`
	P    float64 `json:"p"`
}

// crosstab counts (row, col) pairs. Columns come out in the given order,
// or sorted when order is nil; rows always ASD then TDC.
func crosstab(rows, cols []string, order []string) Contingency {
	if order == nil {
		seen := make(map[string]bool)
		for _, c := range cols {
			if c != "" && !seen[c] {
				seen[c] = true
				order = append(order, c)
			}
		}
		sort.Strings(order)
	}
	pos := make(map[string]int, len(order))
	for i, c := range order {
		pos[c] = i
	}
	t := Contingency{Rows: []string{"ASD", "TDC"}, Cols: order, Counts: make([][]int, 2)}
	for r := range t.Counts {
		t.Counts[r] = make([]int, len(order))
	}
	for i := range rows {
		c, ok := pos[cols[i]]
		if !ok {
			continue
		}
		switch rows[i] {
		case "ASD":
			t.Counts[0][c]++
		case "TDC":
			t.Counts[1][c]++
		}
	}
	return t
}

// RowTotal sums one row
func (t Contingency) RowTotal(r int) int {
	n := 0
	for _, v := range t.Counts[r] {
		n += v
	}
	return n
}

// ColTotal sums one column
func (t Contingency) ColTotal(c int) int {
	n := 0
	for r := range t.Counts {
		n += t.Counts[r][c]
	}
	return n
}

// CellsBelow counts cells with fewer than n subjects
func (t Contingency) CellsBelow(n int) int {
	k := 0
	for r := range t.Counts {
		for _, v := range t.Counts[r] {
			if v < n {
				k++
			}
		}
	}
	return k
}

// ChiSquare runs the test. A 2x2 table gets Yates' continuity correction.
// Cells with zero expected count are skipped. Tables with a single
// column have nothing to test and return nil.
func (t Contingency) ChiSquare() *ChiTest {
	if len(t.Cols) < 2 || len(t.Rows) < 2 {
		return nil
	}
	total := 0
	for r := range t.Counts {
		total += t.RowTotal(r)
	}
	if total == 0 {
		return nil
	}
	df := (len(t.Rows) - 1) * (len(t.Cols) - 1)
	chi2 := 0.0
	for r := range t.Counts {
		rs := float64(t.RowTotal(r))
		for c := range t.Cols {
			exp := rs * float64(t.ColTotal(c)) / float64(total)
			if exp == 0 {
				continue
			}
			d := math.Abs(float64(t.Counts[r][c]) - exp)
			if df == 1 {
				d = math.Max(0, d-0.5)
			}
			chi2 += d * d / exp
		}
	}
	return &ChiTest{Chi2: chi2, DF: df, P: stattest.ChiSquareP(chi2, df)}
}
