// Package regression removes covariate effects from every connectivity edge
// with one joint least-squares fit.
package regression

import (
	"fmt"
	"math"

	"abidenet/domain/connectivity"
	"abidenet/domain/subject"
	"abidenet/internal"

	"gonum.org/v1/gonum/mat"
)

// Result is the stage output. Residuals has one row per input subject with
// NaN rows for invalid subjects; Cube and Subjects hold the valid subjects
// only, index-aligned.
type Result struct {
	Index     connectivity.EdgeIndex
	Design    *Design
	Residuals *mat.Dense
	Valid     []bool
	Beta      *mat.Dense // covariates x edges
	Rank      int
	Cube      *connectivity.Cube
	Subjects  []subject.Subject
	Dropped   []subject.QCEntry
}

// NValid counts valid rows
func (r *Result) NValid() int {
	n := 0
	for _, v := range r.Valid {
		if v {
			n++
		}
	}
	return n
}

// Regressor fits the confound model
type Regressor struct {
	covariates []Covariate
	logger     *internal.Logger
}

// New creates a regressor for the given covariates
func New(covariates []Covariate, logger *internal.Logger) *Regressor {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Regressor{covariates: covariates, logger: logger}
}

// Regress vectorizes cube, builds the design from table, and fits
// Y = X·B on the valid rows in a single solve.
func (r *Regressor) Regress(cube *connectivity.Cube, subjects []subject.Subject, table map[string]map[string]string) (*Result, error) {
	if err := cube.Validate(); err != nil {
		return nil, err
	}
	if cube.Subjects != len(subjects) {
		return nil, fmt.Errorf("cube has %d subjects, subject list has %d", cube.Subjects, len(subjects))
	}

	idx := connectivity.UpperTriangle(cube.ROIs)
	y, err := cube.Edges(idx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(subjects))
	for i, s := range subjects {
		ids[i] = s.ID.String()
	}
	design, err := BuildDesign(ids, table, r.covariates)
	if err != nil {
		return nil, err
	}
	r.logger.Info("regression: %d subjects x %d edges, design columns %v", len(subjects), idx.Len(), design.Columns)

	valid, dropped := validRows(design, y, subjects)
	beta, rank, err := Fit(design.X, y, valid)
	if err != nil {
		return nil, err
	}
	resid := Residualize(design.X, y, beta, valid)

	var keepRows []int
	var kept []subject.Subject
	for i, ok := range valid {
		if ok {
			keepRows = append(keepRows, i)
			kept = append(kept, subjects[i])
		}
	}
	residCube, err := connectivity.FromEdges(idx, resid, keepRows)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Index:     idx,
		Design:    design,
		Residuals: resid,
		Valid:     valid,
		Beta:      beta,
		Rank:      rank,
		Cube:      residCube,
		Subjects:  kept,
		Dropped:   dropped,
	}
	r.logger.Info("regression: %d/%d valid rows, design rank %d of %d", res.NValid(), len(subjects), rank, len(design.Columns))
	for _, d := range dropped {
		r.logger.Warn("subject %s dropped from regression: %s", d.SubjectID, d.Reason)
	}
	return res, nil
}

func validRows(design *Design, y *mat.Dense, subjects []subject.Subject) ([]bool, []subject.QCEntry) {
	n := len(subjects)
	valid := make([]bool, n)
	var dropped []subject.QCEntry
	for i := 0; i < n; i++ {
		reason := ""
		if !design.RowValid(i) {
			reason = "non-finite covariate"
		} else if !finiteRow(y, i) {
			reason = "non-finite edge"
		}
		if reason == "" {
			valid[i] = true
			continue
		}
		dropped = append(dropped, subject.QCEntry{
			SubjectID: subjects[i].ID,
			Status:    subject.StatusInvalidCovariate,
			Reason:    reason,
		})
	}
	return valid, dropped
}

func finiteRow(m *mat.Dense, i int) bool {
	if r, _ := m.Dims(); r == 0 {
		return true
	}
	for _, v := range m.RawRowView(i) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
