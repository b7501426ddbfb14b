package artifacts

import (
	"math"
	"path"
	"strconv"

	"abidenet/domain/connectivity"
	"abidenet/domain/core"
	"abidenet/domain/subject"

	"gonum.org/v1/gonum/mat"
)

// Connectivity and regression artifact paths, relative to the store root
var (
	ConnCube     = path.Join(DirConnectivity, "conn.f32")
	ConnSubjects = path.Join(DirConnectivity, "subjects.json")
	ConnLabels   = path.Join(DirConnectivity, "labels.json")
	ConnROIIDs   = path.Join(DirConnectivity, "roi_ids.json")
	ConnQC       = path.Join(DirConnectivity, "qc_connectivity_per_subject.csv")

	ResidCube      = path.Join(DirRegressed, "conn_resid.f32")
	ResidEdges     = path.Join(DirRegressed, "residual_edges.f32")
	ResidSubjects  = path.Join(DirRegressed, "subjects_valid.json")
	ResidLabels    = path.Join(DirRegressed, "labels_valid.json")
	ResidAll       = path.Join(DirRegressed, "subjects_all.json")
	ResidAllLabels = path.Join(DirRegressed, "labels_all.json")
	ResidEdgeIndex = path.Join(DirRegressed, "edge_index.json")
	ResidDesign    = path.Join(DirRegressed, "design_columns.json")
	ResidQC        = path.Join(DirRegressed, "qc_regression.csv")
)

// SaveCube writes a cube as a (subjects, rois, rois) array
func (s *Store) SaveCube(rel string, c *connectivity.Cube) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return s.WriteArray(rel, []int{c.Subjects, c.ROIs, c.ROIs}, c.Data)
}

// LoadCube reads a cube written by SaveCube
func (s *Store) LoadCube(rel string) (*connectivity.Cube, error) {
	h, data, err := s.ReadArray(rel)
	if err != nil {
		return nil, err
	}
	if len(h.Shape) != 3 || h.Shape[1] != h.Shape[2] {
		return nil, core.NewShapeError(rel, h.Shape, "(subjects, rois, rois)")
	}
	c := &connectivity.Cube{Subjects: h.Shape[0], ROIs: h.Shape[1], Data: data}
	return c, c.Validate()
}

// SaveEdges writes a (rows x edges) matrix as float32; NaN rows survive
func (s *Store) SaveEdges(rel string, m *mat.Dense) error {
	r, c := 0, 0
	if m != nil && !m.IsEmpty() {
		r, c = m.Dims()
	}
	data := make([]float32, 0, r*c)
	for i := 0; i < r; i++ {
		for _, v := range m.RawRowView(i) {
			data = append(data, float32(v))
		}
	}
	return s.WriteArray(rel, []int{r, c}, data)
}

// LoadEdges reads a matrix written by SaveEdges
func (s *Store) LoadEdges(rel string) (*mat.Dense, error) {
	h, data, err := s.ReadArray(rel)
	if err != nil {
		return nil, err
	}
	if len(h.Shape) != 2 {
		return nil, core.NewShapeError(rel, h.Shape, "(rows, edges)")
	}
	if h.Len() == 0 {
		return &mat.Dense{}, nil
	}
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return mat.NewDense(h.Shape[0], h.Shape[1], out), nil
}

// SaveSubjects writes the parallel ID and DX-code arrays
func (s *Store) SaveSubjects(idsRel, labelsRel string, subjects []subject.Subject) error {
	ids := make([]string, len(subjects))
	codes := make([]int, len(subjects))
	for i, sub := range subjects {
		ids[i] = sub.ID.String()
		codes[i] = int(sub.Diagnosis)
	}
	if err := s.WriteJSON(idsRel, ids); err != nil {
		return err
	}
	return s.WriteJSON(labelsRel, codes)
}

// LoadSubjects reads the arrays back; they must have equal length
func (s *Store) LoadSubjects(idsRel, labelsRel string) ([]subject.Subject, error) {
	var ids []string
	var codes []int
	if err := s.ReadJSON(idsRel, &ids); err != nil {
		return nil, err
	}
	if err := s.ReadJSON(labelsRel, &codes); err != nil {
		return nil, err
	}
	if len(ids) != len(codes) {
		return nil, core.NewShapeError(labelsRel, len(codes), len(ids))
	}
	out := make([]subject.Subject, len(ids))
	for i := range ids {
		out[i] = subject.Subject{ID: core.SubjectID(ids[i]), Diagnosis: subject.Diagnosis(codes[i])}
	}
	return out, nil
}

// SaveROIIDs writes the 1-based ROI numbers of the cube axes
func (s *Store) SaveROIIDs(rel string, n int) error {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}
	return s.WriteJSON(rel, ids)
}

// SaveEdgeIndex records the vectorization order
func (s *Store) SaveEdgeIndex(rel string, idx connectivity.EdgeIndex) error {
	return s.WriteJSON(rel, idx)
}

// LoadEdgeIndex reads an index and rejects any order other than the
// canonical upper triangle
func (s *Store) LoadEdgeIndex(rel string) (connectivity.EdgeIndex, error) {
	var idx connectivity.EdgeIndex
	if err := s.ReadJSON(rel, &idx); err != nil {
		return idx, err
	}
	return idx, idx.Validate()
}

var qcHeader = []string{"FILE_ID", "status", "n_bad", "n_imputed", "reason"}

// SaveQC writes a QC ledger
func (s *Store) SaveQC(rel string, ledger []subject.QCEntry) error {
	rows := [][]string{qcHeader}
	for _, e := range ledger {
		rows = append(rows, []string{
			e.SubjectID.String(), string(e.Status),
			strconv.Itoa(e.NBad), strconv.Itoa(e.NImputed), e.Reason,
		})
	}
	return s.WriteCSV(rel, rows)
}

// LoadQC reads a QC ledger
func (s *Store) LoadQC(rel string) ([]subject.QCEntry, error) {
	header, rows, err := s.ReadCSV(rel)
	if err != nil {
		return nil, err
	}
	col := columns(header)
	for _, c := range qcHeader[:2] {
		if _, ok := col[c]; !ok {
			return nil, core.NewMissingColumnError(rel, c)
		}
	}
	out := make([]subject.QCEntry, 0, len(rows))
	for _, r := range rows {
		e := subject.QCEntry{
			SubjectID: core.SubjectID(cell(r, col, "FILE_ID")),
			Status:    subject.QCStatus(cell(r, col, "status")),
			Reason:    cell(r, col, "reason"),
		}
		e.NBad, _ = strconv.Atoi(cell(r, col, "n_bad"))
		e.NImputed, _ = strconv.Atoi(cell(r, col, "n_imputed"))
		out = append(out, e)
	}
	return out, nil
}

func columns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, h := range header {
		m[h] = i
	}
	return m
}

func cell(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
