package assembler

import (
	"context"
	"math"
	"testing"

	"abidenet/domain/core"
	"abidenet/domain/subject"
	"abidenet/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func scenarioCohort() *testkit.Cohort {
	cfg := testkit.DefaultCohortConfig()
	cfg.SubjectsPerGroup = 10
	cfg.ROIs = 4
	cfg.Timepoints = 50
	cfg.Networks = []string{"Default Mode", "Visual"}
	cfg.ConstantROIFraction = 0.5
	cfg.ConstantROI = 1
	return testkit.NewCohortGenerator(cfg).Generate()
}

func TestAssembleRejectsDegenerateSubjects(t *testing.T) {
	cohort := scenarioCohort()
	opts := DefaultOptions()
	opts.MaxBadROIsRatio = 0.15

	res, err := New(cohort.Reader(), opts, nil).Assemble(context.Background(), cohort.SubjectList())
	require.NoError(t, err)

	assert.Equal(t, [3]int{10, 4, 4}, res.Cube.Shape())
	require.Len(t, res.Ledger, 20)
	for i, e := range res.Ledger {
		if i < 10 {
			assert.Equal(t, subject.StatusTooManyBadROIs, e.Status, "subject %d", i)
			assert.Equal(t, 1, e.NBad)
		} else {
			assert.Equal(t, subject.StatusKept, e.Status, "subject %d", i)
		}
	}

	// kept subjects stay in input order and aligned with the cube
	require.Len(t, res.Kept, 10)
	assert.Equal(t, cohort.Subjects[10].ID, res.Kept[0].ID.String())
	assert.Equal(t, cohort.Subjects[19].ID, res.Kept[9].ID.String())
	assert.Len(t, res.Labels(), 10)
	assert.Len(t, res.SubjectIDs(), 10)
}

func TestAssembleKeepsDegenerateUnderLooseThreshold(t *testing.T) {
	cohort := scenarioCohort()
	opts := DefaultOptions()
	opts.MaxBadROIsRatio = 0.3

	res, err := New(cohort.Reader(), opts, nil).Assemble(context.Background(), cohort.SubjectList())
	require.NoError(t, err)
	assert.Equal(t, 20, res.Cube.Subjects)

	// the flat ROI's off-diagonal entries are z(0) = 0
	for j := 0; j < 4; j++ {
		if j != 1 {
			assert.Equal(t, float32(0), res.Cube.At(0, 1, j))
		}
	}
}

func TestAssembleFisherTransformsEntries(t *testing.T) {
	cohort := scenarioCohort()
	res, err := New(cohort.Reader(), DefaultOptions(), nil).Assemble(context.Background(), cohort.SubjectList())
	require.NoError(t, err)

	src := cohort.Subjects[10].Series
	r01 := pearson(src, 0, 2)
	assert.InDelta(t, math.Atanh(r01), float64(res.Cube.At(0, 0, 2)), 1e-5)

	diag := float64(res.Cube.At(0, 3, 3))
	assert.InDelta(t, 0.5*math.Log((2-1e-6)/1e-6), diag, 1e-3)
}

func TestAssembleClassifiesReadFailures(t *testing.T) {
	cohort := scenarioCohort()
	reader := cohort.Reader()
	subjects := cohort.SubjectList()[10:]

	reader.Remove(subjects[0].ID)
	reader.Corrupt(subjects[1].ID)
	reader.Put(subjects[3].ID, mat.NewDense(50, 5, randomFill(250)))

	res, err := New(reader, DefaultOptions(), nil).Assemble(context.Background(), subjects)
	require.NoError(t, err)

	assert.Equal(t, subject.StatusMissing, res.Ledger[0].Status)
	assert.Equal(t, subject.StatusReadError, res.Ledger[1].Status)
	assert.Equal(t, subject.StatusKept, res.Ledger[2].Status)
	assert.Equal(t, subject.StatusShapeMismatch, res.Ledger[3].Status)
	assert.Equal(t, 4, res.NROIs, "ROI count comes from the first readable subject")
	assert.Equal(t, 7, res.Cube.Subjects)
	assert.Equal(t, 7, subject.CountByStatus(res.Ledger)[subject.StatusKept])
}

func TestAssembleFirstReadableDefinesShape(t *testing.T) {
	reader := testkit.NewInMemoryReader()
	subjects := []subject.Subject{
		{ID: core.SubjectID("a"), Diagnosis: subject.DiagnosisASD},
		{ID: core.SubjectID("b"), Diagnosis: subject.DiagnosisTDC},
		{ID: core.SubjectID("c"), Diagnosis: subject.DiagnosisTDC},
	}
	reader.Put("a", mat.NewDense(30, 3, randomFill(90)))
	reader.Put("b", mat.NewDense(30, 4, randomFill(120)))
	reader.Put("c", mat.NewDense(30, 4, randomFill(120)))

	opts := DefaultOptions()
	opts.Workers = 3
	res, err := New(reader, opts, nil).Assemble(context.Background(), subjects)
	require.NoError(t, err)
	assert.Equal(t, 3, res.NROIs)
	assert.Equal(t, subject.StatusKept, res.Ledger[0].Status)
	assert.Equal(t, subject.StatusShapeMismatch, res.Ledger[1].Status)
	assert.Equal(t, subject.StatusShapeMismatch, res.Ledger[2].Status)
}

func TestAssembleEmptyCohort(t *testing.T) {
	res, err := New(testkit.NewInMemoryReader(), DefaultOptions(), nil).Assemble(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Cube.Subjects)
	assert.Empty(t, res.Ledger)
}

func TestAssembleHonoursCancellation(t *testing.T) {
	cohort := scenarioCohort()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(cohort.Reader(), DefaultOptions(), nil).Assemble(ctx, cohort.SubjectList())
	assert.Error(t, err)
}

func randomFill(n int) []float64 {
	out := make([]float64, n)
	x := uint64(88172645463325252)
	for i := range out {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		out[i] = float64(x%10000) / 1000
	}
	return out
}

func pearson(x *mat.Dense, a, b int) float64 {
	t, _ := x.Dims()
	var ma, mb float64
	for i := 0; i < t; i++ {
		ma += x.At(i, a)
		mb += x.At(i, b)
	}
	ma /= float64(t)
	mb /= float64(t)
	var sab, saa, sbb float64
	for i := 0; i < t; i++ {
		da, db := x.At(i, a)-ma, x.At(i, b)-mb
		sab += da * db
		saa += da * da
		sbb += db * db
	}
	return sab / math.Sqrt(saa*sbb)
}
