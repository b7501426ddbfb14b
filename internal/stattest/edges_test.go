package stattest

import (
	"context"
	"math"
	"testing"

	"abidenet/domain/connectivity"
	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/subject"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// edgeFixture has one strong ASD > TDC edge (ROI 1-2), four null edges and
// one edge with no finite ASD values (ROI 3-4)
func edgeFixture() (*mat.Dense, []subject.Diagnosis) {
	const n = 10
	edges := mat.NewDense(n, 6, nil)
	labels := make([]subject.Diagnosis, n)
	for s := 0; s < n; s++ {
		asd := s%2 == 0
		labels[s] = subject.DiagnosisTDC
		if asd {
			labels[s] = subject.DiagnosisASD
		}
		step := float64(s / 2)
		for k := 0; k < 6; k++ {
			v := 0.1 * step
			switch {
			case k == 0 && asd:
				v = 1 + 0.01*step
			case k == 0:
				v = 0.01 * step
			case k == 5 && asd:
				v = math.NaN()
			}
			edges.Set(s, k, v)
		}
	}
	return edges, labels
}

func TestTestEdges(t *testing.T) {
	edges, labels := edgeFixture()
	idx := connectivity.UpperTriangle(4)
	mapping, err := network.NewMapping(4, map[int]string{1: "Default", 2: "Default", 3: "Visual", 4: "Visual"})
	require.NoError(t, err)

	rep, err := NewTester(DefaultOptions(), nil).TestEdges(context.Background(), edges, labels, idx, mapping, 3)
	require.NoError(t, err)
	require.Len(t, rep.Tests, 6)

	first := rep.Tests[0]
	assert.Equal(t, 1, first.ROII)
	assert.Equal(t, 2, first.ROIJ)
	assert.True(t, first.Significant)
	assert.Greater(t, first.T, 0.0)
	assert.Equal(t, results.EdgeIntra, first.Kind)
	assert.Equal(t, "Default", first.NetI)

	for k := 1; k < 5; k++ {
		assert.Equal(t, 0.0, rep.Tests[k].T)
		assert.False(t, rep.Tests[k].Significant)
	}
	assert.Equal(t, results.EdgeInter, rep.Tests[1].Kind)

	last := rep.Tests[5]
	assert.True(t, math.IsNaN(last.P))
	assert.True(t, math.IsNaN(last.PAdj))
	assert.False(t, last.Significant)

	assert.Equal(t, first.T, rep.TMap.At(0, 1))
	assert.Equal(t, first.T, rep.TMap.At(1, 0))
	assert.Equal(t, 0.0, rep.TMap.At(2, 3))
	assert.Equal(t, 0.0, rep.TMap.At(0, 0))

	assert.Equal(t, 1, rep.Summary.EdgesSig)
	assert.Equal(t, 5, rep.Summary.NASD)
	assert.Equal(t, 4, rep.Summary.NROIs)
	assert.InDelta(t, 1.0/6, rep.Summary.PropSignificant, 1e-12)

	require.Len(t, rep.Degrees, 4)
	assert.Equal(t, 1, rep.Degrees[0].Degree)
	assert.Equal(t, 1, rep.Degrees[1].Degree)
	assert.Equal(t, 0, rep.Degrees[2].Degree)

	require.Len(t, rep.Intra, 1)
	assert.Equal(t, results.NetworkCount{Kind: results.EdgeIntra, Name: "Default", NEdges: 1, NUniqueROIs: 2}, rep.Intra[0])
	assert.Empty(t, rep.Inter)
	assert.Len(t, rep.Significant(), 1)
}

func TestTestEdgesWithoutMapping(t *testing.T) {
	edges, labels := edgeFixture()
	rep, err := NewTester(DefaultOptions(), nil).TestEdges(context.Background(), edges, labels, connectivity.UpperTriangle(4), nil, 1)
	require.NoError(t, err)
	assert.Empty(t, rep.Tests[0].Kind)
	assert.Empty(t, rep.Intra)
	assert.Empty(t, rep.Degrees[0].Network)
}

func TestTestEdgesShapeErrors(t *testing.T) {
	edges, labels := edgeFixture()
	tester := NewTester(DefaultOptions(), nil)
	_, err := tester.TestEdges(context.Background(), edges, labels[:4], connectivity.UpperTriangle(4), nil, 1)
	assert.Error(t, err)
	_, err = tester.TestEdges(context.Background(), edges, labels, connectivity.UpperTriangle(5), nil, 1)
	assert.Error(t, err)
}

func TestPairName(t *testing.T) {
	assert.Equal(t, "Default ↔ Visual", PairName("Visual", "Default"))
	assert.Equal(t, PairName("A", "B"), PairName("B", "A"))
}
