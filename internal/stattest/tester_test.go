package stattest

import (
	"math"
	"testing"

	"abidenet/domain/core"
	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/subject"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockScores builds one block's rows from per-group values
func blockScores(typ network.BlockType, name string, asd, tdc []float64) []results.BlockScore {
	var out []results.BlockScore
	for i, v := range asd {
		out = append(out, results.BlockScore{
			SubjectID: core.SubjectID(name + "_a" + string(rune('0'+i))),
			Group:     subject.DiagnosisASD, Type: typ, Block: name, Score: v, ScoreKind: results.KindMean,
		})
	}
	for i, v := range tdc {
		out = append(out, results.BlockScore{
			SubjectID: core.SubjectID(name + "_t" + string(rune('0'+i))),
			Group:     subject.DiagnosisTDC, Type: typ, Block: name, Score: v, ScoreKind: results.KindMean,
		})
	}
	return out
}

func fixtureScores(interShift float64) []results.BlockScore {
	var s []results.BlockScore
	s = append(s, blockScores(network.Inter, "DMN-VIS",
		[]float64{0.2 + interShift, 0.3 + interShift, 0.25 + interShift, 0.28 + interShift},
		[]float64{0.21, 0.26, 0.3, 0.27})...)
	s = append(s, blockScores(network.Intra, "VIS",
		[]float64{0.5, 0.52, 0.49, 0.51}, []float64{0.5, 0.48, 0.53, 0.5})...)
	s = append(s, blockScores(network.Intra, "DMN",
		[]float64{0.9, 0.95, 0.92, 0.97}, []float64{0.4, 0.42, 0.39, 0.45})...)
	s = append(s, blockScores(network.Inter, "DMN-FPN",
		[]float64{0.1, 0.12, 0.11, 0.13}, []float64{0.1 - interShift, 0.09, 0.12, 0.1})...)
	return s
}

func TestTestBlocksOrderAndDirection(t *testing.T) {
	tester := NewTester(DefaultOptions(), nil)
	tests, err := tester.TestBlocks(fixtureScores(0))
	require.NoError(t, err)
	require.Len(t, tests, 4)

	var names []string
	for _, bt := range tests {
		names = append(names, string(bt.Type)+"/"+bt.Block)
	}
	assert.Equal(t, []string{"intra/DMN", "intra/VIS", "inter/DMN-FPN", "inter/DMN-VIS"}, names)

	dmn := tests[0]
	assert.Greater(t, dmn.T, 0.0, "ASD larger gives positive t")
	assert.True(t, dmn.Significant)
	assert.Equal(t, 4, dmn.ASD.N)
	assert.InDelta(t, 0.935, dmn.ASD.Mean, 1e-12)
	assert.InDelta(t, 0.415, dmn.TDC.Mean, 1e-12)
	assert.False(t, tests[1].Significant)
}

func TestTestBlocksFamiliesCorrectedIndependently(t *testing.T) {
	tester := NewTester(DefaultOptions(), nil)
	before, err := tester.TestBlocks(fixtureScores(0))
	require.NoError(t, err)
	after, err := tester.TestBlocks(fixtureScores(0.4))
	require.NoError(t, err)
	require.Len(t, after, len(before))

	for i := range before {
		if before[i].Type == network.Intra {
			assert.Equal(t, before[i].PAdj, after[i].PAdj, "intra %s must not see inter p-values", before[i].Block)
		}
	}
	assert.NotEqual(t, before[2].P, after[2].P)
}

func TestTestBlocksSkipsSmallGroups(t *testing.T) {
	scores := fixtureScores(0)
	scores = append(scores, blockScores(network.Intra, "SAL",
		[]float64{0.1, math.NaN(), 0.2, math.Inf(1)}, []float64{0.3, 0.2, 0.1})...)

	tests, err := NewTester(DefaultOptions(), nil).TestBlocks(scores)
	require.NoError(t, err)
	for _, bt := range tests {
		assert.NotEqual(t, "SAL", bt.Block)
	}

	loose := DefaultOptions()
	loose.MinGroupSize = 2
	tests, err = NewTester(loose, nil).TestBlocks(scores)
	require.NoError(t, err)
	found := false
	for _, bt := range tests {
		if bt.Block == "SAL" {
			found = true
			assert.Equal(t, 2, bt.ASD.N)
		}
	}
	assert.True(t, found)
}

func TestSummarizeAndFamily(t *testing.T) {
	tests, err := NewTester(DefaultOptions(), nil).TestBlocks(fixtureScores(0))
	require.NoError(t, err)
	sum := Summarize(tests, 0.05)
	assert.Equal(t, 4, sum.Tested)
	assert.GreaterOrEqual(t, sum.SigUncorrected, sum.SigCorrected)
	assert.Equal(t, sum.Tested, sum.Positive+sum.Negative+countZero(tests))
	assert.Len(t, Family(tests, network.Intra), 2)
	assert.Len(t, Family(tests, network.Inter), 2)
}

func countZero(tests []results.BlockTest) int {
	n := 0
	for _, bt := range tests {
		if bt.T == 0 {
			n++
		}
	}
	return n
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "-0.1235 ± 0.5000", FormatMeanSD(results.GroupSummary{Mean: -0.12346, SD: 0.5}, 4))
	assert.Equal(t, "<0.001", FormatP(0.0005))
	assert.Equal(t, "0.012", FormatP(0.0123))
	assert.Equal(t, "1.000", FormatP(1))

	rows := TableRows([]results.BlockTest{{
		Type: network.Intra, Block: "DMN",
		TDC: results.GroupSummary{Mean: 0.1, SD: 0.2},
		ASD: results.GroupSummary{Mean: 0.3, SD: 0.4},
		T:   2.5, P: 0.02, PAdj: 0.04,
	}}, 2)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], len(TableHeader))
	assert.Equal(t, []string{"intra", "DMN", "0.10 ± 0.20", "0.30 ± 0.40", "2.5", "0.04", "0.040", "ASD_vs_TDC"}, rows[0])
}
