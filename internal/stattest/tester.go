// Package stattest compares ASD and TDC groups per network block or per
// edge and corrects p-values within test families.
package stattest

import (
	"math"
	"sort"

	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/subject"
	"abidenet/internal"
)

// Options is the testing policy
type Options struct {
	Alpha        float64
	Method       Method
	EqualVar     bool
	MinGroupSize int
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{Alpha: 0.05, Method: MethodBH, MinGroupSize: 3}
}

// Tester runs block-level and edge-level group comparisons
type Tester struct {
	opts   Options
	logger *internal.Logger
}

// NewTester creates a tester
func NewTester(opts Options, logger *internal.Logger) *Tester {
	if opts.MinGroupSize < 2 {
		opts.MinGroupSize = 2
	}
	if opts.Method == "" {
		opts.Method = MethodBH
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Tester{opts: opts, logger: logger}
}

// Options returns the policy in force
func (t *Tester) Options() Options {
	return t.opts
}

type blockKey struct {
	typ  network.BlockType
	name string
}

// TestBlocks runs one ASD-minus-TDC test per (type, block) in the long score
// table. Blocks with fewer than MinGroupSize finite scores in either group
// are left out. Intra and inter blocks are corrected as separate families.
// Output is sorted by type then block name.
func (t *Tester) TestBlocks(scores []results.BlockScore) ([]results.BlockTest, error) {
	var keys []blockKey
	seen := make(map[blockKey]bool)
	asd := make(map[blockKey][]float64)
	tdc := make(map[blockKey][]float64)
	for _, s := range scores {
		k := blockKey{s.Type, s.Block}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
		switch s.Group {
		case subject.DiagnosisASD:
			asd[k] = append(asd[k], s.Score)
		case subject.DiagnosisTDC:
			tdc[k] = append(tdc[k], s.Score)
		}
	}

	var out []results.BlockTest
	skipped := 0
	for _, k := range keys {
		a, b := Finite(asd[k]), Finite(tdc[k])
		if len(a) < t.opts.MinGroupSize || len(b) < t.opts.MinGroupSize {
			skipped++
			t.logger.Debug("block %s %s skipped: %d ASD / %d TDC finite scores", k.typ, k.name, len(a), len(b))
			continue
		}
		res, err := TTest(a, b, t.opts.EqualVar)
		if err != nil {
			return nil, err
		}
		out = append(out, results.BlockTest{
			Type:  k.typ,
			Block: k.name,
			ASD:   results.GroupSummary{N: res.NA, Mean: res.MeanA, SD: res.SDA},
			TDC:   results.GroupSummary{N: res.NB, Mean: res.MeanB, SD: res.SDB},
			T:     res.T,
			DF:    res.DF,
			P:     res.P,
		})
	}

	for _, fam := range []network.BlockType{network.Intra, network.Inter} {
		var idx []int
		var ps []float64
		for i, bt := range out {
			if bt.Type == fam {
				idx = append(idx, i)
				ps = append(ps, bt.P)
			}
		}
		adj, err := Adjust(ps, t.opts.Method)
		if err != nil {
			return nil, err
		}
		for j, i := range idx {
			out[i].PAdj = adj[j]
			out[i].Significant = adj[j] < t.opts.Alpha
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type > out[j].Type // intra before inter
		}
		return out[i].Block < out[j].Block
	})

	sum := Summarize(out, t.opts.Alpha)
	t.logger.Info("block tests: %d tested, %d skipped, %d significant before correction, %d after (%s), t>0: %d, t<0: %d",
		sum.Tested, skipped, sum.SigUncorrected, sum.SigCorrected, t.opts.Method, sum.Positive, sum.Negative)
	return out, nil
}

// BlockSummary counts what TestBlocks found
type BlockSummary struct {
	Tested         int
	SigUncorrected int
	SigCorrected   int
	Positive       int
	Negative       int
}

// Summarize counts significant and signed results. Corrected significance
// is taken from the tests themselves.
func Summarize(tests []results.BlockTest, alpha float64) BlockSummary {
	var s BlockSummary
	s.Tested = len(tests)
	for _, bt := range tests {
		if bt.P < alpha {
			s.SigUncorrected++
		}
		if bt.Significant {
			s.SigCorrected++
		}
		switch {
		case bt.T > 0:
			s.Positive++
		case bt.T < 0:
			s.Negative++
		}
	}
	return s
}

// Family returns the tests of one block type, preserving order
func Family(tests []results.BlockTest, typ network.BlockType) []results.BlockTest {
	var out []results.BlockTest
	for _, bt := range tests {
		if bt.Type == typ && !math.IsNaN(bt.P) {
			out = append(out, bt)
		}
	}
	return out
}
