// Package aggregator reduces each subject's residual connectivity matrix to
// one score per network block, by masked mean or by PCA composite.
package aggregator

import (
	"context"
	"fmt"
	"math"

	"abidenet/domain/connectivity"
	"abidenet/domain/core"
	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/subject"
	"abidenet/internal"
	"abidenet/internal/stattest"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Result is the long-format score table plus the optional PCA report.
// Scores are ordered by block, then by subject in cube order.
type Result struct {
	Scores     []results.BlockScore
	Reports    []results.PCAReport
	EdgesKept  int // edges surviving a global mask, or the mean per subject
	EdgesTotal int
}

// Aggregator scores network blocks
type Aggregator struct {
	opts   Options
	logger *internal.Logger
}

// New creates an aggregator
func New(opts Options, logger *internal.Logger) (*Aggregator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	if opts.Score == ScorePCA && opts.Anchor == AnchorGroup {
		logger.Warn("anchor mode %q orients components with the diagnosis labels; group tests on these scores are circular", opts.Anchor)
	}
	return &Aggregator{opts: opts, logger: logger}, nil
}

// Options returns the policy in force
func (a *Aggregator) Options() Options {
	return a.opts
}

// Score computes every block score. cube and subjects are index-aligned.
func (a *Aggregator) Score(ctx context.Context, cube *connectivity.Cube, subjects []subject.Subject, blocks []network.Block) (*Result, error) {
	if cube == nil {
		return nil, fmt.Errorf("no residual cube")
	}
	if cube.Subjects != len(subjects) {
		return nil, core.NewShapeError("subjects", len(subjects), cube.Subjects)
	}
	idx := connectivity.UpperTriangle(cube.ROIs)
	edges, err := cube.Edges(idx)
	if err != nil {
		return nil, err
	}

	res := &Result{EdgesTotal: idx.Len(), EdgesKept: idx.Len()}
	if a.opts.Masked() && cube.Subjects > 0 && idx.Len() > 0 {
		res.EdgesKept = a.mask(edges)
		a.logger.Info("sparsity %.2f (%s, %s mask): kept %d/%d edges (%.1f%%)",
			a.opts.Sparsity, a.opts.Keep, a.opts.Mask, res.EdgesKept, res.EdgesTotal,
			100*float64(res.EdgesKept)/float64(res.EdgesTotal))
	}

	labels := make([]subject.Diagnosis, len(subjects))
	for i, s := range subjects {
		labels[i] = s.Diagnosis
	}

	perBlock := make([][]results.BlockScore, len(blocks))
	reports := make([]*results.PCAReport, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for b := range blocks {
		b := b
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			x, err := blockMatrix(edges, idx, blocks[b], cube.Subjects)
			if err != nil {
				return err
			}
			rows, rep, err := a.scoreBlock(x, blocks[b], subjects, labels)
			if err != nil {
				return fmt.Errorf("block %s %s: %w", blocks[b].Type, blocks[b].Name, err)
			}
			perBlock[b], reports[b] = rows, rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for b := range blocks {
		res.Scores = append(res.Scores, perBlock[b]...)
		if reports[b] != nil {
			res.Reports = append(res.Reports, *reports[b])
		}
	}
	a.logger.Info("scored %d blocks x %d subjects (%s)", len(blocks), cube.Subjects, a.describe())
	return res, nil
}

func (a *Aggregator) describe() string {
	if a.opts.Score == ScoreMean {
		return "mean"
	}
	return fmt.Sprintf("pca n_pca=%d anchor=%s", a.opts.NPCA, a.opts.Anchor)
}

// mask drops unselected edges in place and returns the kept edge count
// (for subject masks, the rounded mean over subjects)
func (a *Aggregator) mask(edges *mat.Dense) int {
	n, _ := edges.Dims()
	if a.opts.Mask == MaskGlobal {
		keep := GlobalMask(edges, a.opts.Sparsity, a.opts.Keep)
		for s := 0; s < n; s++ {
			applyMask(edges.RawRowView(s), keep)
		}
		return countTrue(keep)
	}
	total := 0
	for s := 0; s < n; s++ {
		row := edges.RawRowView(s)
		keep := SubjectMask(row, a.opts.Sparsity, a.opts.Keep)
		total += countTrue(keep)
		applyMask(row, keep)
	}
	return int(math.Round(float64(total) / float64(n)))
}

// blockMatrix gathers the block's edge columns into a (subjects x block edges) matrix
func blockMatrix(edges *mat.Dense, idx connectivity.EdgeIndex, b network.Block, n int) (*mat.Dense, error) {
	pairs := b.Pairs()
	if n == 0 || len(pairs) == 0 {
		return &mat.Dense{}, nil
	}
	pos := make([]int, len(pairs))
	for k, p := range pairs {
		e, ok := idx.Position(p.I, p.J)
		if !ok {
			return nil, core.NewShapeError("block ROI pair", [2]int{p.I, p.J}, idx.N)
		}
		pos[k] = e
	}
	x := mat.NewDense(n, len(pairs), nil)
	for s := 0; s < n; s++ {
		src := edges.RawRowView(s)
		dst := x.RawRowView(s)
		for k, e := range pos {
			dst[k] = src[e]
		}
	}
	return x, nil
}

func (a *Aggregator) scoreBlock(x *mat.Dense, b network.Block, subjects []subject.Subject, labels []subject.Diagnosis) ([]results.BlockScore, *results.PCAReport, error) {
	n := len(subjects)
	rows := make([]results.BlockScore, n)
	for i, s := range subjects {
		rows[i] = results.BlockScore{SubjectID: s.ID, Group: s.Diagnosis, Type: b.Type, Block: b.Name}
	}

	if a.opts.Score == ScoreMean {
		for i := range rows {
			rows[i].Score = nanMean(rowOf(x, i))
			rows[i].ScoreKind = results.KindMean
		}
		return rows, nil, nil
	}

	ps := naScore(n)
	if !x.IsEmpty() {
		var err error
		if ps, err = scorePCA(x, a.opts.NPCA, a.opts.Anchor, labels); err != nil {
			return nil, nil, err
		}
	}
	for i := range rows {
		rows[i].Score = ps.Final[i]
		rows[i].ScoreKind = ps.Kind
		rows[i].AnchorMode = string(a.opts.Anchor)
	}
	if ps.Kind == results.KindNA {
		a.logger.Debug("block %s %s: no usable edges for PCA", b.Type, b.Name)
	}
	if !a.opts.Report || ps.Kind == results.KindNA {
		return rows, nil, nil
	}

	rep := &results.PCAReport{
		Type:         b.Type,
		Block:        b.Name,
		NEdges:       b.EdgeCount(),
		NEdgesUsed:   ps.NUsed,
		ScoreKind:    ps.Kind,
		VarExplained: ps.VarExp,
		Final:        groupTest(ps.Final, labels),
	}
	for _, pc := range ps.PCz {
		rep.Components = append(rep.Components, groupTest(pc, labels))
	}
	return rows, rep, nil
}

// groupTest is an uncorrected Welch ASD-vs-TDC test for exploratory reporting
func groupTest(v []float64, labels []subject.Diagnosis) results.ComponentTest {
	var asd, tdc []float64
	for i, l := range labels {
		switch l {
		case subject.DiagnosisASD:
			asd = append(asd, v[i])
		case subject.DiagnosisTDC:
			tdc = append(tdc, v[i])
		}
	}
	r, err := stattest.TTest(asd, tdc, false)
	if err != nil {
		return results.ComponentTest{T: math.NaN(), P: math.NaN()}
	}
	return results.ComponentTest{T: r.T, P: r.P}
}

func rowOf(x *mat.Dense, i int) []float64 {
	if x.IsEmpty() {
		return nil
	}
	return x.RawRowView(i)
}

// nanMean is the mean of the finite values, NaN when there are none
func nanMean(v []float64) float64 {
	sum, n := 0.0, 0
	for _, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			sum += x
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
