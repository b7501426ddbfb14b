package stattest

import (
	"context"
	"math"
	"sort"
	"strings"

	"abidenet/domain/connectivity"
	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/subject"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// EdgeReport is the outcome of edge-level testing
type EdgeReport struct {
	Tests   []results.EdgeTest // every edge, in edge index order
	TMap    *mat.Dense         // symmetric ROI x ROI t values, zero diagonal
	Degrees []results.ROIDegree
	Summary results.EdgeSummary
	Intra   []results.NetworkCount
	Inter   []results.NetworkCount
}

// Significant returns the significant edges, largest t first
func (r *EdgeReport) Significant() []results.EdgeTest {
	var out []results.EdgeTest
	for _, e := range r.Tests {
		if e.Significant {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].T > out[j].T })
	return out
}

const edgeChunk = 2048

// TestEdges compares groups on every column of edges (subjects x edges),
// omitting non-finite values per edge, and corrects all edges as a single
// family. mapping may be nil, in which case no network enrichment is done.
func (t *Tester) TestEdges(ctx context.Context, edges *mat.Dense, labels []subject.Diagnosis,
	idx connectivity.EdgeIndex, mapping *network.Mapping, workers int) (*EdgeReport, error) {

	n, e := 0, 0
	if edges != nil && !edges.IsEmpty() {
		n, e = edges.Dims()
	}
	if n != len(labels) {
		return nil, errShape("edge matrix rows", n, len(labels))
	}
	if e != idx.Len() {
		return nil, errShape("edge matrix columns", e, idx.Len())
	}
	if workers < 1 {
		workers = 1
	}

	var asdRows, tdcRows []int
	for i, l := range labels {
		switch l {
		case subject.DiagnosisASD:
			asdRows = append(asdRows, i)
		case subject.DiagnosisTDC:
			tdcRows = append(tdcRows, i)
		}
	}

	tvals := make([]float64, e)
	pvals := make([]float64, e)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < e; start += edgeChunk {
		start, end := start, min(start+edgeChunk, e)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := make([]float64, len(asdRows))
			b := make([]float64, len(tdcRows))
			for k := start; k < end; k++ {
				for x, r := range asdRows {
					a[x] = edges.At(r, k)
				}
				for x, r := range tdcRows {
					b[x] = edges.At(r, k)
				}
				res, err := TTest(a, b, t.opts.EqualVar)
				if err != nil {
					tvals[k], pvals[k] = math.NaN(), math.NaN()
					continue
				}
				tvals[k], pvals[k] = res.T, res.P
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	padj, err := Adjust(pvals, t.opts.Method)
	if err != nil {
		return nil, err
	}

	rep := &EdgeReport{Tests: make([]results.EdgeTest, e)}
	if idx.N > 0 {
		rep.TMap = mat.NewDense(idx.N, idx.N, nil)
	}
	nSig := 0
	for k := 0; k < e; k++ {
		i, j := idx.I[k], idx.J[k]
		et := results.EdgeTest{
			ROII:        i + 1,
			ROIJ:        j + 1,
			T:           tvals[k],
			P:           pvals[k],
			PAdj:        padj[k],
			Significant: padj[k] <= t.opts.Alpha,
		}
		if mapping != nil {
			et.NetI, et.NetJ = mapping.Label(i), mapping.Label(j)
			et.Kind = results.EdgeInter
			if et.NetI == et.NetJ {
				et.Kind = results.EdgeIntra
			}
		}
		if et.Significant {
			nSig++
		}
		if !math.IsNaN(tvals[k]) {
			rep.TMap.Set(i, j, tvals[k])
			rep.TMap.Set(j, i, tvals[k])
		}
		rep.Tests[k] = et
	}

	rep.Summary = results.EdgeSummary{
		Alpha:           t.opts.Alpha,
		Method:          string(t.opts.Method),
		EqualVar:        t.opts.EqualVar,
		NASD:            len(asdRows),
		NTDC:            len(tdcRows),
		NROIs:           idx.N,
		EdgesTested:     e,
		EdgesSig:        nSig,
		PropSignificant: float64(nSig) / float64(max(1, e)),
	}
	sig := rep.Significant()
	rep.Degrees = roiDegrees(sig, idx.N, mapping)
	if mapping != nil {
		rep.Intra, rep.Inter = networkCounts(sig)
	}
	t.logger.Info("edge tests: %d edges, %d significant (%s, alpha=%.3g)", e, nSig, t.opts.Method, t.opts.Alpha)
	return rep, nil
}

func roiDegrees(sig []results.EdgeTest, nROIs int, mapping *network.Mapping) []results.ROIDegree {
	deg := make([]results.ROIDegree, nROIs)
	for r := range deg {
		deg[r].ROI = r + 1
		if mapping != nil {
			deg[r].Network = mapping.Label(r)
		}
	}
	for _, e := range sig {
		deg[e.ROII-1].Degree++
		deg[e.ROIJ-1].Degree++
	}
	sort.SliceStable(deg, func(i, j int) bool { return deg[i].Degree > deg[j].Degree })
	return deg
}

// PairName joins two network names in sorted order
func PairName(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + " ↔ " + b
}

func networkCounts(sig []results.EdgeTest) (intra, inter []results.NetworkCount) {
	type acc struct {
		kind  string
		edges int
		rois  map[int]bool
	}
	groups := make(map[string]*acc)
	var names []string
	for _, e := range sig {
		name := e.NetI
		if e.Kind == results.EdgeInter {
			name = PairName(e.NetI, e.NetJ)
		}
		key := e.Kind + "|" + name
		g, ok := groups[key]
		if !ok {
			g = &acc{kind: e.Kind, rois: make(map[int]bool)}
			groups[key] = g
			names = append(names, key)
		}
		g.edges++
		g.rois[e.ROII] = true
		g.rois[e.ROIJ] = true
	}
	for _, key := range names {
		g := groups[key]
		nc := results.NetworkCount{
			Kind:        g.kind,
			Name:        strings.SplitN(key, "|", 2)[1],
			NEdges:      g.edges,
			NUniqueROIs: len(g.rois),
		}
		if g.kind == results.EdgeIntra {
			intra = append(intra, nc)
		} else {
			inter = append(inter, nc)
		}
	}
	byCount := func(s []results.NetworkCount) {
		sort.SliceStable(s, func(i, j int) bool {
			if s[i].NEdges != s[j].NEdges {
				return s[i].NEdges > s[j].NEdges
			}
			return s[i].Name < s[j].Name
		})
	}
	byCount(intra)
	byCount(inter)
	return intra, inter
}
