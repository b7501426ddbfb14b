package app

import (
	"context"
	"errors"
	"fmt"

	"abidenet/adapters/artifacts"
	"abidenet/adapters/excel"
	"abidenet/domain/connectivity"
	"abidenet/domain/core"
	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/run"
	"abidenet/domain/subject"
	"abidenet/internal/aggregator"
	"abidenet/internal/assembler"
	"abidenet/internal/cohort"
	"abidenet/internal/regression"
	"abidenet/internal/report"
	"abidenet/internal/stattest"

	"gonum.org/v1/gonum/mat"
)

func (p *Pipeline) connectivity(ctx context.Context, m *run.Manifest) ([]string, error) {
	pheno, err := p.deps.Phenotype.LoadPhenotype(ctx)
	if err != nil {
		return nil, err
	}
	cohort.Analyze(pheno, cohort.DefaultOptions(), p.log)

	c := p.cfg.Connectivity
	asm := assembler.New(p.deps.Reader, assembler.Options{
		MaxBadROIsRatio: c.MaxBadROIsRatio,
		DegenerateEps:   c.DegenerateEps,
		FisherEps:       c.FisherEps,
		Workers:         c.Workers,
	}, p.log)
	res, err := asm.Assemble(ctx, pheno.Subjects)
	if err != nil {
		return nil, err
	}
	p.deps.Metrics.ObserveQC(res.Ledger)
	if err := p.store.SaveQC(artifacts.ConnQC, res.Ledger); err != nil {
		return nil, err
	}
	outputs := []string{artifacts.ConnQC}
	if len(res.Kept) == 0 {
		return outputs, fmt.Errorf("%w: no subject passed connectivity QC", core.ErrInsufficientData)
	}
	if err := res.Check(); err != nil {
		return outputs, err
	}
	m.CohortHash = core.ComputeCohortHash(res.SubjectIDs())

	if err := p.store.SaveCube(artifacts.ConnCube, res.Cube); err != nil {
		return outputs, err
	}
	if err := p.store.SaveSubjects(artifacts.ConnSubjects, artifacts.ConnLabels, res.Kept); err != nil {
		return outputs, err
	}
	if err := p.store.SaveROIIDs(artifacts.ConnROIIDs, res.NROIs); err != nil {
		return outputs, err
	}
	p.log.Info("connectivity cube %v written to %s", res.Cube.Shape(), p.store.Path(artifacts.ConnCube))
	return append(outputs, artifacts.ConnCube, artifacts.ConnSubjects, artifacts.ConnLabels, artifacts.ConnROIIDs), nil
}

// checkCohort warns when the connectivity subjects on disk are not the ones
// the run recorded
func (p *Pipeline) checkCohort(m *run.Manifest, subs []subject.Subject) {
	ids := make([]string, len(subs))
	for i, s := range subs {
		ids[i] = s.ID.String()
	}
	if h := core.ComputeCohortHash(ids); m.CohortHash != "" && h != m.CohortHash {
		p.log.Warn("connectivity subjects changed since run %s recorded its cohort (%s -> %s)",
			m.RunID, core.Hash(m.CohortHash).Short(), core.Hash(h).Short())
	}
}

func (p *Pipeline) covariates() []regression.Covariate {
	out := make([]regression.Covariate, len(p.cfg.Regression.Covariates))
	for i, c := range p.cfg.Regression.Covariates {
		out[i] = regression.Covariate{Name: c.Name, Categorical: c.Categorical}
	}
	return out
}

func (p *Pipeline) regress(ctx context.Context, m *run.Manifest) ([]string, error) {
	cube, err := p.store.LoadCube(artifacts.ConnCube)
	if err != nil {
		return nil, err
	}
	subs, err := p.store.LoadSubjects(artifacts.ConnSubjects, artifacts.ConnLabels)
	if err != nil {
		return nil, err
	}
	p.checkCohort(m, subs)
	pheno, err := p.deps.Phenotype.LoadPhenotype(ctx)
	if err != nil {
		return nil, err
	}

	res, err := regression.New(p.covariates(), p.log).Regress(cube, subs, pheno.Covariates)
	if err != nil {
		return nil, err
	}
	p.deps.Metrics.ObserveRegression(res.NValid(), len(subs)-res.NValid())
	p.warnSmallGroups("regression", res.Subjects)

	ledger := make([]subject.QCEntry, 0, len(subs))
	dropped := make(map[core.SubjectID]subject.QCEntry, len(res.Dropped))
	for _, d := range res.Dropped {
		dropped[d.SubjectID] = d
	}
	for _, s := range subs {
		if d, ok := dropped[s.ID]; ok {
			ledger = append(ledger, d)
			continue
		}
		ledger = append(ledger, subject.QCEntry{SubjectID: s.ID, Status: subject.StatusKept})
	}

	steps := []struct {
		rel  string
		save func() error
	}{
		{artifacts.ResidCube, func() error { return p.store.SaveCube(artifacts.ResidCube, res.Cube) }},
		{artifacts.ResidEdges, func() error { return p.store.SaveEdges(artifacts.ResidEdges, res.Residuals) }},
		{artifacts.ResidSubjects, func() error {
			return p.store.SaveSubjects(artifacts.ResidSubjects, artifacts.ResidLabels, res.Subjects)
		}},
		{artifacts.ResidAll, func() error { return p.store.SaveSubjects(artifacts.ResidAll, artifacts.ResidAllLabels, subs) }},
		{artifacts.ResidEdgeIndex, func() error { return p.store.SaveEdgeIndex(artifacts.ResidEdgeIndex, res.Index) }},
		{artifacts.ResidDesign, func() error { return p.store.WriteJSON(artifacts.ResidDesign, res.Design.Columns) }},
		{artifacts.ResidQC, func() error { return p.store.SaveQC(artifacts.ResidQC, ledger) }},
	}
	var outputs []string
	for _, st := range steps {
		if err := st.save(); err != nil {
			return outputs, err
		}
		outputs = append(outputs, st.rel)
	}
	p.log.Info("residual cube %v written, %d of %d subjects valid", res.Cube.Shape(), res.NValid(), len(subs))
	return outputs, nil
}

func (p *Pipeline) aggregatorOptions() (aggregator.Options, error) {
	n := p.cfg.Network
	opts := aggregator.Options{
		Sparsity: n.Sparsity,
		NPCA:     n.NPCA,
		Report:   n.PCAReport,
		Workers:  p.cfg.Connectivity.Workers,
	}
	var err error
	if opts.Keep, err = aggregator.ParseKeepMode(n.SparsityKeep); err != nil {
		return opts, err
	}
	if opts.Mask, err = aggregator.ParseMaskMode(n.MaskMode); err != nil {
		return opts, err
	}
	if opts.Score, err = aggregator.ParseScoreMode(n.ScoreMode); err != nil {
		return opts, err
	}
	if opts.Anchor, err = aggregator.ParseAnchorMode(n.AnchorMode); err != nil {
		return opts, err
	}
	return opts, nil
}

func (p *Pipeline) scores(ctx context.Context, _ *run.Manifest) ([]string, error) {
	cube, err := p.store.LoadCube(artifacts.ResidCube)
	if err != nil {
		return nil, err
	}
	subs, err := p.store.LoadSubjects(artifacts.ResidSubjects, artifacts.ResidLabels)
	if err != nil {
		return nil, err
	}
	mapping, err := p.deps.Mapping.LoadMapping(ctx, cube.ROIs)
	if err != nil {
		return nil, err
	}
	blocks := network.BuildBlocks(mapping)
	intra, inter := network.Split(blocks)
	p.log.Info("%d networks -> %d intra and %d inter blocks", len(mapping.Networks()), len(intra), len(inter))

	opts, err := p.aggregatorOptions()
	if err != nil {
		return nil, err
	}
	agg, err := aggregator.New(opts, p.log)
	if err != nil {
		return nil, err
	}
	res, err := agg.Score(ctx, cube, subs, blocks)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, sc := range res.Scores {
		key := string(sc.Type) + "/" + sc.Block
		if !seen[key] {
			seen[key] = true
			p.deps.Metrics.ObserveBlock(string(sc.Type), sc.ScoreKind)
		}
	}

	if err := p.store.SaveScores(artifacts.Scores, res.Scores); err != nil {
		return nil, err
	}
	outputs := []string{artifacts.Scores}
	if opts.Score == aggregator.ScorePCA && opts.Report {
		if err := p.store.SavePCAReport(artifacts.PCAReport, res.Reports); err != nil {
			return outputs, err
		}
		outputs = append(outputs, artifacts.PCAReport)
	}
	p.log.Info("%d block scores written to %s", len(res.Scores), p.store.Path(artifacts.Scores))
	return outputs, nil
}

func (p *Pipeline) tester() (*stattest.Tester, error) {
	s := p.cfg.Stats
	method, err := stattest.ParseMethod(s.FDRMethod)
	if err != nil {
		return nil, err
	}
	return stattest.NewTester(stattest.Options{
		Alpha:        s.Alpha,
		Method:       method,
		EqualVar:     s.UseEqualVar,
		MinGroupSize: s.MinGroupSize,
	}, p.log), nil
}

func (p *Pipeline) ttest(_ context.Context, _ *run.Manifest) ([]string, error) {
	scores, err := p.store.LoadScores(artifacts.Scores)
	if err != nil {
		return nil, err
	}
	t, err := p.tester()
	if err != nil {
		return nil, err
	}
	tests, err := t.TestBlocks(scores)
	if err != nil {
		return nil, err
	}

	for _, typ := range []network.BlockType{network.Intra, network.Inter} {
		p.deps.Metrics.SetSignificant(string(typ), stattest.Summarize(stattest.Family(tests, typ), p.cfg.Stats.Alpha).SigCorrected)
	}

	rows := append([][]string{stattest.TableHeader}, stattest.TableRows(tests, p.cfg.Stats.Decimals)...)
	if err := p.store.WriteCSV(artifacts.TestsTable, rows); err != nil {
		return nil, err
	}
	if err := p.store.SaveBlockTests(artifacts.BlockTests, tests); err != nil {
		return []string{artifacts.TestsTable}, err
	}
	return []string{artifacts.TestsTable, artifacts.BlockTests}, nil
}

func (p *Pipeline) edges(ctx context.Context, _ *run.Manifest) ([]string, error) {
	edges, err := p.store.LoadEdges(artifacts.ResidEdges)
	if err != nil {
		return nil, err
	}
	subs, err := p.store.LoadSubjects(artifacts.ResidAll, artifacts.ResidAllLabels)
	if err != nil {
		return nil, err
	}
	idx, err := p.store.LoadEdgeIndex(artifacts.ResidEdgeIndex)
	if err != nil {
		return nil, err
	}
	mapping, err := p.deps.Mapping.LoadMapping(ctx, idx.N)
	if err != nil {
		return nil, err
	}
	t, err := p.tester()
	if err != nil {
		return nil, err
	}
	labels := make([]subject.Diagnosis, len(subs))
	for i, s := range subs {
		labels[i] = s.Diagnosis
	}
	rep, err := t.TestEdges(ctx, edges, labels, idx, mapping, p.cfg.Connectivity.Workers)
	if err != nil {
		return nil, err
	}
	p.deps.Metrics.SetSignificant(string(results.FamilyEdges), rep.Summary.EdgesSig)

	steps := []struct {
		rel  string
		save func() error
	}{
		{artifacts.EdgeTests, func() error { return p.store.SaveEdgeTests(artifacts.EdgeTests, rep.Tests) }},
		{artifacts.SigEdges, func() error { return p.store.SaveEdgeTests(artifacts.SigEdges, rep.Significant()) }},
		{artifacts.TMap, func() error { return p.saveTMap(rep.TMap, idx) }},
		{artifacts.Degrees, func() error { return p.store.SaveDegrees(artifacts.Degrees, rep.Degrees) }},
		{artifacts.NetCounts, func() error { return p.store.SaveNetworkCounts(artifacts.NetCounts, rep.Intra, rep.Inter) }},
		{artifacts.EdgeSummary, func() error { return p.store.WriteJSON(artifacts.EdgeSummary, rep.Summary) }},
	}
	var outputs []string
	for _, st := range steps {
		if err := st.save(); err != nil {
			return outputs, err
		}
		outputs = append(outputs, st.rel)
	}
	return outputs, nil
}

func (p *Pipeline) saveTMap(tmap *mat.Dense, idx connectivity.EdgeIndex) error {
	data := make([]float32, 0, idx.N*idx.N)
	for i := 0; i < idx.N; i++ {
		for _, v := range tmap.RawRowView(i) {
			data = append(data, float32(v))
		}
	}
	return p.store.WriteArray(artifacts.TMap, []int{idx.N, idx.N}, data)
}

// optional treats a missing upstream artifact as an empty section
func (p *Pipeline) optional(err error, what string) error {
	if err != nil && errors.Is(err, core.ErrArtifactNotFound) {
		p.log.Warn("%s not found; section left out of the report", what)
		return nil
	}
	return err
}

func (p *Pipeline) report(ctx context.Context, m *run.Manifest) ([]string, error) {
	ledger, err := p.store.LoadQC(artifacts.ConnQC)
	if err != nil {
		return nil, err
	}
	if p.store.Exists(artifacts.ResidQC) {
		regLedger, err := p.store.LoadQC(artifacts.ResidQC)
		if err != nil {
			return nil, err
		}
		ledger = mergeLedgers(ledger, regLedger)
	}
	pheno, err := p.deps.Phenotype.LoadPhenotype(ctx)
	if err != nil {
		return nil, err
	}

	in := report.Input{
		Manifest: m,
		QC:       ledger,
		Cohort:   cohort.Analyze(pheno, cohort.DefaultOptions(), p.log),
		Alpha:    p.cfg.Stats.Alpha,
		Method:   p.cfg.Stats.FDRMethod,
		Decimals: p.cfg.Stats.Decimals,
	}
	tests, err := p.store.LoadBlockTests(artifacts.BlockTests)
	if err := p.optional(err, "block tests"); err != nil {
		return nil, err
	}
	in.Tests = tests

	var sig []results.EdgeTest
	if p.store.Exists(artifacts.EdgeSummary) {
		var summary results.EdgeSummary
		if err := p.store.ReadJSON(artifacts.EdgeSummary, &summary); err != nil {
			return nil, err
		}
		in.Edges = &summary
		if in.Intra, in.Inter, err = p.store.LoadNetworkCounts(artifacts.NetCounts); err != nil {
			return nil, err
		}
		if sig, err = p.store.LoadEdgeTests(artifacts.SigEdges); err != nil {
			return nil, err
		}
	} else {
		p.log.Warn("edge summary not found; section left out of the report")
	}

	md := report.Markdown(in)
	if err := p.store.WriteFile(artifacts.SummaryMD, md); err != nil {
		return nil, err
	}
	if err := p.store.WriteFile(artifacts.SummaryHTML, report.HTML(md)); err != nil {
		return []string{artifacts.SummaryMD}, err
	}
	outputs := []string{artifacts.SummaryMD, artifacts.SummaryHTML}

	if tests != nil || sig != nil {
		if err := p.writeWorkbook(tests, sig); err != nil {
			return outputs, err
		}
		outputs = append(outputs, artifacts.Workbook)
	}

	if p.deps.Results != nil {
		if err := p.persist(ctx, m, ledger, tests, sig); err != nil {
			return outputs, err
		}
		p.log.Info("results stored for run %s", m.RunID)
	}
	return outputs, nil
}

func (p *Pipeline) writeWorkbook(tests []results.BlockTest, sig []results.EdgeTest) error {
	sheet := func(name string, typ network.BlockType) excel.Sheet {
		rows := append([][]string{stattest.TableHeader}, stattest.TableRows(stattest.Family(tests, typ), p.cfg.Stats.Decimals)...)
		return excel.Sheet{Name: name, Rows: rows}
	}
	edgeRows := [][]string{{"roi_i", "roi_j", "net_i", "net_j", "kind", "t", "p_unc", "p_fdr"}}
	for _, e := range sig {
		edgeRows = append(edgeRows, []string{
			fmt.Sprint(e.ROII), fmt.Sprint(e.ROIJ), e.NetI, e.NetJ, e.Kind,
			fmt.Sprint(e.T), fmt.Sprint(e.P), fmt.Sprint(e.PAdj),
		})
	}
	path, err := p.store.Prepare(artifacts.Workbook)
	if err != nil {
		return err
	}
	return excel.WriteWorkbook(path, []excel.Sheet{
		sheet("intra", network.Intra),
		sheet("inter", network.Inter),
		{Name: "edges", Rows: edgeRows},
	})
}

func (p *Pipeline) persist(ctx context.Context, m *run.Manifest, ledger []subject.QCEntry, tests []results.BlockTest, sig []results.EdgeTest) error {
	w := p.deps.Results
	if err := w.SaveRun(ctx, m); err != nil {
		return err
	}
	if err := w.SaveQC(ctx, m.RunID, ledger); err != nil {
		return err
	}
	if err := w.SaveBlockTests(ctx, m.RunID, tests); err != nil {
		return err
	}
	return w.SaveEdgeTests(ctx, m.RunID, sig)
}

// mergeLedgers overlays regression drops onto the connectivity ledger
func mergeLedgers(conn, reg []subject.QCEntry) []subject.QCEntry {
	drops := make(map[core.SubjectID]subject.QCEntry)
	for _, e := range reg {
		if !e.Kept() {
			drops[e.SubjectID] = e
		}
	}
	out := make([]subject.QCEntry, len(conn))
	for i, e := range conn {
		if d, ok := drops[e.SubjectID]; ok && e.Kept() {
			d.NBad, d.NImputed = e.NBad, e.NImputed
			e = d
		}
		out[i] = e
	}
	return out
}
