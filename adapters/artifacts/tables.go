package artifacts

import (
	"fmt"
	"path"
	"strconv"

	"abidenet/domain/core"
	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/subject"
)

// Statistics and edge artifact paths
var (
	Scores      = path.Join(DirStatistics, "network_scores.csv")
	PCAReport   = path.Join(DirStatistics, "network_pca_report.csv")
	TestsTable  = path.Join(DirStatistics, "network_tests.csv")
	BlockTests  = path.Join(DirStatistics, "block_tests.csv")
	EdgeTests   = path.Join(DirEdges, "edge_tests.csv")
	SigEdges    = path.Join(DirEdges, "significant_edges.csv")
	TMap        = path.Join(DirEdges, "t_map.f32")
	Degrees     = path.Join(DirEdges, "roi_degree.csv")
	NetCounts   = path.Join(DirEdges, "network_counts.csv")
	EdgeSummary = path.Join(DirEdges, "edge_summary.json")
	Workbook    = path.Join(DirReport, "results.xlsx")
	SummaryMD   = path.Join(DirReport, "summary.md")
	SummaryHTML = path.Join(DirReport, "summary.html")
)

var scoresHeader = []string{"subject", "group", "type", "block", "score", "score_kind", "anchor_mode"}

// SaveScores writes the long-format block score table
func (s *Store) SaveScores(rel string, scores []results.BlockScore) error {
	rows := [][]string{scoresHeader}
	for _, sc := range scores {
		rows = append(rows, []string{
			sc.SubjectID.String(), sc.Group.String(), string(sc.Type), sc.Block,
			formatFloat(sc.Score), sc.ScoreKind, sc.AnchorMode,
		})
	}
	return s.WriteCSV(rel, rows)
}

// LoadScores reads a score table back
func (s *Store) LoadScores(rel string) ([]results.BlockScore, error) {
	header, rows, err := s.ReadCSV(rel)
	if err != nil {
		return nil, err
	}
	col := columns(header)
	for _, c := range scoresHeader[:5] {
		if _, ok := col[c]; !ok {
			return nil, core.NewMissingColumnError(rel, c)
		}
	}
	out := make([]results.BlockScore, 0, len(rows))
	for i, r := range rows {
		dx, err := subject.ParseDiagnosis(cell(r, col, "group"))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", rel, i+2, err)
		}
		typ, err := network.ParseBlockType(cell(r, col, "type"))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", rel, i+2, err)
		}
		out = append(out, results.BlockScore{
			SubjectID:  core.SubjectID(cell(r, col, "subject")),
			Group:      dx,
			Type:       typ,
			Block:      cell(r, col, "block"),
			Score:      parseFloat(cell(r, col, "score")),
			ScoreKind:  cell(r, col, "score_kind"),
			AnchorMode: cell(r, col, "anchor_mode"),
		})
	}
	return out, nil
}

// SavePCAReport writes one row per block; component columns run to the
// largest component count present
func (s *Store) SavePCAReport(rel string, reports []results.PCAReport) error {
	k := 0
	for _, r := range reports {
		k = max(k, len(r.VarExplained))
	}
	header := []string{"type", "block", "n_edges", "n_edges_used", "score_kind"}
	for j := 1; j <= k; j++ {
		header = append(header, fmt.Sprintf("var_PC%d", j))
	}
	for j := 1; j <= k; j++ {
		header = append(header, fmt.Sprintf("t_PC%d", j), fmt.Sprintf("p_PC%d", j))
	}
	header = append(header, "t_Final", "p_Final")

	rows := [][]string{header}
	for _, r := range reports {
		row := []string{string(r.Type), r.Block, strconv.Itoa(r.NEdges), strconv.Itoa(r.NEdgesUsed), r.ScoreKind}
		for j := 0; j < k; j++ {
			v := ""
			if j < len(r.VarExplained) {
				v = formatFloat(r.VarExplained[j])
			}
			row = append(row, v)
		}
		for j := 0; j < k; j++ {
			t, p := "", ""
			if j < len(r.Components) {
				t, p = formatFloat(r.Components[j].T), formatFloat(r.Components[j].P)
			}
			row = append(row, t, p)
		}
		row = append(row, formatFloat(r.Final.T), formatFloat(r.Final.P))
		rows = append(rows, row)
	}
	return s.WriteCSV(rel, rows)
}

var blockTestsHeader = []string{"type", "block", "n_tdc", "mean_tdc", "sd_tdc", "n_asd", "mean_asd", "sd_asd", "t", "df", "p", "p_fdr", "significant"}

// SaveBlockTests writes the unformatted block test table
func (s *Store) SaveBlockTests(rel string, tests []results.BlockTest) error {
	rows := [][]string{blockTestsHeader}
	for _, bt := range tests {
		rows = append(rows, []string{
			string(bt.Type), bt.Block,
			strconv.Itoa(bt.TDC.N), formatFloat(bt.TDC.Mean), formatFloat(bt.TDC.SD),
			strconv.Itoa(bt.ASD.N), formatFloat(bt.ASD.Mean), formatFloat(bt.ASD.SD),
			formatFloat(bt.T), formatFloat(bt.DF), formatFloat(bt.P), formatFloat(bt.PAdj),
			strconv.FormatBool(bt.Significant),
		})
	}
	return s.WriteCSV(rel, rows)
}

// LoadBlockTests reads a table written by SaveBlockTests
func (s *Store) LoadBlockTests(rel string) ([]results.BlockTest, error) {
	header, rows, err := s.ReadCSV(rel)
	if err != nil {
		return nil, err
	}
	col := columns(header)
	for _, c := range blockTestsHeader {
		if _, ok := col[c]; !ok {
			return nil, core.NewMissingColumnError(rel, c)
		}
	}
	out := make([]results.BlockTest, 0, len(rows))
	for i, r := range rows {
		typ, err := network.ParseBlockType(cell(r, col, "type"))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", rel, i+2, err)
		}
		bt := results.BlockTest{
			Type:  typ,
			Block: cell(r, col, "block"),
			TDC:   results.GroupSummary{Mean: parseFloat(cell(r, col, "mean_tdc")), SD: parseFloat(cell(r, col, "sd_tdc"))},
			ASD:   results.GroupSummary{Mean: parseFloat(cell(r, col, "mean_asd")), SD: parseFloat(cell(r, col, "sd_asd"))},
			T:     parseFloat(cell(r, col, "t")),
			DF:    parseFloat(cell(r, col, "df")),
			P:     parseFloat(cell(r, col, "p")),
			PAdj:  parseFloat(cell(r, col, "p_fdr")),
		}
		bt.TDC.N, _ = strconv.Atoi(cell(r, col, "n_tdc"))
		bt.ASD.N, _ = strconv.Atoi(cell(r, col, "n_asd"))
		bt.Significant, _ = strconv.ParseBool(cell(r, col, "significant"))
		out = append(out, bt)
	}
	return out, nil
}

var edgeTestsHeader = []string{"roi_i", "roi_j", "t", "p_unc", "p_fdr", "significant", "net_i", "net_j", "kind"}

// SaveEdgeTests writes edge results with 1-based ROI numbers
func (s *Store) SaveEdgeTests(rel string, tests []results.EdgeTest) error {
	rows := make([][]string, 0, len(tests)+1)
	rows = append(rows, edgeTestsHeader)
	for _, e := range tests {
		rows = append(rows, []string{
			strconv.Itoa(e.ROII), strconv.Itoa(e.ROIJ),
			formatFloat(e.T), formatFloat(e.P), formatFloat(e.PAdj),
			strconv.FormatBool(e.Significant), e.NetI, e.NetJ, e.Kind,
		})
	}
	return s.WriteCSV(rel, rows)
}

// LoadEdgeTests reads a table written by SaveEdgeTests
func (s *Store) LoadEdgeTests(rel string) ([]results.EdgeTest, error) {
	header, rows, err := s.ReadCSV(rel)
	if err != nil {
		return nil, err
	}
	col := columns(header)
	for _, c := range edgeTestsHeader[:6] {
		if _, ok := col[c]; !ok {
			return nil, core.NewMissingColumnError(rel, c)
		}
	}
	out := make([]results.EdgeTest, 0, len(rows))
	for _, r := range rows {
		e := results.EdgeTest{
			T:    parseFloat(cell(r, col, "t")),
			P:    parseFloat(cell(r, col, "p_unc")),
			PAdj: parseFloat(cell(r, col, "p_fdr")),
			NetI: cell(r, col, "net_i"),
			NetJ: cell(r, col, "net_j"),
			Kind: cell(r, col, "kind"),
		}
		e.ROII, _ = strconv.Atoi(cell(r, col, "roi_i"))
		e.ROIJ, _ = strconv.Atoi(cell(r, col, "roi_j"))
		e.Significant, _ = strconv.ParseBool(cell(r, col, "significant"))
		out = append(out, e)
	}
	return out, nil
}

// SaveDegrees writes per-ROI significant-edge counts
func (s *Store) SaveDegrees(rel string, degrees []results.ROIDegree) error {
	rows := [][]string{{"roi", "network", "deg_sig"}}
	for _, d := range degrees {
		rows = append(rows, []string{strconv.Itoa(d.ROI), d.Network, strconv.Itoa(d.Degree)})
	}
	return s.WriteCSV(rel, rows)
}

// SaveNetworkCounts writes intra then inter significant-edge counts
func (s *Store) SaveNetworkCounts(rel string, intra, inter []results.NetworkCount) error {
	rows := [][]string{{"kind", "name", "n_edges", "n_unique_rois"}}
	for _, set := range [][]results.NetworkCount{intra, inter} {
		for _, c := range set {
			rows = append(rows, []string{c.Kind, c.Name, strconv.Itoa(c.NEdges), strconv.Itoa(c.NUniqueROIs)})
		}
	}
	return s.WriteCSV(rel, rows)
}

// LoadNetworkCounts reads a table written by SaveNetworkCounts
func (s *Store) LoadNetworkCounts(rel string) (intra, inter []results.NetworkCount, err error) {
	header, rows, err := s.ReadCSV(rel)
	if err != nil {
		return nil, nil, err
	}
	col := columns(header)
	for _, r := range rows {
		c := results.NetworkCount{Kind: cell(r, col, "kind"), Name: cell(r, col, "name")}
		c.NEdges, _ = strconv.Atoi(cell(r, col, "n_edges"))
		c.NUniqueROIs, _ = strconv.Atoi(cell(r, col, "n_unique_rois"))
		switch c.Kind {
		case results.EdgeIntra:
			intra = append(intra, c)
		case results.EdgeInter:
			inter = append(inter, c)
		}
	}
	return intra, inter, nil
}
