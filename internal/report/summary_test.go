package report

import (
	"math"
	"strings"
	"testing"

	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/run"
	"abidenet/domain/subject"
	"abidenet/internal/cohort"

	"github.com/stretchr/testify/assert"
)

func sampleInput() Input {
	return Input{
		Manifest: run.NewManifest(map[string]interface{}{"alpha": 0.05}, "test"),
		QC: []subject.QCEntry{
			{SubjectID: "a", Status: subject.StatusKept},
			{SubjectID: "b", Status: subject.StatusKept},
			{SubjectID: "c", Status: subject.StatusMissing},
		},
		Cohort: &cohort.Report{Total: 3, NASD: 2, NTDC: 1},
		Tests: []results.BlockTest{
			{Type: network.Intra, Block: "Default", TDC: results.GroupSummary{N: 5, Mean: -0.1, SD: 0.5}, ASD: results.GroupSummary{N: 5, Mean: 0.4, SD: 0.5}, T: 3.1, P: 0.004, PAdj: 0.008, Significant: true},
			{Type: network.Intra, Block: "Visual", T: 0.2, P: 0.8, PAdj: 0.8},
			{Type: network.Inter, Block: "Default-Visual", T: math.NaN(), P: math.NaN(), PAdj: math.NaN()},
		},
		Alpha:    0.05,
		Method:   "fdr_bh",
		Decimals: 2,
		Edges:    &results.EdgeSummary{Alpha: 0.05, Method: "fdr_bh", NASD: 5, NTDC: 5, NROIs: 4, EdgesTested: 6, EdgesSig: 1, PropSignificant: 1.0 / 6},
		Intra:    []results.NetworkCount{{Kind: "intra", Name: "Default", NEdges: 1, NUniqueROIs: 2}},
	}
}

func TestMarkdownSections(t *testing.T) {
	md := string(Markdown(sampleInput()))

	assert.True(t, strings.HasPrefix(md, "# "+Title))
	assert.Contains(t, md, "| kept | 2 |")
	assert.Contains(t, md, "| missing_file | 1 |")
	assert.Contains(t, md, "3 subjects: 2 ASD, 1 TDC.")
	assert.Contains(t, md, "2 blocks tested, 1 significant after correction.")
	assert.Contains(t, md, "| Default | -0.10 ± 0.50 | 0.40 ± 0.50 | 3.100 | 0.008 |")
	assert.Contains(t, md, "0 blocks tested, 0 significant after correction.")
	assert.NotContains(t, md, "| Visual |")
	assert.Contains(t, md, "6 edges over 4 ROIs tested")
	assert.Contains(t, md, "### Intra-network significant edges")
	assert.NotContains(t, md, "### Inter-network significant edges")
}

func TestMarkdownOmitsNilSections(t *testing.T) {
	md := string(Markdown(Input{}))
	assert.Contains(t, md, Title)
	assert.NotContains(t, md, "## Subject QC")
	assert.NotContains(t, md, "## Network tests")
}

func TestTableCellsEscapePipes(t *testing.T) {
	var d doc
	d.table([]string{"a"}, [][]string{{"x|y"}})
	assert.Contains(t, d.String(), `x\|y`)
}

func TestHTMLRendersTables(t *testing.T) {
	out := string(HTML(Markdown(sampleInput())))
	assert.Contains(t, out, "<title>"+Title+"</title>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<h2")
}
