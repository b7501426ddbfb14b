// Package report renders a run's outputs as a Markdown summary and the same
// document as standalone HTML.
package report

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"abidenet/domain/core"
	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/run"
	"abidenet/domain/subject"
	"abidenet/internal/cohort"
	"abidenet/internal/stattest"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Title heads both renderings
const Title = "ABIDE connectivity summary"

// Input is everything the summary draws on. Nil sections are omitted.
type Input struct {
	Manifest *run.Manifest
	QC       []subject.QCEntry
	Cohort   *cohort.Report
	Tests    []results.BlockTest
	Alpha    float64
	Method   string
	Decimals int
	Edges    *results.EdgeSummary
	Intra    []results.NetworkCount
	Inter    []results.NetworkCount
}

type doc struct {
	bytes.Buffer
}

func (d *doc) line(format string, args ...interface{}) {
	fmt.Fprintf(&d.Buffer, format, args...)
	d.WriteByte('\n')
}

func (d *doc) table(header []string, rows [][]string) {
	d.line("| %s |", strings.Join(header, " | "))
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	d.line("| %s |", strings.Join(sep, " | "))
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		d.line("| %s |", strings.Join(cells, " | "))
	}
	d.line("")
}

func num(v float64, decimals int) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return fmt.Sprintf("%.*f", decimals, v)
}

func pval(p float64) string {
	if math.IsNaN(p) {
		return "NA"
	}
	return stattest.FormatP(p)
}

// Markdown renders the summary document
func Markdown(in Input) []byte {
	var d doc
	d.line("# %s", Title)
	d.line("")
	if m := in.Manifest; m != nil {
		d.line("- Run: `%s`", m.RunID)
		d.line("- Config: `%s`", core.Hash(m.ConfigHash).Short())
		d.line("- Code version: %s", m.CodeVersion)
		if m.CohortHash != "" {
			d.line("- Fingerprint: `%s`", m.Fingerprint().Fingerprint.Short())
		}
		d.line("- Started: %s", m.CreatedAt)
		d.line("")
		writeStages(&d, m)
	}
	if in.QC != nil {
		writeQC(&d, in.QC)
	}
	if in.Cohort != nil {
		writeCohort(&d, in.Cohort)
	}
	if in.Tests != nil {
		writeTests(&d, in)
	}
	if in.Edges != nil {
		writeEdges(&d, in)
	}
	return d.Bytes()
}

func writeStages(d *doc, m *run.Manifest) {
	var rows [][]string
	for _, st := range m.Stages {
		if st.Status == run.StatusPending {
			continue
		}
		rows = append(rows, []string{string(st.Name), string(st.Status), st.Duration().Round(time.Millisecond).String()})
	}
	if len(rows) == 0 {
		return
	}
	d.table([]string{"Stage", "Status", "Duration"}, rows)
}

func writeQC(d *doc, ledger []subject.QCEntry) {
	d.line("## Subject QC")
	d.line("")
	counts := subject.CountByStatus(ledger)
	var rows [][]string
	for _, s := range subject.QCStatuses {
		if n := counts[s]; n > 0 {
			rows = append(rows, []string{string(s), fmt.Sprint(n)})
		}
	}
	rows = append(rows, []string{"**total**", fmt.Sprint(len(ledger))})
	d.table([]string{"status", "subjects"}, rows)
}

func contingencyRows(t cohort.Contingency) [][]string {
	rows := make([][]string, len(t.Rows))
	for r, name := range t.Rows {
		row := []string{name}
		for _, n := range t.Counts[r] {
			row = append(row, fmt.Sprint(n))
		}
		rows[r] = row
	}
	return rows
}

func chiLine(t *cohort.ChiTest) string {
	if t == nil {
		return "χ² not computable."
	}
	return fmt.Sprintf("χ²(%d) = %.3f, p = %s.", t.DF, t.Chi2, pval(t.P))
}

func writeCohort(d *doc, c *cohort.Report) {
	d.line("## Cohort balance")
	d.line("")
	d.line("%d subjects: %d ASD, %d TDC.", c.Total, c.NASD, c.NTDC)
	d.line("")
	if c.Sex != nil {
		d.line("### Sex")
		d.line("")
		d.table(append([]string{"DX"}, c.Sex.Table.Cols...), contingencyRows(c.Sex.Table))
		d.line("%s Male proportion difference %.3f.", chiLine(c.Sex.Test), c.Sex.DeltaMale)
		if c.Sex.Alert {
			d.line("")
			d.line("**Warning:** sex imbalance between groups.")
		}
		d.line("")
	}
	if c.Site != nil {
		d.line("### Site")
		d.line("")
		d.line("%d sites. %s %d cells below %d.", len(c.Site.Table.Cols), chiLine(c.Site.Test), c.Site.SmallCells, c.Site.MinCell)
		d.line("")
	}
	if a := c.Age; a != nil {
		d.line("### Age")
		d.line("")
		d.table([]string{"DX", "n", "mean", "sd", "median", "min", "max"}, [][]string{
			ageRow("ASD", a.ASD), ageRow("TDC", a.TDC),
		})
		if a.Welch != nil {
			d.line("Welch t = %.3f (df %.1f), p = %s. SMD %s, Cliff's delta %s.",
				a.Welch.T, a.Welch.DF, pval(a.Welch.P), num(a.SMD, 3), num(a.Cliff, 3))
			d.line("")
		}
		d.table(append([]string{"DX"}, a.Bins.Cols...), contingencyRows(a.Bins))
		d.line("Age bins: %s", chiLine(a.BinTest))
		d.line("")
	}
}

func ageRow(name string, s cohort.AgeSummary) []string {
	return []string{name, fmt.Sprint(s.N), num(s.Mean, 2), num(s.SD, 2), num(s.Median, 2), num(s.Min, 1), num(s.Max, 1)}
}

func writeTests(d *doc, in Input) {
	d.line("## Network tests")
	d.line("")
	d.line("Welch t-tests %s, %s correction at α = %g within each family.", stattest.GroupOrder, in.Method, in.Alpha)
	d.line("")
	for _, typ := range []network.BlockType{network.Intra, network.Inter} {
		var rows [][]string
		tested := 0
		for _, bt := range in.Tests {
			if bt.Type != typ {
				continue
			}
			if !math.IsNaN(bt.P) {
				tested++
			}
			if !bt.Significant {
				continue
			}
			rows = append(rows, []string{
				bt.Block,
				stattest.FormatMeanSD(bt.TDC, in.Decimals),
				stattest.FormatMeanSD(bt.ASD, in.Decimals),
				num(bt.T, 3),
				pval(bt.PAdj),
			})
		}
		d.line("### %s-network", heading(typ))
		d.line("")
		d.line("%d blocks tested, %d significant after correction.", tested, len(rows))
		d.line("")
		if len(rows) > 0 {
			d.table([]string{"Connection", "TDC", "ASD", "t", "p_FDR"}, rows)
		}
	}
}

func heading(t network.BlockType) string {
	if t == network.Intra {
		return "Intra"
	}
	return "Inter"
}

func writeEdges(d *doc, in Input) {
	e := in.Edges
	d.line("## Edge-level tests")
	d.line("")
	d.line("%d edges over %d ROIs tested (%d ASD, %d TDC); %d significant at α = %g (%s), proportion %.4f.",
		e.EdgesTested, e.NROIs, e.NASD, e.NTDC, e.EdgesSig, e.Alpha, e.Method, e.PropSignificant)
	d.line("")
	for _, set := range []struct {
		name   string
		counts []results.NetworkCount
	}{{"Intra", in.Intra}, {"Inter", in.Inter}} {
		if len(set.counts) == 0 {
			continue
		}
		rows := make([][]string, len(set.counts))
		for i, c := range set.counts {
			rows[i] = []string{c.Name, fmt.Sprint(c.NEdges), fmt.Sprint(c.NUniqueROIs)}
		}
		d.line("### %s-network significant edges", set.name)
		d.line("")
		d.table([]string{"network", "edges", "ROIs"}, rows)
	}
}

// HTML renders Markdown output as a complete page
func HTML(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage | html.HrefTargetBlank,
		Title: Title,
	})
	return markdown.ToHTML(md, p, r)
}
