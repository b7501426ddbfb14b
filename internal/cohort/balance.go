// Package cohort summarises how balanced the diagnostic groups are on sex,
// site and age before any connectivity is computed.
package cohort

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"abidenet/domain/subject"
	"abidenet/internal"
	"abidenet/internal/stattest"
	"abidenet/ports"

	"github.com/montanaflynn/stats"
)

// Phenotype columns read by the balance report
const (
	ColSex  = "SEX"
	ColSite = "SITE_ID"
	ColAge  = "AGE_AT_SCAN"
)

// AgeBins are right-closed: (0,12], (12,18], (18,30], (30,50], (50,120]
var (
	ageEdges  = []float64{0, 12, 18, 30, 50, 120}
	AgeLabels = []string{"≤12", "13–18", "19–30", "31–50", "≥51"}
)

// Options holds the alert thresholds
type Options struct {
	MinCell       int
	SexDeltaAlert float64
}

// DefaultOptions flags site cells under 10 and a male-proportion gap of 0.15
func DefaultOptions() Options {
	return Options{MinCell: 10, SexDeltaAlert: 0.15}
}

// Report is the full balance summary
type Report struct {
	Total int          `json:"total"`
	NASD  int          `json:"n_asd"`
	NTDC  int          `json:"n_tdc"`
	Sex   *SexBalance  `json:"sex,omitempty"`
	Site  *SiteBalance `json:"site,omitempty"`
	Age   *AgeBalance  `json:"age,omitempty"`
}

type SexBalance struct {
	Table     Contingency `json:"table"`
	DeltaMale float64     `json:"delta_male"`
	Alert     bool        `json:"alert"`
	Test      *ChiTest    `json:"chi2,omitempty"`
}

type SiteBalance struct {
	Table      Contingency `json:"table"`
	SmallCells int         `json:"small_cells"`
	MinCell    int         `json:"min_cell"`
	Test       *ChiTest    `json:"chi2,omitempty"`
}

// AgeSummary describes one group's ages
type AgeSummary struct {
	N      int     `json:"count"`
	Mean   float64 `json:"mean"`
	SD     float64 `json:"std"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type AgeBalance struct {
	ASD     AgeSummary  `json:"asd"`
	TDC     AgeSummary  `json:"tdc"`
	Welch   *AgeTest    `json:"welch,omitempty"`
	SMD     float64     `json:"smd"`
	Cliff   float64     `json:"cliffs_delta"`
	Bins    Contingency `json:"bins"`
	BinTest *ChiTest    `json:"chi2,omitempty"`
}

// AgeTest is the ASD-vs-TDC Welch test on age
type AgeTest struct {
	T  float64 `json:"t"`
	DF float64 `json:"df"`
	P  float64 `json:"p"`
}

// Analyze builds the balance report. Columns absent from every subject are
// left out of the report.
func Analyze(p *ports.Phenotype, opts Options, logger *internal.Logger) *Report {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	rep := &Report{Total: len(p.Subjects)}
	dx := make([]string, len(p.Subjects))
	for i, s := range p.Subjects {
		dx[i] = s.Diagnosis.String()
		switch s.Diagnosis {
		case subject.DiagnosisASD:
			rep.NASD++
		case subject.DiagnosisTDC:
			rep.NTDC++
		}
	}
	logger.Info("cohort: %d subjects (%d ASD, %d TDC)", rep.Total, rep.NASD, rep.NTDC)

	if sex, ok := column(p, ColSex); ok {
		for i, v := range sex {
			sex[i] = normalizeSex(v)
		}
		rep.Sex = sexBalance(crosstab(dx, sex, nil), opts.SexDeltaAlert)
		if rep.Sex.Alert {
			logger.Warn("male proportion differs by %.3f between ASD and TDC (threshold %.2f)", rep.Sex.DeltaMale, opts.SexDeltaAlert)
		}
	}
	if site, ok := column(p, ColSite); ok {
		t := crosstab(dx, site, nil)
		rep.Site = &SiteBalance{Table: t, SmallCells: t.CellsBelow(opts.MinCell), MinCell: opts.MinCell, Test: t.ChiSquare()}
		if rep.Site.SmallCells > 0 {
			logger.Warn("%d SITE x DX cells hold fewer than %d subjects", rep.Site.SmallCells, opts.MinCell)
		}
	}
	if age, ok := column(p, ColAge); ok {
		rep.Age = ageBalance(dx, age)
	}
	return rep
}

func column(p *ports.Phenotype, name string) ([]string, bool) {
	vals := p.Column(name)
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return vals, true
		}
	}
	return nil, false
}

func normalizeSex(v string) string {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "1", "1.0", "M":
		return "M"
	case "2", "2.0", "F":
		return "F"
	}
	return strings.TrimSpace(v)
}

func sexBalance(t Contingency, threshold float64) *SexBalance {
	male := -1
	for c, name := range t.Cols {
		if name == "M" {
			male = c
		}
	}
	prop := func(r int) float64 {
		n := t.RowTotal(r)
		if male < 0 || n == 0 {
			return 0
		}
		return float64(t.Counts[r][male]) / float64(n)
	}
	delta := math.Abs(prop(0) - prop(1))
	return &SexBalance{Table: t, DeltaMale: delta, Alert: delta >= threshold, Test: t.ChiSquare()}
}

// AgeBin returns the label of the bin holding age, or "" outside (0, 120]
func AgeBin(age float64) string {
	for i := 1; i < len(ageEdges); i++ {
		if age > ageEdges[i-1] && age <= ageEdges[i] {
			return AgeLabels[i-1]
		}
	}
	return ""
}

func ageBalance(dx, raw []string) *AgeBalance {
	var asd, tdc []float64
	bins := make([]string, len(raw))
	for i, v := range raw {
		age, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(age) || math.IsInf(age, 0) {
			continue
		}
		bins[i] = AgeBin(age)
		switch dx[i] {
		case "ASD":
			asd = append(asd, age)
		case "TDC":
			tdc = append(tdc, age)
		}
	}

	b := &AgeBalance{
		ASD:   summarize(asd),
		TDC:   summarize(tdc),
		SMD:   math.NaN(),
		Cliff: math.NaN(),
		Bins:  crosstab(dx, bins, AgeLabels),
	}
	b.BinTest = b.Bins.ChiSquare()
	if len(asd) > 2 && len(tdc) > 2 {
		if r, err := stattest.TTest(asd, tdc, false); err == nil {
			b.Welch = &AgeTest{T: r.T, DF: r.DF, P: r.P}
		}
		if sd := pooledSD(asd, tdc); sd > 0 {
			b.SMD = (b.ASD.Mean - b.TDC.Mean) / sd
		}
		b.Cliff = CliffsDelta(asd, tdc)
	}
	return b
}

func summarize(x []float64) AgeSummary {
	s := AgeSummary{N: len(x), Mean: math.NaN(), SD: math.NaN(), Median: math.NaN(), Min: math.NaN(), Max: math.NaN()}
	if len(x) == 0 {
		return s
	}
	s.Mean, _ = stats.Mean(x)
	s.Median, _ = stats.Median(x)
	s.Min, _ = stats.Min(x)
	s.Max, _ = stats.Max(x)
	if len(x) > 1 {
		s.SD, _ = stats.StandardDeviationSample(x)
	}
	return s
}

func pooledSD(x, y []float64) float64 {
	vx, _ := stats.SampleVariance(x)
	vy, _ := stats.SampleVariance(y)
	nx, ny := float64(len(x)), float64(len(y))
	return math.Sqrt(((nx-1)*vx + (ny-1)*vy) / (nx + ny - 2))
}

// CliffsDelta is P(X > Y) - P(X < Y) over all pairs
func CliffsDelta(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 {
		return math.NaN()
	}
	ys := append([]float64(nil), y...)
	sort.Float64s(ys)
	greater, less := 0, 0
	for _, v := range x {
		greater += sort.SearchFloat64s(ys, v)
		less += len(ys) - sort.Search(len(ys), func(i int) bool { return ys[i] > v })
	}
	return float64(greater-less) / float64(len(x)*len(ys))
}
