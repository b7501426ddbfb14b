package testkit

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"abidenet/domain/core"
	"abidenet/domain/subject"
	"abidenet/ports"

	"gonum.org/v1/gonum/mat"
)

// CohortGeneratorConfig configures the synthetic ABIDE-like cohort
type CohortGeneratorConfig struct {
	SubjectsPerGroup int      `json:"subjects_per_group"`
	ROIs             int      `json:"rois"`
	Timepoints       int      `json:"timepoints"`
	Networks         []string `json:"networks"`
	Sites            []string `json:"sites"`
	// Fraction of subjects, taken from the start of the list, whose
	// ConstantROI carries a flat signal.
	ConstantROIFraction float64 `json:"constant_roi_fraction"`
	ConstantROI         int     `json:"constant_roi"`
	// ASD subjects get an extra shared signal across these two networks
	EffectNetworks [2]string `json:"effect_networks"`
	EffectSize     float64   `json:"effect_size"`
	Seed           int64     `json:"seed"`
}

// DefaultCohortConfig returns a small cohort with a DMN-FPN effect
func DefaultCohortConfig() CohortGeneratorConfig {
	return CohortGeneratorConfig{
		SubjectsPerGroup: 20,
		ROIs:             24,
		Timepoints:       120,
		Networks:         []string{"Default Mode", "Frontoparietal Control", "Visual", "Somatomotor"},
		Sites:            []string{"NYU", "PITT", "UCLA"},
		EffectNetworks:   [2]string{"Default Mode", "Frontoparietal Control"},
		EffectSize:       0.8,
		Seed:             42,
	}
}

// SyntheticSubject is one generated participant
type SyntheticSubject struct {
	ID        string
	Diagnosis subject.Diagnosis
	Age       float64
	Sex       int // 1 male, 2 female
	Site      string
	MeanFD    float64
	Series    *mat.Dense // timepoints x ROIs
}

// Cohort is a generated dataset
type Cohort struct {
	Config   CohortGeneratorConfig
	Subjects []SyntheticSubject
	Labels   []string // network per ROI, 0-based
}

// CohortGenerator generates reproducible cohorts
type CohortGenerator struct {
	config CohortGeneratorConfig
	rng    *rand.Rand
}

// NewCohortGenerator creates a generator
func NewCohortGenerator(config CohortGeneratorConfig) *CohortGenerator {
	return &CohortGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate builds the cohort. Diagnoses alternate ASD, TDC so any prefix of
// the subject list is balanced.
func (g *CohortGenerator) Generate() *Cohort {
	cfg := g.config
	labels := make([]string, cfg.ROIs)
	if len(cfg.Networks) > 0 {
		per := int(math.Ceil(float64(cfg.ROIs) / float64(len(cfg.Networks))))
		for r := range labels {
			labels[r] = cfg.Networks[r/per]
		}
	}

	n := 2 * cfg.SubjectsPerGroup
	nConst := int(math.Round(cfg.ConstantROIFraction * float64(n)))
	out := &Cohort{Config: cfg, Labels: labels, Subjects: make([]SyntheticSubject, n)}
	for i := 0; i < n; i++ {
		dx := subject.DiagnosisASD
		if i%2 == 1 {
			dx = subject.DiagnosisTDC
		}
		site := "SITE"
		if len(cfg.Sites) > 0 {
			site = cfg.Sites[(i/2)%len(cfg.Sites)]
		}
		sex := 1
		if g.rng.Float64() < 0.2 {
			sex = 2
		}
		s := SyntheticSubject{
			ID:        fmt.Sprintf("%s_%07d", site, 50000+i),
			Diagnosis: dx,
			Age:       math.Round((8+g.rng.Float64()*30)*10) / 10,
			Sex:       sex,
			Site:      site,
			MeanFD:    math.Round(g.rng.Float64()*0.4*1000) / 1000,
		}
		s.Series = g.series(labels, dx == subject.DiagnosisASD, i < nConst)
		out.Subjects[i] = s
	}
	return out
}

func (g *CohortGenerator) series(labels []string, asd, constant bool) *mat.Dense {
	cfg := g.config
	latent := make(map[string][]float64)
	for _, net := range cfg.Networks {
		v := make([]float64, cfg.Timepoints)
		for t := range v {
			v[t] = g.rng.NormFloat64()
		}
		latent[net] = v
	}
	effect := make([]float64, cfg.Timepoints)
	for t := range effect {
		effect[t] = g.rng.NormFloat64()
	}

	x := mat.NewDense(cfg.Timepoints, cfg.ROIs, nil)
	for r := 0; r < cfg.ROIs; r++ {
		net := labels[r]
		inEffect := asd && cfg.EffectSize != 0 && (net == cfg.EffectNetworks[0] || net == cfg.EffectNetworks[1])
		for t := 0; t < cfg.Timepoints; t++ {
			v := g.rng.NormFloat64()
			if l, ok := latent[net]; ok {
				v += 0.7 * l[t]
			}
			if inEffect {
				v += cfg.EffectSize * effect[t]
			}
			x.Set(t, r, v)
		}
	}
	if constant && cfg.ConstantROI >= 0 && cfg.ConstantROI < cfg.ROIs {
		for t := 0; t < cfg.Timepoints; t++ {
			x.Set(t, cfg.ConstantROI, 100)
		}
	}
	return x
}

// SubjectList returns the cohort as domain subjects
func (c *Cohort) SubjectList() []subject.Subject {
	out := make([]subject.Subject, len(c.Subjects))
	for i, s := range c.Subjects {
		out[i] = subject.Subject{ID: core.SubjectID(s.ID), Diagnosis: s.Diagnosis}
	}
	return out
}

// Phenotype returns the covariate table the regressor consumes
func (c *Cohort) Phenotype() *ports.Phenotype {
	p := &ports.Phenotype{
		Subjects:   c.SubjectList(),
		Covariates: make(map[string]map[string]string, len(c.Subjects)),
		MeanFD:     make(map[string]float64, len(c.Subjects)),
	}
	for _, s := range c.Subjects {
		p.Covariates[s.ID] = map[string]string{
			"AGE_AT_SCAN": strconv.FormatFloat(s.Age, 'f', -1, 64),
			"SEX":         strconv.Itoa(s.Sex),
			"SITE_ID":     s.Site,
		}
		p.MeanFD[s.ID] = s.MeanFD
	}
	return p
}

// Reader serves the generated series from memory
func (c *Cohort) Reader() *InMemoryReader {
	r := NewInMemoryReader()
	for _, s := range c.Subjects {
		r.Put(core.SubjectID(s.ID), s.Series)
	}
	return r
}

// Assignments returns the 1-based ROI to network map
func (c *Cohort) Assignments() map[int]string {
	out := make(map[int]string, len(c.Labels))
	for i, l := range c.Labels {
		out[i+1] = l
	}
	return out
}

// WriteFiles lays the cohort out the way the pipeline expects real data:
// one .1D file per subject under dataDir, a phenotype CSV and an ROI mapping CSV.
func (c *Cohort) WriteFiles(dataDir, pattern, phenoPath, mappingPath string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	for _, s := range c.Subjects {
		if err := write1D(filepath.Join(dataDir, fmt.Sprintf(pattern, s.ID)), s.Series); err != nil {
			return err
		}
	}

	pheno := [][]string{{"SUB_ID", "FILE_ID", "SITE_ID", "DX_GROUP", "AGE_AT_SCAN", "SEX", "func_mean_fd"}}
	for i, s := range c.Subjects {
		pheno = append(pheno, []string{
			strconv.Itoa(50000 + i),
			s.ID,
			s.Site,
			strconv.Itoa(int(s.Diagnosis)),
			strconv.FormatFloat(s.Age, 'f', -1, 64),
			strconv.Itoa(s.Sex),
			strconv.FormatFloat(s.MeanFD, 'f', -1, 64),
		})
	}
	if err := writeCSV(phenoPath, pheno); err != nil {
		return err
	}

	ids := make(map[string]int)
	mapping := [][]string{{"ROI_number", "Yeo7_id", "Yeo7_name", "Yeo17_id", "Yeo17_name"}}
	for i, l := range c.Labels {
		if _, ok := ids[l]; !ok {
			ids[l] = len(ids) + 1
		}
		id := strconv.Itoa(ids[l])
		mapping = append(mapping, []string{strconv.Itoa(i + 1), id, l, id, l})
	}
	return writeCSV(mappingPath, mapping)
}

func write1D(path string, x *mat.Dense) error {
	t, n := x.Dims()
	var b strings.Builder
	b.WriteString("#")
	for j := 0; j < n; j++ {
		if j > 0 {
			b.WriteString("\t")
		}
		b.WriteString(strconv.Itoa(j + 1))
	}
	b.WriteString("\n")
	for i := 0; i < t; i++ {
		for j := 0; j < n; j++ {
			if j > 0 {
				b.WriteString("\t")
			}
			b.WriteString(strconv.FormatFloat(x.At(i, j), 'f', 6, 64))
		}
		b.WriteString("\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}
