package ports

import (
	"context"

	"abidenet/domain/network"
	"abidenet/domain/subject"
)

// Phenotype is the cohort table after loading: subjects in file order and
// their raw covariate cells keyed by column name.
type Phenotype struct {
	Subjects   []subject.Subject
	Covariates map[string]map[string]string // subject ID -> column -> raw value
	MeanFD     map[string]float64
}

// Column returns the raw cells of one column in subject order
func (p *Phenotype) Column(name string) []string {
	out := make([]string, len(p.Subjects))
	for i, s := range p.Subjects {
		out[i] = p.Covariates[s.ID.String()][name]
	}
	return out
}

// PhenotypeSource loads the phenotype table
type PhenotypeSource interface {
	LoadPhenotype(ctx context.Context) (*Phenotype, error)
}

// MappingSource loads the ROI-to-network lookup for a given ROI count
type MappingSource interface {
	LoadMapping(ctx context.Context, nROIs int) (*network.Mapping, error)
}
