// Package phenotype loads the ABIDE phenotypic table and applies the motion
// pre-filter before any time series is read.
package phenotype

import (
	"context"
	"math"
	"strconv"
	"strings"

	"abidenet/adapters/excel"
	"abidenet/domain/core"
	"abidenet/domain/subject"
	"abidenet/internal"
	"abidenet/ports"
)

// Required and optional columns
const (
	ColFileID = "FILE_ID"
	ColDX     = "DX_GROUP"
	ColMeanFD = "func_mean_fd"
)

// Source reads a phenotype CSV or XLSX file
type Source struct {
	path      string
	maxMeanFD float64
	logger    *internal.Logger
}

// NewSource creates a source. maxMeanFD > 0 drops subjects whose mean
// framewise displacement is above it or unknown.
func NewSource(path string, maxMeanFD float64, logger *internal.Logger) *Source {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Source{path: path, maxMeanFD: maxMeanFD, logger: logger}
}

var _ ports.PhenotypeSource = (*Source)(nil)

// LoadPhenotype returns the subjects in file order with their raw cells
func (s *Source) LoadPhenotype(ctx context.Context) (*ports.Phenotype, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tab, err := excel.NewDataReader(s.path).ReadData()
	if err != nil {
		return nil, err
	}
	return Build(tab, s.maxMeanFD, s.logger)
}

// Build turns a raw table into a cohort. Rows without a usable FILE_ID or
// diagnosis are dropped, as are duplicate FILE_IDs after the first.
func Build(tab *excel.Table, maxMeanFD float64, logger *internal.Logger) (*ports.Phenotype, error) {
	for _, col := range []string{ColFileID, ColDX} {
		if !tab.Has(col) {
			return nil, core.NewMissingColumnError("phenotype", col)
		}
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	hasFD := tab.Has(ColMeanFD)
	if maxMeanFD > 0 && !hasFD {
		return nil, core.NewMissingColumnError("phenotype", ColMeanFD)
	}

	p := &ports.Phenotype{
		Covariates: make(map[string]map[string]string, len(tab.Rows)),
		MeanFD:     make(map[string]float64, len(tab.Rows)),
	}
	var noFile, badDX, dup, motion int
	for _, row := range tab.Rows {
		id := strings.TrimSpace(row[ColFileID])
		if id == "" || isNoFilename(id) {
			noFile++
			continue
		}
		if _, seen := p.Covariates[id]; seen {
			dup++
			continue
		}
		dx, err := subject.ParseDiagnosis(row[ColDX])
		if err != nil {
			badDX++
			logger.Debug("phenotype: %s dropped: %v", id, err)
			continue
		}

		fd := math.NaN()
		if hasFD {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[ColMeanFD]), 64); err == nil {
				fd = v
			}
		}
		if maxMeanFD > 0 && (math.IsNaN(fd) || fd > maxMeanFD) {
			motion++
			continue
		}

		cells := make(map[string]string, len(row))
		for k, v := range row {
			cells[k] = v
		}
		p.Subjects = append(p.Subjects, subject.Subject{ID: core.SubjectID(id), Diagnosis: dx})
		p.Covariates[id] = cells
		if !math.IsNaN(fd) {
			p.MeanFD[id] = fd
		}
	}

	if noFile > 0 {
		logger.Warn("phenotype: %d rows removed (FILE_ID empty or no_filename)", noFile)
	}
	if dup > 0 {
		logger.Warn("phenotype: %d duplicate FILE_ID rows ignored", dup)
	}
	if badDX > 0 {
		logger.Warn("phenotype: %d rows with an invalid %s removed", badDX, ColDX)
	}
	if motion > 0 {
		logger.Info("phenotype: %d subjects above mean FD %.3g removed", motion, maxMeanFD)
	}
	logger.Info("phenotype: %d subjects loaded", len(p.Subjects))
	return p, nil
}

func isNoFilename(id string) bool {
	switch strings.ToLower(id) {
	case "no_filename", "no filename":
		return true
	}
	return false
}
