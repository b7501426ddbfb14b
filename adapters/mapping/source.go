// Package mapping loads the ROI-to-network table (roi_to_yeo.csv) for the
// 7- or 17-network Yeo parcellation.
package mapping

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"abidenet/adapters/excel"
	"abidenet/domain/core"
	"abidenet/domain/network"
	"abidenet/internal"
	"abidenet/ports"
)

// ColROI holds the 1-based atlas ROI number
const ColROI = "ROI_number"

// NameColumn returns the label column for a Yeo granularity ("7" or "17")
func NameColumn(yeo string) (string, error) {
	switch yeo {
	case "7", "17":
		return "Yeo" + yeo + "_name", nil
	}
	return "", fmt.Errorf("%w: yeo %q (want 7 or 17)", core.ErrUnknownOption, yeo)
}

// Source reads the mapping file
type Source struct {
	path   string
	yeo    string
	logger *internal.Logger
}

// NewSource creates a mapping source for one Yeo granularity
func NewSource(path, yeo string, logger *internal.Logger) *Source {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Source{path: path, yeo: yeo, logger: logger}
}

var _ ports.MappingSource = (*Source)(nil)

// LoadMapping reads the table and builds a mapping over nROIs. ROIs the
// table does not list are Unknown; rows beyond nROIs are ignored.
func (s *Source) LoadMapping(ctx context.Context, nROIs int) (*network.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tab, err := excel.NewDataReader(s.path).ReadData()
	if err != nil {
		return nil, err
	}
	return Build(tab, s.yeo, nROIs, s.logger)
}

// Build converts a mapping table
func Build(tab *excel.Table, yeo string, nROIs int, logger *internal.Logger) (*network.Mapping, error) {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	col, err := NameColumn(yeo)
	if err != nil {
		return nil, err
	}
	for _, c := range []string{ColROI, col} {
		if !tab.Has(c) {
			return nil, core.NewMissingColumnError("roi mapping", c)
		}
	}

	assign := make(map[int]string, len(tab.Rows))
	extra := 0
	for i, row := range tab.Rows {
		roi, err := strconv.Atoi(strings.TrimSpace(row[ColROI]))
		if err != nil || roi < 1 {
			return nil, fmt.Errorf("%w: row %d has ROI number %q", core.ErrInvalidMapping, i+2, row[ColROI])
		}
		if roi > nROIs {
			extra++
			continue
		}
		name := strings.TrimSpace(row[col])
		if strings.EqualFold(name, "nan") {
			name = ""
		}
		assign[roi] = name
	}
	if extra > 0 {
		logger.Warn("roi mapping lists %d ROIs beyond the %d in the data; ignored", extra, nROIs)
	}
	if missing := nROIs - len(assign); missing > 0 {
		logger.Warn("roi mapping does not cover %d of %d ROIs; labelled %s", missing, nROIs, network.Unknown)
	}

	m, err := network.NewMapping(nROIs, assign)
	if err != nil {
		return nil, err
	}
	logger.Info("roi mapping: Yeo%s, %d networks over %d ROIs", yeo, len(m.Networks()), nROIs)
	return m, nil
}
