package ports

import (
	"context"
	"errors"

	"abidenet/domain/core"

	"gonum.org/v1/gonum/mat"
)

// Per-subject read failures. Readers wrap one of these so the assembler can
// classify the subject instead of aborting.
var (
	ErrSubjectMissing    = errors.New("time series file missing")
	ErrSubjectUnreadable = errors.New("time series file unreadable")
)

// TimeSeriesReader loads one subject's ROI time series as a
// (timepoints x ROIs) matrix. Non-finite cells are returned as-is.
type TimeSeriesReader interface {
	Read(ctx context.Context, id core.SubjectID) (*mat.Dense, error)
}
