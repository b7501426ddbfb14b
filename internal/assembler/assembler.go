// Package assembler builds the connectivity cube across a cohort: one
// Fisher-z correlation matrix per kept subject plus a QC ledger row for
// every candidate.
package assembler

import (
	"context"
	"errors"
	"fmt"

	"abidenet/domain/connectivity"
	"abidenet/domain/subject"
	"abidenet/internal"
	"abidenet/internal/correlation"
	"abidenet/ports"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Options is the per-subject rejection policy
type Options struct {
	MaxBadROIsRatio float64
	DegenerateEps   float64
	FisherEps       float64
	Workers         int
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{
		MaxBadROIsRatio: 0.15,
		DegenerateEps:   correlation.DefaultDegenerateEps,
		FisherEps:       correlation.DefaultFisherEps,
		Workers:         4,
	}
}

// Result is the stage output. Cube position i, Kept[i] and the labels all
// refer to the same subject; Ledger covers every input subject in input order.
type Result struct {
	Cube   *connectivity.Cube
	Kept   []subject.Subject
	Ledger []subject.QCEntry
	NROIs  int
}

// SubjectIDs returns the kept IDs in cube order
func (r *Result) SubjectIDs() []string {
	out := make([]string, len(r.Kept))
	for i, s := range r.Kept {
		out[i] = s.ID.String()
	}
	return out
}

// Labels returns the kept diagnoses in cube order
func (r *Result) Labels() []subject.Diagnosis {
	out := make([]subject.Diagnosis, len(r.Kept))
	for i, s := range r.Kept {
		out[i] = s.Diagnosis
	}
	return out
}

// Check verifies the index alignment between cube, subjects and labels
func (r *Result) Check() error {
	if r.Cube == nil {
		return fmt.Errorf("assembler result has no cube")
	}
	if r.Cube.Subjects != len(r.Kept) {
		return fmt.Errorf("cube holds %d subjects but %d are listed as kept", r.Cube.Subjects, len(r.Kept))
	}
	return r.Cube.Validate()
}

// Assembler runs the correlation engine over a cohort
type Assembler struct {
	reader ports.TimeSeriesReader
	engine *correlation.Engine
	opts   Options
	logger *internal.Logger
}

// New creates an assembler
func New(reader ports.TimeSeriesReader, opts Options, logger *internal.Logger) *Assembler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.FisherEps <= 0 {
		opts.FisherEps = correlation.DefaultFisherEps
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Assembler{
		reader: reader,
		engine: correlation.NewEngine(opts.DegenerateEps),
		opts:   opts,
		logger: logger,
	}
}

// outcome is what one worker leaves in its slot
type outcome struct {
	readErr error
	rois    int
	z       []float32 // Fisher-z matrix, row-major
	report  correlation.Report
}

// Assemble processes every subject. Per-subject failures end up in the
// ledger; only context cancellation is returned as an error.
func (a *Assembler) Assemble(ctx context.Context, subjects []subject.Subject) (*Result, error) {
	outcomes := make([]outcome, len(subjects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i := range subjects {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = a.process(gctx, subjects[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The ROI count comes from the first readable subject in list order,
	// whatever order the workers finished in.
	nROIs := -1
	for _, o := range outcomes {
		if o.readErr == nil {
			nROIs = o.rois
			break
		}
	}

	ledger := make([]subject.QCEntry, len(subjects))
	var keptIdx []int
	for i, s := range subjects {
		o := outcomes[i]
		entry := subject.QCEntry{
			SubjectID: s.ID,
			NBad:      o.report.NBad,
			NImputed:  o.report.NImputed,
		}
		switch {
		case o.readErr != nil && errors.Is(o.readErr, ports.ErrSubjectMissing):
			entry.Status = subject.StatusMissing
			entry.Reason = o.readErr.Error()
		case o.readErr != nil:
			entry.Status = subject.StatusReadError
			entry.Reason = o.readErr.Error()
		case o.rois != nROIs:
			entry.Status = subject.StatusShapeMismatch
			entry.Reason = fmt.Sprintf("%d ROIs, cohort has %d", o.rois, nROIs)
		case o.report.BadRatio(o.rois) > a.opts.MaxBadROIsRatio:
			entry.Status = subject.StatusTooManyBadROIs
			entry.Reason = fmt.Sprintf("%d/%d degenerate ROIs (%.1f%% > %.1f%%)",
				o.report.NBad, o.rois, 100*o.report.BadRatio(o.rois), 100*a.opts.MaxBadROIsRatio)
		default:
			entry.Status = subject.StatusKept
			keptIdx = append(keptIdx, i)
		}
		if !entry.Kept() {
			a.logger.Warn("subject %s excluded: %s (%s)", s.ID, entry.Status, entry.Reason)
		}
		ledger[i] = entry
	}

	if nROIs < 0 {
		nROIs = 0
	}
	cube := connectivity.NewCube(len(keptIdx), nROIs)
	kept := make([]subject.Subject, len(keptIdx))
	for slot, i := range keptIdx {
		copy(cube.Slab(slot), outcomes[i].z)
		kept[slot] = subjects[i]
	}

	res := &Result{Cube: cube, Kept: kept, Ledger: ledger, NROIs: nROIs}
	counts := subject.CountByStatus(ledger)
	a.logger.Info("connectivity: %d/%d subjects kept, %d ROIs (missing=%d read_error=%d shape=%d bad_rois=%d)",
		len(kept), len(subjects), nROIs,
		counts[subject.StatusMissing], counts[subject.StatusReadError],
		counts[subject.StatusShapeMismatch], counts[subject.StatusTooManyBadROIs])
	return res, res.Check()
}

func (a *Assembler) process(ctx context.Context, s subject.Subject) outcome {
	ts, err := a.reader.Read(ctx, s.ID)
	if err != nil {
		return outcome{readErr: err}
	}
	if ts == nil {
		return outcome{readErr: fmt.Errorf("%w: empty time series", ports.ErrSubjectUnreadable)}
	}
	t, n := ts.Dims()
	if t == 0 || n == 0 {
		return outcome{readErr: fmt.Errorf("%w: empty time series", ports.ErrSubjectUnreadable)}
	}

	c, rep := a.engine.Correlate(ts)
	a.logger.Trace("subject %s: T=%d N=%d bad=%d imputed=%d", s.ID, t, n, rep.NBad, rep.NImputed)
	return outcome{rois: n, z: fisherSlab(c, a.opts.FisherEps), report: rep}
}

func fisherSlab(c mat.Symmetric, eps float64) []float32 {
	z := correlation.FisherZMatrix(c, eps)
	n := z.SymmetricDim()
	out := make([]float32, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = float32(z.At(i, j))
		}
	}
	return out
}
