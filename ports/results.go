package ports

import (
	"context"

	"abidenet/domain/core"
	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/run"
	"abidenet/domain/subject"
)

// RunSummary is the row the results API lists
type RunSummary struct {
	RunID       core.RunID     `json:"run_id" db:"run_id"`
	ConfigHash  string         `json:"config_hash" db:"config_hash"`
	CodeVersion string         `json:"code_version" db:"code_version"`
	CreatedAt   core.Timestamp `json:"created_at" db:"-"`
	NKept       int            `json:"n_kept" db:"n_kept"`
	NRejected   int            `json:"n_rejected" db:"n_rejected"`
}

// TestFilters narrows block test queries
type TestFilters struct {
	Type            *network.BlockType
	SignificantOnly bool
}

// ResultsWriter persists one run's outputs
type ResultsWriter interface {
	SaveRun(ctx context.Context, manifest *run.Manifest) error
	SaveQC(ctx context.Context, runID core.RunID, ledger []subject.QCEntry) error
	SaveBlockTests(ctx context.Context, runID core.RunID, tests []results.BlockTest) error
	SaveEdgeTests(ctx context.Context, runID core.RunID, tests []results.EdgeTest) error
}

// ResultsReader provides read-only access for the API; it cannot modify runs
type ResultsReader interface {
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	GetRun(ctx context.Context, runID core.RunID) (*RunSummary, error)
	GetQC(ctx context.Context, runID core.RunID) ([]subject.QCEntry, error)
	GetBlockTests(ctx context.Context, runID core.RunID, filters TestFilters) ([]results.BlockTest, error)
	GetEdgeTests(ctx context.Context, runID core.RunID) ([]results.EdgeTest, error)
}

// ResultsRepository is both sides, as implemented by the SQL store
type ResultsRepository interface {
	ResultsWriter
	ResultsReader
}
