package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"abidenet/domain/core"
	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/run"
	"abidenet/domain/subject"
	apperrors "abidenet/internal/errors"
	"abidenet/ports"

	"github.com/jmoiron/sqlx"
)

// resultsRepository implements ports.ResultsRepository on sqlx
type resultsRepository struct {
	db *sqlx.DB
}

// NewResultsRepository creates a repository over an open connection
func NewResultsRepository(db *sqlx.DB) ports.ResultsRepository {
	return &resultsRepository{db: db}
}

// createdLayout sorts lexically in time order
const createdLayout = "2006-01-02T15:04:05.000000000Z"

// nullable maps NaN to NULL; infinities are stored as-is
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// SaveRun inserts or refreshes the run header
func (r *resultsRepository) SaveRun(ctx context.Context, m *run.Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	knobs, err := json.Marshal(m.Knobs)
	if err != nil {
		return fmt.Errorf("failed to marshal knobs: %w", err)
	}
	query := r.db.Rebind(`INSERT INTO runs (run_id, config_hash, code_version, knobs, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			config_hash = excluded.config_hash,
			code_version = excluded.code_version,
			knobs = excluded.knobs`)
	_, err = r.db.ExecContext(ctx, query,
		m.RunID.String(), m.ConfigHash.String(), m.CodeVersion, string(knobs),
		m.CreatedAt.Time().UTC().Format(createdLayout),
	)
	if err != nil {
		return apperrors.DatabaseError("failed to save run", err)
	}
	return nil
}

// replace deletes a run's rows from table and inserts fresh ones through one
// prepared statement, all in a transaction
func (r *resultsRepository) replace(ctx context.Context, table string, runID core.RunID, insert string, n int, args func(i int) []interface{}) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM "+table+" WHERE run_id = ?"), runID.String()); err != nil {
		return apperrors.DatabaseError("failed to clear "+table, err)
	}
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(insert))
	if err != nil {
		return apperrors.DatabaseError("failed to prepare "+table+" insert", err)
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return apperrors.DatabaseError("failed to insert into "+table, err)
		}
	}
	return tx.Commit()
}

// SaveQC replaces the run's QC ledger
func (r *resultsRepository) SaveQC(ctx context.Context, runID core.RunID, ledger []subject.QCEntry) error {
	return r.replace(ctx, "qc_entries", runID,
		`INSERT INTO qc_entries (run_id, subject_id, status, n_bad, n_imputed, reason) VALUES (?, ?, ?, ?, ?, ?)`,
		len(ledger), func(i int) []interface{} {
			e := ledger[i]
			return []interface{}{runID.String(), e.SubjectID.String(), string(e.Status), e.NBad, e.NImputed, e.Reason}
		})
}

// SaveBlockTests replaces the run's block tests, keeping their order
func (r *resultsRepository) SaveBlockTests(ctx context.Context, runID core.RunID, tests []results.BlockTest) error {
	return r.replace(ctx, "block_tests", runID,
		`INSERT INTO block_tests (run_id, block_type, block_name, position,
			n_tdc, mean_tdc, sd_tdc, n_asd, mean_asd, sd_asd,
			t_value, df, p_value, p_fdr, significant)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(tests), func(i int) []interface{} {
			bt := tests[i]
			return []interface{}{
				runID.String(), string(bt.Type), bt.Block, i,
				bt.TDC.N, nullable(bt.TDC.Mean), nullable(bt.TDC.SD),
				bt.ASD.N, nullable(bt.ASD.Mean), nullable(bt.ASD.SD),
				nullable(bt.T), nullable(bt.DF), nullable(bt.P), nullable(bt.PAdj), bt.Significant,
			}
		})
}

// SaveEdgeTests replaces the run's edge tests
func (r *resultsRepository) SaveEdgeTests(ctx context.Context, runID core.RunID, tests []results.EdgeTest) error {
	return r.replace(ctx, "edge_tests", runID,
		`INSERT INTO edge_tests (run_id, roi_i, roi_j, t_value, p_value, p_fdr, significant, net_i, net_j, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(tests), func(i int) []interface{} {
			e := tests[i]
			return []interface{}{
				runID.String(), e.ROII, e.ROIJ,
				nullable(e.T), nullable(e.P), nullable(e.PAdj), e.Significant,
				e.NetI, e.NetJ, e.Kind,
			}
		})
}

type runRow struct {
	RunID       string `db:"run_id"`
	ConfigHash  string `db:"config_hash"`
	CodeVersion string `db:"code_version"`
	CreatedAt   string `db:"created_at"`
	NKept       int    `db:"n_kept"`
	NRejected   int    `db:"n_rejected"`
}

func (row runRow) summary() ports.RunSummary {
	created, _ := time.Parse(createdLayout, row.CreatedAt)
	return ports.RunSummary{
		RunID:       core.RunID(row.RunID),
		ConfigHash:  row.ConfigHash,
		CodeVersion: row.CodeVersion,
		CreatedAt:   core.NewTimestamp(created),
		NKept:       row.NKept,
		NRejected:   row.NRejected,
	}
}

const runSelect = `SELECT r.run_id, r.config_hash, r.code_version, r.created_at,
		COALESCE(SUM(CASE WHEN q.status = 'kept' THEN 1 ELSE 0 END), 0) AS n_kept,
		COALESCE(SUM(CASE WHEN q.status <> 'kept' THEN 1 ELSE 0 END), 0) AS n_rejected
	FROM runs r LEFT JOIN qc_entries q ON q.run_id = r.run_id`

const runGroup = ` GROUP BY r.run_id, r.config_hash, r.code_version, r.created_at`

// ListRuns returns the newest runs first
func (r *resultsRepository) ListRuns(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	query := r.db.Rebind(runSelect + runGroup + ` ORDER BY r.created_at DESC, r.run_id DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, apperrors.DatabaseError("failed to list runs", err)
	}
	out := make([]ports.RunSummary, len(rows))
	for i, row := range rows {
		out[i] = row.summary()
	}
	return out, nil
}

// GetRun returns one run or an error wrapping core.ErrRunNotFound
func (r *resultsRepository) GetRun(ctx context.Context, runID core.RunID) (*ports.RunSummary, error) {
	var row runRow
	query := r.db.Rebind(runSelect + ` WHERE r.run_id = ?` + runGroup)
	if err := r.db.GetContext(ctx, &row, query, runID.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
		}
		return nil, apperrors.DatabaseError("failed to get run", err)
	}
	s := row.summary()
	return &s, nil
}

func (r *resultsRepository) requireRun(ctx context.Context, runID core.RunID) error {
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind("SELECT COUNT(*) FROM runs WHERE run_id = ?"), runID.String()); err != nil {
		return apperrors.DatabaseError("failed to look up run", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return nil
}

// GetQC returns the ledger ordered by subject ID
func (r *resultsRepository) GetQC(ctx context.Context, runID core.RunID) ([]subject.QCEntry, error) {
	if err := r.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	out := make([]subject.QCEntry, 0)
	query := r.db.Rebind(`SELECT subject_id, status, n_bad, n_imputed, reason
		FROM qc_entries WHERE run_id = ? ORDER BY subject_id`)
	if err := r.db.SelectContext(ctx, &out, query, runID.String()); err != nil {
		return nil, apperrors.DatabaseError("failed to get qc ledger", err)
	}
	return out, nil
}

type blockRow struct {
	Type        string          `db:"block_type"`
	Block       string          `db:"block_name"`
	NTDC        int             `db:"n_tdc"`
	MeanTDC     sql.NullFloat64 `db:"mean_tdc"`
	SDTDC       sql.NullFloat64 `db:"sd_tdc"`
	NASD        int             `db:"n_asd"`
	MeanASD     sql.NullFloat64 `db:"mean_asd"`
	SDASD       sql.NullFloat64 `db:"sd_asd"`
	T           sql.NullFloat64 `db:"t_value"`
	DF          sql.NullFloat64 `db:"df"`
	P           sql.NullFloat64 `db:"p_value"`
	PAdj        sql.NullFloat64 `db:"p_fdr"`
	Significant bool            `db:"significant"`
}

// GetBlockTests returns block tests in the order they were saved
func (r *resultsRepository) GetBlockTests(ctx context.Context, runID core.RunID, filters ports.TestFilters) ([]results.BlockTest, error) {
	if err := r.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	query := `SELECT block_type, block_name, n_tdc, mean_tdc, sd_tdc, n_asd, mean_asd, sd_asd,
			t_value, df, p_value, p_fdr, significant
		FROM block_tests WHERE run_id = ?`
	args := []interface{}{runID.String()}
	if filters.Type != nil {
		query += ` AND block_type = ?`
		args = append(args, string(*filters.Type))
	}
	if filters.SignificantOnly {
		query += ` AND significant = ?`
		args = append(args, true)
	}
	query += ` ORDER BY position`

	var rows []blockRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, apperrors.DatabaseError("failed to get block tests", err)
	}
	out := make([]results.BlockTest, len(rows))
	for i, row := range rows {
		out[i] = results.BlockTest{
			Type:        network.BlockType(row.Type),
			Block:       row.Block,
			TDC:         results.GroupSummary{N: row.NTDC, Mean: fromNullable(row.MeanTDC), SD: fromNullable(row.SDTDC)},
			ASD:         results.GroupSummary{N: row.NASD, Mean: fromNullable(row.MeanASD), SD: fromNullable(row.SDASD)},
			T:           fromNullable(row.T),
			DF:          fromNullable(row.DF),
			P:           fromNullable(row.P),
			PAdj:        fromNullable(row.PAdj),
			Significant: row.Significant,
		}
	}
	return out, nil
}

type edgeRow struct {
	ROII        int             `db:"roi_i"`
	ROIJ        int             `db:"roi_j"`
	T           sql.NullFloat64 `db:"t_value"`
	P           sql.NullFloat64 `db:"p_value"`
	PAdj        sql.NullFloat64 `db:"p_fdr"`
	Significant bool            `db:"significant"`
	NetI        string          `db:"net_i"`
	NetJ        string          `db:"net_j"`
	Kind        string          `db:"kind"`
}

// GetEdgeTests returns edge tests in (roi_i, roi_j) order
func (r *resultsRepository) GetEdgeTests(ctx context.Context, runID core.RunID) ([]results.EdgeTest, error) {
	if err := r.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	var rows []edgeRow
	query := r.db.Rebind(`SELECT roi_i, roi_j, t_value, p_value, p_fdr, significant, net_i, net_j, kind
		FROM edge_tests WHERE run_id = ? ORDER BY roi_i, roi_j`)
	if err := r.db.SelectContext(ctx, &rows, query, runID.String()); err != nil {
		return nil, apperrors.DatabaseError("failed to get edge tests", err)
	}
	out := make([]results.EdgeTest, len(rows))
	for i, row := range rows {
		out[i] = results.EdgeTest{
			ROII: row.ROII, ROIJ: row.ROIJ,
			T: fromNullable(row.T), P: fromNullable(row.P), PAdj: fromNullable(row.PAdj),
			Significant: row.Significant,
			NetI:        row.NetI, NetJ: row.NetJ, Kind: row.Kind,
		}
	}
	return out, nil
}
