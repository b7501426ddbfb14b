package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"abidenet/domain/core"
	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/subject"
	"abidenet/internal"
	"abidenet/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockResults struct {
	mock.Mock
}

func (m *mockResults) ListRuns(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]ports.RunSummary)
	return runs, args.Error(1)
}

func (m *mockResults) GetRun(ctx context.Context, id core.RunID) (*ports.RunSummary, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*ports.RunSummary)
	return run, args.Error(1)
}

func (m *mockResults) GetQC(ctx context.Context, id core.RunID) ([]subject.QCEntry, error) {
	args := m.Called(ctx, id)
	ledger, _ := args.Get(0).([]subject.QCEntry)
	return ledger, args.Error(1)
}

func (m *mockResults) GetBlockTests(ctx context.Context, id core.RunID, f ports.TestFilters) ([]results.BlockTest, error) {
	args := m.Called(ctx, id, f)
	tests, _ := args.Get(0).([]results.BlockTest)
	return tests, args.Error(1)
}

func (m *mockResults) GetEdgeTests(ctx context.Context, id core.RunID) ([]results.EdgeTest, error) {
	args := m.Called(ctx, id)
	tests, _ := args.Get(0).([]results.EdgeTest)
	return tests, args.Error(1)
}

func serve(t *testing.T, repo ports.ResultsReader, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	s := NewServer(repo, internal.NewNopLogger(), "test")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestListRunsLimit(t *testing.T) {
	repo := new(mockResults)
	repo.On("ListRuns", mock.Anything, 5).Return([]ports.RunSummary{{RunID: "r1", NKept: 10}}, nil)

	rec, body := serve(t, repo, "/api/runs?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	runs := body["runs"].([]interface{})
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].(map[string]interface{})["run_id"])
	repo.AssertExpectations(t)
}

func TestListRunsRejectsBadLimit(t *testing.T) {
	repo := new(mockResults)
	rec, body := serve(t, repo, "/api/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", body["code"])
	repo.AssertNotCalled(t, "ListRuns", mock.Anything, mock.Anything)
}

func TestUnknownRunIs404(t *testing.T) {
	repo := new(mockResults)
	repo.On("GetRun", mock.Anything, core.RunID("nope")).Return(nil, fmt.Errorf("%w: nope", core.ErrRunNotFound))

	rec, body := serve(t, repo, "/api/runs/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestStoreFailureIs500(t *testing.T) {
	repo := new(mockResults)
	repo.On("GetEdgeTests", mock.Anything, core.RunID("r1")).Return(nil, fmt.Errorf("connection reset"))

	rec, _ := serve(t, repo, "/api/runs/r1/edges")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQCCounts(t *testing.T) {
	repo := new(mockResults)
	repo.On("GetQC", mock.Anything, core.RunID("r1")).Return([]subject.QCEntry{
		{SubjectID: "a", Status: subject.StatusKept},
		{SubjectID: "b", Status: subject.StatusTooManyBadROIs, NBad: 3},
	}, nil)

	rec, body := serve(t, repo, "/api/runs/r1/qc")
	assert.Equal(t, http.StatusOK, rec.Code)
	counts := body["counts"].(map[string]interface{})
	assert.Equal(t, 1.0, counts["kept"])
	assert.Equal(t, 1.0, counts["too_many_bad_rois"])
	assert.Len(t, body["subjects"], 2)
}

func TestBlockTestFiltersAndNonFinite(t *testing.T) {
	repo := new(mockResults)
	inter := network.Inter
	repo.On("GetBlockTests", mock.Anything, core.RunID("r1"), ports.TestFilters{Type: &inter, SignificantOnly: true}).
		Return([]results.BlockTest{{
			Type: network.Inter, Block: "Default-Visual",
			TDC: results.GroupSummary{N: 10, Mean: 0.1, SD: 0.2},
			ASD: results.GroupSummary{N: 9, Mean: 0.4, SD: 0.2},
			T:   math.Inf(1), DF: math.NaN(), P: 0, PAdj: 0, Significant: true,
		}}, nil)

	rec, body := serve(t, repo, "/api/runs/r1/tests?type=inter&significant=true")
	assert.Equal(t, http.StatusOK, rec.Code)
	tests := body["tests"].([]interface{})
	require.Len(t, tests, 1)
	bt := tests[0].(map[string]interface{})
	assert.Nil(t, bt["t"])
	assert.Nil(t, bt["df"])
	assert.Equal(t, 0.0, bt["p_fdr"])
	assert.Equal(t, 0.4, bt["asd"].(map[string]interface{})["mean"])
	repo.AssertExpectations(t)
}

func TestBlockTestBadType(t *testing.T) {
	repo := new(mockResults)
	rec, _ := serve(t, repo, "/api/runs/r1/tests?type=global")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEdges(t *testing.T) {
	repo := new(mockResults)
	repo.On("GetEdgeTests", mock.Anything, core.RunID("r1")).Return([]results.EdgeTest{
		{ROII: 1, ROIJ: 2, T: 4.2, P: 0.0001, PAdj: 0.01, Significant: true, NetI: "Visual", NetJ: "Visual", Kind: results.EdgeIntra},
	}, nil)

	rec, body := serve(t, repo, "/api/runs/r1/edges")
	assert.Equal(t, http.StatusOK, rec.Code)
	edges := body["edges"].([]interface{})
	require.Len(t, edges, 1)
	e := edges[0].(map[string]interface{})
	assert.Equal(t, 4.2, e["t"])
	assert.Equal(t, "intra", e["kind"])
}
