package app

import (
	"context"
	"errors"
	"testing"

	"abidenet/adapters/artifacts"
	"abidenet/adapters/db"
	"abidenet/adapters/db/migrations"
	"abidenet/domain/core"
	"abidenet/domain/network"
	"abidenet/domain/run"
	"abidenet/internal/config"
	"abidenet/internal/testkit"
	"abidenet/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type phenotypeStub struct{ p *ports.Phenotype }

func (s phenotypeStub) LoadPhenotype(context.Context) (*ports.Phenotype, error) { return s.p, nil }

type mappingStub struct{ assign map[int]string }

func (s mappingStub) LoadMapping(_ context.Context, nROIs int) (*network.Mapping, error) {
	return network.NewMapping(nROIs, s.assign)
}

func testConfig(t *testing.T) *config.Config {
	t.Setenv("ABIDE_ARTIFACTS_DIR", t.TempDir())
	t.Setenv("WORKERS", "2")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config, results ports.ResultsWriter) *Pipeline {
	cohort := testkit.NewCohortGenerator(testkit.DefaultCohortConfig()).Generate()
	return New(cfg, Deps{
		Reader:    cohort.Reader(),
		Phenotype: phenotypeStub{cohort.Phenotype()},
		Mapping:   mappingStub{cohort.Assignments()},
		Results:   results,
	})
}

func readManifest(t *testing.T, p *Pipeline) run.Manifest {
	var m run.Manifest
	require.NoError(t, p.Store().ReadJSON(artifacts.ManifestFile, &m))
	return m
}

func TestRunAllWritesEveryArtifact(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	defer conn.Close()
	_, err = migrations.NewMigrator(conn).Up(ctx)
	require.NoError(t, err)
	repo := db.NewResultsRepository(conn)

	t.Setenv("MASK_MODE", "none")
	p := newTestPipeline(t, testConfig(t), repo)
	require.NoError(t, p.RunAll(ctx))

	for _, rel := range []string{
		artifacts.ConnCube, artifacts.ConnQC, artifacts.ResidCube, artifacts.ResidEdges,
		artifacts.ResidQC, artifacts.Scores, artifacts.PCAReport, artifacts.TestsTable,
		artifacts.BlockTests, artifacts.EdgeTests, artifacts.TMap, artifacts.EdgeSummary,
		artifacts.SummaryMD, artifacts.SummaryHTML, artifacts.Workbook,
	} {
		assert.True(t, p.Store().Exists(rel), rel)
	}

	m := readManifest(t, p)
	require.Len(t, m.Stages, len(run.Stages))
	assert.NotEmpty(t, m.CohortHash)
	for _, st := range m.Stages {
		assert.Equal(t, run.StatusCompleted, st.Status, string(st.Name))
	}

	cube, err := p.Store().LoadCube(artifacts.ConnCube)
	require.NoError(t, err)
	assert.Equal(t, [3]int{40, 24, 24}, cube.Shape())

	runs, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, m.RunID, runs[0].RunID)
	assert.Equal(t, 40, runs[0].NKept)

	tests, err := repo.GetBlockTests(ctx, m.RunID, ports.TestFilters{})
	require.NoError(t, err)
	// 4 networks: 4 intra and 6 inter blocks
	assert.Len(t, tests, 10)
}

func TestStageRerunKeepsRun(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, testConfig(t), nil)
	for _, st := range []run.StageName{run.StageConnectivity, run.StageRegress, run.StageScores} {
		require.NoError(t, p.Run(ctx, st))
	}
	first := readManifest(t, p)

	require.NoError(t, p.Run(ctx, run.StageScores))
	second := readManifest(t, p)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Len(t, second.Stages, 3)

	require.NoError(t, p.Run(ctx, run.StageConnectivity))
	assert.NotEqual(t, first.RunID, readManifest(t, p).RunID)
}

func TestStageWithoutUpstreamFails(t *testing.T) {
	p := newTestPipeline(t, testConfig(t), nil)
	err := p.Run(context.Background(), run.StageScores)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrArtifactNotFound))

	m := readManifest(t, p)
	rec, ok := m.Stage(run.StageScores)
	require.True(t, ok)
	assert.Equal(t, run.StatusFailed, rec.Status)
	assert.NotEmpty(t, rec.Error)
}

func TestReportSkipsMissingSections(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, testConfig(t), nil)
	require.NoError(t, p.Run(ctx, run.StageConnectivity))
	require.NoError(t, p.Run(ctx, run.StageReport))
	assert.True(t, p.Store().Exists(artifacts.SummaryHTML))
	assert.False(t, p.Store().Exists(artifacts.Workbook))
}

func TestUnknownStage(t *testing.T) {
	p := newTestPipeline(t, testConfig(t), nil)
	assert.Error(t, p.Run(context.Background(), run.StageName("bogus")))
}
