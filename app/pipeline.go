// Package app runs the analysis stages. Each stage reads only artifacts
// written by earlier stages, so any one of them can be rerun on its own.
package app

import (
	"context"
	"fmt"
	"time"

	"abidenet/adapters/artifacts"
	"abidenet/domain/core"
	"abidenet/domain/run"
	"abidenet/domain/subject"
	"abidenet/internal"
	"abidenet/internal/config"
	apperrors "abidenet/internal/errors"
	"abidenet/internal/metrics"
	"abidenet/ports"
)

// CodeVersion is stamped into every manifest; the CLI overrides it at link time
var CodeVersion = "dev"

// Deps are the collaborators a pipeline needs. Results may be nil, which
// disables SQL persistence.
type Deps struct {
	Reader    ports.TimeSeriesReader
	Phenotype ports.PhenotypeSource
	Mapping   ports.MappingSource
	Results   ports.ResultsWriter
	Metrics   *metrics.Metrics
	Logger    *internal.Logger
}

// Pipeline owns one artifact tree and the configuration applied to it
type Pipeline struct {
	cfg   *config.Config
	store *artifacts.Store
	deps  Deps
	log   *internal.Logger
}

// New creates a pipeline over cfg.Paths.ArtifactsDir
func New(cfg *config.Config, deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = internal.NewNopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &Pipeline{
		cfg:   cfg,
		store: artifacts.NewStore(cfg.Paths.ArtifactsDir),
		deps:  deps,
		log:   deps.Logger,
	}
}

// Store exposes the artifact tree
func (p *Pipeline) Store() *artifacts.Store {
	return p.store
}

// RunAll executes every stage in order and stops at the first failure
func (p *Pipeline) RunAll(ctx context.Context) error {
	for _, st := range run.Stages {
		if err := p.Run(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// Run executes one stage and records it in the manifest
func (p *Pipeline) Run(ctx context.Context, name run.StageName) error {
	fn, ok := map[run.StageName]func(context.Context, *run.Manifest) ([]string, error){
		run.StageConnectivity: p.connectivity,
		run.StageRegress:      p.regress,
		run.StageScores:       p.scores,
		run.StageTests:        p.ttest,
		run.StageEdges:        p.edges,
		run.StageReport:       p.report,
	}[name]
	if !ok {
		return apperrors.InvalidInput(fmt.Sprintf("unknown stage %q", name))
	}

	m, err := p.manifest(name)
	if err != nil {
		return err
	}
	log := p.log.With("stage", string(name))
	log.Info("starting, run %s config %s", m.RunID, core.Hash(m.ConfigHash).Short())

	m.Begin(name)
	if err := p.saveManifest(m); err != nil {
		return err
	}
	start := time.Now()
	outputs, err := fn(ctx, m)
	elapsed := time.Since(start)
	m.Finish(name, outputs, err)
	p.deps.Metrics.ObserveStage(string(name), elapsed, err)
	if serr := p.saveManifest(m); serr != nil && err == nil {
		err = serr
	}
	if err != nil {
		log.Error("failed after %s: %v", elapsed.Round(time.Millisecond), err)
		return apperrors.Wrapf(err, "stage %s", name)
	}
	log.Info("done in %s, %d artifacts written", elapsed.Round(time.Millisecond), len(outputs))
	return nil
}

// manifest starts a new run for the first stage and continues the recorded
// one otherwise. Changed knobs are recorded with a warning.
func (p *Pipeline) manifest(name run.StageName) (*run.Manifest, error) {
	knobs := p.cfg.Knobs()
	if name == run.StageConnectivity || !p.store.Exists(artifacts.ManifestFile) {
		return run.NewManifest(knobs, CodeVersion), nil
	}
	var m run.Manifest
	if err := p.store.ReadJSON(artifacts.ManifestFile, &m); err != nil {
		return nil, apperrors.Wrap(err, "failed to read run manifest")
	}
	if hash := core.ComputeConfigHash(knobs); hash != m.ConfigHash {
		p.log.Warn("configuration changed since run %s started (%s -> %s); earlier stages used the old knobs",
			m.RunID, core.Hash(m.ConfigHash).Short(), core.Hash(hash).Short())
		m.ConfigHash = hash
		m.Knobs = knobs
	}
	m.CodeVersion = CodeVersion
	return &m, nil
}

func (p *Pipeline) saveManifest(m *run.Manifest) error {
	if err := p.store.WriteJSON(artifacts.ManifestFile, m); err != nil {
		return apperrors.Wrap(err, "failed to write run manifest")
	}
	return nil
}

// groupCounts tallies ASD and TDC
func groupCounts(subs []subject.Subject) (asd, tdc int) {
	for _, s := range subs {
		switch s.Diagnosis {
		case subject.DiagnosisASD:
			asd++
		case subject.DiagnosisTDC:
			tdc++
		}
	}
	return asd, tdc
}

// warnSmallGroups flags a retained sample below the per-test floor
func (p *Pipeline) warnSmallGroups(where string, subs []subject.Subject) {
	asd, tdc := groupCounts(subs)
	if floor := p.cfg.Stats.MinGroupSize; asd < floor || tdc < floor {
		p.log.Warn("%s: only %d ASD and %d TDC subjects remain (minimum per group %d); block tests will be skipped",
			where, asd, tdc, floor)
	}
}
