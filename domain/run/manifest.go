package run

import (
	"time"

	"abidenet/domain/core"
)

// Manifest is written to the artifacts root and updated after every stage.
// It is the record the results API and the report read back.
type Manifest struct {
	RunID       core.RunID             `json:"run_id"`
	ConfigHash  core.ConfigHash        `json:"config_hash"`
	Knobs       map[string]interface{} `json:"knobs"`
	CodeVersion string                 `json:"code_version"`
	CreatedAt   core.Timestamp         `json:"created_at"`
	CohortHash  core.CohortHash        `json:"cohort_hash,omitempty"` // set by the connectivity stage
	Stages      []StageRecord          `json:"stages"`
}

// NewManifest starts a manifest for a fresh run
func NewManifest(knobs map[string]interface{}, codeVersion string) *Manifest {
	return &Manifest{
		RunID:       core.NewRunID(),
		ConfigHash:  core.ComputeConfigHash(knobs),
		Knobs:       knobs,
		CodeVersion: codeVersion,
		CreatedAt:   core.Now(),
	}
}

// Fingerprint combines the config hash with the recorded cohort
func (m *Manifest) Fingerprint() RunFingerprint {
	return NewRunFingerprint(m.ConfigHash, m.CohortHash, m.CodeVersion)
}

// Begin records the start of a stage, replacing any earlier record of it
func (m *Manifest) Begin(name StageName) {
	rec := StageRecord{Name: name, Status: StatusPending, StartedAt: core.Now()}
	for i := range m.Stages {
		if m.Stages[i].Name == name {
			m.Stages[i] = rec
			return
		}
	}
	m.Stages = append(m.Stages, rec)
}

// Finish closes a stage with its outputs or the error that stopped it
func (m *Manifest) Finish(name StageName, outputs []string, err error) {
	for i := range m.Stages {
		if m.Stages[i].Name != name {
			continue
		}
		m.Stages[i].FinishedAt = core.Now()
		m.Stages[i].Outputs = outputs
		if err != nil {
			m.Stages[i].Status = StatusFailed
			m.Stages[i].Error = err.Error()
		} else {
			m.Stages[i].Status = StatusCompleted
			m.Stages[i].Error = ""
		}
		return
	}
}

// Stage returns the record of a stage, if it ran
func (m *Manifest) Stage(name StageName) (StageRecord, bool) {
	for _, s := range m.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageRecord{}, false
}

// Duration returns how long a finished stage took
func (r StageRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate checks that the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewValidationError("run_manifest", "run_id cannot be empty")
	}
	if m.ConfigHash == "" {
		return core.NewValidationError("run_manifest", "config_hash cannot be empty")
	}
	if m.CodeVersion == "" {
		return core.NewValidationError("run_manifest", "code_version cannot be empty")
	}
	return nil
}
