package run

import (
	"crypto/sha256"
	"fmt"

	"abidenet/domain/core"
)

// StageName names a pipeline stage; each one reads only the artifacts of the
// stages before it.
type StageName string

const (
	StageConnectivity StageName = "connectivity"
	StageRegress      StageName = "regress"
	StageScores       StageName = "scores"
	StageTests        StageName = "ttest"
	StageEdges        StageName = "edges"
	StageReport       StageName = "report"
)

// Stages lists every stage in execution order
var Stages = []StageName{
	StageConnectivity,
	StageRegress,
	StageScores,
	StageTests,
	StageEdges,
	StageReport,
}

// ParseStageName accepts a known stage name
func ParseStageName(s string) (StageName, error) {
	for _, st := range Stages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: stage %q", core.ErrUnknownOption, s)
}

// StageStatus is the outcome of one stage within a run
type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusCompleted StageStatus = "completed"
	StatusFailed    StageStatus = "failed"
)

// StageRecord tracks one stage execution
type StageRecord struct {
	Name       StageName      `json:"name"`
	Status     StageStatus    `json:"status"`
	StartedAt  core.Timestamp `json:"started_at"`
	FinishedAt core.Timestamp `json:"finished_at"`
	Error      string         `json:"error,omitempty"`
	Outputs    []string       `json:"outputs,omitempty"`
}

// RunFingerprint identifies a run's inputs for replay comparison
type RunFingerprint struct {
	ConfigHash  core.ConfigHash `json:"config_hash"`
	CohortHash  core.CohortHash `json:"cohort_hash"`
	CodeVersion string          `json:"code_version"`
	Fingerprint core.Hash       `json:"fingerprint"` // hash of all above
}

// NewRunFingerprint creates a fingerprint from the determinism parameters
func NewRunFingerprint(configHash core.ConfigHash, cohortHash core.CohortHash, codeVersion string) RunFingerprint {
	data := fmt.Sprintf("config:%s|cohort:%s|code:%s", configHash, cohortHash, codeVersion)
	hash := sha256.Sum256([]byte(data))
	return RunFingerprint{
		ConfigHash:  configHash,
		CohortHash:  cohortHash,
		CodeVersion: codeVersion,
		Fingerprint: core.Hash(fmt.Sprintf("%x", hash)),
	}
}
