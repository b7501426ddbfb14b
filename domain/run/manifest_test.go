package run

import (
	"errors"
	"testing"

	"abidenet/domain/core"
)

func TestRunFingerprint_Deterministic(t *testing.T) {
	configHash := core.ConfigHash("cfg")
	cohortHash := core.CohortHash("cohort")

	fp1 := NewRunFingerprint(configHash, cohortHash, "1.0.0")
	fp2 := NewRunFingerprint(configHash, cohortHash, "1.0.0")

	if fp1.Fingerprint != fp2.Fingerprint {
		t.Errorf("Fingerprints not identical: %s vs %s", fp1.Fingerprint, fp2.Fingerprint)
	}
	if fp1.CohortHash != cohortHash {
		t.Errorf("CohortHash mismatch: %s vs %s", fp1.CohortHash, cohortHash)
	}
}

func TestRunFingerprint_Unique(t *testing.T) {
	base := NewRunFingerprint("cfg", "cohort", "1.0.0")

	testCases := []struct {
		name string
		fp   RunFingerprint
	}{
		{"different config", NewRunFingerprint("cfg2", "cohort", "1.0.0")},
		{"different cohort", NewRunFingerprint("cfg", "cohort2", "1.0.0")},
		{"different code", NewRunFingerprint("cfg", "cohort", "1.0.1")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.fp.Fingerprint == base.Fingerprint {
				t.Errorf("%s: fingerprint should differ from base", tc.name)
			}
		})
	}
}

func TestManifestStageLifecycle(t *testing.T) {
	m := NewManifest(map[string]interface{}{"sparsity": 0.2}, "dev")
	if err := m.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	m.Begin(StageConnectivity)
	m.Finish(StageConnectivity, []string{"connectivity/conn.f32"}, nil)
	m.Begin(StageRegress)
	m.Finish(StageRegress, nil, errors.New("missing covariate"))

	rec, ok := m.Stage(StageConnectivity)
	if !ok || rec.Status != StatusCompleted {
		t.Fatalf("connectivity stage = %+v, want completed", rec)
	}
	rec, ok = m.Stage(StageRegress)
	if !ok || rec.Status != StatusFailed || rec.Error != "missing covariate" {
		t.Fatalf("regress stage = %+v, want failed with error", rec)
	}

	// a retry replaces the failed record
	m.Begin(StageRegress)
	m.Finish(StageRegress, nil, nil)
	if len(m.Stages) != 2 {
		t.Fatalf("expected 2 stage records, got %d", len(m.Stages))
	}
	rec, _ = m.Stage(StageRegress)
	if rec.Status != StatusCompleted || rec.Error != "" {
		t.Fatalf("retried regress stage = %+v, want completed", rec)
	}
}

func TestParseStageName(t *testing.T) {
	if _, err := ParseStageName("scores"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseStageName("plot"); !errors.Is(err, core.ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
}
