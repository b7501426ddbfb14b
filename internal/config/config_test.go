package config

import (
	"testing"

	"abidenet/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.15, cfg.Connectivity.MaxBadROIsRatio)
	assert.Equal(t, 1e-6, cfg.Connectivity.FisherEps)
	assert.Equal(t, "%s_rois_cc400.1D", cfg.Paths.TSPattern)
	assert.Equal(t, "pca", cfg.Network.ScoreMode)
	assert.Equal(t, "signed", cfg.Network.AnchorMode)
	assert.Equal(t, 3, cfg.Network.NPCA)
	assert.Equal(t, "fdr_bh", cfg.Stats.FDRMethod)
	assert.False(t, cfg.Database.Enabled())
	require.Len(t, cfg.Regression.Covariates, 3)
	assert.Equal(t, Covariate{Name: "AGE_AT_SCAN"}, cfg.Regression.Covariates[0])
	assert.True(t, cfg.Regression.Covariates[1].Categorical)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SPARSITY", "0.1")
	t.Setenv("SCORE_MODE", "mean")
	t.Setenv("MAX_BAD_ROIS_RATIO", "0.3")
	t.Setenv("COVARIATES", "AGE_AT_SCAN, SITE_ID:cat")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Network.Sparsity)
	assert.Equal(t, "mean", cfg.Network.ScoreMode)
	assert.Equal(t, 0.3, cfg.Connectivity.MaxBadROIsRatio)
	assert.Equal(t, []Covariate{{Name: "AGE_AT_SCAN"}, {Name: "SITE_ID", Categorical: true}}, cfg.Regression.Covariates)
}

func TestLoadRejectsBadKnobs(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SPARSITY", "1.5"},
		{"SPARSITY_KEEP", "magnitude"},
		{"MASK_MODE", "per-roi"},
		{"ANCHOR_MODE", "sign"},
		{"N_PCA", "0"},
		{"FDR_METHOD", "storey"},
		{"MAX_BAD_ROIS_RATIO", "-0.1"},
		{"ABIDE_TS_PATTERN", "rois.1D"},
		{"COVARIATES", "AGE:ordinal"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestDatabaseDriverCheckedOnlyWhenEnabled(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mysql")
	_, err := Load()
	require.NoError(t, err)

	t.Setenv("DATABASE_URL", "abidenet.db")
	_, err = Load()
	require.Error(t, err)
}

func TestKnobsChangeWithPolicy(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	k1 := cfg.Knobs()
	cfg.Network.AnchorMode = "abs"
	k2 := cfg.Knobs()
	assert.NotEqual(t, k1["anchor_mode"], k2["anchor_mode"])
	assert.Equal(t, "AGE_AT_SCAN:numeric,SEX:categorical,SITE_ID:categorical", k1["covariates"])
}
