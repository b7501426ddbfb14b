package main

import (
	"testing"

	"abidenet/internal/config"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFlagsOnlyOverridesSetFlags(t *testing.T) {
	t.Setenv("SPARSITY", "0.3")
	t.Setenv("N_PCA", "2")
	cfg, err := config.Load()
	require.NoError(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	registerFlags(fs)
	require.NoError(t, fs.Parse([]string{"--score-mode=mean", "--n-pca=5", "--equal-var"}))
	require.NoError(t, applyFlags(cfg, fs))

	assert.Equal(t, "mean", cfg.Network.ScoreMode)
	assert.Equal(t, 5, cfg.Network.NPCA)
	assert.True(t, cfg.Stats.UseEqualVar)
	assert.Equal(t, 0.3, cfg.Network.Sparsity)
	assert.Equal(t, "global", cfg.Network.MaskMode)
}

func TestApplyFlagsRejectsBadValuesOnValidate(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	registerFlags(fs)
	require.NoError(t, fs.Parse([]string{"--mask-mode=sometimes"}))
	require.NoError(t, applyFlags(cfg, fs))
	assert.Error(t, cfg.Validate())
}
