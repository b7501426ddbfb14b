package main

import (
	"abidenet/internal/config"

	"github.com/spf13/pflag"
)

func registerFlags(fs *pflag.FlagSet) {
	fs.String("data-dir", "", "directory holding the per-subject .1D time series")
	fs.String("pheno", "", "phenotype CSV")
	fs.String("mapping", "", "ROI to network mapping CSV")
	fs.String("artifacts", "", "artifact output directory")

	fs.Float64("max-bad-rois-ratio", 0, "reject a subject when more than this fraction of ROIs is degenerate")
	fs.Int("workers", 0, "parallel workers")
	fs.Float64("sparsity", 0, "fraction of edges kept by the sparsity mask")
	fs.String("keep", "", "sign of edges the mask keeps: abs, pos or neg")
	fs.String("mask-mode", "", "global, subject or none")
	fs.String("score-mode", "", "mean or pca")
	fs.Int("n-pca", 0, "principal components combined into a PCA score")
	fs.String("anchor-mode", "", "PCA sign anchor: signed, abs or group")
	fs.String("yeo", "", "Yeo parcellation: 7 or 17")
	fs.Bool("pca-report", false, "write the per-block PCA diagnostics table")
	fs.Float64("alpha", 0, "significance level")
	fs.String("fdr-method", "", "fdr_bh, fdr_by, bonferroni or holm")
	fs.Bool("equal-var", false, "use Student's rather than Welch's t-test")
	fs.Int("decimals", 0, "decimals in the formatted results table")
}

// applyFlags copies explicitly set flags over the environment configuration
func applyFlags(cfg *config.Config, fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"data-dir":    &cfg.Paths.DataDir,
		"pheno":       &cfg.Paths.Phenotype,
		"mapping":     &cfg.Paths.Mapping,
		"artifacts":   &cfg.Paths.ArtifactsDir,
		"keep":        &cfg.Network.SparsityKeep,
		"mask-mode":   &cfg.Network.MaskMode,
		"score-mode":  &cfg.Network.ScoreMode,
		"anchor-mode": &cfg.Network.AnchorMode,
		"yeo":         &cfg.Network.Yeo,
		"fdr-method":  &cfg.Stats.FDRMethod,
	}
	floats := map[string]*float64{
		"max-bad-rois-ratio": &cfg.Connectivity.MaxBadROIsRatio,
		"sparsity":           &cfg.Network.Sparsity,
		"alpha":              &cfg.Stats.Alpha,
	}
	ints := map[string]*int{
		"workers":  &cfg.Connectivity.Workers,
		"n-pca":    &cfg.Network.NPCA,
		"decimals": &cfg.Stats.Decimals,
	}
	bools := map[string]*bool{
		"pca-report": &cfg.Network.PCAReport,
		"equal-var":  &cfg.Stats.UseEqualVar,
	}

	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		name := f.Name
		if dst, ok := strs[name]; ok {
			*dst, err = fs.GetString(name)
		} else if dst, ok := floats[name]; ok {
			*dst, err = fs.GetFloat64(name)
		} else if dst, ok := ints[name]; ok {
			*dst, err = fs.GetInt(name)
		} else if dst, ok := bools[name]; ok {
			*dst, err = fs.GetBool(name)
		}
	})
	return err
}
