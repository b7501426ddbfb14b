package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"abidenet/internal/errors"
)

// Config represents the complete application configuration. It is built once
// by the CLI and handed to each component constructor.
type Config struct {
	Paths        PathConfig
	Connectivity ConnectivityConfig
	Regression   RegressionConfig
	Network      NetworkConfig
	Stats        StatsConfig
	Database     DatabaseConfig
	Server       ServerConfig
	LogLevel     string
}

// PathConfig holds file system locations
type PathConfig struct {
	DataDir      string
	TSPattern    string // printf pattern taking the FILE_ID
	Phenotype    string
	Mapping      string
	ArtifactsDir string
}

// ConnectivityConfig holds the assembler policy
type ConnectivityConfig struct {
	MaxBadROIsRatio float64
	DegenerateEps   float64
	FisherEps       float64
	Workers         int
	MaxMeanFD       float64 // 0 disables the motion pre-filter
}

// Covariate is one confound column and how it enters the design matrix
type Covariate struct {
	Name        string
	Categorical bool
}

// RegressionConfig holds the confound model
type RegressionConfig struct {
	Covariates []Covariate
}

// NetworkConfig holds block scoring policy
type NetworkConfig struct {
	Sparsity     float64
	SparsityKeep string // abs | pos | neg
	MaskMode     string // global | subject | none
	ScoreMode    string // mean | pca
	NPCA         int
	AnchorMode   string // signed | abs | group
	Yeo          string // 7 | 17
	PCAReport    bool
}

// StatsConfig holds group testing policy
type StatsConfig struct {
	Alpha        float64
	FDRMethod    string
	UseEqualVar  bool
	Decimals     int
	MinGroupSize int
}

// DatabaseConfig holds the optional results store. An empty URL disables it.
type DatabaseConfig struct {
	Driver string
	URL    string
}

// Enabled reports whether results should be persisted to SQL
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// ServerConfig holds the HTTP listeners
type ServerConfig struct {
	APIPort     string
	MetricsPort string
	GinMode     string
}

const defaultCovariates = "AGE_AT_SCAN:numeric,SEX:categorical,SITE_ID:categorical"

var (
	keepModes   = []string{"abs", "pos", "neg"}
	maskModes   = []string{"global", "subject", "none"}
	scoreModes  = []string{"mean", "pca"}
	anchorModes = []string{"signed", "abs", "group"}
	yeoModes    = []string{"7", "17"}
	fdrMethods  = []string{"fdr_bh", "fdr_by", "bonferroni", "holm"}
	dbDrivers   = []string{"postgres", "sqlite"}
)

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	covariates, err := ParseCovariates(getEnvOrDefault("COVARIATES", defaultCovariates))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load regression configuration")
	}

	config := &Config{
		Paths: PathConfig{
			DataDir:      getEnvOrDefault("ABIDE_DATA_DIR", "./data/abide"),
			TSPattern:    getEnvOrDefault("ABIDE_TS_PATTERN", "%s_rois_cc400.1D"),
			Phenotype:    getEnvOrDefault("ABIDE_PHENO_FILE", "./data/Phenotypic_V1_0b_preprocessed1.csv"),
			Mapping:      getEnvOrDefault("ABIDE_MAPPING_FILE", "./data/roi_to_yeo.csv"),
			ArtifactsDir: getEnvOrDefault("ABIDE_ARTIFACTS_DIR", "./artifacts"),
		},
		Connectivity: ConnectivityConfig{
			MaxBadROIsRatio: getEnvFloatOrDefault("MAX_BAD_ROIS_RATIO", 0.15),
			DegenerateEps:   getEnvFloatOrDefault("DEGENERATE_EPS", 1e-8),
			FisherEps:       getEnvFloatOrDefault("FISHER_EPS", 1e-6),
			Workers:         getEnvIntOrDefault("WORKERS", runtime.GOMAXPROCS(0)),
			MaxMeanFD:       getEnvFloatOrDefault("MAX_MEAN_FD", 0),
		},
		Regression: RegressionConfig{Covariates: covariates},
		Network: NetworkConfig{
			Sparsity:     getEnvFloatOrDefault("SPARSITY", 0.2),
			SparsityKeep: getEnvOrDefault("SPARSITY_KEEP", "abs"),
			MaskMode:     getEnvOrDefault("MASK_MODE", "global"),
			ScoreMode:    getEnvOrDefault("SCORE_MODE", "pca"),
			NPCA:         getEnvIntOrDefault("N_PCA", 3),
			AnchorMode:   getEnvOrDefault("ANCHOR_MODE", "signed"),
			Yeo:          getEnvOrDefault("YEO", "7"),
			PCAReport:    getEnvBoolOrDefault("PCA_REPORT", true),
		},
		Stats: StatsConfig{
			Alpha:        getEnvFloatOrDefault("ALPHA", 0.05),
			FDRMethod:    getEnvOrDefault("FDR_METHOD", "fdr_bh"),
			UseEqualVar:  getEnvBoolOrDefault("USE_EQUAL_VAR", false),
			Decimals:     getEnvIntOrDefault("DECIMALS", 4),
			MinGroupSize: getEnvIntOrDefault("MIN_GROUP_SIZE", 3),
		},
		Database: DatabaseConfig{
			Driver: getEnvOrDefault("DATABASE_DRIVER", "sqlite"),
			URL:    os.Getenv("DATABASE_URL"),
		},
		Server: ServerConfig{
			APIPort:     getEnvOrDefault("API_PORT", "8080"),
			MetricsPort: getEnvOrDefault("METRICS_PORT", "9090"),
			GinMode:     getEnvOrDefault("GIN_MODE", "release"),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// Validate rejects out-of-range knobs. The CLI calls it again after flags
// have been applied.
func (c *Config) Validate() error {
	conn := c.Connectivity
	if conn.MaxBadROIsRatio < 0 || conn.MaxBadROIsRatio > 1 {
		return errors.ConfigInvalid(fmt.Sprintf("MAX_BAD_ROIS_RATIO must be in [0,1], got %g", conn.MaxBadROIsRatio))
	}
	if conn.DegenerateEps <= 0 {
		return errors.ConfigInvalid("DEGENERATE_EPS must be positive")
	}
	if conn.FisherEps <= 0 || conn.FisherEps >= 1 {
		return errors.ConfigInvalid("FISHER_EPS must be in (0,1)")
	}
	if conn.Workers < 1 {
		return errors.ConfigInvalid("WORKERS must be at least 1")
	}
	if conn.MaxMeanFD < 0 {
		return errors.ConfigInvalid("MAX_MEAN_FD cannot be negative")
	}
	if c.Paths.TSPattern == "" || !strings.Contains(c.Paths.TSPattern, "%s") {
		return errors.ConfigInvalid("ABIDE_TS_PATTERN must contain %s")
	}

	n := c.Network
	if n.Sparsity < 0 || n.Sparsity > 1 {
		return errors.ConfigInvalid(fmt.Sprintf("SPARSITY must be in [0,1], got %g", n.Sparsity))
	}
	if n.NPCA < 1 {
		return errors.ConfigInvalid("N_PCA must be at least 1")
	}
	if err := oneOf("SPARSITY_KEEP", n.SparsityKeep, keepModes); err != nil {
		return err
	}
	if err := oneOf("MASK_MODE", n.MaskMode, maskModes); err != nil {
		return err
	}
	if err := oneOf("SCORE_MODE", n.ScoreMode, scoreModes); err != nil {
		return err
	}
	if err := oneOf("ANCHOR_MODE", n.AnchorMode, anchorModes); err != nil {
		return err
	}
	if err := oneOf("YEO", n.Yeo, yeoModes); err != nil {
		return err
	}

	s := c.Stats
	if s.Alpha <= 0 || s.Alpha >= 1 {
		return errors.ConfigInvalid("ALPHA must be in (0,1)")
	}
	if err := oneOf("FDR_METHOD", s.FDRMethod, fdrMethods); err != nil {
		return err
	}
	if s.Decimals < 0 || s.Decimals > 12 {
		return errors.ConfigInvalid("DECIMALS must be in [0,12]")
	}
	if s.MinGroupSize < 2 {
		return errors.ConfigInvalid("MIN_GROUP_SIZE must be at least 2")
	}

	if c.Database.Enabled() {
		if err := oneOf("DATABASE_DRIVER", c.Database.Driver, dbDrivers); err != nil {
			return err
		}
	}
	return nil
}

// Knobs returns every policy value that changes results, for fingerprinting
func (c *Config) Knobs() map[string]interface{} {
	covs := make([]string, len(c.Regression.Covariates))
	for i, cv := range c.Regression.Covariates {
		covs[i] = cv.String()
	}
	return map[string]interface{}{
		"max_bad_rois_ratio": c.Connectivity.MaxBadROIsRatio,
		"degenerate_eps":     c.Connectivity.DegenerateEps,
		"fisher_eps":         c.Connectivity.FisherEps,
		"max_mean_fd":        c.Connectivity.MaxMeanFD,
		"covariates":         strings.Join(covs, ","),
		"sparsity":           c.Network.Sparsity,
		"sparsity_keep":      c.Network.SparsityKeep,
		"mask_mode":          c.Network.MaskMode,
		"score_mode":         c.Network.ScoreMode,
		"n_pca":              c.Network.NPCA,
		"anchor_mode":        c.Network.AnchorMode,
		"yeo":                c.Network.Yeo,
		"alpha":              c.Stats.Alpha,
		"fdr_method":         c.Stats.FDRMethod,
		"use_equal_var":      c.Stats.UseEqualVar,
		"min_group_size":     c.Stats.MinGroupSize,
	}
}

func (c Covariate) String() string {
	if c.Categorical {
		return c.Name + ":categorical"
	}
	return c.Name + ":numeric"
}

// ParseCovariates reads "NAME:numeric,NAME:categorical". A bare name is numeric.
func ParseCovariates(s string) ([]Covariate, error) {
	var out []Covariate
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, kind, _ := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		kind = strings.ToLower(strings.TrimSpace(kind))
		if name == "" {
			return nil, errors.ConfigInvalid(fmt.Sprintf("empty covariate name in %q", s))
		}
		if seen[name] {
			return nil, errors.ConfigInvalid(fmt.Sprintf("duplicate covariate %q", name))
		}
		seen[name] = true
		switch kind {
		case "", "numeric", "num":
			out = append(out, Covariate{Name: name})
		case "categorical", "cat":
			out = append(out, Covariate{Name: name, Categorical: true})
		default:
			return nil, errors.ConfigInvalid(fmt.Sprintf("covariate %q has unknown kind %q", name, kind))
		}
	}
	return out, nil
}

func oneOf(key, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return errors.ConfigInvalid(fmt.Sprintf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value))
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
