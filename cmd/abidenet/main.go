// Command abidenet runs the ABIDE network connectivity pipeline stage by
// stage and serves stored results.
package main

import (
	"context"
	"fmt"
	"os"

	"abidenet/adapters/db"
	"abidenet/adapters/mapping"
	"abidenet/adapters/phenotype"
	"abidenet/adapters/timeseries"
	"abidenet/app"
	"abidenet/internal"
	"abidenet/internal/config"
	"abidenet/internal/metrics"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// cli carries state shared by every subcommand once the root pre-run has loaded it
type cli struct {
	cfg     *config.Config
	logger  *internal.Logger
	metrics *metrics.Metrics

	envFile  string
	logLevel string
}

func main() {
	c := &cli{}
	root := &cobra.Command{
		Use:           "abidenet",
		Short:         "Network-level connectivity analysis of ABIDE resting-state data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd.Flags())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	registerFlags(root.PersistentFlags())
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file read before the environment")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "ERROR, WARN, INFO, DEBUG or TRACE (overrides LOG_LEVEL)")

	root.AddCommand(c.stageCommands()...)
	root.AddCommand(
		c.newRunCmd(),
		c.newServeCmd(),
		c.newMigrateCmd(),
		c.newSynthCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// load reads .env, then the environment, then applies explicitly set flags
func (c *cli) load(flags *pflag.FlagSet) error {
	if err := godotenv.Load(c.envFile); err != nil && flags.Changed("env-file") {
		return fmt.Errorf("failed to read %s: %w", c.envFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, flags); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	c.cfg = cfg
	c.logger = internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	c.metrics = metrics.New()
	return nil
}

// openResults connects the results database when one is configured. The
// returned closer is never nil.
func (c *cli) openResults(ctx context.Context) (*sqlx.DB, func(), error) {
	if !c.cfg.Database.Enabled() {
		return nil, func() {}, nil
	}
	conn, err := db.Open(ctx, c.cfg.Database.Driver, c.cfg.Database.URL)
	if err != nil {
		return nil, func() {}, err
	}
	return conn, func() { conn.Close() }, nil
}

// pipeline wires the file-backed sources and, if configured, the results store
func (c *cli) pipeline(ctx context.Context) (*app.Pipeline, func(), error) {
	conn, closeDB, err := c.openResults(ctx)
	if err != nil {
		return nil, nil, err
	}
	deps := app.Deps{
		Reader:    timeseries.NewReader(c.cfg.Paths.DataDir, c.cfg.Paths.TSPattern),
		Phenotype: phenotype.NewSource(c.cfg.Paths.Phenotype, c.cfg.Connectivity.MaxMeanFD, c.logger),
		Mapping:   mapping.NewSource(c.cfg.Paths.Mapping, c.cfg.Network.Yeo, c.logger),
		Metrics:   c.metrics,
		Logger:    c.logger,
	}
	if conn != nil {
		deps.Results = db.NewResultsRepository(conn)
	}
	return app.New(c.cfg, deps), closeDB, nil
}
