package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"abidenet/adapters/artifacts"
	"abidenet/adapters/db"
	"abidenet/adapters/db/migrations"
	"abidenet/domain/run"
	"abidenet/internal/api"
	"abidenet/internal/testkit"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var stageHelp = map[run.StageName]string{
	run.StageConnectivity: "Compute Fisher-z connectivity matrices with subject QC",
	run.StageRegress:      "Regress covariates out of every edge",
	run.StageScores:       "Aggregate residual edges into network block scores",
	run.StageTests:        "Compare ASD and TDC block scores with FDR control",
	run.StageEdges:        "Run edge-wise group tests and network enrichment",
	run.StageReport:       "Write the summary report and results workbook",
}

// stageCommands returns one subcommand per pipeline stage
func (c *cli) stageCommands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(run.Stages))
	for _, st := range run.Stages {
		st := st
		cmds = append(cmds, &cobra.Command{
			Use:   string(st),
			Short: stageHelp[st],
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				p, closeDB, err := c.pipeline(cmd.Context())
				if err != nil {
					return err
				}
				defer closeDB()
				return p.Run(cmd.Context(), st)
			},
		})
	}
	return cmds
}

func (c *cli) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			p, closeDB, err := c.pipeline(ctx)
			if err != nil {
				return err
			}
			defer closeDB()
			if err := p.RunAll(ctx); err != nil {
				return err
			}
			c.logger.Info("all stages complete; report at %s", p.Store().Path(artifacts.SummaryHTML))
			return nil
		},
	}
}

func (c *cli) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results over HTTP with a separate metrics listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, closeDB, err := c.openResults(ctx)
			if err != nil {
				return err
			}
			defer closeDB()
			if conn == nil {
				return errors.New("serve needs DATABASE_URL")
			}

			srv := c.cfg.Server
			apiServer := api.NewServer(db.NewResultsRepository(conn), c.logger, srv.GinMode)
			servers := []*http.Server{
				{Addr: ":" + srv.APIPort, Handler: apiServer.Handler(), ReadHeaderTimeout: 10 * time.Second},
				{Addr: ":" + srv.MetricsPort, Handler: c.metrics.Router(), ReadHeaderTimeout: 10 * time.Second},
			}

			g, gctx := errgroup.WithContext(ctx)
			for _, s := range servers {
				s := s
				g.Go(func() error {
					c.logger.Info("listening on %s", s.Addr)
					if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				for _, s := range servers {
					if err := s.Shutdown(shutdownCtx); err != nil {
						c.logger.Warn("shutdown %s: %v", s.Addr, err)
					}
				}
				return nil
			})
			return g.Wait()
		},
	}
}

func (c *cli) newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the results database schema",
	}
	withMigrator := func(fn func(ctx context.Context, m *migrations.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			conn, closeDB, err := c.openResults(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()
			if conn == nil {
				return errors.New("migrate needs DATABASE_URL")
			}
			return fn(cmd.Context(), migrations.NewMigrator(conn))
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(ctx context.Context, m *migrations.Migrator) error {
				applied, err := m.Up(ctx)
				for _, v := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", v)
				}
				if err == nil && len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				}
				return err
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(ctx context.Context, m *migrations.Migrator) error {
				status, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range status {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", s.Version, state)
				}
				return nil
			}),
		},
	)
	return cmd
}

func (c *cli) newSynthCmd() *cobra.Command {
	cfg := testkit.DefaultCohortConfig()
	var out string
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic cohort laid out like the ABIDE inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cohort := testkit.NewCohortGenerator(cfg).Generate()
			dataDir := filepath.Join(out, "timeseries")
			pheno := filepath.Join(out, "phenotype.csv")
			mappingPath := filepath.Join(out, "roi_to_yeo.csv")
			if err := cohort.WriteFiles(dataDir, c.cfg.Paths.TSPattern, pheno, mappingPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d subjects with %d ROIs\n", len(cohort.Subjects), cfg.ROIs)
			fmt.Fprintf(cmd.OutOrStdout(), "ABIDE_DATA_DIR=%s\nABIDE_PHENO_FILE=%s\nABIDE_MAPPING_FILE=%s\n", dataDir, pheno, mappingPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "synthetic", "output directory")
	cmd.Flags().IntVar(&cfg.SubjectsPerGroup, "subjects-per-group", cfg.SubjectsPerGroup, "subjects per diagnostic group")
	cmd.Flags().IntVar(&cfg.ROIs, "rois", cfg.ROIs, "ROIs per subject")
	cmd.Flags().IntVar(&cfg.Timepoints, "timepoints", cfg.Timepoints, "timepoints per series")
	cmd.Flags().Float64Var(&cfg.EffectSize, "effect-size", cfg.EffectSize, "shared ASD signal between the effect networks")
	cmd.Flags().Float64Var(&cfg.ConstantROIFraction, "constant-roi-fraction", 0, "fraction of subjects with one flat ROI")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	return cmd
}
