package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/restframe/internal/config"
	"github.com/banshee-data/restframe/internal/db"
	"github.com/banshee-data/restframe/internal/monitoring"
	"github.com/banshee-data/restframe/internal/ntuple"
	"github.com/banshee-data/restframe/internal/pipeline"
	"github.com/banshee-data/restframe/internal/report"
	"github.com/banshee-data/restframe/internal/version"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dbPath     string
	reportDir  string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "restframe",
		Short:         "Rest-frame B-meson kinematics for semileptonic ntuples",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			monitoring.SetVerbose(o.verbose)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "run configuration file (.json, .yaml or .yml)")
	flags.StringVar(&o.dbPath, "db", "", "SQLite run ledger; runs are not recorded when empty")
	flags.StringVar(&o.reportDir, "report-dir", "", "directory for diagnostic histograms; no report when empty")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newSmearCmd(o), newWeightsCmd(o), newMigrateCmd(o), newRunsCmd(o))
	return cmd
}

func (o *rootOptions) loadConfig() (*config.RunConfig, error) {
	if o.configPath == "" {
		cfg := config.EmptyRunConfig()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadRunConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("Loaded configuration from %s", o.configPath)
	return cfg, nil
}

// jobRun describes one invocation of a tree job.
type jobRun struct {
	command string
	input   string
	aux     string
	output  string
	trees   []string
	src     ntuple.Source
	cfg     *config.RunConfig
}

// buildJob constructs a job wired to the recorder and the observer of the
// current run.
type buildJob func(rec pipeline.Recorder, obs pipeline.Observer) (pipeline.TreeProcessor, error)

// execute runs a job over every tree of r, recording it in the ledger and
// rendering the report when those are enabled.
func (o *rootOptions) execute(ctx context.Context, r jobRun, build buildJob) (err error) {
	var rec pipeline.Recorder = pipeline.NopRecorder{}
	if o.dbPath != "" {
		database, dbErr := db.NewDB(o.dbPath)
		if dbErr != nil {
			return fmt.Errorf("open run ledger: %w", dbErr)
		}
		defer database.Close()

		store := db.NewRunStore(database)
		run := &db.Run{
			Command:    r.command,
			InputPath:  r.input,
			AuxPath:    r.aux,
			OutputPath: r.output,
			ConfigJSON: r.cfg.JSON(),
			Version:    version.String(),
		}
		if err := store.StartRun(ctx, run); err != nil {
			return err
		}
		monitoring.Logf("Recording run %s in %s", run.RunID, o.dbPath)
		rec = db.RunRecorder{Store: store, RunID: run.RunID}

		defer func() {
			// The run context may already be cancelled.
			if ferr := store.FinishRun(context.Background(), run.RunID, err); ferr != nil && err == nil {
				err = ferr
			}
		}()
	}

	var (
		collector *report.Collector
		obs       pipeline.Observer
	)
	if o.reportDir != "" {
		collector = report.NewCollector(r.cfg.GetHistogramBins()).WithWarmup(r.cfg.GetHistogramWarmup())
		obs = collector
	}

	job, err := build(rec, obs)
	if err != nil {
		return err
	}

	sink, err := ntuple.CreateRoot(r.output)
	if err != nil {
		return err
	}
	summaries, runErr := pipeline.Run(ctx, job, r.src, sink, r.trees, rec)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close %s: %w", r.output, err)
	}
	if runErr != nil {
		return runErr
	}
	monitoring.Logf("Wrote %d trees to %s", len(summaries), r.output)

	if collector != nil {
		if err := report.Write(o.reportDir, "restframe "+r.command, collector); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

// treesFlag returns the trees given on the command line, or the configured
// ones when the flag was not set.
func treesFlag(cmd *cobra.Command, trees []string, cfg *config.RunConfig) []string {
	if cmd.Flags().Changed("trees") {
		return trees
	}
	return cfg.GetTrees()
}
