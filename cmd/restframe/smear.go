package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/restframe/internal/kinematics"
	"github.com/banshee-data/restframe/internal/ntuple"
	"github.com/banshee-data/restframe/internal/pipeline"
	"github.com/banshee-data/restframe/internal/smear"
	"github.com/banshee-data/restframe/internal/weights"
)

type smearFlags struct {
	input   string
	aux     string
	output  string
	trees   []string
	fitLin  float64
	fitQuad float64
}

func newSmearCmd(o *rootOptions) *cobra.Command {
	f := &smearFlags{}
	cmd := &cobra.Command{
		Use:   "smear",
		Short: "Recompute observables with and without a smeared flight direction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmear(cmd, o, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.input, "input", "i", "", "input ntuple")
	flags.StringVarP(&f.aux, "aux", "x", "", "auxiliary ntuple holding the delta-theta samples")
	flags.StringVarP(&f.output, "output", "o", "", "output ntuple")
	flags.StringSliceVarP(&f.trees, "trees", "t", nil, "trees to process (default from configuration)")
	flags.Float64Var(&f.fitLin, "fitLin", 0.105, "linear coefficient of the smear model")
	flags.Float64Var(&f.fitQuad, "fitQuad", 6.29, "quadratic coefficient of the smear model")
	for _, name := range []string{"input", "aux", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runSmear(cmd *cobra.Command, o *rootOptions, f *smearFlags) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("fitLin") {
		cfg.SetFitLin(f.fitLin)
	}
	if cmd.Flags().Changed("fitQuad") {
		cfg.SetFitQuad(f.fitQuad)
	}
	// Overrides bypass the file validation.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	policy, err := pipeline.ParsePolicy(cfg.GetDegeneratePolicy())
	if err != nil {
		return err
	}
	conv, err := weights.ParseConvention(cfg.GetDebugWeightConvention())
	if err != nil {
		return err
	}

	in, err := ntuple.OpenRoot(f.input)
	if err != nil {
		return err
	}
	defer in.Close()

	aux, err := ntuple.OpenRoot(f.aux)
	if err != nil {
		return err
	}
	defer aux.Close()

	var filter *smear.Range
	if cfg.GetPoolFilter() {
		filter = &smear.Range{Min: cfg.GetPoolFilterMin(), Max: cfg.GetPoolFilterMax()}
	}
	pool, err := pipeline.LoadAnglePool(aux, cfg.GetPoolTree(), cfg.GetPoolBranch(), filter)
	if err != nil {
		return err
	}

	r := jobRun{
		command: "smear",
		input:   f.input,
		aux:     f.aux,
		output:  f.output,
		trees:   treesFlag(cmd, f.trees, cfg),
		src:     in,
		cfg:     cfg,
	}
	return o.execute(cmd.Context(), r, func(rec pipeline.Recorder, obs pipeline.Observer) (pipeline.TreeProcessor, error) {
		job, err := pipeline.NewSmearJob(pipeline.SmearOptions{
			Pool:     pool,
			Seeds:    smear.Seeds{Draw: cfg.GetDrawSeed(), Sign: cfg.GetSignSeed()},
			FitLin:   cfg.GetFitLin(),
			FitQuad:  cfg.GetFitQuad(),
			Variants: cfg.GetSmearVariants(),
			Debug:    weights.Generator{Name: "debug", Coeff: cfg.GetDebugWeightCoeff(), Convention: conv},
			Solver:   kinematics.Solver{MinAbsCosZ: cfg.GetMinAbsCosZ(), MinRecoMass: cfg.GetMinRecoMass()},
			Policy:   policy,
			Sentinel: cfg.GetSentinel(),
			Recorder: rec,
			Observer: obs,
		})
		if err != nil {
			return nil, fmt.Errorf("smear job: %w", err)
		}
		return job, nil
	})
}
