package main

import (
	"github.com/spf13/cobra"

	"github.com/banshee-data/restframe/internal/ntuple"
	"github.com/banshee-data/restframe/internal/pipeline"
	"github.com/banshee-data/restframe/internal/weights"
)

type weightsFlags struct {
	input  string
	output string
	trees  []string
}

func newWeightsCmd(o *rootOptions) *cobra.Command {
	f := &weightsFlags{}
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Derive flight-direction variation weights from truth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeights(cmd, o, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.input, "input", "i", "", "input ntuple with truth momenta")
	flags.StringVarP(&f.output, "output", "o", "", "output ntuple")
	flags.StringSliceVarP(&f.trees, "trees", "t", nil, "trees to process (default from configuration)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runWeights(cmd *cobra.Command, o *rootOptions, f *weightsFlags) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	policy, err := pipeline.ParsePolicy(cfg.GetDegeneratePolicy())
	if err != nil {
		return err
	}
	conv, err := weights.ParseConvention(cfg.GetScaleWeightConvention())
	if err != nil {
		return err
	}

	in, err := ntuple.OpenRoot(f.input)
	if err != nil {
		return err
	}
	defer in.Close()

	r := jobRun{
		command: "weights",
		input:   f.input,
		output:  f.output,
		trees:   treesFlag(cmd, f.trees, cfg),
		src:     in,
		cfg:     cfg,
	}
	return o.execute(cmd.Context(), r, func(rec pipeline.Recorder, obs pipeline.Observer) (pipeline.TreeProcessor, error) {
		return pipeline.NewWeightsJob(pipeline.WeightsOptions{
			Generator: weights.Generator{Name: "scale", Coeff: cfg.GetScaleWeightCoeff(), Convention: conv},
			Policy:    policy,
			Sentinel:  cfg.GetSentinel(),
			Recorder:  rec,
			Observer:  obs,
		}), nil
	})
}
