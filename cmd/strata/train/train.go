// Package traincmder provides the train command for fitting the learned
// storage-strategy classifier.
package traincmder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	enginecmder "github.com/papercomputeco/strata/cmd/strata/engine"
	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/dotdir"
	"github.com/papercomputeco/strata/pkg/strategy/model"
	"github.com/papercomputeco/strata/pkg/strategy/training"
)

const defaultModelFile = "classifier.json"

type trainCommander struct {
	flags enginecmder.Flags

	output   string
	perClass int
	history  int
	holdout  float64
	seed     uint64
}

const trainLongDesc string = `Train the storage-strategy classifier.

Fits a nearest-centroid model on synthetic examples drawn from the ranges
each strategy is meant for, optionally combined with the decisions recorded
in the storage catalog. A share of the samples is held out to report
accuracy. The model is written as JSON to --output, or to
strategy.model_path, or to classifier.json in the .strata/ directory.

The engine loads the model at startup when strategy.model_path is set and,
with strategy.watch_model, reloads it whenever the file changes. The model
only overrides the threshold rules when it is more confident than they are.

Examples:
  strata train
  strata train --history 5000 --per-class 500
  strata train --output /var/lib/strata/classifier.json --seed 7`

const trainShortDesc string = "Train the storage-strategy classifier"

func NewTrainCmd() *cobra.Command {
	cmder := &trainCommander{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: trainShortDesc,
		Long:  trainLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := enginecmder.Load(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			return cmder.run(cmd.Context(), env)
		},
	}

	cmder.flags.AddFlags(cmd)
	cmd.Flags().StringVarP(&cmder.output, "output", "o", "", "Where to write the model")
	cmd.Flags().IntVar(&cmder.perClass, "per-class", 250, "Synthetic samples per strategy")
	cmd.Flags().IntVar(&cmder.history, "history", 0, "Also train on up to this many catalog entries")
	cmd.Flags().Float64Var(&cmder.holdout, "holdout", 0.2, "Fraction of samples held out for evaluation")
	cmd.Flags().Uint64Var(&cmder.seed, "seed", 42, "Random seed")

	return cmd
}

func (c *trainCommander) run(ctx context.Context, env *enginecmder.Env) error {
	if c.holdout < 0 || c.holdout >= 1 {
		return fmt.Errorf("--holdout must be in [0, 1), got %v", c.holdout)
	}

	rng := rand.New(rand.NewPCG(c.seed, c.seed^0x9e3779b97f4a7c15))
	samples := training.Synthetic(rng, c.perClass)

	if c.history > 0 {
		hist, err := c.historySamples(ctx, env)
		if err != nil {
			return err
		}
		fmt.Printf("  %s %d samples from catalog history\n", cliui.SuccessMark, len(hist))
		samples = append(samples, hist...)
	}

	train, test := training.Split(rng, samples, c.holdout)
	if need := env.Config.Strategy.MinTrainingSamples; len(train) < need {
		return fmt.Errorf("%d training samples, need at least %d", len(train), need)
	}

	var m *model.CentroidModel
	err := cliui.Step(os.Stdout, fmt.Sprintf("Training on %d samples", len(train)), func() error {
		var err error
		m, err = model.Train(train)
		return err
	})
	if err != nil {
		return err
	}

	if len(test) > 0 {
		fmt.Printf("  %s accuracy %s on %d held-out samples\n",
			cliui.SuccessMark,
			cliui.ValueStyle.Render(fmt.Sprintf("%.1f%%", m.Accuracy(test)*100)),
			len(test),
		)
	}

	path, err := c.outputPath(env)
	if err != nil {
		return err
	}
	if err := m.Save(path); err != nil {
		return err
	}
	fmt.Printf("  %s Saved model to %s\n", cliui.SuccessMark, cliui.DimStyle.Render(path))
	return nil
}

func (c *trainCommander) historySamples(ctx context.Context, env *enginecmder.Env) ([]model.Sample, error) {
	engine, err := env.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = engine.Close(context.WithoutCancel(ctx)) }()

	entries, err := engine.Catalog().Recent(ctx, c.history)
	if err != nil {
		return nil, fmt.Errorf("reading catalog history: %w", err)
	}
	return training.FromHistory(entries), nil
}

func (c *trainCommander) outputPath(env *enginecmder.Env) (string, error) {
	if c.output != "" {
		return filepath.Abs(c.output)
	}
	name := env.Config.Strategy.ModelPath
	if name == "" {
		name = defaultModelFile
	}
	return dotdir.NewManager().File(env.ConfigDir, name)
}
