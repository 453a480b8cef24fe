package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goope",
		Short: "Off-policy evaluation for contextual-bandit logs",
		Long: `goope estimates the value of an evaluation policy from data logged by a
behavior policy, using IPS, DR, DM, MIPS and the marginalized doubly robust
(MDR) estimator.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(buildEvaluateCmd(), buildVersionCmd())
	return cmd
}

func buildEvaluateCmd() *cobra.Command {
	var opts evaluateOptions

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Estimate policy values for one logged dataset",
		Long: `Estimate policy values for one logged dataset.

The data file is a JSON object with the bandit feedback keys (n_rounds,
n_actions, context, action, reward, action_embed, pi_b, p_e_a and optional
position, pscore, action_context) plus the evaluation policy in action_dist.`,
		Example: `  # Default battery with a random forest reward model
  goope evaluate --data feedback.json

  # Run configuration from YAML, overriding the seed
  goope evaluate --config run.yaml --data feedback.json --seed 7 --output table`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.seedSet = cmd.Flags().Changed("seed")
			opts.foldsSet = cmd.Flags().Changed("folds")
			return runEvaluate(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML run configuration")
	cmd.Flags().StringVarP(&opts.dataPath, "data", "d", "", "Path to JSON bandit feedback")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "json", "Output format (json|table)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Override random_state")
	cmd.Flags().IntVar(&opts.folds, "folds", 0, "Override n_folds")
	cmd.Flags().StringVar(&opts.fittingMethod, "fitting-method", "", "Override fitting_method (normal|iw|mrdr)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Override log_level (debug|info|warn|error)")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the goope version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "goope %s\n", version)
			return err
		},
	}
}
