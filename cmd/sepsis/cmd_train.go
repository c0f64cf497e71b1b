package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sepsiswatch/db"
	"sepsiswatch/training"
)

type trainOptions struct {
	modelOut string
	meansOut string
	balancer string
	rounds   int
	maxDepth int
	seed     int64
	folders  []string
	noRecord bool
}

func newTrainCommand(root *rootOptions) *cobra.Command {
	opts := &trainOptions{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train and evaluate the sepsis classifier",
		Long: `Load the patient corpus, impute missing cells with the feature means,
balance the training partition, fit the gradient boosted classifier and print
the threshold sweep and ROC AUC for the held-out partition.

The fitted model and the means table are written as servable artifacts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.modelOut, "out", "o", "", "Model output path (overrides config)")
	cmd.Flags().StringVar(&opts.meansOut, "means-out", "", "Feature means output path (overrides config)")
	cmd.Flags().StringVar(&opts.balancer, "balancer", "", "Class balancer: smote, random or none")
	cmd.Flags().IntVar(&opts.rounds, "rounds", 0, "Boosting rounds")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", 0, "Maximum tree depth")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Random seed for the split and the balancer")
	cmd.Flags().StringSliceVar(&opts.folders, "folder", nil, "Corpus folder (repeatable, overrides config)")
	cmd.Flags().BoolVar(&opts.noRecord, "no-record", false, "Do not record the run in the database")

	return cmd
}

func runTrain(cmd *cobra.Command, root *rootOptions, opts *trainOptions) error {
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if opts.modelOut != "" {
		cfg.Artifacts.ModelPath = opts.modelOut
	}
	if opts.meansOut != "" {
		cfg.Artifacts.MeansPath = opts.meansOut
	}
	if opts.balancer != "" {
		cfg.Training.Balancer = opts.balancer
	}
	if opts.rounds > 0 {
		cfg.Training.Boost.Rounds = opts.rounds
	}
	if opts.maxDepth > 0 {
		cfg.Training.Boost.MaxDepth = opts.maxDepth
	}
	if cmd.Flags().Changed("seed") {
		cfg.Training.Seed = opts.seed
		cfg.Training.Boost.Seed = opts.seed
	}
	if len(opts.folders) > 0 {
		cfg.Corpus.Folders = opts.folders
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var recorder training.Recorder
	if !opts.noRecord && cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = store
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := training.Run(ctx, training.OptionsFromConfig(cfg), recorder, logger.Named("training"))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, result.Report())
	fmt.Fprintf(out, "\nModel saved to %s\n", cfg.Artifacts.ModelPath)
	fmt.Fprintf(out, "Feature means saved to %s\n", cfg.Artifacts.MeansPath)
	if result.RunID != "" {
		logger.Info("training run recorded", zap.String("run_id", result.RunID))
		fmt.Fprintf(out, "Run ID: %s\n", result.RunID)
	}
	return nil
}
