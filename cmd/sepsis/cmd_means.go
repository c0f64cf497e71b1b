package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sepsiswatch/training"
)

func newMeansCommand(root *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "means",
		Short: "Compute the feature means table from the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if out == "" {
				out = cfg.Artifacts.MeansPath
			}

			means, err := training.BuildMeans(cmd.Context(), training.OptionsFromConfig(cfg), logger.Named("pipeline"))
			if err != nil {
				return err
			}
			if err := means.Save(out); err != nil {
				return fmt.Errorf("save means: %w", err)
			}
			logger.Info("feature means saved", zap.String("path", out), zap.Int("features", means.Len()))
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d feature means to %s\n", means.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (defaults to artifacts.means_path)")
	return cmd
}
