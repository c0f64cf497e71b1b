package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sepsiswatch/db"
)

func newRunsCommand(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			store, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListTrainingRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No training runs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTRAINED\tBALANCER\tTRAIN\tTEST\tAUC\tMODEL")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.4f\t%s\n",
					run.ID, run.TrainedAt.Format("2006-01-02 15:04"), run.Balancer,
					run.TrainRows, run.TestRows, run.AUC, run.ModelPath)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}
