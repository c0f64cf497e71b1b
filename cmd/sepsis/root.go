package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sepsiswatch/config"
	"sepsiswatch/logging"
)

var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "sepsis",
		Short: "Sepsis risk scoring service and tooling",
		Long: `sepsis trains the gradient boosted sepsis classifier from PhysioNet
patient files, serves it over HTTP and websocket, and assesses a set of
bedside vitals against a running server.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newTrainCommand(opts))
	cmd.AddCommand(newMeansCommand(opts))
	cmd.AddCommand(newAssessCommand())
	cmd.AddCommand(newRunsCommand(opts))

	return cmd
}

// load resolves the config and builds the logger it describes.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if err := cfg.Log.Validate(); err != nil {
			return nil, nil, err
		}
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
