package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sepsiswatch/db"
	shttp "sepsiswatch/http"
	"sepsiswatch/inference"
	"sepsiswatch/monitoring"
)

type serveOptions struct {
	port  int
	watch bool
	noDB  bool
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the risk API",
		Long: `Load the model and feature means artifacts and serve POST /predict,
the liveness and health endpoints, Prometheus metrics and the /ws/predict
websocket until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Listen port (overrides config)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload artifacts when they change on disk")
	cmd.Flags().BoolVar(&opts.noDB, "no-db", false, "Do not open the training-run database")

	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	if opts.port > 0 {
		cfg.HTTP.Port = opts.port
	}

	artifacts := inference.Artifacts{
		ModelType: cfg.Artifacts.ModelType,
		ModelPath: cfg.Artifacts.ModelPath,
		MeansPath: cfg.Artifacts.MeansPath,
	}
	serviceOpts := []inference.Option{
		inference.WithLogger(logger.Named("inference")),
		inference.WithCache(cfg.Artifacts.CacheSize),
	}
	service, err := inference.Load(artifacts, serviceOpts...)
	if err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}
	logger.Info("artifacts loaded",
		zap.String("model", artifacts.ModelPath),
		zap.String("means", artifacts.MeansPath),
		zap.Int("features", service.Means().Len()),
	)
	provider := inference.NewProvider(service)

	deps := shttp.HandlerDeps{
		Provider: provider,
		Metrics:  monitoring.NewMetrics(),
		Logger:   logger.Named("http"),
	}
	if !opts.noDB && cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			logger.Warn("training-run database unavailable", zap.String("path", cfg.Database.Path), zap.Error(err))
		} else {
			defer store.Close()
			deps.Runs = store
		}
	}

	server := shttp.NewServer(shttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.CORSOrigins,
	}, shttp.NewHandler(deps))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.watch || cfg.Artifacts.Watch {
		watcher := inference.NewWatcher(provider, artifacts, inference.WatcherConfig{
			Options: serviceOpts,
			OnReload: func(err error) {
				deps.Metrics.ObserveReload(err)
				event := monitoring.Event{Type: monitoring.EventModelReloaded, Timestamp: time.Now()}
				if err != nil {
					event.Type = monitoring.EventReloadFailed
					event.Detail = err.Error()
				}
				server.Notify(event)
			},
		}, logger.Named("watcher"))
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("artifact watcher stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
