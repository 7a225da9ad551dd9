package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/kvtier/internal/app"
	"github.com/IvanBrykalov/kvtier/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve [port] [threads] [cachesize]",
	Short: "Run the HTTP server (default command)",
	Args:  cobra.MaximumNArgs(3),
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	c := cfg
	if err := c.ApplyArgs(args); err != nil {
		return err
	}
	c.FromEnv()
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(c.LogLevel, c.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting",
		zap.String("version", version),
		zap.String("addr", c.Addr()),
		zap.Int("threads", c.Threads),
		zap.Int("cache_size", c.CacheSize),
		zap.Bool("coalesce_loads", c.CoalesceLoads))

	fxApp := fx.New(
		fx.Supply(c, logger),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		app.Module,
	)

	startCtx, cancel := context.WithTimeout(cmd.Context(), fxApp.StartTimeout())
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}

	sig := <-fxApp.Wait()
	logger.Info("shutting down", zap.String("signal", sig.Signal.String()))

	stopCtx, cancel := context.WithTimeout(context.Background(), fxApp.StopTimeout())
	defer cancel()
	return fxApp.Stop(stopCtx)
}
