// Command loadgen drives a kvtier server with concurrent HTTP clients and
// prints throughput and latency.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/kvtier/internal/loadgen"
	"github.com/IvanBrykalov/kvtier/internal/logging"
)

var (
	cfg = loadgen.Config{
		Host:     "localhost",
		Port:     8000,
		Clients:  10,
		Duration: 10 * time.Second,
		Mode:     loadgen.ModeMixed,
		PoolSize: loadgen.DefaultPoolSize,
	}
	mode     int
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "loadgen",
	Short: "Generate HTTP load against a kvtier server",
	Long: `loadgen runs a fixed number of closed-loop clients against /api/{key} for a
fixed duration. Keys and values come from a pre-built pool of random strings.

Modes:
  0  GET only
  1  PUT only
  2  70% GET, 20% PUT, 10% DELETE

Examples:
  loadgen --clients 64 --duration 30s
  loadgen --mode 1 --rate 500 --think-time 5ms`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := logging.New(logLevel, logging.FormatConsole)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		cfg.Mode = loadgen.Mode(mode)
		rep, err := loadgen.NewRunner(nil, logger.Named("loadgen")).Run(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		logger.Debug("run finished", zap.Int64("total", rep.Total()))
		_, err = rep.WriteTo(cmd.OutOrStdout())
		return err
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&cfg.Host, "host", cfg.Host, "server host")
	f.IntVar(&cfg.Port, "port", cfg.Port, "server port")
	f.IntVar(&cfg.Clients, "clients", cfg.Clients, "concurrent clients")
	f.DurationVar(&cfg.Duration, "duration", cfg.Duration, "test duration")
	f.DurationVar(&cfg.ThinkTime, "think-time", 0, "pause between requests per client")
	f.IntVar(&mode, "mode", int(loadgen.ModeMixed), "0=GET only, 1=PUT only, 2=mixed")
	f.Float64Var(&cfg.Rate, "rate", 0, "aggregate requests per second, 0 = unlimited")
	f.IntVar(&cfg.PoolSize, "pool-size", cfg.PoolSize, "distinct key/value pairs")
	f.Uint64Var(&cfg.Seed, "seed", 0, "pool seed, 0 = random")
	f.StringVar(&logLevel, "log-level", "info", "log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
