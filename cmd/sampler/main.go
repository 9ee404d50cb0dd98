// Package main is the entry point for the Vitalis sampler.
// It loads configuration, wires the collector loop to its cache, recovery
// and degradation policy, and runs either as a Windows service or as a
// foreground process that logs every update.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sampler/internal/config"
	"github.com/Guliveer/vitalis/sampler/internal/service"
)

var (
	// version is set at build time via -ldflags.
	version = "dev"
	commit  = "none"
)

var (
	configPath    string
	intervalFlag  time.Duration
	logLevelFlag  string
	metricsListen string
	tierTwoFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "vitalis-sampler",
	Short: "Sample host metrics on a fixed interval",
	Long: `Sample processor, memory, storage and host information on a fixed interval.

When collection fails the sampler retries, then serves the last known snapshot,
an extrapolated one, or a placeholder, and recovers as soon as live data is
available again.

Examples:
  vitalis-sampler
  vitalis-sampler --interval 500ms --log-level debug
  vitalis-sampler --config /etc/vitalis/sampler.yaml --metrics-listen :9273`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		logger.Info("Starting Vitalis sampler",
			zap.String("version", version),
			zap.Duration("interval", cfg.Collection.Interval.Duration),
			zap.String("tier_two", cfg.Cache.TierTwo))

		if service.IsWindowsService() {
			logger.Info("Running as Windows service")
			svc := service.New(logger, cfg.Cache.WriteTimeout.Duration+5*time.Second, func(ctx context.Context) error {
				return runSampler(ctx, cfg, logger, nil)
			})
			return svc.Run()
		}

		return runForeground(cfg, logger)
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Take one snapshot and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()
		return printSnapshot(cmd.Context(), cmd.OutOrStdout(), cfg, logger, allowPartial)
	},
}

var allowPartial bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vitalis-sampler %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "go: %s\n", runtime.Version())
		fmt.Fprintf(cmd.OutOrStdout(), "os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (default: search standard locations)")
	rootCmd.PersistentFlags().DurationVar(&intervalFlag, "interval", 0, "sampling interval, 100ms to 10s")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "debug, info, warn or error")
	rootCmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "address for the Prometheus endpoint, e.g. :9273")
	rootCmd.Flags().StringVar(&tierTwoFlag, "tier-two", "", "second cache tier: none, file or redis")

	snapshotCmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "print the snapshot even when some categories failed")

	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads and validates configuration and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, initLogger(cfg), nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cli := config.CLIOverrides{
		Interval:      intervalFlag,
		LogLevel:      logLevelFlag,
		MetricsListen: metricsListen,
		TierTwo:       tierTwoFlag,
	}
	var (
		cfg *config.Config
		err error
	)
	if cmd.Flags().Changed("config") {
		cfg, err = config.LoadLayered(cli, embeddedConfig, configPath)
	} else {
		cfg, err = config.LoadLayered(cli, embeddedConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
