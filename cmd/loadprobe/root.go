package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"loadprobe/internal/config"
	"loadprobe/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	logJSON  bool

	appCfg *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "loadprobe",
	Short: "Breaking-point load driver and search cluster metrics collector",
	Long: "loadprobe drives virtual users against one HTTP endpoint until it breaks, " +
		"and polls the backing search cluster's diagnostics while it does.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-json") {
			cfg.Log.JSON = logJSON
		}
		appCfg = cfg
		logger = logging.New(cfg.Log.Level, cfg.Log.JSON)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM that
// carries the named logger.
func signalContext(name string) (context.Context, context.CancelFunc, *zap.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	log := logger.Named(name)
	return logging.NewContext(ctx, log), stop, log
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to loadprobe configuration YAML")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON lines")

	rootCmd.AddCommand(loadtestCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(replayCmd)
}
