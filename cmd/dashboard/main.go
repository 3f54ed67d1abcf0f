package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loadprobe/internal/config"
	"loadprobe/internal/dashboard"
)

var (
	cfgPath string
	outDir  string
)

var rootCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the loadprobe GreptimeDB tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		paths, err := dashboard.Render(outDir, dashboard.TablesFrom(cfg.Greptime))
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgPath, "config", "", "config file supplying the greptime table names")
	rootCmd.Flags().StringVar(&outDir, "out", "build", "output directory")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
