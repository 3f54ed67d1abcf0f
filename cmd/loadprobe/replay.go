package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"loadprobe/internal/sink"
	"loadprobe/internal/threshold"
)

var (
	replaySnapshot  string
	replayRequests  string
	replayCSVDir    string
	replayPrintOnly bool
	replaySpeed     float64
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a saved snapshot or request log",
	Long: "replay re-evaluates a saved collector snapshot against the current thresholds and " +
		"prints the console report, or feeds a JSONL request log back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case replaySnapshot != "":
			return replaySnapshotFile(replaySnapshot, replayCSVDir)
		case replayRequests != "":
			return replayRequestLog(replayRequests, replayPrintOnly)
		default:
			return fmt.Errorf("one of --snapshot or --requests is required")
		}
	},
}

func replaySnapshotFile(path, csvDir string) error {
	s, err := sink.ReadSnapshotFile(path)
	if err != nil {
		return err
	}
	threshold.New(nil).Summarize(s)
	sws := []sink.SnapshotWriter{sink.NewConsoleWriter()}
	if csvDir != "" {
		cw, err := sink.NewCSVWriter(csvDir)
		if err != nil {
			return err
		}
		sws = append(sws, cw)
	}
	return sink.NewMultiWriter(nil, sws).WriteSnapshot(s)
}

func replayRequestLog(path string, printOnly bool) error {
	var w sink.RequestWriter = sink.NewJSONStdoutWriter()
	if !printOnly && appCfg.Greptime.Enabled() {
		gw, err := sink.NewGreptimeDBWriter(appCfg.Greptime, logger)
		if err != nil {
			return err
		}
		w = gw
	}
	n, err := sink.ReplayRequestFile(path, w, replaySpeed)
	logger.Info("replayed request log", zap.String("path", path), zap.Int("rows", n))
	return err
}

func init() {
	replayCmd.Flags().StringVar(&replaySnapshot, "snapshot", "", "Path to a collector snapshot JSON file")
	replayCmd.Flags().StringVar(&replayRequests, "requests", "", "Path to a JSONL request log")
	replayCmd.Flags().StringVar(&replayCSVDir, "csv-dir", "", "Also append the summary row to the CSV in this directory")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 0, "Playback speed multiplier for request logs (0 = as fast as possible)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print request rows to STDOUT instead of writing to GreptimeDB")
	replayCmd.MarkFlagsOneRequired("snapshot", "requests")
	replayCmd.MarkFlagsMutuallyExclusive("snapshot", "requests")
}
