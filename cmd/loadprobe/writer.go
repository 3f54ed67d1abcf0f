package main

import (
	"go.uber.org/zap"

	"loadprobe/internal/config"
	"loadprobe/internal/sink"
)

// newRequestWriter sets up the per-request event writers selected in cfg.
// It returns nil when no writer is selected, and a cleanup function that
// closes every writer holding resources.
func newRequestWriter(cfg *config.Config, log *zap.Logger) (sink.RequestWriter, func(), error) {
	ev := cfg.LoadTest.Events
	var writers []sink.RequestWriter

	switch {
	case ev.TUI:
		writers = append(writers, sink.NewTUIWriter(&cfg.LoadTest))
	case ev.Stdout:
		writers = append(writers, sink.NewStdoutWriter(&cfg.LoadTest))
	}
	if ev.File != "" {
		fw, err := sink.NewFileWriter(ev.File, ev.File+".status")
		if err != nil {
			closeWriters(writers)
			return nil, nil, err
		}
		writers = append(writers, fw)
	}
	if ev.Greptime {
		if !cfg.Greptime.Enabled() {
			log.Warn("greptime events requested without greptime.endpoint, skipping")
		} else {
			gw, err := sink.NewGreptimeDBWriter(cfg.Greptime, log)
			if err != nil {
				closeWriters(writers)
				return nil, nil, err
			}
			writers = append(writers, gw)
		}
	}

	cleanup := func() { closeWriters(writers) }
	switch len(writers) {
	case 0:
		return nil, func() {}, nil
	case 1:
		return writers[0], cleanup, nil
	default:
		return sink.NewMultiWriter(writers, nil), cleanup, nil
	}
}

// newSnapshotWriter sets up the collector outputs: the per-cycle JSON file and
// the summary CSV always, the console unless quiet, GreptimeDB when enabled.
func newSnapshotWriter(cfg *config.Config, quiet bool, log *zap.Logger) (*sink.MultiWriter, error) {
	dir := cfg.Collector.OutputDir
	jw, err := sink.NewJSONFileWriter(dir)
	if err != nil {
		return nil, err
	}
	sws := []sink.SnapshotWriter{jw}
	cw, err := sink.NewCSVWriter(dir)
	if err != nil {
		closeSnapshotWriters(sws)
		return nil, err
	}
	sws = append(sws, cw)
	if !quiet {
		sws = append(sws, sink.NewConsoleWriter())
	}
	if cfg.Collector.Greptime {
		if !cfg.Greptime.Enabled() {
			log.Warn("greptime summaries requested without greptime.endpoint, skipping")
		} else {
			gw, err := sink.NewGreptimeDBWriter(cfg.Greptime, log)
			if err != nil {
				closeSnapshotWriters(sws)
				return nil, err
			}
			sws = append(sws, gw)
		}
	}
	return sink.NewMultiWriter(nil, sws), nil
}

func closeWriters(writers []sink.RequestWriter) {
	_ = sink.NewMultiWriter(writers, nil).Close()
}

func closeSnapshotWriters(writers []sink.SnapshotWriter) {
	_ = sink.NewMultiWriter(nil, writers).Close()
}
